package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/totem/internal/bot"
	"github.com/iamwavecut/totem/internal/config"
	"github.com/iamwavecut/totem/internal/db/sqlite"
	"github.com/iamwavecut/totem/internal/event"
	chat "github.com/iamwavecut/totem/internal/handlers/chat"
	moderation "github.com/iamwavecut/totem/internal/handlers/moderation"
	"github.com/iamwavecut/totem/internal/i18n"
	"github.com/iamwavecut/totem/internal/infra"
	"github.com/iamwavecut/totem/internal/lifecycle"
	"github.com/iamwavecut/totem/internal/observability"
	"github.com/iamwavecut/totem/internal/platform/telegram"
	"github.com/iamwavecut/totem/internal/policy/logging"
	"github.com/iamwavecut/totem/internal/rules"
	groupsync "github.com/iamwavecut/totem/internal/sync"
)

func main() {
	cfg := config.Get()
	log.SetFormatter(&config.TtmFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := observability.Init(ctx, cfg.MetricsAddr); err != nil {
		log.WithError(err).Fatalln("cant initialize observability")
	}

	botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
	if err != nil {
		log.WithError(err).Errorln("cant initialize bot api")
		time.Sleep(1 * time.Second)
		log.Fatalln("exiting")
	}
	if log.Level(cfg.LogLevel) == log.TraceLevel {
		botAPI.Debug = true
	}

	client := telegram.New(botAPI)
	store := sqlite.NewSQLiteClient(filepath.Join(infra.GetWorkDir(), "totem.db"))
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Errorln("cant close store")
		}
	}()

	ruleStore, err := rules.NewStore(cfg.RulesPath)
	if err != nil {
		log.WithError(err).Errorln("cant load rules")
		warning := i18n.Get("Rules file could not be loaded, moderation runs with an empty rule set", cfg.DefaultLanguage)
		if notifyErr := client.SendMessage(ctx, cfg.OperatorID, warning); notifyErr != nil {
			log.WithError(notifyErr).Errorln("cant notify operator about rules failure")
		}
	}

	policy := logging.NewPolicy(ctx, store)
	classifier := event.NewClassifier(ruleStore, store, client.Self(), cfg.OperatorID)
	coordinator := moderation.NewCoordinator(client, store, cfg.GroupID, cfg.OperatorID, cfg.DefaultLanguage)
	greeter := chat.NewGreeter(client, store, cfg.DefaultLanguage)
	processor := bot.NewUpdateProcessor(
		classifier, coordinator, greeter, policy, client, store,
		cfg.GroupID, cfg.OperatorID, cfg.DefaultLanguage,
	)

	runtime := lifecycle.NewRuntime(
		groupsync.NewService(client, store, cfg.GroupID, cfg.SyncInterval, cfg.SyncPageSize),
	)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start background services")
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := runtime.Stop(stopCtx); err != nil {
			log.WithError(err).Errorln("cant stop background services")
		}
	}()

	updateConfig := api.NewUpdate(0)
	updateConfig.Timeout = 60
	updateChan, errorChan := telegram.GetUpdatesChans(ctx, botAPI, updateConfig)

	infra.GoRecoverable(3, "updates", func() {
		for {
			select {
			case err := <-errorChan:
				log.WithError(err).Errorln("bot api get updates error")
				cancel()
				return
			case update := <-updateChan:
				if err := processor.Process(ctx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			case <-ctx.Done():
				log.WithError(ctx.Err()).Infoln("no more updates")
				return
			}
		}
	})

	// GoRecoverable restarts a panicked loop on a fresh goroutine, so keep
	// the process alive until the context actually ends.
	<-ctx.Done()
}
