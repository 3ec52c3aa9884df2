package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string        `env:"TOKEN,required"`
		GroupID          int64         `env:"GROUP_ID,required"`
		OperatorID       int64         `env:"OPERATOR_ID,required"`
		DefaultLanguage  string        `env:"LANG,default=en"`
		LogLevel         int           `env:"LOG_LEVEL,default=2"`
		DotPath          string        `env:"DOT_PATH,default=~/.totem"`
		RulesPath        string        `env:"RULES_PATH,default=rules.json"`
		MetricsAddr      string        `env:"METRICS_ADDR,default=:2112"`
		SyncInterval     time.Duration `env:"SYNC_INTERVAL,default=6h"`
		SyncPageSize     int           `env:"SYNC_PAGE_SIZE,default=200"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("TTM_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		home, err := os.UserHomeDir()
		if err != nil {
			globalErr = fmt.Errorf("get user home directory: %w", err)
			return
		}
		cfg.DotPath = strings.Replace(cfg.DotPath, "~", home, 1)
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}
