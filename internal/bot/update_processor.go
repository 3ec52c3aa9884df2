package bot

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/iamwavecut/totem/internal/db"
	"github.com/iamwavecut/totem/internal/event"
	"github.com/iamwavecut/totem/internal/i18n"
	"github.com/iamwavecut/totem/internal/observability"
	"github.com/iamwavecut/totem/internal/platform"
	"github.com/iamwavecut/totem/internal/platform/telegram"
	"github.com/iamwavecut/totem/internal/rules"
)

type classifier interface {
	Classify(ctx context.Context, ev *event.Inbound) event.Decision
}

type moderator interface {
	HandleTrigger(ctx context.Context, ev *event.Inbound, reason rules.Reason) error
	HandleResolution(ctx context.Context, ev *event.Inbound, res *event.Resolution) error
}

type greeter interface {
	Handle(ctx context.Context, ev *event.Inbound) error
}

type logPolicy interface {
	LogMembers() bool
	LogMessages() bool
	ToggleMembers(ctx context.Context) (bool, error)
	ToggleMessages(ctx context.Context) (bool, error)
}

type notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type statsStore interface {
	UpsertUser(ctx context.Context, rec *db.UserRecord) error
	UpdateStats(ctx context.Context, userID int64, stats db.Stats) error
}

// UpdateProcessor is the single entry point for raw updates: it normalizes
// them, asks the classifier for a decision and routes the decision to the
// handler that executes it.
type UpdateProcessor struct {
	classifier classifier
	moderator  moderator
	greeter    greeter
	policy     logPolicy
	notifier   notifier
	store      statsStore
	groupID    int64
	operatorID int64
	language   string
}

func NewUpdateProcessor(
	classifier classifier,
	moderator moderator,
	greeter greeter,
	policy logPolicy,
	notifier notifier,
	store statsStore,
	groupID, operatorID int64,
	language string,
) *UpdateProcessor {
	return &UpdateProcessor{
		classifier: classifier,
		moderator:  moderator,
		greeter:    greeter,
		policy:     policy,
		notifier:   notifier,
		store:      store,
		groupID:    groupID,
		operatorID: operatorID,
		language:   language,
	}
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return up.process(ctx, telegram.Translate(u))
	}
}

func (up *UpdateProcessor) process(ctx context.Context, ev *event.Inbound) error {
	if ev == nil || ev.Kind == event.KindUnknown {
		return nil
	}
	// The bot serves exactly one group; the operator chat only carries
	// callbacks and toggles.
	if ev.ChatID != up.groupID && ev.ChatID != up.operatorID {
		log.WithField("chatID", ev.ChatID).Trace("update from foreign chat, ignoring")
		return nil
	}

	ctx, span := otel.Tracer("update-processor").Start(ctx, "process-event")
	defer span.End()

	finish := observability.StartEventProcessing()
	status := "ok"
	defer func() { finish(status) }()

	decision := up.classifier.Classify(ctx, ev)
	observability.Logger.Debug("event classified",
		zap.Int("kind", int(ev.Kind)),
		zap.Int("action", int(decision.Action)),
		zap.Int64("chatID", ev.ChatID),
		zap.Int64("senderID", ev.Sender.ID),
	)

	if ev.Kind == event.KindMembership && ev.Membership != nil {
		up.applyMembership(ctx, ev)
	}
	if ev.Kind == event.KindMessage && decision.Action != event.ActionModerate {
		up.recordMessage(ctx, ev)
	}

	var err error
	switch decision.Action {
	case event.ActionModerate:
		err = up.moderator.HandleTrigger(ctx, ev, decision.Reason)
	case event.ActionResolve:
		err = up.moderator.HandleResolution(ctx, ev, decision.Resolution)
	case event.ActionWelcome:
		err = up.greeter.Handle(ctx, ev)
	case event.ActionLog:
		err = up.logTransition(ctx, ev, decision.Transition)
	case event.ActionToggle:
		err = up.toggle(ctx, ev, decision.Toggle)
	}
	if err != nil {
		status = "error"
		return errors.WithMessage(err, "handling error")
	}
	return nil
}

// recordMessage bumps the sender's message counter, creating the row first
// for senders the store has never seen.
func (up *UpdateProcessor) recordMessage(ctx context.Context, ev *event.Inbound) {
	if ev.Message == nil || ev.Sender.ID == 0 {
		return
	}
	stats := db.Stats{MsgCountDelta: 1}
	err := up.store.UpdateStats(ctx, ev.Sender.ID, stats)
	if errors.Is(err, db.ErrNotFound) {
		if err = up.store.UpsertUser(ctx, &db.UserRecord{Profile: profileFromSender(ev)}); err == nil {
			err = up.store.UpdateStats(ctx, ev.Sender.ID, stats)
		}
	}
	if err != nil {
		log.WithError(err).WithField("userID", ev.Sender.ID).Warn("cant record message stats")
	}

	if up.policy.LogMessages() {
		line := fmt.Sprintf("%s: %s", senderName(ev), ev.Message.Text)
		if err := up.notifier.SendMessage(ctx, up.operatorID, line); err != nil {
			log.WithError(err).Warn("cant forward message log")
		}
	}
}

// applyMembership keeps the in-group flag in step with what the platform
// reported, independent of whether the transition is a recognized one.
func (up *UpdateProcessor) applyMembership(ctx context.Context, ev *event.Inbound) {
	m := ev.Membership
	var inGroup bool
	switch m.To {
	case event.StatusMember, event.StatusAdministrator, event.StatusRestricted:
		inGroup = true
	case event.StatusLeft, event.StatusKicked:
		inGroup = false
	default:
		return
	}

	stats := db.Stats{IsInGroup: &inGroup}
	err := up.store.UpdateStats(ctx, m.Subject.ID, stats)
	if errors.Is(err, db.ErrNotFound) {
		profile := db.UserProfile{
			ID:        m.Subject.ID,
			Username:  m.Subject.Username,
			FirstName: m.Subject.FirstName,
			LastName:  m.Subject.LastName,
			IsBot:     m.Subject.IsBot,
			IsPremium: m.Subject.IsPremium,
			IsInGroup: inGroup,
		}
		err = up.store.UpsertUser(ctx, &db.UserRecord{Profile: profile})
	}
	if err != nil {
		log.WithError(err).WithField("userID", m.Subject.ID).Warn("cant apply membership change")
	}
}

func (up *UpdateProcessor) logTransition(ctx context.Context, ev *event.Inbound, transition string) error {
	observability.RecordTransition(transition)
	entry := log.WithFields(log.Fields{
		"userID":     ev.Membership.Subject.ID,
		"transition": transition,
	})
	entry.Info("membership transition")

	if !up.policy.LogMembers() {
		return nil
	}
	line := fmt.Sprintf("%s: %s", membershipName(ev.Membership.Subject), transition)
	if ev.Sender.ID != 0 && ev.Sender.ID != ev.Membership.Subject.ID {
		line += fmt.Sprintf(" (by %s)", senderName(ev))
	}
	return errors.Wrap(up.notifier.SendMessage(ctx, up.operatorID, line), "forward transition log")
}

func (up *UpdateProcessor) toggle(ctx context.Context, ev *event.Inbound, which string) error {
	var (
		enabled bool
		err     error
		key     string
	)
	switch which {
	case "members":
		enabled, err = up.policy.ToggleMembers(ctx)
		key = "Member logging is now %s"
	case "messages":
		enabled, err = up.policy.ToggleMessages(ctx)
		key = "Message logging is now %s"
	default:
		return errors.Errorf("unknown toggle %q", which)
	}
	if err != nil {
		return errors.WithMessage(err, "flip log switch")
	}

	state := i18n.Get("disabled", up.language)
	if enabled {
		state = i18n.Get("enabled", up.language)
	}
	confirmation := fmt.Sprintf(i18n.Get(key, up.language), state)
	return errors.Wrap(up.notifier.SendMessage(ctx, ev.ChatID, confirmation), "confirm toggle")
}

func profileFromSender(ev *event.Inbound) db.UserProfile {
	return db.UserProfile{
		ID:        ev.Sender.ID,
		Username:  ev.Sender.Username,
		FirstName: ev.Sender.FirstName,
		LastName:  ev.Sender.LastName,
		IsBot:     ev.Sender.IsBot,
		IsPremium: ev.Sender.IsPremium,
		IsInGroup: true,
	}
}

func senderName(ev *event.Inbound) string {
	if ev.Sender.Username != "" {
		return "@" + ev.Sender.Username
	}
	if ev.Sender.FirstName != "" {
		return ev.Sender.FirstName
	}
	return fmt.Sprintf("ID: %d", ev.Sender.ID)
}

func membershipName(user platform.User) string {
	if user.Username != "" {
		return "@" + user.Username
	}
	if user.FirstName != "" {
		return user.FirstName
	}
	return fmt.Sprintf("ID: %d", user.ID)
}
