package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/zap"

	"github.com/iamwavecut/totem/internal/db"
	"github.com/iamwavecut/totem/internal/event"
	"github.com/iamwavecut/totem/internal/i18n"
	"github.com/iamwavecut/totem/internal/observability"
	"github.com/iamwavecut/totem/internal/platform"
	"github.com/iamwavecut/totem/internal/rules"
)

type moderationClient interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPrompt(ctx context.Context, chatID int64, text string, buttons []platform.Button) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	RestrictUser(ctx context.Context, chatID, userID int64, rights platform.RestrictedRights, until time.Time) error
	UserFullInfo(ctx context.Context, chatID, userID int64) (*platform.FullUser, error)
}

type restrictionStore interface {
	GetUser(ctx context.Context, userID int64) (*db.UserRecord, error)
	UpsertRestriction(ctx context.Context, restriction *db.Restriction, rights *db.RestrictedRights) error
}

// Coordinator executes moderate and resolve decisions: it removes the
// offending message, asks the operator what to do, and applies the answer
// exactly once.
type Coordinator struct {
	client     moderationClient
	store      restrictionStore
	groupID    int64
	operatorID int64
	language   string

	pendingMutex sync.Mutex
	pending      map[int64]time.Time
}

func NewCoordinator(client moderationClient, store restrictionStore, groupID, operatorID int64, language string) *Coordinator {
	return &Coordinator{
		client:     client,
		store:      store,
		groupID:    groupID,
		operatorID: operatorID,
		language:   language,
		pending:    map[int64]time.Time{},
	}
}

func (c *Coordinator) HandleTrigger(ctx context.Context, ev *event.Inbound, reason rules.Reason) error {
	if ev == nil || ev.Message == nil {
		return errors.New("trigger event has no message")
	}
	entry := log.WithFields(log.Fields{
		"userID":    ev.Sender.ID,
		"messageID": ev.Message.ID,
		"reason":    reason,
	})
	observability.RecordTrigger(string(reason))
	observability.Logger.Warn("message triggered moderation",
		zap.String("reason", string(reason)),
		zap.Int64("userID", ev.Sender.ID),
	)

	name := c.resolveDisplayName(ctx, ev.Sender)

	if err := c.client.DeleteMessage(ctx, ev.ChatID, ev.Message.ID); err != nil {
		entry.WithError(err).Error("cant delete triggering message")
		failure := fmt.Sprintf(i18n.Get("Failed to remove message from %s", c.language), name)
		if notifyErr := c.client.SendMessage(ctx, c.operatorID, failure); notifyErr != nil {
			entry.WithError(notifyErr).Error("cant notify operator about delete failure")
		}
		return errors.Wrap(err, "delete triggering message")
	}
	entry.Info("removed triggering message")

	c.pendingMutex.Lock()
	if _, exists := c.pending[ev.Sender.ID]; !exists {
		c.pending[ev.Sender.ID] = time.Now()
	}
	c.pendingMutex.Unlock()

	targetID := strconv.FormatInt(ev.Sender.ID, 10)
	text := fmt.Sprintf(i18n.Get("Message from %s was removed", c.language), name)
	buttons := []platform.Button{
		{Label: i18n.Get("Ban", c.language), Data: event.VerbBan + "_" + targetID},
		{Label: i18n.Get("Allow", c.language), Data: event.VerbAllow + "_" + targetID},
	}
	if err := c.client.SendPrompt(ctx, c.operatorID, text, buttons); err != nil {
		return errors.Wrap(err, "send operator prompt")
	}
	return nil
}

func (c *Coordinator) HandleResolution(ctx context.Context, ev *event.Inbound, res *event.Resolution) error {
	if ev == nil || ev.Callback == nil || res == nil {
		return errors.New("resolution event has no callback")
	}
	entry := log.WithFields(log.Fields{
		"verb":     res.Verb,
		"targetID": res.TargetID,
		"operator": ev.Sender.ID,
	})

	c.pendingMutex.Lock()
	_, isPending := c.pending[res.TargetID]
	delete(c.pending, res.TargetID)
	c.pendingMutex.Unlock()

	if !isPending {
		entry.Debug("resolution for already handled target")
		return c.client.AnswerCallback(ctx, ev.Callback.ID, i18n.Get("Already handled", c.language))
	}

	name := c.storedDisplayName(ctx, res.TargetID)

	switch res.Verb {
	case event.VerbBan:
		if err := c.applyBan(ctx, ev.Sender.ID, res.TargetID); err != nil {
			// Put the entry back so the operator can retry the press.
			c.pendingMutex.Lock()
			c.pending[res.TargetID] = time.Now()
			c.pendingMutex.Unlock()
			return err
		}
		entry.Info("target restricted")
		confirmation := fmt.Sprintf(i18n.Get("User %s has been restricted", c.language), name)
		if err := c.client.SendMessage(ctx, c.operatorID, confirmation); err != nil {
			entry.WithError(err).Error("cant confirm ban to operator")
		}
	case event.VerbAllow:
		// Nothing durable: allow just clears the pending entry.
		entry.Info("target allowed")
	default:
		return errors.Errorf("unknown resolution verb %q", res.Verb)
	}

	return c.client.AnswerCallback(ctx, ev.Callback.ID, "")
}

func (c *Coordinator) applyBan(ctx context.Context, operatorID, targetID int64) error {
	rights := platform.RestrictedRights{SendMessages: true}
	if err := c.client.RestrictUser(ctx, c.groupID, targetID, rights, time.Time{}); err != nil {
		return errors.Wrap(err, "restrict target")
	}

	restriction := &db.Restriction{
		UserID:          targetID,
		IsBanned:        true,
		RestrictedBy:    sql.NullInt64{Int64: operatorID, Valid: operatorID != 0},
		RestrictionDate: sql.NullTime{Time: time.Now(), Valid: true},
	}
	rightsRow := &db.RestrictedRights{UserID: targetID, SendMessages: true}
	if err := c.store.UpsertRestriction(ctx, restriction, rightsRow); err != nil {
		return errors.Wrap(err, "persist restriction")
	}
	return nil
}

// resolveDisplayName prefers the live profile over what the event carried.
func (c *Coordinator) resolveDisplayName(ctx context.Context, sender platform.User) string {
	if full, err := c.client.UserFullInfo(ctx, c.groupID, sender.ID); err == nil && full != nil {
		if name := displayName(full.User); name != "" {
			return name
		}
	}
	if name := displayName(sender); name != "" {
		return name
	}
	return "ID: " + strconv.FormatInt(sender.ID, 10)
}

func (c *Coordinator) storedDisplayName(ctx context.Context, userID int64) string {
	rec, err := c.store.GetUser(ctx, userID)
	if err != nil {
		return "ID: " + strconv.FormatInt(userID, 10)
	}
	return rec.Profile.DisplayName()
}

func displayName(user platform.User) string {
	full := strings.TrimSpace(user.FirstName + " " + user.LastName)
	switch {
	case full != "" && user.Username != "":
		return full + " (@" + user.Username + ")"
	case full != "":
		return full
	case user.Username != "":
		return "@" + user.Username
	}
	return ""
}
