package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/totem/internal/db"
	"github.com/iamwavecut/totem/internal/event"
	"github.com/iamwavecut/totem/internal/i18n"
	"github.com/iamwavecut/totem/internal/platform"
)

type greeterClient interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendReply(ctx context.Context, chatID int64, replyTo int, text string) error
}

type greeterStore interface {
	GetUser(ctx context.Context, userID int64) (*db.UserRecord, error)
	UpsertUser(ctx context.Context, rec *db.UserRecord) error
}

// Greeter welcomes join events and answers the greeting command. It also
// seeds the store with the joiner's profile so later classification has a
// row to work with.
type Greeter struct {
	client   greeterClient
	store    greeterStore
	language string
}

func NewGreeter(client greeterClient, store greeterStore, language string) *Greeter {
	return &Greeter{client: client, store: store, language: language}
}

func (g *Greeter) Handle(ctx context.Context, ev *event.Inbound) error {
	if ev == nil {
		return errors.New("nil event")
	}
	switch {
	case ev.Kind == event.KindJoin && ev.Join != nil:
		return g.welcomeJoined(ctx, ev)
	case ev.Kind == event.KindCommand && ev.Command != nil:
		return g.replyGreeting(ctx, ev)
	}
	return nil
}

func (g *Greeter) welcomeJoined(ctx context.Context, ev *event.Inbound) error {
	var joinErr error
	for _, user := range ev.Join.Users {
		if user.IsBot {
			continue
		}
		known := true
		if _, err := g.store.GetUser(ctx, user.ID); err != nil {
			if !errors.Is(err, db.ErrNotFound) {
				log.WithError(err).WithField("userID", user.ID).Warn("cant check joiner, greeting as stranger")
			}
			known = false
		}

		if err := g.trackJoin(ctx, user); err != nil {
			log.WithError(err).WithField("userID", user.ID).Error("cant track join")
		}

		key := "Hello, %s! Welcome to the group, make yourself at home."
		if known {
			key = "Hello again, %s! Good to see you back."
		}
		text := fmt.Sprintf(i18n.Get(key, g.language), greetingName(user))
		if err := g.client.SendMessage(ctx, ev.ChatID, text); err != nil {
			joinErr = errors.Wrap(err, "send welcome")
		}
	}
	return joinErr
}

func (g *Greeter) replyGreeting(ctx context.Context, ev *event.Inbound) error {
	text := fmt.Sprintf(i18n.Get("Hi, %s!", g.language), greetingName(ev.Sender))
	return errors.Wrap(g.client.SendReply(ctx, ev.ChatID, ev.Command.MessageID, text), "send greeting reply")
}

func (g *Greeter) trackJoin(ctx context.Context, user platform.User) error {
	rec := &db.UserRecord{
		Profile: db.UserProfile{
			ID:        user.ID,
			Username:  user.Username,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			IsBot:     user.IsBot,
			IsPremium: user.IsPremium,
			FirstJoin: sql.NullTime{Time: time.Now(), Valid: true},
			IsInGroup: true,
		},
	}
	return g.store.UpsertUser(ctx, rec)
}

func greetingName(user platform.User) string {
	if user.FirstName != "" {
		return user.FirstName
	}
	if user.Username != "" {
		return "@" + user.Username
	}
	return fmt.Sprintf("ID: %d", user.ID)
}
