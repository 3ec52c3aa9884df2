package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iamwavecut/totem/internal/db"
	"github.com/iamwavecut/totem/internal/event"
	"github.com/iamwavecut/totem/internal/platform"
	"github.com/iamwavecut/totem/internal/rules"
)

type fakeClient struct {
	deleted    []int
	deleteErr  error
	messages   []string
	prompts    []string
	promptData [][]platform.Button
	answers    []string
	restricted []int64
	restictErr error
}

func (c *fakeClient) DeleteMessage(_ context.Context, _ int64, messageID int) error {
	if c.deleteErr != nil {
		return c.deleteErr
	}
	c.deleted = append(c.deleted, messageID)
	return nil
}

func (c *fakeClient) SendMessage(_ context.Context, _ int64, text string) error {
	c.messages = append(c.messages, text)
	return nil
}

func (c *fakeClient) SendPrompt(_ context.Context, _ int64, text string, buttons []platform.Button) error {
	c.prompts = append(c.prompts, text)
	c.promptData = append(c.promptData, buttons)
	return nil
}

func (c *fakeClient) AnswerCallback(_ context.Context, _ string, text string) error {
	c.answers = append(c.answers, text)
	return nil
}

func (c *fakeClient) RestrictUser(_ context.Context, _, userID int64, _ platform.RestrictedRights, _ time.Time) error {
	if c.restictErr != nil {
		return c.restictErr
	}
	c.restricted = append(c.restricted, userID)
	return nil
}

func (c *fakeClient) UserFullInfo(_ context.Context, _, userID int64) (*platform.FullUser, error) {
	return nil, errors.New("unavailable")
}

type fakeRestrictionStore struct {
	users        map[int64]*db.UserRecord
	restrictions []*db.Restriction
	rights       []*db.RestrictedRights
}

func (s *fakeRestrictionStore) GetUser(_ context.Context, userID int64) (*db.UserRecord, error) {
	rec, ok := s.users[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return rec, nil
}

func (s *fakeRestrictionStore) UpsertRestriction(_ context.Context, restriction *db.Restriction, rights *db.RestrictedRights) error {
	s.restrictions = append(s.restrictions, restriction)
	s.rights = append(s.rights, rights)
	return nil
}

func triggerEvent(senderID int64, messageID int) *event.Inbound {
	return &event.Inbound{
		Kind:    event.KindMessage,
		ChatID:  -100,
		Sender:  platform.User{ID: senderID, FirstName: "Spam", LastName: "Mer", Username: "spammer"},
		Message: &event.Message{ID: messageID, Text: "junk"},
	}
}

func callbackEvent(data string) *event.Inbound {
	return &event.Inbound{
		Kind:     event.KindCallback,
		ChatID:   7777,
		Sender:   platform.User{ID: 7777},
		Callback: &event.Callback{ID: "cb1", Data: data},
	}
}

func newTestCoordinator(client *fakeClient, store *fakeRestrictionStore) *Coordinator {
	if store == nil {
		store = &fakeRestrictionStore{users: map[int64]*db.UserRecord{}}
	}
	return NewCoordinator(client, store, -100, 7777, "en")
}

func TestHandleTriggerDeletesAndPrompts(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	c := newTestCoordinator(client, nil)

	if err := c.HandleTrigger(context.Background(), triggerEvent(123456, 9), rules.ReasonLink); err != nil {
		t.Fatalf("handle trigger: %v", err)
	}
	if len(client.deleted) != 1 || client.deleted[0] != 9 {
		t.Fatalf("deleted = %v", client.deleted)
	}
	if len(client.prompts) != 1 {
		t.Fatalf("prompts = %v", client.prompts)
	}
	buttons := client.promptData[0]
	if len(buttons) != 2 {
		t.Fatalf("buttons = %+v", buttons)
	}
	if buttons[0].Data != "ban_123456" || buttons[1].Data != "allow_123456" {
		t.Fatalf("callback payloads = %q, %q", buttons[0].Data, buttons[1].Data)
	}
}

func TestHandleTriggerDeleteFailureStops(t *testing.T) {
	t.Parallel()

	client := &fakeClient{deleteErr: errors.New("message is gone")}
	c := newTestCoordinator(client, nil)

	if err := c.HandleTrigger(context.Background(), triggerEvent(1, 9), rules.ReasonWord); err == nil {
		t.Fatal("expected delete error")
	}
	if len(client.prompts) != 0 {
		t.Fatalf("prompt sent despite delete failure: %v", client.prompts)
	}
	if len(client.messages) != 1 {
		t.Fatalf("operator not notified of failure: %v", client.messages)
	}
}

func TestHandleResolutionBanOnce(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	store := &fakeRestrictionStore{users: map[int64]*db.UserRecord{}}
	c := newTestCoordinator(client, store)
	ctx := context.Background()

	if err := c.HandleTrigger(ctx, triggerEvent(123456, 9), rules.ReasonWord); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	res := &event.Resolution{Verb: event.VerbBan, TargetID: 123456}
	if err := c.HandleResolution(ctx, callbackEvent("ban_123456"), res); err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if len(client.restricted) != 1 || client.restricted[0] != 123456 {
		t.Fatalf("restricted = %v", client.restricted)
	}
	if len(store.restrictions) != 1 || !store.restrictions[0].IsBanned {
		t.Fatalf("restrictions = %+v", store.restrictions)
	}
	if !store.restrictions[0].RestrictedBy.Valid || store.restrictions[0].RestrictedBy.Int64 != 7777 {
		t.Fatalf("restricted_by = %+v", store.restrictions[0].RestrictedBy)
	}

	// A re-delivered press is acknowledged without a second restriction.
	if err := c.HandleResolution(ctx, callbackEvent("ban_123456"), res); err != nil {
		t.Fatalf("duplicate resolution: %v", err)
	}
	if len(client.restricted) != 1 {
		t.Fatalf("ban applied twice: %v", client.restricted)
	}
	if len(store.restrictions) != 1 {
		t.Fatalf("restriction persisted twice: %+v", store.restrictions)
	}
}

func TestHandleResolutionAllowPersistsNothing(t *testing.T) {
	t.Parallel()

	client := &fakeClient{}
	store := &fakeRestrictionStore{users: map[int64]*db.UserRecord{}}
	c := newTestCoordinator(client, store)
	ctx := context.Background()

	if err := c.HandleTrigger(ctx, triggerEvent(42, 9), rules.ReasonSymbol); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	res := &event.Resolution{Verb: event.VerbAllow, TargetID: 42}
	if err := c.HandleResolution(ctx, callbackEvent("allow_42"), res); err != nil {
		t.Fatalf("resolution: %v", err)
	}
	if len(client.restricted) != 0 || len(store.restrictions) != 0 {
		t.Fatal("allow must not restrict or persist")
	}
	if len(client.answers) != 1 {
		t.Fatalf("callback not answered: %v", client.answers)
	}
}

func TestHandleResolutionFailedRestrictKeepsPending(t *testing.T) {
	t.Parallel()

	client := &fakeClient{restictErr: errors.New("no rights")}
	store := &fakeRestrictionStore{users: map[int64]*db.UserRecord{}}
	c := newTestCoordinator(client, store)
	ctx := context.Background()

	if err := c.HandleTrigger(ctx, triggerEvent(42, 9), rules.ReasonWord); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	res := &event.Resolution{Verb: event.VerbBan, TargetID: 42}
	if err := c.HandleResolution(ctx, callbackEvent("ban_42"), res); err == nil {
		t.Fatal("expected restrict error")
	}

	// The retry must still find the pending entry and apply.
	client.restictErr = nil
	if err := c.HandleResolution(ctx, callbackEvent("ban_42"), res); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(client.restricted) != 1 {
		t.Fatalf("restricted = %v", client.restricted)
	}
}
