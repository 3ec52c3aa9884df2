package event

import (
	"context"
	"errors"
	"testing"

	"github.com/iamwavecut/totem/internal/db"
	"github.com/iamwavecut/totem/internal/platform"
	"github.com/iamwavecut/totem/internal/rules"
)

type fakeStore struct {
	users map[int64]*db.UserRecord
	err   error
}

func (s *fakeStore) GetUser(_ context.Context, userID int64) (*db.UserRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	rec, ok := s.users[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return rec, nil
}

func testClassifier(store *fakeStore) *Classifier {
	set := &rules.Set{
		TriggerWords:   map[string]struct{}{"casino": {}},
		Allowed:        map[string]struct{}{},
		LinkIndicators: []string{"http://"},
		MinMessages:    10,
	}
	self := platform.User{ID: 42, Username: "totem_bot"}
	return NewClassifier(set, store, self, 7777)
}

func msgEvent(senderID int64, text string) *Inbound {
	return &Inbound{
		Kind:    KindMessage,
		ChatID:  -100,
		Sender:  platform.User{ID: senderID},
		Message: &Message{ID: 5, Text: text},
	}
}

func TestClassifyMessageTriggers(t *testing.T) {
	t.Parallel()

	c := testClassifier(&fakeStore{})
	d := c.Classify(context.Background(), msgEvent(1, "join my http://spam.example now"))
	if d.Action != ActionModerate {
		t.Fatalf("action = %v, want moderate", d.Action)
	}
	if d.Reason != rules.ReasonLink {
		t.Fatalf("reason = %s, want link", d.Reason)
	}
}

func TestClassifyMessageAdminBypass(t *testing.T) {
	t.Parallel()

	store := &fakeStore{users: map[int64]*db.UserRecord{
		1: {Profile: db.UserProfile{ID: 1}, Admin: &db.Admin{UserID: 1}},
	}}
	c := testClassifier(store)
	d := c.Classify(context.Background(), msgEvent(1, "best casino http://spam.example"))
	if d.Action != ActionNone {
		t.Fatalf("admin message classified as %v", d.Action)
	}
}

func TestClassifyMessageExperiencedUser(t *testing.T) {
	t.Parallel()

	store := &fakeStore{users: map[int64]*db.UserRecord{
		1: {Profile: db.UserProfile{ID: 1, MsgCount: 50}},
	}}
	c := testClassifier(store)
	d := c.Classify(context.Background(), msgEvent(1, "best casino http://spam.example"))
	if d.Action != ActionNone {
		t.Fatalf("experienced user message classified as %v", d.Action)
	}
}

func TestClassifyMessageStoreErrorTreatedAsNew(t *testing.T) {
	t.Parallel()

	c := testClassifier(&fakeStore{err: errors.New("db gone")})
	d := c.Classify(context.Background(), msgEvent(1, "best casino offers"))
	if d.Action != ActionModerate {
		t.Fatalf("action = %v, want moderate despite store error", d.Action)
	}
}

func TestClassifyMessageRepliesAndEmptySkipped(t *testing.T) {
	t.Parallel()

	c := testClassifier(&fakeStore{})
	reply := msgEvent(1, "casino")
	reply.Message.IsReply = true
	if d := c.Classify(context.Background(), reply); d.Action != ActionNone {
		t.Fatalf("reply classified as %v", d.Action)
	}
	if d := c.Classify(context.Background(), msgEvent(1, "")); d.Action != ActionNone {
		t.Fatalf("empty message classified as %v", d.Action)
	}
}

func TestClassifyMembership(t *testing.T) {
	t.Parallel()

	c := testClassifier(&fakeStore{})
	ev := &Inbound{
		Kind:   KindMembership,
		Sender: platform.User{ID: 2},
		Membership: &Membership{
			Subject: platform.User{ID: 3},
			From:    StatusMember,
			To:      StatusKicked,
		},
	}
	d := c.Classify(context.Background(), ev)
	if d.Action != ActionLog {
		t.Fatalf("action = %v, want log", d.Action)
	}
	if d.Transition != "logMember2Kicked" {
		t.Fatalf("transition = %q", d.Transition)
	}

	// Undefined edge: nothing to log.
	ev.Membership.To = StatusMember
	if d := c.Classify(context.Background(), ev); d.Action != ActionNone {
		t.Fatalf("undefined edge classified as %v", d.Action)
	}

	// The bot's own membership changes are ignored.
	ev.Membership.Subject.ID = 42
	ev.Membership.To = StatusKicked
	if d := c.Classify(context.Background(), ev); d.Action != ActionNone {
		t.Fatalf("self membership classified as %v", d.Action)
	}
}

func TestClassifyCommand(t *testing.T) {
	t.Parallel()

	c := testClassifier(&fakeStore{})

	tests := []struct {
		name      string
		senderID  int64
		cmd       Command
		want      Action
		toggle    string
	}{
		{"hi", 1, Command{Name: "hi"}, ActionWelcome, ""},
		{"hi with own qualifier", 1, Command{Name: "hi", Qualifier: "totem_bot"}, ActionWelcome, ""},
		{"hi with foreign qualifier", 1, Command{Name: "hi", Qualifier: "other_bot"}, ActionNone, ""},
		{"unknown command", 1, Command{Name: "start"}, ActionNone, ""},
		{"logmembers by operator", 7777, Command{Name: "logmembers"}, ActionToggle, "members"},
		{"logmessages by operator", 7777, Command{Name: "logmessages"}, ActionToggle, "messages"},
		{"logmembers by stranger", 1, Command{Name: "logmembers"}, ActionNone, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := &Inbound{
				Kind:    KindCommand,
				Sender:  platform.User{ID: tt.senderID},
				Command: &tt.cmd,
			}
			d := c.Classify(context.Background(), ev)
			if d.Action != tt.want {
				t.Fatalf("action = %v, want %v", d.Action, tt.want)
			}
			if d.Toggle != tt.toggle {
				t.Fatalf("toggle = %q, want %q", d.Toggle, tt.toggle)
			}
		})
	}
}

func TestClassifyCallback(t *testing.T) {
	t.Parallel()

	c := testClassifier(&fakeStore{})

	tests := []struct {
		name   string
		data   string
		want   Action
		verb   string
		target int64
	}{
		{"ban", "ban_123456", ActionResolve, VerbBan, 123456},
		{"allow", "allow_42", ActionResolve, VerbAllow, 42},
		{"unknown verb", "mute_42", ActionNone, "", 0},
		{"no separator", "ban42", ActionNone, "", 0},
		{"bad id", "ban_abc", ActionNone, "", 0},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ev := &Inbound{
				Kind:     KindCallback,
				Sender:   platform.User{ID: 7777},
				Callback: &Callback{ID: "cb1", Data: tt.data},
			}
			d := c.Classify(context.Background(), ev)
			if d.Action != tt.want {
				t.Fatalf("action = %v, want %v", d.Action, tt.want)
			}
			if tt.want == ActionResolve {
				if d.Resolution == nil || d.Resolution.Verb != tt.verb || d.Resolution.TargetID != tt.target {
					t.Fatalf("resolution = %+v", d.Resolution)
				}
			}
		})
	}
}

func TestClassifyUnknownKind(t *testing.T) {
	t.Parallel()

	c := testClassifier(&fakeStore{})
	if d := c.Classify(context.Background(), &Inbound{Kind: KindUnknown}); d.Action != ActionNone {
		t.Fatalf("unknown kind classified as %v", d.Action)
	}
	if d := c.Classify(context.Background(), nil); d.Action != ActionNone {
		t.Fatalf("nil event classified as %v", d.Action)
	}
}
