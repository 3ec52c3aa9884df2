package event

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/totem/internal/db"
	"github.com/iamwavecut/totem/internal/platform"
	"github.com/iamwavecut/totem/internal/rules"
)

type memberStore interface {
	GetUser(ctx context.Context, userID int64) (*db.UserRecord, error)
}

type ruleEvaluator interface {
	Evaluate(text string, userMessageCount int) rules.Verdict
}

// Classifier turns one inbound event into exactly one decision. It never
// talks to the platform; executing decisions is the handlers' job.
type Classifier struct {
	rules      ruleEvaluator
	store      memberStore
	self       platform.User
	operatorID int64
}

func NewClassifier(evaluator ruleEvaluator, store memberStore, self platform.User, operatorID int64) *Classifier {
	return &Classifier{
		rules:      evaluator,
		store:      store,
		self:       self,
		operatorID: operatorID,
	}
}

func (c *Classifier) Classify(ctx context.Context, ev *Inbound) Decision {
	if ev == nil {
		return Decision{}
	}
	switch ev.Kind {
	case KindMembership:
		return c.classifyMembership(ev)
	case KindJoin:
		return Decision{Action: ActionWelcome}
	case KindMessage:
		return c.classifyMessage(ctx, ev)
	case KindCommand:
		return c.classifyCommand(ev)
	case KindCallback:
		return c.classifyCallback(ev)
	}
	return Decision{}
}

func (c *Classifier) classifyMembership(ev *Inbound) Decision {
	m := ev.Membership
	if m == nil || m.Subject.ID == c.self.ID {
		return Decision{}
	}
	action, ok := TransitionAction(m.From, m.To)
	if !ok {
		log.WithFields(log.Fields{
			"from": m.From,
			"to":   m.To,
		}).Trace("unrecognized membership transition")
		return Decision{}
	}
	return Decision{Action: ActionLog, Transition: action}
}

func (c *Classifier) classifyMessage(ctx context.Context, ev *Inbound) Decision {
	msg := ev.Message
	if msg == nil || msg.IsReply || msg.Text == "" {
		return Decision{}
	}

	msgCount := 0
	rec, err := c.store.GetUser(ctx, ev.Sender.ID)
	switch {
	case err == nil:
		if rec.IsAdmin() {
			return Decision{}
		}
		msgCount = int(rec.Profile.MsgCount)
	case errors.Is(err, db.ErrNotFound):
		// Unknown sender counts as brand new.
	default:
		log.WithError(err).WithField("userID", ev.Sender.ID).Warn("cant load sender, treating as new user")
	}

	verdict := c.rules.Evaluate(msg.Text, msgCount)
	if !verdict.Triggered {
		return Decision{}
	}
	return Decision{Action: ActionModerate, Reason: verdict.Reason}
}

func (c *Classifier) classifyCommand(ev *Inbound) Decision {
	cmd := ev.Command
	if cmd == nil {
		return Decision{}
	}
	if cmd.Qualifier != "" && !strings.EqualFold(cmd.Qualifier, c.self.Username) {
		return Decision{}
	}
	switch strings.ToLower(cmd.Name) {
	case "hi":
		return Decision{Action: ActionWelcome}
	case "logmembers":
		if ev.Sender.ID != c.operatorID {
			return Decision{}
		}
		return Decision{Action: ActionToggle, Toggle: "members"}
	case "logmessages":
		if ev.Sender.ID != c.operatorID {
			return Decision{}
		}
		return Decision{Action: ActionToggle, Toggle: "messages"}
	}
	return Decision{}
}

func (c *Classifier) classifyCallback(ev *Inbound) Decision {
	cb := ev.Callback
	if cb == nil {
		return Decision{}
	}
	verb, rawID, ok := strings.Cut(cb.Data, "_")
	if !ok {
		return Decision{}
	}
	if verb != VerbBan && verb != VerbAllow {
		return Decision{}
	}
	targetID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return Decision{}
	}
	return Decision{Action: ActionResolve, Resolution: &Resolution{Verb: verb, TargetID: targetID}}
}
