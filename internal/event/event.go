package event

import (
	"github.com/iamwavecut/totem/internal/platform"
	"github.com/iamwavecut/totem/internal/rules"
)

// Kind discriminates the inbound union. It is decided once, at the
// platform-adapter boundary; downstream code never re-inspects raw updates.
type Kind int

const (
	KindUnknown Kind = iota
	KindMessage
	KindCommand
	KindCallback
	KindJoin
	KindMembership
)

type Status string

const (
	StatusLeft          Status = "left"
	StatusMember        Status = "member"
	StatusRestricted    Status = "restricted"
	StatusAdministrator Status = "administrator"
	StatusKicked        Status = "kicked"
)

type (
	// Inbound is one normalized group event. Exactly the payload matching
	// Kind is non-nil.
	Inbound struct {
		Kind   Kind
		ChatID int64
		Sender platform.User

		Message    *Message
		Command    *Command
		Callback   *Callback
		Join       *Join
		Membership *Membership
	}

	Message struct {
		ID      int
		Text    string
		IsReply bool
	}

	Command struct {
		MessageID int
		Name      string
		Qualifier string
	}

	Callback struct {
		ID   string
		Data string
	}

	Join struct {
		MessageID int
		Users     []platform.User
	}

	Membership struct {
		Subject platform.User
		From    Status
		To      Status
	}
)

type Action int

const (
	ActionNone Action = iota
	ActionWelcome
	ActionModerate
	ActionLog
	ActionResolve
	ActionToggle
)

const (
	VerbBan   = "ban"
	VerbAllow = "allow"
)

type (
	Resolution struct {
		Verb     string
		TargetID int64
	}

	// Decision is the single outcome of classifying one event.
	Decision struct {
		Action     Action
		Reason     rules.Reason
		Transition string
		Resolution *Resolution
		Toggle     string
	}
)
