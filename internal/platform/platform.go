// Package platform defines the messaging capabilities the moderation
// pipeline consumes. Implementations live in subpackages; callers must
// treat ErrUnsupported as "this transport cannot serve the request", not
// as a failure.
package platform

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned when the underlying transport cannot serve a
// capability (e.g. enumerating plain members over a bot-token connection).
var ErrUnsupported = errors.New("capability unsupported by transport")

type ParticipantFilter string

const (
	FilterRecent ParticipantFilter = "recent"
	FilterBanned ParticipantFilter = "banned"
	FilterKicked ParticipantFilter = "kicked"
	FilterAdmins ParticipantFilter = "admins"
)

type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
	IsPremium bool
}

// FullUser carries the extended profile fields that are only available
// through a dedicated profile request.
type FullUser struct {
	User
	RealName string
	Phone    string
}

// AdminRights mirrors the per-admin capability flags of the chat platform.
type AdminRights struct {
	ChangeInfo     bool
	PostMessages   bool
	EditMessages   bool
	DeleteMessages bool
	BanUsers       bool
	InviteUsers    bool
	PinMessages    bool
	AddAdmins      bool
	Anonymous      bool
	ManageCall     bool
	Other          bool
	ManageTopics   bool
}

// RestrictedRights lists revoked capabilities: a set flag means the user
// may NOT do the thing.
type RestrictedRights struct {
	ViewMessages    bool
	SendMessages    bool
	SendMedia       bool
	SendStickers    bool
	SendGifs        bool
	SendGames       bool
	SendInline      bool
	EmbedLinks      bool
	SendPolls       bool
	ChangeInfo      bool
	InviteUsers     bool
	PinMessages     bool
	ManageTopics    bool
	SendPhotos      bool
	SendVideos      bool
	SendRoundvideos bool
	SendAudios      bool
	SendVoices      bool
	SendDocs        bool
	SendPlain       bool
}

// Participant is one row of a paginated participant listing. Exactly one
// of AdminRights/RestrictedRights is set depending on the filter that
// produced it.
type Participant struct {
	User             User
	IsCreator        bool
	AdminRights      *AdminRights
	RestrictedRights *RestrictedRights
	RestrictedBy     int64
	RestrictionDate  time.Time
	UntilDate        time.Time
	Banned           bool
	Kicked           bool
}

// AdminLogEvent is one entry of the chat's recent admin actions feed.
type AdminLogEvent struct {
	ID     int64
	Kind   string
	UserID int64
	Date   time.Time
}

type Button struct {
	Label string
	Data  string
}

type Client interface {
	Self() User

	SendMessage(ctx context.Context, chatID int64, text string) error
	SendReply(ctx context.Context, chatID int64, replyTo int, text string) error
	// SendPrompt sends a message with one row of inline buttons whose
	// presses come back as callback events carrying the button Data.
	SendPrompt(ctx context.Context, chatID int64, text string, buttons []Button) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	RestrictUser(ctx context.Context, chatID, userID int64, rights RestrictedRights, until time.Time) error

	UserFullInfo(ctx context.Context, chatID, userID int64) (*FullUser, error)
	// Participants returns one page of the chat's participant list for the
	// given filter. Implementations return ErrUnsupported for filters the
	// transport cannot enumerate.
	Participants(ctx context.Context, chatID int64, filter ParticipantFilter, offset, limit int) ([]Participant, error)
	// AdminLog returns up to limit recent admin actions, optionally filtered
	// by event kind. Transports without an admin-log feed return
	// ErrUnsupported.
	AdminLog(ctx context.Context, chatID int64, limit int, kinds []string) ([]AdminLogEvent, error)
}
