package db

import (
	"database/sql"
	"strconv"
	"strings"
	"time"
)

type (
	// UserProfile is the users row plus the denormalized place/nationality
	// names. On write the names are normalized into their lookup tables, on
	// read they are joined back.
	UserProfile struct {
		ID          int64        `db:"user_id"`
		Username    string       `db:"username"`
		FirstName   string       `db:"first_name"`
		LastName    string       `db:"last_name"`
		RealName    string       `db:"real_name"`
		Phone       string       `db:"phone"`
		IsBot       bool         `db:"is_bot"`
		IsPremium   bool         `db:"is_premium"`
		PlaceName   string       `db:"place_name"`
		Nationality string       `db:"nationality"`
		MsgCount    int64        `db:"msg_count"`
		FirstJoin   sql.NullTime `db:"first_join"`
		UpdatedOn   time.Time    `db:"updated_on"`
		IsInGroup   bool         `db:"is_in_group"`
	}

	Admin struct {
		UserID    int64     `db:"user_id"`
		IsCreator bool      `db:"is_creator"`
		UpdatedOn time.Time `db:"updated_on"`
	}

	AdminRights struct {
		UserID         int64 `db:"user_id"`
		ChangeInfo     bool  `db:"change_info"`
		PostMessages   bool  `db:"post_messages"`
		EditMessages   bool  `db:"edit_messages"`
		DeleteMessages bool  `db:"delete_messages"`
		BanUsers       bool  `db:"ban_users"`
		InviteUsers    bool  `db:"invite_users"`
		PinMessages    bool  `db:"pin_messages"`
		AddAdmins      bool  `db:"add_admins"`
		Anonymous      bool  `db:"anonymous"`
		ManageCall     bool  `db:"manage_call"`
		Other          bool  `db:"other"`
		ManageTopics   bool  `db:"manage_topics"`
	}

	// Restriction records a ban or a kick. The two flags are written by
	// independent sync categories and are not mutually exclusive.
	Restriction struct {
		UserID          int64         `db:"user_id"`
		IsBanned        bool          `db:"is_banned"`
		IsKicked        bool          `db:"is_kicked"`
		RestrictedBy    sql.NullInt64 `db:"restricted_by"`
		RestrictionDate sql.NullTime  `db:"restriction_date"`
		UntilDate       sql.NullTime  `db:"until_date"`
		UpdatedOn       time.Time     `db:"updated_on"`
	}

	// RestrictedRights lists revoked capabilities: a set flag means the
	// user may NOT do the thing.
	RestrictedRights struct {
		UserID          int64 `db:"user_id"`
		ViewMessages    bool  `db:"view_messages"`
		SendMessages    bool  `db:"send_messages"`
		SendMedia       bool  `db:"send_media"`
		SendStickers    bool  `db:"send_stickers"`
		SendGifs        bool  `db:"send_gifs"`
		SendGames       bool  `db:"send_games"`
		SendInline      bool  `db:"send_inline"`
		EmbedLinks      bool  `db:"embed_links"`
		SendPolls       bool  `db:"send_polls"`
		ChangeInfo      bool  `db:"change_info"`
		InviteUsers     bool  `db:"invite_users"`
		PinMessages     bool  `db:"pin_messages"`
		ManageTopics    bool  `db:"manage_topics"`
		SendPhotos      bool  `db:"send_photos"`
		SendVideos      bool  `db:"send_videos"`
		SendRoundvideos bool  `db:"send_roundvideos"`
		SendAudios      bool  `db:"send_audios"`
		SendVoices      bool  `db:"send_voices"`
		SendDocs        bool  `db:"send_docs"`
		SendPlain       bool  `db:"send_plain"`
	}

	// UserRecord is a full user read: the profile plus whatever admin or
	// restriction sub-records exist. It doubles as the upsert input, where
	// nil sub-records mean "leave that aspect alone".
	UserRecord struct {
		Profile          UserProfile
		Admin            *Admin
		AdminRights      *AdminRights
		Restriction      *Restriction
		RestrictedRights *RestrictedRights
	}

	// Stats carries the incremental counters UpdateStats applies.
	Stats struct {
		MsgCountDelta int64
		IsInGroup     *bool
	}
)

func (r *UserRecord) IsAdmin() bool {
	return r != nil && r.Admin != nil
}

// DisplayName renders the operator-facing user reference: full name with
// username when known, bare username otherwise, numeric id as last resort.
func (p *UserProfile) DisplayName() string {
	full := strings.TrimSpace(p.FirstName + " " + p.LastName)
	switch {
	case full != "" && p.Username != "":
		return full + " (@" + p.Username + ")"
	case full != "":
		return full
	case p.Username != "":
		return "@" + p.Username
	default:
		return "ID: " + strconv.FormatInt(p.ID, 10)
	}
}
