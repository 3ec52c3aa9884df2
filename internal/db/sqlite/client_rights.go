package sqlite

import (
	"context"
	"database/sql"

	"github.com/iamwavecut/tool"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iamwavecut/totem/internal/db"
)

const adminRightsUpsertQuery = `
	INSERT INTO admin_rights (
		user_id, change_info, post_messages, edit_messages, delete_messages,
		ban_users, invite_users, pin_messages, add_admins, anonymous,
		manage_call, other, manage_topics
	)
	VALUES (
		:user_id, :change_info, :post_messages, :edit_messages, :delete_messages,
		:ban_users, :invite_users, :pin_messages, :add_admins, :anonymous,
		:manage_call, :other, :manage_topics
	)
	ON CONFLICT(user_id) DO UPDATE SET
		change_info=excluded.change_info,
		post_messages=excluded.post_messages,
		edit_messages=excluded.edit_messages,
		delete_messages=excluded.delete_messages,
		ban_users=excluded.ban_users,
		invite_users=excluded.invite_users,
		pin_messages=excluded.pin_messages,
		add_admins=excluded.add_admins,
		anonymous=excluded.anonymous,
		manage_call=excluded.manage_call,
		other=excluded.other,
		manage_topics=excluded.manage_topics
`

const restrictedRightsUpsertQuery = `
	INSERT INTO restricted_rights (
		user_id, view_messages, send_messages, send_media, send_stickers,
		send_gifs, send_games, send_inline, embed_links, send_polls,
		change_info, invite_users, pin_messages, manage_topics, send_photos,
		send_videos, send_roundvideos, send_audios, send_voices, send_docs,
		send_plain
	)
	VALUES (
		:user_id, :view_messages, :send_messages, :send_media, :send_stickers,
		:send_gifs, :send_games, :send_inline, :embed_links, :send_polls,
		:change_info, :invite_users, :pin_messages, :manage_topics, :send_photos,
		:send_videos, :send_roundvideos, :send_audios, :send_voices, :send_docs,
		:send_plain
	)
	ON CONFLICT(user_id) DO UPDATE SET
		view_messages=excluded.view_messages,
		send_messages=excluded.send_messages,
		send_media=excluded.send_media,
		send_stickers=excluded.send_stickers,
		send_gifs=excluded.send_gifs,
		send_games=excluded.send_games,
		send_inline=excluded.send_inline,
		embed_links=excluded.embed_links,
		send_polls=excluded.send_polls,
		change_info=excluded.change_info,
		invite_users=excluded.invite_users,
		pin_messages=excluded.pin_messages,
		manage_topics=excluded.manage_topics,
		send_photos=excluded.send_photos,
		send_videos=excluded.send_videos,
		send_roundvideos=excluded.send_roundvideos,
		send_audios=excluded.send_audios,
		send_voices=excluded.send_voices,
		send_docs=excluded.send_docs,
		send_plain=excluded.send_plain
`

func (s *sqliteClient) UpsertAdmin(ctx context.Context, admin *db.Admin, rights *db.AdminRights) error {
	if admin == nil {
		return errors.New("nil admin")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin upsert admin")
	}
	defer tx.Rollback()

	if err := upsertAdminTx(ctx, tx, admin, rights); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteClient) UpsertRestriction(ctx context.Context, restriction *db.Restriction, rights *db.RestrictedRights) error {
	if restriction == nil {
		return errors.New("nil restriction")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin upsert restriction")
	}
	defer tx.Rollback()

	if err := upsertRestrictionTx(ctx, tx, restriction, rights); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertAdminTx(ctx context.Context, tx *sqlx.Tx, admin *db.Admin, rights *db.AdminRights) error {
	if err := ensureUserRow(ctx, tx, admin.UserID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_creator, updated_on)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			is_creator=excluded.is_creator,
			updated_on=excluded.updated_on`, admin.UserID, admin.IsCreator); err != nil {
		return errors.Wrap(err, "upsert admin")
	}
	if rights == nil {
		return nil
	}
	rightsRow := *rights
	rightsRow.UserID = admin.UserID
	return errors.Wrap(tool.Err(tx.NamedExecContext(ctx, adminRightsUpsertQuery, &rightsRow)), "upsert admin rights")
}

func upsertRestrictionTx(ctx context.Context, tx *sqlx.Tx, restriction *db.Restriction, rights *db.RestrictedRights) error {
	if err := ensureUserRow(ctx, tx, restriction.UserID); err != nil {
		return err
	}

	// A restricting user we have never seen is stored as NULL, not as a
	// dangling reference.
	restrictedBy := restriction.RestrictedBy
	if restrictedBy.Valid {
		var known int
		if err := tx.GetContext(ctx, &known, `SELECT COUNT(1) FROM users WHERE user_id = ?`, restrictedBy.Int64); err != nil {
			return errors.Wrap(err, "validate restricted_by")
		}
		if known == 0 {
			restrictedBy = sql.NullInt64{}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO restricted (user_id, is_banned, is_kicked, restricted_by, restriction_date, until_date, updated_on)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			is_banned=excluded.is_banned,
			is_kicked=excluded.is_kicked,
			restricted_by=excluded.restricted_by,
			restriction_date=excluded.restriction_date,
			until_date=excluded.until_date,
			updated_on=excluded.updated_on`,
		restriction.UserID, restriction.IsBanned, restriction.IsKicked,
		restrictedBy, restriction.RestrictionDate, restriction.UntilDate); err != nil {
		return errors.Wrap(err, "upsert restriction")
	}

	if rights == nil {
		return nil
	}
	rightsRow := *rights
	rightsRow.UserID = restriction.UserID
	return errors.Wrap(tool.Err(tx.NamedExecContext(ctx, restrictedRightsUpsertQuery, &rightsRow)), "upsert restricted rights")
}

// ensureUserRow keeps the standalone admin/restriction paths usable for
// users that were never profiled; the row stays minimal until the next
// full upsert fills it.
func ensureUserRow(ctx context.Context, tx *sqlx.Tx, userID int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO users (user_id, is_in_group) VALUES (?, 0)
		ON CONFLICT(user_id) DO NOTHING`, userID)
	return errors.Wrap(err, "ensure user row")
}
