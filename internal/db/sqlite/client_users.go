package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/iamwavecut/totem/internal/db"
)

const userUpsertQuery = `
	INSERT INTO users (
		user_id, username, first_name, last_name, real_name, phone,
		is_bot, is_premium, place, nationality, msg_count, first_join,
		updated_on, is_in_group
	)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, COALESCE(?, datetime('now')), datetime('now'), ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username=excluded.username,
		first_name=excluded.first_name,
		last_name=excluded.last_name,
		real_name=CASE WHEN excluded.real_name != '' THEN excluded.real_name ELSE users.real_name END,
		phone=CASE WHEN excluded.phone != '' THEN excluded.phone ELSE users.phone END,
		is_bot=excluded.is_bot,
		is_premium=excluded.is_premium,
		place=COALESCE(excluded.place, users.place),
		nationality=COALESCE(excluded.nationality, users.nationality),
		msg_count=MAX(users.msg_count, excluded.msg_count),
		first_join=COALESCE(users.first_join, excluded.first_join),
		updated_on=excluded.updated_on,
		is_in_group=excluded.is_in_group
`

func (s *sqliteClient) UpsertUser(ctx context.Context, rec *db.UserRecord) error {
	if rec == nil {
		return errors.New("nil user record")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin upsert user")
	}
	defer tx.Rollback()

	if err := upsertUserTx(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertUserTx(ctx context.Context, tx *sqlx.Tx, rec *db.UserRecord) error {
	placeID, err := lookupID(ctx, tx, "places", "place_id", "place_name", rec.Profile.PlaceName)
	if err != nil {
		return errors.Wrap(err, "normalize place")
	}
	nationalityID, err := lookupID(ctx, tx, "nationalities", "nationality_id", "nationality", rec.Profile.Nationality)
	if err != nil {
		return errors.Wrap(err, "normalize nationality")
	}

	var firstJoin interface{}
	if rec.Profile.FirstJoin.Valid {
		firstJoin = rec.Profile.FirstJoin.Time
	}

	p := rec.Profile
	if _, err := tx.ExecContext(ctx, userUpsertQuery,
		p.ID, p.Username, p.FirstName, p.LastName, p.RealName, p.Phone,
		p.IsBot, p.IsPremium, placeID, nationalityID, p.MsgCount, firstJoin,
		p.IsInGroup,
	); err != nil {
		return errors.Wrap(err, "upsert user row")
	}

	if rec.Admin != nil {
		if err := upsertAdminTx(ctx, tx, rec.Admin, rec.AdminRights); err != nil {
			return err
		}
	}
	if rec.Restriction != nil {
		if err := upsertRestrictionTx(ctx, tx, rec.Restriction, rec.RestrictedRights); err != nil {
			return err
		}
	}
	return nil
}

// lookupID upserts a free-text name into its lookup table and returns the
// id. Empty names map to NULL.
func lookupID(ctx context.Context, tx *sqlx.Tx, table, idCol, nameCol, name string) (sql.NullInt64, error) {
	if name == "" {
		return sql.NullInt64{}, nil
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?) ON CONFLICT(%s) DO NOTHING", table, nameCol, nameCol)
	if _, err := tx.ExecContext(ctx, insert, name); err != nil {
		return sql.NullInt64{}, err
	}
	var id int64
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", idCol, table, nameCol)
	if err := tx.GetContext(ctx, &id, query, name); err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: id, Valid: true}, nil
}

func (s *sqliteClient) GetUser(ctx context.Context, userID int64) (*db.UserRecord, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec := &db.UserRecord{}
	err := s.db.GetContext(ctx, &rec.Profile, `
		SELECT
			u.user_id, u.username, u.first_name, u.last_name, u.real_name, u.phone,
			u.is_bot, u.is_premium,
			COALESCE(p.place_name, '') AS place_name,
			COALESCE(n.nationality, '') AS nationality,
			u.msg_count, u.first_join, u.updated_on, u.is_in_group
		FROM users u
		LEFT JOIN places p ON p.place_id = u.place
		LEFT JOIN nationalities n ON n.nationality_id = u.nationality
		WHERE u.user_id = ?`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, db.ErrNotFound
		}
		return nil, errors.Wrap(err, "get user profile")
	}

	admin := &db.Admin{}
	switch err := s.db.GetContext(ctx, admin, `SELECT user_id, is_creator, updated_on FROM admins WHERE user_id = ?`, userID); err {
	case nil:
		rec.Admin = admin
	case sql.ErrNoRows:
	default:
		return nil, errors.Wrap(err, "get admin")
	}
	if rec.Admin != nil {
		rights := &db.AdminRights{}
		switch err := s.db.GetContext(ctx, rights, `SELECT * FROM admin_rights WHERE user_id = ?`, userID); err {
		case nil:
			rec.AdminRights = rights
		case sql.ErrNoRows:
		default:
			return nil, errors.Wrap(err, "get admin rights")
		}
	}

	restriction := &db.Restriction{}
	switch err := s.db.GetContext(ctx, restriction, `SELECT user_id, is_banned, is_kicked, restricted_by, restriction_date, until_date, updated_on FROM restricted WHERE user_id = ?`, userID); err {
	case nil:
		rec.Restriction = restriction
	case sql.ErrNoRows:
	default:
		return nil, errors.Wrap(err, "get restriction")
	}
	if rec.Restriction != nil {
		rights := &db.RestrictedRights{}
		switch err := s.db.GetContext(ctx, rights, `SELECT * FROM restricted_rights WHERE user_id = ?`, userID); err {
		case nil:
			rec.RestrictedRights = rights
		case sql.ErrNoRows:
		default:
			return nil, errors.Wrap(err, "get restricted rights")
		}
	}

	return rec, nil
}

func (s *sqliteClient) UpdateStats(ctx context.Context, userID int64, stats db.Stats) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var res sql.Result
	var err error
	if stats.IsInGroup != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE users SET msg_count = msg_count + ?, is_in_group = ?, updated_on = datetime('now')
			WHERE user_id = ?`, stats.MsgCountDelta, *stats.IsInGroup, userID)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE users SET msg_count = msg_count + ?, updated_on = datetime('now')
			WHERE user_id = ?`, stats.MsgCountDelta, userID)
	}
	if err != nil {
		return errors.Wrap(err, "update stats")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "update stats rows affected")
	}
	if affected == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (s *sqliteClient) DeleteUser(ctx context.Context, userID int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Dependent admin/restriction rows go with the user via ON DELETE CASCADE.
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	return errors.Wrap(err, "delete user")
}

func (s *sqliteClient) TouchTable(ctx context.Context, tableName string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO last_updated (table_name, updated_on)
		VALUES (?, datetime('now'))
		ON CONFLICT(table_name) DO UPDATE SET updated_on=excluded.updated_on`, tableName)
	return errors.Wrap(err, "touch table")
}

func (s *sqliteClient) GetLastUpdated(ctx context.Context, tableName string) (time.Time, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var updatedOn time.Time
	err := s.db.GetContext(ctx, &updatedOn, `SELECT updated_on FROM last_updated WHERE table_name = ?`, tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, db.ErrNotFound
		}
		return time.Time{}, errors.Wrap(err, "get last updated")
	}
	return updatedOn, nil
}
