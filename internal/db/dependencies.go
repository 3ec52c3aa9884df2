package db

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by reads when no row matches.
var ErrNotFound = errors.New("not found")

// Client is the member/rights store contract. Every call runs as a single
// logical transaction; partial writes never become visible.
type Client interface {
	UpsertUser(ctx context.Context, rec *UserRecord) error
	UpsertAdmin(ctx context.Context, admin *Admin, rights *AdminRights) error
	UpsertRestriction(ctx context.Context, restriction *Restriction, rights *RestrictedRights) error

	GetUser(ctx context.Context, userID int64) (*UserRecord, error)
	UpdateStats(ctx context.Context, userID int64, stats Stats) error
	DeleteUser(ctx context.Context, userID int64) error

	TouchTable(ctx context.Context, tableName string) error
	GetLastUpdated(ctx context.Context, tableName string) (time.Time, error)

	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error

	Close() error
}
