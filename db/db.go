// Package db provides the Postgres connection helper, schema migration, and the Postgres-backed
// override persister used when OVERRIDE_BACKEND=postgres.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'

	"github.com/onnwee/channel-tender/archive"
	"github.com/onnwee/channel-tender/config"
)

// Connect opens a Postgres connection for dsn.
func Connect(dsn string) (*sql.DB, error) {
	dbc, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	dbc.SetMaxOpenConns(4)
	dbc.SetConnMaxIdleTime(5 * time.Minute)
	return dbc, nil
}

// Migrate applies the idempotent schema. It is the fallback for deployments where versioned
// migrations cannot run.
func Migrate(ctx context.Context, dbc *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channel_overrides (
			channel_id BIGINT PRIMARY KEY,
			archived_at TIMESTAMPTZ NOT NULL,
			utc_offset INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for i, s := range stmts {
		if _, err := dbc.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// OverrideTable persists the override set in channel_overrides. Every Save rewrites the table in a
// single transaction, mirroring the whole-file rewrite of the file backend.
type OverrideTable struct{ DB *sql.DB }

var _ archive.Persister = (*OverrideTable)(nil)

// Load returns the stored entries in insertion order.
func (o *OverrideTable) Load(ctx context.Context) ([]archive.Entry, error) {
	rows, err := o.DB.QueryContext(ctx,
		`SELECT channel_id, archived_at, utc_offset FROM channel_overrides ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	var out []archive.Entry
	for rows.Next() {
		var (
			id     int64
			at     time.Time
			offset int
		)
		if err := rows.Scan(&id, &at, &offset); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		loc := time.UTC
		if offset != 0 {
			loc = time.FixedZone("", offset)
		}
		out = append(out, archive.Entry{ChannelID: uint64(id), Timestamp: at.In(loc)})
	}
	return out, rows.Err()
}

// Save replaces the table contents with entries.
func (o *OverrideTable) Save(ctx context.Context, entries []archive.Entry) error {
	tx, err := o.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_overrides`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear overrides: %w", err)
	}
	for i, e := range entries {
		_, offset := e.Timestamp.Zone()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO channel_overrides (channel_id, archived_at, utc_offset, position, updated_at) VALUES ($1, $2, $3, $4, NOW())`,
			int64(e.ChannelID), e.Timestamp.UTC(), offset, i); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert override %d: %w", e.ChannelID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit overrides: %w", err)
	}
	return nil
}

// OpenPersister returns the override persister selected by cfg.OverrideBackend. For the postgres
// backend it also returns the open connection (already migrated), which the caller must close.
func OpenPersister(ctx context.Context, cfg *config.Config) (archive.Persister, *sql.DB, error) {
	switch cfg.OverrideBackend {
	case "", "file":
		return &archive.FilePersister{Path: cfg.OverrideFile}, nil, nil
	case "postgres":
		dbc, err := Connect(cfg.DBDsn)
		if err != nil {
			return nil, nil, err
		}
		if err := Prepare(ctx, dbc); err != nil {
			_ = dbc.Close()
			return nil, nil, err
		}
		return &OverrideTable{DB: dbc}, dbc, nil
	default:
		return nil, nil, fmt.Errorf("unknown override backend %q", cfg.OverrideBackend)
	}
}
