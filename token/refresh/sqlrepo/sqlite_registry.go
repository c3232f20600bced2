// Package sqlrepo is a refresh.Registry backed by a SQLite table, for deployments where
// sessions must survive a restart. It uses the pure-Go modernc.org/sqlite driver.
package sqlrepo

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed schema.sql
var schema string

var (
	_ refresh.Registry = (*Registry)(nil)
	_ refresh.Pinger   = (*Registry)(nil)
)

// Registry stores one row per refresh token hash. Times are unix nanoseconds.
type Registry struct {
	db      *sql.DB
	nowFunc func() time.Time
}

type Option func(*Registry)

func WithNowFunc(now func() time.Time) Option {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

// Open creates the database file and its directory if needed and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (*Registry, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	r, err := New(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info().Str("path", path).Msg("sqlite refresh token registry ready")
	return r, nil
}

// New wraps an open database and applies the schema.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Registry, error) {
	r := &Registry{db: db, nowFunc: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return r, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Registry) Store(ctx context.Context, ownerID, token string, ttl time.Duration) error {
	now := r.nowFunc()
	query := `
		INSERT INTO refresh_tokens (token_hash, owner_id, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(token_hash) DO UPDATE SET
			owner_id = excluded.owner_id,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`

	if _, err := r.db.ExecContext(ctx, query, refresh.HashToken(token), ownerID, now.Add(ttl).UnixNano(), now.UnixNano()); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return nil
}

func (r *Registry) Verify(ctx context.Context, token string) (*refresh.Record, error) {
	hash := refresh.HashToken(token)
	query := `
		SELECT owner_id, expires_at, created_at
		FROM refresh_tokens WHERE token_hash = ?`

	var (
		record    = &refresh.Record{TokenHash: hash}
		expiresAt int64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, query, hash).Scan(&record.OwnerID, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, refresh.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	record.ExpiresAt = time.Unix(0, expiresAt).UTC()
	record.CreatedAt = time.Unix(0, createdAt).UTC()

	now := r.nowFunc()
	if record.Expired(now) {
		// Only delete if it is still expired, a concurrent Store may have renewed it
		if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = ? AND expires_at <= ?`, hash, now.UnixNano()); err != nil {
			log.Err(err).Msg("failed to delete expired refresh token")
		}
		return nil, refresh.ErrNotFound
	}
	return record, nil
}

func (r *Registry) Revoke(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = ?`, refresh.HashToken(token)); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (r *Registry) RevokeAll(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to revoke user refresh tokens: %w", err)
	}
	return nil
}

func (r *Registry) Sweep(ctx context.Context) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= ?`, r.nowFunc().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired refresh tokens: %w", err)
	}
	return int(removed), nil
}
