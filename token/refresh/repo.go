package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

// ErrNotFound is returned by Verify when a token is absent, revoked or expired.
// It matches apperrors.ErrInvalidRefreshToken.
var ErrNotFound = apperrors.Wrapf(apperrors.ErrInvalidRefreshToken, "refresh token not found")

// Record is the server-side entry for an issued refresh token.
// Only a SHA-256 hash of the token is kept.
type Record struct {
	OwnerID   string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record is no longer valid at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Registry is the revocable store of live refresh tokens. Implementations must be
// safe for concurrent use. Revoking an absent token is a no-op.
type Registry interface {
	// Store records token for ownerID, valid for ttl.
	Store(ctx context.Context, ownerID, token string, ttl time.Duration) error
	// Verify returns the record for token, or ErrNotFound. Expired records are deleted on sight.
	Verify(ctx context.Context, token string) (*Record, error)
	Revoke(ctx context.Context, token string) error
	RevokeAll(ctx context.Context, ownerID string) error
	// Sweep deletes every expired record and returns how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// Pinger is implemented by registries backed by an external store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashToken returns the hex SHA-256 of a refresh token, the key every registry stores.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
