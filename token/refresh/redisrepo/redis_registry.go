// Package redisrepo is a refresh.Registry backed by Redis, shared by every instance of
// the service. Each token hash is a key with a native TTL; a per-owner set indexes the
// hashes so RevokeAll and Sweep do not need to scan token keys.
package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var (
	_ refresh.Registry = (*Registry)(nil)
	_ refresh.Pinger   = (*Registry)(nil)
)

const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second

	scanCount = 100
)

type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type Registry struct {
	client    redis.UniversalClient
	keyPrefix string
	nowFunc   func() time.Time
}

type Option func(*Registry)

func WithNowFunc(now func() time.Time) Option {
	return func(r *Registry) {
		r.nowFunc = now
	}
}

// storedRecord is the JSON value of a token key. Times are unix nanoseconds.
type storedRecord struct {
	OwnerID   string `json:"owner_id"`
	ExpiresAt int64  `json:"expires_at"`
	CreatedAt int64  `json:"created_at"`
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, cfg Config, opts ...Option) (*Registry, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("redis refresh token registry ready")
	return NewWithClient(client, cfg.KeyPrefix, opts...), nil
}

// NewWithClient wraps a pre-configured client. This is useful for testing with miniredis.
func NewWithClient(client redis.UniversalClient, keyPrefix string, opts ...Option) *Registry {
	r := &Registry{
		client:    client,
		keyPrefix: keyPrefix,
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Close() error {
	return r.client.Close()
}

// Ping checks Redis connectivity (health check).
func (r *Registry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Registry) tokenKey(hash string) string {
	return r.keyPrefix + "refresh:" + hash
}

func (r *Registry) ownerKey(ownerID string) string {
	return r.keyPrefix + "owner:" + ownerID
}

func (r *Registry) Store(ctx context.Context, ownerID, token string, ttl time.Duration) error {
	now := r.nowFunc()
	hash := refresh.HashToken(token)
	data, err := json.Marshal(storedRecord{
		OwnerID:   ownerID,
		ExpiresAt: now.Add(ttl).UnixNano(),
		CreatedAt: now.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	key := r.tokenKey(hash)
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	// If index operations fail, delete the token to prevent orphaned tokens
	ownerKey := r.ownerKey(ownerID)
	if err := r.client.SAdd(ctx, ownerKey, hash).Err(); err != nil {
		_ = r.client.Del(ctx, key).Err()
		return fmt.Errorf("failed to index refresh token: %w", err)
	}
	if err := r.extendOwnerTTL(ctx, ownerKey, ttl); err != nil {
		_ = r.client.Del(ctx, key).Err()
		_ = r.client.SRem(ctx, ownerKey, hash).Err()
		return fmt.Errorf("failed to set refresh token index ttl: %w", err)
	}
	return nil
}

// extendOwnerTTL keeps the owner index alive at least as long as its newest token.
func (r *Registry) extendOwnerTTL(ctx context.Context, ownerKey string, ttl time.Duration) error {
	current, err := r.client.TTL(ctx, ownerKey).Result()
	if err != nil {
		return err
	}
	if current >= ttl {
		return nil
	}
	return r.client.Expire(ctx, ownerKey, ttl).Err()
}

func (r *Registry) load(ctx context.Context, hash string) (*storedRecord, error) {
	data, err := r.client.Get(ctx, r.tokenKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, refresh.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get refresh token: %w", err)
	}
	var stored storedRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}
	return &stored, nil
}

func (r *Registry) Verify(ctx context.Context, token string) (*refresh.Record, error) {
	hash := refresh.HashToken(token)
	stored, err := r.load(ctx, hash)
	if err != nil {
		return nil, err
	}

	record := &refresh.Record{
		OwnerID:   stored.OwnerID,
		TokenHash: hash,
		ExpiresAt: time.Unix(0, stored.ExpiresAt).UTC(),
		CreatedAt: time.Unix(0, stored.CreatedAt).UTC(),
	}
	if record.Expired(r.nowFunc()) {
		r.remove(ctx, hash, stored.OwnerID)
		return nil, refresh.ErrNotFound
	}
	return record, nil
}

// remove deletes a token key and its index entry. Cleanup is best effort.
func (r *Registry) remove(ctx context.Context, hash, ownerID string) {
	if err := r.client.Del(ctx, r.tokenKey(hash)).Err(); err != nil {
		log.Err(err).Msg("failed to delete refresh token")
		return
	}
	_ = r.client.SRem(ctx, r.ownerKey(ownerID), hash).Err()
}

func (r *Registry) Revoke(ctx context.Context, token string) error {
	hash := refresh.HashToken(token)
	stored, err := r.load(ctx, hash)
	if errors.Is(err, refresh.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := r.client.Del(ctx, r.tokenKey(hash)).Err(); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	_ = r.client.SRem(ctx, r.ownerKey(stored.OwnerID), hash).Err()
	return nil
}

func (r *Registry) RevokeAll(ctx context.Context, ownerID string) error {
	ownerKey := r.ownerKey(ownerID)
	hashes, err := r.client.SMembers(ctx, ownerKey).Result()
	if err != nil {
		return fmt.Errorf("failed to list user refresh tokens: %w", err)
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, hash := range hashes {
		keys = append(keys, r.tokenKey(hash))
	}
	keys = append(keys, ownerKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to revoke user refresh tokens: %w", err)
	}
	return nil
}

// Sweep walks the owner indexes, deleting records expired by the registry clock and
// dropping index entries whose key Redis already expired. Both count as removed.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	now := r.nowFunc()
	removed := 0

	iter := r.client.Scan(ctx, 0, r.ownerKey("*"), scanCount).Iterator()
	for iter.Next(ctx) {
		ownerKey := iter.Val()
		hashes, err := r.client.SMembers(ctx, ownerKey).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to list refresh token index: %w", err)
		}

		for _, hash := range hashes {
			stored, err := r.load(ctx, hash)
			switch {
			case errors.Is(err, refresh.ErrNotFound):
				if n, err := r.client.SRem(ctx, ownerKey, hash).Result(); err == nil && n > 0 {
					removed++
				}
			case err != nil:
				return removed, err
			case !now.Before(time.Unix(0, stored.ExpiresAt)):
				n, err := r.client.Del(ctx, r.tokenKey(hash)).Result()
				if err != nil {
					return removed, fmt.Errorf("failed to delete expired refresh token: %w", err)
				}
				_ = r.client.SRem(ctx, ownerKey, hash).Err()
				if n > 0 {
					removed++
				}
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan refresh token indexes: %w", err)
	}
	return removed, nil
}
