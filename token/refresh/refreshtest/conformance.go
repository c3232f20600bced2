// Package refreshtest holds the behaviour every refresh.Registry implementation must share.
package refreshtest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Clock is a settable time source safe for concurrent use.
type Clock struct {
	lock sync.Mutex
	now  time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.now = c.now.Add(d)
}

// Factory builds an empty registry reading time from now.
type Factory func(t *testing.T, now func() time.Time) refresh.Registry

// Run exercises the Registry contract against registries built by factory.
func Run(t *testing.T, factory Factory) {
	t.Run("store and verify", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock()
		registry := factory(t, clock.Now)

		require.NoError(t, registry.Store(ctx, "user-1", "token-a", time.Hour))

		record, err := registry.Verify(ctx, "token-a")
		require.NoError(t, err)
		require.Equal(t, "user-1", record.OwnerID)
		require.Equal(t, refresh.HashToken("token-a"), record.TokenHash)
		require.True(t, record.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
		require.True(t, record.CreatedAt.Equal(clock.Now()))

		_, err = registry.Verify(ctx, "token-unknown")
		require.ErrorIs(t, err, refresh.ErrNotFound)
		require.ErrorIs(t, err, apperrors.ErrInvalidRefreshToken)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		ctx := context.Background()
		registry := factory(t, NewClock().Now)

		require.NoError(t, registry.Store(ctx, "user-1", "token-a", time.Hour))
		require.NoError(t, registry.Revoke(ctx, "token-a"))
		require.NoError(t, registry.Revoke(ctx, "token-a"))
		require.NoError(t, registry.Revoke(ctx, "never-stored"))

		_, err := registry.Verify(ctx, "token-a")
		require.ErrorIs(t, err, refresh.ErrNotFound)
	})

	t.Run("revoke all for one owner", func(t *testing.T) {
		ctx := context.Background()
		registry := factory(t, NewClock().Now)

		require.NoError(t, registry.Store(ctx, "user-1", "token-a", time.Hour))
		require.NoError(t, registry.Store(ctx, "user-1", "token-b", time.Hour))
		require.NoError(t, registry.Store(ctx, "user-2", "token-c", time.Hour))

		require.NoError(t, registry.RevokeAll(ctx, "user-1"))
		require.NoError(t, registry.RevokeAll(ctx, "user-1"))

		_, err := registry.Verify(ctx, "token-a")
		require.ErrorIs(t, err, refresh.ErrNotFound)
		_, err = registry.Verify(ctx, "token-b")
		require.ErrorIs(t, err, refresh.ErrNotFound)
		record, err := registry.Verify(ctx, "token-c")
		require.NoError(t, err)
		require.Equal(t, "user-2", record.OwnerID)
	})

	t.Run("verify deletes expired records", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock()
		registry := factory(t, clock.Now)

		require.NoError(t, registry.Store(ctx, "user-1", "token-a", time.Minute))
		clock.Advance(time.Minute)

		_, err := registry.Verify(ctx, "token-a")
		require.ErrorIs(t, err, refresh.ErrNotFound)

		removed, err := registry.Sweep(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, removed)
	})

	t.Run("sweep removes only expired records", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock()
		registry := factory(t, clock.Now)

		for i := range 10 {
			require.NoError(t, registry.Store(ctx, fmt.Sprintf("user-%d", i%3), fmt.Sprintf("short-%d", i), time.Second))
		}
		require.NoError(t, registry.Store(ctx, "user-1", "long", time.Hour))
		clock.Advance(2 * time.Second)

		removed, err := registry.Sweep(ctx)
		require.NoError(t, err)
		require.Equal(t, 10, removed)

		_, err = registry.Verify(ctx, "long")
		require.NoError(t, err)
	})

	t.Run("sweep converges with concurrent verify", func(t *testing.T) {
		ctx := context.Background()
		clock := NewClock()
		registry := factory(t, clock.Now)

		const n = 50
		for i := range n {
			require.NoError(t, registry.Store(ctx, fmt.Sprintf("user-%d", i%5), fmt.Sprintf("token-%d", i), time.Second))
		}
		require.NoError(t, registry.Store(ctx, "user-live", "token-live", time.Hour))
		clock.Advance(2 * time.Second)

		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := registry.Verify(ctx, fmt.Sprintf("token-%d", i))
				assert.ErrorIs(t, err, refresh.ErrNotFound)
			}(i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Sweep(ctx)
			assert.NoError(t, err)
		}()
		wg.Wait()

		removed, err := registry.Sweep(ctx)
		require.NoError(t, err)
		require.Equal(t, 0, removed)
		for i := range n {
			_, err := registry.Verify(ctx, fmt.Sprintf("token-%d", i))
			require.ErrorIs(t, err, refresh.ErrNotFound)
		}
		_, err = registry.Verify(ctx, "token-live")
		require.NoError(t, err)
	})

	t.Run("concurrent store and revoke", func(t *testing.T) {
		ctx := context.Background()
		registry := factory(t, NewClock().Now)

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				token := fmt.Sprintf("token-%d", i)
				assert.NoError(t, registry.Store(ctx, "user-1", token, time.Hour))
				if i%2 == 0 {
					assert.NoError(t, registry.Revoke(ctx, token))
				}
			}(i)
		}
		wg.Wait()

		for i := range 20 {
			_, err := registry.Verify(ctx, fmt.Sprintf("token-%d", i))
			if i%2 == 0 {
				require.ErrorIs(t, err, refresh.ErrNotFound)
			} else {
				require.NoError(t, err)
			}
		}
	})
}
