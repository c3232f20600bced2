package refresh_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/token/refresh/refreshtest"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry(t *testing.T) {
	refreshtest.Run(t, func(_ *testing.T, now func() time.Time) refresh.Registry {
		return refresh.NewMemoryRegistry(refresh.WithNowFunc(now))
	})
}

func TestMemoryRegistryNeverHoldsPlaintext(t *testing.T) {
	ctx := context.Background()
	registry := refresh.NewMemoryRegistry()
	require.NoError(t, registry.Store(ctx, "user-1", "plain-token", time.Hour))

	record, err := registry.Verify(ctx, "plain-token")
	require.NoError(t, err)
	require.NotContains(t, record.TokenHash, "plain-token")
	require.Len(t, record.TokenHash, 64)
}

func TestMemoryRegistryLazyDelete(t *testing.T) {
	ctx := context.Background()
	clock := refreshtest.NewClock()
	registry := refresh.NewMemoryRegistry(refresh.WithNowFunc(clock.Now))

	require.NoError(t, registry.Store(ctx, "user-1", "token-a", time.Second))
	require.NoError(t, registry.Store(ctx, "user-1", "token-b", time.Hour))
	require.Equal(t, 2, registry.Len())

	clock.Advance(time.Second)
	_, err := registry.Verify(ctx, "token-a")
	require.ErrorIs(t, err, refresh.ErrNotFound)
	require.Equal(t, 1, registry.Len())
}

func TestSweeper(t *testing.T) {
	ctx := context.Background()
	clock := refreshtest.NewClock()
	registry := refresh.NewMemoryRegistry(refresh.WithNowFunc(clock.Now))

	require.NoError(t, registry.Store(ctx, "user-1", "token-a", time.Second))
	clock.Advance(time.Minute)

	t.Run("sweep once", func(t *testing.T) {
		require.Equal(t, 1, refresh.NewSweeper(registry, time.Hour).SweepOnce(ctx))
		require.Equal(t, 0, registry.Len())
	})

	t.Run("run sweeps on the interval and stops with the context", func(t *testing.T) {
		require.NoError(t, registry.Store(ctx, "user-1", "token-b", time.Second))
		clock.Advance(time.Minute)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan error, 1)
		go func() {
			done <- refresh.NewSweeper(registry, 10*time.Millisecond).Run(runCtx)
		}()

		require.Eventually(t, func() bool { return registry.Len() == 0 }, time.Second, 5*time.Millisecond)
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop")
		}
	})
}
