package redisrepo_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/token/refresh/redisrepo"
	"github.com/jrsteele09/go-session-auth/token/refresh/refreshtest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const keyPrefix = "test:"

func setupRegistry(t *testing.T, now func() time.Time) (*redisrepo.Registry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := redisrepo.NewWithClient(client, keyPrefix, redisrepo.WithNowFunc(now))
	t.Cleanup(func() { _ = registry.Close() })
	return registry, mr
}

func TestRedisRegistry(t *testing.T) {
	refreshtest.Run(t, func(t *testing.T, now func() time.Time) refresh.Registry {
		registry, _ := setupRegistry(t, now)
		return registry
	})
}

func TestRedisRegistryKeys(t *testing.T) {
	ctx := context.Background()
	registry, mr := setupRegistry(t, time.Now)

	require.NoError(t, registry.Store(ctx, "user-1", "token-a", time.Hour))

	hash := refresh.HashToken("token-a")
	require.True(t, mr.Exists(keyPrefix+"refresh:"+hash))
	require.Equal(t, time.Hour, mr.TTL(keyPrefix+"refresh:"+hash))
	members, err := mr.Members(keyPrefix + "owner:user-1")
	require.NoError(t, err)
	require.Equal(t, []string{hash}, members)

	for _, key := range mr.Keys() {
		require.NotContains(t, key, "token-a")
	}
}

func TestRedisRegistryNativeExpiry(t *testing.T) {
	ctx := context.Background()
	registry, mr := setupRegistry(t, time.Now)

	require.NoError(t, registry.Store(ctx, "user-1", "token-a", time.Minute))
	require.NoError(t, registry.Store(ctx, "user-1", "token-b", time.Hour))
	mr.FastForward(2 * time.Minute)

	_, err := registry.Verify(ctx, "token-a")
	require.ErrorIs(t, err, refresh.ErrNotFound)

	removed, err := registry.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	members, err := mr.Members(keyPrefix + "owner:user-1")
	require.NoError(t, err)
	require.Equal(t, []string{refresh.HashToken("token-b")}, members)
}

func TestRedisRegistryPing(t *testing.T) {
	registry, mr := setupRegistry(t, time.Now)
	require.NoError(t, registry.Ping(context.Background()))

	mr.Close()
	require.Error(t, registry.Ping(context.Background()))
}

func TestNewRequiresAddr(t *testing.T) {
	_, err := redisrepo.New(context.Background(), redisrepo.Config{})
	require.Error(t, err)
}
