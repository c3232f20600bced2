package main

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/jrsteele09/go-session-auth/identity/localprovider"
	"github.com/jrsteele09/go-session-auth/identity/oidcprovider"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/token/refresh/redisrepo"
	"github.com/jrsteele09/go-session-auth/token/refresh/sqlrepo"
	"github.com/rs/zerolog/log"
)

func newRegistry(ctx context.Context, c config.RegistryConfig) (refresh.Registry, error) {
	switch c.GetRegistryBackend() {
	case config.RegistrySQLite:
		registry, err := sqlrepo.Open(ctx, c.GetRegistrySQLitePath())
		if err != nil {
			return nil, fmt.Errorf("[newRegistry] sqlite: %w", err)
		}
		log.Info().Str("path", c.GetRegistrySQLitePath()).Msg("using sqlite refresh token registry")
		return registry, nil
	case config.RegistryRedis:
		registry, err := redisrepo.New(ctx, redisrepo.Config{
			Addr:      c.GetRedisAddr(),
			Password:  c.GetRedisPassword(),
			DB:        c.GetRedisDB(),
			KeyPrefix: c.GetRedisKeyPrefix(),
		})
		if err != nil {
			return nil, fmt.Errorf("[newRegistry] redis: %w", err)
		}
		log.Info().Str("addr", c.GetRedisAddr()).Msg("using redis refresh token registry")
		return registry, nil
	default:
		log.Info().Msg("using in-memory refresh token registry")
		return refresh.NewMemoryRegistry(), nil
	}
}

func newProvider(ctx context.Context, c config.Config) (identity.Provider, error) {
	if c.GetProvider() == config.ProviderOIDC {
		provider, err := oidcprovider.New(ctx, oidcprovider.Config{
			Issuer:       c.GetOIDCIssuer(),
			ClientID:     c.GetOIDCClientID(),
			ClientSecret: c.GetOIDCClientSecret(),
		})
		if err != nil {
			return nil, fmt.Errorf("[newProvider] oidc: %w", err)
		}
		log.Info().Str("issuer", c.GetOIDCIssuer()).Msg("using oidc identity provider")
		return provider, nil
	}

	provider := localprovider.New()
	if email, password := c.GetLocalSeedEmail(), c.GetLocalSeedPassword(); email != "" && password != "" {
		user, err := provider.AddUser(email, password, c.GetLocalSeedName(), false)
		if err != nil {
			return nil, fmt.Errorf("[newProvider] seed user: %w", err)
		}
		log.Info().Str("user_id", user.ID).Msg("seeded local user")
	}
	log.Info().Msg("using local identity provider")
	return provider, nil
}
