package config

import (
	"time"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	RegistryConfig
	ProviderConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsProduction() bool
	GetHomeRoute() string
	GetLoginRoute() string
	GetRegisterRoute() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type SessionConfig interface {
	GetSessionSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenTTL() time.Duration
	GetSweepInterval() time.Duration
	GetCookieSecure() bool
	GetCookieDomain() string
	GetDemoMode() bool
}

type RegistryConfig interface {
	GetRegistryBackend() string
	GetRegistrySQLitePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisKeyPrefix() string
}

type ProviderConfig interface {
	GetProvider() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
	GetLocalSeedEmail() string
	GetLocalSeedPassword() string
	GetLocalSeedName() string
}

type mainConfig struct {
	EnvVars
	Cors
	Session
	Registry
	Provider
}

func New() Config {
	return mainConfig{}
}

// Load reads an optional .env file into the environment and validates the result.
// A validation failure is a ConfigurationError and should stop the process.
func Load(envFiles ...string) (Config, error) {
	// A missing .env file is not an error, production uses real environment variables
	_ = godotenv.Load(envFiles...)

	c := New()
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}
