package config

import (
	"errors"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

// Validate checks everything that must hold before the process may start.
// All problems are reported together in one ConfigurationError.
func Validate(c Config) error {
	var problems []error

	if len(c.GetSessionSecret()) < MinSecretLength {
		problems = append(problems, apperrors.Configuration("%s must be at least %d bytes", sessionSecretVar, MinSecretLength))
	}

	for _, parse := range []func() error{
		func() error { _, err := parseSeconds(accessTokenTTLVar, DefaultAccessTokenTTL); return err },
		func() error { _, err := parseSeconds(refreshTokenTTLVar, DefaultRefreshTokenTTL); return err },
		func() error { _, err := parseDuration(sweepIntervalVar, DefaultSweepInterval); return err },
		func() error { _, err := parseBool(cookieSecureVar, true); return err },
		func() error { _, err := parseBool(demoModeVar, false); return err },
		func() error { _, err := parseInt(redisDBVar, 0); return err },
	} {
		if err := parse(); err != nil {
			problems = append(problems, apperrors.Configuration("%s", err.Error()))
		}
	}

	if c.GetAccessTokenTTL() >= c.GetRefreshTokenTTL() {
		problems = append(problems, apperrors.Configuration("%s must be shorter than %s", accessTokenTTLVar, refreshTokenTTLVar))
	}

	if c.GetDemoMode() && c.IsProduction() {
		problems = append(problems, apperrors.Configuration("%s cannot be enabled when %s=%s", demoModeVar, envVar, productionEnv))
	}

	switch c.GetRegistryBackend() {
	case RegistryMemory, RegistrySQLite, RegistryRedis:
	default:
		problems = append(problems, apperrors.Configuration("unknown %s %q", registryBackendVar, c.GetRegistryBackend()))
	}

	switch c.GetProvider() {
	case ProviderLocal:
	case ProviderOIDC:
		if c.GetOIDCIssuer() == "" || c.GetOIDCClientID() == "" {
			problems = append(problems, apperrors.Configuration("%s and %s are required for the oidc provider", oidcIssuerVar, oidcClientIDVar))
		}
	default:
		problems = append(problems, apperrors.Configuration("unknown %s %q", providerVar, c.GetProvider()))
	}

	if len(problems) == 0 {
		return nil
	}
	if len(problems) == 1 {
		return problems[0]
	}
	return &apperrors.Error{
		Kind:    apperrors.KindConfiguration,
		Code:    "ConfigurationError",
		Message: "invalid configuration",
		Err:     errors.Join(problems...),
	}
}
