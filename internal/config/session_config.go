package config

import "time"

const (
	sessionSecretVar   = "SESSION_SECRET"
	accessTokenTTLVar  = "ACCESS_TOKEN_TTL"
	refreshTokenTTLVar = "REFRESH_TOKEN_TTL"
	sweepIntervalVar   = "SWEEP_INTERVAL"
	cookieSecureVar    = "COOKIE_SECURE"
	cookieDomainVar    = "COOKIE_DOMAIN"
	demoModeVar        = "DEMO_MODE"

	// MinSecretLength is the minimum size in bytes of the session signing secret
	MinSecretLength = 32

	DefaultAccessTokenTTL  = 900 * time.Second
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultSweepInterval   = time.Hour
)

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetSessionSecret() string {
	return GetEnv(sessionSecretVar, "")
}

func (Session) GetAccessTokenTTL() time.Duration {
	ttl, _ := parseSeconds(accessTokenTTLVar, DefaultAccessTokenTTL)
	return ttl
}

func (Session) GetRefreshTokenTTL() time.Duration {
	ttl, _ := parseSeconds(refreshTokenTTLVar, DefaultRefreshTokenTTL)
	return ttl
}

func (Session) GetSweepInterval() time.Duration {
	interval, _ := parseDuration(sweepIntervalVar, DefaultSweepInterval)
	return interval
}

// GetCookieSecure defaults to true everywhere except DEV.
func (Session) GetCookieSecure() bool {
	secure, _ := parseBool(cookieSecureVar, EnvVars{}.GetEnv() != developmentEnv)
	return secure
}

func (Session) GetCookieDomain() string {
	return GetEnv(cookieDomainVar, "")
}

func (Session) GetDemoMode() bool {
	demo, _ := parseBool(demoModeVar, false)
	return demo
}
