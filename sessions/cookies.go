package sessions

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	AccessCookieName  = "session_access"
	RefreshCookieName = "session_refresh"
	ProfileCookieName = "session_profile"

	// hostPrefix binds a cookie to the exact host. Browsers only accept it with
	// Secure, Path=/ and no Domain attribute.
	hostPrefix = "__Host-"
)

type CookieConfig struct {
	Secure     bool
	Domain     string // ignored when Secure is set
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// CookieCodec maps session state to cookie attributes. It holds no state and does no cryptography.
type CookieCodec struct {
	secure     bool
	domain     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCookieCodec(cfg CookieConfig) CookieCodec {
	codec := CookieCodec{
		secure:     cfg.Secure,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
	}
	if !cfg.Secure {
		codec.domain = cfg.Domain
	}
	return codec
}

func (c CookieCodec) name(base string) string {
	if c.secure {
		return hostPrefix + base
	}
	return base
}

func (c CookieCodec) AccessName() string  { return c.name(AccessCookieName) }
func (c CookieCodec) RefreshName() string { return c.name(RefreshCookieName) }
func (c CookieCodec) ProfileName() string { return c.name(ProfileCookieName) }

func (c CookieCodec) cookie(name, value string, ttl time.Duration, expiresAt time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.domain,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(ttl / time.Second),
		Expires:  expiresAt,
	}
}

// AccessCookie lives for the access TTL and expires with the token.
func (c CookieCodec) AccessCookie(value string, expiresAt time.Time) *http.Cookie {
	return c.cookie(c.AccessName(), value, c.accessTTL, expiresAt)
}

func (c CookieCodec) RefreshCookie(value string, expiresAt time.Time) *http.Cookie {
	return c.cookie(c.RefreshName(), value, c.refreshTTL, expiresAt)
}

// ProfileCookie lives for the access TTL. It is for display only, never for authorization.
func (c CookieCodec) ProfileCookie(profile Profile, expiresAt time.Time) (*http.Cookie, error) {
	value, err := EncodeProfile(profile)
	if err != nil {
		return nil, err
	}
	return c.cookie(c.ProfileName(), value, c.accessTTL, expiresAt), nil
}

// Deleted returns deletion variants of all three cookies.
func (c CookieCodec) Deleted() []*http.Cookie {
	names := []string{c.AccessName(), c.RefreshName(), c.ProfileName()}
	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		deleted := c.cookie(name, "", 0, time.Unix(0, 0).UTC())
		deleted.MaxAge = -1 // Max-Age=0 on the wire
		cookies = append(cookies, deleted)
	}
	return cookies
}

// IsDeleted reports whether cookie is a deletion variant.
func IsDeleted(cookie *http.Cookie) bool {
	return cookie.MaxAge < 0 && cookie.Value == "" && cookie.Expires.Before(time.Unix(1, 0))
}

// Profile is the minimal user data kept in the profile cookie.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

func EncodeProfile(profile Profile) (string, error) {
	data, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func DecodeProfile(value string) (Profile, error) {
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	var profile Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return Profile{}, fmt.Errorf("failed to decode profile: %w", err)
	}
	return profile, nil
}
