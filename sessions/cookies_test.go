package sessions_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/stretchr/testify/require"
)

func TestCookieCodecSecure(t *testing.T) {
	codec := sessions.NewCookieCodec(sessions.CookieConfig{
		Secure:     true,
		Domain:     "example.com",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * 24 * time.Hour,
	})
	expiresAt := time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)

	access := codec.AccessCookie("a", expiresAt)
	require.Equal(t, "__Host-session_access", access.Name)
	require.Equal(t, "/", access.Path)
	require.Empty(t, access.Domain)
	require.True(t, access.HttpOnly)
	require.True(t, access.Secure)
	require.Equal(t, http.SameSiteStrictMode, access.SameSite)
	require.Equal(t, 900, access.MaxAge)
	require.Equal(t, expiresAt, access.Expires)

	refresh := codec.RefreshCookie("r", expiresAt)
	require.Equal(t, "__Host-session_refresh", refresh.Name)
	require.Equal(t, 30*24*60*60, refresh.MaxAge)

	profile, err := codec.ProfileCookie(sessions.Profile{ID: "user-1", Email: "jane@example.com"}, expiresAt)
	require.NoError(t, err)
	require.Equal(t, "__Host-session_profile", profile.Name)
	require.Equal(t, 900, profile.MaxAge)
	require.True(t, profile.HttpOnly)

	decoded, err := sessions.DecodeProfile(profile.Value)
	require.NoError(t, err)
	require.Equal(t, "user-1", decoded.ID)
}

func TestCookieCodecInsecureKeepsDomain(t *testing.T) {
	codec := sessions.NewCookieCodec(sessions.CookieConfig{
		Domain:     "example.com",
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	})

	access := codec.AccessCookie("a", time.Now())
	require.Equal(t, "session_access", access.Name)
	require.Equal(t, "example.com", access.Domain)
	require.False(t, access.Secure)
	require.Equal(t, http.SameSiteStrictMode, access.SameSite)
}

func TestCookieCodecDeleted(t *testing.T) {
	codec := sessions.NewCookieCodec(sessions.CookieConfig{Secure: true, AccessTTL: time.Minute, RefreshTTL: time.Hour})

	deleted := codec.Deleted()
	require.Len(t, deleted, 3)
	names := []string{}
	for _, c := range deleted {
		names = append(names, c.Name)
		require.True(t, sessions.IsDeleted(c))
		require.True(t, c.Expires.Before(time.Now()))
		require.True(t, c.HttpOnly)
		require.Equal(t, "/", c.Path)
		require.Contains(t, c.String(), "Max-Age=0")
	}
	require.ElementsMatch(t, []string{codec.AccessName(), codec.RefreshName(), codec.ProfileName()}, names)
}

func TestDecodeProfileRejectsGarbage(t *testing.T) {
	_, err := sessions.DecodeProfile("%%%")
	require.Error(t, err)
}
