package sessions

import (
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-auth/identity"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
)

// Demo sessions use fixed sentinel cookie values instead of signed tokens. They are
// resolved here and only here, the token issuer is never involved.
const (
	demoAccessPrefix  = "demo-access:"
	demoRefreshPrefix = "demo-refresh:"
)

// DemoAccounts is the fixed set of demo identities, keyed by account key.
type DemoAccounts struct {
	accounts map[string]identity.Identity
	nowFunc  func() time.Time
}

func NewDemoAccounts(accounts map[string]identity.Identity) *DemoAccounts {
	copied := make(map[string]identity.Identity, len(accounts))
	for key, id := range accounts {
		copied[key] = id
	}
	return &DemoAccounts{accounts: copied, nowFunc: time.Now}
}

// DefaultDemoAccounts returns the built-in demo account.
func DefaultDemoAccounts() *DemoAccounts {
	return NewDemoAccounts(map[string]identity.Identity{
		"demo": {ID: "demo-user", Email: "demo@example.com", Name: "Demo User", EmailVerified: true},
	})
}

// Establish writes the sentinel cookies for a demo account. They last one access TTL.
func (d *DemoAccounts) Establish(codec CookieCodec, key string) (*Session, []*http.Cookie, error) {
	id, ok := d.accounts[key]
	if !ok {
		return nil, nil, apperrors.Unauthorized("Unknown demo account.")
	}

	expiresAt := d.nowFunc().Add(codec.accessTTL).Truncate(time.Second)
	profile, err := codec.ProfileCookie(Profile{ID: id.ID, Email: id.Email, Name: id.Name}, expiresAt)
	if err != nil {
		return nil, nil, apperrors.Internal(err)
	}
	cookies := []*http.Cookie{
		codec.AccessCookie(demoAccessPrefix+key, expiresAt),
		codec.RefreshCookie(demoRefreshPrefix+key, expiresAt),
		profile,
	}
	return &Session{Identity: id, Authenticated: true, ExpiresAt: expiresAt, Demo: true}, cookies, nil
}

// resolve accepts a request whose access cookie is a known sentinel and whose profile
// cookie names the same demo user.
func (d *DemoAccounts) resolve(r CookieReader, codec CookieCodec) (*Session, bool) {
	access, err := r.Cookie(codec.AccessName())
	if err != nil || !strings.HasPrefix(access.Value, demoAccessPrefix) {
		return nil, false
	}
	id, ok := d.accounts[strings.TrimPrefix(access.Value, demoAccessPrefix)]
	if !ok {
		return nil, false
	}

	profileCookie, err := r.Cookie(codec.ProfileName())
	if err != nil {
		return nil, false
	}
	profile, err := DecodeProfile(profileCookie.Value)
	if err != nil || profile.ID != id.ID {
		return nil, false
	}
	return &Session{Identity: id, Authenticated: true, ExpiresAt: d.nowFunc().Add(codec.accessTTL), Demo: true}, true
}
