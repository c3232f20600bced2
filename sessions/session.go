// Package sessions establishes, resolves and terminates browser sessions. A session is
// three cookies: a local access token, a local refresh token tracked in a revocable
// registry, and a display-only profile. Any doubt about a session resolves to logged out.
package sessions

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jrsteele09/go-session-auth/identity"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/rs/zerolog/log"
)

// Session is the resolved state of a request.
type Session struct {
	Identity      identity.Identity `json:"identity"`
	Authenticated bool              `json:"authenticated"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Demo          bool              `json:"demo,omitempty"`
}

// CookieReader is satisfied by *http.Request.
type CookieReader interface {
	Cookie(name string) (*http.Cookie, error)
}

type Service struct {
	provider   identity.Provider
	issuer     *token.Issuer
	registry   refresh.Registry
	codec      CookieCodec
	accessTTL  time.Duration
	refreshTTL time.Duration
	demo       *DemoAccounts
}

type Option func(*Service)

func WithTokenTTL(access, refresh time.Duration) Option {
	return func(s *Service) {
		s.accessTTL = access
		s.refreshTTL = refresh
	}
}

// WithDemoAccounts enables the demo bypass. It must never be set in production.
func WithDemoAccounts(demo *DemoAccounts) Option {
	return func(s *Service) {
		s.demo = demo
	}
}

func NewService(provider identity.Provider, issuer *token.Issuer, registry refresh.Registry, codec CookieCodec, opts ...Option) *Service {
	s := &Service{
		provider:   provider,
		issuer:     issuer,
		registry:   registry,
		codec:      codec,
		accessTTL:  token.DefaultAccessTokenTTL,
		refreshTTL: token.DefaultRefreshTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Codec() CookieCodec {
	return s.codec
}

// Establish mints local tokens for the identity behind providerTokens and records the
// refresh token. When id is nil it is fetched from the provider. On any failure no
// cookies are returned and the session does not exist.
func (s *Service) Establish(ctx context.Context, providerTokens identity.ProviderTokens, id *identity.Identity) (*Session, []*http.Cookie, error) {
	if id == nil {
		result := s.provider.GetIdentity(ctx, providerTokens.AccessToken)
		if !result.Success {
			return nil, nil, result.Err()
		}
		id = &result.Data
	}
	if id.ID == "" {
		return nil, nil, apperrors.Provider(identity.CodeUnknown, identity.FriendlyMessage(identity.CodeUnknown), errors.New("identity has no id"))
	}

	accessToken, accessExpiry, err := s.issuer.Issue(*id, token.KindAccess, s.accessTTL)
	if err != nil {
		return nil, nil, err
	}
	refreshToken, refreshExpiry, err := s.issuer.Issue(*id, token.KindRefresh, s.refreshTTL)
	if err != nil {
		return nil, nil, err
	}

	if err := s.registry.Store(ctx, id.ID, refreshToken, s.refreshTTL); err != nil {
		return nil, nil, apperrors.Internal(apperrors.Wrapf(err, "store refresh token"))
	}

	profile, err := s.codec.ProfileCookie(Profile{ID: id.ID, Email: id.Email, Name: id.Name}, accessExpiry)
	if err != nil {
		// The refresh token was committed; revoke it so the failed login leaves nothing usable
		if revokeErr := s.registry.Revoke(ctx, refreshToken); revokeErr != nil {
			log.Err(revokeErr).Msg("failed to revoke refresh token after failed establish")
		}
		return nil, nil, apperrors.Internal(err)
	}

	cookies := []*http.Cookie{
		s.codec.AccessCookie(accessToken, accessExpiry),
		s.codec.RefreshCookie(refreshToken, refreshExpiry),
		profile,
	}
	log.Info().Str("user_id", id.ID).Msg("session established")
	return &Session{Identity: *id, Authenticated: true, ExpiresAt: accessExpiry}, cookies, nil
}

// Current resolves the session carried by r. A valid access token is accepted without
// further I/O. Otherwise a valid refresh token that is still registered mints a new
// access token, returned as the only cookie. With neither, the session is nil and the
// returned cookies delete all three.
func (s *Service) Current(ctx context.Context, r CookieReader) (*Session, []*http.Cookie) {
	if s.demo != nil {
		if session, ok := s.demo.resolve(r, s.codec); ok {
			return session, nil
		}
	}

	if cookie, err := r.Cookie(s.codec.AccessName()); err == nil {
		if claims, ok := s.issuer.Verify(cookie.Value, token.KindAccess); ok {
			return &Session{Identity: claims.Identity(), Authenticated: true, ExpiresAt: claims.Expiry()}, nil
		}
	}

	return s.Refresh(ctx, r)
}

// Refresh ignores the access cookie and mints a new access token from the refresh cookie.
// The refresh cookie and its registry record are left untouched. Two concurrent refreshes
// for the same user each mint a valid access token.
func (s *Service) Refresh(ctx context.Context, r CookieReader) (*Session, []*http.Cookie) {
	cookie, err := r.Cookie(s.codec.RefreshName())
	if err != nil || cookie.Value == "" {
		return nil, s.codec.Deleted()
	}

	claims, ok := s.issuer.Verify(cookie.Value, token.KindRefresh)
	if !ok {
		return nil, s.codec.Deleted()
	}

	record, err := s.registry.Verify(ctx, cookie.Value)
	if err != nil {
		if !errors.Is(err, refresh.ErrNotFound) {
			log.Err(err).Msg("refresh token registry lookup failed")
		}
		return nil, s.codec.Deleted()
	}
	if record.OwnerID != claims.Subject {
		log.Warn().Str("user_id", claims.Subject).Msg("refresh token owner mismatch")
		return nil, s.codec.Deleted()
	}

	id := claims.Identity()
	accessToken, accessExpiry, err := s.issuer.Issue(id, token.KindAccess, s.accessTTL)
	if err != nil {
		log.Err(err).Msg("failed to mint access token on refresh")
		return nil, s.codec.Deleted()
	}

	log.Debug().Str("user_id", id.ID).Msg("session silently refreshed")
	return &Session{Identity: id, Authenticated: true, ExpiresAt: accessExpiry}, []*http.Cookie{s.codec.AccessCookie(accessToken, accessExpiry)}
}

// Terminate revokes the current refresh token, best effort, and always returns the
// deletion cookies. It is safe to call without a session.
func (s *Service) Terminate(ctx context.Context, r CookieReader) []*http.Cookie {
	if cookie, err := r.Cookie(s.codec.RefreshName()); err == nil && cookie.Value != "" {
		if err := s.registry.Revoke(ctx, cookie.Value); err != nil {
			log.Err(err).Msg("failed to revoke refresh token on logout")
		}
	}
	return s.codec.Deleted()
}

// RevokeAll ends every session of a user by dropping all their refresh tokens.
// Access tokens already issued stay valid until they expire.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	if err := s.registry.RevokeAll(ctx, userID); err != nil {
		return apperrors.Internal(apperrors.Wrapf(err, "revoke all refresh tokens"))
	}
	return nil
}
