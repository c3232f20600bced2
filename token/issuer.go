// Package token mints and verifies the session layer's own signed tokens. They are
// independent of the identity provider's tokens so session lifetime and revocation
// stay under local control.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/identity"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/rs/zerolog/log"
)

// MinSecretLength is the shortest accepted signing secret in bytes.
const MinSecretLength = 32

const (
	DefaultAccessTokenTTL  = 900 * time.Second
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultIssuer          = "go-session-auth"
)

// Kind discriminates access tokens from refresh tokens. It is checked on every verification.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims is the LocalToken claim set.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Kind          Kind   `json:"kind"`
}

// Identity rebuilds the identity carried by the token. Attributes are not carried.
func (c *Claims) Identity() identity.Identity {
	return identity.Identity{
		ID:            c.Subject,
		Email:         c.Email,
		Name:          c.Name,
		EmailVerified: c.EmailVerified,
	}
}

// Expiry returns the token's expiry, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.RegisteredClaims.ExpiresAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.ExpiresAt.Time
}

type Issuer struct {
	signer  Signer
	issuer  string
	nowFunc func() time.Time
}

type IssuerOption func(*Issuer)

func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

func WithIssuer(issuer string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = issuer
	}
}

// NewIssuer fails with a ConfigurationError when the secret is shorter than MinSecretLength.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, apperrors.Configuration("session secret must be at least %d bytes, got %d", MinSecretLength, len(secret))
	}
	i := &Issuer{
		signer:  NewHMACSigner([]byte(secret)),
		issuer:  DefaultIssuer,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a LocalToken of the given kind for id. The returned time is the token's expiry.
// Timestamps have second precision.
func (i *Issuer) Issue(id identity.Identity, kind Kind, ttl time.Duration) (string, time.Time, error) {
	if id.ID == "" {
		return "", time.Time{}, apperrors.Validation("identity id is required")
	}
	if kind != KindAccess && kind != KindRefresh {
		return "", time.Time{}, apperrors.Wrapf(apperrors.ErrWrongTokenKind, "issue %q", kind)
	}
	if ttl <= 0 {
		return "", time.Time{}, apperrors.Validation("token ttl must be positive")
	}

	now := i.nowFunc().Truncate(time.Second)
	expiresAt := now.Add(ttl.Truncate(time.Second))
	if !expiresAt.After(now) {
		expiresAt = now.Add(time.Second)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   id.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email:         id.Email,
		Name:          id.Name,
		EmailVerified: id.EmailVerified,
		Kind:          kind,
	}

	signed, err := i.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, apperrors.Internal(err)
	}
	return signed, expiresAt, nil
}

// Verify reports whether tokenString is a valid, unexpired LocalToken of the expected kind.
// Every failure reports false, callers never get an error to branch on.
func (i *Issuer) Verify(tokenString string, expected Kind) (*Claims, bool) {
	claims, err := i.Parse(tokenString, expected)
	if err != nil {
		log.Debug().Err(err).Msg("local token rejected")
		return nil, false
	}
	return claims, true
}

// Parse applies the same checks as Verify and says why a token was rejected. Failures
// wrap ErrTokenExpired, ErrWrongTokenKind or ErrInvalidToken.
func (i *Issuer) Parse(tokenString string, expected Kind) (*Claims, error) {
	if tokenString == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "empty %s token", expected)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, i.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.nowFunc),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.Wrapf(apperrors.ErrTokenExpired, "%s token", expected)
		}
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%s token: %v", expected, err)
	}
	if claims.Kind != expected {
		return nil, apperrors.Wrapf(apperrors.ErrWrongTokenKind, "expected %s token, got %q", expected, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "%s token has no subject", expected)
	}
	return claims, nil
}
