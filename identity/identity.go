// Package identity defines the normalized contract every external identity provider
// is adapted to. Provider specific failures never cross this boundary as raw errors,
// every operation returns a Result carrying either data or a translated error.
package identity

import (
	"context"
	"time"
)

// Identity is the provider's view of a user. It is read-only downstream.
type Identity struct {
	ID            string            `json:"id"`
	Email         string            `json:"email"`
	Name          string            `json:"name"`
	EmailVerified bool              `json:"email_verified"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// ProviderTokens are the provider's own tokens, opaque to the session layer.
type ProviderTokens struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	IDToken      string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Challenge names
const (
	ChallengeNewPasswordRequired = "NEW_PASSWORD_REQUIRED"
)

// Challenge is returned by SignIn when the provider needs another step before issuing tokens.
type Challenge struct {
	Name       string            `json:"name"`
	Session    string            `json:"session"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// SignInOutput holds exactly one of Tokens or Challenge.
type SignInOutput struct {
	Tokens    *ProviderTokens `json:"-"`
	Challenge *Challenge      `json:"challenge,omitempty"`
}

// IsChallenge reports whether sign-in stopped at a challenge.
func (o SignInOutput) IsChallenge() bool {
	return o.Challenge != nil
}

type SignUpOutput struct {
	UserID               string `json:"user_id"`
	ConfirmationRequired bool   `json:"confirmation_required"`
}

// CodeDelivery describes where a confirmation or reset code was sent.
type CodeDelivery struct {
	Destination string `json:"destination,omitempty"`
	Medium      string `json:"medium,omitempty"`
}

// Empty is the data type of operations that only report success.
type Empty struct{}

// Provider is the contract any identity provider must satisfy.
type Provider interface {
	SignIn(ctx context.Context, email, password string) Result[SignInOutput]
	SignUp(ctx context.Context, email, password, name string) Result[SignUpOutput]
	ConfirmSignUp(ctx context.Context, email, code string) Result[Empty]
	ForgotPassword(ctx context.Context, email string) Result[CodeDelivery]
	ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) Result[Empty]
	RefreshProviderToken(ctx context.Context, refreshToken string) Result[ProviderTokens]
	GetIdentity(ctx context.Context, accessToken string) Result[Identity]
	GlobalSignOut(ctx context.Context, accessToken string) Result[Empty]
}

// ChallengeResponder is implemented by providers that can complete a sign-in challenge.
type ChallengeResponder interface {
	RespondToNewPasswordChallenge(ctx context.Context, email, session, newPassword string) Result[SignInOutput]
}
