// Package localprovider is an in-process identity provider backed by a user directory
// held in memory. It is used for development, demos and tests, and speaks the same
// exception vocabulary as a hosted provider.
package localprovider

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/rs/zerolog/log"
)

var (
	_ identity.Provider           = (*Provider)(nil)
	_ identity.ChallengeResponder = (*Provider)(nil)
)

const (
	DefaultAccessTokenTTL  = time.Hour
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultCodeTTL         = 24 * time.Hour

	// Purpose values passed to a CodeSender
	PurposeConfirmSignUp  = "confirm_sign_up"
	PurposeForgotPassword = "forgot_password"

	deliveryMedium = "EMAIL"
)

// CodeSender delivers confirmation and reset codes to a user.
type CodeSender interface {
	SendCode(ctx context.Context, email, purpose, code string) error
}

type CodeSenderFunc func(ctx context.Context, email, purpose, code string) error

func (f CodeSenderFunc) SendCode(ctx context.Context, email, purpose, code string) error {
	return f(ctx, email, purpose, code)
}

// discardSender is used when no sender is configured. Codes are never logged.
type discardSender struct{}

func (discardSender) SendCode(_ context.Context, email, purpose, _ string) error {
	log.Debug().Str("destination", maskEmail(email)).Str("purpose", purpose).Msg("verification code generated, no sender configured")
	return nil
}

type Option func(*Provider)

func WithNowTime(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

func WithCodeSender(sender CodeSender) Option {
	return func(p *Provider) {
		p.sender = sender
	}
}

func WithTokenTTL(access, refresh time.Duration) Option {
	return func(p *Provider) {
		p.accessTTL = access
		p.refreshTTL = refresh
	}
}

func WithCodeTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.codeTTL = ttl
	}
}

type Provider struct {
	lock          sync.RWMutex
	users         map[string]*User
	emailIds      map[string]string // email to user id
	accessTokens  map[string]issuedToken
	refreshTokens map[string]issuedToken
	challenges    map[string]issuedToken // challenge session to user id

	sender     CodeSender
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
	codeTTL    time.Duration
}

func New(opts ...Option) *Provider {
	p := &Provider{
		users:         make(map[string]*User),
		emailIds:      make(map[string]string),
		accessTokens:  make(map[string]issuedToken),
		refreshTokens: make(map[string]issuedToken),
		challenges:    make(map[string]issuedToken),
		sender:        discardSender{},
		now:           time.Now,
		accessTTL:     DefaultAccessTokenTTL,
		refreshTTL:    DefaultRefreshTokenTTL,
		codeTTL:       DefaultCodeTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddUser seeds a confirmed user into the directory.
func (p *Provider) AddUser(email, password, name string, passwordChangeRequired bool) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	email = normalizeEmail(email)
	if _, ok := p.emailIds[email]; ok {
		return nil, identity.NewException(identity.CodeUsernameExists, "email already registered")
	}
	user := &User{
		ID:                     uuid.New().String(),
		Email:                  email,
		Name:                   name,
		PasswordHash:           hash,
		Confirmed:              true,
		PasswordChangeRequired: passwordChangeRequired,
		DateJoined:             p.now(),
	}
	p.users[user.ID] = user
	p.emailIds[email] = user.ID
	return user, nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) identity.Result[identity.SignInOutput] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.SignInOutput](err)
	}
	if strings.TrimSpace(email) == "" || password == "" {
		return identity.Fail[identity.SignInOutput](identity.NewException(identity.CodeInvalidParameter, "email and password are required"))
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	user, err := p.userByEmail(email)
	if err != nil {
		CheckPasswordHash(password, unknownUserHash())
		return identity.Fail[identity.SignInOutput](err)
	}
	if !CheckPasswordHash(password, user.PasswordHash) {
		return identity.Fail[identity.SignInOutput](identity.NewException(identity.CodeNotAuthorized, "incorrect password"))
	}
	if !user.Confirmed {
		return identity.Fail[identity.SignInOutput](identity.NewException(identity.CodeUserNotConfirmed, "user is not confirmed"))
	}

	if user.PasswordChangeRequired {
		session, err := randomToken()
		if err != nil {
			return identity.Fail[identity.SignInOutput](err)
		}
		p.challenges[session] = issuedToken{userID: user.ID, expiresAt: p.now().Add(p.codeTTL)}
		return identity.Ok(identity.SignInOutput{Challenge: &identity.Challenge{
			Name:       identity.ChallengeNewPasswordRequired,
			Session:    session,
			Parameters: map[string]string{"email": user.Email},
		}})
	}

	tokens, err := p.issueTokens(user.ID)
	if err != nil {
		return identity.Fail[identity.SignInOutput](err)
	}
	return identity.Ok(identity.SignInOutput{Tokens: tokens})
}

func (p *Provider) RespondToNewPasswordChallenge(ctx context.Context, email, session, newPassword string) identity.Result[identity.SignInOutput] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.SignInOutput](err)
	}
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return identity.Fail[identity.SignInOutput](identity.NewException(identity.CodeInvalidPassword, err.Error()))
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return identity.Fail[identity.SignInOutput](err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	challenge, ok := p.challenges[session]
	if !ok || challenge.expired(p.now()) {
		delete(p.challenges, session)
		return identity.Fail[identity.SignInOutput](identity.NewException(identity.CodeNotAuthorized, "invalid session for the user"))
	}
	user, ok := p.users[challenge.userID]
	if !ok || user.Email != normalizeEmail(email) {
		return identity.Fail[identity.SignInOutput](identity.NewException(identity.CodeNotAuthorized, "invalid session for the user"))
	}
	delete(p.challenges, session)

	user.PasswordHash = hash
	user.PasswordChangeRequired = false

	tokens, err := p.issueTokens(user.ID)
	if err != nil {
		return identity.Fail[identity.SignInOutput](err)
	}
	return identity.Ok(identity.SignInOutput{Tokens: tokens})
}

func (p *Provider) SignUp(ctx context.Context, email, password, name string) identity.Result[identity.SignUpOutput] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.SignUpOutput](err)
	}
	email = normalizeEmail(email)
	if email == "" {
		return identity.Fail[identity.SignUpOutput](identity.NewException(identity.CodeInvalidParameter, "email is required"))
	}
	if err := ValidatePasswordStrength(password); err != nil {
		return identity.Fail[identity.SignUpOutput](identity.NewException(identity.CodeInvalidPassword, err.Error()))
	}
	hash, err := HashPassword(password)
	if err != nil {
		return identity.Fail[identity.SignUpOutput](err)
	}
	code, err := randomCode()
	if err != nil {
		return identity.Fail[identity.SignUpOutput](err)
	}

	p.lock.Lock()
	if _, ok := p.emailIds[email]; ok {
		p.lock.Unlock()
		return identity.Fail[identity.SignUpOutput](identity.NewException(identity.CodeUsernameExists, "email already registered"))
	}
	user := &User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
		DateJoined:   p.now(),
		confirmation: &pendingCode{code: code, expiresAt: p.now().Add(p.codeTTL)},
	}
	p.users[user.ID] = user
	p.emailIds[email] = user.ID
	p.lock.Unlock()

	if err := p.sender.SendCode(ctx, email, PurposeConfirmSignUp, code); err != nil {
		log.Err(err).Str("destination", maskEmail(email)).Msg("failed to deliver confirmation code")
	}
	return identity.Ok(identity.SignUpOutput{UserID: user.ID, ConfirmationRequired: true})
}

func (p *Provider) ConfirmSignUp(ctx context.Context, email, code string) identity.Result[identity.Empty] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.Empty](err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	user, err := p.userByEmail(email)
	if err != nil {
		return identity.Fail[identity.Empty](err)
	}
	if user.Confirmed {
		return identity.Fail[identity.Empty](identity.NewException(identity.CodeNotAuthorized, "user cannot be confirmed, current status is CONFIRMED"))
	}
	if err := p.checkCode(user.confirmation, code); err != nil {
		return identity.Fail[identity.Empty](err)
	}
	user.Confirmed = true
	user.confirmation = nil
	return identity.Ok(identity.Empty{})
}

func (p *Provider) ForgotPassword(ctx context.Context, email string) identity.Result[identity.CodeDelivery] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.CodeDelivery](err)
	}
	code, err := randomCode()
	if err != nil {
		return identity.Fail[identity.CodeDelivery](err)
	}

	p.lock.Lock()
	user, err := p.userByEmail(email)
	if err != nil {
		p.lock.Unlock()
		return identity.Fail[identity.CodeDelivery](err)
	}
	user.reset = &pendingCode{code: code, expiresAt: p.now().Add(p.codeTTL)}
	destination := user.Email
	p.lock.Unlock()

	if err := p.sender.SendCode(ctx, destination, PurposeForgotPassword, code); err != nil {
		log.Err(err).Str("destination", maskEmail(destination)).Msg("failed to deliver reset code")
	}
	return identity.Ok(identity.CodeDelivery{Destination: maskEmail(destination), Medium: deliveryMedium})
}

func (p *Provider) ConfirmForgotPassword(ctx context.Context, email, code, newPassword string) identity.Result[identity.Empty] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.Empty](err)
	}
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return identity.Fail[identity.Empty](identity.NewException(identity.CodeInvalidPassword, err.Error()))
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return identity.Fail[identity.Empty](err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	user, err := p.userByEmail(email)
	if err != nil {
		return identity.Fail[identity.Empty](err)
	}
	if err := p.checkCode(user.reset, code); err != nil {
		return identity.Fail[identity.Empty](err)
	}
	user.reset = nil
	user.PasswordHash = hash
	user.PasswordChangeRequired = false
	p.revokeUserTokens(user.ID)
	return identity.Ok(identity.Empty{})
}

func (p *Provider) RefreshProviderToken(ctx context.Context, refreshToken string) identity.Result[identity.ProviderTokens] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.ProviderTokens](err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	issued, ok := p.refreshTokens[refreshToken]
	if !ok || issued.expired(p.now()) {
		delete(p.refreshTokens, refreshToken)
		return identity.Fail[identity.ProviderTokens](identity.NewException(identity.CodeNotAuthorized, "invalid refresh token"))
	}

	accessToken, err := randomToken()
	if err != nil {
		return identity.Fail[identity.ProviderTokens](err)
	}
	expiresAt := p.now().Add(p.accessTTL)
	p.accessTokens[accessToken] = issuedToken{userID: issued.userID, expiresAt: expiresAt}

	// The refresh token is not rotated
	return identity.Ok(identity.ProviderTokens{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: expiresAt})
}

func (p *Provider) GetIdentity(ctx context.Context, accessToken string) identity.Result[identity.Identity] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.Identity](err)
	}

	p.lock.RLock()
	defer p.lock.RUnlock()

	user, err := p.userByAccessToken(accessToken)
	if err != nil {
		return identity.Fail[identity.Identity](err)
	}
	return identity.Ok(identity.Identity{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: user.Confirmed,
		Attributes:    copyAttributes(user.Attributes),
	})
}

func (p *Provider) GlobalSignOut(ctx context.Context, accessToken string) identity.Result[identity.Empty] {
	if err := ctx.Err(); err != nil {
		return identity.Fail[identity.Empty](err)
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	user, err := p.userByAccessToken(accessToken)
	if err != nil {
		return identity.Fail[identity.Empty](err)
	}
	p.revokeUserTokens(user.ID)
	return identity.Ok(identity.Empty{})
}

// userByEmail must be called with the lock held.
func (p *Provider) userByEmail(email string) (*User, error) {
	id, ok := p.emailIds[normalizeEmail(email)]
	if !ok {
		return nil, identity.NewException(identity.CodeUserNotFound, "user does not exist")
	}
	return p.users[id], nil
}

// userByAccessToken must be called with the lock held.
func (p *Provider) userByAccessToken(accessToken string) (*User, error) {
	issued, ok := p.accessTokens[accessToken]
	if !ok {
		return nil, identity.NewException(identity.CodeNotAuthorized, "invalid access token")
	}
	if issued.expired(p.now()) {
		return nil, identity.NewException(identity.CodeNotAuthorized, "access token has expired")
	}
	user, ok := p.users[issued.userID]
	if !ok {
		return nil, identity.NewException(identity.CodeUserNotFound, "user does not exist")
	}
	return user, nil
}

func (p *Provider) checkCode(pending *pendingCode, code string) error {
	if pending == nil || pending.code != strings.TrimSpace(code) {
		return identity.NewException(identity.CodeCodeMismatch, "invalid code provided")
	}
	if !p.now().Before(pending.expiresAt) {
		return identity.NewException(identity.CodeExpiredCode, "code has expired")
	}
	return nil
}

// issueTokens must be called with the write lock held.
func (p *Provider) issueTokens(userID string) (*identity.ProviderTokens, error) {
	accessToken, err := randomToken()
	if err != nil {
		return nil, err
	}
	refreshToken, err := randomToken()
	if err != nil {
		return nil, err
	}
	now := p.now()
	expiresAt := now.Add(p.accessTTL)
	p.accessTokens[accessToken] = issuedToken{userID: userID, expiresAt: expiresAt}
	p.refreshTokens[refreshToken] = issuedToken{userID: userID, expiresAt: now.Add(p.refreshTTL)}
	return &identity.ProviderTokens{AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: expiresAt}, nil
}

// revokeUserTokens must be called with the write lock held.
func (p *Provider) revokeUserTokens(userID string) {
	for token, issued := range p.accessTokens {
		if issued.userID == userID {
			delete(p.accessTokens, token)
		}
	}
	for token, issued := range p.refreshTokens {
		if issued.userID == userID {
			delete(p.refreshTokens, token)
		}
	}
}
