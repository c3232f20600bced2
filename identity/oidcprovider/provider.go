// Package oidcprovider adapts a hosted OpenID Connect provider to the identity contract.
// Sign in uses the resource owner password grant, identity comes from the userinfo
// endpoint and global sign out uses the token revocation endpoint when advertised.
// An id_token returned by the token endpoint is verified against the provider's JWKS.
// Account management (sign up, confirmation, password reset) is owned by the hosted
// provider's own UI and is reported as unsupported.
package oidcprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var _ identity.Provider = (*Provider)(nil)

type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

type Provider struct {
	provider      *oidc.Provider
	verifier      *oidc.IDTokenVerifier
	oauth2Config  *oauth2.Config
	revocationURL string
	httpClient    *http.Client
}

// discoveryClaims are the discovery document fields go-oidc does not expose directly.
type discoveryClaims struct {
	RevocationEndpoint string `json:"revocation_endpoint"`
}

// New discovers the provider's endpoints from {Issuer}/.well-known/openid-configuration.
func New(ctx context.Context, config Config, opts ...Option) (*Provider, error) {
	if config.Issuer == "" {
		return nil, errors.New("issuer is required for OIDC providers")
	}
	if config.ClientID == "" {
		return nil, errors.New("client id is required for OIDC providers")
	}

	p := &Provider{httpClient: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(p)
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, p.httpClient), config.Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC endpoints: %w", err)
	}

	var claims discoveryClaims
	if err := provider.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to extract provider claims: %w", err)
	}

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess}
	}

	endpoint := provider.Endpoint()
	p.provider = provider
	p.verifier = provider.Verifier(&oidc.Config{ClientID: config.ClientID})
	p.revocationURL = claims.RevocationEndpoint
	p.oauth2Config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   endpoint.AuthURL,
			TokenURL:  endpoint.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	log.Debug().Str("issuer", config.Issuer).Bool("revocation_supported", p.revocationURL != "").Msg("oidc provider discovered")
	return p, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) SignIn(ctx context.Context, email, password string) identity.Result[identity.SignInOutput] {
	if strings.TrimSpace(email) == "" || password == "" {
		return identity.Fail[identity.SignInOutput](identity.NewException(identity.CodeInvalidParameter, "email and password are required"))
	}

	token, err := p.oauth2Config.PasswordCredentialsToken(p.clientContext(ctx), strings.TrimSpace(email), password)
	if err != nil {
		return identity.Fail[identity.SignInOutput](classify(err))
	}
	tokens, err := p.verifiedTokens(ctx, token)
	if err != nil {
		return identity.Fail[identity.SignInOutput](err)
	}
	return identity.Ok(identity.SignInOutput{Tokens: tokens})
}

func (p *Provider) SignUp(context.Context, string, string, string) identity.Result[identity.SignUpOutput] {
	return identity.Fail[identity.SignUpOutput](unsupported("sign up"))
}

func (p *Provider) ConfirmSignUp(context.Context, string, string) identity.Result[identity.Empty] {
	return identity.Fail[identity.Empty](unsupported("confirm sign up"))
}

func (p *Provider) ForgotPassword(context.Context, string) identity.Result[identity.CodeDelivery] {
	return identity.Fail[identity.CodeDelivery](unsupported("forgot password"))
}

func (p *Provider) ConfirmForgotPassword(context.Context, string, string, string) identity.Result[identity.Empty] {
	return identity.Fail[identity.Empty](unsupported("confirm forgot password"))
}

func (p *Provider) RefreshProviderToken(ctx context.Context, refreshToken string) identity.Result[identity.ProviderTokens] {
	if refreshToken == "" {
		return identity.Fail[identity.ProviderTokens](identity.NewException(identity.CodeNotAuthorized, "refresh token is required"))
	}

	// An expired token forces the token source to use the refresh grant
	source := p.oauth2Config.TokenSource(p.clientContext(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	token, err := source.Token()
	if err != nil {
		return identity.Fail[identity.ProviderTokens](classify(err))
	}
	tokens, err := p.verifiedTokens(ctx, token)
	if err != nil {
		return identity.Fail[identity.ProviderTokens](err)
	}
	return identity.Ok(*tokens)
}

type userInfoClaims struct {
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
}

// knownClaims are mapped onto Identity fields and left out of Attributes.
var knownClaims = map[string]struct{}{
	"sub": {}, "email": {}, "email_verified": {}, "name": {},
}

func (p *Provider) GetIdentity(ctx context.Context, accessToken string) identity.Result[identity.Identity] {
	if accessToken == "" {
		return identity.Fail[identity.Identity](identity.NewException(identity.CodeNotAuthorized, "access token is required"))
	}

	info, err := p.provider.UserInfo(oidc.ClientContext(ctx, p.httpClient), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return identity.Fail[identity.Identity](classifyRejection(err))
	}

	var names userInfoClaims
	if err := info.Claims(&names); err != nil {
		return identity.Fail[identity.Identity](err)
	}
	var raw map[string]any
	if err := info.Claims(&raw); err != nil {
		return identity.Fail[identity.Identity](err)
	}

	attributes := make(map[string]string)
	for k, v := range raw {
		if _, ok := knownClaims[k]; ok {
			continue
		}
		if s, ok := v.(string); ok {
			attributes[k] = s
		}
	}
	if len(attributes) == 0 {
		attributes = nil
	}

	name := names.Name
	if name == "" {
		name = strings.TrimSpace(names.GivenName + " " + names.FamilyName)
	}

	return identity.Ok(identity.Identity{
		ID:            info.Subject,
		Email:         info.Email,
		Name:          name,
		EmailVerified: info.EmailVerified,
		Attributes:    attributes,
	})
}

// GlobalSignOut revokes the access token at the provider (RFC 7009).
func (p *Provider) GlobalSignOut(ctx context.Context, accessToken string) identity.Result[identity.Empty] {
	if p.revocationURL == "" {
		return identity.Fail[identity.Empty](unsupported("global sign out"))
	}
	if accessToken == "" {
		return identity.Fail[identity.Empty](identity.NewException(identity.CodeNotAuthorized, "access token is required"))
	}

	form := url.Values{
		"token":           {accessToken},
		"token_type_hint": {"access_token"},
		"client_id":       {p.oauth2Config.ClientID},
	}
	if p.oauth2Config.ClientSecret != "" {
		form.Set("client_secret", p.oauth2Config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return identity.Fail[identity.Empty](err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return identity.Fail[identity.Empty](classify(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return identity.Ok(identity.Empty{})
	case resp.StatusCode == http.StatusTooManyRequests:
		return identity.Fail[identity.Empty](identity.NewException(identity.CodeTooManyRequests, resp.Status))
	case resp.StatusCode >= 500:
		return identity.Fail[identity.Empty](identity.NewException(identity.CodeProviderUnavailable, resp.Status))
	default:
		return identity.Fail[identity.Empty](identity.NewException(identity.CodeNotAuthorized, resp.Status))
	}
}

func unsupported(operation string) error {
	return identity.NewException(identity.CodeUnsupportedOperation, operation+" is managed by the hosted provider")
}

// VerifyIDToken checks the signature, issuer, audience and expiry of a raw id_token.
func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	return p.verifier.Verify(oidc.ClientContext(ctx, p.httpClient), rawIDToken)
}

// verifiedTokens rejects a token response whose id_token fails verification.
// Responses without an id_token are accepted as they are.
func (p *Provider) verifiedTokens(ctx context.Context, token *oauth2.Token) (*identity.ProviderTokens, error) {
	tokens := providerTokens(token)
	if tokens.IDToken == "" {
		return tokens, nil
	}
	if _, err := p.VerifyIDToken(ctx, tokens.IDToken); err != nil {
		log.Debug().Err(err).Msg("id token rejected")
		return nil, classifyRejection(err)
	}
	return tokens, nil
}

func providerTokens(token *oauth2.Token) *identity.ProviderTokens {
	tokens := &identity.ProviderTokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		tokens.IDToken = idToken
	}
	return tokens
}

// oauthErrorCodes maps RFC 6749 error codes to provider exception names.
var oauthErrorCodes = map[string]string{
	"invalid_grant":           identity.CodeNotAuthorized,
	"invalid_client":          identity.CodeNotAuthorized,
	"unauthorized_client":     identity.CodeNotAuthorized,
	"invalid_request":         identity.CodeInvalidParameter,
	"invalid_scope":           identity.CodeInvalidParameter,
	"unsupported_grant_type":  identity.CodeUnsupportedOperation,
	"slow_down":               identity.CodeTooManyRequests,
	"temporarily_unavailable": identity.CodeProviderUnavailable,
}

// classify turns transport and OAuth errors into provider exceptions.
// Context errors pass through so they translate to a canceled request.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if code, ok := oauthErrorCodes[retrieveErr.ErrorCode]; ok {
			return identity.NewException(code, retrieveErr.ErrorDescription)
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests {
			return identity.NewException(identity.CodeTooManyRequests, retrieveErr.Error())
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= 500 {
			return identity.NewException(identity.CodeProviderUnavailable, retrieveErr.Error())
		}
		return identity.NewException(identity.CodeNotAuthorized, retrieveErr.Error())
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return identity.NewException(identity.CodeProviderUnavailable, urlErr.Error())
	}
	return err
}

// classifyRejection treats any non transport failure as a rejected token.
func classifyRejection(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return identity.NewException(identity.CodeProviderUnavailable, urlErr.Error())
	}
	return identity.NewException(identity.CodeNotAuthorized, err.Error())
}
