package server

import (
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-auth/identity"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/rs/zerolog/log"
)

// SessionData is returned by every endpoint that creates or reports a session.
type SessionData struct {
	Session             *sessions.Session   `json:"session,omitempty"`
	Challenge           *identity.Challenge `json:"challenge,omitempty"`
	ProviderAccessToken string              `json:"provider_access_token,omitempty"`
	RedirectTo          string              `json:"redirect_to,omitempty"`
}

type loginRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CallbackURL string `json:"callback_url"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type confirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type confirmForgotPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type challengeRequest struct {
	Email       string `json:"email"`
	Session     string `json:"session"`
	NewPassword string `json:"new_password"`
	CallbackURL string `json:"callback_url"`
}

type logoutRequest struct {
	ProviderAccessToken string `json:"provider_access_token"`
}

type demoRequest struct {
	Account string `json:"account"`
}

// forgotPasswordMessage is returned whether or not the account exists.
const forgotPasswordMessage = "If an account exists for that email, a reset code has been sent."

// LoginHandler signs in with the provider and establishes a session. A provider challenge
// is returned with a 200 and no cookies. The optional callback_url is the gate's callbackUrl;
// redirect_to echoes it when it is a local path and falls back to the home route.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, err)
			return
		}
		if err := validateEmail(req.Email); err != nil {
			writeError(w, err)
			return
		}
		if err := validateRequired(field{"Password", req.Password}); err != nil {
			writeError(w, err)
			return
		}

		result := s.provider.SignIn(r.Context(), req.Email, req.Password)
		s.completeSignIn(w, r, result, req.CallbackURL)
	}
}

// ChallengeHandler answers a NEW_PASSWORD_REQUIRED challenge and establishes the session.
func (s *Server) ChallengeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req challengeRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, err)
			return
		}
		if err := validateEmail(req.Email); err != nil {
			writeError(w, err)
			return
		}
		if err := validateRequired(field{"Session", req.Session}, field{"New password", req.NewPassword}); err != nil {
			writeError(w, err)
			return
		}

		responder, ok := s.provider.(identity.ChallengeResponder)
		if !ok {
			writeError(w, apperrors.Provider(identity.CodeUnsupportedOperation, identity.FriendlyMessage(identity.CodeUnsupportedOperation), apperrors.ErrUnsupported))
			return
		}
		result := responder.RespondToNewPasswordChallenge(r.Context(), req.Email, req.Session, req.NewPassword)
		s.completeSignIn(w, r, result, req.CallbackURL)
	}
}

func (s *Server) completeSignIn(w http.ResponseWriter, r *http.Request, result identity.Result[identity.SignInOutput], callbackURL string) {
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}
	if !result.Success {
		writeError(w, result.Err())
		return
	}
	if result.Data.IsChallenge() {
		writeData(w, http.StatusOK, SessionData{Challenge: result.Data.Challenge})
		return
	}
	if result.Data.Tokens == nil {
		writeError(w, apperrors.Internal(apperrors.Wrapf(apperrors.ErrInternal, "sign in returned no tokens")))
		return
	}

	session, cookies, err := s.sessions.Establish(ctx, *result.Data.Tokens, nil)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	setCookies(w, cookies)
	writeData(w, http.StatusOK, SessionData{
		Session:             session,
		ProviderAccessToken: result.Data.Tokens.AccessToken,
		RedirectTo:          safeCallback(callbackURL, s.config.GetHomeRoute()),
	})
}

func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, err)
			return
		}
		if err := validateEmail(req.Email); err != nil {
			writeError(w, err)
			return
		}
		if err := validateRequired(field{"Password", req.Password}, field{"Name", req.Name}); err != nil {
			writeError(w, err)
			return
		}

		result := s.provider.SignUp(r.Context(), req.Email, req.Password, strings.TrimSpace(req.Name))
		if !result.Success {
			writeError(w, result.Err())
			return
		}
		writeData(w, http.StatusOK, result.Data)
	}
}

func (s *Server) ConfirmSignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, err)
			return
		}
		if err := validateEmail(req.Email); err != nil {
			writeError(w, err)
			return
		}
		if err := validateRequired(field{"Code", req.Code}); err != nil {
			writeError(w, err)
			return
		}

		result := s.provider.ConfirmSignUp(r.Context(), req.Email, strings.TrimSpace(req.Code))
		if !result.Success {
			writeError(w, result.Err())
			return
		}
		writeData(w, http.StatusOK, map[string]string{"message": "Account confirmed."})
	}
}

// ForgotPasswordHandler never reveals whether the email is registered.
func (s *Server) ForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotPasswordRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, err)
			return
		}
		if err := validateEmail(req.Email); err != nil {
			writeError(w, err)
			return
		}

		result := s.provider.ForgotPassword(r.Context(), req.Email)
		if !result.Success && result.Error != nil && result.Error.Code != identity.CodeUserNotFound {
			writeError(w, result.Err())
			return
		}
		writeData(w, http.StatusOK, map[string]string{"message": forgotPasswordMessage})
	}
}

func (s *Server) ConfirmForgotPasswordHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req confirmForgotPasswordRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, err)
			return
		}
		if err := validateEmail(req.Email); err != nil {
			writeError(w, err)
			return
		}
		if err := validateRequired(field{"Code", req.Code}, field{"New password", req.NewPassword}); err != nil {
			writeError(w, err)
			return
		}

		result := s.provider.ConfirmForgotPassword(r.Context(), req.Email, strings.TrimSpace(req.Code), req.NewPassword)
		if !result.Success {
			writeError(w, result.Err())
			return
		}
		writeData(w, http.StatusOK, map[string]string{"message": "Password has been reset."})
	}
}

// RefreshHandler mints a new access token from the refresh cookie, ignoring any access cookie.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session, cookies := s.sessions.Refresh(ctx, r)
		if ctx.Err() != nil {
			return
		}
		setCookies(w, cookies)
		if session == nil {
			writeError(w, apperrors.Unauthorized("Session expired. Please sign in again."))
			return
		}
		writeData(w, http.StatusOK, SessionData{Session: session})
	}
}

// LogoutHandler always clears the session cookies. The provider session is ended too
// when the client supplies the provider access token.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logoutRequest
		if err := decodeJSON(w, r, &req, true); err != nil {
			log.Debug().Err(err).Msg("ignoring unreadable logout body")
		}

		ctx := r.Context()
		cookies := s.sessions.Terminate(ctx, r)
		if ctx.Err() != nil {
			return
		}
		setCookies(w, cookies)
		if req.ProviderAccessToken != "" {
			if err := s.provider.GlobalSignOut(ctx, req.ProviderAccessToken).Err(); err != nil {
				log.Warn().Err(err).Msg("provider sign out failed")
			}
		}
		writeData(w, http.StatusOK, map[string]string{"message": "Signed out."})
	}
}

// SessionHandler reports the current session, refreshing it silently when needed.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		session, cookies := s.sessions.Current(ctx, r)
		if ctx.Err() != nil {
			return
		}
		setCookies(w, cookies)
		if session == nil {
			writeError(w, apperrors.Unauthorized("No active session."))
			return
		}
		writeData(w, http.StatusOK, SessionData{Session: session})
	}
}

func (s *Server) DemoLoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req demoRequest
		if err := decodeJSON(w, r, &req, false); err != nil {
			writeError(w, err)
			return
		}
		if err := validateRequired(field{"Account", req.Account}); err != nil {
			writeError(w, err)
			return
		}

		session, cookies, err := s.demo.Establish(s.sessions.Codec(), req.Account)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Info().Str("user_id", session.Identity.ID).Msg("demo session established")
		setCookies(w, cookies)
		writeData(w, http.StatusOK, SessionData{Session: session})
	}
}
