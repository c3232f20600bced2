package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-session-auth/sessions"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeySession stores the resolved *sessions.Session
const ContextKeySession ContextKey = "session"

// SessionFromContext returns the session the gate resolved for this request.
func SessionFromContext(ctx context.Context) (*sessions.Session, bool) {
	session, ok := ctx.Value(ContextKeySession).(*sessions.Session)
	return session, ok && session != nil
}

// PathClass is how the gate treats a request path.
type PathClass int

const (
	// PathProtected requires a session. It is the default for unmatched paths.
	PathProtected PathClass = iota
	// PathBootstrap creates or refreshes sessions and is never gated.
	PathBootstrap
	// PathPublic is served to anyone.
	PathPublic
	// PathAuthOnly is for users without a session, such as the login page.
	PathAuthOnly
)

func (c PathClass) String() string {
	switch c {
	case PathBootstrap:
		return "bootstrap"
	case PathPublic:
		return "public"
	case PathAuthOnly:
		return "auth-only"
	default:
		return "protected"
	}
}

// PathRule matches a path exactly, or by prefix when Prefix is set.
type PathRule struct {
	Path   string
	Prefix bool
	Class  PathClass
}

func (p PathRule) matches(path string) bool {
	if p.Prefix {
		return strings.HasPrefix(path, p.Path)
	}
	return path == p.Path
}

// PathRules is evaluated in order, the first match wins.
type PathRules []PathRule

// DefaultPathRules gates everything except the auth API, health, static assets and the
// login and register pages. Other auth-only pages are added with WithPathRules.
func DefaultPathRules(loginRoute, registerRoute string) PathRules {
	return PathRules{
		{Path: RouteAPIAuthPrefix, Prefix: true, Class: PathBootstrap},
		{Path: RouteHealth, Class: PathBootstrap},
		{Path: RouteStaticPrefix, Prefix: true, Class: PathPublic},
		{Path: RouteFavicon, Class: PathPublic},
		{Path: loginRoute, Class: PathAuthOnly},
		{Path: registerRoute, Class: PathAuthOnly},
	}
}

func (p PathRules) Classify(path string) PathClass {
	for _, rule := range p {
		if rule.matches(path) {
			return rule.Class
		}
	}
	return PathProtected
}

// AccessGate decides for every request whether to forward it, send it to the login page,
// or send an authenticated user away from an auth-only page. A resolved session is stored
// in the request context. When the client has gone away nothing is written.
func (s *Server) AccessGate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		class := s.rules.Classify(r.URL.Path)
		if class == PathBootstrap || class == PathPublic {
			next(w, r)
			return
		}

		ctx := r.Context()
		session, cookies := s.sessions.Current(ctx, r)
		if ctx.Err() != nil {
			return
		}
		setCookies(w, cookies)

		switch {
		case class == PathAuthOnly && session != nil:
			http.Redirect(w, r, s.config.GetHomeRoute(), http.StatusSeeOther)
			return
		case class == PathProtected && session == nil:
			http.Redirect(w, r, loginRedirect(s.config.GetLoginRoute(), r), http.StatusSeeOther)
			return
		}

		SetSecurityHeaders(w)
		if session != nil {
			r = r.WithContext(context.WithValue(ctx, ContextKeySession, session))
		}
		next(w, r)
	}
}

// loginRedirect points at the login page with a callback back to the original request.
func loginRedirect(loginRoute string, r *http.Request) string {
	query := url.Values{"callbackUrl": {r.URL.RequestURI()}}
	return loginRoute + "?" + query.Encode()
}

// safeCallback only allows same-origin relative paths as a post-login destination.
func safeCallback(raw, fallback string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return fallback
	}
	return raw
}

func setCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, cookie := range cookies {
		http.SetCookie(w, cookie)
	}
}
