package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-session-auth/identity"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/sessions"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

// Server serves the auth API behind the access gate. Pages are registered by the
// application with RegisterRouteHandler and are gated the same way.
type Server struct {
	env      string // Environment (e.g., "DEV", "PROD")
	mux      *http.ServeMux
	handler  http.HandlerFunc
	routes   []string
	config   config.Config
	sessions *sessions.Service
	provider identity.Provider
	registry refresh.Registry
	demo     *sessions.DemoAccounts
	rules    PathRules
	cors     *cors.Cors
}

type Option func(*Server)

// WithDemoAccounts exposes the demo login endpoint. The same accounts must be given to
// the sessions.Service so the sentinel cookies resolve.
func WithDemoAccounts(demo *sessions.DemoAccounts) Option {
	return func(s *Server) {
		s.demo = demo
	}
}

// WithPathRules replaces the gate's default path classification.
func WithPathRules(rules PathRules) Option {
	return func(s *Server) {
		s.rules = rules
	}
}

func New(config config.Config, service *sessions.Service, provider identity.Provider, registry refresh.Registry, opts ...Option) (*Server, error) {
	s := &Server{
		env:      config.GetEnv(),
		mux:      http.NewServeMux(),
		config:   config,
		sessions: service,
		provider: provider,
		registry: registry,
		rules:    DefaultPathRules(config.GetLoginRoute(), config.GetRegisterRoute()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.demo != nil && config.IsProduction() {
		return nil, fmt.Errorf("[Server New] demo accounts are not allowed in production")
	}

	s.cors = cors.New(cors.Options{
		AllowedOrigins:   config.GetAllowedOrigins().List(),
		AllowedMethods:   config.GetAllowedMethods(),
		AllowedHeaders:   config.GetAllowedHeaders(),
		AllowCredentials: true,
		MaxAge:           86400,
	})

	s.initRoutes()
	s.logRoutes()

	// Every request passes the gate before it reaches a route
	s.handler = ChainMiddleware(s.mux.ServeHTTP, s.StdMiddleware(s.AccessGate)...)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		log.Debug().Str("method", colouredMethod(method)).Str("class", s.rules.Classify(path).String()).Msg(path)
	}
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
