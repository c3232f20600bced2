package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth API - session bootstrap, always reachable
	RouteAPIAuthPrefix           = "/api/auth/"
	RouteAuthLogin               = "/api/auth/login"
	RouteAuthSignup              = "/api/auth/signup"
	RouteAuthConfirm             = "/api/auth/confirm"
	RouteAuthForgotPassword      = "/api/auth/forgot-password"
	RouteAuthConfirmForgotPasswd = "/api/auth/confirm-forgot-password"
	RouteAuthChallenge           = "/api/auth/challenge"
	RouteAuthRefresh             = "/api/auth/refresh"
	RouteAuthLogout              = "/api/auth/logout"
	RouteAuthSession             = "/api/auth/session"
	RouteAuthDemo                = "/api/auth/demo"

	RouteHealth = "/healthz"

	// Public assets, served by the application
	RouteStaticPrefix = "/static/"
	RouteFavicon      = "/favicon.ico"
)
