package server

func (s *Server) initRoutes() {
	// Session bootstrap API
	s.RegisterRouteHandler("POST "+RouteAuthLogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthSignup, ChainMiddleware(s.SignupHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthConfirm, ChainMiddleware(s.ConfirmSignupHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthForgotPassword, ChainMiddleware(s.ForgotPasswordHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthConfirmForgotPasswd, ChainMiddleware(s.ConfirmForgotPasswordHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthChallenge, ChainMiddleware(s.ChallengeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthLogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	if s.demo != nil {
		s.RegisterRouteHandler("POST "+RouteAuthDemo, ChainMiddleware(s.DemoLoginHandler(), s.APIMiddleware()...))
	}

	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
}
