package server

import "net/http"

func (s *Server) initRoutes() {
	depositMethod := s.config.GetDepositMethod()
	withdrawMethod := s.config.GetWithdrawMethod()

	// Provider redirect lands in the user's browser
	s.RegisterRouteHandler(depositMethod+" "+RouteStore, ChainMiddleware(s.DepositHandler(), s.BrowserMiddleware()...))

	// Client poll
	s.RegisterRouteHandler(withdrawMethod+" "+RouteStore, ChainMiddleware(s.WithdrawHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler(http.MethodOptions+" "+RouteStore, ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	// A GET pattern also answers HEAD; link previews must not deposit or withdraw
	s.RegisterRouteHandler(http.MethodHead+" "+RouteStore, ChainMiddleware(s.MethodNotAllowedHandler(), s.APIMiddleware()...))
}
