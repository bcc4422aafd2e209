package server

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	r.Get("/health", s.health)

	// Push connection
	r.Get("/status", s.getStatus)
	r.Post("/reconnect", s.reconnect)

	// Navigation
	r.Get("/history", s.getHistory)
	r.Get("/location", s.getLocation)
	r.Post("/navigate", s.navigate)
	r.Post("/back", s.back)

	// Mounted page
	r.Get("/page", s.getPage)

	// Event streaming (SSE)
	r.Get("/event", s.localEvents)
}
