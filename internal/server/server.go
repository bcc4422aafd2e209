package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/operate-experience/navsync/internal/channel"
	"github.com/operate-experience/navsync/internal/event"
	"github.com/operate-experience/navsync/internal/logging"
	"github.com/operate-experience/navsync/internal/navigation"
	"github.com/operate-experience/navsync/internal/page"
	"github.com/operate-experience/navsync/internal/route"
	"github.com/operate-experience/navsync/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Heartbeat    time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "127.0.0.1:3002",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
		Heartbeat:    SSEHeartbeatInterval,
	}
}

// Service is the agent state the API exposes.
type Service interface {
	AppID() string
	Bus() *event.Bus
	ChannelStatus() channel.Status
	RouterStats() navigation.Stats
	EventHistory() []types.NavigationEvent
	Location() route.Location
	Entries() []string
	PageState() (page.State, bool)
	Navigate(path string) error
	Back() bool
	Reconnect() error
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server
	svc     Service

	// closing ends open event streams on Shutdown.
	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a new Server instance.
func New(cfg *Config, svc Service) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = SSEHeartbeatInterval
	}

	s := &Server{
		config:  cfg,
		router:  NewRouter(cfg.EnableCORS),
		svc:     svc,
		closing: make(chan struct{}),
	}
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	s.httpSrv.RegisterOnShutdown(func() {
		s.closeOnce.Do(func() { close(s.closing) })
	})
	return s
}

// NewRouter returns a chi router with the standard middleware stack.
func NewRouter(enableCORS bool) *chi.Mux {
	r := chi.NewRouter()

	// Request ID
	r.Use(middleware.RequestID)

	// Logging
	r.Use(requestLogger)

	// Recover from panics
	r.Use(middleware.Recoverer)

	// Real IP
	r.Use(middleware.RealIP)

	// CORS
	if enableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Last-Event-ID", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	return r
}

// requestLogger logs each request through zerolog at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			logging.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("requestId", middleware.GetReqID(r.Context())).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpSrv.ListenAndServe()
}

// Serve serves on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	return s.httpSrv.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
