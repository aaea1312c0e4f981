package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/interview-recorder/internal/config"
	"github.com/terra-clan/interview-recorder/internal/journal"
	"github.com/terra-clan/interview-recorder/internal/metrics"
	"github.com/terra-clan/interview-recorder/internal/recorder"
)

// requestTimeout bounds every call except submit and the event stream,
// which last as long as an upload or a connected UI
const requestTimeout = 90 * time.Second

// Server represents the HTTP control API
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	manager        recorder.Manager
	metrics        *metrics.Metrics
	history        journal.Reader
	authMiddleware *AuthMiddleware

	// event stream keepalive
	pongWait     time.Duration
	pingInterval time.Duration
}

// NewServer creates a new API server. history may be nil when no journal database is configured.
func NewServer(
	cfg config.ServerConfig,
	manager recorder.Manager,
	m *metrics.Metrics,
	history journal.Reader,
) *Server {
	s := &Server{
		config:         cfg,
		manager:        manager,
		metrics:        m,
		history:        history,
		authMiddleware: NewAuthMiddleware(cfg.APIKey),
		pongWait:       wsPongWait,
		pingInterval:   wsPingInterval,
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (outside versioned API - public)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)

		r.With(middleware.Timeout(requestTimeout)).Get("/metrics", s.handleMetrics)

		r.Route("/sessions", func(r chi.Router) {
			r.With(middleware.Timeout(requestTimeout)).Get("/", s.handleListSessions)
			r.With(middleware.Timeout(requestTimeout)).Post("/", s.handleCreateSession)

			r.Route("/{id}", func(r chi.Router) {
				// History outlives the session, so it is served without a live session lookup
				r.With(middleware.Timeout(requestTimeout)).Get("/history", s.handleSessionHistory)

				r.Group(func(r chi.Router) {
					r.Use(s.sessionContext)

					r.With(middleware.Timeout(requestTimeout)).Get("/", s.handleGetSession)
					r.With(middleware.Timeout(requestTimeout)).Delete("/", s.handleDeleteSession)
					r.With(middleware.Timeout(requestTimeout)).Post("/proceed", s.handleAction(actionProceed))
					r.With(middleware.Timeout(requestTimeout)).Post("/camera", s.handleAction(actionCamera))
					r.With(middleware.Timeout(requestTimeout)).Post("/begin", s.handleAction(actionBegin))
					r.With(middleware.Timeout(requestTimeout)).Post("/start", s.handleAction(actionStart))
					r.With(middleware.Timeout(requestTimeout)).Post("/stop", s.handleAction(actionStop))
					r.Post("/submit", s.handleAction(actionSubmit))
					r.Get("/events", s.handleSessionEvents)
				})
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
