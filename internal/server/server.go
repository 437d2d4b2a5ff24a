package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"audit-central/backend/internal/auth"
	"audit-central/backend/internal/security"
)

// Server is the HTTP surface of the authentication service.
type Server struct {
	svc     *auth.Service
	codec   *security.Codec
	logger  *slog.Logger
	metrics *Metrics

	http *http.Server
}

func New(addr string, svc *auth.Service, codec *security.Codec, logger *slog.Logger) *Server {
	s := &Server{
		svc:     svc,
		codec:   codec,
		logger:  logger,
		metrics: NewMetrics(),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the full route tree. Exposed so tests can drive the server
// through httptest without binding a port.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", s.handleLogin)
		r.Post("/refresh-token", s.handleRefresh)
		r.Post("/validate-token", s.handleValidateToken)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/logout", s.handleLogout)
			r.Post("/switch-context", s.handleSwitchContext)
			r.Get("/me", s.handleMe)
		})
	})

	return r
}

// ListenAndServe runs the server until the listener fails or Shutdown is
// called.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
