package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sundayezeilo/linkstat/internal/auth"
	"github.com/sundayezeilo/linkstat/internal/config"
	"github.com/sundayezeilo/linkstat/internal/httpx"
	"github.com/sundayezeilo/linkstat/internal/shortener"
)

// RateLimits holds the per-client limiters. A nil limiter lets every request through.
type RateLimits struct {
	Redirect *httpx.RateLimiter
	API      *httpx.RateLimiter
	Create   *httpx.RateLimiter
}

// Server represents the HTTP server with all dependencies.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	handler *shortener.Handler
	auth    auth.Authenticator
	limits  RateLimits
	server  *http.Server
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *slog.Logger, handler *shortener.Handler, authn auth.Authenticator, limits RateLimits) *Server {
	return &Server{
		config:  cfg,
		logger:  logger,
		handler: handler,
		auth:    authn,
		limits:  limits,
	}
}

// Handler returns the fully routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.setupRoutes())
}

// Start starts the HTTP server and blocks until ctx is done, a shutdown
// signal arrives or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server",
			"addr", s.server.Addr,
			"env", s.config.App.Environment,
		)
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.logger.Info("received shutdown signal", "signal", sig.String())

	case <-ctx.Done():
		s.logger.Info("context canceled, stopping server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /x/health", s.healthCheckHandler)

	api := httpx.Chain(
		s.limit(s.limits.API),
		auth.Require(s.auth, s.logger),
	)
	create := httpx.Chain(api, s.limit(s.limits.Create))

	mux.Handle("POST /api/links", create(http.HandlerFunc(s.handler.CreateLink)))
	mux.Handle("GET /api/links", api(http.HandlerFunc(s.handler.ListLinks)))
	mux.Handle("GET /api/links/{code}", api(http.HandlerFunc(s.handler.GetLink)))
	mux.Handle("DELETE /api/links/{code}", api(http.HandlerFunc(s.handler.DeleteLink)))
	mux.Handle("GET /api/links/{code}/clicks", api(http.HandlerFunc(s.handler.ListClicks)))
	mux.Handle("GET /api/links/{code}/stats", api(http.HandlerFunc(s.handler.LinkStats)))
	mux.Handle("GET /api/links/{code}/qr", api(http.HandlerFunc(s.handler.LinkQR)))

	mux.Handle("GET /{code}", s.limit(s.limits.Redirect)(http.HandlerFunc(s.handler.Redirect)))

	return mux
}

// limit keys rl by client IP. A nil rl disables limiting.
func (s *Server) limit(rl *httpx.RateLimiter) httpx.Middleware {
	if rl == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	trustProxy := s.config.Server.TrustProxy
	return rl.Middleware(func(r *http.Request) string {
		return httpx.ClientIP(r, trustProxy)
	})
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return httpx.Chain(
		httpx.Recovery(s.logger), // Outermost: catch panics
		httpx.RequestID,
		httpx.Logger(s.logger),
		httpx.CORS(s.config.Server.CORSOrigins),
	)(handler)
}

// healthCheckHandler handles health check requests.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.config.Observability.ServiceName,
		"version": s.config.Observability.ServiceVersion,
	})
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
