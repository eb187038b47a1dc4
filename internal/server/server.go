// Package server exposes the reviewer service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/last-minute-learner/reviewer-api/internal/cache"
	"github.com/last-minute-learner/reviewer-api/internal/config"
	"github.com/last-minute-learner/reviewer-api/internal/errorlog"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/last-minute-learner/reviewer-api/internal/telemetry"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Route patterns
const (
	RouteGenerateReviewer = "/api/generate-reviewer"
	RouteCustom           = "/api/custom"
)

const (
	readHeaderTimeout = 10 * time.Second
	maxHeaderBytes    = 1 << 20

	// limiterTTL is how long an idle client's limiter is kept
	limiterTTL = 10 * time.Minute
)

// Server serves the reviewer API
type Server struct {
	cfg      *config.Config
	service  *reviewer.Service
	errorLog *errorlog.Logger
	logger   *logrus.Logger

	origins  map[string]struct{}
	limiters *cache.Cache[*rate.Limiter]
}

// New creates a server. errorLog may be nil.
func New(cfg *config.Config, service *reviewer.Service, errorLog *errorlog.Logger, logger *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		service:  service,
		errorLog: errorLog,
		logger:   logger,
		origins:  make(map[string]struct{}, len(cfg.AllowedOrigins)),
	}

	for _, origin := range cfg.AllowedOrigins {
		s.origins[origin] = struct{}{}
	}

	if cfg.RateLimit.Enabled() {
		s.limiters = cache.NewCache[*rate.Limiter](limiterTTL)
	}

	return s
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST "+RouteGenerateReviewer, s.rateLimit(http.HandlerFunc(s.handleGenerateReviewer)))
	mux.HandleFunc("GET "+RouteCustom, s.handleCustom)

	var h http.Handler = mux
	h = s.cors(h)
	h = s.logRequests(h)
	h = s.withRequestID(h)

	return telemetry.WrapHandler(h, "reviewer-api")
}

// Run listens on the configured port and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully within the configured shutdown timeout
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}

	if s.limiters != nil {
		go s.purgeLimiters(ctx)
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Infof("Reviewer API listening on %s", ln.Addr())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case serverErr <- err:
			case <-ctx.Done():
			}
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received, stopping HTTP server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("HTTP server shutdown failed")
		return err
	}

	s.logger.Info("HTTP server stopped gracefully")
	return nil
}

func (s *Server) purgeLimiters(ctx context.Context) {
	ticker := time.NewTicker(limiterTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.limiters.Purge(); n > 0 {
				s.logger.WithField("removed", n).Debug("Purged idle rate limiters")
			}
		}
	}
}
