// Package server exposes the analyses over HTTP.
//
// Routes:
//
//	GET  /health                   → liveness
//	GET  /api/actions              → available analyses
//	POST /api/analyses/{action}    → run one analysis (JSON or multipart form, job text or job_url)
//	GET  /api/admin/activity       → recent activity records (basic auth)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/nexhire/internal/admin"
	"github.com/spigell/nexhire/internal/ingestion"
	"github.com/spigell/nexhire/internal/screening"
	"github.com/spigell/nexhire/internal/store"
)

const (
	defaultAddr     = ":8080"
	shutdownTimeout = 10 * time.Second
)

// Analyzer runs a named analysis. *screening.Service satisfies it.
type Analyzer interface {
	Run(ctx context.Context, action screening.Action, in screening.Input) (*screening.Outcome, error)
}

// JobFetcher downloads a job posting. *ingestion.Fetcher satisfies it.
type JobFetcher interface {
	FetchJob(ctx context.Context, rawURL string) (string, error)
}

// Config configures the HTTP server.
type Config struct {
	Addr string `mapstructure:"addr"`
	// RequestTimeout bounds a whole analysis request, retries included.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	analyzer Analyzer
	store    store.Store
	admin    admin.Credentials
	jobs     JobFetcher
	logger   *zap.Logger
}

// New creates a Server.
func New(cfg Config, analyzer Analyzer, st store.Store, creds admin.Credentials, logger *zap.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 3 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		cfg:      cfg,
		analyzer: analyzer,
		store:    st,
		admin:    creds,
		jobs:     ingestion.NewFetcher(),
		logger:   logger,
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/actions", s.handleActions)
	mux.HandleFunc("POST /api/analyses/{action}", s.handleAnalysis)
	mux.Handle("GET /api/admin/activity", s.requireAdmin(http.HandlerFunc(s.handleActivity)))

	return s.withUser(s.withLogging(mux))
}

// ListenAndServe serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
