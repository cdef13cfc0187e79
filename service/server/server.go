package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindwavedao/nila-exchange/service/config"
	"github.com/mindwavedao/nila-exchange/service/lifecycle"
	"github.com/mindwavedao/nila-exchange/service/metrics"
	"github.com/mindwavedao/nila-exchange/service/webhook"
)

// Server represents the HTTP server for the exchange gateway.
type Server struct {
	addr     string
	cfg      *config.Config
	svc      *lifecycle.Service
	verifier *webhook.Verifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, svc *lifecycle.Service, verifier *webhook.Verifier, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		cfg:      cfg,
		svc:      svc,
		verifier: verifier,
		metrics:  m,
		logger:   logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// routes builds the request mux. Split out from Start so tests can exercise
// routing (including method rejection) without binding a listener.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Transaction routes. Wrong methods on registered paths get 405 from the
	// method-pattern mux.
	mux.Handle("POST /api/v1/transactions",
		s.instrument("/api/v1/transactions",
			handleCreateTransaction(s.svc, s.cfg, s.logger)))
	mux.Handle("GET /api/v1/transactions/status",
		s.instrument("/api/v1/transactions/status",
			handleTransactionStatus(s.svc, s.logger)))

	// Payment processor webhook ingress
	mux.Handle("POST /api/v1/webhooks/instaxchange",
		s.instrument("/api/v1/webhooks/instaxchange",
			handleInstaxchangeWebhook(s.svc, s.verifier, s.metrics, s.logger)))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("metrics endpoint enabled")
	}

	return mux
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// instrument wraps a handler with HTTP metrics collection when metrics are
// configured.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
}
