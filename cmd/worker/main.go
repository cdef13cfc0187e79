package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindwavedao/nila-exchange/service/config"
	"github.com/mindwavedao/nila-exchange/service/mail"
	"github.com/mindwavedao/nila-exchange/service/metrics"
	natspkg "github.com/mindwavedao/nila-exchange/service/nats"
)

const consumerDurableName = "nila-email-worker"

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// The worker is the only process that sends mail, so SMTP settings are
	// validated here rather than in config.Load.
	if err := cfg.ValidateSMTP(); err != nil {
		slog.Error("invalid SMTP configuration", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting email worker",
		"nats_url", cfg.NATSURL,
		"smtp_host", cfg.SMTPHost,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Start metrics HTTP server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Initialize SMTP mailer
	mailer, err := mail.NewSMTPMailer(cfg)
	if err != nil {
		logger.Error("failed to create SMTP mailer", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized SMTP mailer", "host", cfg.SMTPHost, "port", cfg.SMTPPort)

	notifier := mail.NewNotifier(mailer, metricsCollector, logger)

	// Initialize durable NATS consumer for update events
	consumer, err := natspkg.NewConsumer(
		cfg.NATSURL,
		consumerDurableName,
		natspkg.SubjectForType(natspkg.EventTypeUpdated),
		logger,
	)
	if err != nil {
		logger.Error("failed to create NATS consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	logger.Info("connected to NATS", "url", cfg.NATSURL, "durable", consumerDurableName)

	// Consume in background until the context is cancelled
	consumerErrors := make(chan error, 1)
	go func() {
		consumerErrors <- consumer.Consume(ctx, notifier.HandleTransactionEvent)
	}()

	logger.Info("email worker initialized, all dependencies ready")

	// Wait for shutdown signal or consumer error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-consumerErrors:
		if err != nil {
			logger.Error("consumer error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		cancel()

		// Give the in-flight handler a moment to finish
		select {
		case <-consumerErrors:
		case <-time.After(10 * time.Second):
			logger.Warn("consumer did not stop in time")
		}
	}

	logger.Info("email worker shutdown complete")
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
