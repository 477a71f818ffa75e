package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/trust-engine/internal/api/router"
	appbootstrap "github.com/wolfman30/trust-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/trust-engine/internal/config"
	"github.com/wolfman30/trust-engine/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/trust-engine/internal/http/middleware"
	"github.com/wolfman30/trust-engine/internal/ingest"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

func main() {
	// Local runs read .env; deployed environments set real variables.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting trust engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	rt, err := appbootstrap.BuildRuntime(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With the in-memory queue nothing else can consume it, so run the
	// ingest workers inline.
	var inline *ingest.Worker
	if cfg.UseMemoryQueue && rt.Queue != nil {
		inline = ingest.NewWorker(rt.Engine, rt.Queue, logger,
			ingest.WithWorkerCount(cfg.WorkerCount),
			ingest.WithObserver(rt.Metrics),
		)
		inline.Start(ctx)
		logger.Info("inline ingest workers started", "count", cfg.WorkerCount)
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	srv := newServer(cfg, rt, limiter, logger)

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if inline != nil {
		inline.Wait()
	}
	limiter.Close()
	rt.Close()
	logger.Info("server stopped")
}

func newServer(cfg *appconfig.Config, rt *appbootstrap.Runtime, limiter *httpmiddleware.RateLimiter, logger *logging.Logger) *http.Server {
	trustHandler := handlers.NewTrustHandler(rt.Engine, rt.Dispatcher, rt.Audit, logger)
	if rt.Queue != nil {
		trustHandler.WithEventPublisher(ingest.NewPublisher(rt.Queue, logger))
	}

	r := router.New(&router.Config{
		Logger:             logger,
		Trust:              trustHandler,
		Health:             handlers.NewHealthHandler(rt.HealthChecks()),
		MetricsHandler:     rt.MetricsHandler(),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		RateLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSOrigins,
	})

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
