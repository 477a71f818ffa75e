package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	appbootstrap "github.com/wolfman30/trust-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/trust-engine/internal/config"
	"github.com/wolfman30/trust-engine/internal/ingest"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("trust worker cannot run when USE_MEMORY_QUEUE=true; the API process runs inline workers instead")
		os.Exit(1)
	}
	if cfg.EventQueueURL == "" {
		logger.Error("EVENT_QUEUE_URL is required")
		os.Exit(1)
	}

	rt, err := appbootstrap.BuildRuntime(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to build runtime", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	worker := ingest.NewWorker(rt.Engine, rt.Queue, logger,
		ingest.WithWorkerCount(cfg.WorkerCount),
		ingest.WithReceiveWaitSeconds(20),
		ingest.WithObserver(rt.Metrics),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)
	logger.Info("trust worker started", "workers", cfg.WorkerCount, "queue", cfg.EventQueueURL)

	metricsSrv := &http.Server{Addr: ":" + cfg.Port, Handler: rt.MetricsHandler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down trust worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
		logger.Info("trust worker stopped")
	case <-doneCtx.Done():
		logger.Warn("timed out waiting for workers to stop")
	}
}
