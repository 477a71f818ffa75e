package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/trust-engine/internal/trust"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
	maxReceiveBackoff    = 5 * time.Second
)

// Ingest outcomes reported to the Observer.
const (
	StatusApplied = "applied"
	StatusInvalid = "invalid"
	StatusDenied  = "denied"
	StatusRetry   = "retry"
	StatusFailed  = "failed"
)

// EventIngester is the engine surface the worker drives.
type EventIngester interface {
	IngestEvent(ctx context.Context, ev trust.Event) (*trust.TrustRecord, error)
}

// Observer receives one status per handled message.
type Observer interface {
	ObserveIngest(status string)
}

type noopObserver struct{}

func (noopObserver) ObserveIngest(string) {}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
	observer         Observer
}

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// WithObserver reports ingest outcomes, typically to metrics.
func WithObserver(o Observer) WorkerOption {
	return func(cfg *workerConfig) {
		if o != nil {
			cfg.observer = o
		}
	}
}

// Worker consumes behavioral events from a queue and feeds them to the
// engine. Messages are acknowledged once the engine either applied them or
// rejected them for good; retryable failures stay on the queue.
type Worker struct {
	engine EventIngester
	queue  Queue
	logger *logging.Logger
	cfg    workerConfig
	wg     sync.WaitGroup
}

func NewWorker(engine EventIngester, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if engine == nil {
		panic("ingest: engine cannot be nil")
	}
	if queue == nil {
		panic("ingest: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
		observer:         noopObserver{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{engine: engine, queue: queue, logger: logger, cfg: cfg}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("ingest worker started", "worker_id", workerID)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("ingest worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.logger.Error("failed to receive behavior events", "error", err, "worker_id", workerID)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < maxReceiveBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg Message) {
	var ev trust.Event
	if err := json.Unmarshal([]byte(msg.Body), &ev); err != nil {
		w.logger.Error("failed to decode behavior event", "error", err, "msg_id", msg.ID)
		w.cfg.observer.ObserveIngest(StatusInvalid)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	_, err := w.engine.IngestEvent(ctx, ev)
	status := classify(err)
	w.cfg.observer.ObserveIngest(status)

	switch status {
	case StatusApplied:
		w.logger.Debug("behavior event applied", "event_id", ev.ID, "actor_id", ev.ActorID)
	case StatusRetry:
		w.logger.Warn("behavior event deferred", "event_id", ev.ID, "actor_id", ev.ActorID, "error", err)
		return
	case StatusDenied, StatusInvalid:
		w.logger.Info("behavior event dropped", "event_id", ev.ID, "actor_id", ev.ActorID, "reason", trust.Reason(err))
	default:
		w.logger.Error("behavior event failed", "event_id", ev.ID, "actor_id", ev.ActorID, "error", err)
	}
	w.deleteMessage(msg.ReceiptHandle)
}

// classify maps an engine answer to an ingest status. Only persistence and
// version conflicts are worth redelivering.
func classify(err error) string {
	switch {
	case err == nil:
		return StatusApplied
	case trust.IsRetryable(err):
		return StatusRetry
	case errors.Is(err, trust.ErrAgreementRequired):
		return StatusDenied
	case errors.Is(err, trust.ErrInvalidEvent):
		return StatusInvalid
	default:
		return StatusFailed
	}
}

// deleteMessage runs detached from the worker context so shutdown does not
// leave a processed message on the queue.
func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	deleteCtx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()
	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete behavior event", "error", err)
	}
}
