package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wolfman30/trust-engine/internal/trust"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

// Queue is the transport behavioral events travel on between producers and
// the ingest worker.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one received queue entry.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Publisher enqueues behavioral events for asynchronous scoring.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("ingest: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Publish validates the event and sends it. Invalid events never reach the
// queue.
func (p *Publisher) Publish(ctx context.Context, ev trust.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("ingest: encode event: %w", err)
	}
	if err := p.queue.Send(ctx, string(body)); err != nil {
		return fmt.Errorf("ingest: enqueue event: %w", err)
	}
	p.logger.Debug("behavior event enqueued", "event_id", ev.ID, "actor_id", ev.ActorID, "type", ev.Type)
	return nil
}
