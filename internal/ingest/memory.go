package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultVisibilityTimeout = 30 * time.Second

// MemoryQueue is a Queue backed by a buffered channel. Messages that are
// received but not deleted within the visibility timeout are redelivered,
// matching SQS semantics for local runs.
type MemoryQueue struct {
	ch         chan Message
	visibility time.Duration
	now        func() time.Time

	mu       sync.Mutex
	inflight map[string]inflightMessage
}

type inflightMessage struct {
	msg      Message
	deadline time.Time
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a MemoryQueue with the provided buffer capacity.
func NewMemoryQueue(buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 128
	}
	return &MemoryQueue{
		ch:         make(chan Message, buffer),
		visibility: defaultVisibilityTimeout,
		now:        time.Now,
		inflight:   map[string]inflightMessage{},
	}
}

// WithVisibilityTimeout sets how long a received message stays hidden.
func (q *MemoryQueue) WithVisibilityTimeout(d time.Duration) *MemoryQueue {
	if d > 0 {
		q.visibility = d
	}
	return q
}

// Send enqueues a payload or blocks until ctx is done.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	return q.push(ctx, Message{ID: uuid.NewString(), Body: body})
}

func (q *MemoryQueue) push(ctx context.Context, msg Message) error {
	msg.ReceiptHandle = uuid.NewString()
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message is available, ctx is done, or waitSeconds
// elapses.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	q.requeueExpired(ctx)

	var timeout <-chan time.Time
	if waitSeconds > 0 {
		timer := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout:
		return nil, nil
	case msg := <-q.ch:
		return q.collect(msg, maxMessages), nil
	}
}

// Delete acknowledges a received message.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	delete(q.inflight, receiptHandle)
	q.mu.Unlock()
	return nil
}

// Len reports queued plus unacknowledged messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.inflight)
}

func (q *MemoryQueue) collect(first Message, max int) []Message {
	messages := []Message{first}
	for len(messages) < max {
		select {
		case msg := <-q.ch:
			messages = append(messages, msg)
		default:
			return q.track(messages)
		}
	}
	return q.track(messages)
}

func (q *MemoryQueue) track(messages []Message) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	deadline := q.now().Add(q.visibility)
	for _, m := range messages {
		q.inflight[m.ReceiptHandle] = inflightMessage{msg: m, deadline: deadline}
	}
	return messages
}

func (q *MemoryQueue) requeueExpired(ctx context.Context) {
	now := q.now()
	q.mu.Lock()
	var pending []Message
	for handle, m := range q.inflight {
		if now.Before(m.deadline) {
			continue
		}
		pending = append(pending, m.msg)
		delete(q.inflight, handle)
	}
	q.mu.Unlock()
	for _, m := range pending {
		if err := q.push(ctx, m); err != nil {
			return
		}
	}
}
