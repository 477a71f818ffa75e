// Package audit keeps the side-channel record of high suspicion detections
// so operators can inspect which detector components fired.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/trust-engine/internal/trust"
)

// SuspicionEvent is an immutable audit record of one detection.
type SuspicionEvent struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actor_id"`
	Score      int             `json:"score"`
	Triggered  []string        `json:"triggered"`
	Components json.RawMessage `json:"components"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Filter narrows QueryEvents.
type Filter struct {
	ActorID   string
	MinScore  int
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// Service writes suspicion audit events to suspicion_audit_events.
type Service struct {
	db *sql.DB
}

var _ trust.SuspicionAuditor = (*Service)(nil)

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RecordSuspicion logs one detection result.
func (s *Service) RecordSuspicion(ctx context.Context, actorID string, result trust.SuspicionResult, at time.Time) error {
	event, err := newEvent(actorID, result, at)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO suspicion_audit_events (
			id, actor_id, score, triggered, components, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		event.ID,
		event.ActorID,
		event.Score,
		pq.Array(event.Triggered),
		[]byte(event.Components),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log suspicion event: %w", err)
	}
	return nil
}

// QueryEvents returns matching events, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]SuspicionEvent, error) {
	query := `
		SELECT id, actor_id, score, triggered, components, created_at
		FROM suspicion_audit_events
		WHERE score >= $1
	`
	args := []interface{}{filter.MinScore}
	argIdx := 2

	if filter.ActorID != "" {
		query += fmt.Sprintf(" AND actor_id = $%d", argIdx)
		args = append(args, filter.ActorID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query suspicion events: %w", err)
	}
	defer rows.Close()

	var events []SuspicionEvent
	for rows.Next() {
		var e SuspicionEvent
		var components []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Score, pq.Array(&e.Triggered), &components, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan suspicion event: %w", err)
		}
		e.Components = components
		events = append(events, e)
	}
	return events, rows.Err()
}

// MemoryService keeps events in process memory for the in-memory deployment.
type MemoryService struct {
	mu     sync.RWMutex
	events []SuspicionEvent
}

var _ trust.SuspicionAuditor = (*MemoryService)(nil)

func NewMemoryService() *MemoryService {
	return &MemoryService{}
}

func (m *MemoryService) RecordSuspicion(_ context.Context, actorID string, result trust.SuspicionResult, at time.Time) error {
	event, err := newEvent(actorID, result, at)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func (m *MemoryService) QueryEvents(_ context.Context, filter Filter) ([]SuspicionEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SuspicionEvent
	for _, e := range m.events {
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if e.Score < filter.MinScore {
			continue
		}
		if !filter.StartTime.IsZero() && e.CreatedAt.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.CreatedAt.After(filter.EndTime) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func newEvent(actorID string, result trust.SuspicionResult, at time.Time) (SuspicionEvent, error) {
	components, err := json.Marshal(result.Components)
	if err != nil {
		return SuspicionEvent{}, fmt.Errorf("audit: marshal components: %w", err)
	}
	if at.IsZero() {
		at = time.Now()
	}
	return SuspicionEvent{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Score:      result.Score,
		Triggered:  triggered(result.Components),
		Components: components,
		CreatedAt:  at.UTC(),
	}, nil
}

// triggered lists the components that contributed, in name order.
func triggered(components map[string]int) []string {
	out := []string{}
	for name, v := range components {
		if v > 0 {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
