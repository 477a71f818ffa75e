package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/trust-engine/internal/trust"
)

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresEventSource stores behavioral events in the behavior_events table.
// Event ids are the primary key, so replays are ignored.
type PostgresEventSource struct {
	pool pgQuerier
}

var _ trust.EventSource = (*PostgresEventSource)(nil)

func NewPostgresEventSource(pool *pgxpool.Pool) *PostgresEventSource {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &PostgresEventSource{pool: pool}
}

func newPostgresEventSourceWithQuerier(q pgQuerier) *PostgresEventSource {
	if q == nil {
		panic("store: querier required")
	}
	return &PostgresEventSource{pool: q}
}

// Append inserts the event, returning false if the id already exists.
func (s *PostgresEventSource) Append(ctx context.Context, e trust.Event) (bool, error) {
	query := `
		INSERT INTO behavior_events (
			id, actor_id, event_type, occurred_at, stake, outcome,
			channel, grade, count, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	ct, err := s.pool.Exec(ctx, query,
		e.ID,
		e.ActorID,
		string(e.Type),
		e.OccurredAt.UTC(),
		e.Stake,
		e.Outcome,
		e.Channel,
		e.Grade,
		e.Count,
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return false, fmt.Errorf("store: insert event: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// RecentEvents returns the actor's events at or after since, oldest first.
func (s *PostgresEventSource) RecentEvents(ctx context.Context, actorID string, since time.Time) ([]trust.Event, error) {
	query := `
		SELECT id, actor_id, event_type, occurred_at, stake, outcome,
		       channel, grade, count, duration_ms
		FROM behavior_events
		WHERE actor_id = $1 AND occurred_at >= $2
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := s.pool.Query(ctx, query, actorID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("store: query events: %w", err)
	}
	defer rows.Close()

	var out []trust.Event
	for rows.Next() {
		var (
			e        trust.Event
			typ      string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &typ, &e.OccurredAt, &e.Stake, &e.Outcome,
			&e.Channel, &e.Grade, &e.Count, &durationMS); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.Type = trust.EventType(typ)
		e.OccurredAt = e.OccurredAt.UTC()
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}
