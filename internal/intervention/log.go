package intervention

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/trust-engine/internal/trust"
)

const defaultListLimit = 50

// MemoryLog is an in-process Log.
type MemoryLog struct {
	mu      sync.RWMutex
	entries map[string][]LogEntry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{entries: map[string][]LogEntry{}}
}

func (l *MemoryLog) Append(_ context.Context, entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.Actions = append([]Action(nil), entry.Actions...)
	l.entries[entry.ActorID] = append(l.entries[entry.ActorID], entry)
	return nil
}

// List returns entries newest first.
func (l *MemoryLog) List(_ context.Context, actorID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	l.mu.RLock()
	src := l.entries[actorID]
	out := make([]LogEntry, len(src))
	copy(out, src)
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLog stores entries in the intervention_log table. Rows are only
// ever inserted.
type PostgresLog struct {
	pool pgQuerier
}

func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	if pool == nil {
		panic("intervention: pgx pool required")
	}
	return &PostgresLog{pool: pool}
}

func newPostgresLogWithQuerier(q pgQuerier) *PostgresLog {
	return &PostgresLog{pool: q}
}

func (l *PostgresLog) Append(ctx context.Context, entry LogEntry) error {
	query := `
		INSERT INTO intervention_log (
			id, actor_id, risk_level, previous_level, trust_score, sus_score, actions, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := l.pool.Exec(ctx, query,
		entry.ID,
		entry.ActorID,
		string(entry.RiskLevelAtTrigger),
		string(entry.PreviousLevel),
		entry.TrustScore,
		entry.SusScore,
		actionStrings(entry.Actions),
		entry.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("intervention: insert log entry: %w", err)
	}
	return nil
}

func (l *PostgresLog) List(ctx context.Context, actorID string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := `
		SELECT id, actor_id, risk_level, previous_level, trust_score, sus_score, actions, created_at
		FROM intervention_log
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := l.pool.Query(ctx, query, actorID, limit)
	if err != nil {
		return nil, fmt.Errorf("intervention: query log: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e           LogEntry
			level, prev string
			actions     []string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &level, &prev, &e.TrustScore, &e.SusScore, &actions, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("intervention: scan log entry: %w", err)
		}
		e.RiskLevelAtTrigger = trust.RiskLevel(level)
		e.PreviousLevel = trust.RiskLevel(prev)
		for _, a := range actions {
			e.Actions = append(e.Actions, Action(a))
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func actionStrings(actions []Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
