package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/trust-engine/internal/trust"
)

var auditAt = time.Date(2025, 3, 1, 3, 0, 0, 0, time.UTC)

func velocityResult() trust.SuspicionResult {
	return trust.SuspicionResult{
		Score: 75,
		Components: map[string]int{
			trust.ComponentVelocity:        65,
			trust.ComponentLossChasing:     10,
			trust.ComponentMultiChannel:    0,
			trust.ComponentStakeEscalation: 0,
			trust.ComponentTimeOfDay:       0,
		},
	}
}

func TestService_RecordSuspicion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)
	mock.ExpectExec("INSERT INTO suspicion_audit_events").
		WithArgs(sqlmock.AnyArg(), "actor-1", 75, sqlmock.AnyArg(), sqlmock.AnyArg(), auditAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, service.RecordSuspicion(context.Background(), "actor-1", velocityResult(), auditAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestService_RecordSuspicionError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)
	mock.ExpectExec("INSERT INTO suspicion_audit_events").
		WillReturnError(assert.AnError)

	err = service.RecordSuspicion(context.Background(), "actor-1", velocityResult(), auditAt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit: failed to log suspicion event")
}

func TestService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	service := NewService(db)
	rows := sqlmock.NewRows([]string{"id", "actor_id", "score", "triggered", "components", "created_at"}).
		AddRow("ev-1", "actor-1", 75, "{loss_chasing,velocity}", []byte(`{"velocity":65}`), auditAt)
	mock.ExpectQuery("SELECT id, actor_id, score").
		WithArgs(60, "actor-1").
		WillReturnRows(rows)

	events, err := service.QueryEvents(context.Background(), Filter{ActorID: "actor-1", MinScore: 60, Limit: 10})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"loss_chasing", "velocity"}, events[0].Triggered)
	assert.JSONEq(t, `{"velocity":65}`, string(events[0].Components))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryService(t *testing.T) {
	svc := NewMemoryService()
	ctx := context.Background()

	require.NoError(t, svc.RecordSuspicion(ctx, "actor-1", velocityResult(), auditAt))
	require.NoError(t, svc.RecordSuspicion(ctx, "actor-2", trust.SuspicionResult{Score: 60}, auditAt.Add(time.Hour)))

	all, err := svc.QueryEvents(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "actor-2", all[0].ActorID)

	mine, err := svc.QueryEvents(ctx, Filter{ActorID: "actor-1", MinScore: 70})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, []string{"loss_chasing", "velocity"}, mine[0].Triggered)

	var components map[string]int
	require.NoError(t, json.Unmarshal(mine[0].Components, &components))
	assert.Equal(t, 65, components[trust.ComponentVelocity])
}
