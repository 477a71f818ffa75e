package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/trust-engine/internal/trust"
)

// flakyStore fails the first n LoadRecord calls with a transport error.
type flakyStore struct {
	*MemoryStore
	failures int
	calls    int
}

func (f *flakyStore) LoadRecord(ctx context.Context, actorID string) (*trust.TrustRecord, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("dial tcp: connection refused")
	}
	return f.MemoryStore.LoadRecord(ctx, actorID)
}

func newTestGateway(store trust.Store, mem *MemoryStore) *Gateway {
	g := NewGateway(store, mem, NewMemoryEvents(), GatewayConfig{Timeout: time.Second, Attempts: 3, BaseDelay: time.Millisecond}, nil)
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestGateway_RetriesTransientFailures(t *testing.T) {
	mem := NewMemoryStore()
	rec := trust.NewTrustRecord("actor-1", time.Now().UTC())
	rec.Version = 1
	require.NoError(t, mem.Commit(context.Background(), trust.Commit{Records: []*trust.TrustRecord{rec}}))

	flaky := &flakyStore{MemoryStore: mem, failures: 2}
	g := newTestGateway(flaky, mem)

	got, err := g.LoadRecord(context.Background(), "actor-1")
	require.NoError(t, err)
	assert.Equal(t, "actor-1", got.ActorID)
	assert.Equal(t, 3, flaky.calls)
}

func TestGateway_ExhaustedRetriesAreUnavailable(t *testing.T) {
	mem := NewMemoryStore()
	flaky := &flakyStore{MemoryStore: mem, failures: 10}
	g := newTestGateway(flaky, mem)

	_, err := g.LoadRecord(context.Background(), "actor-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, trust.ErrPersistenceUnavailable)
	assert.True(t, trust.IsRetryable(err))
	assert.Equal(t, 3, flaky.calls)
}

func TestGateway_DomainErrorsPassThrough(t *testing.T) {
	mem := NewMemoryStore()
	g := newTestGateway(mem, mem)

	_, err := g.LoadRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, trust.ErrRecordNotFound)
	assert.NotErrorIs(t, err, trust.ErrPersistenceUnavailable)

	_, err = g.LoadReport(context.Background(), "missing")
	assert.ErrorIs(t, err, trust.ErrReportNotFound)
}

func TestGateway_CommitFailureIsNotRetried(t *testing.T) {
	mem := NewMemoryStore()
	mem.FailCommits(errors.New("i/o timeout"))
	g := newTestGateway(mem, mem)

	rec := trust.NewTrustRecord("actor-1", time.Now().UTC())
	rec.Version = 1
	err := g.Commit(context.Background(), trust.Commit{Records: []*trust.TrustRecord{rec}})
	assert.ErrorIs(t, err, trust.ErrPersistenceUnavailable)

	mem.FailCommits(nil)
	_, err = g.LoadRecord(context.Background(), "actor-1")
	assert.ErrorIs(t, err, trust.ErrRecordNotFound)
}
