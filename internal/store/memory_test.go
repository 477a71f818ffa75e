package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/trust-engine/internal/trust"
)

func TestMemoryStore_LedgerIsACopy(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	report := trust.PeerReport{ID: "r1", ReporterID: "alice", TargetID: "bob", Kind: trust.ReportScam, Status: trust.StatusUnderReview, CreatedAt: now}
	require.NoError(t, m.Commit(ctx, trust.Commit{Reports: []trust.PeerReport{report}}))

	ledger, err := m.LoadLedger(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, ledger.ReportsReceived, 1)
	ledger.ReportsReceived[0].Status = trust.StatusRejected

	stored, err := m.LoadReport(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, trust.StatusUnderReview, stored.Status)
}

func TestMemoryStore_VersionConflictAppliesNothing(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	a := trust.NewTrustRecord("a", now)
	a.Version = 1
	require.NoError(t, m.Commit(ctx, trust.Commit{Records: []*trust.TrustRecord{a}}))

	fresh := trust.NewTrustRecord("b", now)
	fresh.Version = 1
	stale := a.Clone()
	stale.Version = 1
	err := m.Commit(ctx, trust.Commit{
		Records: []*trust.TrustRecord{fresh, stale},
		Links:   []trust.VerifiedLink{{ID: "l1", ActorID: "a", LinkType: trust.LinkSocial, Payload: "x"}},
	})
	require.ErrorIs(t, err, trust.ErrConcurrentUpdate)

	_, err = m.LoadRecord(ctx, "b")
	assert.ErrorIs(t, err, trust.ErrRecordNotFound)
	ledger, err := m.LoadLedger(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, ledger.Links)
}

func TestMemoryEvents_DedupeAndWindow(t *testing.T) {
	ev := NewMemoryEvents()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	ok, err := ev.Append(ctx, trust.Event{ID: "e1", ActorID: "a", Type: trust.EventHelpedMember, OccurredAt: base})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ev.Append(ctx, trust.Event{ID: "e1", ActorID: "a", Type: trust.EventHelpedMember, OccurredAt: base})
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = ev.Append(ctx, trust.Event{ID: "e0", ActorID: "a", Type: trust.EventHelpedMember, OccurredAt: base.Add(-48 * time.Hour)})
	require.NoError(t, err)

	recent, err := ev.RecentEvents(ctx, "a", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "e1", recent[0].ID)
}
