// Package store holds the persistence gateway implementations behind the
// trust engine: Redis for records and ledgers, Postgres for behavioral
// events, and in-memory versions for tests and local runs.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/trust-engine/internal/trust"
)

// MemoryStore keeps records, agreements and ledgers in process. It applies
// commits under one mutex, which gives the same all-or-nothing behavior as
// the Redis transaction.
type MemoryStore struct {
	mu         sync.RWMutex
	records    map[string]*trust.TrustRecord
	agreements map[string]trust.Agreement
	links      map[string][]trust.VerifiedLink
	proofs     map[string][]trust.ProofOfActionRecord
	reports    map[string]trust.PeerReport
	failCommit error
}

var (
	_ trust.Store          = (*MemoryStore)(nil)
	_ trust.AgreementStore = (*MemoryStore)(nil)
)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:    make(map[string]*trust.TrustRecord),
		agreements: make(map[string]trust.Agreement),
		links:      make(map[string][]trust.VerifiedLink),
		proofs:     make(map[string][]trust.ProofOfActionRecord),
		reports:    make(map[string]trust.PeerReport),
	}
}

// FailCommits makes every following Commit return err. Pass nil to reset.
func (m *MemoryStore) FailCommits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCommit = err
}

func (m *MemoryStore) IsSigned(_ context.Context, actorID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.agreements[actorID]
	return ok, nil
}

func (m *MemoryStore) Sign(_ context.Context, actorID string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agreements[actorID]; !ok {
		m.agreements[actorID] = trust.Agreement{ActorID: actorID, SignedAt: time.Now().UTC(), Metadata: metadata}
	}
	return nil
}

func (m *MemoryStore) LoadRecord(_ context.Context, actorID string) (*trust.TrustRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[actorID]
	if !ok {
		return nil, trust.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) LoadLedger(_ context.Context, actorID string) (trust.Ledger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ledger := trust.Ledger{
		Links:  append([]trust.VerifiedLink(nil), m.links[actorID]...),
		Proofs: append([]trust.ProofOfActionRecord(nil), m.proofs[actorID]...),
	}
	for _, r := range m.reports {
		if r.ReporterID == actorID {
			ledger.ReportsFiled = append(ledger.ReportsFiled, r)
		}
		if r.TargetID == actorID {
			ledger.ReportsReceived = append(ledger.ReportsReceived, r)
		}
	}
	sortReports(ledger.ReportsFiled)
	sortReports(ledger.ReportsReceived)
	return ledger, nil
}

func (m *MemoryStore) LoadReport(_ context.Context, reportID string) (*trust.PeerReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[reportID]
	if !ok {
		return nil, trust.ErrReportNotFound
	}
	return &r, nil
}

// Commit checks every record version before applying anything.
func (m *MemoryStore) Commit(_ context.Context, c trust.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCommit != nil {
		return m.failCommit
	}
	for _, rec := range c.Records {
		var stored int64
		if existing, ok := m.records[rec.ActorID]; ok {
			stored = existing.Version
		}
		if stored != rec.Version-1 {
			return fmt.Errorf("%w: actor %s at version %d, commit expects %d",
				trust.ErrConcurrentUpdate, rec.ActorID, stored, rec.Version-1)
		}
	}

	if c.Agreement != nil {
		m.agreements[c.Agreement.ActorID] = *c.Agreement
	}
	for _, rec := range c.Records {
		m.records[rec.ActorID] = rec.Clone()
	}
	for _, l := range c.Links {
		m.links[l.ActorID] = append(m.links[l.ActorID], l)
	}
	for _, p := range c.Proofs {
		m.proofs[p.ActorID] = append(m.proofs[p.ActorID], p)
	}
	for _, r := range c.Reports {
		m.reports[r.ID] = r
	}
	return nil
}

// MemoryEvents is an in-process event source with id dedupe.
type MemoryEvents struct {
	mu     sync.RWMutex
	byID   map[string]struct{}
	events map[string][]trust.Event
}

var _ trust.EventSource = (*MemoryEvents)(nil)

func NewMemoryEvents() *MemoryEvents {
	return &MemoryEvents{
		byID:   make(map[string]struct{}),
		events: make(map[string][]trust.Event),
	}
}

func (m *MemoryEvents) Append(_ context.Context, e trust.Event) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[e.ID]; ok {
		return false, nil
	}
	m.byID[e.ID] = struct{}{}
	m.events[e.ActorID] = append(m.events[e.ActorID], e)
	return true, nil
}

func (m *MemoryEvents) RecentEvents(_ context.Context, actorID string, since time.Time) ([]trust.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []trust.Event
	for _, e := range m.events[actorID] {
		if !e.OccurredAt.Before(since) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

func sortReports(reports []trust.PeerReport) {
	sort.SliceStable(reports, func(i, j int) bool {
		if reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].ID < reports[j].ID
		}
		return reports[i].CreatedAt.Before(reports[j].CreatedAt)
	})
}
