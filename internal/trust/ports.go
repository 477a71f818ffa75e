package trust

import (
	"context"
	"time"
)

// AgreementStore answers whether an actor signed the trust agreement.
type AgreementStore interface {
	IsSigned(ctx context.Context, actorID string) (bool, error)
	Sign(ctx context.Context, actorID string, metadata map[string]string) error
}

// Commit groups every write produced by one engine operation. Stores must
// apply it atomically: all parts land or none do. Records carry their new
// Version; a store rejects the commit with ErrConcurrentUpdate when the
// stored version is not Version-1.
type Commit struct {
	Agreement *Agreement
	Records   []*TrustRecord
	Links     []VerifiedLink
	Proofs    []ProofOfActionRecord
	Reports   []PeerReport
}

// Empty reports whether the commit carries no writes.
func (c Commit) Empty() bool {
	return c.Agreement == nil && len(c.Records) == 0 && len(c.Links) == 0 &&
		len(c.Proofs) == 0 && len(c.Reports) == 0
}

// Store is the persistence gateway keyed by actor id.
type Store interface {
	LoadRecord(ctx context.Context, actorID string) (*TrustRecord, error)
	LoadLedger(ctx context.Context, actorID string) (Ledger, error)
	LoadReport(ctx context.Context, reportID string) (*PeerReport, error)
	Commit(ctx context.Context, c Commit) error
}

// EventSource returns already-validated behavioral events.
type EventSource interface {
	RecentEvents(ctx context.Context, actorID string, since time.Time) ([]Event, error)
	// Append stores an event and reports false when the id was already seen.
	Append(ctx context.Context, e Event) (bool, error)
}

// InterventionDispatcher reacts to a freshly persisted record.
type InterventionDispatcher interface {
	Evaluate(ctx context.Context, record *TrustRecord) error
}

// SuspicionAuditor receives high-suspicion detections for operator review.
type SuspicionAuditor interface {
	RecordSuspicion(ctx context.Context, actorID string, result SuspicionResult, at time.Time) error
}

// Observer receives engine metrics.
type Observer interface {
	ObserveRecalculation(outcome string, seconds float64)
	ObserveClassification(level string)
	ObservePersistenceError(op string)
}

type noopObserver struct{}

func (noopObserver) ObserveRecalculation(string, float64) {}
func (noopObserver) ObserveClassification(string) {}
func (noopObserver) ObservePersistenceError(string) {}
