package trust

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/trust-engine/pkg/logging"
)

var engineTracer = otel.Tracer("trustengine.internal.trust")

const defaultCommitAttempts = 3

// Engine owns the canonical score record of every actor. All mutating
// operations for one actor are serialized through the keyed mutex; different
// actors proceed in parallel.
type Engine struct {
	store       Store
	events      EventSource
	gate        *Gate
	scoring     Scoring
	calculators []Calculator
	detector    *Detector
	locks       *KeyedMutex

	dispatcher InterventionDispatcher
	auditor    SuspicionAuditor
	observer   Observer
	logger     *logging.Logger
	now        func() time.Time
	attempts   int

	// pendingAudits holds detections whose audit write failed, keyed by actor.
	pendingMu     sync.Mutex
	pendingAudits map[string]pendingAudit
}

type pendingAudit struct {
	result SuspicionResult
	at     time.Time
}

// NewEngine wires the engine to its collaborators. The scoring table must
// pass Validate.
func NewEngine(store Store, agreements AgreementStore, events EventSource, scoring Scoring, logger *logging.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New("trust: store required")
	}
	if agreements == nil {
		return nil, errors.New("trust: agreement store required")
	}
	if events == nil {
		return nil, errors.New("trust: event source required")
	}
	if err := scoring.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:       store,
		events:      events,
		gate:        NewGate(agreements),
		scoring:     scoring,
		calculators: NewCalculators(scoring),
		detector:    NewDetector(scoring),
		locks:       NewKeyedMutex(),
		observer:    noopObserver{},
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		attempts:    defaultCommitAttempts,

		pendingAudits: make(map[string]pendingAudit),
	}, nil
}

// WithDispatcher sets the intervention dispatcher.
func (e *Engine) WithDispatcher(d InterventionDispatcher) *Engine {
	e.dispatcher = d
	return e
}

// WithAuditor sets the high-suspicion audit sink.
func (e *Engine) WithAuditor(a SuspicionAuditor) *Engine {
	e.auditor = a
	return e
}

// WithObserver sets the metrics observer.
func (e *Engine) WithObserver(o Observer) *Engine {
	if o != nil {
		e.observer = o
	}
	return e
}

// WithClock overrides the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// WithCommitAttempts sets how many times an optimistic conflict is retried.
func (e *Engine) WithCommitAttempts(n int) *Engine {
	if n > 0 {
		e.attempts = n
	}
	return e
}

// Scoring returns the active point table.
func (e *Engine) Scoring() Scoring {
	return e.scoring
}

// Gate exposes the identity gate.
func (e *Engine) Gate() *Gate {
	return e.gate
}

// IsEligible reports whether the actor has signed the agreement.
func (e *Engine) IsEligible(ctx context.Context, actorID string) (bool, error) {
	signed, err := e.gate.IsEligible(ctx, actorID)
	if err != nil {
		return false, e.persistenceErr("check_agreement", err)
	}
	return signed, nil
}

// SignAgreement opens the gate for an actor and creates the zero record.
// Signing again returns the existing record.
func (e *Engine) SignAgreement(ctx context.Context, actorID string, metadata map[string]string) (*TrustRecord, error) {
	ctx, span := engineTracer.Start(ctx, "trust.sign_agreement")
	defer span.End()
	span.SetAttributes(attribute.String("trust.actor_id", actorID))

	if strings.TrimSpace(actorID) == "" {
		return nil, fmt.Errorf("%w: actor id is required", ErrInvalidEvidence)
	}

	unlock := e.locks.Lock(actorID)
	defer unlock()

	signed, err := e.gate.IsEligible(ctx, actorID)
	if err != nil {
		return nil, e.persistenceErr("check_agreement", err)
	}
	if signed {
		rec, err := e.store.LoadRecord(ctx, actorID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, ErrRecordNotFound) {
			return nil, e.persistenceErr("load_record", err)
		}
	}

	now := e.now()
	rec := NewTrustRecord(actorID, now)
	rec.Version = 1
	commit := Commit{Records: []*TrustRecord{rec}}
	// An earlier signature keeps its timestamp and metadata.
	if !signed {
		commit.Agreement = &Agreement{ActorID: actorID, SignedAt: now, Metadata: metadata}
	}
	if err := e.store.Commit(context.WithoutCancel(ctx), commit); err != nil {
		return nil, e.persistenceErr("commit", err)
	}
	e.logger.WithActor(actorID).Info("trust agreement signed")
	e.afterCommit(ctx, staged{record: rec, write: true})
	return rec, nil
}

// Recalculate rebuilds the actor's record from its full history and persists
// it. Calling it again with no new history leaves the record untouched.
func (e *Engine) Recalculate(ctx context.Context, actorID string) (*TrustRecord, error) {
	ctx, span := engineTracer.Start(ctx, "trust.recalculate")
	defer span.End()
	span.SetAttributes(attribute.String("trust.actor_id", actorID))

	start := time.Now()
	unlock := e.locks.Lock(actorID)
	defer unlock()

	rec, err := e.recalculateLocked(ctx, actorID)
	outcome := "ok"
	if err != nil {
		outcome = Reason(err)
	}
	e.observer.ObserveRecalculation(outcome, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("trust.total_score", rec.TotalTrustScore),
		attribute.Int("trust.sus_score", rec.SusScore),
		attribute.String("trust.risk_level", string(rec.RiskLevel)),
	)
	return rec, nil
}

func (e *Engine) recalculateLocked(ctx context.Context, actorID string) (*TrustRecord, error) {
	if err := e.requireGate(ctx, actorID); err != nil {
		return nil, err
	}
	out, err := e.transact(ctx, func(now time.Time) (Commit, []staged, error) {
		st, err := e.loadState(ctx, actorID)
		if err != nil {
			return Commit{}, nil, err
		}
		s := e.recompute(st, now, false)
		var c Commit
		c.stage(s)
		return c, []staged{s}, nil
	})
	if err != nil {
		return nil, err
	}
	if !out[0].write {
		e.resumeSideChannels(ctx, out[0].record)
	}
	return out[0].record, nil
}

// IngestEvent validates and stores a behavioral event, then recalculates.
// Replaying an event id does not double count it.
func (e *Engine) IngestEvent(ctx context.Context, ev Event) (*TrustRecord, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if err := e.requireGate(ctx, ev.ActorID); err != nil {
		return nil, err
	}
	ev.OccurredAt = ev.OccurredAt.UTC()
	inserted, err := e.events.Append(ctx, ev)
	if err != nil {
		return nil, e.persistenceErr("append_event", err)
	}
	if !inserted {
		e.logger.WithActor(ev.ActorID).Debug("duplicate event ignored", "event_id", ev.ID)
	}
	return e.Recalculate(ctx, ev.ActorID)
}

// LinkRequest describes a verified link to credit.
type LinkRequest struct {
	ActorID  string   `json:"actor_id"`
	LinkType LinkType `json:"link_type"`
	Payload  string   `json:"payload"`
}

// AddVerifiedLink records an immutable verified link and credits it once.
func (e *Engine) AddVerifiedLink(ctx context.Context, req LinkRequest) (*VerifiedLink, *TrustRecord, error) {
	ctx, span := engineTracer.Start(ctx, "trust.add_verified_link")
	defer span.End()
	span.SetAttributes(
		attribute.String("trust.actor_id", req.ActorID),
		attribute.String("trust.link_type", string(req.LinkType)),
	)

	payload := strings.TrimSpace(req.Payload)
	if strings.TrimSpace(req.ActorID) == "" || !req.LinkType.Valid() || payload == "" {
		return nil, nil, fmt.Errorf("%w: link requires actor, valid type and payload", ErrInvalidEvidence)
	}
	if err := e.requireCategory(CategoryVerifiedLinks); err != nil {
		return nil, nil, err
	}

	unlock := e.locks.Lock(req.ActorID)
	defer unlock()
	if err := e.requireGate(ctx, req.ActorID); err != nil {
		return nil, nil, err
	}

	var link VerifiedLink
	out, err := e.transact(ctx, func(now time.Time) (Commit, []staged, error) {
		st, err := e.loadState(ctx, req.ActorID)
		if err != nil {
			return Commit{}, nil, err
		}
		for _, existing := range st.ledger.Links {
			if existing.LinkType == req.LinkType && existing.Payload == payload {
				return Commit{}, nil, fmt.Errorf("%w: %s", ErrDuplicateLink, req.LinkType)
			}
		}
		link = VerifiedLink{
			ID:         uuid.NewString(),
			ActorID:    req.ActorID,
			LinkType:   req.LinkType,
			Payload:    payload,
			VerifiedAt: now,
		}
		st.ledger.Links = append(st.ledger.Links, link)
		s := e.recompute(st, now, true)
		c := Commit{Links: []VerifiedLink{link}}
		c.stage(s)
		return c, []staged{s}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &link, out[0].record, nil
}

// ProofRequest describes a verified accountability action.
type ProofRequest struct {
	ActorID     string `json:"actor_id"`
	ProofType   string `json:"proof_type"`
	Description string `json:"description"`
	EvidenceRef string `json:"evidence_ref"`
}

// RecordProofOfAction stores a proof and applies the one-time consistency
// bonus when the actor's proof count reaches the threshold.
func (e *Engine) RecordProofOfAction(ctx context.Context, req ProofRequest) (*ProofOfActionRecord, *TrustRecord, error) {
	ctx, span := engineTracer.Start(ctx, "trust.record_proof")
	defer span.End()
	span.SetAttributes(attribute.String("trust.actor_id", req.ActorID))

	if strings.TrimSpace(req.ActorID) == "" || strings.TrimSpace(req.ProofType) == "" || strings.TrimSpace(req.EvidenceRef) == "" {
		return nil, nil, fmt.Errorf("%w: proof requires actor, proof_type and evidence_ref", ErrInvalidEvidence)
	}
	if err := e.requireCategory(CategoryProofOfAction); err != nil {
		return nil, nil, err
	}

	unlock := e.locks.Lock(req.ActorID)
	defer unlock()
	if err := e.requireGate(ctx, req.ActorID); err != nil {
		return nil, nil, err
	}

	var proof ProofOfActionRecord
	out, err := e.transact(ctx, func(now time.Time) (Commit, []staged, error) {
		st, err := e.loadState(ctx, req.ActorID)
		if err != nil {
			return Commit{}, nil, err
		}
		points, bonus := nextProofAward(st.ledger.Proofs, e.scoring)
		proof = ProofOfActionRecord{
			ID:                      uuid.NewString(),
			ActorID:                 req.ActorID,
			ProofType:               strings.TrimSpace(req.ProofType),
			Description:             strings.TrimSpace(req.Description),
			EvidenceRef:             strings.TrimSpace(req.EvidenceRef),
			AwardedPoints:           points,
			ConsistencyBonusApplied: bonus,
			CreatedAt:               now,
		}
		st.ledger.Proofs = append(st.ledger.Proofs, proof)
		s := e.recompute(st, now, true)
		c := Commit{Proofs: []ProofOfActionRecord{proof}}
		c.stage(s)
		return c, []staged{s}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if proof.ConsistencyBonusApplied {
		e.logger.WithActor(req.ActorID).Info("proof-of-action consistency bonus applied", "proof_id", proof.ID)
	}
	return &proof, out[0].record, nil
}

// Summary returns the read model with the risk level recomputed from the
// stored score pair.
func (e *Engine) Summary(ctx context.Context, actorID string) (*TrustSummary, error) {
	rec, err := e.store.LoadRecord(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			if gateErr := e.requireGate(ctx, actorID); gateErr != nil {
				return nil, gateErr
			}
			return nil, err
		}
		return nil, e.persistenceErr("load_record", err)
	}
	ledger, err := e.store.LoadLedger(ctx, actorID)
	if err != nil {
		return nil, e.persistenceErr("load_ledger", err)
	}
	breakdown := make(map[Category]int, len(rec.CategoryScores))
	for k, v := range rec.CategoryScores {
		breakdown[k] = v
	}
	return &TrustSummary{
		ActorID:           rec.ActorID,
		TotalTrustScore:   rec.TotalTrustScore,
		CategoryBreakdown: breakdown,
		SusScore:          rec.SusScore,
		RiskLevel:         rec.CurrentRiskLevel(),
		VouchedBy:         vouchers(ledger, e.scoring),
		LastUpdated:       rec.LastUpdated,
	}, nil
}

// actorState is every input of one actor's recompute.
type actorState struct {
	current *TrustRecord
	ledger  Ledger
	events  []Event
}

// staged is a computed record and whether it must be written.
type staged struct {
	record *TrustRecord
	sus    *SuspicionResult
	write  bool
}

func (c *Commit) stage(s staged) {
	if s.write {
		c.Records = append(c.Records, s.record)
	}
}

// buildFunc loads, computes and returns the writes of one attempt.
type buildFunc func(now time.Time) (Commit, []staged, error)

// transact runs build and applies its commit, retrying the whole cycle when
// another writer bumped a version in between. The caller holds the locks.
func (e *Engine) transact(ctx context.Context, build buildFunc) ([]staged, error) {
	var lastErr error
	for attempt := 0; attempt < e.attempts; attempt++ {
		commit, out, err := build(e.now())
		if err != nil {
			return nil, err
		}
		if !commit.Empty() {
			err = e.store.Commit(context.WithoutCancel(ctx), commit)
			if errors.Is(err, ErrConcurrentUpdate) {
				lastErr = err
				e.logger.Warn("optimistic conflict, retrying", "attempt", attempt+1)
				continue
			}
			if err != nil {
				return nil, e.persistenceErr("commit", err)
			}
		}
		for _, s := range out {
			if s.write {
				e.afterCommit(ctx, s)
			}
		}
		return out, nil
	}
	e.observer.ObservePersistenceError("commit_conflict")
	return nil, lastErr
}

// loadState reads every input of a recompute.
func (e *Engine) loadState(ctx context.Context, actorID string) (actorState, error) {
	rec, err := e.store.LoadRecord(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return actorState{}, fmt.Errorf("%w: actor %s", ErrRecordNotFound, actorID)
		}
		return actorState{}, e.persistenceErr("load_record", err)
	}
	ledger, err := e.store.LoadLedger(ctx, actorID)
	if err != nil {
		return actorState{}, e.persistenceErr("load_ledger", err)
	}
	since := e.now().Add(-e.historyWindow())
	events, err := e.events.RecentEvents(ctx, actorID, since)
	if err != nil {
		return actorState{}, e.persistenceErr("recent_events", err)
	}
	return actorState{current: rec, ledger: ledger, events: events}, nil
}

// recompute derives a fresh record without touching storage. When nothing
// changed and force is false the current record is returned unstaged.
func (e *Engine) recompute(st actorState, now time.Time, force bool) staged {
	current := st.current
	next := current.Clone()
	h := History{ActorID: current.ActorID, Ledger: st.ledger, Events: st.events, AsOf: now}

	next.CategoryScores = make(map[Category]int, len(e.calculators))
	total := 0
	for _, calc := range e.calculators {
		score := calc.Calculate(h)
		next.CategoryScores[score.Category] = score.Points
		total += score.Points
	}
	next.TotalTrustScore = total

	sus := e.detector.Detect(st.events, now)
	peak := current.Suspicion.DetectedPeak
	if sus.Score > peak {
		peak = sus.Score
	}
	next.Suspicion = SusBreakdown{
		DetectedPeak:  peak,
		ReportPenalty: reportSusPenalty(st.ledger, e.scoring),
	}
	next.SusScore = next.Suspicion.Total()
	next.RiskLevel = Classify(next.TotalTrustScore, next.SusScore)

	if !force && next.sameScores(current) && next.RiskLevel == current.RiskLevel {
		return staged{record: current, sus: &sus}
	}
	next.Version = current.Version + 1
	next.LastUpdated = now
	return staged{record: next, sus: &sus, write: true}
}

// afterCommit runs the side channels of a persisted record. Failures are
// logged only: the record is already durable.
func (e *Engine) afterCommit(ctx context.Context, s staged) {
	rec := s.record
	logger := e.logger.WithActor(rec.ActorID)
	e.observer.ObserveClassification(string(rec.RiskLevel))

	if s.sus != nil && s.sus.Score >= e.scoring.SusAuditThreshold {
		e.recordSuspicion(ctx, rec.ActorID, *s.sus, e.now())
	}
	e.dispatch(ctx, rec)
	logger.Debug("trust record persisted",
		"total_trust_score", rec.TotalTrustScore,
		"sus_score", rec.SusScore,
		"risk_level", rec.RiskLevel,
		"version", rec.Version,
	)
}

// resumeSideChannels runs when a recalculation found nothing to write. A
// dispatch or audit that failed after an earlier commit is retried here;
// the dispatcher's level store makes a repeated Evaluate a no-op.
func (e *Engine) resumeSideChannels(ctx context.Context, rec *TrustRecord) {
	e.pendingMu.Lock()
	pending, ok := e.pendingAudits[rec.ActorID]
	e.pendingMu.Unlock()
	if ok {
		e.recordSuspicion(ctx, rec.ActorID, pending.result, pending.at)
	}
	e.dispatch(ctx, rec)
}

// recordSuspicion writes the audit entry, keeping it pending on failure.
func (e *Engine) recordSuspicion(ctx context.Context, actorID string, result SuspicionResult, at time.Time) {
	if e.auditor == nil {
		return
	}
	err := e.auditor.RecordSuspicion(ctx, actorID, result, at)

	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if err != nil {
		e.pendingAudits[actorID] = pendingAudit{result: result, at: at}
		e.logger.WithActor(actorID).Error("failed to record suspicion audit", "error", err, "sus_score", result.Score)
		return
	}
	delete(e.pendingAudits, actorID)
}

func (e *Engine) dispatch(ctx context.Context, rec *TrustRecord) {
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Evaluate(ctx, rec); err != nil {
		e.logger.WithActor(rec.ActorID).Error("intervention dispatch failed", "error", err, "risk_level", rec.RiskLevel)
	}
}

func (e *Engine) requireGate(ctx context.Context, actorID string) error {
	if err := e.gate.Require(ctx, actorID); err != nil {
		if errors.Is(err, ErrAgreementRequired) {
			return err
		}
		return e.persistenceErr("check_agreement", err)
	}
	return nil
}

// requireCategory rejects operations whose credit the active scheme would
// silently drop.
func (e *Engine) requireCategory(c Category) error {
	if !e.scoring.Scores(c) {
		return fmt.Errorf("%w: %s under scheme %s", ErrCategoryNotScored, c, e.scoring.Scheme)
	}
	return nil
}

func (e *Engine) historyWindow() time.Duration {
	consistency := time.Duration(e.scoring.ConsistencyWindowDays) * 24 * time.Hour
	suspicion := time.Duration(e.scoring.SuspicionWindowHours) * time.Hour
	if suspicion > consistency {
		return suspicion
	}
	return consistency
}

// persistenceErr counts the failure and normalizes it to a retryable error.
func (e *Engine) persistenceErr(op string, err error) error {
	if errors.Is(err, ErrRecordNotFound) || errors.Is(err, ErrReportNotFound) {
		return err
	}
	e.observer.ObservePersistenceError(op)
	if errors.Is(err, ErrPersistenceUnavailable) || errors.Is(err, ErrConcurrentUpdate) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrPersistenceUnavailable, op, err)
}
