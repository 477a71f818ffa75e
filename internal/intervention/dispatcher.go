package intervention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/trust-engine/internal/trust"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

var dispatchTracer = otel.Tracer("trustengine.internal.intervention")

const defaultNotifyTimeout = 10 * time.Second

// Dispatcher fires an action set when an actor is classified for the first
// time or escalates to a more severe level. Staying at a level, or moving
// to an equal or less severe one, only updates the remembered level.
type Dispatcher struct {
	policy    Policy
	levels    LevelStore
	log       Log
	notifiers []Notifier
	observer  Observer
	logger    *logging.Logger
	now       func() time.Time
	timeout   time.Duration

	wg sync.WaitGroup
}

var _ trust.InterventionDispatcher = (*Dispatcher)(nil)

// NewDispatcher wires a dispatcher. A nil policy uses DefaultPolicy.
func NewDispatcher(policy Policy, levels LevelStore, log Log, logger *logging.Logger, notifiers ...Notifier) *Dispatcher {
	if levels == nil {
		panic("intervention: level store required")
	}
	if log == nil {
		panic("intervention: log required")
	}
	if policy == nil {
		policy = DefaultPolicy()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		policy:    policy,
		levels:    levels,
		log:       log,
		notifiers: notifiers,
		observer:  noopObserver{},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		timeout:   defaultNotifyTimeout,
	}
}

func (d *Dispatcher) WithObserver(o Observer) *Dispatcher {
	if o != nil {
		d.observer = o
	}
	return d
}

func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// WithNotifyTimeout bounds each channel delivery.
func (d *Dispatcher) WithNotifyTimeout(timeout time.Duration) *Dispatcher {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// Evaluate compares the record's level with the last one seen for the actor.
// On escalation the log entry is appended before any channel is notified;
// if the append fails nothing is sent and the level is not advanced, so the
// next recalculation retries the dispatch.
func (d *Dispatcher) Evaluate(ctx context.Context, rec *trust.TrustRecord) error {
	if rec == nil {
		return nil
	}
	level := rec.CurrentRiskLevel()
	ctx, span := dispatchTracer.Start(ctx, "intervention.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.String("trust.actor_id", rec.ActorID),
		attribute.String("trust.risk_level", string(level)),
	)

	previous, seen, err := d.levels.Get(ctx, rec.ActorID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("intervention: load level: %w", err)
	}
	if seen && !level.MoreSevereThan(previous) {
		if level != previous {
			if err := d.levels.Set(ctx, rec.ActorID, level); err != nil {
				return fmt.Errorf("intervention: store level: %w", err)
			}
		}
		return nil
	}

	entry := LogEntry{
		ID:                 uuid.NewString(),
		ActorID:            rec.ActorID,
		RiskLevelAtTrigger: level,
		PreviousLevel:      previous,
		TrustScore:         rec.TotalTrustScore,
		SusScore:           rec.SusScore,
		Actions:            d.policy.Actions(level),
		Timestamp:          d.now(),
	}
	if err := d.log.Append(ctx, entry); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intervention: append log: %w", err)
	}
	if err := d.levels.Set(ctx, rec.ActorID, level); err != nil {
		d.logger.Error("intervention: store level failed after dispatch", "error", err, "actor_id", rec.ActorID)
	}
	d.observer.ObserveIntervention(string(level))
	span.SetAttributes(attribute.Int("intervention.actions", len(entry.Actions)))

	d.logger.Info("intervention dispatched",
		"actor_id", rec.ActorID,
		"risk_level", level,
		"previous_level", previous,
		"actions", entry.Actions,
		"entry_id", entry.ID,
	)
	if len(entry.Actions) > 0 {
		d.fanOut(ctx, entry)
	}
	return nil
}

// History returns the actor's most recent log entries, newest first.
func (d *Dispatcher) History(ctx context.Context, actorID string, limit int) ([]LogEntry, error) {
	return d.log.List(ctx, actorID, limit)
}

// Close waits for in-flight notifications.
func (d *Dispatcher) Close() {
	d.wg.Wait()
}

func (d *Dispatcher) fanOut(ctx context.Context, entry LogEntry) {
	base := context.WithoutCancel(ctx)
	for _, n := range d.notifiers {
		d.wg.Add(1)
		go func(n Notifier) {
			defer d.wg.Done()
			callCtx, cancel := context.WithTimeout(base, d.timeout)
			defer cancel()
			if err := n.Notify(callCtx, entry); err != nil {
				d.observer.ObserveNotificationFailure(n.Name())
				d.logger.Warn("intervention notification failed",
					"error", err,
					"channel", n.Name(),
					"actor_id", entry.ActorID,
					"entry_id", entry.ID,
				)
			}
		}(n)
	}
}
