package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/trust-engine/internal/trust"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

// GatewayConfig bounds every persistence call.
type GatewayConfig struct {
	Timeout   time.Duration
	Attempts  int
	BaseDelay time.Duration
}

// DefaultGatewayConfig mirrors the config package defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{Timeout: 2 * time.Second, Attempts: 3, BaseDelay: 50 * time.Millisecond}
}

// Gateway wraps the backing stores with a per-call timeout and exponential
// backoff. Exhausted or non-domain failures surface as
// trust.ErrPersistenceUnavailable. Commit is attempted once: the version
// check makes a blind retry unsafe, so the engine decides instead.
type Gateway struct {
	store      trust.Store
	agreements trust.AgreementStore
	events     trust.EventSource
	cfg        GatewayConfig
	logger     *logging.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

var (
	_ trust.Store          = (*Gateway)(nil)
	_ trust.AgreementStore = (*Gateway)(nil)
	_ trust.EventSource    = (*Gateway)(nil)
)

// NewGateway builds a gateway. Zero config fields take the defaults.
func NewGateway(store trust.Store, agreements trust.AgreementStore, events trust.EventSource, cfg GatewayConfig, logger *logging.Logger) *Gateway {
	if store == nil || agreements == nil || events == nil {
		panic("store: gateway requires store, agreements and events")
	}
	def := DefaultGatewayConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{
		store:      store,
		agreements: agreements,
		events:     events,
		cfg:        cfg,
		logger:     logger,
		sleep:      sleepCtx,
	}
}

func (g *Gateway) IsSigned(ctx context.Context, actorID string) (bool, error) {
	var signed bool
	err := g.retry(ctx, "is_signed", func(ctx context.Context) error {
		var err error
		signed, err = g.agreements.IsSigned(ctx, actorID)
		return err
	})
	return signed, err
}

func (g *Gateway) Sign(ctx context.Context, actorID string, metadata map[string]string) error {
	return g.retry(ctx, "sign", func(ctx context.Context) error {
		return g.agreements.Sign(ctx, actorID, metadata)
	})
}

func (g *Gateway) LoadRecord(ctx context.Context, actorID string) (*trust.TrustRecord, error) {
	var rec *trust.TrustRecord
	err := g.retry(ctx, "load_record", func(ctx context.Context) error {
		var err error
		rec, err = g.store.LoadRecord(ctx, actorID)
		return err
	})
	return rec, err
}

func (g *Gateway) LoadLedger(ctx context.Context, actorID string) (trust.Ledger, error) {
	var ledger trust.Ledger
	err := g.retry(ctx, "load_ledger", func(ctx context.Context) error {
		var err error
		ledger, err = g.store.LoadLedger(ctx, actorID)
		return err
	})
	return ledger, err
}

func (g *Gateway) LoadReport(ctx context.Context, reportID string) (*trust.PeerReport, error) {
	var report *trust.PeerReport
	err := g.retry(ctx, "load_report", func(ctx context.Context) error {
		var err error
		report, err = g.store.LoadReport(ctx, reportID)
		return err
	})
	return report, err
}

func (g *Gateway) Commit(ctx context.Context, c trust.Commit) error {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	err := g.store.Commit(callCtx, c)
	if err == nil || isDomainErr(err) {
		return err
	}
	g.logger.Error("trust commit failed", "error", err, "records", len(c.Records))
	return fmt.Errorf("%w: commit: %v", trust.ErrPersistenceUnavailable, err)
}

// Append is idempotent on event id, so it is safe to retry.
func (g *Gateway) Append(ctx context.Context, e trust.Event) (bool, error) {
	var inserted bool
	err := g.retry(ctx, "append_event", func(ctx context.Context) error {
		var err error
		inserted, err = g.events.Append(ctx, e)
		return err
	})
	return inserted, err
}

func (g *Gateway) RecentEvents(ctx context.Context, actorID string, since time.Time) ([]trust.Event, error) {
	var events []trust.Event
	err := g.retry(ctx, "recent_events", func(ctx context.Context) error {
		var err error
		events, err = g.events.RecentEvents(ctx, actorID, since)
		return err
	})
	return events, err
}

func (g *Gateway) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < g.cfg.Attempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
		err := fn(callCtx)
		cancel()
		if err == nil || isDomainErr(err) {
			return err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt+1 < g.cfg.Attempts {
			g.logger.Warn("persistence retry", "op", op, "attempt", attempt+1, "error", err)
			if sleepErr := g.sleep(ctx, g.cfg.BaseDelay*time.Duration(1<<attempt)); sleepErr != nil {
				break
			}
		}
	}
	return fmt.Errorf("%w: %s: %v", trust.ErrPersistenceUnavailable, op, lastErr)
}

// isDomainErr marks answers from the store that are not failures of the store.
func isDomainErr(err error) bool {
	return errors.Is(err, trust.ErrRecordNotFound) ||
		errors.Is(err, trust.ErrReportNotFound) ||
		errors.Is(err, trust.ErrConcurrentUpdate)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
