package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/trust-engine/cmd/mainconfig"
	"github.com/wolfman30/trust-engine/internal/audit"
	appconfig "github.com/wolfman30/trust-engine/internal/config"
	"github.com/wolfman30/trust-engine/internal/http/handlers"
	"github.com/wolfman30/trust-engine/internal/ingest"
	"github.com/wolfman30/trust-engine/internal/intervention"
	"github.com/wolfman30/trust-engine/internal/observability/metrics"
	"github.com/wolfman30/trust-engine/internal/policy"
	"github.com/wolfman30/trust-engine/internal/store"
	"github.com/wolfman30/trust-engine/internal/trust"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

// SuspicionAudit is satisfied by both the Postgres and in-memory audit stores.
type SuspicionAudit interface {
	trust.SuspicionAuditor
	QueryEvents(ctx context.Context, filter audit.Filter) ([]audit.SuspicionEvent, error)
}

// Runtime holds every long-lived component a trust binary needs.
type Runtime struct {
	Config     *appconfig.Config
	Policy     *policy.Policy
	Engine     *trust.Engine
	Dispatcher *intervention.Dispatcher
	Audit      SuspicionAudit
	Metrics    *metrics.TrustMetrics
	Registry   *prometheus.Registry
	Queue      ingest.Queue

	redis  *redis.Client
	pool   *pgxpool.Pool
	sqlDB  *sql.DB
	aws    *awsLoader
	logger *logging.Logger
}

// BuildRuntime wires config into a ready engine. Memory backends are used
// when USE_MEMORY_STORE is set; otherwise Redis is required for records and
// Postgres, when configured, holds events, interventions and audits.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	pol, err := policy.Load(cfg.ScoringPolicyPath, trust.Scheme(cfg.ScoringScheme))
	if err != nil {
		return nil, err
	}
	logger.Info("scoring policy loaded",
		"scheme", pol.Scoring.Scheme,
		"policy_hash", pol.Hash,
		"path", cfg.ScoringPolicyPath,
	)

	rt := &Runtime{
		Config: cfg,
		Policy: pol,
		aws:    newAWSLoader(cfg),
		logger: logger,
	}
	rt.Registry = prometheus.NewRegistry()
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rt.Metrics = metrics.NewTrustMetrics(rt.Registry)

	if err := rt.connect(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	records, agreements, events, err := rt.buildStores()
	if err != nil {
		rt.Close()
		return nil, err
	}
	gateway := store.NewGateway(records, agreements, events, store.GatewayConfig{
		Timeout:   cfg.StoreTimeout,
		Attempts:  cfg.StoreRetryAttempts,
		BaseDelay: cfg.StoreRetryBaseDelay,
	}, logger)

	engine, err := trust.NewEngine(gateway, gateway, gateway, pol.Scoring, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}

	if rt.sqlDB != nil {
		rt.Audit = audit.NewService(rt.sqlDB)
	} else {
		rt.Audit = audit.NewMemoryService()
	}

	dispatcher, err := rt.buildDispatcher(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Dispatcher = dispatcher

	rt.Engine = engine.
		WithObserver(rt.Metrics).
		WithAuditor(rt.Audit).
		WithDispatcher(dispatcher).
		WithCommitAttempts(cfg.CommitAttempts)

	queue, err := rt.buildQueue(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Queue = queue
	return rt, nil
}

func (rt *Runtime) connect(ctx context.Context) error {
	cfg := rt.Config
	if cfg.UseMemoryStore {
		rt.logger.Warn("using in-memory trust store; data is lost on restart")
	} else {
		rt.redis = BuildRedisClient(ctx, cfg, rt.logger, true)
		if rt.redis == nil {
			return fmt.Errorf("bootstrap: redis is required when USE_MEMORY_STORE=false")
		}
	}
	pool, err := ConnectPostgres(ctx, cfg.DatabaseURL, rt.logger)
	if err != nil {
		return err
	}
	rt.pool = pool
	rt.sqlDB = OpenSQL(pool)
	return nil
}

func (rt *Runtime) buildStores() (trust.Store, trust.AgreementStore, trust.EventSource, error) {
	var events trust.EventSource
	if rt.pool != nil {
		events = store.NewPostgresEventSource(rt.pool)
	} else {
		rt.logger.Warn("DATABASE_URL not set; behavior events kept in memory")
		events = store.NewMemoryEvents()
	}

	if rt.redis == nil {
		mem := store.NewMemoryStore()
		return mem, mem, events, nil
	}
	records := store.NewRedisStore(rt.redis, rt.logger).WithPrefix(rt.Config.RedisPrefix)
	return records, records, events, nil
}

// MetricsHandler serves the runtime's Prometheus registry.
func (rt *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{})
}

// HealthChecks probes the external dependencies in use.
func (rt *Runtime) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if rt.redis != nil {
		client := rt.redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if rt.pool != nil {
		pool := rt.pool
		checks["postgres"] = func(ctx context.Context) error { return pool.Ping(ctx) }
	}
	return checks
}

// Close drains pending notifications and releases connections.
func (rt *Runtime) Close() {
	if rt.Dispatcher != nil {
		rt.Dispatcher.Close()
	}
	if rt.sqlDB != nil {
		_ = rt.sqlDB.Close()
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}

// awsLoader loads the SDK config at most once, and only when a component
// actually talks to AWS.
type awsLoader struct {
	cfg  *appconfig.Config
	once sync.Once
	out  aws.Config
	err  error
}

func newAWSLoader(cfg *appconfig.Config) *awsLoader {
	return &awsLoader{cfg: cfg}
}

func (l *awsLoader) Load(ctx context.Context) (aws.Config, error) {
	l.once.Do(func() {
		l.out, l.err = mainconfig.LoadAWSConfig(ctx, l.cfg)
		if l.err != nil {
			l.err = fmt.Errorf("bootstrap: load aws config: %w", l.err)
		}
	})
	return l.out, l.err
}
