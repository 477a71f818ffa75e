package intervention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/trust-engine/internal/trust"
)

type recordingNotifier struct {
	name string
	err  error

	mu      sync.Mutex
	entries []LogEntry
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(_ context.Context, entry LogEntry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries = append(n.entries, entry)
	return n.err
}

func (n *recordingNotifier) received() []LogEntry {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]LogEntry(nil), n.entries...)
}

type countingObserver struct {
	mu            sync.Mutex
	interventions map[string]int
	failures      map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{interventions: map[string]int{}, failures: map[string]int{}}
}

func (o *countingObserver) ObserveIntervention(level string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.interventions[level]++
}

func (o *countingObserver) ObserveNotificationFailure(channel string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures[channel]++
}

type failingLog struct {
	*MemoryLog
	fail bool
}

func (l *failingLog) Append(ctx context.Context, entry LogEntry) error {
	if l.fail {
		return errors.New("log unavailable")
	}
	return l.MemoryLog.Append(ctx, entry)
}

var dispatchNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func record(actorID string, trustScore, susScore int) *trust.TrustRecord {
	return &trust.TrustRecord{ActorID: actorID, TotalTrustScore: trustScore, SusScore: susScore}
}

func newTestDispatcher(log Log, notifiers ...Notifier) (*Dispatcher, *MemoryLevelStore) {
	levels := NewMemoryLevelStore()
	d := NewDispatcher(nil, levels, log, nil, notifiers...).
		WithClock(func() time.Time { return dispatchNow })
	return d, levels
}

func TestDispatcher_FirstClassificationLogsEntry(t *testing.T) {
	log := NewMemoryLog()
	n := &recordingNotifier{name: "test"}
	d, levels := newTestDispatcher(log, n)
	ctx := context.Background()

	require.NoError(t, d.Evaluate(ctx, record("a1", 0, 0)))
	d.Close()

	entries, err := log.List(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, trust.RiskNewUser, entries[0].RiskLevelAtTrigger)
	assert.Empty(t, entries[0].PreviousLevel)
	assert.Empty(t, entries[0].Actions)
	assert.Equal(t, dispatchNow, entries[0].Timestamp)
	assert.Empty(t, n.received(), "entries without actions are not sent to channels")

	level, ok, err := levels.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, trust.RiskNewUser, level)
}

func TestDispatcher_SameLevelDoesNotRefire(t *testing.T) {
	log := NewMemoryLog()
	n := &recordingNotifier{name: "test"}
	d, _ := newTestDispatcher(log, n)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Evaluate(ctx, record("a1", 900, 65)))
	}
	d.Close()

	entries, err := log.List(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, trust.RiskHigh, entries[0].RiskLevelAtTrigger)
	assert.Equal(t, []Action{ActionIncreaseCheckins, ActionSuggestLimits, ActionActivateBuddySystem}, entries[0].Actions)
	assert.Len(t, n.received(), 1)
}

func TestDispatcher_EscalationAndReescalation(t *testing.T) {
	log := NewMemoryLog()
	n := &recordingNotifier{name: "test"}
	obs := newCountingObserver()
	d, levels := newTestDispatcher(log, n)
	d.WithObserver(obs)
	ctx := context.Background()

	require.NoError(t, d.Evaluate(ctx, record("a1", 210, 0)))  // DEVELOPING, first
	require.NoError(t, d.Evaluate(ctx, record("a1", 650, 0)))  // TRUSTED, same severity
	require.NoError(t, d.Evaluate(ctx, record("a1", 650, 65))) // HIGH_RISK, escalation
	require.NoError(t, d.Evaluate(ctx, record("a1", 650, 45))) // MODERATE_RISK, de-escalation
	require.NoError(t, d.Evaluate(ctx, record("a1", 650, 85))) // CRITICAL, escalation
	d.Close()

	entries, err := log.List(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	levelsFired := map[trust.RiskLevel]bool{}
	for _, e := range entries {
		levelsFired[e.RiskLevelAtTrigger] = true
	}
	assert.True(t, levelsFired[trust.RiskDeveloping])
	assert.True(t, levelsFired[trust.RiskHigh])
	assert.True(t, levelsFired[trust.RiskCriticalIntervention])

	level, _, err := levels.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, trust.RiskCriticalIntervention, level)
	assert.Equal(t, 1, obs.interventions["HIGH_RISK"])
	assert.Equal(t, 1, obs.interventions["CRITICAL_INTERVENTION"])

	var critical *LogEntry
	for _, e := range n.received() {
		if e.RiskLevelAtTrigger == trust.RiskCriticalIntervention {
			e := e
			critical = &e
		}
	}
	require.NotNil(t, critical)
	assert.Equal(t, trust.RiskModerate, critical.PreviousLevel)
	assert.True(t, critical.HasAction(ActionAlertOperators))
}

func TestDispatcher_LogFailureSendsNothing(t *testing.T) {
	log := &failingLog{MemoryLog: NewMemoryLog(), fail: true}
	n := &recordingNotifier{name: "test"}
	d, levels := newTestDispatcher(log, n)
	ctx := context.Background()

	err := d.Evaluate(ctx, record("a1", 0, 90))
	require.Error(t, err)
	d.Close()
	assert.Empty(t, n.received())
	_, ok, _ := levels.Get(ctx, "a1")
	assert.False(t, ok, "level must not advance when the log append fails")

	log.fail = false
	require.NoError(t, d.Evaluate(ctx, record("a1", 0, 90)))
	d.Close()
	assert.Len(t, n.received(), 1)
}

func TestDispatcher_NotificationFailureKeepsLog(t *testing.T) {
	log := NewMemoryLog()
	broken := &recordingNotifier{name: "sqs", err: errors.New("queue down")}
	healthy := &recordingNotifier{name: "redis"}
	obs := newCountingObserver()
	d, _ := newTestDispatcher(log, broken, healthy)
	d.WithObserver(obs)
	ctx := context.Background()

	require.NoError(t, d.Evaluate(ctx, record("a1", 100, 100)))
	d.Close()

	entries, err := log.List(ctx, "a1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Len(t, healthy.received(), 1)
	assert.Equal(t, 1, obs.failures["sqs"])
}

func TestDispatcher_NotifyOutlivesCallerContext(t *testing.T) {
	log := NewMemoryLog()
	n := &recordingNotifier{name: "test"}
	d, _ := newTestDispatcher(log, n)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Evaluate(ctx, record("a1", 0, 65)))
	cancel()
	d.Close()
	assert.Len(t, n.received(), 1)
}

func TestPolicy_ValidateAndActions(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Nil(t, p.Actions(trust.RiskNewUser))

	got := p.Actions(trust.RiskCriticalIntervention)
	got[0] = "mutated"
	assert.Equal(t, ActionDisableRiskActions, p[trust.RiskCriticalIntervention][0])

	bad := Policy{trust.RiskHigh: {"send_flowers"}}
	assert.Error(t, bad.Validate())
	assert.Error(t, Policy{"PANIC": nil}.Validate())
}
