package trust

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stakeBurst(n int, start time.Time, every time.Duration, mutate func(i int, e *Event)) []Event {
	out := make([]Event, n)
	for i := range out {
		out[i] = Event{Type: EventStakePlaced, Stake: 10, Outcome: OutcomeWin, Channel: "web", OccurredAt: start.Add(time.Duration(i) * every)}
		if mutate != nil {
			mutate(i, &out[i])
		}
	}
	return out
}

func TestDetector_VelocityThresholds(t *testing.T) {
	d := NewDetector(DefaultScoring(SchemeBehavioral))
	start := testNow.Add(-time.Hour)

	tests := []struct {
		stakes int
		want   int
	}{
		{9, 0},
		{10, 25},
		{20, 45},
		{30, 65},
	}
	for _, tt := range tests {
		res := d.Detect(stakeBurst(tt.stakes, start, 5*time.Second, nil), testNow)
		assert.Equal(t, tt.want, res.Components[ComponentVelocity], "stakes=%d", tt.stakes)
	}

	spread := d.Detect(stakeBurst(30, start.Add(-10*time.Hour), 20*time.Minute, nil), testNow)
	assert.Equal(t, 0, spread.Components[ComponentVelocity])
}

func TestDetector_LossChasingAndEscalation(t *testing.T) {
	d := NewDetector(DefaultScoring(SchemeBehavioral))
	stakes := []float64{10, 20, 40, 80, 160}
	events := stakeBurst(len(stakes), testNow.Add(-3*time.Hour), 20*time.Minute, func(i int, e *Event) {
		e.Stake = stakes[i]
		e.Outcome = OutcomeLoss
	})
	res := d.Detect(events, testNow)
	assert.Equal(t, 30, res.Components[ComponentLossChasing])
	assert.Equal(t, 20, res.Components[ComponentStakeEscalation])
	assert.Equal(t, 50, res.Score)
}

func TestDetector_MultiChannel(t *testing.T) {
	d := NewDetector(DefaultScoring(SchemeBehavioral))
	channels := []string{"web", "mobile", "kiosk"}
	events := stakeBurst(3, testNow.Add(-time.Hour), time.Minute, func(i int, e *Event) { e.Channel = channels[i] })
	assert.Equal(t, 20, d.Detect(events, testNow).Components[ComponentMultiChannel])
	assert.Equal(t, 10, d.Detect(events[:2], testNow).Components[ComponentMultiChannel])
}

func TestDetector_TimeOfDay(t *testing.T) {
	d := NewDetector(DefaultScoring(SchemeBehavioral))
	night := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	events := stakeBurst(10, night, 10*time.Minute, nil)
	events = append(events,
		Event{Type: EventSessionStarted, OccurredAt: night},
		Event{Type: EventSessionEnded, OccurredAt: night.Add(7 * time.Hour)},
	)
	res := d.Detect(events, night.Add(8*time.Hour))
	assert.Equal(t, 20, res.Components[ComponentTimeOfDay])
}

func TestDetector_CappedAndWindowed(t *testing.T) {
	d := NewDetector(DefaultScoring(SchemeBehavioral))
	channels := []string{"web", "mobile", "kiosk"}
	events := stakeBurst(30, testNow.Add(-10*time.Minute), 5*time.Second, func(i int, e *Event) {
		e.Channel = channels[i%3]
		e.Outcome = OutcomeLoss
		e.Stake = float64(10 * (i + 1))
	})
	res := d.Detect(events, testNow)
	assert.Equal(t, MaxSusScore, res.Score)

	old := d.Detect(events, testNow.Add(48*time.Hour))
	assert.Equal(t, 0, old.Score)
}
