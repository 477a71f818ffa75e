package trust

import (
	"sort"
	"time"
)

// Suspicion component names, used in audit entries and metrics labels.
const (
	ComponentVelocity        = "velocity"
	ComponentLossChasing     = "loss_chasing"
	ComponentMultiChannel    = "multi_channel"
	ComponentStakeEscalation = "stake_escalation"
	ComponentTimeOfDay       = "time_of_day"
)

const (
	velocityWindow     = 5 * time.Minute
	multiChannelWindow = 10 * time.Minute
	lossChaseFactor    = 1.5
	lateNightEndHour   = 5
	lateNightMinStakes = 10
	longSession        = 6 * time.Hour
)

// SuspicionResult is the detector output for one actor.
type SuspicionResult struct {
	Score      int            `json:"score"`
	Components map[string]int `json:"components"`
}

// Detector turns recent event velocity and patterns into a bounded anomaly score.
type Detector struct {
	window time.Duration
}

// NewDetector builds a detector over the scoring window.
func NewDetector(s Scoring) *Detector {
	hours := s.SuspicionWindowHours
	if hours <= 0 {
		hours = 24
	}
	return &Detector{window: time.Duration(hours) * time.Hour}
}

// Detect scores the events inside the window ending at asOf. Each component
// is independently bounded and the sum is capped at MaxSusScore.
func (d *Detector) Detect(events []Event, asOf time.Time) SuspicionResult {
	recent := eventsSince(events, asOf.Add(-d.window))
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].OccurredAt.Before(recent[j].OccurredAt)
	})

	var stakes []Event
	for _, e := range recent {
		if e.Type == EventStakePlaced {
			stakes = append(stakes, e)
		}
	}

	components := map[string]int{
		ComponentVelocity:        velocityScore(stakes),
		ComponentLossChasing:     lossChasingScore(stakes),
		ComponentMultiChannel:    multiChannelScore(stakes),
		ComponentStakeEscalation: escalationScore(stakes),
		ComponentTimeOfDay:       timeOfDayScore(stakes, recent),
	}
	total := 0
	for _, v := range components {
		total += v
	}
	return SuspicionResult{Score: clamp(total, 0, MaxSusScore), Components: components}
}

func velocityScore(stakes []Event) int {
	peak := 0
	start := 0
	for end := range stakes {
		for stakes[end].OccurredAt.Sub(stakes[start].OccurredAt) >= velocityWindow {
			start++
		}
		if n := end - start + 1; n > peak {
			peak = n
		}
	}
	switch {
	case peak >= 30:
		return 65
	case peak >= 20:
		return 45
	case peak >= 10:
		return 25
	default:
		return 0
	}
}

func lossChasingScore(stakes []Event) int {
	chases := 0
	for i := 1; i < len(stakes); i++ {
		prev := stakes[i-1]
		if prev.Outcome == OutcomeLoss && stakes[i].Stake >= prev.Stake*lossChaseFactor {
			chases++
		}
	}
	return clamp(chases*10, 0, 30)
}

func multiChannelScore(stakes []Event) int {
	peak := 0
	start := 0
	for end := range stakes {
		for stakes[end].OccurredAt.Sub(stakes[start].OccurredAt) >= multiChannelWindow {
			start++
		}
		channels := map[string]struct{}{}
		for _, e := range stakes[start : end+1] {
			if e.Channel != "" {
				channels[e.Channel] = struct{}{}
			}
		}
		if len(channels) > peak {
			peak = len(channels)
		}
	}
	switch {
	case peak >= 3:
		return 20
	case peak == 2:
		return 10
	default:
		return 0
	}
}

func escalationScore(stakes []Event) int {
	if len(stakes) < 2 || stakes[0].Stake <= 0 {
		return 0
	}
	maxStake := stakes[0].Stake
	for _, e := range stakes[1:] {
		if e.Stake > maxStake {
			maxStake = e.Stake
		}
	}
	switch ratio := maxStake / stakes[0].Stake; {
	case ratio >= 5:
		return 20
	case ratio >= 3:
		return 10
	default:
		return 0
	}
}

func timeOfDayScore(stakes, recent []Event) int {
	score := 0
	lateNight := 0
	for _, e := range stakes {
		if e.OccurredAt.UTC().Hour() < lateNightEndHour {
			lateNight++
		}
	}
	if lateNight >= lateNightMinStakes {
		score += 10
	}
	if longestSession(recent) >= longSession {
		score += 10
	}
	return score
}

// longestSession prefers explicit durations on session_ended events and
// falls back to pairing start/end timestamps.
func longestSession(events []Event) time.Duration {
	var longest time.Duration
	var open time.Time
	for _, e := range events {
		switch e.Type {
		case EventSessionStarted:
			open = e.OccurredAt
		case EventSessionEnded:
			d := e.Duration
			if d == 0 && !open.IsZero() {
				d = e.OccurredAt.Sub(open)
			}
			if d > longest {
				longest = d
			}
			open = time.Time{}
		}
	}
	return longest
}
