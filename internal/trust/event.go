package trust

import (
	"fmt"
	"strings"
	"time"
)

// EventType tags a verified behavioral event.
type EventType string

const (
	EventStakePlaced    EventType = "stake_placed"
	EventSessionStarted EventType = "session_started"
	EventSessionEnded   EventType = "session_ended"
	EventSessionGraded  EventType = "session_graded"
	EventTiltRecovered  EventType = "tilt_recovered"
	EventRespectUpdated EventType = "respect_updated"
	EventHelpedMember   EventType = "helped_member"
	EventIncidentFiled  EventType = "incident_reported"
	EventSelfTracking   EventType = "self_tracking_used"
	EventBuddyCheckIn   EventType = "buddy_checkin"
	EventBuddyJoined    EventType = "buddy_joined"
	EventMentorSession  EventType = "mentor_session"
)

var knownEventTypes = map[EventType]struct{}{
	EventStakePlaced:    {},
	EventSessionStarted: {},
	EventSessionEnded:   {},
	EventSessionGraded:  {},
	EventTiltRecovered:  {},
	EventRespectUpdated: {},
	EventHelpedMember:   {},
	EventIncidentFiled:  {},
	EventSelfTracking:   {},
	EventBuddyCheckIn:   {},
	EventBuddyJoined:    {},
	EventMentorSession:  {},
}

// Outcome of a stake.
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
)

// Event is an already-validated behavioral fact produced by an external
// collaborator. Payload fields not relevant to the type stay zero.
type Event struct {
	ID         string        `json:"id"`
	ActorID    string        `json:"actor_id"`
	Type       EventType     `json:"type"`
	OccurredAt time.Time     `json:"occurred_at"`
	Stake      float64       `json:"stake,omitempty"`
	Outcome    string        `json:"outcome,omitempty"`
	Channel    string        `json:"channel,omitempty"`
	Grade      string        `json:"grade,omitempty"`
	Count      int           `json:"count,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// Validate checks the event shape before it is accepted into history.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.ActorID) == "" {
		return fmt.Errorf("%w: actor_id is required", ErrInvalidEvent)
	}
	if _, ok := knownEventTypes[e.Type]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: occurred_at is required", ErrInvalidEvent)
	}
	switch e.Type {
	case EventStakePlaced:
		if e.Stake <= 0 {
			return fmt.Errorf("%w: stake must be positive", ErrInvalidEvent)
		}
		if e.Outcome != "" && e.Outcome != OutcomeWin && e.Outcome != OutcomeLoss {
			return fmt.Errorf("%w: unknown outcome %q", ErrInvalidEvent, e.Outcome)
		}
	case EventSessionGraded:
		if _, ok := gradeAdjustments[strings.ToUpper(e.Grade)]; !ok {
			return fmt.Errorf("%w: unknown grade %q", ErrInvalidEvent, e.Grade)
		}
	case EventRespectUpdated:
		if e.Count < 0 {
			return fmt.Errorf("%w: respect counter must be non-negative", ErrInvalidEvent)
		}
	case EventSessionEnded:
		if e.Duration < 0 {
			return fmt.Errorf("%w: duration must be non-negative", ErrInvalidEvent)
		}
	}
	return nil
}

// eventsSince returns the events at or after cutoff, preserving order.
func eventsSince(events []Event, cutoff time.Time) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.OccurredAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func countType(events []Event, t EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}
