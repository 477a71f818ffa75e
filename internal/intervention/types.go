// Package intervention turns risk-level escalations into logged, graduated
// actions and fans them out to notification channels.
package intervention

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/trust-engine/internal/trust"
)

// Action is one graduated response.
type Action string

const (
	ActionDisableRiskActions    Action = "disable_risk_actions"
	ActionNotifyContacts        Action = "notify_accountability_contacts"
	ActionMandatoryCooldown     Action = "mandatory_cooldown"
	ActionAlertOperators        Action = "alert_operators"
	ActionIncreaseCheckins      Action = "increase_checkins"
	ActionSuggestLimits         Action = "suggest_limits"
	ActionActivateBuddySystem   Action = "activate_buddy_system"
	ActionPassiveReminder       Action = "passive_reminder"
	ActionResourceLinks         Action = "resource_links"
	ActionPositiveReinforcement Action = "positive_reinforcement"
)

var knownActions = map[Action]struct{}{
	ActionDisableRiskActions:    {},
	ActionNotifyContacts:        {},
	ActionMandatoryCooldown:     {},
	ActionAlertOperators:        {},
	ActionIncreaseCheckins:      {},
	ActionSuggestLimits:         {},
	ActionActivateBuddySystem:   {},
	ActionPassiveReminder:       {},
	ActionResourceLinks:         {},
	ActionPositiveReinforcement: {},
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	_, ok := knownActions[a]
	return ok
}

// Policy maps a risk level to its ordered action set.
type Policy map[trust.RiskLevel][]Action

// DefaultPolicy returns the built-in action sets.
func DefaultPolicy() Policy {
	return Policy{
		trust.RiskCriticalIntervention: {ActionDisableRiskActions, ActionNotifyContacts, ActionMandatoryCooldown, ActionAlertOperators},
		trust.RiskHigh:                 {ActionIncreaseCheckins, ActionSuggestLimits, ActionActivateBuddySystem},
		trust.RiskModerateHigh:         {ActionPassiveReminder, ActionResourceLinks},
		trust.RiskModerate:             {ActionPassiveReminder, ActionResourceLinks},
		trust.RiskHighlyTrusted:        {ActionPositiveReinforcement},
		trust.RiskTrusted:              {ActionPositiveReinforcement},
	}
}

// Actions returns a copy of the level's action set; nil when none is configured.
func (p Policy) Actions(level trust.RiskLevel) []Action {
	set := p[level]
	if len(set) == 0 {
		return nil
	}
	out := make([]Action, len(set))
	copy(out, set)
	return out
}

// Validate rejects unknown levels and actions.
func (p Policy) Validate() error {
	for level, actions := range p {
		if !level.Valid() {
			return fmt.Errorf("intervention: unknown risk level %q", level)
		}
		for _, a := range actions {
			if !a.Valid() {
				return fmt.Errorf("intervention: unknown action %q for %s", a, level)
			}
		}
	}
	return nil
}

// LogEntry is an append-only record of one dispatch.
type LogEntry struct {
	ID                 string          `json:"id"`
	ActorID            string          `json:"actor_id"`
	RiskLevelAtTrigger trust.RiskLevel `json:"risk_level_at_trigger"`
	PreviousLevel      trust.RiskLevel `json:"previous_level,omitempty"`
	TrustScore         int             `json:"trust_score"`
	SusScore           int             `json:"sus_score"`
	Actions            []Action        `json:"actions"`
	Timestamp          time.Time       `json:"timestamp"`
}

// HasAction reports whether the entry includes a.
func (e LogEntry) HasAction(a Action) bool {
	for _, got := range e.Actions {
		if got == a {
			return true
		}
	}
	return false
}

// Notifier delivers a dispatched entry to one external channel. Delivery is
// best effort.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, entry LogEntry) error
}

// LevelStore remembers the last classified level per actor.
type LevelStore interface {
	Get(ctx context.Context, actorID string) (trust.RiskLevel, bool, error)
	Set(ctx context.Context, actorID string, level trust.RiskLevel) error
}

// Log is the append-only intervention log.
type Log interface {
	Append(ctx context.Context, entry LogEntry) error
	List(ctx context.Context, actorID string, limit int) ([]LogEntry, error)
}

// Observer receives dispatch metrics.
type Observer interface {
	ObserveIntervention(level string)
	ObserveNotificationFailure(channel string)
}

type noopObserver struct{}

func (noopObserver) ObserveIntervention(string)        {}
func (noopObserver) ObserveNotificationFailure(string) {}
