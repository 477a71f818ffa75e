package trust

import (
	"fmt"
	"strings"
)

// RiskLevel is the discrete classification derived from (trust, sus).
type RiskLevel string

const (
	RiskCriticalIntervention RiskLevel = "CRITICAL_INTERVENTION"
	RiskHigh                 RiskLevel = "HIGH_RISK"
	RiskModerateHigh         RiskLevel = "MODERATE_HIGH"
	RiskModerate             RiskLevel = "MODERATE_RISK"
	RiskHighlyTrusted        RiskLevel = "HIGHLY_TRUSTED"
	RiskTrusted              RiskLevel = "TRUSTED"
	RiskAverage              RiskLevel = "AVERAGE"
	RiskDeveloping           RiskLevel = "DEVELOPING"
	RiskNewUser              RiskLevel = "NEW_USER"
)

// AllRiskLevels lists levels from most to least severe.
var AllRiskLevels = []RiskLevel{
	RiskCriticalIntervention,
	RiskHigh,
	RiskModerateHigh,
	RiskModerate,
	RiskHighlyTrusted,
	RiskTrusted,
	RiskAverage,
	RiskDeveloping,
	RiskNewUser,
}

// Classify maps a score pair to a risk level. Suspicion always takes
// precedence over trust standing.
func Classify(trustScore, susScore int) RiskLevel {
	switch {
	case susScore >= 80:
		return RiskCriticalIntervention
	case susScore >= 60:
		return RiskHigh
	case trustScore < 200 && susScore >= 40:
		return RiskModerateHigh
	case susScore >= 40:
		return RiskModerate
	case trustScore >= 800:
		return RiskHighlyTrusted
	case trustScore >= 600:
		return RiskTrusted
	case trustScore >= 400:
		return RiskAverage
	case trustScore >= 200:
		return RiskDeveloping
	default:
		return RiskNewUser
	}
}

// Severity orders levels for escalation checks. All trust tiers share
// severity 0; only suspicion-driven levels escalate.
func (l RiskLevel) Severity() int {
	switch l {
	case RiskCriticalIntervention:
		return 4
	case RiskHigh:
		return 3
	case RiskModerateHigh:
		return 2
	case RiskModerate:
		return 1
	default:
		return 0
	}
}

// MoreSevereThan reports whether l escalates beyond other.
func (l RiskLevel) MoreSevereThan(other RiskLevel) bool {
	return l.Severity() > other.Severity()
}

// Valid reports whether l is a known level.
func (l RiskLevel) Valid() bool {
	for _, known := range AllRiskLevels {
		if l == known {
			return true
		}
	}
	return false
}

// ParseRiskLevel parses a level name case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	level := RiskLevel(strings.ToUpper(strings.TrimSpace(s)))
	if !level.Valid() {
		return "", fmt.Errorf("trust: unknown risk level %q", s)
	}
	return level, nil
}
