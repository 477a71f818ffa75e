package trust

import (
	"math"
	"sort"
	"strings"
	"time"
)

// CategoryScore is one calculator's output, already clamped to its cap.
type CategoryScore struct {
	Category Category `json:"category"`
	Points   int      `json:"points"`
	Cap      int      `json:"cap"`
}

// Calculator turns an actor's history into a bounded point value for one
// category. Implementations are pure: the same History always yields the
// same CategoryScore.
type Calculator interface {
	Category() Category
	Calculate(h History) CategoryScore
}

type calculator struct {
	category Category
	cap      int
	raw      func(h History) int
}

func (c calculator) Category() Category { return c.category }

// Calculate clamps at the leaf so the aggregate never needs a second clamp.
func (c calculator) Calculate(h History) CategoryScore {
	return CategoryScore{
		Category: c.category,
		Points:   clamp(c.raw(h), 0, c.cap),
		Cap:      c.cap,
	}
}

var gradeAdjustments = map[string]int{
	"A": 15,
	"B": 8,
	"C": 0,
	"D": -10,
	"F": -20,
}

// NewCalculators builds the calculators for the scoring scheme.
func NewCalculators(s Scoring) []Calculator {
	cats := s.Categories()
	out := make([]Calculator, 0, len(cats))
	for _, c := range cats {
		if calc := newCalculator(c, s); calc != nil {
			out = append(out, calc)
		}
	}
	return out
}

func newCalculator(c Category, s Scoring) Calculator {
	var raw func(History) int
	switch c {
	case CategoryDiscipline:
		raw = func(h History) int { return disciplinePoints(h, s) }
	case CategoryCommunity:
		raw = func(h History) int { return communityPoints(h, s) }
	case CategoryAccountability:
		raw = func(h History) int { return accountabilityPoints(h, s) }
	case CategoryConsistency:
		raw = func(h History) int { return consistencyPoints(h, s) }
	case CategorySupportNetwork:
		raw = func(h History) int { return supportNetworkPoints(h, s) }
	case CategoryVerifiedLinks:
		raw = func(h History) int { return verifiedLinkPoints(h, s) }
	case CategoryProofOfAction:
		raw = func(h History) int { return proofOfActionPoints(h) }
	case CategoryPeerReporting:
		raw = func(h History) int { return peerReportingPoints(h, s) }
	default:
		return nil
	}
	return calculator{category: c, cap: s.Cap(c), raw: raw}
}

func disciplinePoints(h History, s Scoring) int {
	points := s.DisciplineBase
	for _, e := range h.Events {
		switch e.Type {
		case EventSessionGraded:
			points += gradeAdjustments[strings.ToUpper(e.Grade)]
		case EventTiltRecovered:
			points += s.TiltRecoveryBonus
		}
	}
	return points
}

func communityPoints(h History, s Scoring) int {
	var respect int
	var latest time.Time
	for _, e := range h.Events {
		if e.Type == EventRespectUpdated && !e.OccurredAt.Before(latest) {
			respect = e.Count
			latest = e.OccurredAt
		}
	}
	return respect/2 +
		countType(h.Events, EventHelpedMember)*s.HelpBonus -
		countType(h.Events, EventIncidentFiled)*s.IncidentPenalty
}

func accountabilityPoints(h History, s Scoring) int {
	return countType(h.Events, EventSelfTracking)*s.SelfTrackingPoints +
		countType(h.Events, EventBuddyCheckIn)*s.BuddyCheckInPoints
}

func supportNetworkPoints(h History, s Scoring) int {
	return countType(h.Events, EventBuddyJoined)*s.BuddyJoinedPoints +
		countType(h.Events, EventMentorSession)*s.MentorSessionPoints
}

// consistencyPoints rewards low variance in stake size and session timing
// over the rolling window.
func consistencyPoints(h History, s Scoring) int {
	cutoff := h.AsOf.Add(-time.Duration(s.ConsistencyWindowDays) * 24 * time.Hour)
	var amounts, hours []float64
	for _, e := range eventsSince(h.Events, cutoff) {
		if e.Type != EventStakePlaced {
			continue
		}
		amounts = append(amounts, e.Stake)
		t := e.OccurredAt.UTC()
		hours = append(hours, float64(t.Hour())+float64(t.Minute())/60)
	}
	if len(amounts) < s.ConsistencyMinStakes {
		return 0
	}

	points := 0
	if mean, sd := meanStdDev(amounts); mean > 0 {
		switch cv := sd / mean; {
		case cv < 0.25:
			points += 75
		case cv < 0.5:
			points += 40
		}
	}
	switch _, sd := meanStdDev(hours); {
	case sd < 2:
		points += 75
	case sd < 4:
		points += 40
	}
	return points
}

func verifiedLinkPoints(h History, s Scoring) int {
	n := len(h.Ledger.Links)
	if n > s.MaxCreditedLinks {
		n = s.MaxCreditedLinks
	}
	return n * s.LinkPoints
}

func proofOfActionPoints(h History) int {
	points := 0
	for _, p := range h.Ledger.Proofs {
		points += p.AwardedPoints
	}
	return points
}

func peerReportingPoints(h History, s Scoring) int {
	points := 0
	for _, r := range h.Ledger.ReportsFiled {
		if s.reportCounts(r) {
			points += s.ReportCredit
		}
	}
	for _, r := range h.Ledger.ReportsReceived {
		if r.Kind == ReportScam && s.reportCounts(r) {
			points -= s.ReportReceivedPenalty
		}
	}
	return points
}

// reportSusPenalty is the suspicion contributed by scam reports received.
func reportSusPenalty(l Ledger, s Scoring) int {
	penalty := 0
	for _, r := range l.ReportsReceived {
		if r.Kind == ReportScam && s.reportCounts(r) {
			penalty += s.ScamSusPenalty
		}
	}
	return clamp(penalty, 0, MaxSusScore)
}

// reportCounts decides whether a report still carries its effects.
func (s Scoring) reportCounts(r PeerReport) bool {
	return !(s.ReverseRejectedReports && r.Status == StatusRejected)
}

// vouchers lists the distinct actors with a live vouch for the actor.
func vouchers(l Ledger, s Scoring) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range l.ReportsReceived {
		if r.Kind != ReportVouch || !s.reportCounts(r) {
			continue
		}
		if _, ok := seen[r.ReporterID]; ok {
			continue
		}
		seen[r.ReporterID] = struct{}{}
		out = append(out, r.ReporterID)
	}
	sort.Strings(out)
	return out
}

// nextProofAward computes the points for a new proof given the existing ones.
// The bonus is awarded once, on the proof that brings the count to the threshold.
func nextProofAward(existing []ProofOfActionRecord, s Scoring) (int, bool) {
	for _, p := range existing {
		if p.ConsistencyBonusApplied {
			return s.ProofPoints, false
		}
	}
	if len(existing)+1 == s.ProofBonusThreshold {
		return s.ProofPoints + s.ProofBonus, true
	}
	return s.ProofPoints, false
}

func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}
