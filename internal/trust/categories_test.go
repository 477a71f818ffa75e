package trust

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func scoreOf(t *testing.T, s Scoring, c Category, h History) int {
	t.Helper()
	for _, calc := range NewCalculators(s) {
		if calc.Category() == c {
			return calc.Calculate(h).Points
		}
	}
	t.Fatalf("category %s not in scheme %s", c, s.Scheme)
	return 0
}

func repeatEvents(n int, typ EventType, mutate func(i int, e *Event)) []Event {
	out := make([]Event, n)
	for i := range out {
		out[i] = Event{ID: fmt.Sprintf("%s-%d", typ, i), ActorID: "a", Type: typ, OccurredAt: testNow.Add(-time.Duration(n-i) * time.Minute)}
		if mutate != nil {
			mutate(i, &out[i])
		}
	}
	return out
}

func TestSchemes_CapsSumToMax(t *testing.T) {
	for _, scheme := range []Scheme{SchemeBehavioral, SchemeContract} {
		s := DefaultScoring(scheme)
		require.NoError(t, s.Validate())
		total := 0
		for _, calc := range NewCalculators(s) {
			total += calc.Calculate(History{}).Cap
		}
		assert.Equal(t, MaxTrustScore, total, "scheme %s", scheme)
	}
}

func TestScoring_ValidateRejectsOverflow(t *testing.T) {
	s := DefaultScoring(SchemeContract)
	s.Caps = DefaultCaps()
	s.Caps[CategoryProofOfAction] = 500
	assert.Error(t, s.Validate())

	s = DefaultScoring("mixed")
	assert.Error(t, s.Validate())

	s = DefaultScoring(SchemeBehavioral)
	s.Caps = map[Category]int{"karma": 10}
	assert.Error(t, s.Validate())
}

func TestCalculators_ClampToCap(t *testing.T) {
	s := DefaultScoring(SchemeBehavioral)

	grades := repeatEvents(20, EventSessionGraded, func(_ int, e *Event) { e.Grade = "A" })
	assert.Equal(t, 300, scoreOf(t, s, CategoryDiscipline, History{Events: grades, AsOf: testNow}))

	fails := repeatEvents(20, EventSessionGraded, func(_ int, e *Event) { e.Grade = "F" })
	assert.Equal(t, 0, scoreOf(t, s, CategoryDiscipline, History{Events: fails, AsOf: testNow}))

	incidents := repeatEvents(5, EventIncidentFiled, nil)
	assert.Equal(t, 0, scoreOf(t, s, CategoryCommunity, History{Events: incidents, AsOf: testNow}))

	checkins := repeatEvents(100, EventBuddyCheckIn, nil)
	assert.Equal(t, 200, scoreOf(t, s, CategoryAccountability, History{Events: checkins, AsOf: testNow}))
}

func TestDiscipline_GradesAndTilt(t *testing.T) {
	s := DefaultScoring(SchemeBehavioral)
	events := []Event{
		{Type: EventSessionGraded, Grade: "A"},
		{Type: EventSessionGraded, Grade: "b"},
		{Type: EventSessionGraded, Grade: "D"},
		{Type: EventTiltRecovered},
	}
	assert.Equal(t, 200+15+8-10+10, scoreOf(t, s, CategoryDiscipline, History{Events: events, AsOf: testNow}))
}

func TestCommunity_UsesLatestRespect(t *testing.T) {
	s := DefaultScoring(SchemeBehavioral)
	events := []Event{
		{Type: EventRespectUpdated, Count: 100, OccurredAt: testNow.Add(-2 * time.Hour)},
		{Type: EventRespectUpdated, Count: 60, OccurredAt: testNow.Add(-time.Hour)},
		{Type: EventHelpedMember, OccurredAt: testNow},
	}
	assert.Equal(t, 30+5, scoreOf(t, s, CategoryCommunity, History{Events: events, AsOf: testNow}))
}

func TestConsistency(t *testing.T) {
	s := DefaultScoring(SchemeBehavioral)

	few := repeatEvents(4, EventStakePlaced, func(_ int, e *Event) { e.Stake = 10 })
	assert.Equal(t, 0, scoreOf(t, s, CategoryConsistency, History{Events: few, AsOf: testNow}))

	steady := repeatEvents(10, EventStakePlaced, func(_ int, e *Event) { e.Stake = 10 })
	assert.Equal(t, 150, scoreOf(t, s, CategoryConsistency, History{Events: steady, AsOf: testNow}))

	erratic := repeatEvents(10, EventStakePlaced, func(i int, e *Event) {
		e.Stake = 10
		if i%2 == 0 {
			e.Stake = 100
		}
		e.OccurredAt = testNow.Add(-time.Duration(i) * 5 * time.Hour)
	})
	assert.Equal(t, 0, scoreOf(t, s, CategoryConsistency, History{Events: erratic, AsOf: testNow}))

	stale := repeatEvents(10, EventStakePlaced, func(_ int, e *Event) {
		e.Stake = 10
		e.OccurredAt = testNow.Add(-100 * 24 * time.Hour)
	})
	assert.Equal(t, 0, scoreOf(t, s, CategoryConsistency, History{Events: stale, AsOf: testNow}))
}

func TestVerifiedLinks_CreditCapped(t *testing.T) {
	s := DefaultScoring(SchemeContract)
	var links []VerifiedLink
	for i := 0; i < 8; i++ {
		links = append(links, VerifiedLink{ID: fmt.Sprint(i)})
		want := (i + 1) * 50
		if i+1 > s.MaxCreditedLinks {
			want = s.MaxCreditedLinks * 50
		}
		assert.Equal(t, want, scoreOf(t, s, CategoryVerifiedLinks, History{Ledger: Ledger{Links: links}}))
	}
}

func TestNextProofAward_BonusOnlyOnThird(t *testing.T) {
	s := DefaultScoring(SchemeContract)
	var proofs []ProofOfActionRecord
	var awards []int
	var bonuses []bool
	for i := 0; i < 5; i++ {
		points, bonus := nextProofAward(proofs, s)
		awards = append(awards, points)
		bonuses = append(bonuses, bonus)
		proofs = append(proofs, ProofOfActionRecord{AwardedPoints: points, ConsistencyBonusApplied: bonus})
	}
	assert.Equal(t, []int{45, 45, 70, 45, 45}, awards)
	assert.Equal(t, []bool{false, false, true, false, false}, bonuses)
	assert.Equal(t, 250, scoreOf(t, s, CategoryProofOfAction, History{Ledger: Ledger{Proofs: proofs}}))
}

func TestPeerReporting_Reversal(t *testing.T) {
	s := DefaultScoring(SchemeContract)
	filed := []PeerReport{
		{Kind: ReportScam, Status: StatusUnderReview},
		{Kind: ReportVouch, Status: StatusAccepted},
		{Kind: ReportScam, Status: StatusRejected},
	}
	assert.Equal(t, 20, scoreOf(t, s, CategoryPeerReporting, History{Ledger: Ledger{ReportsFiled: filed}}))

	s.ReverseRejectedReports = false
	assert.Equal(t, 30, scoreOf(t, s, CategoryPeerReporting, History{Ledger: Ledger{ReportsFiled: filed}}))
}

func TestReportSusPenalty(t *testing.T) {
	s := DefaultScoring(SchemeContract)
	received := Ledger{ReportsReceived: []PeerReport{
		{Kind: ReportVouch, Status: StatusUnderReview},
		{Kind: ReportScam, Status: StatusUnderReview},
	}}
	assert.Equal(t, MaxSusScore, reportSusPenalty(received, s))

	received.ReportsReceived[1].Status = StatusRejected
	assert.Equal(t, 0, reportSusPenalty(received, s))
}

func TestVouchers_DistinctAndSorted(t *testing.T) {
	s := DefaultScoring(SchemeContract)
	l := Ledger{ReportsReceived: []PeerReport{
		{ReporterID: "zed", Kind: ReportVouch},
		{ReporterID: "amy", Kind: ReportVouch},
		{ReporterID: "amy", Kind: ReportVouch},
		{ReporterID: "bob", Kind: ReportScam},
		{ReporterID: "cat", Kind: ReportVouch, Status: StatusRejected},
	}}
	assert.Equal(t, []string{"amy", "zed"}, vouchers(l, s))
}
