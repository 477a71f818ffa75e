package trust

import (
	"fmt"
)

// Scheme names a coherent category set chosen per deployment.
type Scheme string

const (
	// SchemeBehavioral scores session discipline, community, accountability,
	// consistency and support-network activity.
	SchemeBehavioral Scheme = "behavioral"
	// SchemeContract scores verified links, proof-of-action, peer reporting
	// and accountability engagement.
	SchemeContract Scheme = "contract"
)

// SchemeCategories returns the categories that make up a scheme.
func SchemeCategories(s Scheme) ([]Category, error) {
	switch s {
	case SchemeBehavioral:
		return []Category{
			CategoryDiscipline,
			CategoryCommunity,
			CategoryAccountability,
			CategoryConsistency,
			CategorySupportNetwork,
		}, nil
	case SchemeContract:
		return []Category{
			CategoryVerifiedLinks,
			CategoryProofOfAction,
			CategoryPeerReporting,
			CategoryAccountability,
		}, nil
	default:
		return nil, fmt.Errorf("trust: unknown scoring scheme %q", s)
	}
}

// Scoring holds every point constant the calculators and the attestation
// handler use. It is loaded from the deployment policy file.
type Scoring struct {
	Scheme Scheme           `yaml:"scheme" json:"scheme"`
	Caps   map[Category]int `yaml:"caps" json:"caps"`

	DisciplineBase      int `yaml:"discipline_base" json:"discipline_base"`
	TiltRecoveryBonus   int `yaml:"tilt_recovery_bonus" json:"tilt_recovery_bonus"`
	HelpBonus           int `yaml:"help_bonus" json:"help_bonus"`
	IncidentPenalty     int `yaml:"incident_penalty" json:"incident_penalty"`
	SelfTrackingPoints  int `yaml:"self_tracking_points" json:"self_tracking_points"`
	BuddyCheckInPoints  int `yaml:"buddy_checkin_points" json:"buddy_checkin_points"`
	BuddyJoinedPoints   int `yaml:"buddy_joined_points" json:"buddy_joined_points"`
	MentorSessionPoints int `yaml:"mentor_session_points" json:"mentor_session_points"`

	ConsistencyWindowDays int `yaml:"consistency_window_days" json:"consistency_window_days"`
	ConsistencyMinStakes  int `yaml:"consistency_min_stakes" json:"consistency_min_stakes"`

	LinkPoints       int `yaml:"link_points" json:"link_points"`
	MaxCreditedLinks int `yaml:"max_credited_links" json:"max_credited_links"`

	ProofPoints         int `yaml:"proof_points" json:"proof_points"`
	ProofBonus          int `yaml:"proof_bonus" json:"proof_bonus"`
	ProofBonusThreshold int `yaml:"proof_bonus_threshold" json:"proof_bonus_threshold"`

	ReportCredit           int  `yaml:"report_credit" json:"report_credit"`
	ReportReceivedPenalty  int  `yaml:"report_received_penalty" json:"report_received_penalty"`
	ScamSusPenalty         int  `yaml:"scam_sus_penalty" json:"scam_sus_penalty"`
	ReporterTrustFloor     int  `yaml:"reporter_trust_floor" json:"reporter_trust_floor"`
	ReverseRejectedReports bool `yaml:"reverse_rejected_reports" json:"reverse_rejected_reports"`

	SuspicionWindowHours int `yaml:"suspicion_window_hours" json:"suspicion_window_hours"`
	SusAuditThreshold    int `yaml:"sus_audit_threshold" json:"sus_audit_threshold"`
}

// DefaultCaps returns the documented maximum of every category.
func DefaultCaps() map[Category]int {
	return map[Category]int{
		CategoryDiscipline:     300,
		CategoryCommunity:      250,
		CategoryAccountability: 200,
		CategoryConsistency:    150,
		CategorySupportNetwork: 100,
		CategoryVerifiedLinks:  250,
		CategoryProofOfAction:  400,
		CategoryPeerReporting:  150,
	}
}

// DefaultScoring returns the built-in point table for the given scheme.
func DefaultScoring(s Scheme) Scoring {
	return Scoring{
		Scheme: s,
		Caps:   DefaultCaps(),

		DisciplineBase:      200,
		TiltRecoveryBonus:   10,
		HelpBonus:           5,
		IncidentPenalty:     25,
		SelfTrackingPoints:  3,
		BuddyCheckInPoints:  5,
		BuddyJoinedPoints:   20,
		MentorSessionPoints: 10,

		ConsistencyWindowDays: 90,
		ConsistencyMinStakes:  5,

		LinkPoints:       50,
		MaxCreditedLinks: 5,

		ProofPoints:         45,
		ProofBonus:          25,
		ProofBonusThreshold: 3,

		ReportCredit:           10,
		ReportReceivedPenalty:  25,
		ScamSusPenalty:         200,
		ReporterTrustFloor:     ReporterTrustFloor,
		ReverseRejectedReports: true,

		SuspicionWindowHours: 24,
		SusAuditThreshold:    60,
	}
}

// Categories resolves the scheme's category list.
func (s Scoring) Categories() []Category {
	cats, err := SchemeCategories(s.Scheme)
	if err != nil {
		return nil
	}
	return cats
}

// Scores reports whether the scheme has a calculator for c.
func (s Scoring) Scores(c Category) bool {
	for _, known := range s.Categories() {
		if known == c {
			return true
		}
	}
	return false
}

// Cap returns the cap for a category, falling back to the documented default.
func (s Scoring) Cap(c Category) int {
	if v, ok := s.Caps[c]; ok {
		return v
	}
	return DefaultCaps()[c]
}

// Validate rejects point tables that would break the score invariants.
func (s Scoring) Validate() error {
	cats, err := SchemeCategories(s.Scheme)
	if err != nil {
		return err
	}
	for c, v := range s.Caps {
		if !c.Valid() {
			return fmt.Errorf("trust: unknown category %q in caps", c)
		}
		if v <= 0 {
			return fmt.Errorf("trust: cap for %q must be positive", c)
		}
	}
	total := 0
	for _, c := range cats {
		total += s.Cap(c)
	}
	if total > MaxTrustScore {
		return fmt.Errorf("trust: scheme %q caps sum to %d, above %d", s.Scheme, total, MaxTrustScore)
	}
	if s.ProofBonusThreshold <= 0 {
		return fmt.Errorf("trust: proof bonus threshold must be positive")
	}
	if s.MaxCreditedLinks <= 0 {
		return fmt.Errorf("trust: max credited links must be positive")
	}
	if s.ReportReceivedPenalty <= s.ReportCredit {
		return fmt.Errorf("trust: report received penalty must exceed report credit")
	}
	if s.SuspicionWindowHours <= 0 || s.ConsistencyWindowDays <= 0 {
		return fmt.Errorf("trust: scoring windows must be positive")
	}
	return nil
}
