// Package trust implements the agreement-gated trust and suspicion scoring
// engine: category calculators, the suspicion detector, the risk classifier,
// peer attestation and the per-actor serialized recalculation pipeline.
package trust

import (
	"time"
)

// Category names one independently capped component of the trust score.
type Category string

const (
	CategoryDiscipline     Category = "discipline"
	CategoryCommunity      Category = "community"
	CategoryAccountability Category = "accountability"
	CategoryConsistency    Category = "consistency"
	CategorySupportNetwork Category = "support_network"
	CategoryVerifiedLinks  Category = "verified_links"
	CategoryProofOfAction  Category = "proof_of_action"
	CategoryPeerReporting  Category = "peer_reporting"
)

// AllCategories lists every category a scheme may select.
var AllCategories = []Category{
	CategoryDiscipline,
	CategoryCommunity,
	CategoryAccountability,
	CategoryConsistency,
	CategorySupportNetwork,
	CategoryVerifiedLinks,
	CategoryProofOfAction,
	CategoryPeerReporting,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

const (
	// MaxTrustScore bounds the sum of all category caps in a scheme.
	MaxTrustScore = 1000
	// MaxSusScore bounds the suspicion score.
	MaxSusScore = 100
	// ReporterTrustFloor is the minimum trust score required to file a scam report.
	ReporterTrustFloor = 200
)

// SusBreakdown keeps the two inputs of the suspicion score apart so report
// reversals can be applied without erasing detected anomalies.
type SusBreakdown struct {
	// DetectedPeak is the highest detector output seen; it never decreases.
	DetectedPeak int `json:"detected_peak"`
	// ReportPenalty is re-derived from the reports received by the actor.
	ReportPenalty int `json:"report_penalty"`
}

// Total returns the capped suspicion score.
func (b SusBreakdown) Total() int {
	return clamp(b.DetectedPeak+b.ReportPenalty, 0, MaxSusScore)
}

// TrustRecord is the canonical per-actor score record.
type TrustRecord struct {
	ActorID            string           `json:"actor_id"`
	AgreementSigned    bool             `json:"agreement_signed"`
	AgreementTimestamp time.Time        `json:"agreement_timestamp"`
	CategoryScores     map[Category]int `json:"category_scores"`
	TotalTrustScore    int              `json:"total_trust_score"`
	SusScore           int              `json:"sus_score"`
	Suspicion          SusBreakdown     `json:"suspicion"`
	RiskLevel          RiskLevel        `json:"risk_level"`
	Version            int64            `json:"version"`
	LastUpdated        time.Time        `json:"last_updated"`
}

// NewTrustRecord returns the zero record created when an agreement is signed.
func NewTrustRecord(actorID string, signedAt time.Time) *TrustRecord {
	return &TrustRecord{
		ActorID:            actorID,
		AgreementSigned:    true,
		AgreementTimestamp: signedAt,
		CategoryScores:     map[Category]int{},
		RiskLevel:          Classify(0, 0),
		LastUpdated:        signedAt,
	}
}

// Clone returns a deep copy so in-memory mutation never leaks into a loaded record.
func (r *TrustRecord) Clone() *TrustRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.CategoryScores = make(map[Category]int, len(r.CategoryScores))
	for k, v := range r.CategoryScores {
		out.CategoryScores[k] = v
	}
	return &out
}

// CurrentRiskLevel derives the level from the score pair instead of trusting the stored value.
func (r *TrustRecord) CurrentRiskLevel() RiskLevel {
	return Classify(r.TotalTrustScore, r.SusScore)
}

// sameScores reports whether two records carry identical derived values.
func (r *TrustRecord) sameScores(other *TrustRecord) bool {
	if r.TotalTrustScore != other.TotalTrustScore ||
		r.SusScore != other.SusScore ||
		r.Suspicion != other.Suspicion ||
		len(r.CategoryScores) != len(other.CategoryScores) {
		return false
	}
	for k, v := range r.CategoryScores {
		if ov, ok := other.CategoryScores[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Agreement is the signed trust agreement fact the identity gate queries.
type Agreement struct {
	ActorID  string            `json:"actor_id"`
	SignedAt time.Time         `json:"signed_at"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// LinkType classifies a verified link.
type LinkType string

const (
	LinkWallet          LinkType = "wallet"
	LinkExternalAccount LinkType = "external_account"
	LinkSocial          LinkType = "social"
)

// Valid reports whether t is a known link type.
func (t LinkType) Valid() bool {
	switch t {
	case LinkWallet, LinkExternalAccount, LinkSocial:
		return true
	}
	return false
}

// VerifiedLink is an immutable proof that the actor controls an external identity.
type VerifiedLink struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	LinkType   LinkType  `json:"link_type"`
	Payload    string    `json:"payload"`
	VerifiedAt time.Time `json:"verified_at"`
}

// ProofOfActionRecord records one verified accountability action.
type ProofOfActionRecord struct {
	ID                      string    `json:"id"`
	ActorID                 string    `json:"actor_id"`
	ProofType               string    `json:"proof_type"`
	Description             string    `json:"description"`
	EvidenceRef             string    `json:"evidence_ref"`
	AwardedPoints           int       `json:"awarded_points"`
	ConsistencyBonusApplied bool      `json:"consistency_bonus_applied"`
	CreatedAt               time.Time `json:"created_at"`
}

// ReportKind distinguishes vouches from scam reports.
type ReportKind string

const (
	ReportVouch ReportKind = "vouch"
	ReportScam  ReportKind = "scam"
)

// ReportStatus is the informational review state of a peer report.
type ReportStatus string

const (
	StatusUnderReview ReportStatus = "under_review"
	StatusAccepted    ReportStatus = "accepted"
	StatusRejected    ReportStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s ReportStatus) Valid() bool {
	switch s {
	case StatusUnderReview, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// PeerReport is a two-party attestation.
type PeerReport struct {
	ID          string       `json:"id"`
	ReporterID  string       `json:"reporter_id"`
	TargetID    string       `json:"target_id"`
	Kind        ReportKind   `json:"kind"`
	ScamKind    string       `json:"scam_kind,omitempty"`
	EvidenceRef string       `json:"evidence_ref"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	Status      ReportStatus `json:"status"`
	ReviewedBy  string       `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
}

// Ledger is the per-actor attestation history the calculators read.
type Ledger struct {
	Links           []VerifiedLink        `json:"links"`
	Proofs          []ProofOfActionRecord `json:"proofs"`
	ReportsFiled    []PeerReport          `json:"reports_filed"`
	ReportsReceived []PeerReport          `json:"reports_received"`
}

// History is the full input snapshot handed to the calculators.
type History struct {
	ActorID string
	Ledger  Ledger
	Events  []Event
	// AsOf anchors rolling windows so recomputation is deterministic.
	AsOf time.Time
}

// TrustSummary is the read model exposed to collaborators.
type TrustSummary struct {
	ActorID           string           `json:"actor_id"`
	TotalTrustScore   int              `json:"total_trust_score"`
	CategoryBreakdown map[Category]int `json:"category_breakdown"`
	SusScore          int              `json:"sus_score"`
	RiskLevel         RiskLevel        `json:"risk_level"`
	VouchedBy         []string         `json:"vouched_by,omitempty"`
	LastUpdated       time.Time        `json:"last_updated"`
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
