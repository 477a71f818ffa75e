package trust

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// VouchRequest asks the engine to record a vouch for another actor.
type VouchRequest struct {
	ReporterID  string `json:"reporter_id"`
	TargetID    string `json:"target_id"`
	EvidenceRef string `json:"evidence_ref"`
	Description string `json:"description"`
}

// ScamReportRequest asks the engine to record a scam report.
type ScamReportRequest struct {
	ReporterID  string `json:"reporter_id"`
	TargetID    string `json:"target_id"`
	ScamKind    string `json:"scam_kind"`
	EvidenceRef string `json:"evidence_ref"`
	Description string `json:"description"`
}

// AttestationResult carries the stored report and both updated records.
type AttestationResult struct {
	Report   PeerReport   `json:"report"`
	Reporter *TrustRecord `json:"reporter"`
	Target   *TrustRecord `json:"target"`
}

// FileVouch records a vouch from a gated reporter. The reporter earns the
// filing credit; the target gains a voucher entry in its summary.
func (e *Engine) FileVouch(ctx context.Context, req VouchRequest) (*AttestationResult, error) {
	ctx, span := engineTracer.Start(ctx, "trust.file_vouch")
	defer span.End()
	span.SetAttributes(
		attribute.String("trust.reporter_id", req.ReporterID),
		attribute.String("trust.target_id", req.TargetID),
	)

	report := PeerReport{
		ReporterID:  strings.TrimSpace(req.ReporterID),
		TargetID:    strings.TrimSpace(req.TargetID),
		Kind:        ReportVouch,
		EvidenceRef: strings.TrimSpace(req.EvidenceRef),
		Description: strings.TrimSpace(req.Description),
	}
	if err := validateReport(report); err != nil {
		return nil, err
	}
	return e.fileReport(ctx, report, false)
}

// FileScamReport records a scam report. The reporter must pass the gate and
// hold at least the reporter trust floor; otherwise nothing is written.
func (e *Engine) FileScamReport(ctx context.Context, req ScamReportRequest) (*AttestationResult, error) {
	ctx, span := engineTracer.Start(ctx, "trust.file_scam_report")
	defer span.End()
	span.SetAttributes(
		attribute.String("trust.reporter_id", req.ReporterID),
		attribute.String("trust.target_id", req.TargetID),
	)

	report := PeerReport{
		ReporterID:  strings.TrimSpace(req.ReporterID),
		TargetID:    strings.TrimSpace(req.TargetID),
		Kind:        ReportScam,
		ScamKind:    strings.TrimSpace(req.ScamKind),
		EvidenceRef: strings.TrimSpace(req.EvidenceRef),
		Description: strings.TrimSpace(req.Description),
	}
	if err := validateReport(report); err != nil {
		return nil, err
	}
	if report.ScamKind == "" {
		return nil, fmt.Errorf("%w: scam_kind is required", ErrInvalidEvidence)
	}
	return e.fileReport(ctx, report, true)
}

func validateReport(r PeerReport) error {
	if r.ReporterID == "" || r.TargetID == "" {
		return fmt.Errorf("%w: reporter_id and target_id are required", ErrInvalidEvidence)
	}
	if r.ReporterID == r.TargetID {
		return ErrSelfReport
	}
	if r.EvidenceRef == "" {
		return fmt.Errorf("%w: evidence_ref is required", ErrInvalidEvidence)
	}
	return nil
}

func (e *Engine) fileReport(ctx context.Context, report PeerReport, enforceFloor bool) (*AttestationResult, error) {
	// The reporter credit and the target penalty land together or not at all.
	if err := e.requireCategory(CategoryPeerReporting); err != nil {
		return nil, err
	}

	unlock := e.locks.LockPair(report.ReporterID, report.TargetID)
	defer unlock()

	if err := e.requireGate(ctx, report.ReporterID); err != nil {
		if errors.Is(err, ErrAgreementRequired) {
			return nil, fmt.Errorf("%w: %w", ErrIneligibleReporter, err)
		}
		return nil, err
	}

	var stored PeerReport
	out, err := e.transact(ctx, func(now time.Time) (Commit, []staged, error) {
		reporter, err := e.loadState(ctx, report.ReporterID)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return Commit{}, nil, fmt.Errorf("%w: %w", ErrIneligibleReporter, err)
			}
			return Commit{}, nil, err
		}
		if enforceFloor {
			fresh := e.recompute(reporter, now, false).record
			if fresh.TotalTrustScore < e.scoring.ReporterTrustFloor {
				return Commit{}, nil, fmt.Errorf("%w: trust score %d below floor %d",
					ErrIneligibleReporter, fresh.TotalTrustScore, e.scoring.ReporterTrustFloor)
			}
		}
		target, err := e.loadState(ctx, report.TargetID)
		if err != nil {
			return Commit{}, nil, err
		}
		for _, r := range reporter.ledger.ReportsFiled {
			if r.TargetID == report.TargetID && r.Kind == report.Kind && e.scoring.reportCounts(r) {
				return Commit{}, nil, fmt.Errorf("%w: %s against %s", ErrDuplicateReport, report.Kind, report.TargetID)
			}
		}

		stored = report
		stored.ID = uuid.NewString()
		stored.CreatedAt = now
		stored.Status = StatusUnderReview
		reporter.ledger.ReportsFiled = append(reporter.ledger.ReportsFiled, stored)
		target.ledger.ReportsReceived = append(target.ledger.ReportsReceived, stored)

		rs := e.recompute(reporter, now, true)
		ts := e.recompute(target, now, true)
		c := Commit{Reports: []PeerReport{stored}}
		c.stage(rs)
		c.stage(ts)
		return c, []staged{rs, ts}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithActor(report.TargetID).Info("peer report filed",
		"report_id", stored.ID,
		"kind", stored.Kind,
		"reporter_id", stored.ReporterID,
	)
	return &AttestationResult{Report: stored, Reporter: out[0].record, Target: out[1].record}, nil
}

// ReviewRequest moves a report out of review.
type ReviewRequest struct {
	ReportID   string       `json:"report_id"`
	Status     ReportStatus `json:"status"`
	ReviewedBy string       `json:"reviewed_by"`
}

// ReviewReport records an operator decision. Only under_review reports can
// transition. A rejection reverses the report's credit and penalty when the
// scoring table enables reversal; acceptance leaves scores untouched.
func (e *Engine) ReviewReport(ctx context.Context, req ReviewRequest) (*AttestationResult, error) {
	ctx, span := engineTracer.Start(ctx, "trust.review_report")
	defer span.End()
	span.SetAttributes(
		attribute.String("trust.report_id", req.ReportID),
		attribute.String("trust.review_status", string(req.Status)),
	)

	if strings.TrimSpace(req.ReportID) == "" {
		return nil, fmt.Errorf("%w: report_id is required", ErrInvalidEvidence)
	}
	if req.Status != StatusAccepted && req.Status != StatusRejected {
		return nil, fmt.Errorf("%w: cannot move to %q", ErrInvalidStatusTransition, req.Status)
	}

	report, err := e.store.LoadReport(ctx, req.ReportID)
	if err != nil {
		return nil, e.persistenceErr("load_report", err)
	}

	unlock := e.locks.LockPair(report.ReporterID, report.TargetID)
	defer unlock()

	var updated PeerReport
	out, err := e.transact(ctx, func(now time.Time) (Commit, []staged, error) {
		current, err := e.store.LoadReport(ctx, req.ReportID)
		if err != nil {
			return Commit{}, nil, e.persistenceErr("load_report", err)
		}
		if current.Status != StatusUnderReview {
			return Commit{}, nil, fmt.Errorf("%w: report is %s", ErrInvalidStatusTransition, current.Status)
		}
		reporter, err := e.loadState(ctx, current.ReporterID)
		if err != nil {
			return Commit{}, nil, err
		}
		target, err := e.loadState(ctx, current.TargetID)
		if err != nil {
			return Commit{}, nil, err
		}

		updated = *current
		updated.Status = req.Status
		updated.ReviewedBy = strings.TrimSpace(req.ReviewedBy)
		reviewedAt := now
		updated.ReviewedAt = &reviewedAt
		replaceReport(reporter.ledger.ReportsFiled, updated)
		replaceReport(target.ledger.ReportsReceived, updated)

		rs := e.recompute(reporter, now, true)
		ts := e.recompute(target, now, true)
		c := Commit{Reports: []PeerReport{updated}}
		c.stage(rs)
		c.stage(ts)
		return c, []staged{rs, ts}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithActor(updated.TargetID).Info("peer report reviewed",
		"report_id", updated.ID,
		"status", updated.Status,
		"reviewed_by", updated.ReviewedBy,
	)
	return &AttestationResult{Report: updated, Reporter: out[0].record, Target: out[1].record}, nil
}

func replaceReport(reports []PeerReport, r PeerReport) {
	for i := range reports {
		if reports[i].ID == r.ID {
			reports[i] = r
		}
	}
}
