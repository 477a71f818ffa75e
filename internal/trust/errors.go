package trust

import (
	"errors"
)

var (
	// ErrAgreementRequired is returned when the actor has not signed the trust agreement
	ErrAgreementRequired = errors.New("trust: signed agreement required")

	// ErrIneligibleReporter is returned when a reporter fails the gate or trust floor
	ErrIneligibleReporter = errors.New("trust: reporter is not eligible")

	// ErrRecordNotFound is returned when no record exists for the actor
	ErrRecordNotFound = errors.New("trust: record not found")

	// ErrPersistenceUnavailable wraps transient storage failures; the mutation did not apply
	ErrPersistenceUnavailable = errors.New("trust: persistence unavailable")

	// ErrInvalidEvidence is returned for malformed peer-report payloads
	ErrInvalidEvidence = errors.New("trust: invalid evidence")

	// ErrSelfReport is returned when reporter and target are the same actor
	ErrSelfReport = errors.New("trust: reporter and target must differ")

	// ErrDuplicateLink is returned when the same link is verified twice
	ErrDuplicateLink = errors.New("trust: link already verified")

	// ErrReportNotFound is returned when a report id is unknown
	ErrReportNotFound = errors.New("trust: report not found")

	// ErrInvalidEvent is returned for events that fail validation
	ErrInvalidEvent = errors.New("trust: invalid event")

	// ErrInvalidStatusTransition is returned when a report review is not allowed
	ErrInvalidStatusTransition = errors.New("trust: invalid report status transition")

	// ErrConcurrentUpdate is returned when an optimistic version check fails
	ErrConcurrentUpdate = errors.New("trust: concurrent update detected")

	// ErrCategoryNotScored rejects credits the active scheme has no calculator for.
	ErrCategoryNotScored = errors.New("trust: category not scored by active scheme")

	// ErrDuplicateReport is returned when a reporter already has a live report of the same kind against the target
	ErrDuplicateReport = errors.New("trust: report already filed")
)

// IsRetryable reports whether the caller may retry the operation unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceUnavailable) || errors.Is(err, ErrConcurrentUpdate)
}

// Reason maps an engine error to a stable reason code for callers.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIneligibleReporter):
		return "ineligible_reporter"
	case errors.Is(err, ErrAgreementRequired):
		return "agreement_required"
	case errors.Is(err, ErrRecordNotFound):
		return "record_not_found"
	case errors.Is(err, ErrPersistenceUnavailable):
		return "persistence_unavailable"
	case errors.Is(err, ErrInvalidEvidence):
		return "invalid_evidence"
	case errors.Is(err, ErrSelfReport):
		return "self_report"
	case errors.Is(err, ErrDuplicateLink):
		return "duplicate_link"
	case errors.Is(err, ErrReportNotFound):
		return "report_not_found"
	case errors.Is(err, ErrInvalidEvent):
		return "invalid_event"
	case errors.Is(err, ErrInvalidStatusTransition):
		return "invalid_status_transition"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, ErrDuplicateReport):
		return "duplicate_report"
	case errors.Is(err, ErrCategoryNotScored):
		return "category_not_scored"
	default:
		return "internal_error"
	}
}
