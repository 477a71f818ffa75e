package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/wolfman30/trust-engine/internal/trust"
)

const (
	maxBodyBytes      = 64 << 10
	retryAfterSeconds = 2
)

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, message, reason string, status int) {
	writeJSON(w, status, errorResponse{Error: message, Reason: reason})
}

// statusFor maps engine errors to HTTP statuses. Gate and eligibility
// failures are explicit denials; persistence failures are retryable.
func statusFor(err error) int {
	switch {
	case errors.Is(err, trust.ErrIneligibleReporter), errors.Is(err, trust.ErrAgreementRequired):
		return http.StatusForbidden
	case errors.Is(err, trust.ErrRecordNotFound), errors.Is(err, trust.ErrReportNotFound):
		return http.StatusNotFound
	case errors.Is(err, trust.ErrInvalidEvidence), errors.Is(err, trust.ErrInvalidEvent), errors.Is(err, trust.ErrSelfReport):
		return http.StatusBadRequest
	case errors.Is(err, trust.ErrCategoryNotScored):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trust.ErrDuplicateLink), errors.Is(err, trust.ErrDuplicateReport), errors.Is(err, trust.ErrInvalidStatusTransition):
		return http.StatusConflict
	case trust.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		message = "temporarily unavailable, retry later"
	}
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	jsonError(w, message, trust.Reason(err), status)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
