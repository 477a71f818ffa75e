package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/trust-engine/internal/audit"
	"github.com/wolfman30/trust-engine/internal/http/middleware"
	"github.com/wolfman30/trust-engine/internal/intervention"
	"github.com/wolfman30/trust-engine/internal/trust"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

// TrustEngine is the engine surface the HTTP API exposes.
type TrustEngine interface {
	SignAgreement(ctx context.Context, actorID string, metadata map[string]string) (*trust.TrustRecord, error)
	IsEligible(ctx context.Context, actorID string) (bool, error)
	Summary(ctx context.Context, actorID string) (*trust.TrustSummary, error)
	Recalculate(ctx context.Context, actorID string) (*trust.TrustRecord, error)
	IngestEvent(ctx context.Context, ev trust.Event) (*trust.TrustRecord, error)
	AddVerifiedLink(ctx context.Context, req trust.LinkRequest) (*trust.VerifiedLink, *trust.TrustRecord, error)
	RecordProofOfAction(ctx context.Context, req trust.ProofRequest) (*trust.ProofOfActionRecord, *trust.TrustRecord, error)
	FileVouch(ctx context.Context, req trust.VouchRequest) (*trust.AttestationResult, error)
	FileScamReport(ctx context.Context, req trust.ScamReportRequest) (*trust.AttestationResult, error)
	ReviewReport(ctx context.Context, req trust.ReviewRequest) (*trust.AttestationResult, error)
}

// InterventionHistory lists dispatched interventions.
type InterventionHistory interface {
	History(ctx context.Context, actorID string, limit int) ([]intervention.LogEntry, error)
}

// SuspicionAudits lists suspicion audit events for moderators.
type SuspicionAudits interface {
	QueryEvents(ctx context.Context, filter audit.Filter) ([]audit.SuspicionEvent, error)
}

// EventPublisher hands behavioral events to the async ingest queue.
type EventPublisher interface {
	Publish(ctx context.Context, ev trust.Event) error
}

// TrustHandler serves the trust API.
type TrustHandler struct {
	engine        TrustEngine
	interventions InterventionHistory
	audits        SuspicionAudits
	publisher     EventPublisher
	logger        *logging.Logger
}

func NewTrustHandler(engine TrustEngine, interventions InterventionHistory, audits SuspicionAudits, logger *logging.Logger) *TrustHandler {
	if engine == nil {
		panic("handlers: trust engine required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TrustHandler{
		engine:        engine,
		interventions: interventions,
		audits:        audits,
		logger:        logger,
	}
}

// WithEventPublisher makes event ingestion asynchronous: events are queued
// and scored by the ingest worker.
func (h *TrustHandler) WithEventPublisher(p EventPublisher) *TrustHandler {
	h.publisher = p
	return h
}

type signAgreementRequest struct {
	Metadata map[string]string `json:"metadata"`
}

// SignAgreement handles POST /v1/actors/{actorID}/agreement.
func (h *TrustHandler) SignAgreement(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	var req signAgreementRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			jsonError(w, err.Error(), "invalid_request", http.StatusBadRequest)
			return
		}
	}
	rec, err := h.engine.SignAgreement(r.Context(), actorID, req.Metadata)
	if err != nil {
		h.fail(w, r, "sign agreement", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Summary handles GET /v1/actors/{actorID}/summary.
func (h *TrustHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.engine.Summary(r.Context(), chi.URLParam(r, "actorID"))
	if err != nil {
		h.fail(w, r, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Recalculate handles POST /v1/actors/{actorID}/recalculate.
func (h *TrustHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.engine.Recalculate(r.Context(), chi.URLParam(r, "actorID"))
	if err != nil {
		h.fail(w, r, "recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// IngestEvent handles POST /v1/actors/{actorID}/events.
func (h *TrustHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	actorID := chi.URLParam(r, "actorID")
	var ev trust.Event
	if err := decodeJSON(w, r, &ev); err != nil {
		jsonError(w, err.Error(), "invalid_event", http.StatusBadRequest)
		return
	}
	if ev.ActorID != "" && ev.ActorID != actorID {
		jsonError(w, "actor_id does not match path", "invalid_event", http.StatusBadRequest)
		return
	}
	ev.ActorID = actorID
	if h.publisher != nil {
		// Gate before enqueueing; the worker has no caller to reject.
		if err := ev.Validate(); err != nil {
			writeEngineError(w, err)
			return
		}
		signed, err := h.engine.IsEligible(r.Context(), actorID)
		if err != nil {
			h.fail(w, r, "check agreement", err)
			return
		}
		if !signed {
			writeEngineError(w, fmt.Errorf("%w: actor %s", trust.ErrAgreementRequired, actorID))
			return
		}
		if err := h.publisher.Publish(r.Context(), ev); err != nil {
			if errors.Is(err, trust.ErrInvalidEvent) {
				writeEngineError(w, err)
				return
			}
			h.logger.Error("failed to enqueue behavior event", "error", err, "event_id", ev.ID)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
			jsonError(w, "temporarily unavailable, retry later", "queue_unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, queuedResponse{Status: "queued", EventID: ev.ID})
		return
	}
	rec, err := h.engine.IngestEvent(r.Context(), ev)
	if err != nil {
		h.fail(w, r, "ingest event", err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

type queuedResponse struct {
	Status  string `json:"status"`
	EventID string `json:"event_id"`
}

type linkResponse struct {
	Link   *trust.VerifiedLink `json:"link"`
	Record *trust.TrustRecord  `json:"record"`
}

// AddLink handles POST /v1/actors/{actorID}/links.
func (h *TrustHandler) AddLink(w http.ResponseWriter, r *http.Request) {
	var req trust.LinkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), "invalid_evidence", http.StatusBadRequest)
		return
	}
	req.ActorID = chi.URLParam(r, "actorID")
	link, rec, err := h.engine.AddVerifiedLink(r.Context(), req)
	if err != nil {
		h.fail(w, r, "add link", err)
		return
	}
	writeJSON(w, http.StatusCreated, linkResponse{Link: link, Record: rec})
}

type proofResponse struct {
	Proof  *trust.ProofOfActionRecord `json:"proof"`
	Record *trust.TrustRecord         `json:"record"`
}

// RecordProof handles POST /v1/actors/{actorID}/proofs.
func (h *TrustHandler) RecordProof(w http.ResponseWriter, r *http.Request) {
	var req trust.ProofRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), "invalid_evidence", http.StatusBadRequest)
		return
	}
	req.ActorID = chi.URLParam(r, "actorID")
	proof, rec, err := h.engine.RecordProofOfAction(r.Context(), req)
	if err != nil {
		h.fail(w, r, "record proof", err)
		return
	}
	writeJSON(w, http.StatusCreated, proofResponse{Proof: proof, Record: rec})
}

// Interventions handles GET /v1/actors/{actorID}/interventions?limit=N.
func (h *TrustHandler) Interventions(w http.ResponseWriter, r *http.Request) {
	if h.interventions == nil {
		writeJSON(w, http.StatusOK, []intervention.LogEntry{})
		return
	}
	entries, err := h.interventions.History(r.Context(), chi.URLParam(r, "actorID"), queryLimit(r))
	if err != nil {
		h.logger.Error("failed to list interventions", "error", err)
		jsonError(w, "failed to list interventions", "internal_error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []intervention.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// FileVouch handles POST /v1/reports/vouch.
func (h *TrustHandler) FileVouch(w http.ResponseWriter, r *http.Request) {
	var req trust.VouchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), "invalid_evidence", http.StatusBadRequest)
		return
	}
	res, err := h.engine.FileVouch(r.Context(), req)
	if err != nil {
		h.fail(w, r, "file vouch", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// FileScamReport handles POST /v1/reports/scam.
func (h *TrustHandler) FileScamReport(w http.ResponseWriter, r *http.Request) {
	var req trust.ScamReportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), "invalid_evidence", http.StatusBadRequest)
		return
	}
	res, err := h.engine.FileScamReport(r.Context(), req)
	if err != nil {
		h.fail(w, r, "file scam report", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type reviewBody struct {
	Status trust.ReportStatus `json:"status"`
}

// ReviewReport handles POST /v1/admin/reports/{reportID}/review. The
// reviewer is the authenticated moderator.
func (h *TrustHandler) ReviewReport(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := middleware.ModeratorFromContext(r.Context())
	if !ok {
		jsonError(w, "moderator required", "unauthorized", http.StatusUnauthorized)
		return
	}
	var body reviewBody
	if err := decodeJSON(w, r, &body); err != nil {
		jsonError(w, err.Error(), "invalid_request", http.StatusBadRequest)
		return
	}
	res, err := h.engine.ReviewReport(r.Context(), trust.ReviewRequest{
		ReportID:   chi.URLParam(r, "reportID"),
		Status:     body.Status,
		ReviewedBy: reviewer,
	})
	if err != nil {
		h.fail(w, r, "review report", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SuspicionAudit handles GET /v1/admin/actors/{actorID}/suspicion.
func (h *TrustHandler) SuspicionAudit(w http.ResponseWriter, r *http.Request) {
	if h.audits == nil {
		writeJSON(w, http.StatusOK, []audit.SuspicionEvent{})
		return
	}
	filter := audit.Filter{ActorID: chi.URLParam(r, "actorID"), Limit: queryLimit(r)}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			jsonError(w, "since must be RFC3339", "invalid_request", http.StatusBadRequest)
			return
		}
		filter.StartTime = t
	}
	events, err := h.audits.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query suspicion audit", "error", err)
		jsonError(w, "failed to query audit", "internal_error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []audit.SuspicionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *TrustHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	attrs := []any{"op", op, "error", err, "reason", trust.Reason(err), "path", r.URL.Path}
	switch {
	case status >= http.StatusInternalServerError:
		h.logger.Error("trust request failed", attrs...)
	default:
		h.logger.Debug("trust request denied", attrs...)
	}
	writeEngineError(w, err)
}

func queryLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	if n > 200 {
		n = 200
	}
	return n
}
