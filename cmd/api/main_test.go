package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	appbootstrap "github.com/wolfman30/trust-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/trust-engine/internal/config"
	httpmiddleware "github.com/wolfman30/trust-engine/internal/http/middleware"
	"github.com/wolfman30/trust-engine/pkg/logging"
)

func newTestServer(t *testing.T, useQueue bool) *http.Server {
	t.Helper()
	cfg := &appconfig.Config{
		Port:                   "0",
		UseMemoryStore:         true,
		UseMemoryQueue:         useQueue,
		CommitAttempts:         3,
		StoreTimeout:           time.Second,
		StoreRetryAttempts:     1,
		InterventionLevelStore: "memory",
		NotifyTimeout:          time.Second,
		EmailProvider:          "stub",
		RateLimitRPS:           100,
		RateLimitBurst:         100,
	}
	logger := logging.New("error")
	rt, err := appbootstrap.BuildRuntime(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("build runtime: %v", err)
	}
	t.Cleanup(rt.Close)
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	t.Cleanup(limiter.Close)
	return newServer(cfg, rt, limiter, logger)
}

func TestNewServerServesHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, false)

	for _, path := range []string{"/health", "/metrics"} {
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
	}
}

func TestNewServerQueuesEventsWithMemoryQueue(t *testing.T) {
	srv := newTestServer(t, true)

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/actors/alice/agreement", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("sign: expected status 200, got %d", rr.Code)
	}

	body := `{"id":"e1","type":"buddy_checkin","occurred_at":"2025-03-01T12:00:00Z"}`
	rr = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/actors/alice/events", strings.NewReader(body)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"queued"`) {
		t.Fatalf("expected queued response, got %s", rr.Body.String())
	}
}

func TestNewServerRejectsQueuedEventForUnsignedActor(t *testing.T) {
	srv := newTestServer(t, true)

	body := `{"id":"e1","type":"buddy_checkin","occurred_at":"2025-03-01T12:00:00Z"}`
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/actors/ghost/events", strings.NewReader(body)))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("ingest: expected status 403, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"agreement_required"`) {
		t.Fatalf("expected agreement_required reason, got %s", rr.Body.String())
	}
}
