package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveCORS(t *testing.T, allowed []string, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	CORS(allowed)(next).ServeHTTP(rec, req)
	return rec, reached
}

func TestCORS_DashboardReadsSummary(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/actors/alice/summary", nil)
	req.Header.Set("Origin", "https://ops.example.com")

	rec, reached := serveCORS(t, []string{"https://ops.example.com"}, req)

	require.True(t, reached)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_ExposesRetryAfterAndRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/actors/alice/events", nil)
	req.Header.Set("Origin", "https://ops.example.com")

	rec, _ := serveCORS(t, []string{"https://ops.example.com"}, req)

	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	assert.Contains(t, exposed, "Retry-After")
	assert.Contains(t, exposed, "X-Request-ID")
	allowed := rec.Header().Get("Access-Control-Allow-Headers")
	assert.Contains(t, allowed, "Authorization")
	assert.Contains(t, allowed, "X-Request-ID")
}

func TestCORS_UnknownOriginGetsNoHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/actors/alice/summary", nil)
	req.Header.Set("Origin", "https://unknown.example")

	rec, reached := serveCORS(t, []string{"https://ops.example.com"}, req)

	assert.True(t, reached)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_WildcardEchoesOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://random.example")

	rec, _ := serveCORS(t, []string{" ", "*"}, req)

	assert.Equal(t, "https://random.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec, reached := serveCORS(t, []string{"*"}, req)

	assert.True(t, reached)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		wantAllowed bool
	}{
		{name: "listed origin", origin: "https://ops.example.com", wantAllowed: true},
		{name: "unlisted origin", origin: "https://unknown.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/v1/actors/alice/events", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPost)

			rec, reached := serveCORS(t, []string{"https://ops.example.com"}, req)

			assert.False(t, reached)
			assert.Equal(t, http.StatusNoContent, rec.Code)
			if tt.wantAllowed {
				assert.Equal(t, tt.origin, rec.Header().Get("Access-Control-Allow-Origin"))
			} else {
				assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
			}
		})
	}
}
