package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func serveWithAuth(t *testing.T, secret, header string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/admin/reports/r1/review", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	var reviewer string
	AdminJWT(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reviewer, _ = ModeratorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)
	return rec, reviewer
}

func TestAdminJWTMissingSecret(t *testing.T) {
	rec, _ := serveWithAuth(t, "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAdminJWTMissingHeader(t *testing.T) {
	rec, _ := serveWithAuth(t, "secret", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json denial, got %q", ct)
	}
}

func TestAdminJWTInvalidToken(t *testing.T) {
	rec, _ := serveWithAuth(t, "secret", "Bearer "+signedModeratorToken(t, "wrong", "moderator", "mod-1"))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAdminJWTWrongRole(t *testing.T) {
	rec, _ := serveWithAuth(t, "secret", "Bearer "+signedModeratorToken(t, "secret", "member", "user-1"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestAdminJWTValidToken(t *testing.T) {
	rec, reviewer := serveWithAuth(t, "secret", "Bearer "+signedModeratorToken(t, "secret", "moderator", "mod-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if reviewer != "mod-1" {
		t.Fatalf("expected reviewer mod-1, got %q", reviewer)
	}
}

func signedModeratorToken(t *testing.T, secret, role, subject string) string {
	t.Helper()
	claims := ModeratorClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
