package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const moderatorClaimsKey contextKey = "moderatorClaims"

// ModeratorClaims are the claims a report reviewer must present.
type ModeratorClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminJWT guards moderation endpoints with an HMAC-signed JWT whose role
// claim is "moderator" or "admin". The token subject becomes the reviewer id.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeDenial(w, http.StatusUnauthorized, "moderation auth disabled", "unauthorized")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeDenial(w, http.StatusUnauthorized, "missing authorization header", "unauthorized")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := ModeratorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeDenial(w, http.StatusUnauthorized, "invalid token", "unauthorized")
				return
			}
			if claims.Role != "moderator" && claims.Role != "admin" {
				writeDenial(w, http.StatusForbidden, "moderator role required", "forbidden")
				return
			}
			if strings.TrimSpace(claims.Subject) == "" {
				writeDenial(w, http.StatusUnauthorized, "token subject required", "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), moderatorClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ModeratorFromContext returns the reviewing moderator's id, if authenticated.
func ModeratorFromContext(ctx context.Context) (string, bool) {
	claims, ok := ctx.Value(moderatorClaimsKey).(ModeratorClaims)
	if !ok {
		return "", false
	}
	return claims.Subject, true
}
