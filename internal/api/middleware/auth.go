package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/cloo-solutions/draftdesk/internal/api"
)

type contextKey string

const OwnerIDKey contextKey = "owner_id"

// OwnerIDHeader carries the resolved owner back to outer middleware, which
// only sees the request context they created.
const OwnerIDHeader = "X-Owner-ID"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (string, error)
}

// APIKeyAuth resolves the bearer token to an owner id. Handlers never read
// the owner from the request body.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format, expected 'Bearer <api key>'")
				return
			}

			ownerID, err := validator.ValidateAPIKey(r.Context(), strings.TrimSpace(token))
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			r.Header.Set(OwnerIDHeader, ownerID)
			ctx := context.WithValue(r.Context(), OwnerIDKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOwnerID(ctx context.Context) string {
	ownerID, _ := ctx.Value(OwnerIDKey).(string)
	return ownerID
}

// WithOwnerID returns ctx carrying ownerID, as APIKeyAuth would set it.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// ownerFromRequest reads the owner for middleware running outside auth.
func ownerFromRequest(r *http.Request) string {
	if ownerID := GetOwnerID(r.Context()); ownerID != "" {
		return ownerID
	}
	return r.Header.Get(OwnerIDHeader)
}
