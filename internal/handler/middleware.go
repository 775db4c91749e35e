package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"suvidha-service/internal/service"
)

type contextKey string

const claimsKey contextKey = "session_claims"

// ClaimsFromContext returns the authenticated session claims, or nil
// on unauthenticated requests.
func ClaimsFromContext(ctx context.Context) *service.SessionClaims {
	claims, _ := ctx.Value(claimsKey).(*service.SessionClaims)
	return claims
}

// RequireAuth validates the bearer token and its backing session, then
// stores the claims on the request context.
func RequireAuth(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respondWithError(w, http.StatusUnauthorized, errors.New("missing bearer token"), "Authentication required")
				return
			}

			claims, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				respondWithServiceError(w, err, "Authentication failed")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a subtree to one role. Must run after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil || claims.Role != role {
				respondWithError(w, http.StatusForbidden, errors.New("insufficient role"), "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OptionalAuth attaches claims when a valid token is present but lets
// anonymous requests through. Used by the emergency desk.
func OptionalAuth(auth *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token != "" {
				if claims, err := auth.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(context.WithValue(r.Context(), claimsKey, claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
