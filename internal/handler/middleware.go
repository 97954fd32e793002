package handler

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"jobdesk-auth/internal/apperr"
	"jobdesk-auth/internal/service"
)

type contextKey string

const claimsContextKey contextKey = "auth-claims"

// ClaimsFromContext returns the verified access claims, or nil when the
// request did not pass RequireAuth
func ClaimsFromContext(ctx context.Context) *service.AccessClaims {
	claims, _ := ctx.Value(claimsContextKey).(*service.AccessClaims)
	return claims
}

// RequireAuth verifies the access token from the Authorization header or
// the access cookie and stores the claims in the request context
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			if cookie, err := r.Cookie(accessCookieName); err == nil {
				token = cookie.Value
			}
		}
		if token == "" {
			h.respondError(w, apperr.New(apperr.KindTokenInvalid, "no access token presented"))
			return
		}

		claims, err := h.tokenService.VerifyAccess(token)
		if err != nil {
			h.respondError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin guards operational endpoints behind the admin API key
func (h *AuthHandler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Admin-Key")
		expected := h.cfg.AdminAPIKey

		if expected == "" || subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
			h.respondError(w, apperr.New(apperr.KindTokenInvalid, "admin key required"))
			return
		}

		next.ServeHTTP(w, r)
	})
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
