// Package admin guards operational endpoints (metrics scraping) with a
// static shared token.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"escrowops/pkg/requestcontext"
)

// TokenHeader carries the operational token.
const TokenHeader = "X-Admin-Token"

// RequireAdminToken rejects requests without the expected token. An empty
// expected token disables the guard.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expectedToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(TokenHeader)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
