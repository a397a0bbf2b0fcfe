// Package requesttime pins a single "now" per request so audit timestamps,
// intent expiry and version stamps agree within one call.
package requesttime

import (
	"net/http"
	"time"

	"escrowops/pkg/requestcontext"
)

// Middleware captures the current UTC time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
