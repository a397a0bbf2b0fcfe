// Package middleware throttles API callers per endpoint class.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"escrowops/internal/ratelimit/metrics"
	"escrowops/internal/ratelimit/models"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/requestcontext"
)

type Store interface {
	Allow(ctx context.Context, key string, limit models.Limit) (models.Result, error)
}

type Middleware struct {
	store    Store
	limits   map[models.EndpointClass]models.Limit
	logger   *slog.Logger
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns every check into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(store Store, limits map[models.EndpointClass]models.Limit, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limits: limits,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Limit applies class's budget to the authenticated actor, or to the client
// IP when there is none. Store failures let the request through.
func (m *Middleware) Limit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limit, ok := m.limits[class]
		if m.disabled || !ok || limit.Requests <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Actor(ctx).ID
			if caller == "" {
				caller = "ip:" + requestcontext.ClientIP(ctx)
			}

			result, err := m.store.Allow(ctx, models.Key(class, caller), limit)
			if err != nil {
				m.metrics.IncrementStoreError()
				m.logger.ErrorContext(ctx, "rate limit check failed",
					"class", class,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			if !result.Allowed {
				m.metrics.IncrementRejection(string(class))
				retry := int(math.Ceil(result.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests. Please try again later.",
					RetryAfter: retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
