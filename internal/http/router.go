// Package httpapi assembles the control plane's HTTP surface.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"escrowops/internal/platform/metrics"
	ratelimitmw "escrowops/internal/ratelimit/middleware"
	ratelimitmodels "escrowops/internal/ratelimit/models"
	"escrowops/pkg/domain"
	"escrowops/pkg/platform/httputil"
	"escrowops/pkg/platform/middleware/admin"
	authmw "escrowops/pkg/platform/middleware/auth"
	"escrowops/pkg/platform/middleware/metadata"
	"escrowops/pkg/platform/middleware/requesttime"
)

// Registrar mounts one module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// Config carries everything the router needs from the process.
type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Validator      authmw.JWTValidator
	MetricsToken   string
	RequestTimeout time.Duration
	RateLimit      *ratelimitmw.Middleware

	// OwnerOnly routes are rejected before reaching the handler for any
	// other role. Reads only: writes check roles in their services so that
	// denials are audited.
	OwnerOnly []Registrar
	// Sensitive routes draw on the tighter sensitive budget as well.
	Sensitive []Registrar
	Handlers  []Registrar
}

// NewRouter wires middleware, operational endpoints and every module.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(instrument(cfg.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.With(admin.RequireAdminToken(cfg.MetricsToken, cfg.Logger)).Handle("/metrics", promhttp.Handler())

	r.Group(func(api chi.Router) {
		if cfg.RequestTimeout > 0 {
			api.Use(chimw.Timeout(cfg.RequestTimeout))
		}
		api.Use(authmw.RequireAuth(cfg.Validator, cfg.Logger))
		api.Use(limit(cfg.RateLimit, ratelimitmodels.ClassStandard))

		api.Group(func(owner chi.Router) {
			owner.Use(authmw.RequireRole(cfg.Logger, domain.RoleOwner))
			for _, h := range cfg.OwnerOnly {
				h.Register(owner)
			}
		})
		api.Group(func(sensitive chi.Router) {
			sensitive.Use(limit(cfg.RateLimit, ratelimitmodels.ClassSensitive))
			for _, h := range cfg.Sensitive {
				h.Register(sensitive)
			}
		})
		for _, h := range cfg.Handlers {
			h.Register(api)
		}
	})
	return r
}

func limit(m *ratelimitmw.Middleware, class ratelimitmodels.EndpointClass) func(http.Handler) http.Handler {
	if m == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return m.Limit(class)
}

// instrument records a span and a latency sample per request, labelled by
// the matched route pattern rather than the raw path.
func instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	tracer := otel.Tracer("escrowops/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, span := tracer.Start(r.Context(), r.Method, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					route = p
				}
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			m.ObserveRequest(r.Method, route, status, start)
		})
	}
}
