package testutil

import (
	"context"
	"net/http"
	"time"

	"escrowops/pkg/domain"
	"escrowops/pkg/requestcontext"
)

// Fixed actors used across handler and service tests.
var (
	Owner     = domain.Actor{ID: "owner-1", Role: domain.RoleOwner}
	Moderator = domain.Actor{ID: "mod-1", Role: domain.RoleModerator}
	System    = domain.Actor{ID: "bot-core", Role: domain.RoleSystem}
)

// FixedTime is the request time injected by WithRequestTime.
var FixedTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do.
func WithActor(req *http.Request, actor domain.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// ActorContext returns a background context carrying actor and a request id.
func ActorContext(actor domain.Actor) context.Context {
	ctx := requestcontext.WithActor(context.Background(), actor)
	return requestcontext.WithRequestID(ctx, "req-test")
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(ctx context.Context, t time.Time) context.Context {
	return requestcontext.WithTime(ctx, t)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
