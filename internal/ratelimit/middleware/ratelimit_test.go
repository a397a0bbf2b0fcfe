package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"escrowops/internal/ratelimit/models"
	"escrowops/internal/ratelimit/store"
	"escrowops/pkg/testutil"
)

type brokenStore struct{}

func (brokenStore) Allow(context.Context, string, models.Limit) (models.Result, error) {
	return models.Result{}, errors.New("redis down")
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestLimitPerActor(t *testing.T) {
	limits := map[models.EndpointClass]models.Limit{models.ClassSensitive: {Requests: 2, Window: time.Minute}}
	h := New(store.NewInMemory(), limits, quietLogger()).Limit(models.ClassSensitive)(ok)

	for range 2 {
		rr := testutil.DoRequest(h, testutil.WithActor(testutil.NewRequest(t, http.MethodPost, "/api/payout/manual"), testutil.Owner))
		testutil.AssertStatusOK(t, rr)
	}
	rr := testutil.DoRequest(h, testutil.WithActor(testutil.NewRequest(t, http.MethodPost, "/api/payout/manual"), testutil.Owner))
	testutil.AssertStatus(t, rr, http.StatusTooManyRequests)
	testutil.AssertJSONContains(t, rr, "error", "rate_limit_exceeded")
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	rr = testutil.DoRequest(h, testutil.WithActor(testutil.NewRequest(t, http.MethodPost, "/api/payout/manual"), testutil.Moderator))
	testutil.AssertStatusOK(t, rr)
}

func TestLimitFailsOpen(t *testing.T) {
	limits := map[models.EndpointClass]models.Limit{models.ClassStandard: {Requests: 1, Window: time.Minute}}
	h := New(brokenStore{}, limits, quietLogger()).Limit(models.ClassStandard)(ok)
	rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/api/fees/config"))
	testutil.AssertStatusOK(t, rr)
}

func TestDisabledAndUnknownClassPassThrough(t *testing.T) {
	limits := map[models.EndpointClass]models.Limit{models.ClassStandard: {Requests: 1, Window: time.Minute}}
	disabled := New(brokenStore{}, limits, quietLogger(), WithDisabled(true)).Limit(models.ClassStandard)(ok)
	unknown := New(brokenStore{}, limits, quietLogger()).Limit(models.ClassSensitive)(ok)
	for _, h := range []http.Handler{disabled, unknown} {
		rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/"))
		testutil.AssertStatusOK(t, rr)
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	}
}
