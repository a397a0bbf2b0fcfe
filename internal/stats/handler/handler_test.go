package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"escrowops/internal/stats/models"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/testutil"
)

type stubService struct {
	snap models.Snapshot
	err  error
}

func (s stubService) Snapshot(context.Context) (models.Snapshot, error) {
	return s.snap, s.err
}

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Register(r)
	return r
}

func TestStats(t *testing.T) {
	router := newRouter(stubService{snap: models.Snapshot{
		Users:       3,
		Deals:       2,
		Groups:      7,
		GroupsTotal: 8,
		Revenue:     decimal.RequireFromString("15.5"),
		ComputedAt:  testutil.FixedTime,
	}})

	rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/api/dashboard/stats"), testutil.Moderator))
	testutil.AssertStatusOK(t, rr)
	assert.JSONEq(t,
		`{"users":3,"deals":2,"groups":7,"revenue":15.50,"groups_total":8,"groups_occupied":0,"computed_at":"2025-06-01T12:00:00Z"}`,
		string(testutil.ReadBody(t, rr)))
}

func TestStatsLedgerDown(t *testing.T) {
	router := newRouter(stubService{err: dErrors.Wrap(errors.New("dial tcp"), dErrors.CodeUnavailable, "deal ledger unavailable")})
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/dashboard/stats"))
	testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, string(dErrors.CodeUnavailable))
}
