package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowops/internal/audit/audittest"
	"escrowops/internal/fees/service"
	"escrowops/internal/fees/store"
	modservice "escrowops/internal/moderator/service"
	modstore "escrowops/internal/moderator/store"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/testutil"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	log, _ := audittest.NewLog()
	runner := tx.NewShardedRunner(0)
	registry := modservice.New(modstore.NewInMemory(), runner, log)
	svc := service.New(store.NewInMemory(), runner, log, registry)
	require.NoError(t, svc.SeedDefaults(testutil.ActorContext(testutil.System)))

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r
}

func TestHandleList(t *testing.T) {
	router := newRouter(t)
	rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/api/fees/config"), testutil.Moderator))
	testutil.AssertStatusOK(t, rr)

	resp := testutil.UnmarshalResponse[listResponse](t, rr)
	require.Len(t, resp.Networks, 5)
	btc := resp.Networks[0]
	assert.Equal(t, "BTC", btc.Network)
	require.NotNil(t, btc.GasDeduction)
	assert.Equal(t, "0.0001", btc.GasDeduction.String())
	assert.Nil(t, btc.GasFeeUSD)
}

func TestHandleGet(t *testing.T) {
	router := newRouter(t)
	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/fees/config/usdt-trc20"))
	testutil.AssertStatusOK(t, rr)
	testutil.AssertJSONContains(t, rr, "gas_fee_usd", float64(2))

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/fees/config/XRP"))
	testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_found")
}

func TestHandleUpdate(t *testing.T) {
	router := newRouter(t)

	t.Run("owner bulk update", func(t *testing.T) {
		body := `[{"network":"ETH","fee_percentage":1.5,"gas_fee_usd":3.0},{"network":"BTC","fee_percentage":4,"gas_deduction":0.0002}]`
		req := testutil.WithActor(testutil.NewRequestWithBody(t, http.MethodPost, "/api/fees/config", body), testutil.Owner)
		rr := testutil.DoRequest(router, req)
		testutil.AssertStatusOK(t, rr)
		resp := testutil.UnmarshalResponse[listResponse](t, rr)
		require.Len(t, resp.Networks, 2)
		assert.Equal(t, 2, resp.Networks[0].Version)
		assert.Equal(t, "usd_gas", resp.Networks[0].GasModel)
	})

	t.Run("both gas fields", func(t *testing.T) {
		body := `[{"network":"ETH","fee_percentage":1.5,"gas_fee_usd":3.0,"gas_deduction":0.1}]`
		req := testutil.WithActor(testutil.NewRequestWithBody(t, http.MethodPost, "/api/fees/config", body), testutil.Owner)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusBadRequest, "validation_error")
	})

	t.Run("percentage out of range", func(t *testing.T) {
		body := `[{"network":"ETH","fee_percentage":101,"gas_fee_usd":3.0}]`
		req := testutil.WithActor(testutil.NewRequestWithBody(t, http.MethodPost, "/api/fees/config", body), testutil.Owner)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusBadRequest, "validation_error")
	})

	t.Run("moderator without capability", func(t *testing.T) {
		body := `[{"network":"ETH","fee_percentage":1,"gas_fee_usd":1}]`
		req := testutil.WithActor(testutil.NewRequestWithBody(t, http.MethodPost, "/api/fees/config", body), testutil.Moderator)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusForbidden, "forbidden")
	})

	t.Run("empty batch", func(t *testing.T) {
		req := testutil.WithActor(testutil.NewRequestWithBody(t, http.MethodPost, "/api/fees/config", `[]`), testutil.Owner)
		testutil.AssertStatusAndError(t, testutil.DoRequest(router, req), http.StatusBadRequest, "validation_error")
	})
}
