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
	"escrowops/internal/botconfig/service"
	"escrowops/internal/botconfig/store"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/testutil"
)

func newRouter(t *testing.T) (http.Handler, *audittest.FlakyStore) {
	t.Helper()
	log, auditStore := audittest.NewLog()
	svc := service.New(store.NewInMemory(), tx.NewShardedRunner(0), log)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	r := chi.NewRouter()
	New(svc, logger).Register(r)
	return r, auditStore
}

func TestHandleGetDefaults(t *testing.T) {
	router, _ := newRouter(t)
	rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewRequest(t, http.MethodGet, "/api/bot/messages"), testutil.Moderator))
	testutil.AssertStatusOK(t, rr)

	resp := testutil.UnmarshalResponse[messagesBody](t, rr)
	assert.Contains(t, resp.WelcomeMessage, "Welcome to Rahu Escrow")
	assert.Equal(t, "❌ Access Denied - Insufficient privileges", resp.ErrorMessages["permission_denied"])
}

func TestHandleUpdate(t *testing.T) {
	router, auditStore := newRouter(t)
	body := messagesBody{
		WelcomeMessage: "hi",
		RulesMessage:   "be nice",
		ErrorMessages:  map[string]string{"user_banned": "banned"},
	}

	t.Run("owner", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/api/bot/messages", body), testutil.Owner))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "success", true)
		testutil.AssertJSONContains(t, rr, "message", "Bot messages updated successfully")

		rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/api/bot/messages"))
		resp := testutil.UnmarshalResponse[messagesBody](t, rr)
		assert.Equal(t, "hi", resp.WelcomeMessage)
		require.Len(t, resp.ErrorMessages, 1)
	})

	t.Run("moderator forbidden", func(t *testing.T) {
		rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/api/bot/messages", body), testutil.Moderator))
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
		assert.Len(t, auditStore.Entries(), 2)
	})

	t.Run("blank rules", func(t *testing.T) {
		bad := body
		bad.RulesMessage = " "
		rr := testutil.DoRequest(router, testutil.WithActor(testutil.NewJSONRequest(t, http.MethodPost, "/api/bot/messages", bad), testutil.Owner))
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})
}
