package adapters

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowops/internal/gate/models"
)

const testSubject = "escrow.payout.submit"

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS not ready")
	}
	return srv.ClientURL()
}

func order() models.PayoutOrder {
	return models.PayoutOrder{
		Reference:    "MANUAL_0A1B2C3D",
		IntentID:     "pi_1",
		DealID:       "D-1",
		Recipient:    "addr",
		Amount:       decimal.RequireFromString("2.5"),
		Reason:       "dispute",
		AuthorizedBy: "owner-1",
	}
}

func newSubmitter(t *testing.T, url string, reply func(models.PayoutOrder, string) payoutAck) *PayoutNATS {
	t.Helper()
	backend, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(backend.Close)
	if reply != nil {
		_, err = backend.Subscribe(testSubject, func(msg *nats.Msg) {
			var o models.PayoutOrder
			assert.NoError(t, json.Unmarshal(msg.Data, &o))
			data, _ := json.Marshal(reply(o, msg.Header.Get(nats.MsgIdHdr)))
			_ = msg.Respond(data)
		})
		require.NoError(t, err)
		require.NoError(t, backend.Flush())
	}

	conn, err := ConnectNATS(url)
	require.NoError(t, err)
	p := NewPayoutNATS(conn, testSubject, 2*time.Second)
	t.Cleanup(p.Close)
	return p
}

func TestPayoutAccepted(t *testing.T) {
	url := startTestNATS(t)
	type received struct {
		order models.PayoutOrder
		msgID string
	}
	seen := make(chan received, 1)
	p := newSubmitter(t, url, func(o models.PayoutOrder, id string) payoutAck {
		seen <- received{order: o, msgID: id}
		return payoutAck{Accepted: true}
	})

	require.NoError(t, p.Submit(context.Background(), order()))
	got := <-seen
	assert.Equal(t, "pi_1", got.order.IntentID)
	assert.True(t, got.order.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, "MANUAL_0A1B2C3D", got.msgID)
}

func TestPayoutRejected(t *testing.T) {
	url := startTestNATS(t)
	p := newSubmitter(t, url, func(models.PayoutOrder, string) payoutAck {
		return payoutAck{Accepted: false, Error: "recipient blocked"}
	})
	err := p.Submit(context.Background(), order())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recipient blocked")
}

func TestPayoutNoResponders(t *testing.T) {
	url := startTestNATS(t)
	p := newSubmitter(t, url, nil)
	err := p.Submit(context.Background(), order())
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrNoResponders)
}
