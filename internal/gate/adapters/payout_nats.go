package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"escrowops/internal/gate/models"
)

// PayoutNATS hands confirmed payouts to the payment-submission service over
// a request/reply subject. A reply means the order was durably accepted; it
// says nothing about settlement.
type PayoutNATS struct {
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

type payoutAck struct {
	Accepted bool   `json:"accepted"`
	Error    string `json:"error,omitempty"`
}

// ConnectNATS dials url with unbounded reconnects.
func ConnectNATS(url string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name("escrowops"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

func NewPayoutNATS(conn *nats.Conn, subject string, timeout time.Duration) *PayoutNATS {
	return &PayoutNATS{conn: conn, subject: subject, timeout: timeout}
}

func (p *PayoutNATS) Submit(ctx context.Context, order models.PayoutOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal payout order: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok && p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, order.Reference)
	reply, err := p.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("no payment submitter on %s: %w", p.subject, err)
		}
		return fmt.Errorf("payout request: %w", err)
	}
	var ack payoutAck
	if err := json.Unmarshal(reply.Data, &ack); err != nil {
		return fmt.Errorf("decode payout ack: %w", err)
	}
	if !ack.Accepted {
		return fmt.Errorf("payout rejected by submitter: %s", ack.Error)
	}
	return nil
}

func (p *PayoutNATS) Close() {
	p.conn.Close()
}
