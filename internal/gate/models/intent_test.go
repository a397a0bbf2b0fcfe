package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "escrowops/pkg/domain-errors"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func validPayout() PayoutRequest {
	return PayoutRequest{
		DealID:    "D-1",
		Recipient: "bc1qrecipient",
		Amount:    decimal.RequireFromString("0.5"),
		Reason:    "buyer unreachable",
	}
}

func TestPayoutRequestValidate(t *testing.T) {
	require.NoError(t, validPayout().Validate())

	cases := map[string]func(*PayoutRequest){
		"missing deal":      func(r *PayoutRequest) { r.DealID = " " },
		"missing recipient": func(r *PayoutRequest) { r.Recipient = "" },
		"missing reason":    func(r *PayoutRequest) { r.Reason = "" },
		"zero amount":       func(r *PayoutRequest) { r.Amount = decimal.Zero },
		"negative amount":   func(r *PayoutRequest) { r.Amount = decimal.NewFromInt(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validPayout()
			mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestIntentLifecycle(t *testing.T) {
	i := NewPayout("pi_1", "owner-1", "hash", validPayout(), now, time.Minute)
	assert.True(t, i.IsPending())
	assert.False(t, i.Expired(now.Add(59*time.Second)))
	assert.True(t, i.Expired(now.Add(time.Minute)))

	require.NoError(t, i.Confirm(now))
	require.Error(t, i.Confirm(now), "a taken intent cannot be confirmed twice")
	require.NoError(t, i.Execute("MANUAL_ABCD1234", now))
	assert.Equal(t, StateExecuted, i.State)
	require.Error(t, i.Reject("late", now))
}

func TestRejectOnlyBeforeExecution(t *testing.T) {
	i := NewKeyExport("ke_1", "owner-1", "hash", now, time.Minute)
	require.Error(t, i.Execute("handle", now))
	require.NoError(t, i.Reject("changed my mind", now))
	assert.Equal(t, StateRejected, i.State)
	assert.Equal(t, "intent:ke_1", i.Target())
}
