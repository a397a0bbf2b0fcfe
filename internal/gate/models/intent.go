// Package models holds the pending-intent records behind the two-phase
// destructive actions.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	dErrors "escrowops/pkg/domain-errors"
)

// Kind names the guarded action an intent authorizes.
type Kind string

const (
	KindKeyExport    Kind = "key_export"
	KindManualPayout Kind = "manual_payout"
)

// State of an intent. Requested is the only pending state; the others are
// terminal.
type State string

const (
	StateRequested State = "requested"
	StateConfirmed State = "confirmed"
	StateExecuted  State = "executed"
	StateRejected  State = "rejected"
)

// BundleHandle is the custody collaborator's opaque reference to a prepared
// key bundle. The gate never interprets it.
type BundleHandle string

const maxFieldLen = 256

// PayoutRequest is phase one of a manual payout.
type PayoutRequest struct {
	DealID    string
	Recipient string
	Amount    decimal.Decimal
	Reason    string
}

// Validate requires every field and a positive amount.
func (r PayoutRequest) Validate() error {
	fields := []struct{ name, value string }{
		{"deal_id", r.DealID},
		{"recipient_address", r.Recipient},
		{"reason", r.Reason},
	}
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		if v == "" {
			return dErrors.New(dErrors.CodeValidation, f.name+" is required")
		}
		if len(v) > maxFieldLen {
			return dErrors.New(dErrors.CodeValidation, f.name+" is too long")
		}
	}
	if !r.Amount.IsPositive() {
		return dErrors.New(dErrors.CodeValidation, "amount must be greater than zero")
	}
	return nil
}

// Intent is a pending or settled destructive action.
//
// Invariants:
//   - TokenHash is a bcrypt hash; the plaintext token is never stored
//   - only a Requested intent can be confirmed or rejected
//   - payout fields are set iff Kind is KindManualPayout
type Intent struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	State       State           `json:"state"`
	RequestedBy string          `json:"requested_by"`
	TokenHash   string          `json:"token_hash"`
	DealID      string          `json:"deal_id,omitempty"`
	Recipient   string          `json:"recipient,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason,omitempty"`
	Outcome     string          `json:"outcome,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewKeyExport builds a pending key export intent.
func NewKeyExport(id, requestedBy, tokenHash string, now time.Time, ttl time.Duration) *Intent {
	return &Intent{
		ID:          id,
		Kind:        KindKeyExport,
		State:       StateRequested,
		RequestedBy: requestedBy,
		TokenHash:   tokenHash,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		UpdatedAt:   now,
	}
}

// NewPayout builds a pending manual payout intent from a validated request.
func NewPayout(id, requestedBy, tokenHash string, req PayoutRequest, now time.Time, ttl time.Duration) *Intent {
	return &Intent{
		ID:          id,
		Kind:        KindManualPayout,
		State:       StateRequested,
		RequestedBy: requestedBy,
		TokenHash:   tokenHash,
		DealID:      strings.TrimSpace(req.DealID),
		Recipient:   strings.TrimSpace(req.Recipient),
		Amount:      req.Amount,
		Reason:      strings.TrimSpace(req.Reason),
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		UpdatedAt:   now,
	}
}

func (i *Intent) IsPending() bool {
	return i.State == StateRequested
}

// Settled reports whether the intent reached a terminal state.
func (i *Intent) Settled() bool {
	return i.State == StateExecuted || i.State == StateRejected
}

// Expired reports whether the confirmation window closed before now.
func (i *Intent) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Confirm takes a pending intent. A second confirm fails.
func (i *Intent) Confirm(now time.Time) error {
	if !i.IsPending() {
		return dErrors.New(dErrors.CodeInvariantViolation, "intent is already "+string(i.State))
	}
	i.State = StateConfirmed
	i.UpdatedAt = now
	return nil
}

// Execute records the collaborator's result for a confirmed intent.
func (i *Intent) Execute(outcome string, now time.Time) error {
	if i.State != StateConfirmed {
		return dErrors.New(dErrors.CodeInvariantViolation, "intent must be confirmed before execution")
	}
	i.State = StateExecuted
	i.Outcome = outcome
	i.UpdatedAt = now
	return nil
}

// Reject abandons a pending intent, or marks a confirmed one whose effect
// failed.
func (i *Intent) Reject(reason string, now time.Time) error {
	if i.State != StateRequested && i.State != StateConfirmed {
		return dErrors.New(dErrors.CodeInvariantViolation, "intent is already "+string(i.State))
	}
	i.State = StateRejected
	i.Outcome = reason
	i.UpdatedAt = now
	return nil
}

// Target is the audit target shared by every entry about this intent.
func (i *Intent) Target() string {
	return "intent:" + i.ID
}

func (i *Intent) Clone() *Intent {
	if i == nil {
		return nil
	}
	cp := *i
	return &cp
}

// PayoutOrder is handed to the payment-submission collaborator once a payout
// intent is confirmed. Reference is the operator-facing transaction id.
type PayoutOrder struct {
	Reference    string          `json:"reference"`
	IntentID     string          `json:"intent_id"`
	DealID       string          `json:"deal_id"`
	Recipient    string          `json:"recipient_address"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
	AuthorizedBy string          `json:"authorized_by"`
}

// Order builds the hand-off for a confirmed payout intent.
func (i *Intent) Order(reference string) PayoutOrder {
	return PayoutOrder{
		Reference:    reference,
		IntentID:     i.ID,
		DealID:       i.DealID,
		Recipient:    i.Recipient,
		Amount:       i.Amount,
		Reason:       i.Reason,
		AuthorizedBy: i.RequestedBy,
	}
}
