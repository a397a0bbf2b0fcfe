package models

import (
	"strings"
	"time"

	dErrors "escrowops/pkg/domain-errors"
)

// Outcome classifies what happened to the audited action.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailed  Outcome = "failed"
	// OutcomeAttempted precedes an irreversible effect; exactly one success
	// or failed entry for the same target follows it.
	OutcomeAttempted Outcome = "attempted"
)

func (o Outcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeDenied, OutcomeFailed, OutcomeAttempted:
		return true
	}
	return false
}

// ParseOutcome validates an outcome filter value.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	if !o.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid outcome: "+s)
	}
	return o, nil
}

// Entry is one immutable record in the audit log.
//
// Invariants:
//   - Seq is assigned by the store: gapless and strictly increasing from 1
//   - ActorID, Action and Outcome are always set
//   - Entries are never updated or deleted
type Entry struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Target    string    `json:"target,omitempty"`
	DealID    string    `json:"deal_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Validate checks the fields a caller must supply.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.ActorID) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry requires actor")
	}
	if strings.TrimSpace(e.Action) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry requires action")
	}
	if !e.Outcome.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "audit entry has invalid outcome")
	}
	return nil
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	AfterSeq       uint64
	Actor          string
	Action         string
	ActionContains string
	Target         string
	DealID         string
	Outcome        Outcome
	Limit          int
}

// Matches reports whether e satisfies every non-zero field except Limit.
func (f Filter) Matches(e Entry) bool {
	if e.Seq <= f.AfterSeq {
		return false
	}
	if f.Actor != "" && e.ActorID != f.Actor {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.ActionContains != "" && !strings.Contains(strings.ToLower(e.Action), strings.ToLower(f.ActionContains)) {
		return false
	}
	if f.Target != "" && e.Target != f.Target {
		return false
	}
	if f.DealID != "" && e.DealID != f.DealID {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	return true
}
