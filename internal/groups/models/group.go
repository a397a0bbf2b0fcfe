package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "escrowops/pkg/domain-errors"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusOccupied  Status = "occupied"
	StatusCompleted Status = "completed"
	// StatusLocked is an administrative hold; only Reset lifts it.
	StatusLocked Status = "locked"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusAvailable, StatusOccupied, StatusCompleted, StatusLocked:
		return true
	}
	return false
}

const maxDealIDLen = 128

// Group is one escrow chat group in the fixed pool.
//
// Invariants:
//   - Number is stable and unique within the pool
//   - DealID and OccupiedAt are set iff Status is Occupied
//   - A deal id is bound to at most one group
type Group struct {
	ID           uuid.UUID  `json:"id"`
	Number       int        `json:"group_number"`
	Status       Status     `json:"status"`
	DealID       string     `json:"current_deal,omitempty"`
	OccupiedAt   *time.Time `json:"occupied_at,omitempty"`
	LockedReason string     `json:"locked_reason,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewPool builds groups numbered from..to inclusive, all Available.
func NewPool(from, to int, now time.Time) []*Group {
	if from < 1 {
		from = 1
	}
	out := make([]*Group, 0, max(0, to-from+1))
	for n := from; n <= to; n++ {
		out = append(out, &Group{
			ID:        uuid.New(),
			Number:    n,
			Status:    StatusAvailable,
			UpdatedAt: now,
		})
	}
	return out
}

func ValidateDealID(dealID string) error {
	if strings.TrimSpace(dealID) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "deal id is required")
	}
	if len(dealID) > maxDealIDLen {
		return dErrors.New(dErrors.CodeInvariantViolation, "deal id is too long")
	}
	return nil
}

func (g *Group) Label() string {
	return fmt.Sprintf("group #%d", g.Number)
}

// Bind moves Available -> Occupied.
func (g *Group) Bind(dealID string, now time.Time) error {
	if err := ValidateDealID(dealID); err != nil {
		return err
	}
	if g.Status != StatusAvailable {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("%s is %s", g.Label(), g.Status))
	}
	g.Status = StatusOccupied
	g.DealID = dealID
	g.OccupiedAt = &now
	g.UpdatedAt = now
	return nil
}

// Complete moves Occupied(dealID) -> Completed and drops the deal reference.
func (g *Group) Complete(dealID string, now time.Time) error {
	if g.Status != StatusOccupied {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("%s is %s", g.Label(), g.Status))
	}
	if g.DealID != dealID {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("%s is bound to a different deal", g.Label()))
	}
	g.Status = StatusCompleted
	g.clearDeal()
	g.UpdatedAt = now
	return nil
}

// Release moves Completed -> Available.
func (g *Group) Release(now time.Time) error {
	if g.Status != StatusCompleted {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("%s is %s", g.Label(), g.Status))
	}
	g.Status = StatusAvailable
	g.UpdatedAt = now
	return nil
}

// Lock places an administrative hold on an idle group.
func (g *Group) Lock(reason string, now time.Time) error {
	if strings.TrimSpace(reason) == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "lock reason is required")
	}
	if g.Status != StatusAvailable && g.Status != StatusCompleted {
		return dErrors.New(dErrors.CodeConflict, fmt.Sprintf("%s is %s", g.Label(), g.Status))
	}
	g.Status = StatusLocked
	g.LockedReason = reason
	g.UpdatedAt = now
	return nil
}

// Reset forces the group back to Available from any status.
func (g *Group) Reset(now time.Time) {
	g.Status = StatusAvailable
	g.clearDeal()
	g.LockedReason = ""
	g.UpdatedAt = now
}

func (g *Group) clearDeal() {
	g.DealID = ""
	g.OccupiedAt = nil
}

func (g *Group) Clone() *Group {
	c := *g
	if g.OccupiedAt != nil {
		t := *g.OccupiedAt
		c.OccupiedAt = &t
	}
	return &c
}
