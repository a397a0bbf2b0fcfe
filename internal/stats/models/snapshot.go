package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the dashboard read model. Groups counts Available groups, as
// the dashboard's headline tile always has.
type Snapshot struct {
	Users          int64           `json:"users"`
	Deals          int64           `json:"deals"`
	Groups         int             `json:"groups"`
	Revenue        decimal.Decimal `json:"revenue"`
	GroupsTotal    int             `json:"groups_total"`
	GroupsOccupied int             `json:"groups_occupied"`
	ComputedAt     time.Time       `json:"computed_at"`
}

// LedgerTotals are the figures owned by the bot core's deal ledger.
type LedgerTotals struct {
	Users       int64
	ActiveDeals int64
	Revenue     decimal.Decimal
}

// Fresh reports whether s is younger than ttl at now.
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return s != nil && now.Sub(s.ComputedAt) < ttl
}
