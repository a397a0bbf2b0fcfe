// Package ledger reads user and deal totals owned by the bot core.
package ledger

import (
	"context"

	"escrowops/internal/stats/models"
)

// Static serves fixed totals, for development without the bot core database.
type Static struct {
	Fixed models.LedgerTotals
}

func (s Static) Totals(context.Context) (models.LedgerTotals, error) {
	return s.Fixed, nil
}
