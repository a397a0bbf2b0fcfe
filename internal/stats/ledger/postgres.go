package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"escrowops/internal/stats/models"
)

// ActiveDealStatuses are the bot core's in-flight deal states.
var ActiveDealStatuses = []string{"Pending", "Addresses Set", "Escrow Generated", "Funded"}

const completedStatus = "Completed"

// totalsQuery reads the bot core's users and deals tables in one round trip.
const totalsQuery = `
	SELECT
		(SELECT count(*) FROM users),
		(SELECT count(*) FROM deals WHERE status = ANY($1)),
		(SELECT COALESCE(SUM(fee_amount), 0)::text FROM deals WHERE status = $2)`

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres reads totals from the bot core database with a read-only pool.
type Postgres struct {
	db querier
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

// Open connects a pgx pool to the ledger DSN.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse ledger dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect ledger: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	return pool, nil
}

func (p *Postgres) Totals(ctx context.Context) (models.LedgerTotals, error) {
	var (
		out     models.LedgerTotals
		revenue string
	)
	if err := p.db.QueryRow(ctx, totalsQuery, ActiveDealStatuses, completedStatus).Scan(&out.Users, &out.ActiveDeals, &revenue); err != nil {
		return models.LedgerTotals{}, fmt.Errorf("read ledger totals: %w", err)
	}
	r, err := decimal.NewFromString(revenue)
	if err != nil {
		return models.LedgerTotals{}, fmt.Errorf("parse revenue: %w", err)
	}
	out.Revenue = r
	return out, nil
}
