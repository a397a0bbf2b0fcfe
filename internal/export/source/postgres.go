// Package source reads the bot core's users and deals for the system export.
package source

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"escrowops/internal/export/models"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Postgres copies whole tables from the read-only ledger pool. Columns come
// from the bot core's schema as-is.
type Postgres struct {
	db querier
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

func (p *Postgres) Users(ctx context.Context) (models.Table, error) {
	return p.table(ctx, "SELECT * FROM users ORDER BY 1")
}

func (p *Postgres) Deals(ctx context.Context) (models.Table, error) {
	return p.table(ctx, "SELECT * FROM deals ORDER BY 1")
}

func (p *Postgres) table(ctx context.Context, query string) (models.Table, error) {
	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return models.Table{}, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var t models.Table
	for _, fd := range rows.FieldDescriptions() {
		t.Columns = append(t.Columns, fd.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return models.Table{}, fmt.Errorf("read ledger row: %w", err)
		}
		t.Rows = append(t.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return models.Table{}, fmt.Errorf("iterate ledger rows: %w", err)
	}
	return t, nil
}

// Empty stands in for the ledger when no bot core database is configured.
type Empty struct{}

func (Empty) Users(context.Context) (models.Table, error) { return models.Table{}, nil }
func (Empty) Deals(context.Context) (models.Table, error) { return models.Table{}, nil }
