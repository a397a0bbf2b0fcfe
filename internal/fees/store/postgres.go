package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"escrowops/internal/fees/models"
	"escrowops/pkg/platform/sentinel"
	txcontext "escrowops/pkg/platform/tx"
)

// Postgres stores rules in fee_rules. Multi-rule upserts share the caller's
// transaction, so readers never see part of a batch.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const (
	ruleColumns = `network, fee_percentage, gas_model, gas_amount, version, updated_at, updated_by`
	getQuery    = `SELECT ` + ruleColumns + ` FROM fee_rules WHERE network = $1`
	listQuery   = `SELECT ` + ruleColumns + ` FROM fee_rules ORDER BY network`
	deleteQuery = `DELETE FROM fee_rules WHERE network = $1`
	upsertQuery = `
		INSERT INTO fee_rules (` + ruleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (network) DO UPDATE SET
			fee_percentage = EXCLUDED.fee_percentage,
			gas_model = EXCLUDED.gas_model,
			gas_amount = EXCLUDED.gas_amount,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at,
			updated_by = EXCLUDED.updated_by`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.FeeRule, error) {
	var (
		r      models.FeeRule
		kind   string
		amount decimal.Decimal
	)
	if err := row.Scan(&r.Network, &r.FeePercentage, &kind, &amount, &r.Version, &r.UpdatedAt, &r.UpdatedBy); err != nil {
		return nil, err
	}
	gas, err := models.NewGasModel(models.GasKind(kind), amount)
	if err != nil {
		return nil, err
	}
	r.Gas = gas
	return &r, nil
}

func (s *Postgres) Get(ctx context.Context, network string) (*models.FeeRule, error) {
	query := getQuery
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	r, err := scanRule(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, network))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fee rule: %w", err)
	}
	return r, nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.FeeRule, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("list fee rules: %w", err)
	}
	defer rows.Close()

	var out []*models.FeeRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fee rule: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list fee rules: %w", err)
	}
	return out, nil
}

func (s *Postgres) Upsert(ctx context.Context, rules ...*models.FeeRule) error {
	exec := txcontext.Executor(ctx, s.db)
	for _, r := range rules {
		_, err := exec.ExecContext(ctx, upsertQuery,
			r.Network,
			r.FeePercentage,
			string(r.Gas.Kind()),
			r.Gas.Amount(),
			r.Version,
			r.UpdatedAt,
			r.UpdatedBy,
		)
		if err != nil {
			return fmt.Errorf("upsert fee rule %s: %w", r.Network, err)
		}
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, networks ...string) error {
	exec := txcontext.Executor(ctx, s.db)
	for _, n := range networks {
		if _, err := exec.ExecContext(ctx, deleteQuery, n); err != nil {
			return fmt.Errorf("delete fee rule %s: %w", n, err)
		}
	}
	return nil
}
