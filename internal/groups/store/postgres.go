package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"escrowops/internal/groups/models"
	"escrowops/pkg/platform/sentinel"
	txcontext "escrowops/pkg/platform/tx"
)

// Postgres stores the pool in escrow_groups.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const uniqueViolation = "23505"

const (
	groupColumns      = `id, number, status, deal_id, occupied_at, locked_reason, updated_at`
	findByIDQuery     = `SELECT ` + groupColumns + ` FROM escrow_groups WHERE id = $1`
	findByNumberQuery = `SELECT ` + groupColumns + ` FROM escrow_groups WHERE number = $1`
	listQuery         = `SELECT ` + groupColumns + ` FROM escrow_groups ORDER BY number`
	updateQuery       = `
		UPDATE escrow_groups
		SET status = $2, deal_id = $3, occupied_at = $4, locked_reason = $5, updated_at = $6
		WHERE id = $1`
	insertQuery = `
		INSERT INTO escrow_groups (` + groupColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (number) DO NOTHING`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (*models.Group, error) {
	var (
		g          models.Group
		status     string
		dealID     sql.NullString
		occupiedAt sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.Number, &status, &dealID, &occupiedAt, &g.LockedReason, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Status = models.Status(status)
	g.DealID = dealID.String
	if occupiedAt.Valid {
		t := occupiedAt.Time
		g.OccupiedAt = &t
	}
	return &g, nil
}

func (s *Postgres) findOne(ctx context.Context, query string, arg any) (*models.Group, error) {
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	g, err := scanGroup(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find group: %w", err)
	}
	return g, nil
}

// FindByID locks the row when called inside a transaction.
func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	return s.findOne(ctx, findByIDQuery, id)
}

func (s *Postgres) FindByNumber(ctx context.Context, number int) (*models.Group, error) {
	return s.findOne(ctx, findByNumberQuery, number)
}

func (s *Postgres) List(ctx context.Context) ([]*models.Group, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var out []*models.Group
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return out, nil
}

func (s *Postgres) Save(ctx context.Context, g *models.Group) error {
	var occupiedAt sql.NullTime
	if g.OccupiedAt != nil {
		occupiedAt = sql.NullTime{Time: *g.OccupiedAt, Valid: true}
	}
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, updateQuery,
		g.ID,
		string(g.Status),
		sql.NullString{String: g.DealID, Valid: g.DealID != ""},
		occupiedAt,
		g.LockedReason,
		g.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("deal %s already bound: %w", g.DealID, sentinel.ErrConflict)
		}
		return fmt.Errorf("save group: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save group: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Insert(ctx context.Context, groups ...*models.Group) (int, error) {
	exec := txcontext.Executor(ctx, s.db)
	added := 0
	for _, g := range groups {
		res, err := exec.ExecContext(ctx, insertQuery,
			g.ID,
			g.Number,
			string(g.Status),
			nil,
			nil,
			g.LockedReason,
			g.UpdatedAt,
		)
		if err != nil {
			return added, fmt.Errorf("insert group %d: %w", g.Number, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	return added, nil
}
