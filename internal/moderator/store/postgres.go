package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"escrowops/internal/moderator/models"
	"escrowops/pkg/platform/sentinel"
	txcontext "escrowops/pkg/platform/tx"
)

// Postgres stores moderators in the moderators table.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const (
	moderatorColumns = `user_id, username, display_name, can_ban, can_freeze, can_broadcast, can_edit_fees, deals_handled, created_at, updated_at`
	findQuery        = `SELECT ` + moderatorColumns + ` FROM moderators WHERE user_id = $1`
	listQuery        = `SELECT ` + moderatorColumns + ` FROM moderators ORDER BY user_id`
	deleteQuery      = `DELETE FROM moderators WHERE user_id = $1`
	upsertQuery      = `
		INSERT INTO moderators (` + moderatorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			display_name = EXCLUDED.display_name,
			can_ban = EXCLUDED.can_ban,
			can_freeze = EXCLUDED.can_freeze,
			can_broadcast = EXCLUDED.can_broadcast,
			can_edit_fees = EXCLUDED.can_edit_fees,
			deals_handled = GREATEST(moderators.deals_handled, EXCLUDED.deals_handled),
			updated_at = EXCLUDED.updated_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModerator(row rowScanner) (*models.Moderator, error) {
	var m models.Moderator
	var deals int64
	err := row.Scan(
		&m.UserID,
		&m.Username,
		&m.DisplayName,
		&m.Capabilities.Ban,
		&m.Capabilities.Freeze,
		&m.Capabilities.Broadcast,
		&m.Capabilities.EditFees,
		&deals,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.DealsHandled = uint64(deals)
	return &m, nil
}

// FindByID locks the row when called inside a transaction.
func (s *Postgres) FindByID(ctx context.Context, userID string) (*models.Moderator, error) {
	query := findQuery
	if _, ok := txcontext.From(ctx); ok {
		query += ` FOR UPDATE`
	}
	m, err := scanModerator(txcontext.Executor(ctx, s.db).QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find moderator: %w", err)
	}
	return m, nil
}

func (s *Postgres) Save(ctx context.Context, m *models.Moderator) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, upsertQuery,
		m.UserID,
		m.Username,
		m.DisplayName,
		m.Capabilities.Ban,
		m.Capabilities.Freeze,
		m.Capabilities.Broadcast,
		m.Capabilities.EditFees,
		int64(m.DealsHandled),
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save moderator: %w", err)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, userID string) error {
	if _, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, deleteQuery, userID); err != nil {
		return fmt.Errorf("delete moderator: %w", err)
	}
	return nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.Moderator, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, listQuery)
	if err != nil {
		return nil, fmt.Errorf("list moderators: %w", err)
	}
	defer rows.Close()

	var out []*models.Moderator
	for rows.Next() {
		m, err := scanModerator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan moderator: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list moderators: %w", err)
	}
	return out, nil
}
