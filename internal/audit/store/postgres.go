package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"escrowops/internal/audit/models"
	txcontext "escrowops/pkg/platform/tx"
)

// Postgres stores entries in audit_entries. Sequence numbers come from the
// single audit_sequence row, bumped inside the caller's transaction: the row
// lock linearizes appends and a rollback returns the number.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const (
	nextSeqQuery = `UPDATE audit_sequence SET value = value + 1 WHERE id = 1 RETURNING value`
	insertQuery  = `
		INSERT INTO audit_entries (seq, ts, actor_id, action, target, deal_id, outcome, detail, request_id, client_ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
)

// Append joins the transaction in ctx or opens its own.
func (s *Postgres) Append(ctx context.Context, e models.Entry) (models.Entry, error) {
	if _, ok := txcontext.From(ctx); ok {
		return s.append(ctx, txcontext.Executor(ctx, s.db), e)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Entry{}, fmt.Errorf("begin audit tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	out, err := s.append(ctx, tx, e)
	if err != nil {
		return models.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return models.Entry{}, fmt.Errorf("commit audit tx: %w", err)
	}
	return out, nil
}

func (s *Postgres) append(ctx context.Context, exec txcontext.DBTX, e models.Entry) (models.Entry, error) {
	var seq int64
	if err := exec.QueryRowContext(ctx, nextSeqQuery).Scan(&seq); err != nil {
		return models.Entry{}, fmt.Errorf("next audit seq: %w", err)
	}
	e.Seq = uint64(seq)
	_, err := exec.ExecContext(ctx, insertQuery,
		seq,
		e.Timestamp,
		e.ActorID,
		e.Action,
		e.Target,
		e.DealID,
		string(e.Outcome),
		e.Detail,
		e.RequestID,
		e.ClientIP,
		e.UserAgent,
	)
	if err != nil {
		return models.Entry{}, fmt.Errorf("insert audit entry: %w", err)
	}
	return e, nil
}

// List returns up to limit matching entries with seq > f.AfterSeq.
func (s *Postgres) List(ctx context.Context, f models.Filter, limit int) ([]models.Entry, error) {
	query, args := buildListQuery(f, limit)
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		var (
			e       models.Entry
			seq     int64
			outcome string
		)
		if err := rows.Scan(&seq, &e.Timestamp, &e.ActorID, &e.Action, &e.Target, &e.DealID, &outcome,
			&e.Detail, &e.RequestID, &e.ClientIP, &e.UserAgent); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.Outcome = models.Outcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}

func buildListQuery(f models.Filter, limit int) (string, []any) {
	var (
		where = []string{"seq > $1"}
		args  = []any{int64(f.AfterSeq)}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Actor != "" {
		add("actor_id = $%d", f.Actor)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ActionContains != "" {
		add("action ILIKE '%%' || $%d || '%%'", f.ActionContains)
	}
	if f.Target != "" {
		add("target = $%d", f.Target)
	}
	if f.DealID != "" {
		add("deal_id = $%d", f.DealID)
	}
	if f.Outcome != "" {
		add("outcome = $%d", string(f.Outcome))
	}

	query := `SELECT seq, ts, actor_id, action, target, deal_id, outcome, detail, request_id, client_ip, user_agent
		FROM audit_entries WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return query, args
}

// LastSeq returns the highest committed sequence number.
func (s *Postgres) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM audit_entries`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last audit seq: %w", err)
	}
	return uint64(seq), nil
}

// PostgresOffsets persists forwarder progress in audit_forwarder_offsets.
type PostgresOffsets struct {
	db *sql.DB
}

func NewPostgresOffsets(db *sql.DB) *PostgresOffsets {
	return &PostgresOffsets{db: db}
}

func (o *PostgresOffsets) Load(ctx context.Context, name string) (uint64, error) {
	var seq int64
	err := o.db.QueryRowContext(ctx,
		`SELECT last_seq FROM audit_forwarder_offsets WHERE name = $1`, name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load forwarder offset: %w", err)
	}
	return uint64(seq), nil
}

func (o *PostgresOffsets) Save(ctx context.Context, name string, seq uint64) error {
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO audit_forwarder_offsets (name, last_seq) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET last_seq = GREATEST(audit_forwarder_offsets.last_seq, EXCLUDED.last_seq)`,
		name, int64(seq))
	if err != nil {
		return fmt.Errorf("save forwarder offset: %w", err)
	}
	return nil
}
