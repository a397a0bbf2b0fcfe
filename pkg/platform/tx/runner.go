package tx

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dErrors "escrowops/pkg/domain-errors"
)

// Runner provides a transactional boundary keyed by the resource being
// mutated. fn receives the context it must pass to every store call so that
// stores (including the audit store) join the same transaction.
type Runner interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// numShards spreads per-resource locks so unrelated groups or moderators
// never contend.
const numShards = 128

// DefaultTimeout bounds a transaction when the caller set no deadline.
const DefaultTimeout = 5 * time.Second

// ShardedRunner serializes callbacks per key using sharded mutexes. It is the
// in-memory stand-in for a database transaction.
type ShardedRunner struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

// NewShardedRunner returns a runner with the given timeout (0 for default).
func NewShardedRunner(timeout time.Duration) *ShardedRunner {
	return &ShardedRunner{timeout: timeout}
}

func (t *ShardedRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	ctx, cancel, err := withDeadline(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	shard := hashString(key) % numShards
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx)
}

// PostgresRunner wraps callbacks in a database transaction carried in the
// context. A transaction-scoped advisory lock on key gives the same per-key
// serialization as ShardedRunner, including for rows that do not exist yet.
type PostgresRunner struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresRunner(db *sql.DB, timeout time.Duration) *PostgresRunner {
	return &PostgresRunner{db: db, timeout: timeout}
}

const advisoryLockQuery = `SELECT pg_advisory_xact_lock(hashtext($1))`

func (t *PostgresRunner) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	// Nested runs join the outer transaction.
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}

	ctx, cancel, err := withDeadline(ctx, t.timeout)
	if err != nil {
		return err
	}
	defer cancel()

	sqlTx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "begin transaction")
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if key != "" {
		if _, err := sqlTx.ExecContext(ctx, advisoryLockQuery, key); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "acquire resource lock")
		}
	}

	if err := fn(WithTx(ctx, sqlTx)); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "commit transaction")
	}
	return nil
}

func withDeadline(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return ctx, func() {}, dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, cancel, nil
}

// hashString uses FNV-1a for better hash distribution than simple multiply-add.
func hashString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
