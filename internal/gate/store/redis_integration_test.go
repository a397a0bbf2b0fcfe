//go:build integration

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowops/internal/gate/models"
	"escrowops/pkg/platform/sentinel"
	"escrowops/pkg/testutil/containers"
)

func TestRedisIntentLifecycle(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	s := NewRedis(rc.Client, time.Hour)
	start := time.Now().UTC().Truncate(time.Millisecond)

	intent := models.NewPayout("pi_1", "owner-1", "hash", models.PayoutRequest{
		DealID:    "D-1",
		Recipient: "addr",
		Amount:    decimal.RequireFromString("1.25"),
		Reason:    "dispute",
	}, start, time.Minute)
	require.NoError(t, s.Create(ctx, intent))
	assert.True(t, errors.Is(s.Create(ctx, intent), sentinel.ErrConflict))

	got, err := s.Find(ctx, "pi_1")
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(intent.Amount))
	assert.Equal(t, "hash", got.TokenHash)

	expired, err := s.ListExpired(ctx, start.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)

	next := got.Clone()
	require.NoError(t, next.Confirm(start))
	require.NoError(t, s.Swap(ctx, models.StateRequested, next))
	assert.True(t, errors.Is(s.Swap(ctx, models.StateRequested, next), sentinel.ErrConflict))

	expired, err = s.ListExpired(ctx, start.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, expired)

	stale, err := s.ListStale(ctx, start.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "pi_1", stale[0].ID)

	settled := next.Clone()
	require.NoError(t, settled.Reject("collaborator failed", start))
	require.NoError(t, s.Swap(ctx, models.StateConfirmed, settled))
	stale, err = s.ListStale(ctx, start.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, stale)

	_, err = s.Find(ctx, "missing")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}
