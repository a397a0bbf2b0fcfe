//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowops/internal/stats/models"
	"escrowops/pkg/testutil/containers"
)

func TestRedisRoundTrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	c := NewRedis(rc.Client, "")

	got, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	snap := &models.Snapshot{Users: 5, Groups: 2, Revenue: decimal.RequireFromString("10.5"), ComputedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, c.Set(ctx, snap, time.Minute))

	got, err = c.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.Users)
	assert.True(t, got.Revenue.Equal(snap.Revenue))
	assert.True(t, got.ComputedAt.Equal(snap.ComputedAt))

	require.NoError(t, c.Delete(ctx))
	got, err = c.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisExpires(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	c := NewRedis(rc.Client, "test:stats")

	require.NoError(t, c.Set(ctx, &models.Snapshot{Users: 1}, 100*time.Millisecond))
	require.Eventually(t, func() bool {
		got, err := c.Get(ctx)
		return err == nil && got == nil
	}, 5*time.Second, 50*time.Millisecond)
}
