package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"escrowops/internal/ratelimit/models"
)

func TestInMemorySlidingWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewInMemory()
	s.now = func() time.Time { return now }
	limit := models.Limit{Requests: 2, Window: time.Minute}

	r, err := s.Allow(ctx, "k", limit)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, 1, r.Remaining)

	now = now.Add(20 * time.Second)
	r, _ = s.Allow(ctx, "k", limit)
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)

	now = now.Add(20 * time.Second)
	r, _ = s.Allow(ctx, "k", limit)
	assert.False(t, r.Allowed)
	assert.Equal(t, 20*time.Second, r.RetryAfter)

	r, _ = s.Allow(ctx, "other", limit)
	assert.True(t, r.Allowed, "keys have separate budgets")

	now = now.Add(21 * time.Second)
	r, _ = s.Allow(ctx, "k", limit)
	assert.True(t, r.Allowed, "first request left the window")
}
