// Package store keeps sliding-window request counters.
package store

import (
	"context"
	"sync"
	"time"

	"escrowops/internal/ratelimit/models"
)

// InMemory counts requests per key in process memory. Replicas do not share
// budgets; use Redis when running more than one.
type InMemory struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{windows: make(map[string][]time.Time), now: time.Now}
}

// Allow records one request for key if the window has room.
func (s *InMemory) Allow(_ context.Context, key string, limit models.Limit) (models.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stamps := prune(s.windows[key], now.Add(-limit.Window))
	if len(stamps) >= limit.Requests {
		s.windows[key] = stamps
		resetAt := stamps[0].Add(limit.Window)
		return models.Result{
			Limit:      limit.Requests,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}
	stamps = append(stamps, now)
	s.windows[key] = stamps
	return models.Result{
		Allowed:   true,
		Limit:     limit.Requests,
		Remaining: limit.Requests - len(stamps),
		ResetAt:   stamps[0].Add(limit.Window),
	}, nil
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}
