// Package store persists gate intents.
//
// Error contract: ErrNotFound for unknown ids, ErrConflict when Swap finds
// the intent in a different state than expected.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"escrowops/internal/gate/models"
	"escrowops/pkg/platform/sentinel"
)

// InMemory keeps intents in process memory for tests and single-node dev.
// Settled intents are dropped retention after their last change, on the
// next ListExpired.
type InMemory struct {
	mu        sync.Mutex
	intents   map[string]*models.Intent
	retention time.Duration
}

func NewInMemory(retention time.Duration) *InMemory {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &InMemory{intents: make(map[string]*models.Intent), retention: retention}
}

func (s *InMemory) Create(_ context.Context, intent *models.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.intents[intent.ID]; ok {
		return fmt.Errorf("intent %s exists: %w", intent.ID, sentinel.ErrConflict)
	}
	s.intents[intent.ID] = intent.Clone()
	return nil
}

func (s *InMemory) Find(_ context.Context, id string) (*models.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	intent, ok := s.intents[id]
	if !ok {
		return nil, fmt.Errorf("intent %s: %w", id, sentinel.ErrNotFound)
	}
	return intent.Clone(), nil
}

// Swap stores next if the stored intent is still in state from.
func (s *InMemory) Swap(_ context.Context, from models.State, next *models.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.intents[next.ID]
	if !ok {
		return fmt.Errorf("intent %s: %w", next.ID, sentinel.ErrNotFound)
	}
	if current.State != from {
		return fmt.Errorf("intent %s is %s: %w", next.ID, current.State, sentinel.ErrConflict)
	}
	s.intents[next.ID] = next.Clone()
	return nil
}

// ListExpired returns pending intents whose window closed by now, oldest
// first, and evicts settled intents past retention.
func (s *InMemory) ListExpired(_ context.Context, now time.Time) ([]*models.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Intent
	for id, intent := range s.intents {
		if intent.Settled() && !now.Before(intent.UpdatedAt.Add(s.retention)) {
			delete(s.intents, id)
			continue
		}
		if intent.IsPending() && intent.Expired(now) {
			out = append(out, intent.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out, nil
}

// ListStale returns confirmed intents last changed before cutoff, oldest
// first.
func (s *InMemory) ListStale(_ context.Context, cutoff time.Time) ([]*models.Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Intent
	for _, intent := range s.intents {
		if intent.State == models.StateConfirmed && intent.UpdatedAt.Before(cutoff) {
			out = append(out, intent.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}
