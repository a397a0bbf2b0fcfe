// Package store persists the escrow group pool.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"escrowops/internal/groups/models"
	"escrowops/pkg/platform/sentinel"
)

// InMemory keeps the pool in a map. Save enforces that a deal id is bound to
// at most one group, as the unique index does in Postgres.
type InMemory struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*models.Group
}

func NewInMemory() *InMemory {
	return &InMemory{groups: make(map[uuid.UUID]*models.Group)}
}

func (s *InMemory) FindByID(_ context.Context, id uuid.UUID) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return g.Clone(), nil
}

func (s *InMemory) FindByNumber(_ context.Context, number int) (*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.groups {
		if g.Number == number {
			return g.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) List(context.Context) ([]*models.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *InMemory) Save(_ context.Context, g *models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; !ok {
		return sentinel.ErrNotFound
	}
	if g.DealID != "" {
		for id, other := range s.groups {
			if id != g.ID && other.DealID == g.DealID {
				return sentinel.ErrConflict
			}
		}
	}
	s.groups[g.ID] = g.Clone()
	return nil
}

// Insert adds groups whose number is not taken yet and returns how many
// were added.
func (s *InMemory) Insert(_ context.Context, groups ...*models.Group) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := make(map[int]struct{}, len(s.groups))
	for _, g := range s.groups {
		taken[g.Number] = struct{}{}
	}
	added := 0
	for _, g := range groups {
		if _, ok := taken[g.Number]; ok {
			continue
		}
		s.groups[g.ID] = g.Clone()
		taken[g.Number] = struct{}{}
		added++
	}
	return added, nil
}
