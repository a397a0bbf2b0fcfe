// Package store persists moderators.
package store

import (
	"context"
	"sort"
	"sync"

	"escrowops/internal/moderator/models"
	"escrowops/pkg/platform/sentinel"
)

// InMemory stores copies so callers never share a record with the map.
type InMemory struct {
	mu         sync.RWMutex
	moderators map[string]*models.Moderator
}

func NewInMemory() *InMemory {
	return &InMemory{moderators: make(map[string]*models.Moderator)}
}

func (s *InMemory) FindByID(_ context.Context, userID string) (*models.Moderator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.moderators[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *InMemory) Save(_ context.Context, m *models.Moderator) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moderators[m.UserID] = m.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.moderators, userID)
	return nil
}

func (s *InMemory) List(context.Context) ([]*models.Moderator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Moderator, 0, len(s.moderators))
	for _, m := range s.moderators {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}
