// Package store keeps bot message templates, either in process memory or
// behind the bot-config collaborator.
package store

import (
	"context"
	"sync"

	"escrowops/internal/botconfig/models"
	"escrowops/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	messages *models.Messages
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

// Load returns sentinel.ErrNotFound until something is saved.
func (s *InMemory) Load(_ context.Context) (*models.Messages, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.messages == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := s.messages.Clone()
	return &cp, nil
}

func (s *InMemory) Save(_ context.Context, m models.Messages) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := m.Clone()
	s.messages = &cp
	return nil
}
