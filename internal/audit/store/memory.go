// Package store persists audit entries and forwarder offsets.
package store

import (
	"context"
	"sync"

	"escrowops/internal/audit/models"
)

// InMemory keeps the log in a slice guarded by one mutex, which is the global
// serialization point for sequence assignment. entries[i].Seq == i+1.
type InMemory struct {
	mu      sync.RWMutex
	entries []models.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

// Append assigns the next sequence number and stores e.
func (s *InMemory) Append(_ context.Context, e models.Entry) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Seq = uint64(len(s.entries)) + 1
	s.entries = append(s.entries, e)
	return e, nil
}

// List returns up to limit entries matching f in ascending seq order.
func (s *InMemory) List(_ context.Context, f models.Filter, limit int) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := f.AfterSeq
	if start >= uint64(len(s.entries)) {
		return nil, nil
	}
	var out []models.Entry
	for _, e := range s.entries[start:] {
		if !f.Matches(e) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LastSeq returns the highest assigned sequence number (0 when empty).
func (s *InMemory) LastSeq(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries)), nil
}

// InMemoryOffsets tracks forwarder progress in process memory.
type InMemoryOffsets struct {
	mu      sync.Mutex
	offsets map[string]uint64
}

func NewInMemoryOffsets() *InMemoryOffsets {
	return &InMemoryOffsets{offsets: make(map[string]uint64)}
}

func (o *InMemoryOffsets) Load(_ context.Context, name string) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offsets[name], nil
}

func (o *InMemoryOffsets) Save(_ context.Context, name string, seq uint64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if seq > o.offsets[name] {
		o.offsets[name] = seq
	}
	return nil
}
