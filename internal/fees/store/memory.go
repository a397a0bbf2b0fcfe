// Package store persists fee rules.
package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"escrowops/internal/fees/models"
	"escrowops/pkg/platform/sentinel"
)

type snapshot map[string]*models.FeeRule

// InMemory publishes the whole schedule as one immutable snapshot. Writers
// build a new map and swap it in, so readers see either the previous or the
// next schedule in full.
type InMemory struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

func NewInMemory() *InMemory {
	s := &InMemory{}
	empty := snapshot{}
	s.current.Store(&empty)
	return s
}

func (s *InMemory) Get(_ context.Context, network string) (*models.FeeRule, error) {
	r, ok := (*s.current.Load())[network]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *InMemory) List(context.Context) ([]*models.FeeRule, error) {
	snap := *s.current.Load()
	out := make([]*models.FeeRule, 0, len(snap))
	for _, r := range snap {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Network < out[j].Network })
	return out, nil
}

// Upsert replaces every rule in rules in a single snapshot swap.
func (s *InMemory) Upsert(_ context.Context, rules ...*models.FeeRule) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := *s.current.Load()
	next := make(snapshot, len(prev)+len(rules))
	for k, v := range prev {
		next[k] = v
	}
	for _, r := range rules {
		next[r.Network] = r.Clone()
	}
	s.current.Store(&next)
	return nil
}

// Delete drops networks in a single snapshot swap. Unknown networks are ignored.
func (s *InMemory) Delete(_ context.Context, networks ...string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := *s.current.Load()
	next := make(snapshot, len(prev))
	for k, v := range prev {
		next[k] = v
	}
	for _, n := range networks {
		delete(next, n)
	}
	s.current.Store(&next)
	return nil
}
