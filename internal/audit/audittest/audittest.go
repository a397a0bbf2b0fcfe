// Package audittest provides audit log doubles for other modules' tests.
package audittest

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"

	"escrowops/internal/audit/models"
	auditservice "escrowops/internal/audit/service"
	auditstore "escrowops/internal/audit/store"
)

// ErrUnavailable is returned by a tripped FlakyStore.
var ErrUnavailable = errors.New("audit storage unavailable")

// FlakyStore wraps an in-memory store and fails appends on demand.
type FlakyStore struct {
	*auditstore.InMemory

	mu       sync.Mutex
	failAll  bool
	failWhen func(models.Entry) bool
}

func NewFlakyStore() *FlakyStore {
	return &FlakyStore{InMemory: auditstore.NewInMemory()}
}

// FailAll makes every subsequent append fail (or succeed again with false).
func (f *FlakyStore) FailAll(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = fail
}

// FailWhen fails appends for which pred returns true.
func (f *FlakyStore) FailWhen(pred func(models.Entry) bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWhen = pred
}

func (f *FlakyStore) Append(ctx context.Context, e models.Entry) (models.Entry, error) {
	f.mu.Lock()
	fail := f.failAll || (f.failWhen != nil && f.failWhen(e))
	f.mu.Unlock()
	if fail {
		return models.Entry{}, ErrUnavailable
	}
	return f.InMemory.Append(ctx, e)
}

// NewLog returns an audit service over a FlakyStore with a silent logger.
func NewLog() (*auditservice.Service, *FlakyStore) {
	st := NewFlakyStore()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return auditservice.New(st, auditservice.WithLogger(logger)), st
}

// Entries returns every stored entry in seq order.
func (f *FlakyStore) Entries() []models.Entry {
	out, _ := f.InMemory.List(context.Background(), models.Filter{}, 0)
	return out
}

// Count returns how many entries match filter.
func (f *FlakyStore) Count(filter models.Filter) int {
	out, _ := f.InMemory.List(context.Background(), filter, 0)
	return len(out)
}
