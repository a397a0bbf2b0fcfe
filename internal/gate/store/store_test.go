package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"escrowops/internal/gate/models"
	"escrowops/pkg/platform/sentinel"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type InMemoryIntentSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *InMemoryIntentSuite) SetupTest() {
	s.store = NewInMemory(time.Hour)
	s.ctx = context.Background()
}

func TestInMemoryIntentSuite(t *testing.T) {
	suite.Run(t, new(InMemoryIntentSuite))
}

func (s *InMemoryIntentSuite) TestCreateFind() {
	intent := models.NewKeyExport("ke_1", "owner-1", "hash", now, time.Minute)
	s.Require().NoError(s.store.Create(s.ctx, intent))
	s.True(errors.Is(s.store.Create(s.ctx, intent), sentinel.ErrConflict))

	got, err := s.store.Find(s.ctx, "ke_1")
	s.Require().NoError(err)
	s.Equal("owner-1", got.RequestedBy)

	got.State = models.StateRejected
	again, err := s.store.Find(s.ctx, "ke_1")
	s.Require().NoError(err)
	s.Equal(models.StateRequested, again.State, "callers get copies")

	_, err = s.store.Find(s.ctx, "missing")
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *InMemoryIntentSuite) TestSwapIsCompareAndSet() {
	intent := models.NewKeyExport("ke_1", "owner-1", "hash", now, time.Minute)
	s.Require().NoError(s.store.Create(s.ctx, intent))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := intent.Clone()
			_ = next.Confirm(now)
			if err := s.store.Swap(s.ctx, models.StateRequested, next); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				s.True(errors.Is(err, sentinel.ErrConflict))
			}
		}()
	}
	wg.Wait()
	s.Equal(1, wins)

	missing := models.NewKeyExport("nope", "owner-1", "hash", now, time.Minute)
	s.True(errors.Is(s.store.Swap(s.ctx, models.StateRequested, missing), sentinel.ErrNotFound))
}

func (s *InMemoryIntentSuite) TestListExpired() {
	early := models.NewKeyExport("a", "owner-1", "hash", now, time.Minute)
	late := models.NewKeyExport("b", "owner-1", "hash", now, time.Hour)
	done := models.NewKeyExport("c", "owner-1", "hash", now, time.Second)
	s.Require().NoError(s.store.Create(s.ctx, late))
	s.Require().NoError(s.store.Create(s.ctx, early))
	s.Require().NoError(s.store.Create(s.ctx, done))
	settled := done.Clone()
	s.Require().NoError(settled.Reject("no", now))
	s.Require().NoError(s.store.Swap(s.ctx, models.StateRequested, settled))

	expired, err := s.store.ListExpired(s.ctx, now.Add(2*time.Minute))
	s.Require().NoError(err)
	s.Require().Len(expired, 1)
	s.Equal("a", expired[0].ID)

	expired, err = s.store.ListExpired(s.ctx, now.Add(2*time.Hour))
	s.Require().NoError(err)
	s.Len(expired, 2)
}

func (s *InMemoryIntentSuite) TestSettledIntentsEvictedAfterRetention() {
	pending := models.NewKeyExport("a", "owner-1", "hash", now, 3*time.Hour)
	done := models.NewKeyExport("b", "owner-1", "hash", now, time.Minute)
	s.Require().NoError(s.store.Create(s.ctx, pending))
	s.Require().NoError(s.store.Create(s.ctx, done))
	settled := done.Clone()
	s.Require().NoError(settled.Reject("no", now))
	s.Require().NoError(s.store.Swap(s.ctx, models.StateRequested, settled))

	_, err := s.store.ListExpired(s.ctx, now.Add(30*time.Minute))
	s.Require().NoError(err)
	_, err = s.store.Find(s.ctx, "b")
	s.Require().NoError(err, "kept until retention passes")

	_, err = s.store.ListExpired(s.ctx, now.Add(time.Hour))
	s.Require().NoError(err)
	_, err = s.store.Find(s.ctx, "b")
	s.True(errors.Is(err, sentinel.ErrNotFound))
	_, err = s.store.Find(s.ctx, "a")
	s.NoError(err, "pending intents are never evicted")
}

func (s *InMemoryIntentSuite) TestListStale() {
	for i, id := range []string{"a", "b", "c"} {
		intent := models.NewKeyExport(id, "owner-1", "hash", now, time.Hour)
		s.Require().NoError(s.store.Create(s.ctx, intent))
		if id == "c" {
			continue
		}
		next := intent.Clone()
		s.Require().NoError(next.Confirm(now.Add(time.Duration(i) * time.Minute)))
		s.Require().NoError(s.store.Swap(s.ctx, models.StateRequested, next))
	}

	stale, err := s.store.ListStale(s.ctx, now.Add(30*time.Second))
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal("a", stale[0].ID)

	stale, err = s.store.ListStale(s.ctx, now.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().Len(stale, 2)
	s.Equal("a", stale[0].ID)
	s.Equal("b", stale[1].ID)
}
