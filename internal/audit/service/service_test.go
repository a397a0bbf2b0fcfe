package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"escrowops/internal/audit/audittest"
	"escrowops/internal/audit/models"
	"escrowops/internal/audit/service"
	auditstore "escrowops/internal/audit/store"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/requestcontext"
)

type AuditServiceSuite struct {
	suite.Suite
	svc   *service.Service
	store *audittest.FlakyStore
	ctx   context.Context
}

func (s *AuditServiceSuite) SetupTest() {
	s.svc, s.store = audittest.NewLog()
	ctx := requestcontext.WithRequestID(context.Background(), "req-9")
	ctx = requestcontext.WithClientMetadata(ctx, "10.1.1.1", "Chrome 120.0 / Windows 10")
	s.ctx = requestcontext.WithTime(ctx, time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC))
}

func TestAuditServiceSuite(t *testing.T) {
	suite.Run(t, new(AuditServiceSuite))
}

func (s *AuditServiceSuite) append(actor, action string, outcome models.Outcome) uint64 {
	seq, err := s.svc.Append(s.ctx, models.Entry{ActorID: actor, Action: action, Outcome: outcome})
	s.Require().NoError(err)
	return seq
}

func (s *AuditServiceSuite) TestAppendFillsRequestMetadata() {
	seq := s.append("owner-1", models.ActionGroupReset, models.OutcomeSuccess)
	s.Equal(uint64(1), seq)

	e := s.store.Entries()[0]
	s.Equal("req-9", e.RequestID)
	s.Equal("10.1.1.1", e.ClientIP)
	s.Equal("Chrome 120.0 / Windows 10", e.UserAgent)
	s.Equal(time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC), e.Timestamp)
}

func (s *AuditServiceSuite) TestAppendFailuresAreAuditFailures() {
	s.Run("store failure", func() {
		s.store.FailAll(true)
		defer s.store.FailAll(false)
		_, err := s.svc.Append(s.ctx, models.Entry{ActorID: "a", Action: "x", Outcome: models.OutcomeSuccess})
		s.True(dErrors.HasCode(err, dErrors.CodeAuditFailure))
	})

	s.Run("invalid entry", func() {
		_, err := s.svc.Append(s.ctx, models.Entry{Action: "x", Outcome: models.OutcomeSuccess})
		s.True(dErrors.HasCode(err, dErrors.CodeAuditFailure))
	})

	s.Empty(s.store.Entries())
}

// Sequence numbers stay gapless when many components append at once.
func (s *AuditServiceSuite) TestConcurrentAppendsFromManyComponents() {
	components := []string{models.ActionGroupBind, models.ActionFeeUpdate, models.ActionPermissionSet, models.ActionPayoutConfirm}
	const perComponent = 100

	var wg sync.WaitGroup
	seqs := make(chan uint64, len(components)*perComponent)
	for _, action := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perComponent {
				seq, err := s.svc.Append(s.ctx, models.Entry{
					ActorID: "actor", Action: action, Target: fmt.Sprint(i), Outcome: models.OutcomeSuccess,
				})
				s.NoError(err)
				seqs <- seq
			}
		}()
	}
	wg.Wait()
	close(seqs)

	seen := make(map[uint64]bool)
	for seq := range seqs {
		s.False(seen[seq], "duplicate seq %d", seq)
		seen[seq] = true
	}
	total := uint64(len(components) * perComponent)
	for seq := uint64(1); seq <= total; seq++ {
		s.True(seen[seq], "missing seq %d", seq)
	}

	entries := s.store.Entries()
	for i := 1; i < len(entries); i++ {
		s.Equal(entries[i-1].Seq+1, entries[i].Seq)
	}
}

func (s *AuditServiceSuite) TestQuery() {
	for i := range 10 {
		outcome := models.OutcomeSuccess
		if i%2 == 1 {
			outcome = models.OutcomeDenied
		}
		s.append("owner-1", models.ActionGroupLock, outcome)
	}

	s.Run("filters by outcome in seq order", func() {
		got, err := s.svc.Collect(s.ctx, models.Filter{Outcome: models.OutcomeDenied})
		s.Require().NoError(err)
		s.Len(got, 5)
		for i := 1; i < len(got); i++ {
			s.Less(got[i-1].Seq, got[i].Seq)
		}
	})

	s.Run("respects limit and after seq", func() {
		got, err := s.svc.Collect(s.ctx, models.Filter{AfterSeq: 3, Limit: 4})
		s.Require().NoError(err)
		s.Require().Len(got, 4)
		s.Equal(uint64(4), got[0].Seq)
		s.Equal(uint64(7), got[3].Seq)
	})
}

type countingStore struct {
	*auditstore.InMemory
	lists int
}

func (c *countingStore) List(ctx context.Context, f models.Filter, limit int) ([]models.Entry, error) {
	c.lists++
	return c.InMemory.List(ctx, f, limit)
}

func (s *AuditServiceSuite) TestQueryIsLazy() {
	st := &countingStore{InMemory: auditstore.NewInMemory()}
	svc := service.New(st, service.WithPageSize(2))
	for range 10 {
		_, err := svc.Append(s.ctx, models.Entry{ActorID: "a", Action: "x", Outcome: models.OutcomeSuccess})
		s.Require().NoError(err)
	}

	var got []uint64
	for e, err := range svc.Query(s.ctx, models.Filter{}) {
		s.Require().NoError(err)
		got = append(got, e.Seq)
		if len(got) == 3 {
			break
		}
	}
	s.Equal([]uint64{1, 2, 3}, got)
	s.Equal(2, st.lists, "only the pages needed were fetched")

	all, err := svc.Collect(s.ctx, models.Filter{})
	s.Require().NoError(err)
	s.Len(all, 10)
}

func (s *AuditServiceSuite) TestLastSeq() {
	s.append("a", "x", models.OutcomeSuccess)
	s.append("a", "y", models.OutcomeFailed)
	seq, err := s.svc.LastSeq(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), seq)
}
