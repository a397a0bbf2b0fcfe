package service_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"escrowops/internal/audit/audittest"
	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/groups/models"
	"escrowops/internal/groups/service"
	"escrowops/internal/groups/store"
	modmodels "escrowops/internal/moderator/models"
	modservice "escrowops/internal/moderator/service"
	modstore "escrowops/internal/moderator/store"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/testutil"
)

type countingInvalidator struct {
	calls atomic.Int64
}

func (c *countingInvalidator) Invalidate() { c.calls.Add(1) }

type GroupPoolSuite struct {
	suite.Suite
	svc         *service.Service
	store       *store.InMemory
	audit       *audittest.FlakyStore
	invalidator *countingInvalidator
	runner      tx.Runner
	ctx         context.Context
}

func (s *GroupPoolSuite) SetupTest() {
	log, auditStore := audittest.NewLog()
	s.audit = auditStore
	s.store = store.NewInMemory()
	s.invalidator = &countingInvalidator{}
	s.runner = tx.NewShardedRunner(0)
	s.svc = service.New(s.store, s.runner, log, service.WithInvalidator(s.invalidator))
	s.ctx = testutil.WithRequestTime(testutil.ActorContext(testutil.System), testutil.FixedTime)
}

func TestGroupPoolSuite(t *testing.T) {
	suite.Run(t, new(GroupPoolSuite))
}

func (s *GroupPoolSuite) seed(size int) []*models.Group {
	added, err := s.svc.EnsurePool(s.ctx, size)
	s.Require().NoError(err)
	s.Require().Equal(size, added)
	groups, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	return groups
}

func (s *GroupPoolSuite) TestAllocateInOrderThenExhausted() {
	s.seed(3)
	for want := 1; want <= 3; want++ {
		g, err := s.svc.Allocate(s.ctx, fmt.Sprintf("deal-%d", want), testutil.System)
		s.Require().NoError(err)
		s.Equal(want, g.Number)
		s.Equal(models.StatusOccupied, g.Status)
	}

	_, err := s.svc.Allocate(s.ctx, "deal-4", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeExhausted))
	s.Equal(1, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionGroupAllocate, Outcome: auditmodels.OutcomeFailed}))
}

func (s *GroupPoolSuite) TestAllocateSkipsLockedGroups() {
	groups := s.seed(2)
	_, err := s.svc.Lock(s.ctx, groups[0].ID, "maintenance", testutil.Owner)
	s.Require().NoError(err)

	g, err := s.svc.Allocate(s.ctx, "deal-1", testutil.System)
	s.Require().NoError(err)
	s.Equal(2, g.Number)
}

func (s *GroupPoolSuite) TestConcurrentAllocateNeverDoubleBinds() {
	s.seed(5)
	var (
		wg        sync.WaitGroup
		exhausted atomic.Int64
		mu        sync.Mutex
		numbers   = map[int]string{}
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := s.svc.Allocate(s.ctx, fmt.Sprintf("deal-%d", i), testutil.System)
			if dErrors.HasCode(err, dErrors.CodeExhausted) {
				exhausted.Add(1)
				return
			}
			if !s.NoError(err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, dup := numbers[g.Number]
			s.False(dup, "group %d allocated twice", g.Number)
			numbers[g.Number] = g.DealID
		}()
	}
	wg.Wait()

	s.Len(numbers, 5)
	s.Equal(int64(3), exhausted.Load())
}

func (s *GroupPoolSuite) TestConcurrentBindOneWinner() {
	g := s.seed(1)[0]
	var (
		wg        sync.WaitGroup
		wins      atomic.Int64
		conflicts atomic.Int64
	)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.BindDeal(s.ctx, g.ID, fmt.Sprintf("deal-%d", i), testutil.System)
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			default:
				s.Failf("unexpected error", "%v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(1), wins.Load())
	s.Equal(int64(9), conflicts.Load())
	got, err := s.svc.Get(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusOccupied, got.Status)
	s.NotEmpty(got.DealID)
	s.Equal(9, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionGroupBind, Outcome: auditmodels.OutcomeFailed}))
}

func (s *GroupPoolSuite) TestResetIsIdempotentAndAlwaysAudited() {
	g := s.seed(1)[0]
	for range 2 {
		got, err := s.svc.Reset(s.ctx, g.ID, testutil.Owner)
		s.Require().NoError(err)
		s.Equal(models.StatusAvailable, got.Status)
	}
	s.Equal(2, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionGroupReset, Outcome: auditmodels.OutcomeSuccess}))
}

func (s *GroupPoolSuite) TestResetClearsDeal() {
	g := s.seed(1)[0]
	_, err := s.svc.BindDeal(s.ctx, g.ID, "deal-1", testutil.System)
	s.Require().NoError(err)

	got, err := s.svc.Reset(s.ctx, g.ID, testutil.Owner)
	s.Require().NoError(err)
	s.Empty(got.DealID)
	s.Nil(got.OccupiedAt)

	entries := s.audit.Entries()
	s.Contains(entries[len(entries)-1].Detail, "deal deal-1 cleared")

	// The deal id is free again.
	_, err = s.svc.Allocate(s.ctx, "deal-1", testutil.System)
	s.NoError(err)
}

func (s *GroupPoolSuite) TestResetRequiresOwner() {
	g := s.seed(1)[0]
	_, err := s.svc.Reset(s.ctx, g.ID, testutil.Moderator)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.svc.Reset(s.ctx, g.ID, testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(2, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionGroupReset, Outcome: auditmodels.OutcomeDenied}))
}

func (s *GroupPoolSuite) TestLifecycle() {
	g := s.seed(1)[0]
	_, err := s.svc.BindDeal(s.ctx, g.ID, "deal-1", testutil.System)
	s.Require().NoError(err)

	_, err = s.svc.Complete(s.ctx, g.ID, "deal-other", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	got, err := s.svc.Complete(s.ctx, g.ID, "deal-1", testutil.System)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, got.Status)
	s.Empty(got.DealID)

	_, err = s.svc.Allocate(s.ctx, "deal-2", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeExhausted), "completed groups wait for release")

	got, err = s.svc.Release(s.ctx, g.ID, testutil.System)
	s.Require().NoError(err)
	s.Equal(models.StatusAvailable, got.Status)
}

func (s *GroupPoolSuite) TestLockRules() {
	g := s.seed(1)[0]
	_, err := s.svc.Lock(s.ctx, g.ID, " ", testutil.Owner)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.svc.BindDeal(s.ctx, g.ID, "deal-1", testutil.System)
	s.Require().NoError(err)
	_, err = s.svc.Lock(s.ctx, g.ID, "maintenance", testutil.Owner)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.svc.Lock(s.ctx, g.ID, "maintenance", testutil.Moderator)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *GroupPoolSuite) TestUnknownGroup() {
	s.seed(1)
	_, err := s.svc.BindDeal(s.ctx, uuid.New(), "deal-1", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *GroupPoolSuite) TestModeratorCannotSignalLifecycle() {
	g := s.seed(1)[0]
	_, err := s.svc.BindDeal(s.ctx, g.ID, "deal-1", testutil.Moderator)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	_, err = s.svc.Allocate(s.ctx, "deal-1", testutil.Moderator)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *GroupPoolSuite) TestValidationNotAudited() {
	g := s.seed(1)[0]
	before := len(s.audit.Entries())
	_, err := s.svc.BindDeal(s.ctx, g.ID, "", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Len(s.audit.Entries(), before)
}

func (s *GroupPoolSuite) TestAuditFailureRollsBackTransition() {
	g := s.seed(1)[0]
	s.audit.FailAll(true)
	_, err := s.svc.BindDeal(s.ctx, g.ID, "deal-1", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditFailure))

	got, err := s.svc.Get(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAvailable, got.Status)
	s.Empty(got.DealID)
}

func (s *GroupPoolSuite) TestEnsurePoolGrowsOnly() {
	s.seed(3)
	added, err := s.svc.EnsurePool(s.ctx, 3)
	s.Require().NoError(err)
	s.Zero(added)

	added, err = s.svc.EnsurePool(s.ctx, 5)
	s.Require().NoError(err)
	s.Equal(2, added)

	g, err := s.svc.Resolve(s.ctx, 5)
	s.Require().NoError(err)
	s.Equal(models.StatusAvailable, g.Status)
	s.Equal(2, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionGroupSeed}))
}

func (s *GroupPoolSuite) TestMutationsInvalidateStats() {
	g := s.seed(1)[0]
	before := s.invalidator.calls.Load()
	_, err := s.svc.BindDeal(s.ctx, g.ID, "deal-1", testutil.System)
	s.Require().NoError(err)
	s.Equal(before+1, s.invalidator.calls.Load())

	_, err = s.svc.BindDeal(s.ctx, g.ID, "deal-2", testutil.System)
	s.Require().Error(err)
	s.Equal(before+1, s.invalidator.calls.Load())
}

// Pool invariant: Occupied iff a deal is bound, across random operation mixes.
func (s *GroupPoolSuite) TestStatusAndDealStayConsistent() {
	groups := s.seed(4)
	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g := groups[i%len(groups)]
			switch i % 5 {
			case 0:
				_, _ = s.svc.Allocate(s.ctx, fmt.Sprintf("deal-%d", i), testutil.System)
			case 1:
				_, _ = s.svc.BindDeal(s.ctx, g.ID, fmt.Sprintf("deal-%d", i), testutil.System)
			case 2:
				cur, err := s.svc.Get(s.ctx, g.ID)
				if err == nil && cur.DealID != "" {
					_, _ = s.svc.Complete(s.ctx, g.ID, cur.DealID, testutil.System)
				}
			case 3:
				_, _ = s.svc.Release(s.ctx, g.ID, testutil.System)
			case 4:
				_, _ = s.svc.Reset(s.ctx, g.ID, testutil.Owner)
			}
		}()
	}
	wg.Wait()

	all, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	for _, g := range all {
		s.Equal(g.Status == models.StatusOccupied, g.DealID != "", "group %d", g.Number)
		s.Equal(g.Status == models.StatusOccupied, g.OccupiedAt != nil, "group %d", g.Number)
	}
}

// Audit sequence numbers stay gapless when several components append
// concurrently through one log.
func (s *GroupPoolSuite) TestSharedAuditLogIsGapless() {
	log, auditStore := audittest.NewLog()
	groups := service.New(store.NewInMemory(), s.runner, log)
	registry := modservice.New(modstore.NewInMemory(), s.runner, log)
	_, err := groups.EnsurePool(s.ctx, 10)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = groups.Allocate(s.ctx, fmt.Sprintf("deal-%d", i), testutil.System)
		}()
		go func() {
			defer wg.Done()
			_, _ = registry.SetCapability(s.ctx, fmt.Sprintf("user-%d", i), modmodels.CapabilityBan, true, testutil.Owner)
		}()
	}
	wg.Wait()

	entries := auditStore.Entries()
	s.Len(entries, 21)
	for i, e := range entries {
		s.Equal(uint64(i+1), e.Seq)
	}
}

func (s *GroupPoolSuite) TestBindConflictLeavesNoSuccessEntry() {
	groups := s.seed(2)
	_, err := s.svc.BindDeal(s.ctx, groups[0].ID, "deal-1", testutil.System)
	s.Require().NoError(err)

	_, err = s.svc.BindDeal(s.ctx, groups[1].ID, "deal-1", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	s.Equal(1, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionGroupBind, Outcome: auditmodels.OutcomeSuccess}))
	s.Equal(1, s.audit.Count(auditmodels.Filter{
		Action:  auditmodels.ActionGroupBind,
		Target:  groups[1].ID.String(),
		Outcome: auditmodels.OutcomeFailed,
	}))
	got, err := s.svc.Get(s.ctx, groups[1].ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAvailable, got.Status)
}

func (s *GroupPoolSuite) TestFailedSuccessEntryRestoresGroup() {
	g := s.seed(1)[0]
	s.audit.FailWhen(func(e auditmodels.Entry) bool {
		return e.Action == auditmodels.ActionGroupAllocate && e.Outcome == auditmodels.OutcomeSuccess
	})

	_, err := s.svc.Allocate(s.ctx, "deal-1", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditFailure))

	got, err := s.svc.Get(s.ctx, g.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAvailable, got.Status)
	s.Empty(got.DealID)
	s.Zero(s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionGroupAllocate}))
}

func (s *GroupPoolSuite) TestEntriesCarryDealID() {
	g := s.seed(1)[0]
	_, err := s.svc.BindDeal(s.ctx, g.ID, "deal-7", testutil.System)
	s.Require().NoError(err)
	_, err = s.svc.Complete(s.ctx, g.ID, "deal-7", testutil.System)
	s.Require().NoError(err)
	_, err = s.svc.Release(s.ctx, g.ID, testutil.System)
	s.Require().NoError(err)
	_, err = s.svc.Allocate(s.ctx, "deal-8", testutil.System)
	s.Require().NoError(err)
	_, err = s.svc.Reset(s.ctx, g.ID, testutil.Owner)
	s.Require().NoError(err)

	s.Equal(2, s.audit.Count(auditmodels.Filter{DealID: "deal-7"}), "bind and complete")
	s.Equal(2, s.audit.Count(auditmodels.Filter{DealID: "deal-8"}), "allocate and reset")
}
