package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"escrowops/internal/audit/audittest"
	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/moderator/models"
	"escrowops/internal/moderator/service"
	"escrowops/internal/moderator/store"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/testutil"
)

type PermissionRegistrySuite struct {
	suite.Suite
	svc   *service.Service
	store *store.InMemory
	audit *audittest.FlakyStore
	ctx   context.Context
}

func (s *PermissionRegistrySuite) SetupTest() {
	log, auditStore := audittest.NewLog()
	s.audit = auditStore
	s.store = store.NewInMemory()
	s.svc = service.New(s.store, tx.NewShardedRunner(0), log)
	s.ctx = testutil.WithRequestTime(testutil.ActorContext(testutil.Owner), testutil.FixedTime)
}

func TestPermissionRegistrySuite(t *testing.T) {
	suite.Run(t, new(PermissionRegistrySuite))
}

func (s *PermissionRegistrySuite) TestSetThenAuthorize() {
	s.False(s.svc.Authorize(s.ctx, "42", models.CapabilityBan))

	m, err := s.svc.SetCapability(s.ctx, "42", models.CapabilityBan, true, testutil.Owner)
	s.Require().NoError(err)
	s.True(m.Capabilities.Ban)
	s.Equal(testutil.FixedTime, m.CreatedAt)

	s.True(s.svc.Authorize(s.ctx, "42", models.CapabilityBan))
	s.False(s.svc.Authorize(s.ctx, "42", models.CapabilityFreeze))
}

func (s *PermissionRegistrySuite) TestSettingSameValueTwiceAuditsBoth() {
	for range 2 {
		_, err := s.svc.SetCapability(s.ctx, "42", models.CapabilityBan, true, testutil.Owner)
		s.Require().NoError(err)
	}

	s.Equal(2, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionPermissionSet, Target: "42", Outcome: auditmodels.OutcomeSuccess}))
	list, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(models.Capabilities{Ban: true}, list[0].Capabilities)
}

func (s *PermissionRegistrySuite) TestModeratorCannotChangeCapabilities() {
	_, err := s.svc.SetCapability(s.ctx, "42", models.CapabilityBan, true, testutil.Owner)
	s.Require().NoError(err)
	mod := domain.Actor{ID: "42", Role: domain.RoleModerator}

	s.Run("own record", func() {
		_, err := s.svc.SetCapability(s.ctx, "42", models.CapabilityEditFees, true, mod)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.False(s.svc.Authorize(s.ctx, "42", models.CapabilityEditFees))
	})

	s.Run("someone else", func() {
		_, err := s.svc.SetCapability(s.ctx, "43", models.CapabilityBan, true, mod)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.False(s.svc.Authorize(s.ctx, "43", models.CapabilityBan))
	})

	s.Equal(2, s.audit.Count(auditmodels.Filter{Actor: "42", Outcome: auditmodels.OutcomeDenied}))
}

func (s *PermissionRegistrySuite) TestOwnerCannotEditSelf() {
	_, err := s.svc.SetCapability(s.ctx, testutil.Owner.ID, models.CapabilityBan, true, testutil.Owner)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(1, s.audit.Count(auditmodels.Filter{Outcome: auditmodels.OutcomeDenied}))
}

func (s *PermissionRegistrySuite) TestOwnerInContextHoldsEverything() {
	for _, c := range models.AllCapabilities {
		s.True(s.svc.Authorize(s.ctx, testutil.Owner.ID, c))
	}
	modCtx := testutil.ActorContext(testutil.Moderator)
	s.False(s.svc.Authorize(modCtx, testutil.Owner.ID, models.CapabilityBan))
}

func (s *PermissionRegistrySuite) TestValidationIsNotAudited() {
	_, err := s.svc.SetCapability(s.ctx, "", models.CapabilityBan, true, testutil.Owner)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.audit.Entries())
}

func (s *PermissionRegistrySuite) TestAuditFailureLeavesStateUnchanged() {
	_, err := s.svc.SetCapability(s.ctx, "42", models.CapabilityFreeze, true, testutil.Owner)
	s.Require().NoError(err)

	s.audit.FailAll(true)
	_, err = s.svc.SetCapability(s.ctx, "42", models.CapabilityFreeze, false, testutil.Owner)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditFailure))
	s.True(s.svc.Authorize(s.ctx, "42", models.CapabilityFreeze))

	_, err = s.svc.SetCapability(s.ctx, "42", models.CapabilityBan, true, testutil.Moderator)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditFailure), "a denial that cannot be audited surfaces the audit failure")
}

func (s *PermissionRegistrySuite) TestConcurrentWritesKeepWholeSets() {
	var wg sync.WaitGroup
	for _, c := range models.AllCapabilities {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.SetCapability(s.ctx, "42", c, true, testutil.Owner)
			s.NoError(err)
		}()
	}
	wg.Wait()

	for _, c := range models.AllCapabilities {
		s.True(s.svc.Authorize(s.ctx, "42", c), "lost update on %s", c)
	}
	s.Equal(len(models.AllCapabilities), s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionPermissionSet}))
}

func (s *PermissionRegistrySuite) TestUpsert() {
	in := service.UpsertInput{
		UserID:       "42",
		Username:     "alice",
		DisplayName:  "Alice",
		Capabilities: models.Capabilities{Ban: true, EditFees: true},
	}
	m, err := s.svc.Upsert(s.ctx, in, testutil.Owner)
	s.Require().NoError(err)
	s.Equal("alice", m.Username)

	entries := s.audit.Entries()
	s.Require().Len(entries, 1)
	s.Equal("Updated permissions: ban=true, freeze=false, broadcast=false, edit_fees=true", entries[0].Detail)
	s.Equal("req-test", entries[0].RequestID)

	in.Capabilities = models.Capabilities{}
	m, err = s.svc.Upsert(s.ctx, in, testutil.Owner)
	s.Require().NoError(err)
	s.Equal(models.Capabilities{}, m.Capabilities)
	s.Equal(testutil.FixedTime, m.CreatedAt)

	_, err = s.svc.Upsert(s.ctx, in, testutil.Moderator)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *PermissionRegistrySuite) TestRecordDealHandled() {
	_, err := s.svc.RecordDealHandled(s.ctx, "42", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = s.svc.SetCapability(s.ctx, "42", models.CapabilityBan, true, testutil.Owner)
	s.Require().NoError(err)

	for i := 1; i <= 3; i++ {
		m, err := s.svc.RecordDealHandled(s.ctx, "42", testutil.System)
		s.Require().NoError(err)
		s.Equal(uint64(i), m.DealsHandled)
	}

	_, err = s.svc.RecordDealHandled(s.ctx, "42", testutil.Moderator)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(1, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionDealHandled, Outcome: auditmodels.OutcomeDenied}))
}

func (s *PermissionRegistrySuite) TestFeatures() {
	f, err := s.svc.Features(s.ctx, testutil.Owner)
	s.Require().NoError(err)
	s.True(f[models.FeatureExportKeys])

	f, err = s.svc.Features(s.ctx, testutil.Moderator)
	s.Require().NoError(err)
	s.False(f[models.FeatureBanUsers])

	_, err = s.svc.SetCapability(s.ctx, testutil.Moderator.ID, models.CapabilityEditFees, true, testutil.Owner)
	s.Require().NoError(err)
	f, err = s.svc.Features(s.ctx, testutil.Moderator)
	s.Require().NoError(err)
	s.True(f[models.FeatureEditFees])
	s.False(f[models.FeatureManualPayout])
}

func (s *PermissionRegistrySuite) TestListOrdered() {
	for i := 5; i > 0; i-- {
		_, err := s.svc.SetCapability(s.ctx, fmt.Sprintf("user-%d", i), models.CapabilityBan, true, testutil.Owner)
		s.Require().NoError(err)
	}
	list, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 5)
	s.Equal("user-1", list[0].UserID)
	s.Equal("user-5", list[4].UserID)
}

// brokenStore reads normally but refuses every write.
type brokenStore struct {
	*store.InMemory
}

func (brokenStore) Save(context.Context, *models.Moderator) error {
	return errors.New("connection reset")
}

func (s *PermissionRegistrySuite) TestStoreFailureAfterAuthorizationIsAudited() {
	log, auditStore := audittest.NewLog()
	svc := service.New(brokenStore{store.NewInMemory()}, tx.NewShardedRunner(0), log)

	_, err := svc.SetCapability(s.ctx, "42", models.CapabilityBan, true, testutil.Owner)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	_, err = svc.Upsert(s.ctx, service.UpsertInput{UserID: "43"}, testutil.Owner)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	s.Equal(1, auditStore.Count(auditmodels.Filter{Action: auditmodels.ActionPermissionSet, Target: "42", Outcome: auditmodels.OutcomeFailed}))
	s.Equal(1, auditStore.Count(auditmodels.Filter{Action: auditmodels.ActionPermissionUpsert, Target: "43", Outcome: auditmodels.OutcomeFailed}))
	s.Zero(auditStore.Count(auditmodels.Filter{Outcome: auditmodels.OutcomeSuccess}), "an unsaved change must not be logged as applied")
}

func (s *PermissionRegistrySuite) TestAuditFailureDropsProvisionedModerator() {
	s.audit.FailAll(true)
	_, err := s.svc.SetCapability(s.ctx, "77", models.CapabilityBan, true, testutil.Owner)
	s.True(dErrors.HasCode(err, dErrors.CodeAuditFailure))

	list, err := s.svc.List(s.ctx)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *PermissionRegistrySuite) TestUnknownModeratorDealIsAuditedAsFailed() {
	_, err := s.svc.RecordDealHandled(s.ctx, "ghost", testutil.System)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	s.Equal(1, s.audit.Count(auditmodels.Filter{Action: auditmodels.ActionDealHandled, Target: "ghost", Outcome: auditmodels.OutcomeFailed}))
}
