package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"escrowops/internal/audit/audittest"
	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/botconfig/models"
	"escrowops/internal/botconfig/service"
	"escrowops/internal/botconfig/store"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/sentinel"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/testutil"
)

type failingStore struct{}

func (failingStore) Load(context.Context) (*models.Messages, error) {
	return nil, sentinel.ErrUnavailable
}

func (failingStore) Save(context.Context, models.Messages) error {
	return errors.New("bot-config down")
}

type BotConfigSuite struct {
	suite.Suite
	store *store.InMemory
	audit *audittest.FlakyStore
	svc   *service.Service
	ctx   context.Context
}

func (s *BotConfigSuite) SetupTest() {
	s.store = store.NewInMemory()
	log, auditStore := audittest.NewLog()
	s.audit = auditStore
	s.svc = service.New(s.store, tx.NewShardedRunner(0), log)
	s.ctx = testutil.WithRequestTime(testutil.ActorContext(testutil.Owner), testutil.FixedTime)
}

func TestBotConfigSuite(t *testing.T) {
	suite.Run(t, new(BotConfigSuite))
}

func (s *BotConfigSuite) edited() models.Messages {
	m := models.Defaults()
	m.Welcome = "Welcome to the escrow desk"
	return m
}

func (s *BotConfigSuite) TestGetServesDefaultsUntilSaved() {
	m, err := s.svc.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Defaults().Welcome, m.Welcome)
}

func (s *BotConfigSuite) TestOwnerUpdate() {
	saved, err := s.svc.Update(s.ctx, testutil.Owner, s.edited())
	s.Require().NoError(err)
	s.Equal(testutil.FixedTime, saved.UpdatedAt)
	s.Equal(testutil.Owner.ID, saved.UpdatedBy)

	got, err := s.svc.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("Welcome to the escrow desk", got.Welcome)

	entries := s.audit.Entries()
	s.Require().Len(entries, 1)
	s.Equal(auditmodels.ActionBotMessagesUpdate, entries[0].Action)
	s.Equal("bot_configuration", entries[0].Target)
	s.Equal(auditmodels.OutcomeSuccess, entries[0].Outcome)
	s.Equal("Updated welcome, rules, and error messages", entries[0].Detail)
}

func (s *BotConfigSuite) TestModeratorDeniedAndAudited() {
	_, err := s.svc.Update(s.ctx, testutil.Moderator, s.edited())
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Equal(1, s.audit.Count(auditmodels.Filter{Outcome: auditmodels.OutcomeDenied}))

	got, err := s.svc.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Defaults().Welcome, got.Welcome)
}

func (s *BotConfigSuite) TestValidationNotAudited() {
	m := s.edited()
	m.Welcome = ""
	_, err := s.svc.Update(s.ctx, testutil.Moderator, m)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Empty(s.audit.Entries())
}

func (s *BotConfigSuite) TestAuditFailureLeavesMessagesUnchanged() {
	s.audit.FailAll(true)
	_, err := s.svc.Update(s.ctx, testutil.Owner, s.edited())
	s.True(dErrors.HasCode(err, dErrors.CodeAuditFailure))

	got, err := s.svc.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.Defaults().Welcome, got.Welcome)
}

func (s *BotConfigSuite) TestCollaboratorDown() {
	log, _ := audittest.NewLog()
	svc := service.New(failingStore{}, tx.NewShardedRunner(0), log)

	_, err := svc.Get(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	_, err = svc.Update(s.ctx, testutil.Owner, s.edited())
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}
