// Package service implements the PermissionRegistry: the capability matrix
// that gates moderator actions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/moderator/metrics"
	"escrowops/internal/moderator/models"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/sentinel"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/requestcontext"
)

// Store persists moderators.
type Store interface {
	FindByID(ctx context.Context, userID string) (*models.Moderator, error)
	Save(ctx context.Context, m *models.Moderator) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*models.Moderator, error)
}

// AuditLog is the append side of the audit service.
type AuditLog interface {
	Append(ctx context.Context, e auditmodels.Entry) (uint64, error)
}

type Service struct {
	store   Store
	tx      tx.Runner
	audit   AuditLog
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, runner tx.Runner, audit AuditLog, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     runner,
		audit:  audit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lockKey(userID string) string {
	return "moderator:" + userID
}

// Authorize reports whether actorID holds capability. The owner in ctx holds
// every capability; unknown actors hold none. Store errors deny.
func (s *Service) Authorize(ctx context.Context, actorID string, capability models.Capability) bool {
	allowed := s.authorize(ctx, actorID, capability)
	if s.metrics != nil {
		s.metrics.ObserveDecision(string(capability), allowed)
	}
	return allowed
}

func (s *Service) authorize(ctx context.Context, actorID string, capability models.Capability) bool {
	if caller := requestcontext.Actor(ctx); caller.IsOwner() && caller.ID == actorID {
		return true
	}
	m, err := s.store.FindByID(ctx, actorID)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "capability lookup failed",
				"actor_id", actorID,
				"capability", capability,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
		return false
	}
	return m.Capabilities.Has(capability)
}

// SetCapability changes one capability of targetID. Only the owner may call
// it, and never on their own record. Denied and no-op calls are audited too.
// An unknown target is provisioned with every capability false first.
func (s *Service) SetCapability(ctx context.Context, targetID string, capability models.Capability, value bool, requestedBy domain.Actor) (*models.Moderator, error) {
	if err := models.ValidateUserID(targetID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, dErrors.Message(err))
	}
	if err := s.checkWriter(ctx, targetID, auditmodels.ActionPermissionSet, requestedBy); err != nil {
		return nil, err
	}

	var out *models.Moderator
	err := s.tx.RunInTx(ctx, lockKey(targetID), func(ctx context.Context) error {
		m, prev, err := s.loadOrProvision(ctx, targetID)
		if err != nil {
			return err
		}
		previous := m.Capabilities.Has(capability)
		m.Capabilities = m.Capabilities.With(capability, value)
		m.UpdatedAt = requestcontext.Now(ctx)

		if err := s.commit(ctx, prev, m, auditmodels.Entry{
			ActorID: requestedBy.AuditID(),
			Action:  auditmodels.ActionPermissionSet,
			Target:  targetID,
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  fmt.Sprintf("%s=%t (was %t)", capability, value, previous),
		}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		s.observeChange(auditmodels.OutcomeFailed)
		return nil, s.recordFailure(ctx, requestedBy, auditmodels.ActionPermissionSet, targetID, err)
	}
	s.observeChange(auditmodels.OutcomeSuccess)
	s.logger.InfoContext(ctx, "moderator capability set",
		"target", targetID,
		"capability", capability,
		"value", value,
		"requested_by", requestedBy.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return out, nil
}

// UpsertInput is a full moderator record as submitted by the dashboard.
type UpsertInput struct {
	UserID       string
	Username     string
	DisplayName  string
	Capabilities models.Capabilities
}

// Upsert replaces the whole capability set and profile of in.UserID in one
// serialized write. Authorization matches SetCapability.
func (s *Service) Upsert(ctx context.Context, in UpsertInput, requestedBy domain.Actor) (*models.Moderator, error) {
	if err := models.ValidateUserID(in.UserID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, dErrors.Message(err))
	}
	if err := s.checkWriter(ctx, in.UserID, auditmodels.ActionPermissionUpsert, requestedBy); err != nil {
		return nil, err
	}

	var out *models.Moderator
	err := s.tx.RunInTx(ctx, lockKey(in.UserID), func(ctx context.Context) error {
		m, prev, err := s.loadOrProvision(ctx, in.UserID)
		if err != nil {
			return err
		}
		m.Username = in.Username
		m.DisplayName = in.DisplayName
		m.Capabilities = in.Capabilities
		m.UpdatedAt = requestcontext.Now(ctx)

		if err := s.commit(ctx, prev, m, auditmodels.Entry{
			ActorID: requestedBy.AuditID(),
			Action:  auditmodels.ActionPermissionUpsert,
			Target:  in.UserID,
			Outcome: auditmodels.OutcomeSuccess,
			Detail: fmt.Sprintf("Updated permissions: ban=%t, freeze=%t, broadcast=%t, edit_fees=%t",
				in.Capabilities.Ban, in.Capabilities.Freeze, in.Capabilities.Broadcast, in.Capabilities.EditFees),
		}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		s.observeChange(auditmodels.OutcomeFailed)
		return nil, s.recordFailure(ctx, requestedBy, auditmodels.ActionPermissionUpsert, in.UserID, err)
	}
	s.observeChange(auditmodels.OutcomeSuccess)
	return out, nil
}

// List returns every moderator ordered by user id.
func (s *Service) List(ctx context.Context) ([]*models.Moderator, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list moderators")
	}
	return list, nil
}

// RecordDealHandled bumps the deal counter of an existing moderator. Only
// the bot core (system) or the owner may report handled deals.
func (s *Service) RecordDealHandled(ctx context.Context, userID string, requestedBy domain.Actor) (*models.Moderator, error) {
	if err := models.ValidateUserID(userID); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, dErrors.Message(err))
	}
	if !requestedBy.IsOwner() && !requestedBy.IsSystem() {
		return nil, s.deny(ctx, requestedBy, auditmodels.ActionDealHandled, userID, "only the bot core or owner may record handled deals")
	}

	var out *models.Moderator
	err := s.tx.RunInTx(ctx, lockKey(userID), func(ctx context.Context) error {
		m, err := s.store.FindByID(ctx, userID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "moderator not found")
		}
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load moderator")
		}
		prev := m.Clone()
		m.RecordDeal(requestcontext.Now(ctx))

		if err := s.commit(ctx, prev, m, auditmodels.Entry{
			ActorID: requestedBy.AuditID(),
			Action:  auditmodels.ActionDealHandled,
			Target:  userID,
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  fmt.Sprintf("deals_handled=%d", m.DealsHandled),
		}); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, s.recordFailure(ctx, requestedBy, auditmodels.ActionDealHandled, userID, err)
	}
	return out, nil
}

// Features computes the dashboard feature flags for actor.
func (s *Service) Features(ctx context.Context, actor domain.Actor) (map[models.Feature]bool, error) {
	if actor.IsOwner() {
		return models.Features(true, models.Capabilities{}), nil
	}
	if actor.IsZero() {
		return models.Features(false, models.Capabilities{}), nil
	}
	m, err := s.store.FindByID(ctx, actor.ID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.Features(false, models.Capabilities{}), nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load moderator")
	}
	return models.Features(false, m.Capabilities), nil
}

// checkWriter authorizes a capability write. Denials are audited outside any
// transaction so a later rollback cannot drop them.
func (s *Service) checkWriter(ctx context.Context, targetID, action string, requestedBy domain.Actor) error {
	if !requestedBy.IsOwner() {
		s.observeChange(auditmodels.OutcomeDenied)
		return s.deny(ctx, requestedBy, action, targetID, "only the owner may change moderator capabilities")
	}
	if requestedBy.ID == targetID {
		s.observeChange(auditmodels.OutcomeDenied)
		return s.deny(ctx, requestedBy, action, targetID, "cannot change own capabilities")
	}
	return nil
}

func (s *Service) deny(ctx context.Context, requestedBy domain.Actor, action, target, reason string) error {
	if _, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: requestedBy.AuditID(),
		Action:  action,
		Target:  target,
		Outcome: auditmodels.OutcomeDenied,
		Detail:  reason,
	}); err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "moderator write denied",
		"action", action,
		"target", target,
		"actor_id", requestedBy.AuditID(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.New(dErrors.CodeForbidden, reason)
}

// recordFailure audits a write that failed after authorization and returns
// cause, or the audit failure when the entry cannot be written. It runs
// outside the transaction so a rollback cannot drop it.
func (s *Service) recordFailure(ctx context.Context, requestedBy domain.Actor, action, target string, cause error) error {
	if dErrors.HasCode(cause, dErrors.CodeAuditFailure) {
		return cause
	}
	detail := dErrors.Message(cause)
	if detail == "" {
		detail = string(dErrors.CodeOf(cause))
	}
	if _, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: requestedBy.AuditID(),
		Action:  action,
		Target:  target,
		Outcome: auditmodels.OutcomeFailed,
		Detail:  detail,
	}); err != nil {
		return err
	}
	return cause
}

// loadOrProvision returns the record to mutate and a copy of what is stored
// now, nil when the record is new.
func (s *Service) loadOrProvision(ctx context.Context, userID string) (*models.Moderator, *models.Moderator, error) {
	m, err := s.store.FindByID(ctx, userID)
	if err == nil {
		return m, m.Clone(), nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load moderator")
	}
	m, err = models.NewModerator(userID, requestcontext.Now(ctx))
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeValidation, dErrors.Message(err))
	}
	return m, nil, nil
}

// commit saves m, then writes its audit entry. If the entry cannot be
// written, the stored record goes back to prev.
func (s *Service) commit(ctx context.Context, prev, m *models.Moderator, entry auditmodels.Entry) error {
	if err := s.store.Save(ctx, m); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save moderator")
	}
	if _, err := s.audit.Append(ctx, entry); err != nil {
		s.restore(ctx, m.UserID, prev)
		return err
	}
	return nil
}

// restore undoes a save outside a SQL transaction; inside one the rollback
// already does.
func (s *Service) restore(ctx context.Context, userID string, prev *models.Moderator) {
	if _, ok := tx.From(ctx); ok {
		return
	}
	var err error
	if prev == nil {
		err = s.store.Delete(ctx, userID)
	} else {
		err = s.store.Save(ctx, prev)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: moderator changed without an audit entry",
			"user_id", userID,
			"error", err,
		)
	}
}

func (s *Service) observeChange(outcome auditmodels.Outcome) {
	if s.metrics != nil {
		s.metrics.IncrementChange(string(outcome))
	}
}
