// Package service implements the FeeConfigStore: the versioned per-network
// fee schedule.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/fees/metrics"
	"escrowops/internal/fees/models"
	modmodels "escrowops/internal/moderator/models"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/sentinel"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/requestcontext"
)

type Store interface {
	Get(ctx context.Context, network string) (*models.FeeRule, error)
	List(ctx context.Context) ([]*models.FeeRule, error)
	Upsert(ctx context.Context, rules ...*models.FeeRule) error
	Delete(ctx context.Context, networks ...string) error
}

type AuditLog interface {
	Append(ctx context.Context, e auditmodels.Entry) (uint64, error)
}

// Authorizer answers capability checks.
type Authorizer interface {
	Authorize(ctx context.Context, actorID string, capability modmodels.Capability) bool
}

// scheduleKey serializes every fee write so version bumps are never lost
// between single and bulk updates.
const scheduleKey = "fees:schedule"

type Service struct {
	store      Store
	tx         tx.Runner
	audit      AuditLog
	authorizer Authorizer
	logger     *slog.Logger
	metrics    *metrics.Metrics
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

func New(store Store, runner tx.Runner, audit AuditLog, authorizer Authorizer, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tx:         runner,
		audit:      audit,
		authorizer: authorizer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RuleInput is a candidate rule before validation.
type RuleInput struct {
	Network       string
	FeePercentage decimal.Decimal
	Gas           models.GasModel
}

// Get returns the rule for network.
func (s *Service) Get(ctx context.Context, network string) (*models.FeeRule, error) {
	r, err := s.store.Get(ctx, models.NormalizeNetwork(network))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no fee rule for network "+network)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee rule")
	}
	return r, nil
}

// ListAll returns every rule ordered by network.
func (s *Service) ListAll(ctx context.Context) ([]*models.FeeRule, error) {
	rules, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fee rules")
	}
	return rules, nil
}

// Update replaces the rule for network. Validation runs before authorization
// and is never audited; denials are.
func (s *Service) Update(ctx context.Context, network string, in RuleInput, requestedBy domain.Actor) (*models.FeeRule, error) {
	in.Network = network
	rules, err := s.validate([]RuleInput{in})
	if err != nil {
		return nil, err
	}
	applied, err := s.apply(ctx, rules, rules[0].Network, requestedBy)
	if err != nil {
		return nil, err
	}
	return applied[0], nil
}

// UpdateMany validates every rule, then replaces them all in one step.
// Readers see either the previous schedule or the new one.
func (s *Service) UpdateMany(ctx context.Context, inputs []RuleInput, requestedBy domain.Actor) ([]*models.FeeRule, error) {
	if len(inputs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one fee rule is required")
	}
	rules, err := s.validate(inputs)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, rules, "fee_configuration", requestedBy)
}

// SeedDefaults installs the default schedule when no rule exists yet.
func (s *Service) SeedDefaults(ctx context.Context) error {
	return s.tx.RunInTx(ctx, scheduleKey, func(ctx context.Context) error {
		existing, err := s.store.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fee rules")
		}
		if len(existing) > 0 {
			return nil
		}
		now := requestcontext.Now(ctx)
		defaults := models.Defaults()
		for _, r := range defaults {
			r.Supersede(nil, domain.SystemActor.ID, now)
		}
		if err := s.store.Upsert(ctx, defaults...); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed fee rules")
		}
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: domain.SystemActor.ID,
			Action:  auditmodels.ActionFeeSeed,
			Target:  "fee_configuration",
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  fmt.Sprintf("Seeded default fees for %d networks", len(defaults)),
		}); err != nil {
			networks := make([]string, 0, len(defaults))
			for _, r := range defaults {
				networks = append(networks, r.Network)
			}
			s.restore(ctx, nil, networks)
			return err
		}
		s.logger.InfoContext(ctx, "default fee schedule seeded", "networks", len(defaults))
		return nil
	})
}

func (s *Service) validate(inputs []RuleInput) ([]*models.FeeRule, error) {
	seen := make(map[string]struct{}, len(inputs))
	rules := make([]*models.FeeRule, 0, len(inputs))
	for _, in := range inputs {
		r, err := models.NewFeeRule(in.Network, in.FeePercentage, in.Gas)
		if err != nil {
			s.observeReject("validation")
			return nil, dErrors.Wrap(err, dErrors.CodeValidation, dErrors.Message(err))
		}
		if _, dup := seen[r.Network]; dup {
			s.observeReject("validation")
			return nil, dErrors.New(dErrors.CodeValidation, "duplicate network "+r.Network)
		}
		seen[r.Network] = struct{}{}
		rules = append(rules, r)
	}
	return rules, nil
}

func (s *Service) canEdit(ctx context.Context, actor domain.Actor) bool {
	if actor.IsOwner() {
		return true
	}
	if actor.IsZero() || actor.IsSystem() {
		return false
	}
	return s.authorizer.Authorize(ctx, actor.ID, modmodels.CapabilityEditFees)
}

func (s *Service) apply(ctx context.Context, rules []*models.FeeRule, target string, requestedBy domain.Actor) ([]*models.FeeRule, error) {
	if !s.canEdit(ctx, requestedBy) {
		s.observeReject("denied")
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: requestedBy.AuditID(),
			Action:  auditmodels.ActionFeeUpdate,
			Target:  target,
			Outcome: auditmodels.OutcomeDenied,
			Detail:  "requires owner or can_edit_fees",
		}); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeForbidden, "editing fees requires the can_edit_fees capability")
	}

	err := s.tx.RunInTx(ctx, scheduleKey, func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		summaries := make([]string, 0, len(rules))
		var (
			replaced []*models.FeeRule
			added    []string
		)
		for _, r := range rules {
			prev, err := s.store.Get(ctx, r.Network)
			if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read fee rule")
			}
			if prev != nil {
				replaced = append(replaced, prev.Clone())
			} else {
				added = append(added, r.Network)
			}
			r.Supersede(prev, requestedBy.ID, now)
			summaries = append(summaries, r.Summary())
		}

		if err := s.store.Upsert(ctx, rules...); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save fee rules")
		}
		detail := summaries[0]
		if len(rules) > 1 {
			detail = fmt.Sprintf("Updated fees for %d networks: %s", len(rules), strings.Join(summaries, "; "))
		}
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: requestedBy.AuditID(),
			Action:  auditmodels.ActionFeeUpdate,
			Target:  target,
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  detail,
		}); err != nil {
			s.restore(ctx, replaced, added)
			return err
		}
		return nil
	})
	if err != nil {
		s.observeReject("failed")
		return nil, s.recordFailure(ctx, requestedBy, target, err)
	}

	for _, r := range rules {
		if s.metrics != nil {
			s.metrics.IncrementUpdate(r.Network)
		}
	}
	s.logger.InfoContext(ctx, "fee schedule updated",
		"networks", len(rules),
		"requested_by", requestedBy.ID,
		"request_id", requestcontext.RequestID(ctx),
	)
	return rules, nil
}

// restore puts back the rules a batch replaced and drops the ones it added.
// Inside a SQL transaction the rollback does this.
func (s *Service) restore(ctx context.Context, replaced []*models.FeeRule, added []string) {
	if _, ok := tx.From(ctx); ok {
		return
	}
	err := s.store.Upsert(ctx, replaced...)
	if err == nil {
		err = s.store.Delete(ctx, added...)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: fee schedule changed without an audit entry", "error", err)
	}
}

// recordFailure audits an update that failed after authorization, outside
// the rolled back transaction. An audit failure is returned as is.
func (s *Service) recordFailure(ctx context.Context, requestedBy domain.Actor, target string, cause error) error {
	if dErrors.HasCode(cause, dErrors.CodeAuditFailure) {
		return cause
	}
	detail := dErrors.Message(cause)
	if detail == "" {
		detail = string(dErrors.CodeOf(cause))
	}
	if _, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: requestedBy.AuditID(),
		Action:  auditmodels.ActionFeeUpdate,
		Target:  target,
		Outcome: auditmodels.OutcomeFailed,
		Detail:  detail,
	}); err != nil {
		return err
	}
	return cause
}

func (s *Service) observeReject(reason string) {
	if s.metrics != nil {
		s.metrics.IncrementReject(reason)
	}
}
