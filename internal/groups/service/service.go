// Package service implements the GroupPool: the fixed pool of escrow groups
// and their lifecycle.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/groups/metrics"
	"escrowops/internal/groups/models"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/sentinel"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/requestcontext"
)

type Store interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Group, error)
	FindByNumber(ctx context.Context, number int) (*models.Group, error)
	List(ctx context.Context) ([]*models.Group, error)
	Save(ctx context.Context, g *models.Group) error
	Insert(ctx context.Context, groups ...*models.Group) (int, error)
}

type AuditLog interface {
	Append(ctx context.Context, e auditmodels.Entry) (uint64, error)
}

// Invalidator is told when pool state changed. DashboardStats implements it.
type Invalidator interface {
	Invalidate()
}

type Service struct {
	store       Store
	tx          tx.Runner
	audit       AuditLog
	invalidator Invalidator
	logger      *slog.Logger
	metrics     *metrics.Metrics
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

func WithInvalidator(inv Invalidator) Option {
	return func(s *Service) {
		s.invalidator = inv
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

func lockKey(id uuid.UUID) string {
	return "group:" + id.String()
}

const poolKey = "groups:pool"

// errCandidateTaken marks an allocation candidate another caller won.
var errCandidateTaken = errors.New("candidate taken")

// List returns the pool ordered by group number.
func (s *Service) List(ctx context.Context) ([]*models.Group, error) {
	groups, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list groups")
	}
	return groups, nil
}

// Get returns one group.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Group, error) {
	g, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return g, nil
}

// Resolve finds a group by number, for callers that only know the chat.
func (s *Service) Resolve(ctx context.Context, number int) (*models.Group, error) {
	g, err := s.store.FindByNumber(ctx, number)
	if err != nil {
		return nil, translate(err)
	}
	return g, nil
}

// Allocate binds dealID to the lowest-numbered Available group. Candidates
// are tried in order, each under its own group lock and re-checked there;
// a candidate lost to a concurrent caller moves on to the next one.
func (s *Service) Allocate(ctx context.Context, dealID string, requestedBy domain.Actor) (*models.Group, error) {
	if err := models.ValidateDealID(dealID); err != nil {
		return nil, validation(err)
	}
	if err := s.requireLifecycleCaller(ctx, auditmodels.ActionGroupAllocate, dealID, requestedBy); err != nil {
		return nil, err
	}

	groups, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list groups")
	}
	for _, candidate := range groups {
		if candidate.Status != models.StatusAvailable {
			continue
		}
		var bound *models.Group
		err := s.tx.RunInTx(ctx, lockKey(candidate.ID), func(ctx context.Context) error {
			g, err := s.store.FindByID(ctx, candidate.ID)
			if err != nil {
				return translate(err)
			}
			if g.Status != models.StatusAvailable {
				return errCandidateTaken
			}
			prev := g.Clone()
			if err := g.Bind(dealID, requestcontext.Now(ctx)); err != nil {
				return err
			}
			if err := s.store.Save(ctx, g); err != nil {
				return translate(err)
			}
			if err := s.appendSuccess(ctx, auditmodels.ActionGroupAllocate, g, dealID, requestedBy,
				fmt.Sprintf("deal %s allocated to %s", dealID, g.Label())); err != nil {
				s.restore(ctx, prev)
				return err
			}
			bound = g
			return nil
		})
		if errors.Is(err, errCandidateTaken) {
			if s.metrics != nil {
				s.metrics.IncrementAllocationRetry()
			}
			continue
		}
		if err != nil {
			return nil, s.recordFailure(ctx, auditmodels.ActionGroupAllocate, candidate.ID.String(), dealID, requestedBy, err)
		}
		s.changed(ctx, auditmodels.ActionGroupAllocate, bound)
		return bound, nil
	}

	if s.metrics != nil {
		s.metrics.IncrementExhausted()
	}
	return nil, s.recordFailure(ctx, auditmodels.ActionGroupAllocate, "group_pool", dealID, requestedBy,
		dErrors.New(dErrors.CodeExhausted, "no available escrow group"))
}

// BindDeal moves a specific group from Available to Occupied.
func (s *Service) BindDeal(ctx context.Context, groupID uuid.UUID, dealID string, requestedBy domain.Actor) (*models.Group, error) {
	if err := models.ValidateDealID(dealID); err != nil {
		return nil, validation(err)
	}
	if err := s.requireLifecycleCaller(ctx, auditmodels.ActionGroupBind, groupID.String(), requestedBy); err != nil {
		return nil, err
	}
	return s.transition(ctx, groupID, dealID, auditmodels.ActionGroupBind, requestedBy, func(ctx context.Context, g *models.Group) (string, error) {
		if err := g.Bind(dealID, requestcontext.Now(ctx)); err != nil {
			return "", err
		}
		return fmt.Sprintf("deal %s bound to %s", dealID, g.Label()), nil
	})
}

// Complete records settlement of dealID: Occupied -> Completed.
func (s *Service) Complete(ctx context.Context, groupID uuid.UUID, dealID string, requestedBy domain.Actor) (*models.Group, error) {
	if err := models.ValidateDealID(dealID); err != nil {
		return nil, validation(err)
	}
	if err := s.requireLifecycleCaller(ctx, auditmodels.ActionGroupComplete, groupID.String(), requestedBy); err != nil {
		return nil, err
	}
	return s.transition(ctx, groupID, dealID, auditmodels.ActionGroupComplete, requestedBy, func(ctx context.Context, g *models.Group) (string, error) {
		if err := g.Complete(dealID, requestcontext.Now(ctx)); err != nil {
			return "", err
		}
		return fmt.Sprintf("deal %s completed in %s", dealID, g.Label()), nil
	})
}

// Release returns a Completed group to the pool.
func (s *Service) Release(ctx context.Context, groupID uuid.UUID, requestedBy domain.Actor) (*models.Group, error) {
	if err := s.requireLifecycleCaller(ctx, auditmodels.ActionGroupRelease, groupID.String(), requestedBy); err != nil {
		return nil, err
	}
	return s.transition(ctx, groupID, "", auditmodels.ActionGroupRelease, requestedBy, func(ctx context.Context, g *models.Group) (string, error) {
		if err := g.Release(requestcontext.Now(ctx)); err != nil {
			return "", err
		}
		return g.Label() + " released", nil
	})
}

// Reset forces a group back to Available from any status. It is idempotent
// and every call is audited. Owner only.
func (s *Service) Reset(ctx context.Context, groupID uuid.UUID, requestedBy domain.Actor) (*models.Group, error) {
	if err := s.requireOwner(ctx, auditmodels.ActionGroupReset, groupID.String(), requestedBy); err != nil {
		return nil, err
	}
	return s.transition(ctx, groupID, "", auditmodels.ActionGroupReset, requestedBy, func(ctx context.Context, g *models.Group) (string, error) {
		detail := fmt.Sprintf("%s reset from %s", g.Label(), g.Status)
		if g.DealID != "" {
			detail += ", deal " + g.DealID + " cleared"
		}
		g.Reset(requestcontext.Now(ctx))
		return detail, nil
	})
}

// Lock places an owner hold on an Available or Completed group.
func (s *Service) Lock(ctx context.Context, groupID uuid.UUID, reason string, requestedBy domain.Actor) (*models.Group, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "lock reason is required")
	}
	if err := s.requireOwner(ctx, auditmodels.ActionGroupLock, groupID.String(), requestedBy); err != nil {
		return nil, err
	}
	return s.transition(ctx, groupID, "", auditmodels.ActionGroupLock, requestedBy, func(ctx context.Context, g *models.Group) (string, error) {
		if err := g.Lock(reason, requestcontext.Now(ctx)); err != nil {
			return "", err
		}
		return g.Label() + " locked: " + reason, nil
	})
}

// EnsurePool makes sure groups 1..size exist. Existing groups are never
// touched, so the call is safe on every start.
func (s *Service) EnsurePool(ctx context.Context, size int) (int, error) {
	if size < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, "pool size must be positive")
	}
	var added int
	err := s.tx.RunInTx(ctx, poolKey, func(ctx context.Context) error {
		existing, err := s.store.List(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list groups")
		}
		highest := 0
		for _, g := range existing {
			highest = max(highest, g.Number)
		}
		if highest >= size {
			return nil
		}
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: domain.SystemActor.ID,
			Action:  auditmodels.ActionGroupSeed,
			Target:  "group_pool",
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  fmt.Sprintf("seeded groups %d..%d", highest+1, size),
		}); err != nil {
			return err
		}
		added, err = s.store.Insert(ctx, models.NewPool(highest+1, size, requestcontext.Now(ctx))...)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed groups")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if added > 0 {
		s.logger.InfoContext(ctx, "group pool seeded", "added", added, "size", size)
		if s.invalidator != nil {
			s.invalidator.Invalidate()
		}
	}
	return added, nil
}

type mutation func(ctx context.Context, g *models.Group) (detail string, err error)

// transition runs mutate on one group under its lock, saves it and audits
// the result in the same transaction. The success entry is written only once
// the store accepted the change. Failures after authorization are audited
// outside the transaction so a rollback cannot drop them. dealID, when empty,
// defaults to the deal bound before the mutation.
func (s *Service) transition(ctx context.Context, groupID uuid.UUID, dealID, action string, requestedBy domain.Actor, mutate mutation) (*models.Group, error) {
	var out *models.Group
	err := s.tx.RunInTx(ctx, lockKey(groupID), func(ctx context.Context) error {
		g, err := s.store.FindByID(ctx, groupID)
		if err != nil {
			return translate(err)
		}
		prev := g.Clone()
		if dealID == "" {
			dealID = g.DealID
		}
		detail, err := mutate(ctx, g)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return validation(err)
			}
			return err
		}
		if err := s.store.Save(ctx, g); err != nil {
			return translate(err)
		}
		if err := s.appendSuccess(ctx, action, g, dealID, requestedBy, detail); err != nil {
			s.restore(ctx, prev)
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, s.recordFailure(ctx, action, groupID.String(), dealID, requestedBy, err)
	}
	s.changed(ctx, action, out)
	return out, nil
}

func (s *Service) appendSuccess(ctx context.Context, action string, g *models.Group, dealID string, requestedBy domain.Actor, detail string) error {
	_, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: requestedBy.AuditID(),
		Action:  action,
		Target:  g.ID.String(),
		DealID:  dealID,
		Outcome: auditmodels.OutcomeSuccess,
		Detail:  detail,
	})
	return err
}

// restore puts prev back after its change was saved but could not be
// audited. A SQL transaction rolls the change back by itself.
func (s *Service) restore(ctx context.Context, prev *models.Group) {
	if _, ok := tx.From(ctx); ok {
		return
	}
	if err := s.store.Save(ctx, prev); err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: group changed without an audit entry",
			"group", prev.Number,
			"error", err,
		)
	}
}

// recordFailure audits a failed operation and returns cause, or the audit
// failure when the entry itself cannot be written.
func (s *Service) recordFailure(ctx context.Context, action, target, dealID string, requestedBy domain.Actor, cause error) error {
	if s.metrics != nil {
		s.metrics.ObserveTransition(action, string(auditmodels.OutcomeFailed))
	}
	if dErrors.HasCode(cause, dErrors.CodeAuditFailure) {
		return cause
	}
	if _, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: requestedBy.AuditID(),
		Action:  action,
		Target:  target,
		DealID:  dealID,
		Outcome: auditmodels.OutcomeFailed,
		Detail:  failureDetail(cause),
	}); err != nil {
		return err
	}
	return cause
}

func failureDetail(err error) string {
	if msg := dErrors.Message(err); msg != "" {
		return msg
	}
	return string(dErrors.CodeOf(err))
}

func (s *Service) changed(ctx context.Context, action string, g *models.Group) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(action, string(auditmodels.OutcomeSuccess))
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate()
	}
	s.logger.InfoContext(ctx, "group transition",
		"action", action,
		"group", g.Number,
		"status", g.Status,
		"deal_id", g.DealID,
		"request_id", requestcontext.RequestID(ctx),
	)
}

// requireLifecycleCaller admits the bot core and the owner.
func (s *Service) requireLifecycleCaller(ctx context.Context, action, target string, requestedBy domain.Actor) error {
	if requestedBy.IsOwner() || requestedBy.IsSystem() {
		return nil
	}
	return s.deny(ctx, action, target, requestedBy, "group lifecycle signals come from the bot core or owner")
}

func (s *Service) requireOwner(ctx context.Context, action, target string, requestedBy domain.Actor) error {
	if requestedBy.IsOwner() {
		return nil
	}
	return s.deny(ctx, action, target, requestedBy, "owner only")
}

func (s *Service) deny(ctx context.Context, action, target string, requestedBy domain.Actor, reason string) error {
	if s.metrics != nil {
		s.metrics.ObserveTransition(action, string(auditmodels.OutcomeDenied))
	}
	if _, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: requestedBy.AuditID(),
		Action:  action,
		Target:  target,
		Outcome: auditmodels.OutcomeDenied,
		Detail:  reason,
	}); err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "group operation denied",
		"action", action,
		"target", target,
		"actor_id", requestedBy.AuditID(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.New(dErrors.CodeForbidden, reason)
}

func translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "group not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "deal is already bound to another group")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "group store failure")
	}
}

func validation(err error) error {
	return dErrors.Wrap(err, dErrors.CodeValidation, dErrors.Message(err))
}
