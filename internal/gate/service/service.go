// Package service implements the DestructiveActionGate: bulk key export and
// manual payout behind a server-enforced two-phase confirmation.
//
// A confirm writes an attempted entry, invokes the collaborator, then writes
// exactly one success or failed entry for the same intent.
package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks -exclude_interfaces=Store,AuditLog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/gate/metrics"
	"escrowops/internal/gate/models"
	"escrowops/internal/gate/secrets"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/idgen"
	"escrowops/pkg/platform/sentinel"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/requestcontext"
)

// Store persists intents. Swap is a compare-and-set on State.
type Store interface {
	Create(ctx context.Context, intent *models.Intent) error
	Find(ctx context.Context, id string) (*models.Intent, error)
	Swap(ctx context.Context, from models.State, next *models.Intent) error
	ListExpired(ctx context.Context, now time.Time) ([]*models.Intent, error)
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.Intent, error)
}

// AuditLog is the append side of the audit service.
type AuditLog interface {
	Append(ctx context.Context, e auditmodels.Entry) (uint64, error)
}

// Custody prepares a key bundle and returns its handle.
type Custody interface {
	PrepareBundle(ctx context.Context, intentID, requestedBy string) (models.BundleHandle, error)
}

// Bundles streams prepared bundles by handle.
type Bundles interface {
	Open(ctx context.Context, handle models.BundleHandle) (io.ReadCloser, error)
}

// PayoutSubmitter hands a confirmed payout to the payment-submission
// collaborator. It returns once the hand-off is acknowledged.
type PayoutSubmitter interface {
	Submit(ctx context.Context, order models.PayoutOrder) error
}

const (
	DefaultConfirmTTL = 5 * time.Minute
	DefaultStaleAfter = 15 * time.Minute
	referenceLength   = 8
	keyExportTarget   = "keys"
	ownerOnly         = "requires owner"
)

type Service struct {
	store   Store
	tx      tx.Runner
	audit   AuditLog
	custody Custody
	bundles Bundles
	payouts PayoutSubmitter
	hasher  secrets.Hasher
	ttl     time.Duration
	stale   time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
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

// WithConfirmTTL sets how long a phase-one token stays valid.
func WithConfirmTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStaleAfter sets how long an intent may stay confirmed before the
// sweeper gives up on it. It must exceed every collaborator timeout.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stale = d
		}
	}
}

func WithBcryptCost(cost int) Option {
	return func(s *Service) {
		s.hasher = secrets.NewHasher(cost)
	}
}

func New(store Store, runner tx.Runner, audit AuditLog, custody Custody, bundles Bundles, payouts PayoutSubmitter, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tx:      runner,
		audit:   audit,
		custody: custody,
		bundles: bundles,
		payouts: payouts,
		hasher:  secrets.NewHasher(bcrypt.DefaultCost),
		ttl:     DefaultConfirmTTL,
		stale:   DefaultStaleAfter,
		logger:  slog.Default(),
		tracer:  otel.Tracer("escrowops/gate"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func lockKey(intentID string) string {
	return "intent:" + intentID
}

// RequestKeyExport opens a key export intent and returns it with the
// one-time confirmation token.
func (s *Service) RequestKeyExport(ctx context.Context, actor domain.Actor) (*models.Intent, string, error) {
	ctx, span := s.tracer.Start(ctx, "gate.RequestKeyExport")
	defer span.End()

	if !actor.IsOwner() {
		s.observeRequest(models.KindKeyExport, auditmodels.OutcomeDenied)
		return nil, "", s.deny(ctx, actor, auditmodels.ActionKeyExportRequest, keyExportTarget, ownerOnly, dErrors.CodeForbidden)
	}
	token, hash, err := s.hasher.Issue()
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue confirmation token")
	}
	id, err := idgen.Generate("ke_")
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate intent id")
	}
	intent := models.NewKeyExport(id, actor.ID, hash, requestcontext.Now(ctx), s.ttl)

	if err := s.open(ctx, intent, auditmodels.ActionKeyExportRequest,
		"bulk key export requested, confirm before "+intent.ExpiresAt.UTC().Format(time.RFC3339)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, "", err
	}
	span.SetAttributes(attribute.String("gate.intent_id", intent.ID))
	return intent, token, nil
}

// ConfirmKeyExport takes the intent and asks custody for the bundle.
func (s *Service) ConfirmKeyExport(ctx context.Context, actor domain.Actor, intentID, token string) (models.BundleHandle, error) {
	ctx, span := s.tracer.Start(ctx, "gate.ConfirmKeyExport", trace.WithAttributes(
		attribute.String("gate.intent_id", intentID),
	))
	defer span.End()

	intent, err := s.take(ctx, actor, models.KindKeyExport, auditmodels.ActionKeyExportConfirm, intentID, token)
	if err != nil {
		return "", err
	}

	var handle models.BundleHandle
	err = s.execute(ctx, actor, intent, auditmodels.ActionKeyExportConfirm, func(ctx context.Context) (string, error) {
		h, err := s.custody.PrepareBundle(ctx, intent.ID, intent.RequestedBy)
		if err != nil {
			return "", err
		}
		handle = h
		return "bundle prepared", nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return "", err
	}
	return handle, nil
}

// OpenBundle streams the bundle behind a handle returned by ConfirmKeyExport.
func (s *Service) OpenBundle(ctx context.Context, actor domain.Actor, handle models.BundleHandle) (io.ReadCloser, error) {
	if !actor.IsOwner() {
		return nil, dErrors.New(dErrors.CodeForbidden, ownerOnly)
	}
	rc, err := s.bundles.Open(ctx, handle)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to open key bundle",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "key bundle unavailable")
	}
	return rc, nil
}

// RequestPayout validates req and opens a manual payout intent. Validation
// errors are not audited.
func (s *Service) RequestPayout(ctx context.Context, actor domain.Actor, req models.PayoutRequest) (*models.Intent, string, error) {
	ctx, span := s.tracer.Start(ctx, "gate.RequestPayout")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, "", err
	}
	if !actor.IsOwner() {
		s.observeRequest(models.KindManualPayout, auditmodels.OutcomeDenied)
		return nil, "", s.denyEntry(ctx, actor, auditmodels.Entry{
			Action: auditmodels.ActionPayoutRequest,
			Target: "deal:" + req.DealID,
			DealID: req.DealID,
			Detail: ownerOnly,
		}, dErrors.CodeForbidden)
	}
	token, hash, err := s.hasher.Issue()
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue confirmation token")
	}
	id, err := idgen.Generate("pi_")
	if err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate intent id")
	}
	intent := models.NewPayout(id, actor.ID, hash, req, requestcontext.Now(ctx), s.ttl)

	detail := fmt.Sprintf("manual payout of %s to %s for deal %s requested. Reason: %s",
		intent.Amount.String(), intent.Recipient, intent.DealID, intent.Reason)
	if err := s.open(ctx, intent, auditmodels.ActionPayoutRequest, detail); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, "", err
	}
	span.SetAttributes(attribute.String("gate.intent_id", intent.ID))
	return intent, token, nil
}

// ConfirmPayout takes the intent and hands the payout to the submission
// collaborator. The returned intent's Outcome is the transaction reference.
func (s *Service) ConfirmPayout(ctx context.Context, actor domain.Actor, intentID, token string) (*models.Intent, error) {
	ctx, span := s.tracer.Start(ctx, "gate.ConfirmPayout", trace.WithAttributes(
		attribute.String("gate.intent_id", intentID),
	))
	defer span.End()

	intent, err := s.take(ctx, actor, models.KindManualPayout, auditmodels.ActionPayoutConfirm, intentID, token)
	if err != nil {
		return nil, err
	}

	err = s.execute(ctx, actor, intent, auditmodels.ActionPayoutConfirm, func(ctx context.Context) (string, error) {
		ref, err := idgen.Reference("MANUAL_", referenceLength)
		if err != nil {
			return "", err
		}
		if err := s.payouts.Submit(ctx, intent.Order(ref)); err != nil {
			return "", err
		}
		return ref, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "confirm failed")
		return nil, err
	}
	return intent, nil
}

// RejectPayout abandons a pending payout intent.
func (s *Service) RejectPayout(ctx context.Context, actor domain.Actor, intentID, reason string) (*models.Intent, error) {
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if !actor.IsOwner() {
		return nil, s.deny(ctx, actor, auditmodels.ActionPayoutReject, lockKey(intentID), ownerOnly, dErrors.CodeForbidden)
	}

	var out *models.Intent
	err := s.tx.RunInTx(ctx, lockKey(intentID), func(ctx context.Context) error {
		intent, err := s.find(ctx, intentID, models.KindManualPayout)
		if err != nil {
			return err
		}
		if !intent.IsPending() {
			return dErrors.New(dErrors.CodeConflict, "intent is already "+string(intent.State))
		}
		next := intent.Clone()
		if err := next.Reject(reason, requestcontext.Now(ctx)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeConflict, dErrors.Message(err))
		}
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: actor.AuditID(),
			Action:  auditmodels.ActionPayoutReject,
			Target:  next.Target(),
			DealID:  next.DealID,
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  "rejected: " + reason,
		}); err != nil {
			return err
		}
		if err := s.store.Swap(ctx, models.StateRequested, next); err != nil {
			return s.translate(err)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "manual payout rejected",
		"intent_id", intentID,
		"actor_id", actor.AuditID(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return out, nil
}

// SweepExpired rejects and audits every pending intent whose window closed
// by now, then every intent left confirmed longer than the stale threshold
// (the process died between confirm and settle). It returns how many were
// rejected. An audit failure stops the sweep with the intent unchanged, so
// it is retried on the next run.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	ctx, span := s.tracer.Start(ctx, "gate.SweepExpired")
	defer span.End()

	expired, err := s.store.ListExpired(ctx, now)
	if err != nil {
		return 0, s.translate(err)
	}
	swept := 0
	for _, candidate := range expired {
		done, err := s.expire(ctx, candidate.ID, now)
		if err != nil {
			span.RecordError(err)
			return swept, err
		}
		if done {
			swept++
			if s.metrics != nil {
				s.metrics.IncrementExpired(string(candidate.Kind))
			}
		}
	}

	stale, err := s.store.ListStale(ctx, now.Add(-s.stale))
	if err != nil {
		return swept, s.translate(err)
	}
	for _, candidate := range stale {
		done, err := s.abandon(ctx, candidate.ID, now)
		if err != nil {
			span.RecordError(err)
			return swept, err
		}
		if done {
			swept++
			s.observeConfirm(candidate.Kind, auditmodels.OutcomeFailed)
		}
	}
	span.SetAttributes(attribute.Int("gate.swept", swept))
	return swept, nil
}

// RunSweeper calls SweepExpired every interval until ctx is cancelled.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			sweepCtx := requestcontext.WithActor(ctx, domain.SystemActor)
			n, err := s.SweepExpired(sweepCtx, now)
			if err != nil {
				s.logger.ErrorContext(ctx, "intent sweep failed", "swept", n, "error", err)
				continue
			}
			if n > 0 {
				s.logger.InfoContext(ctx, "expired intents rejected", "count", n)
			}
		}
	}
}

func (s *Service) expire(ctx context.Context, intentID string, now time.Time) (bool, error) {
	done := false
	err := s.tx.RunInTx(ctx, lockKey(intentID), func(ctx context.Context) error {
		intent, err := s.store.Find(ctx, intentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return s.translate(err)
		}
		if !intent.IsPending() || !intent.Expired(now) {
			return nil
		}
		next := intent.Clone()
		if err := next.Reject("confirmation window expired", now); err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: domain.SystemActor.AuditID(),
			Action:  expireAction(intent.Kind),
			Target:  next.Target(),
			DealID:  next.DealID,
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  "requested by " + intent.RequestedBy + ", not confirmed before " + intent.ExpiresAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
		if err := s.store.Swap(ctx, models.StateRequested, next); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil
			}
			return s.translate(err)
		}
		done = true
		return nil
	})
	return done, err
}

// abandon rejects an intent stuck in Confirmed with a failed entry. Whether
// the collaborator acted is unknown, so the entry says to check it.
func (s *Service) abandon(ctx context.Context, intentID string, now time.Time) (bool, error) {
	done := false
	err := s.tx.RunInTx(ctx, lockKey(intentID), func(ctx context.Context) error {
		intent, err := s.store.Find(ctx, intentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil
			}
			return s.translate(err)
		}
		if intent.State != models.StateConfirmed || !intent.UpdatedAt.Before(now.Add(-s.stale)) {
			return nil
		}
		confirmedAt := intent.UpdatedAt
		next := intent.Clone()
		if err := next.Reject("not settled after confirmation", now); err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: domain.SystemActor.AuditID(),
			Action:  confirmAction(intent.Kind),
			Target:  next.Target(),
			DealID:  next.DealID,
			Outcome: auditmodels.OutcomeFailed,
			Detail:  "confirmed at " + confirmedAt.UTC().Format(time.RFC3339) + " but never settled; verify with the " + string(intent.Kind) + " collaborator",
		}); err != nil {
			return err
		}
		if err := s.store.Swap(ctx, models.StateConfirmed, next); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return nil
			}
			return s.translate(err)
		}
		s.logger.WarnContext(ctx, "stale confirmed intent rejected",
			"kind", intent.Kind,
			"intent_id", intent.ID,
			"confirmed_at", confirmedAt,
		)
		done = true
		return nil
	})
	return done, err
}

// open audits phase one and stores the intent. Nothing is stored when the
// audit append fails.
func (s *Service) open(ctx context.Context, intent *models.Intent, action, detail string) error {
	err := s.tx.RunInTx(ctx, lockKey(intent.ID), func(ctx context.Context) error {
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: intent.RequestedBy,
			Action:  action,
			Target:  intent.Target(),
			DealID:  intent.DealID,
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  detail,
		}); err != nil {
			return err
		}
		if err := s.store.Create(ctx, intent); err != nil {
			return s.translate(err)
		}
		return nil
	})
	if err != nil {
		s.observeRequest(intent.Kind, auditmodels.OutcomeFailed)
		return err
	}
	s.observeRequest(intent.Kind, auditmodels.OutcomeSuccess)
	s.logger.InfoContext(ctx, "destructive action requested",
		"kind", intent.Kind,
		"intent_id", intent.ID,
		"actor_id", intent.RequestedBy,
		"expires_at", intent.ExpiresAt,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// refusal is a confirm rejected for a reason the caller must not learn more
// about than its code.
type refusal struct {
	code   dErrors.Code
	detail string
}

func (r *refusal) Error() string { return r.detail }

// take validates a confirm and atomically moves the intent from Requested to
// Confirmed. Every refusal is audited as denied.
func (s *Service) take(ctx context.Context, actor domain.Actor, kind models.Kind, action, intentID, token string) (*models.Intent, error) {
	target := lockKey(intentID)
	if !actor.IsOwner() {
		s.observeConfirm(kind, auditmodels.OutcomeDenied)
		return nil, s.deny(ctx, actor, action, target, ownerOnly, dErrors.CodeForbidden)
	}
	if intentID == "" || token == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "intent id and confirmation token are required")
	}

	now := requestcontext.Now(ctx)
	var taken *models.Intent
	err := s.tx.RunInTx(ctx, lockKey(intentID), func(ctx context.Context) error {
		intent, err := s.store.Find(ctx, intentID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return &refusal{code: dErrors.CodeNotFound, detail: "unknown intent"}
			}
			return s.translate(err)
		}
		if r := s.check(intent, actor, kind, token, now); r != nil {
			return r
		}
		next := intent.Clone()
		if err := next.Confirm(now); err != nil {
			return &refusal{code: dErrors.CodeForbidden, detail: dErrors.Message(err)}
		}
		if err := s.store.Swap(ctx, models.StateRequested, next); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return &refusal{code: dErrors.CodeForbidden, detail: "intent already taken"}
			}
			return s.translate(err)
		}
		taken = next
		return nil
	})
	var r *refusal
	if errors.As(err, &r) {
		s.observeConfirm(kind, auditmodels.OutcomeDenied)
		return nil, s.deny(ctx, actor, action, target, r.detail, r.code)
	}
	if err != nil {
		return nil, err
	}
	return taken, nil
}

func (s *Service) check(intent *models.Intent, actor domain.Actor, kind models.Kind, token string, now time.Time) *refusal {
	switch {
	case intent.Kind != kind:
		return &refusal{code: dErrors.CodeNotFound, detail: "unknown intent"}
	case !intent.IsPending():
		return &refusal{code: dErrors.CodeForbidden, detail: "intent is already " + string(intent.State)}
	case intent.RequestedBy != actor.ID:
		return &refusal{code: dErrors.CodeForbidden, detail: "only the requester may confirm"}
	case intent.Expired(now):
		return &refusal{code: dErrors.CodeForbidden, detail: "confirmation window expired"}
	case !s.hasher.Verify(token, intent.TokenHash):
		return &refusal{code: dErrors.CodeForbidden, detail: "confirmation token mismatch"}
	}
	return nil
}

// execute runs the attempted, effect, success-or-failed protocol on a taken
// intent. effect returns the outcome recorded on the intent.
func (s *Service) execute(ctx context.Context, actor domain.Actor, intent *models.Intent, action string, effect func(ctx context.Context) (string, error)) error {
	if _, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: actor.AuditID(),
		Action:  action,
		Target:  intent.Target(),
		DealID:  intent.DealID,
		Outcome: auditmodels.OutcomeAttempted,
		Detail:  describe(intent),
	}); err != nil {
		s.settle(ctx, intent, "", "audit log unavailable")
		s.observeConfirm(intent.Kind, auditmodels.OutcomeFailed)
		return err
	}

	outcome, effectErr := effect(ctx)
	if effectErr != nil {
		s.logger.ErrorContext(ctx, "destructive action failed",
			"kind", intent.Kind,
			"intent_id", intent.ID,
			"request_id", requestcontext.RequestID(ctx),
			"error", effectErr,
		)
		s.settle(ctx, intent, "", "collaborator failed")
		s.observeConfirm(intent.Kind, auditmodels.OutcomeFailed)
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: actor.AuditID(),
			Action:  action,
			Target:  intent.Target(),
			DealID:  intent.DealID,
			Outcome: auditmodels.OutcomeFailed,
			Detail:  effectErr.Error(),
		}); err != nil {
			return err
		}
		return dErrors.Wrap(effectErr, dErrors.CodeUnavailable, string(intent.Kind)+" collaborator unavailable")
	}

	s.settle(ctx, intent, outcome, "")
	s.observeConfirm(intent.Kind, auditmodels.OutcomeSuccess)
	if _, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: actor.AuditID(),
		Action:  action,
		Target:  intent.Target(),
		DealID:  intent.DealID,
		Outcome: auditmodels.OutcomeSuccess,
		Detail:  describe(intent),
	}); err != nil {
		s.logger.ErrorContext(ctx, "CRITICAL: destructive action executed without success entry",
			"kind", intent.Kind,
			"intent_id", intent.ID,
			"outcome", outcome,
		)
		return err
	}
	s.logger.WarnContext(ctx, "destructive action executed",
		"kind", intent.Kind,
		"intent_id", intent.ID,
		"actor_id", actor.AuditID(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// settle moves a confirmed intent to Executed (outcome set) or Rejected. The
// intent in hand is updated in place; store errors are logged since the
// audit trail already records what happened.
func (s *Service) settle(ctx context.Context, intent *models.Intent, outcome, rejectReason string) {
	next := intent.Clone()
	now := requestcontext.Now(ctx)
	var err error
	if rejectReason != "" {
		err = next.Reject(rejectReason, now)
	} else {
		err = next.Execute(outcome, now)
	}
	if err == nil {
		err = s.store.Swap(ctx, models.StateConfirmed, next)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to settle intent",
			"intent_id", intent.ID,
			"error", err,
		)
	}
	*intent = *next
}

func (s *Service) find(ctx context.Context, intentID string, kind models.Kind) (*models.Intent, error) {
	intent, err := s.store.Find(ctx, intentID)
	if err != nil {
		return nil, s.translate(err)
	}
	if intent.Kind != kind {
		return nil, dErrors.New(dErrors.CodeNotFound, "intent not found")
	}
	return intent, nil
}

func (s *Service) deny(ctx context.Context, actor domain.Actor, action, target, reason string, code dErrors.Code) error {
	return s.denyEntry(ctx, actor, auditmodels.Entry{Action: action, Target: target, Detail: reason}, code)
}

// denyEntry audits e as denied for actor; e.Detail is the reason.
func (s *Service) denyEntry(ctx context.Context, actor domain.Actor, e auditmodels.Entry, code dErrors.Code) error {
	e.ActorID = actor.AuditID()
	e.Outcome = auditmodels.OutcomeDenied
	if _, err := s.audit.Append(ctx, e); err != nil {
		return err
	}
	s.logger.WarnContext(ctx, "destructive action denied",
		"action", e.Action,
		"target", e.Target,
		"actor_id", e.ActorID,
		"reason", e.Detail,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.New(code, e.Detail)
}

func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "intent not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "intent changed concurrently")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "intent store unavailable")
	}
}

func (s *Service) observeRequest(kind models.Kind, outcome auditmodels.Outcome) {
	if s.metrics != nil {
		s.metrics.IncrementRequest(string(kind), string(outcome))
	}
}

func (s *Service) observeConfirm(kind models.Kind, outcome auditmodels.Outcome) {
	if s.metrics != nil {
		s.metrics.IncrementConfirmation(string(kind), string(outcome))
	}
}

func describe(intent *models.Intent) string {
	if intent.Kind == models.KindManualPayout {
		detail := fmt.Sprintf("manual payout of %s to %s for deal %s",
			intent.Amount.String(), intent.Recipient, intent.DealID)
		if intent.Outcome != "" {
			detail += ", transaction " + intent.Outcome
		}
		return detail
	}
	return "bulk key export"
}

func confirmAction(kind models.Kind) string {
	if kind == models.KindManualPayout {
		return auditmodels.ActionPayoutConfirm
	}
	return auditmodels.ActionKeyExportConfirm
}

func expireAction(kind models.Kind) string {
	if kind == models.KindManualPayout {
		return auditmodels.ActionPayoutExpire
	}
	return auditmodels.ActionKeyExportExpire
}
