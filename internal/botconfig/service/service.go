// Package service reads and edits the bot's message templates. Edits are
// owner-only and audited; the templates themselves live with the bot-config
// collaborator.
package service

import (
	"context"
	"errors"
	"log/slog"

	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/botconfig/models"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/platform/sentinel"
	"escrowops/pkg/platform/tx"
	"escrowops/pkg/requestcontext"
)

type Store interface {
	Load(ctx context.Context) (*models.Messages, error)
	Save(ctx context.Context, m models.Messages) error
}

type AuditLog interface {
	Append(ctx context.Context, e auditmodels.Entry) (uint64, error)
}

const (
	messagesKey    = "bot:messages"
	messagesTarget = "bot_configuration"
)

type Service struct {
	store  Store
	tx     tx.Runner
	audit  AuditLog
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
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

// Get returns the saved templates, or the defaults when none were saved.
func (s *Service) Get(ctx context.Context) (*models.Messages, error) {
	m, err := s.store.Load(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		d := models.Defaults()
		return &d, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "bot configuration is unavailable")
	}
	return m, nil
}

// Update replaces every template at once.
func (s *Service) Update(ctx context.Context, actor domain.Actor, m models.Messages) (*models.Messages, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if !actor.IsOwner() {
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: actor.AuditID(),
			Action:  auditmodels.ActionBotMessagesUpdate,
			Target:  messagesTarget,
			Outcome: auditmodels.OutcomeDenied,
			Detail:  "requires owner",
		}); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeForbidden, "only the owner can edit bot messages")
	}

	saved := m.Clone()
	err := s.tx.RunInTx(ctx, messagesKey, func(ctx context.Context) error {
		saved.UpdatedAt = requestcontext.Now(ctx)
		saved.UpdatedBy = actor.ID
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: actor.AuditID(),
			Action:  auditmodels.ActionBotMessagesUpdate,
			Target:  messagesTarget,
			Outcome: auditmodels.OutcomeSuccess,
			Detail:  "Updated welcome, rules, and error messages",
		}); err != nil {
			return err
		}
		if err := s.store.Save(ctx, saved); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to save bot messages")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "bot messages updated",
		"updated_by", actor.ID,
		"error_messages", len(saved.Errors),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &saved, nil
}
