// Package service assembles the owner-only system export.
package service

import (
	"context"
	"fmt"
	"log/slog"

	auditmodels "escrowops/internal/audit/models"
	"escrowops/internal/export/models"
	groupmodels "escrowops/internal/groups/models"
	"escrowops/pkg/domain"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/requestcontext"
)

// Ledger yields the bot core's tables.
type Ledger interface {
	Users(ctx context.Context) (models.Table, error)
	Deals(ctx context.Context) (models.Table, error)
}

type Groups interface {
	List(ctx context.Context) ([]*groupmodels.Group, error)
}

type AuditLog interface {
	Append(ctx context.Context, e auditmodels.Entry) (uint64, error)
	Collect(ctx context.Context, f auditmodels.Filter) ([]auditmodels.Entry, error)
}

const exportTarget = "system_database"

type Service struct {
	ledger Ledger
	groups Groups
	audit  AuditLog
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(ledger Ledger, groups Groups, audit AuditLog, opts ...Option) *Service {
	s := &Service{
		ledger: ledger,
		groups: groups,
		audit:  audit,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export gathers every table, then records the export. No archive is
// returned unless the audit entry was written.
func (s *Service) Export(ctx context.Context, actor domain.Actor) (*models.Archive, error) {
	if !actor.IsOwner() {
		if _, err := s.audit.Append(ctx, auditmodels.Entry{
			ActorID: actor.AuditID(),
			Action:  auditmodels.ActionDataExport,
			Target:  exportTarget,
			Outcome: auditmodels.OutcomeDenied,
			Detail:  "requires owner",
		}); err != nil {
			return nil, err
		}
		return nil, dErrors.New(dErrors.CodeForbidden, "only the owner can export system data")
	}

	archive, err := s.collect(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.audit.Append(ctx, auditmodels.Entry{
		ActorID: actor.AuditID(),
		Action:  auditmodels.ActionDataExport,
		Target:  exportTarget,
		Outcome: auditmodels.OutcomeSuccess,
		Detail: fmt.Sprintf("Complete data export: %d users, %d deals, %d groups, %d audit entries",
			archive.Users.Len(), archive.Deals.Len(), archive.Groups.Len(), archive.AuditLogs.Len()),
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "system data exported",
		"requested_by", actor.ID,
		"audit_entries", archive.AuditLogs.Len(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return archive, nil
}

func (s *Service) collect(ctx context.Context) (*models.Archive, error) {
	users, err := s.ledger.Users(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger is unavailable")
	}
	deals, err := s.ledger.Deals(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger is unavailable")
	}
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list groups")
	}
	entries, err := s.audit.Collect(ctx, auditmodels.Filter{})
	if err != nil {
		return nil, err
	}
	return &models.Archive{
		GeneratedAt: requestcontext.Now(ctx),
		Users:       users,
		Deals:       deals,
		Groups:      groupTable(groups),
		AuditLogs:   auditTable(entries),
	}, nil
}

func groupTable(groups []*groupmodels.Group) models.Table {
	t := models.Table{Columns: []string{"id", "group_number", "status", "current_deal", "occupied_at", "locked_reason", "updated_at"}}
	for _, g := range groups {
		t.Rows = append(t.Rows, []any{g.ID, g.Number, string(g.Status), g.DealID, g.OccupiedAt, g.LockedReason, g.UpdatedAt})
	}
	return t
}

func auditTable(entries []auditmodels.Entry) models.Table {
	t := models.Table{Columns: []string{"seq", "timestamp", "actor_id", "action", "target", "outcome", "detail", "request_id", "client_ip", "user_agent"}}
	for _, e := range entries {
		t.Rows = append(t.Rows, []any{e.Seq, e.Timestamp, e.ActorID, e.Action, e.Target, string(e.Outcome), e.Detail, e.RequestID, e.ClientIP, e.UserAgent})
	}
	return t
}
