// Package service implements the append-only audit log. Every control-plane
// mutation and authorization decision goes through Append; a failed append
// fails the enclosing action.
package service

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"escrowops/internal/audit/metrics"
	"escrowops/internal/audit/models"
	dErrors "escrowops/pkg/domain-errors"
	"escrowops/pkg/requestcontext"
)

// Store persists entries and assigns sequence numbers.
type Store interface {
	Append(ctx context.Context, e models.Entry) (models.Entry, error)
	List(ctx context.Context, f models.Filter, limit int) ([]models.Entry, error)
	LastSeq(ctx context.Context) (uint64, error)
}

const defaultPageSize = 256

// Service is the AuditLog.
type Service struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	pageSize int
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

// WithPageSize sets how many entries Query pulls from the store per page.
func WithPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer("escrowops/audit"),
		pageSize: defaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append records e and returns its sequence number. Timestamp and request
// metadata are filled from ctx when the caller left them empty. When ctx
// carries a database transaction the entry commits or rolls back with it.
//
// Any failure is reported as CodeAuditFailure.
func (s *Service) Append(ctx context.Context, e models.Entry) (uint64, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "audit.Append", trace.WithAttributes(
		attribute.String("audit.action", e.Action),
		attribute.String("audit.outcome", string(e.Outcome)),
	))
	defer span.End()

	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx).UTC()
	}
	if e.RequestID == "" {
		e.RequestID = requestcontext.RequestID(ctx)
	}
	if e.ClientIP == "" {
		e.ClientIP = requestcontext.ClientIP(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = requestcontext.UserAgent(ctx)
	}
	if err := e.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, dErrors.Wrap(err, dErrors.CodeAuditFailure, "audit entry rejected")
	}

	stored, err := s.store.Append(ctx, e)
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementAppendFailures()
		}
		s.logger.ErrorContext(ctx, "CRITICAL: audit append failed",
			"action", e.Action,
			"actor_id", e.ActorID,
			"target", e.Target,
			"outcome", e.Outcome,
			"request_id", e.RequestID,
			"error", err,
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit append failed")
		return 0, dErrors.Wrap(err, dErrors.CodeAuditFailure, "audit log unavailable")
	}

	if s.metrics != nil {
		s.metrics.ObserveAppend(string(e.Outcome), start)
	}
	span.SetAttributes(attribute.Int64("audit.seq", int64(stored.Seq)))
	return stored.Seq, nil
}

// Query lazily yields entries matching f in ascending seq order. Pages are
// fetched on demand, so a consumer that stops early never loads the rest.
func (s *Service) Query(ctx context.Context, f models.Filter) iter.Seq2[models.Entry, error] {
	return func(yield func(models.Entry, error) bool) {
		cursor := f
		remaining := f.Limit
		for {
			page := s.pageSize
			if remaining > 0 && remaining < page {
				page = remaining
			}
			entries, err := s.store.List(ctx, cursor, page)
			if err != nil {
				yield(models.Entry{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log"))
				return
			}
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
			}
			if remaining > 0 {
				remaining -= len(entries)
				if remaining <= 0 {
					return
				}
			}
			if len(entries) < page {
				return
			}
			cursor.AfterSeq = entries[len(entries)-1].Seq
		}
	}
}

// Collect drains Query into a slice.
func (s *Service) Collect(ctx context.Context, f models.Filter) ([]models.Entry, error) {
	var out []models.Entry
	for e, err := range s.Query(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// LastSeq returns the highest committed sequence number.
func (s *Service) LastSeq(ctx context.Context) (uint64, error) {
	seq, err := s.store.LastSeq(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
	}
	return seq, nil
}
