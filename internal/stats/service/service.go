// Package service implements DashboardStats: a lazily refreshed read model
// over the group pool and the bot core's deal ledger.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	groupmodels "escrowops/internal/groups/models"
	"escrowops/internal/stats/metrics"
	"escrowops/internal/stats/models"
	dErrors "escrowops/pkg/domain-errors"
)

type GroupLister interface {
	List(ctx context.Context) ([]*groupmodels.Group, error)
}

type Ledger interface {
	Totals(ctx context.Context) (models.LedgerTotals, error)
}

// SharedCache holds the latest snapshot across replicas.
type SharedCache interface {
	Get(ctx context.Context) (*models.Snapshot, error)
	Set(ctx context.Context, snap *models.Snapshot, ttl time.Duration) error
	Delete(ctx context.Context) error
}

const (
	DefaultTTL   = 15 * time.Second
	flightKey    = "snapshot"
	cacheTimeout = 500 * time.Millisecond
)

type Service struct {
	groups  GroupLister
	ledger  Ledger
	shared  SharedCache
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	flight     singleflight.Group
	mu         sync.Mutex
	local      *models.Snapshot
	generation uint64
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

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithSharedCache(c SharedCache) Option {
	return func(s *Service) {
		s.shared = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(groups GroupLister, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		groups: groups,
		ledger: ledger,
		ttl:    DefaultTTL,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns a snapshot no older than the TTL. Concurrent recomputes
// collapse into one.
func (s *Service) Snapshot(ctx context.Context) (models.Snapshot, error) {
	s.mu.Lock()
	if s.local.Fresh(s.now(), s.ttl) {
		snap := *s.local
		s.mu.Unlock()
		s.observe("local")
		return snap, nil
	}
	gen := s.generation
	s.mu.Unlock()

	if snap := s.fromShared(ctx); snap != nil {
		s.store(gen, snap)
		s.observe("shared")
		return *snap, nil
	}

	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		snap, err := s.compute(ctx)
		if err != nil {
			return nil, err
		}
		if s.store(gen, snap) {
			s.toShared(ctx, snap)
		}
		return snap, nil
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	s.observe("recompute")
	return *v.(*models.Snapshot), nil
}

// Invalidate drops cached snapshots. The next Snapshot call recomputes.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.local = nil
	s.generation++
	s.mu.Unlock()
	s.flight.Forget(flightKey)

	if s.shared == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := s.shared.Delete(ctx); err != nil {
		s.logger.Warn("failed to drop shared stats snapshot", "error", err)
	}
}

func (s *Service) compute(ctx context.Context) (*models.Snapshot, error) {
	start := time.Now()
	groups, err := s.groups.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read group pool")
	}
	totals, err := s.ledger.Totals(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "ledger totals unavailable", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "deal ledger unavailable")
	}

	snap := &models.Snapshot{
		Users:       totals.Users,
		Deals:       totals.ActiveDeals,
		Revenue:     totals.Revenue,
		GroupsTotal: len(groups),
		ComputedAt:  s.now(),
	}
	for _, g := range groups {
		switch g.Status {
		case groupmodels.StatusAvailable:
			snap.Groups++
		case groupmodels.StatusOccupied:
			snap.GroupsOccupied++
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveRecompute(start)
	}
	return snap, nil
}

// store keeps snap unless an invalidation happened since gen was read.
func (s *Service) store(gen uint64, snap *models.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.local = snap
	return true
}

func (s *Service) fromShared(ctx context.Context) *models.Snapshot {
	if s.shared == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	snap, err := s.shared.Get(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "shared stats snapshot unavailable", "error", err)
		return nil
	}
	if !snap.Fresh(s.now(), s.ttl) {
		return nil
	}
	return snap
}

func (s *Service) toShared(ctx context.Context, snap *models.Snapshot) {
	if s.shared == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()
	if err := s.shared.Set(ctx, snap, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "failed to share stats snapshot", "error", err)
	}
}

func (s *Service) observe(source string) {
	if s.metrics != nil {
		s.metrics.ObserveLookup(source)
	}
}
