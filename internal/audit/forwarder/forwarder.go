// Package forwarder tails the audit log and ships committed entries to the
// SIEM topic. Delivery is at-least-once: the offset is saved only after the
// broker acknowledges a batch, and records are keyed by seq so consumers can
// deduplicate.
package forwarder

import (
	"context"
	"encoding/json"
	"iter"
	"log/slog"
	"strconv"
	"time"

	"escrowops/internal/audit/metrics"
	"escrowops/internal/audit/models"
	"escrowops/internal/platform/kafka"
)

// Source is the audit log read side.
type Source interface {
	Query(ctx context.Context, f models.Filter) iter.Seq2[models.Entry, error]
}

// Publisher delivers a batch or fails it as a whole.
type Publisher interface {
	Publish(ctx context.Context, msgs []kafka.Message) error
}

// OffsetStore remembers the last forwarded seq per forwarder name.
type OffsetStore interface {
	Load(ctx context.Context, name string) (uint64, error)
	Save(ctx context.Context, name string, seq uint64) error
}

const (
	defaultName      = "siem"
	defaultBatchSize = 500
	defaultInterval  = 2 * time.Second
)

type Forwarder struct {
	source    Source
	publisher Publisher
	offsets   OffsetStore
	name      string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Forwarder)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Forwarder) {
		f.metrics = m
	}
}

func WithInterval(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

func New(source Source, publisher Publisher, offsets OffsetStore, opts ...Option) *Forwarder {
	f := &Forwarder{
		source:    source,
		publisher: publisher,
		offsets:   offsets,
		name:      defaultName,
		batchSize: defaultBatchSize,
		interval:  defaultInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run forwards until ctx is cancelled. Publish errors are logged and retried
// on the next tick; they never stop the loop.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := f.Drain(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if f.metrics != nil {
					f.metrics.IncrementForwardFailures()
				}
				f.logger.WarnContext(ctx, "audit forward failed", "error", err)
				break
			}
			if n < f.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch past the stored offset and returns its size.
func (f *Forwarder) Drain(ctx context.Context) (int, error) {
	after, err := f.offsets.Load(ctx, f.name)
	if err != nil {
		return 0, err
	}

	msgs := make([]kafka.Message, 0, f.batchSize)
	var last uint64
	for e, err := range f.source.Query(ctx, models.Filter{AfterSeq: after, Limit: f.batchSize}) {
		if err != nil {
			return 0, err
		}
		value, err := json.Marshal(e)
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(strconv.FormatUint(e.Seq, 10)), Value: value})
		last = e.Seq
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := f.publisher.Publish(ctx, msgs); err != nil {
		return 0, err
	}
	if err := f.offsets.Save(ctx, f.name, last); err != nil {
		return 0, err
	}
	if f.metrics != nil {
		f.metrics.ObserveForwarded(len(msgs), last)
	}
	f.logger.DebugContext(ctx, "audit entries forwarded", "count", len(msgs), "last_seq", last)
	return len(msgs), nil
}
