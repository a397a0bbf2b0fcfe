package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"escrowops/internal/gate/models"
	"escrowops/pkg/platform/sentinel"
)

const (
	defaultPrefix    = "escrowops:gate:"
	defaultRetention = 24 * time.Hour
)

// Redis stores intents as JSON values with a sorted set of pending ids
// scored by expiry, so every replica sees the same pending intents. Confirmed
// ids sit in a second set scored by confirmation time.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedis keeps settled intents for retention before Redis evicts them.
func NewRedis(client redis.UniversalClient, retention time.Duration) *Redis {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Redis{client: client, prefix: defaultPrefix, retention: retention}
}

func (s *Redis) key(id string) string {
	return s.prefix + "intent:" + id
}

func (s *Redis) pendingKey() string {
	return s.prefix + "pending"
}

func (s *Redis) confirmedKey() string {
	return s.prefix + "confirmed"
}

func (s *Redis) Create(ctx context.Context, intent *models.Intent) error {
	data, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(intent.ID), data, s.ttlFor(intent)).Result()
	if err != nil {
		return fmt.Errorf("store intent: %w", err)
	}
	if !ok {
		return fmt.Errorf("intent %s exists: %w", intent.ID, sentinel.ErrConflict)
	}
	if intent.IsPending() {
		if err := s.client.ZAdd(ctx, s.pendingKey(), redis.Z{
			Score:  float64(intent.ExpiresAt.UnixMilli()),
			Member: intent.ID,
		}).Err(); err != nil {
			return fmt.Errorf("index pending intent: %w", err)
		}
	}
	return nil
}

func (s *Redis) Find(ctx context.Context, id string) (*models.Intent, error) {
	return s.get(ctx, s.client, id)
}

// Swap replaces the intent under WATCH so a concurrent confirm on another
// replica makes one of them fail with ErrConflict.
func (s *Redis) Swap(ctx context.Context, from models.State, next *models.Intent) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	key := s.key(next.ID)
	err = s.client.Watch(ctx, func(rtx *redis.Tx) error {
		current, err := s.get(ctx, rtx, next.ID)
		if err != nil {
			return err
		}
		if current.State != from {
			return fmt.Errorf("intent %s is %s: %w", next.ID, current.State, sentinel.ErrConflict)
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttlFor(next))
			if !next.IsPending() {
				pipe.ZRem(ctx, s.pendingKey(), next.ID)
			}
			if next.State == models.StateConfirmed {
				pipe.ZAdd(ctx, s.confirmedKey(), redis.Z{
					Score:  float64(next.UpdatedAt.UnixMilli()),
					Member: next.ID,
				})
			} else {
				pipe.ZRem(ctx, s.confirmedKey(), next.ID)
			}
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("intent %s changed concurrently: %w", next.ID, sentinel.ErrConflict)
	}
	return err
}

func (s *Redis) ListExpired(ctx context.Context, now time.Time) ([]*models.Intent, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.pendingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending intents: %w", err)
	}
	out := make([]*models.Intent, 0, len(ids))
	for _, id := range ids {
		intent, err := s.Find(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.client.ZRem(ctx, s.pendingKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if intent.IsPending() {
			out = append(out, intent)
		}
	}
	return out, nil
}

// ListStale returns confirmed intents last changed before cutoff, oldest
// first.
func (s *Redis) ListStale(ctx context.Context, cutoff time.Time) ([]*models.Intent, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.confirmedKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list confirmed intents: %w", err)
	}
	out := make([]*models.Intent, 0, len(ids))
	for _, id := range ids {
		intent, err := s.Find(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.client.ZRem(ctx, s.confirmedKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if intent.State == models.StateConfirmed {
			out = append(out, intent)
		}
	}
	return out, nil
}

func (s *Redis) get(ctx context.Context, c redis.Cmdable, id string) (*models.Intent, error) {
	data, err := c.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("intent %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load intent: %w", err)
	}
	var intent models.Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("decode intent: %w", err)
	}
	return &intent, nil
}

// ttlFor keeps a pending intent until well after it can be swept.
func (s *Redis) ttlFor(intent *models.Intent) time.Duration {
	ttl := s.retention
	if until := time.Until(intent.ExpiresAt); intent.IsPending() && until > 0 {
		ttl += until
	}
	return ttl
}
