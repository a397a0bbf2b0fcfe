package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"escrowops/internal/ratelimit/models"
)

// slidingWindow trims the window, then adds the request if there is room.
// Returns {allowed, count, oldest_ms}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then oldestScore = tonumber(oldest[2]) end
return {allowed, count, oldestScore}
`)

// Redis shares budgets across replicas.
type Redis struct {
	client redis.Scripter
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.Scripter) *Redis {
	return &Redis{client: client, prefix: "escrowops:", now: time.Now}
}

func (s *Redis) Allow(ctx context.Context, key string, limit models.Limit) (models.Result, error) {
	now := s.now()
	res, err := slidingWindow.Run(ctx, s.client, []string{s.prefix + key},
		now.UnixMilli(),
		limit.Window.Milliseconds(),
		limit.Requests,
		strconv.FormatInt(now.UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return models.Result{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return models.Result{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}
	resetAt := time.UnixMilli(res[2]).Add(limit.Window)
	out := models.Result{
		Allowed: res[0] == 1,
		Limit:   limit.Requests,
		ResetAt: resetAt,
	}
	if out.Allowed {
		out.Remaining = limit.Requests - int(res[1])
	} else {
		out.RetryAfter = resetAt.Sub(now)
	}
	return out, nil
}
