package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"crmdash/internal/ratelimit/metrics"
	"crmdash/internal/ratelimit/models"
	"crmdash/pkg/platform/sentinel"
)

// slidingWindowScript performs evict/count/add/expire atomically. It is only
// used when WithAtomicScript is set; the default path is a plain pipeline.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local oldest_score = 0
  if oldest[2] then
    oldest_score = tonumber(oldest[2])
  end
  return {0, count, oldest_score}
end
redis.call('ZADD', key, ARGV[1], ARGV[5])
redis.call('EXPIRE', key, ARGV[4])
return {1, count, 0}
`)

const rollbackTimeout = 500 * time.Millisecond

// RedisStore is the shared sliding-window counter. Each key is a sorted set
// whose members are WindowEntry tokens scored by admission time in ms.
//
// Check sends evict, count, add and expire as one pipeline. The pipeline is
// not a transaction: concurrent callers may interleave, so the limit is soft
// and a few extra requests can be admitted under heavy contention. A denied
// request removes exactly the entry it added, so denials never consume
// window capacity.
type RedisStore struct {
	client  redis.UniversalClient
	now     func() time.Time
	suffix  func() string
	atomic  bool
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*RedisStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *RedisStore) {
		s.now = now
	}
}

// WithSuffixGenerator overrides the random part of entry tokens.
func WithSuffixGenerator(fn func() string) Option {
	return func(s *RedisStore) {
		s.suffix = fn
	}
}

// WithAtomicScript evaluates each check as a single Lua script, turning the
// soft limit into a hard one at the cost of requiring scripting support.
func WithAtomicScript() Option {
	return func(s *RedisStore) {
		s.atomic = true
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *RedisStore) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *RedisStore) {
		s.metrics = m
	}
}

// NewRedisStore creates the shared counter on top of an existing client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	s := &RedisStore{
		client: client,
		now:    time.Now,
		suffix: uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Check decides whether one more request fits in key's window.
//
// The decision uses the count from before this request's own entry was
// added, so the request that fills the window to exactly policy.Limit is the
// last one admitted.
func (s *RedisStore) Check(ctx context.Context, key models.RateLimitKey, policy models.TierPolicy) (*models.RateLimitDecision, error) {
	if !key.Tier.IsValid() {
		return nil, fmt.Errorf("%w: unknown tier %q", sentinel.ErrInvalidInput, key.Tier)
	}
	if policy.Limit <= 0 || policy.Window <= 0 {
		return nil, fmt.Errorf("%w: policy must have a positive limit and window", sentinel.ErrInvalidInput)
	}

	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveCounterDuration(float64(time.Since(start).Microseconds()) / 1000.0)
		}
	}()

	now := s.now()
	// The entry (and its token) is built once. The same value is added below
	// and, on denial, removed; never regenerate it for the removal.
	entry := models.NewWindowEntry(now, s.suffix())

	if s.atomic {
		return s.checkScript(ctx, key, policy, now, entry)
	}
	return s.checkPipeline(ctx, key, policy, now, entry)
}

func (s *RedisStore) checkPipeline(
	ctx context.Context,
	key models.RateLimitKey,
	policy models.TierPolicy,
	now time.Time,
	entry models.WindowEntry,
) (*models.RateLimitDecision, error) {
	redisKey := key.String()
	windowStart := windowStartMillis(now, policy)

	pipe := s.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(entry.Timestamp), Member: entry.Token})
	pipe.Expire(ctx, redisKey, policy.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("sliding window pipeline for %s: %w: %w", key.Tier, sentinel.ErrUnavailable, err)
	}

	countBefore := int(countCmd.Val())
	if countBefore >= policy.Limit {
		s.rollback(ctx, redisKey, entry)
		return s.denied(now, policy, oldestScore(oldestCmd.Val())), nil
	}

	return &models.RateLimitDecision{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - countBefore - 1,
		ResetAt:   now.Add(policy.Window),
	}, nil
}

// rollback removes the speculative entry added for a denied request. It runs
// detached from the caller's cancellation: a client that hangs up after the
// pipeline must not leave its entry behind. A failed removal does not change
// the decision; the entry expires with the window.
func (s *RedisStore) rollback(ctx context.Context, redisKey string, entry models.WindowEntry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	err := s.client.ZRem(ctx, redisKey, entry.Token).Err()
	if s.metrics != nil {
		s.metrics.RecordRollback(err == nil)
	}
	if err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to roll back denied window entry",
			"key", redisKey,
			"error", err,
		)
	}
}

func (s *RedisStore) checkScript(
	ctx context.Context,
	key models.RateLimitKey,
	policy models.TierPolicy,
	now time.Time,
	entry models.WindowEntry,
) (*models.RateLimitDecision, error) {
	res, err := slidingWindowScript.Run(ctx, s.client,
		[]string{key.String()},
		entry.Timestamp,
		windowStartMillis(now, policy),
		policy.Limit,
		policy.WindowSeconds(),
		entry.Token,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("sliding window script for %s: %w: %w", key.Tier, sentinel.ErrUnavailable, err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("sliding window script for %s: %w: unexpected reply length %d", key.Tier, sentinel.ErrUnavailable, len(res))
	}

	countBefore := int(res[1])
	if res[0] == 0 {
		return s.denied(now, policy, res[2]), nil
	}
	return &models.RateLimitDecision{
		Allowed:   true,
		Limit:     policy.Limit,
		Remaining: policy.Limit - countBefore - 1,
		ResetAt:   now.Add(policy.Window),
	}, nil
}

// Peek reports the live window for key without adding an entry.
func (s *RedisStore) Peek(ctx context.Context, key models.RateLimitKey, policy models.TierPolicy) (*models.RateLimitDecision, error) {
	now := s.now()
	redisKey := key.String()
	liveMin := "(" + strconv.FormatInt(windowStartMillis(now, policy), 10)

	pipe := s.client.Pipeline()
	countCmd := pipe.ZCount(ctx, redisKey, liveMin, "+inf")
	oldestCmd := pipe.ZRangeByScoreWithScores(ctx, redisKey, &redis.ZRangeBy{
		Min:   liveMin,
		Max:   "+inf",
		Count: 1,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("peek window for %s: %w: %w", key.Tier, sentinel.ErrUnavailable, err)
	}

	count := int(countCmd.Val())
	remaining := max(policy.Limit-count, 0)
	resetAt := now.Add(policy.Window)
	if oldest := oldestScore(oldestCmd.Val()); oldest > 0 {
		resetAt = time.UnixMilli(oldest).Add(policy.Window)
	}
	return &models.RateLimitDecision{
		Allowed:   remaining > 0,
		Limit:     policy.Limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// Reset deletes the window for key.
func (s *RedisStore) Reset(ctx context.Context, key models.RateLimitKey) error {
	if err := s.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("reset window for %s: %w: %w", key.Tier, sentinel.ErrUnavailable, err)
	}
	return nil
}

// denied builds a rejection. The window frees a slot when its oldest live
// entry ages out; without one, a full window from now is assumed.
func (s *RedisStore) denied(now time.Time, policy models.TierPolicy, oldestMillis int64) *models.RateLimitDecision {
	resetAt := now.Add(policy.Window)
	if oldestMillis > 0 {
		resetAt = time.UnixMilli(oldestMillis).Add(policy.Window)
	}
	return &models.RateLimitDecision{
		Allowed:   false,
		Limit:     policy.Limit,
		Remaining: 0,
		ResetAt:   resetAt,
	}
}

func windowStartMillis(now time.Time, policy models.TierPolicy) int64 {
	return now.Add(-policy.Window).UnixMilli()
}

func oldestScore(entries []redis.Z) int64 {
	if len(entries) == 0 {
		return 0
	}
	return int64(entries[0].Score)
}
