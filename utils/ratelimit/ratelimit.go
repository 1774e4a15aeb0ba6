package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/PropChat/config"
)

// Limiter decides whether an action identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (bool, error)
}

// Rule is a fixed-window budget: at most Limit actions per Window.
// A Limit of zero or less disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Actions that are rate limited per user.
const (
	ActionMessage = "message"
	ActionTyping  = "typing"
)

// Rules maps chat actions to their budget.
type Rules map[string]Rule

func NewRules(cfg config.RateLimitConfig) Rules {
	return Rules{
		ActionMessage: {Limit: cfg.MessagesPerMinute, Window: time.Minute},
		ActionTyping:  {Limit: cfg.TypingPerMinute, Window: time.Minute},
	}
}

// Key builds the bucket identifier for a user and action.
func Key(action string, userID uint) string {
	return fmt.Sprintf("%s:user:%d", action, userID)
}

// RedisLimiter counts actions in Redis with INCRBY + EXPIRE per window bucket.
type RedisLimiter struct {
	redisClient *redis.Client
	logger      *zap.Logger
	fallback    bool // If true, allow requests when Redis is unavailable (fail-open)
	now         func() time.Time
}

// NewRedisLimiter creates a Redis backed limiter.
//
// Parameters:
//   - redisClient: Redis client for storing counters
//   - logger: Logger for recording rejections and Redis failures
//   - fallback: If true, allows requests when Redis fails (fail-open strategy)
func NewRedisLimiter(redisClient *redis.Client, logger *zap.Logger, fallback bool) *RedisLimiter {
	return &RedisLimiter{
		redisClient: redisClient,
		logger:      logger,
		fallback:    fallback,
		now:         time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (bool, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return true, nil
	}
	bucketKey := bucketKey(key, l.now(), rule.Window)

	pipe := l.redisClient.Pipeline()
	incrCmd := pipe.IncrBy(ctx, bucketKey, 1)
	pipe.Expire(ctx, bucketKey, rule.Window+time.Second)

	if _, err := pipe.Exec(ctx); err != nil {
		if l.fallback {
			l.logger.Warn("rate limit check failed, allowing request (fail-open)",
				zap.String("key", key),
				zap.Error(err),
			)
			return true, nil
		}
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	count := incrCmd.Val()
	if count > int64(rule.Limit) {
		l.logger.Debug("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
		)
		return false, nil
	}
	return true, nil
}

func bucketKey(key string, now time.Time, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, now.UnixMilli()/window.Milliseconds())
}

// LocalLimiter is the in-process equivalent used when Redis is disabled.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]window
	now     func() time.Time
}

type window struct {
	bucket int64
	count  int
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]window), now: time.Now}
}

func (l *LocalLimiter) Allow(_ context.Context, key string, rule Rule) (bool, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return true, nil
	}
	bucket := l.now().UnixMilli() / rule.Window.Milliseconds()

	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.buckets[key]
	if w.bucket != bucket {
		w = window{bucket: bucket}
	}
	w.count++
	l.buckets[key] = w
	return w.count <= rule.Limit, nil
}
