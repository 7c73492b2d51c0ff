package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-matching/internal/application/port"
)

// RedisConfig tunes the distributed locker
type RedisConfig struct {
	Prefix  string
	TTL     time.Duration
	Backoff time.Duration
	Retries int
}

// RedisLocker serialises matches across every instance sharing one Redis
type RedisLocker struct {
	client *redislock.Client
	cfg    RedisConfig
	logger *zap.Logger
}

// NewRedisLocker wraps a go-redis client
func NewRedisLocker(rdb redis.UniversalClient, cfg RedisConfig, logger *zap.Logger) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "invoice-match:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 50 * time.Millisecond
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client: redislock.New(rdb),
		cfg:    cfg,
		logger: logger,
	}
}

// Acquire implements port.MatchLocker. The lock expires after TTL if the
// holder dies without releasing it.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lk, err := l.client.Obtain(ctx, l.cfg.Prefix+key, l.cfg.TTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(l.cfg.Backoff), l.cfg.Retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", port.ErrLockTimeout, key)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", port.ErrLockTimeout, key, err)
		}
		l.logger.Error("Failed to obtain match lock", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}

	return func() {
		// release even if the request context is already cancelled
		if err := lk.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("Failed to release match lock", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

var _ port.MatchLocker = (*RedisLocker)(nil)
