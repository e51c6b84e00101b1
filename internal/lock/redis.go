package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig configures RedisLocker.
type RedisConfig struct {
	// Prefix is prepended to every lock key.
	Prefix string `json:"prefix"`
	// TTL bounds how long a crashed holder can block a key.
	TTL time.Duration `json:"ttl"`
	// RetryInterval is the pause between acquisition attempts.
	RetryInterval time.Duration `json:"retry_interval"`
}

// DefaultRedisConfig returns the default Redis lock configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix:        "tasteid:lock:",
		TTL:           30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// RedisLocker is a Locker shared by every worker instance pointing at the same Redis.
type RedisLocker struct {
	pool   *redis.Pool
	logger zerolog.Logger
	config RedisConfig
}

// NewRedisLocker creates a Redis-backed locker.
func NewRedisLocker(pool *redis.Pool, config RedisConfig, logger zerolog.Logger) *RedisLocker {
	return &RedisLocker{
		pool:   pool,
		config: config,
		logger: logger.With().Str("component", "redis-lock").Logger(),
	}
}

// NewPool creates a redigo pool for addr.
func NewPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 5 * time.Minute,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// Lock retries SET NX PX until it succeeds or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = l.config.Prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.tryLock(ctx, key, token)
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(l.config.RetryInterval):
		}
	}

	return func() {
		if err := l.unlock(key, token); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("Failed to release lock, it will expire")
		}
	}, nil
}

func (l *RedisLocker) tryLock(ctx context.Context, key, token string) (bool, error) {
	conn, err := l.pool.GetContext(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	reply, err := redis.String(conn.Do("SET", key, token, "NX", "PX", l.config.TTL.Milliseconds()))
	if errors.Is(err, redis.ErrNil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return reply == "OK", nil
}

func (l *RedisLocker) unlock(key, token string) error {
	conn := l.pool.Get()
	defer conn.Close()

	deleted, err := redis.Int(releaseScript.Do(conn, key, token))
	if err != nil {
		return err
	}
	if deleted == 0 {
		l.logger.Warn().Str("key", key).Msg("Lock expired before release")
	}
	return nil
}
