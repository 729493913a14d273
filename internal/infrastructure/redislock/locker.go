// Package redislock serializes stock keys across instances with Redis SET NX PX locks.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/inventory-costing/internal/domain"
	"github.com/jhoicas/inventory-costing/pkg/config"
)

const keyPrefix = "inventory:lock:"

// Deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker is a KeyLocker backed by Redis. The TTL bounds how long a crashed holder can keep a
// key; it must exceed the longest movement transaction.
type Locker struct {
	client  redis.UniversalClient
	ttl     time.Duration
	timeout time.Duration
	retry   time.Duration
}

// New returns a locker that waits at most timeout for a key, polling every 25ms.
func New(client redis.UniversalClient, ttl, timeout time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl, timeout: timeout, retry: 25 * time.Millisecond}
}

// NewClient builds a go-redis client from config.
func NewClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// Lock acquires key or returns *domain.ContentionError after the timeout.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.New().String()
	start := time.Now()
	deadline := start.Add(l.timeout)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, domain.Storage("acquire redis lock", err)
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}
		if !time.Now().Add(l.retry).Before(deadline) {
			return nil, &domain.ContentionError{Key: key, Waited: time.Since(start)}
		}

		t := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// releaser runs on a fresh context so a canceled request still frees the key.
func (l *Locker) releaser(redisKey, token string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// On failure the TTL frees the key.
		_ = releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
	}
}
