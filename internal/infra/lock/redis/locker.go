// Package redis provides a distributed keyed lock on a single Redis instance
// using SET NX PX with a per-holder token.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	defaultTTL   = 2 * time.Minute
	defaultRetry = 50 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config configures the Redis connection and lock timing.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Locker acquires per-key locks in Redis. A lock expires after TTL if its
// holder dies without releasing it.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewClient creates a Redis client from cfg.
func NewClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New returns a locker over client. A non-positive ttl selects the default.
func New(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{client: client, ttl: ttl, retry: defaultRetry}
}

// Open connects to Redis and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Locker, error) {
	client := NewClient(cfg)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return New(client, cfg.TTL), nil
}

// Lock polls until key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return l.unlockFunc(key, token), nil
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) unlockFunc(key, token string) func() {
	released := false
	return func() {
		if released {
			return
		}
		released = true
		// Release must outlive a cancelled caller context.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// A failed release is bounded by the TTL.
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}
}

// Close closes the underlying client.
func (l *Locker) Close() error { return l.client.Close() }
