// Package lock serializes critical sections across goroutines and, with redis,
// across replicas.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Builder-Lawyers/hub-provisioner/pkg/env"
	"github.com/redis/go-redis/v9"
)

type Locker interface {
	// Acquire blocks until key is held or ctx is done. The returned release is
	// safe to call more than once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// New picks redis when REDIS_ADDR is set, an in-process locker otherwise.
func New() Locker {
	addr := env.GetEnv("REDIS_ADDR", "")
	if addr == "" {
		slog.Info("REDIS_ADDR not set, using in-process locks")
		return NewLocal()
	}
	return NewRedis(redis.NewClient(&redis.Options{Addr: addr}), env.GetEnvDuration("LOCK_TTL", 30*time.Second))
}

type Local struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]chan struct{})}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() { once.Do(func() { <-slot }) }, nil
}

// compare-and-delete, so an expired holder never frees a lock taken over by someone else
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Redis struct {
	client     redis.UniversalClient
	ttl        time.Duration
	retryEvery time.Duration
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl, retryEvery: 50 * time.Millisecond}
}

var ErrLockLost = errors.New("lock expired before release")

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	key = "hub-provisioner:lock:" + key
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(r.retryEvery)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := releaseScript.Run(ctx, r.client, []string{key}, token).Int()
			if err != nil {
				slog.Error("releasing lock", "key", key, "err", err)
				return
			}
			if n == 0 {
				slog.Warn("releasing lock", "key", key, "err", ErrLockLost)
			}
		})
	}
	return release, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
