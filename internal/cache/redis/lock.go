package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// unlockLua deletes the lock only while it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager implements domain.LockManager with SET NX and a TTL. The
// archive job takes the "archive" key around each month export so two
// processes sharing a journal never write the same monthly object at once.
// Lock values name the holding process, so a skipped run can say who has it.
type LockManager struct {
	rdb      *redis.Client
	unlockSc *redis.Script
	holder   string
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	return &LockManager{
		rdb:      c.Underlying(),
		unlockSc: redis.NewScript(unlockLua),
		holder:   fmt.Sprintf("%s/%d", host, os.Getpid()),
	}
}

func lockKey(key string) string {
	return "quadscalp:lock:" + key
}

// Acquire takes the lock for key. When another process holds it the error
// wraps domain.ErrLockHeld and names the holder. The returned unlock func may
// be called more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := lm.holder + "#" + uuid.NewString()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s held by %s", domain.ErrLockHeld, key, lm.currentHolder(ctx, lk))
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			// The caller's context may already be cancelled on shutdown.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, nil
}

// currentHolder reads the process part of the token stored at lk.
func (lm *LockManager) currentHolder(ctx context.Context, lk string) string {
	val, err := lm.rdb.Get(ctx, lk).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "nobody (expired)"
	case err != nil:
		return "unknown"
	}
	holder, _, _ := strings.Cut(val, "#")
	return holder
}

var _ domain.LockManager = (*LockManager)(nil)
