package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// RedisOptions tunes how hard Redis tries to take a busy lock.
type RedisOptions struct {
	// Expiry bounds how long a crashed holder can block the user. A live
	// holder extends the lock every Expiry/2 while its work runs.
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     10 * time.Second,
		Tries:      64,
		RetryDelay: 50 * time.Millisecond,
	}
}

// Redis is a Locker shared by every process pointing at the same Redis,
// built on the Redlock algorithm.
type Redis struct {
	rs   *redsync.Redsync
	opts RedisOptions
}

var _ Locker = (*Redis)(nil)

func NewRedis(client goredislib.UniversalClient, opts RedisOptions) *Redis {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultRedisOptions().Expiry
	}
	if opts.Tries <= 0 {
		opts.Tries = DefaultRedisOptions().Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRedisOptions().RetryDelay
	}
	return &Redis{
		rs:   redsync.New(goredis.NewPool(client)),
		opts: opts,
	}
}

func (r *Redis) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	key := Key(userID)
	mutex := r.rs.NewMutex(key,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w %s: %w", ErrNotAcquired, userID, err)
	}
	defer func() {
		// Unlock with a fresh context so a cancelled caller still frees the key.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			slog.Warn("Failed to release user lock", "key", key, "ok", ok, "error", err)
		}
	}()

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		r.keepAlive(ctx, mutex, key, stop)
	}()
	defer func() {
		close(stop)
		<-stopped
	}()

	return fn(ctx)
}

// keepAlive extends the mutex every half expiry until stop is closed.
func (r *Redis) keepAlive(ctx context.Context, mutex *redsync.Mutex, key string, stop <-chan struct{}) {
	ticker := time.NewTicker(r.opts.Expiry / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ok, err := mutex.ExtendContext(ctx); !ok || err != nil {
				slog.WarnContext(ctx, "Failed to extend user lock", "key", key, "ok", ok, "error", err)
			}
		}
	}
}
