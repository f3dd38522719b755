package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredislib "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedis(client, RedisOptions{Expiry: 5 * time.Second, Tries: 500, RetryDelay: 5 * time.Millisecond})
}

func lockers(t *testing.T) map[string]Locker {
	return map[string]Locker{
		"local": NewLocal(),
		"redis": newTestRedis(t),
	}
}

func TestKey(t *testing.T) {
	if got := Key("42"); got != "bilancio:user:42" {
		t.Errorf("Key(42) = %q", got)
	}
}

func TestWithUserLock_SameUserIsExclusive(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, maxInside, done int32
			g, ctx := errgroup.WithContext(context.Background())
			for i := 0; i < 20; i++ {
				g.Go(func() error {
					return l.WithUserLock(ctx, "u1", func(context.Context) error {
						n := atomic.AddInt32(&inside, 1)
						for {
							m := atomic.LoadInt32(&maxInside)
							if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
								break
							}
						}
						time.Sleep(time.Millisecond)
						atomic.AddInt32(&inside, -1)
						atomic.AddInt32(&done, 1)
						return nil
					})
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatalf("WithUserLock: %v", err)
			}
			if maxInside != 1 {
				t.Errorf("max concurrent holders = %d, want 1", maxInside)
			}
			if done != 20 {
				t.Errorf("completed = %d, want 20", done)
			}
		})
	}
}

func TestWithUserLock_DifferentUsersDoNotBlock(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			held := make(chan struct{})
			release := make(chan struct{})
			errc := make(chan error, 1)
			go func() {
				errc <- l.WithUserLock(context.Background(), "alice", func(context.Context) error {
					close(held)
					<-release
					return nil
				})
			}()
			<-held

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			ran := false
			err := l.WithUserLock(ctx, "bob", func(context.Context) error {
				ran = true
				return nil
			})
			close(release)

			if err != nil || !ran {
				t.Fatalf("bob blocked by alice: ran=%v err=%v", ran, err)
			}
			if err := <-errc; err != nil {
				t.Fatalf("alice: %v", err)
			}
		})
	}
}

func TestWithUserLock_ReturnsFnError(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			boom := errors.New("boom")
			if err := l.WithUserLock(context.Background(), "u1", func(context.Context) error { return boom }); !errors.Is(err, boom) {
				t.Fatalf("err = %v, want boom", err)
			}
			// The lock must be free again.
			if err := l.WithUserLock(context.Background(), "u1", func(context.Context) error { return nil }); err != nil {
				t.Fatalf("second WithUserLock: %v", err)
			}
		})
	}
}

func TestLocal_CancelledWhileWaiting(t *testing.T) {
	l := NewLocal()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithUserLock(context.Background(), "u1", func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.WithUserLock(ctx, "u1", func(context.Context) error {
		t.Error("fn must not run without the lock")
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("err = %v, want ErrNotAcquired", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want it to wrap context.DeadlineExceeded", err)
	}
}

func TestLocal_ForgetsIdleUsers(t *testing.T) {
	l := NewLocal()
	for _, u := range []string{"a", "b", "c"} {
		_ = l.WithUserLock(context.Background(), u, func(context.Context) error { return nil })
	}
	if n := l.size(); n != 0 {
		t.Errorf("idle semaphores = %d, want 0", n)
	}
}

func TestRedis_BusyLockGivesUp(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	defer client.Close()

	if err := mr.Set(Key("u1"), "someone-else"); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	l := NewRedis(client, RedisOptions{Expiry: time.Second, Tries: 2, RetryDelay: time.Millisecond})

	err := l.WithUserLock(context.Background(), "u1", func(context.Context) error {
		t.Error("fn must not run without the lock")
		return nil
	})
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("err = %v, want ErrNotAcquired", err)
	}
}

func TestRedis_LongWorkKeepsLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredislib.NewClient(&goredislib.Options{Addr: mr.Addr()})
	defer client.Close()
	l := NewRedis(client, RedisOptions{Expiry: 400 * time.Millisecond, Tries: 2, RetryDelay: time.Millisecond})

	err := l.WithUserLock(context.Background(), "u1", func(context.Context) error {
		// Most of the expiry passes, then the holder keeps working past it.
		mr.FastForward(300 * time.Millisecond)
		time.Sleep(300 * time.Millisecond)
		mr.FastForward(200 * time.Millisecond)
		if !mr.Exists(Key("u1")) {
			t.Error("lock expired while its holder was still working")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithUserLock: %v", err)
	}
	if mr.Exists(Key("u1")) {
		t.Error("lock not released")
	}
}
