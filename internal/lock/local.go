package lock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Local is an in-process Locker holding one weighted semaphore per user.
type Local struct {
	mu    sync.Mutex
	users map[string]*userSem
}

type userSem struct {
	sem  *semaphore.Weighted
	refs int
}

var _ Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{users: make(map[string]*userSem)}
}

func (l *Local) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	us := l.acquireRef(userID)
	defer l.releaseRef(userID, us)

	if err := us.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w %s: %w", ErrNotAcquired, userID, err)
	}
	defer us.sem.Release(1)

	return fn(ctx)
}

func (l *Local) acquireRef(userID string) *userSem {
	l.mu.Lock()
	defer l.mu.Unlock()
	us, ok := l.users[userID]
	if !ok {
		us = &userSem{sem: semaphore.NewWeighted(1)}
		l.users[userID] = us
	}
	us.refs++
	return us
}

// releaseRef drops the semaphore once no caller holds or waits on it.
func (l *Local) releaseRef(userID string, us *userSem) {
	l.mu.Lock()
	defer l.mu.Unlock()
	us.refs--
	if us.refs == 0 {
		delete(l.users, userID)
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}
