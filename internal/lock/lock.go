// Package lock serialises financial operations per user.
//
// Operations on the same user are mutually exclusive; different users never
// wait on each other.
package lock

import (
	"context"
	"errors"
)

// ErrNotAcquired is returned when the user's lock could not be taken before
// the context ended or the retries ran out.
var ErrNotAcquired = errors.New("could not acquire user lock")

// Locker runs fn while holding the lock for userID.
type Locker interface {
	WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context) error) error
}

// Key is the lock name used for a user.
func Key(userID string) string {
	return "bilancio:user:" + userID
}
