package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/storage"
	"bilancio/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}

func TestAtomicallyRunsOneUnitAtATime(t *testing.T) {
	s := New()
	var inside, maxInside int32

	var g errgroup.Group
	for _, user := range []string{"u1", "u2", "u3", "u4"} {
		user := user
		g.Go(func() error {
			return s.Atomically(context.Background(), func(tx storage.Tx) error {
				n := atomic.AddInt32(&inside, 1)
				if n > atomic.LoadInt32(&maxInside) {
					atomic.StoreInt32(&maxInside, n)
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return tx.SetBalance(context.Background(), user, core.Cents(100))
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Atomically: %v", err)
	}
	if maxInside != 1 {
		t.Errorf("%d units of work overlapped, want 1", maxInside)
	}
	for _, user := range []string{"u1", "u2", "u3", "u4"} {
		if b, _ := s.Balance(context.Background(), user); b.Cents != 100 {
			t.Errorf("balance of %s = %d, want 100", user, b.Cents)
		}
	}
}
