package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/lock"
	"bilancio/internal/storage"
	"bilancio/internal/storage/memory"
)

type recordingNotifier struct {
	mu        sync.Mutex
	err       error
	expenses  []expenseEvent
	completed []string
	changes   []entryEvent
}

func (n *recordingNotifier) NotifyExpense(_ context.Context, userID, category string, amount core.Money) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expenses = append(n.expenses, expenseEvent{userID, category, amount})
	return n.err
}

func (n *recordingNotifier) NotifyGoalCompleted(_ context.Context, _, _, goalName string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, goalName)
	return n.err
}

func (n *recordingNotifier) NotifyEntryChanged(_ context.Context, e core.Entry, op core.EntryOp) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, entryEvent{e, op})
	return n.err
}

type fixture struct {
	store    storage.Store
	txs      *TransactionService
	goals    *GoalService
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, memory.New(), DefaultSharePercent)
}

func newFixtureWith(t *testing.T, store storage.Store, share decimal.Decimal) *fixture {
	t.Helper()
	n := &recordingNotifier{}
	locker := lock.NewLocal()
	clock := &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	goals := NewGoalService(store, locker, n, share)
	goals.now = clock.Now
	txs := NewTransactionService(store, locker, goals, n)
	txs.now = clock.Now
	return &fixture{
		store:    store,
		txs:      txs,
		goals:    goals,
		notifier: n,
	}
}

// testClock ticks one second per reading so creation order is deterministic.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (f *fixture) seedBalance(t *testing.T, owner string, cents int64) {
	t.Helper()
	if err := f.store.SetBalance(context.Background(), owner, core.Cents(cents)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
}

func (f *fixture) balance(t *testing.T, owner string) int64 {
	t.Helper()
	m, err := f.txs.Balance(context.Background(), owner)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return m.Cents
}

func (f *fixture) mustCreate(t *testing.T, owner string, kind core.Kind, category string, cents int64) core.Entry {
	t.Helper()
	e, err := f.txs.Create(context.Background(), owner, EntryInput{Kind: kind, Category: category, Amount: core.Cents(cents)})
	if err != nil {
		t.Fatalf("Create %s %d: %v", kind, cents, err)
	}
	return e
}

func (f *fixture) mustGoal(t *testing.T, owner, name string, target, accrued int64) core.Goal {
	t.Helper()
	g, err := f.goals.Create(context.Background(), owner, GoalInput{
		Name:      name,
		Target:    core.Cents(target),
		Accrued:   core.Cents(accrued),
		StartDate: core.NewDate(2025, 1, 1),
		EndDate:   core.NewDate(2025, 12, 31),
	})
	if err != nil {
		t.Fatalf("create goal %s: %v", name, err)
	}
	return g
}

func wantKind(t *testing.T, err error, kind core.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := core.KindOf(err); got != kind {
		t.Fatalf("error kind = %s (%v), want %s", got, err, kind)
	}
}

// failingStore wraps a store and fails chosen writes inside units of work.
type failingStore struct {
	storage.Store
	failSaveEntry bool
	failSaveGoal  bool
}

var errInjected = errors.New("injected failure")

func (s *failingStore) Atomically(ctx context.Context, fn func(tx storage.Tx) error) error {
	return s.Store.Atomically(ctx, func(tx storage.Tx) error {
		return fn(&failingTx{Tx: tx, s: s})
	})
}

type failingTx struct {
	storage.Tx
	s *failingStore
}

func (tx *failingTx) SaveEntry(ctx context.Context, e core.Entry) error {
	if tx.s.failSaveEntry {
		return errInjected
	}
	return tx.Tx.SaveEntry(ctx, e)
}

func (tx *failingTx) SaveGoal(ctx context.Context, g core.Goal) error {
	if tx.s.failSaveGoal {
		return errInjected
	}
	return tx.Tx.SaveGoal(ctx, g)
}
