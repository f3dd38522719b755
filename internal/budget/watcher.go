// Package budget keeps per-category monthly spending limits and checks
// recorded expenses against them.
package budget

import (
	"context"
	"errors"
	"strings"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
	"bilancio/internal/log"
	"bilancio/internal/storage"
)

// Store is what the watcher needs from storage.
type Store interface {
	storage.Budgets
	SumExpenses(ctx context.Context, owner, category string, from, to time.Time) (core.Money, error)
}

// Status is the month-to-date position of one category.
type Status struct {
	Budget   core.Budget
	Spent    core.Money
	Exceeded bool
}

// Remaining is what can still be spent this month, zero once exceeded.
func (s Status) Remaining() core.Money {
	r := s.Budget.Limit.Sub(s.Spent)
	if r.IsNegative() {
		return core.Money{}
	}
	return r
}

type Watcher struct {
	store  Store
	logger *log.StructuredLogger
	now    func() time.Time
	limits cache.Cache[cachedLimit]
}

// cachedLimit remembers a lookup, including that a category has no budget.
type cachedLimit struct {
	budget core.Budget
	found  bool
}

func NewWatcher(store Store, logger *log.Logger) *Watcher {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Watcher{
		store:  store,
		logger: log.NewStructuredLogger(logger.WithComponent(log.ComponentBudget)),
		now:    time.Now,
	}
}

// Set stores the monthly limit for a category, replacing any previous one.
func (w *Watcher) Set(ctx context.Context, owner, category string, limit core.Money) (core.Budget, error) {
	if strings.TrimSpace(owner) == "" {
		return core.Budget{}, core.Validation(errors.New("user id is required"))
	}
	b := core.Budget{Owner: owner, Category: strings.TrimSpace(category), Limit: limit}
	if err := b.Validate(); err != nil {
		return core.Budget{}, core.Validation(err)
	}
	if err := w.store.SetBudget(ctx, b); err != nil {
		return core.Budget{}, core.Internal("could not save budget", err)
	}
	if w.limits != nil {
		w.limits.Delete(limitKey(b.Owner, b.Category))
	}
	return b, nil
}

func (w *Watcher) List(ctx context.Context, owner string) ([]core.Budget, error) {
	budgets, err := w.store.ListBudgets(ctx, owner)
	if err != nil {
		return nil, core.Internal("could not list budgets", err)
	}
	return budgets, nil
}

// Check evaluates the category of a just-recorded expense. ok is false when
// the category has no budget.
func (w *Watcher) Check(ctx context.Context, userID, category string) (status Status, ok bool, err error) {
	b, found, err := w.limit(ctx, userID, category)
	if err != nil {
		return Status{}, false, err
	}
	if !found {
		return Status{}, false, nil
	}

	from, to := monthBounds(w.now())
	spent, err := w.store.SumExpenses(ctx, userID, category, from, to)
	if err != nil {
		return Status{}, false, core.Internal("could not total expenses", err)
	}

	status = Status{Budget: b, Spent: spent, Exceeded: spent.GreaterThan(b.Limit)}
	if status.Exceeded {
		w.logger.LogBudgetExceeded(ctx, userID, category, spent.Cents, b.Limit.Cents)
	}
	return status, true, nil
}

// CacheLimits keeps budget lookups for ttl. A limit changed by another
// process is seen once its entry expires. The returned cleaner should be
// registered with a cache.Manager.
func (w *Watcher) CacheLimits(size int, ttl time.Duration) cache.Cleaner {
	c := cache.NewLRUCache[cachedLimit](size, ttl)
	w.limits = c
	return c
}

func (w *Watcher) limit(ctx context.Context, userID, category string) (core.Budget, bool, error) {
	key := limitKey(userID, category)
	if w.limits != nil {
		if l, ok := w.limits.Get(key); ok {
			return l.budget, l.found, nil
		}
	}

	b, err := w.store.GetBudget(ctx, userID, category)
	found := true
	if errors.Is(err, storage.ErrNotFound) {
		found, err = false, nil
	}
	if err != nil {
		return core.Budget{}, false, core.Internal("could not load budget", err)
	}
	if w.limits != nil {
		w.limits.Set(key, cachedLimit{budget: b, found: found})
	}
	return b, found, nil
}

func limitKey(userID, category string) string {
	return userID + "\x00" + category
}

// monthBounds returns the UTC calendar month containing t as [from, to).
func monthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
