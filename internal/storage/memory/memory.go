// Package memory is an in-process storage backend for tests and short local
// runs.
//
// Units of work are serialized across all users and each one copies the whole
// dataset, so a write costs time proportional to everything stored. Use the
// sqlite or mongo backend for anything long-lived.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

type budgetKey struct{ owner, category string }

type data struct {
	balances map[string]core.Money
	entries  map[string]core.Entry
	goals    map[string]core.Goal
	budgets  map[budgetKey]core.Budget
}

func newData() *data {
	return &data{
		balances: map[string]core.Money{},
		entries:  map[string]core.Entry{},
		goals:    map[string]core.Goal{},
		budgets:  map[budgetKey]core.Budget{},
	}
}

// Store keeps everything in maps. Units of work run one at a time and write
// to a staged copy that replaces the live data only on success.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	live *data
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{live: newData()}
}

// Atomically stages fn's writes and commits them when fn returns nil.
func (s *Store) Atomically(ctx context.Context, fn func(tx storage.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	staged := s.live.clone()
	s.mu.RUnlock()

	if err := fn(&view{d: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.live = staged
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) read(fn func(v *view) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&view{d: s.live})
}

func (s *Store) write(fn func(v *view) error) error {
	return s.Atomically(context.Background(), func(tx storage.Tx) error {
		return fn(tx.(*view))
	})
}

func (s *Store) Balance(ctx context.Context, userID string) (m core.Money, err error) {
	err = s.read(func(v *view) error { m, err = v.Balance(ctx, userID); return err })
	return
}

func (s *Store) SetBalance(ctx context.Context, userID string, balance core.Money) error {
	return s.write(func(v *view) error { return v.SetBalance(ctx, userID, balance) })
}

func (s *Store) GetEntry(ctx context.Context, id, owner string) (e core.Entry, err error) {
	err = s.read(func(v *view) error { e, err = v.GetEntry(ctx, id, owner); return err })
	return
}

func (s *Store) SaveEntry(ctx context.Context, e core.Entry) error {
	return s.write(func(v *view) error { return v.SaveEntry(ctx, e) })
}

func (s *Store) ListEntries(ctx context.Context, owner string) (out []core.Entry, err error) {
	err = s.read(func(v *view) error { out, err = v.ListEntries(ctx, owner); return err })
	return
}

func (s *Store) SumExpenses(ctx context.Context, owner, category string, from, to time.Time) (m core.Money, err error) {
	err = s.read(func(v *view) error { m, err = v.SumExpenses(ctx, owner, category, from, to); return err })
	return
}

func (s *Store) GetGoal(ctx context.Context, id, owner string) (g core.Goal, err error) {
	err = s.read(func(v *view) error { g, err = v.GetGoal(ctx, id, owner); return err })
	return
}

func (s *Store) SaveGoal(ctx context.Context, g core.Goal) error {
	return s.write(func(v *view) error { return v.SaveGoal(ctx, g) })
}

func (s *Store) DeleteGoal(ctx context.Context, id, owner string) error {
	return s.write(func(v *view) error { return v.DeleteGoal(ctx, id, owner) })
}

func (s *Store) ListGoals(ctx context.Context, owner string) (out []core.Goal, err error) {
	err = s.read(func(v *view) error { out, err = v.ListGoals(ctx, owner); return err })
	return
}

func (s *Store) ActiveGoals(ctx context.Context, owner string) (out []core.Goal, err error) {
	err = s.read(func(v *view) error { out, err = v.ActiveGoals(ctx, owner); return err })
	return
}

func (s *Store) SetBudget(ctx context.Context, b core.Budget) error {
	return s.write(func(v *view) error { return v.SetBudget(ctx, b) })
}

func (s *Store) GetBudget(ctx context.Context, owner, category string) (b core.Budget, err error) {
	err = s.read(func(v *view) error { b, err = v.GetBudget(ctx, owner, category); return err })
	return
}

func (s *Store) ListBudgets(ctx context.Context, owner string) (out []core.Budget, err error) {
	err = s.read(func(v *view) error { out, err = v.ListBudgets(ctx, owner); return err })
	return
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.balances {
		c.balances[k] = v
	}
	for k, v := range d.entries {
		c.entries[k] = v
	}
	for k, v := range d.goals {
		c.goals[k] = v
	}
	for k, v := range d.budgets {
		c.budgets[k] = v
	}
	return c
}

// view implements storage.Tx over one data snapshot.
type view struct {
	d *data
}

func (v *view) Balance(_ context.Context, userID string) (core.Money, error) {
	return v.d.balances[userID], nil
}

func (v *view) SetBalance(_ context.Context, userID string, balance core.Money) error {
	v.d.balances[userID] = balance
	return nil
}

func (v *view) GetEntry(_ context.Context, id, owner string) (core.Entry, error) {
	e, ok := v.d.entries[id]
	if !ok || e.Owner != owner {
		return core.Entry{}, storage.ErrNotFound
	}
	return e, nil
}

func (v *view) SaveEntry(_ context.Context, e core.Entry) error {
	v.d.entries[e.ID] = e
	return nil
}

func (v *view) ListEntries(_ context.Context, owner string) ([]core.Entry, error) {
	var out []core.Entry
	for _, e := range v.d.entries {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (v *view) SumExpenses(_ context.Context, owner, category string, from, to time.Time) (core.Money, error) {
	var total core.Money
	for _, e := range v.d.entries {
		if e.Owner != owner || e.Category != category || e.Kind != core.Expense || e.Voided {
			continue
		}
		if e.CreatedAt.Before(from) || !e.CreatedAt.Before(to) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total, nil
}

func (v *view) GetGoal(_ context.Context, id, owner string) (core.Goal, error) {
	g, ok := v.d.goals[id]
	if !ok || g.Owner != owner {
		return core.Goal{}, storage.ErrNotFound
	}
	return g, nil
}

func (v *view) SaveGoal(_ context.Context, g core.Goal) error {
	v.d.goals[g.ID] = g
	return nil
}

func (v *view) DeleteGoal(_ context.Context, id, owner string) error {
	g, ok := v.d.goals[id]
	if !ok || g.Owner != owner {
		return storage.ErrNotFound
	}
	delete(v.d.goals, id)
	return nil
}

func (v *view) ListGoals(_ context.Context, owner string) ([]core.Goal, error) {
	out := v.goalsOf(owner, func(core.Goal) bool { return true })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate.Time) {
			return out[i].StartDate.After(out[j].StartDate.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (v *view) ActiveGoals(_ context.Context, owner string) ([]core.Goal, error) {
	out := v.goalsOf(owner, func(g core.Goal) bool { return g.State == core.GoalActive })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v *view) goalsOf(owner string, keep func(core.Goal) bool) []core.Goal {
	var out []core.Goal
	for _, g := range v.d.goals {
		if g.Owner == owner && keep(g) {
			out = append(out, g)
		}
	}
	return out
}

func (v *view) SetBudget(_ context.Context, b core.Budget) error {
	v.d.budgets[budgetKey{b.Owner, b.Category}] = b
	return nil
}

func (v *view) GetBudget(_ context.Context, owner, category string) (core.Budget, error) {
	b, ok := v.d.budgets[budgetKey{owner, category}]
	if !ok {
		return core.Budget{}, storage.ErrNotFound
	}
	return b, nil
}

func (v *view) ListBudgets(_ context.Context, owner string) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range v.d.budgets {
		if b.Owner == owner {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}
