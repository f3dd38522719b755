// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// Run exercises newStore against the storage.Store contract.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("balance defaults to zero", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Balance(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("Balance: %v", err)
		}
		if !got.IsZero() {
			t.Errorf("Balance = %v, want zero", got)
		}
	})

	t.Run("set balance", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.SetBalance(ctx, "u1", core.Cents(500)); err != nil {
			t.Fatalf("SetBalance: %v", err)
		}
		if err := s.SetBalance(ctx, "u1", core.Cents(700)); err != nil {
			t.Fatalf("SetBalance: %v", err)
		}
		got, _ := s.Balance(ctx, "u1")
		if got.Cents != 700 {
			t.Errorf("Balance = %d, want 700", got.Cents)
		}
	})

	t.Run("entries are owner scoped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e := entry("e1", "u1", core.Expense, "food", 300, time.Now())
		if err := s.SaveEntry(ctx, e); err != nil {
			t.Fatalf("SaveEntry: %v", err)
		}

		got, err := s.GetEntry(ctx, "e1", "u1")
		if err != nil {
			t.Fatalf("GetEntry: %v", err)
		}
		if got.Amount.Cents != 300 || got.Category != "food" || got.Kind != core.Expense {
			t.Errorf("GetEntry = %+v", got)
		}

		if _, err := s.GetEntry(ctx, "e1", "u2"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetEntry other owner err = %v, want ErrNotFound", err)
		}
		if _, err := s.GetEntry(ctx, "missing", "u1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetEntry missing err = %v, want ErrNotFound", err)
		}
	})

	t.Run("save entry overwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		e := entry("e1", "u1", core.Expense, "food", 300, time.Now())
		_ = s.SaveEntry(ctx, e)
		e.Voided = true
		e.Description = "fixed"
		if err := s.SaveEntry(ctx, e); err != nil {
			t.Fatalf("SaveEntry: %v", err)
		}
		got, _ := s.GetEntry(ctx, "e1", "u1")
		if !got.Voided || got.Description != "fixed" {
			t.Errorf("GetEntry = %+v, want voided with new description", got)
		}
	})

	t.Run("list entries newest first", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		_ = s.SaveEntry(ctx, entry("a", "u1", core.Income, "salary", 100, base))
		_ = s.SaveEntry(ctx, entry("b", "u1", core.Expense, "food", 10, base.Add(time.Hour)))
		_ = s.SaveEntry(ctx, entry("c", "u2", core.Expense, "food", 10, base.Add(2*time.Hour)))

		got, err := s.ListEntries(ctx, "u1")
		if err != nil {
			t.Fatalf("ListEntries: %v", err)
		}
		if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
			t.Errorf("ListEntries ids = %v, want [b a]", entryIDs(got))
		}
	})

	t.Run("sum expenses", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		march := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
		voided := entry("v", "u1", core.Expense, "food", 1000, march)
		voided.Voided = true
		for _, e := range []core.Entry{
			entry("a", "u1", core.Expense, "food", 250, march),
			entry("b", "u1", core.Expense, "food", 150, march.Add(24*time.Hour)),
			entry("c", "u1", core.Expense, "rent", 900, march),
			entry("d", "u1", core.Income, "food", 999, march),
			entry("e", "u1", core.Expense, "food", 75, march.AddDate(0, 1, 0)),
			entry("f", "u2", core.Expense, "food", 40, march),
			voided,
		} {
			if err := s.SaveEntry(ctx, e); err != nil {
				t.Fatalf("SaveEntry: %v", err)
			}
		}

		from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		got, err := s.SumExpenses(ctx, "u1", "food", from, from.AddDate(0, 1, 0))
		if err != nil {
			t.Fatalf("SumExpenses: %v", err)
		}
		if got.Cents != 400 {
			t.Errorf("SumExpenses = %d, want 400", got.Cents)
		}
	})

	t.Run("goals", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Now().UTC()
		g1 := goal("g1", "u1", core.NewDate(2025, 1, 1), core.GoalActive, now)
		g2 := goal("g2", "u1", core.NewDate(2025, 6, 1), core.GoalCompleted, now.Add(time.Second))
		g3 := goal("g3", "u1", core.NewDate(2024, 6, 1), core.GoalActive, now.Add(2*time.Second))
		for _, g := range []core.Goal{g1, g2, g3, goal("x", "u2", core.NewDate(2025, 1, 1), core.GoalActive, now)} {
			if err := s.SaveGoal(ctx, g); err != nil {
				t.Fatalf("SaveGoal: %v", err)
			}
		}

		got, err := s.GetGoal(ctx, "g1", "u1")
		if err != nil {
			t.Fatalf("GetGoal: %v", err)
		}
		if got.Name != g1.Name || got.Target != g1.Target || !got.StartDate.Equal(g1.StartDate.Time) {
			t.Errorf("GetGoal = %+v, want %+v", got, g1)
		}
		if _, err := s.GetGoal(ctx, "g1", "u2"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetGoal other owner err = %v, want ErrNotFound", err)
		}

		all, _ := s.ListGoals(ctx, "u1")
		if ids := goalIDs(all); len(ids) != 3 || ids[0] != "g2" || ids[1] != "g1" || ids[2] != "g3" {
			t.Errorf("ListGoals ids = %v, want [g2 g1 g3]", ids)
		}

		active, _ := s.ActiveGoals(ctx, "u1")
		if ids := goalIDs(active); len(ids) != 2 || ids[0] != "g1" || ids[1] != "g3" {
			t.Errorf("ActiveGoals ids = %v, want [g1 g3]", ids)
		}

		if err := s.DeleteGoal(ctx, "g2", "u2"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("DeleteGoal other owner err = %v, want ErrNotFound", err)
		}
		if err := s.DeleteGoal(ctx, "g2", "u1"); err != nil {
			t.Fatalf("DeleteGoal: %v", err)
		}
		if _, err := s.GetGoal(ctx, "g2", "u1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetGoal after delete err = %v, want ErrNotFound", err)
		}
	})

	t.Run("budgets", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.GetBudget(ctx, "u1", "food"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetBudget missing err = %v, want ErrNotFound", err)
		}
		_ = s.SetBudget(ctx, core.Budget{Owner: "u1", Category: "rent", Limit: core.Cents(90000)})
		_ = s.SetBudget(ctx, core.Budget{Owner: "u1", Category: "food", Limit: core.Cents(100)})
		_ = s.SetBudget(ctx, core.Budget{Owner: "u1", Category: "food", Limit: core.Cents(200)})

		got, err := s.GetBudget(ctx, "u1", "food")
		if err != nil {
			t.Fatalf("GetBudget: %v", err)
		}
		if got.Limit.Cents != 200 {
			t.Errorf("GetBudget limit = %d, want 200", got.Limit.Cents)
		}
		list, _ := s.ListBudgets(ctx, "u1")
		if len(list) != 2 || list[0].Category != "food" || list[1].Category != "rent" {
			t.Errorf("ListBudgets = %+v", list)
		}
	})

	t.Run("atomically commits", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.Atomically(ctx, func(tx storage.Tx) error {
			if err := tx.SetBalance(ctx, "u1", core.Cents(42)); err != nil {
				return err
			}
			return tx.SaveEntry(ctx, entry("e1", "u1", core.Income, "gift", 42, time.Now()))
		})
		if err != nil {
			t.Fatalf("Atomically: %v", err)
		}
		bal, _ := s.Balance(ctx, "u1")
		if bal.Cents != 42 {
			t.Errorf("Balance = %d, want 42", bal.Cents)
		}
		if _, err := s.GetEntry(ctx, "e1", "u1"); err != nil {
			t.Errorf("GetEntry after commit: %v", err)
		}
	})

	t.Run("atomically rolls back on error", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_ = s.SetBalance(ctx, "u1", core.Cents(10))
		boom := errors.New("boom")

		err := s.Atomically(ctx, func(tx storage.Tx) error {
			if err := tx.SetBalance(ctx, "u1", core.Cents(99)); err != nil {
				return err
			}
			if err := tx.SaveEntry(ctx, entry("e1", "u1", core.Income, "gift", 89, time.Now())); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Atomically err = %v, want boom", err)
		}
		bal, _ := s.Balance(ctx, "u1")
		if bal.Cents != 10 {
			t.Errorf("Balance = %d, want 10 after rollback", bal.Cents)
		}
		if _, err := s.GetEntry(ctx, "e1", "u1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetEntry after rollback err = %v, want ErrNotFound", err)
		}
	})

	t.Run("reads inside a unit of work see its writes", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		err := s.Atomically(ctx, func(tx storage.Tx) error {
			if err := tx.SetBalance(ctx, "u1", core.Cents(5)); err != nil {
				return err
			}
			got, err := tx.Balance(ctx, "u1")
			if err != nil {
				return err
			}
			if got.Cents != 5 {
				t.Errorf("Balance inside tx = %d, want 5", got.Cents)
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Atomically: %v", err)
		}
	})
}

func entry(id, owner string, kind core.Kind, category string, cents int64, at time.Time) core.Entry {
	return core.Entry{
		ID:        id,
		Owner:     owner,
		Kind:      kind,
		Category:  category,
		Amount:    core.Cents(cents),
		CreatedAt: at.UTC().Truncate(time.Millisecond),
	}
}

func goal(id, owner string, start core.Date, state core.GoalState, created time.Time) core.Goal {
	return core.Goal{
		ID:        id,
		Owner:     owner,
		Name:      "goal " + id,
		Target:    core.Cents(10000),
		Accrued:   core.Cents(100),
		StartDate: start,
		EndDate:   core.Date{Time: start.AddDate(1, 0, 0)},
		State:     state,
		CreatedAt: created.UTC().Truncate(time.Millisecond),
	}
}

func entryIDs(es []core.Entry) []string {
	ids := make([]string, len(es))
	for i, e := range es {
		ids[i] = e.ID
	}
	return ids
}

func goalIDs(gs []core.Goal) []string {
	ids := make([]string, len(gs))
	for i, g := range gs {
		ids[i] = g.ID
	}
	return ids
}
