package services

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"bilancio/internal/core"
	"bilancio/internal/storage/memory"
	"bilancio/internal/storage/sqlite"
)

func TestTransactionService_CreateExpense(t *testing.T) {
	f := newFixture(t)
	f.seedBalance(t, "u1", 10000)

	e := f.mustCreate(t, "u1", core.Expense, "food", 3000)

	if got := f.balance(t, "u1"); got != 7000 {
		t.Errorf("balance = %d, want 7000", got)
	}
	stored, err := f.txs.Get(context.Background(), e.ID, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Voided || stored.Amount.Cents != 3000 || stored.Kind != core.Expense {
		t.Errorf("stored entry = %+v", stored)
	}
	if len(f.notifier.expenses) != 1 || f.notifier.expenses[0].category != "food" || f.notifier.expenses[0].amount.Cents != 3000 {
		t.Errorf("expense notifications = %+v", f.notifier.expenses)
	}
	if len(f.notifier.changes) != 1 || f.notifier.changes[0].op != core.EntryCreated {
		t.Errorf("entry notifications = %+v", f.notifier.changes)
	}
}

func TestTransactionService_CreateExpenseInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.seedBalance(t, "u1", 7000)

	_, err := f.txs.Create(context.Background(), "u1", EntryInput{Kind: core.Expense, Category: "food", Amount: core.Cents(100000)})
	wantKind(t, err, core.KindInsufficientFunds)
	if core.Message(err) != "insufficient funds" {
		t.Errorf("message = %q", core.Message(err))
	}

	if got := f.balance(t, "u1"); got != 7000 {
		t.Errorf("balance = %d, want 7000", got)
	}
	entries, _ := f.txs.List(context.Background(), "u1")
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
	if len(f.notifier.expenses)+len(f.notifier.changes) != 0 {
		t.Error("no notification expected for a rejected transaction")
	}
}

func TestTransactionService_CreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		owner string
		in    EntryInput
	}{
		{"zero amount", "u1", EntryInput{Kind: core.Income, Amount: core.Cents(0)}},
		{"negative amount", "u1", EntryInput{Kind: core.Income, Amount: core.Cents(-5)}},
		{"missing kind", "u1", EntryInput{Amount: core.Cents(100)}},
		{"unknown kind", "u1", EntryInput{Kind: "REFUND", Amount: core.Cents(100)}},
		{"missing owner", "", EntryInput{Kind: core.Income, Amount: core.Cents(100)}},
		{"amount above the cap", "u1", EntryInput{Kind: core.Income, Amount: core.Cents(core.MaxCents + 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.txs.Create(context.Background(), tt.owner, tt.in)
			wantKind(t, err, core.KindValidation)
		})
	}
}

func TestTransactionService_IncomeOverflowIsValidation(t *testing.T) {
	f := newFixture(t)
	f.seedBalance(t, "u1", math.MaxInt64)

	_, err := f.txs.Create(context.Background(), "u1", EntryInput{Kind: core.Income, Category: "gift", Amount: core.Cents(1)})
	wantKind(t, err, core.KindValidation)
	if got := f.balance(t, "u1"); got != math.MaxInt64 {
		t.Errorf("balance = %d, want unchanged", got)
	}
	entries, _ := f.txs.List(context.Background(), "u1")
	if len(entries) != 0 {
		t.Errorf("entry persisted on refused income: %+v", entries)
	}
}

func TestTransactionService_CreateIncome(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "u1", core.Income, "salary", 250000)

	if got := f.balance(t, "u1"); got != 250000 {
		t.Errorf("balance = %d, want 250000", got)
	}
	if len(f.notifier.expenses) != 0 {
		t.Error("income must not reach the budget watcher")
	}
}

func TestTransactionService_Update(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T, f *fixture) core.Entry
		in          EntryInput
		wantBalance int64
		wantErr     core.ErrorKind
		check       func(t *testing.T, f *fixture)
	}{
		{
			name: "bigger expense",
			setup: func(t *testing.T, f *fixture) core.Entry {
				f.seedBalance(t, "u1", 10000)
				return f.mustCreate(t, "u1", core.Expense, "food", 3000)
			},
			in:          EntryInput{Kind: core.Expense, Category: "food", Amount: core.Cents(5000)},
			wantBalance: 5000,
		},
		{
			name: "expense becomes income",
			setup: func(t *testing.T, f *fixture) core.Entry {
				f.seedBalance(t, "u1", 10000)
				return f.mustCreate(t, "u1", core.Expense, "food", 3000)
			},
			in:          EntryInput{Kind: core.Income, Category: "refund", Amount: core.Cents(3000)},
			wantBalance: 13000,
		},
		{
			name: "overdrawing expense is rejected",
			setup: func(t *testing.T, f *fixture) core.Entry {
				f.seedBalance(t, "u1", 10000)
				return f.mustCreate(t, "u1", core.Expense, "food", 3000)
			},
			in:          EntryInput{Kind: core.Expense, Category: "food", Amount: core.Cents(20000)},
			wantBalance: 7000,
			wantErr:     core.KindInsufficientFunds,
		},
		{
			name: "income flipped to expense is rejected",
			setup: func(t *testing.T, f *fixture) core.Entry {
				return f.mustCreate(t, "u1", core.Income, "salary", 10000)
			},
			in:          EntryInput{Kind: core.Expense, Category: "salary", Amount: core.Cents(4000)},
			wantBalance: 10000,
			wantErr:     core.KindInsufficientFunds,
		},
		{
			name: "smaller income after spending",
			setup: func(t *testing.T, f *fixture) core.Entry {
				e := f.mustCreate(t, "u1", core.Income, "salary", 10000)
				f.mustCreate(t, "u1", core.Expense, "rent", 8000)
				return e
			},
			in:          EntryInput{Kind: core.Income, Category: "salary", Amount: core.Cents(9000)},
			wantBalance: 1000,
		},
		{
			name: "invalid amount",
			setup: func(t *testing.T, f *fixture) core.Entry {
				return f.mustCreate(t, "u1", core.Income, "salary", 10000)
			},
			in:          EntryInput{Kind: core.Income, Amount: core.Cents(0)},
			wantBalance: 10000,
			wantErr:     core.KindValidation,
		},
		{
			name: "updated expense notifies the budget watcher again",
			setup: func(t *testing.T, f *fixture) core.Entry {
				f.seedBalance(t, "u1", 10000)
				return f.mustCreate(t, "u1", core.Expense, "food", 3000)
			},
			in:          EntryInput{Kind: core.Expense, Category: "groceries", Amount: core.Cents(4000)},
			wantBalance: 6000,
			check: func(t *testing.T, f *fixture) {
				if len(f.notifier.expenses) != 2 {
					t.Fatalf("expense notifications = %+v, want 2", f.notifier.expenses)
				}
				last := f.notifier.expenses[1]
				if last.userID != "u1" || last.category != "groceries" || last.amount.Cents != 4000 {
					t.Errorf("last expense notification = %+v", last)
				}
				if n := len(f.notifier.changes); n != 2 || f.notifier.changes[1].op != core.EntryUpdated {
					t.Errorf("entry notifications = %+v", f.notifier.changes)
				}
			},
		},
		{
			name: "updated income is distributed to goals again",
			setup: func(t *testing.T, f *fixture) core.Entry {
				f.mustGoal(t, "u1", "house", 100000, 0)
				return f.mustCreate(t, "u1", core.Income, "salary", 10000)
			},
			in:          EntryInput{Kind: core.Income, Category: "salary", Amount: core.Cents(20000)},
			wantBalance: 20000,
			check: func(t *testing.T, f *fixture) {
				goals, err := f.goals.List(context.Background(), "u1")
				if err != nil {
					t.Fatalf("List goals: %v", err)
				}
				// 10% of the first income, then 10% of the corrected one.
				if len(goals) != 1 || goals[0].Accrued.Cents != 3000 {
					t.Errorf("goals = %+v, want accrued 3000", goals)
				}
				if len(f.notifier.expenses) != 0 {
					t.Errorf("income reached the budget watcher: %+v", f.notifier.expenses)
				}
			},
		},
		{
			name: "description-only income update still distributes",
			setup: func(t *testing.T, f *fixture) core.Entry {
				f.mustGoal(t, "u1", "house", 100000, 0)
				return f.mustCreate(t, "u1", core.Income, "salary", 10000)
			},
			in:          EntryInput{Kind: core.Income, Category: "salary", Amount: core.Cents(10000), Description: "march"},
			wantBalance: 10000,
			check: func(t *testing.T, f *fixture) {
				goals, _ := f.goals.List(context.Background(), "u1")
				if len(goals) != 1 || goals[0].Accrued.Cents != 2000 {
					t.Errorf("goals = %+v, want accrued 2000", goals)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixtureWith(t, memory.New(), DefaultSharePercent)
			before := tt.setup(t, f)

			got, err := f.txs.Update(context.Background(), before.ID, "u1", tt.in)
			if tt.wantErr != "" {
				wantKind(t, err, tt.wantErr)
				stored, _ := f.txs.Get(context.Background(), before.ID, "u1")
				if stored != before {
					t.Errorf("entry changed on rejected update: %+v, want %+v", stored, before)
				}
			} else {
				if err != nil {
					t.Fatalf("Update: %v", err)
				}
				if got.ID != before.ID || got.Amount != tt.in.Amount || got.Kind != tt.in.Kind || got.Voided {
					t.Errorf("updated entry = %+v", got)
				}
			}
			if b := f.balance(t, "u1"); b != tt.wantBalance {
				t.Errorf("balance = %d, want %d", b, tt.wantBalance)
			}
			if tt.check != nil {
				tt.check(t, f)
			}
		})
	}
}

func TestTransactionService_UpdateNotFound(t *testing.T) {
	f := newFixture(t)
	e := f.mustCreate(t, "u1", core.Income, "salary", 1000)

	_, err := f.txs.Update(context.Background(), e.ID, "intruder", EntryInput{Kind: core.Income, Amount: core.Cents(1)})
	wantKind(t, err, core.KindNotFound)
	if core.Message(err) != "transaction not found" {
		t.Errorf("message = %q", core.Message(err))
	}

	_, err = f.txs.Update(context.Background(), "missing", "u1", EntryInput{Kind: core.Income, Amount: core.Cents(1)})
	wantKind(t, err, core.KindNotFound)
}

func TestTransactionService_UpdateVoided(t *testing.T) {
	f := newFixture(t)
	f.seedBalance(t, "u1", 1000)
	e := f.mustCreate(t, "u1", core.Expense, "food", 100)
	if _, err := f.txs.Void(context.Background(), e.ID, "u1"); err != nil {
		t.Fatalf("Void: %v", err)
	}

	_, err := f.txs.Update(context.Background(), e.ID, "u1", EntryInput{Kind: core.Expense, Amount: core.Cents(50)})
	wantKind(t, err, core.KindInvalidState)
	if got := f.balance(t, "u1"); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}
}

func TestTransactionService_Void(t *testing.T) {
	f := newFixture(t)
	f.seedBalance(t, "u1", 10000)
	e := f.mustCreate(t, "u1", core.Expense, "food", 3000)

	voided, err := f.txs.Void(context.Background(), e.ID, "u1")
	if err != nil {
		t.Fatalf("Void: %v", err)
	}
	if !voided.Voided {
		t.Error("entry should be voided")
	}
	if got := f.balance(t, "u1"); got != 10000 {
		t.Errorf("balance = %d, want 10000", got)
	}

	_, err = f.txs.Void(context.Background(), e.ID, "u1")
	wantKind(t, err, core.KindInvalidState)
	if got := f.balance(t, "u1"); got != 10000 {
		t.Errorf("balance after second void = %d, want 10000", got)
	}

	last := f.notifier.changes[len(f.notifier.changes)-1]
	if last.op != core.EntryVoided || last.entry.ID != e.ID {
		t.Errorf("last entry notification = %+v", last)
	}
}

func TestTransactionService_VoidSpentIncome(t *testing.T) {
	f := newFixture(t)
	income := f.mustCreate(t, "u1", core.Income, "salary", 5000)
	f.mustCreate(t, "u1", core.Expense, "rent", 4000)

	_, err := f.txs.Void(context.Background(), income.ID, "u1")
	wantKind(t, err, core.KindInsufficientFunds)

	stored, _ := f.txs.Get(context.Background(), income.ID, "u1")
	if stored.Voided {
		t.Error("entry must stay active when the void is refused")
	}
	if got := f.balance(t, "u1"); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}
}

func TestTransactionService_VoidNotFound(t *testing.T) {
	f := newFixture(t)
	e := f.mustCreate(t, "u1", core.Income, "salary", 1000)

	_, err := f.txs.Void(context.Background(), e.ID, "u2")
	wantKind(t, err, core.KindNotFound)
}

func TestTransactionService_StorageFailureRollsBack(t *testing.T) {
	store := &failingStore{Store: memory.New(), failSaveEntry: true}
	f := newFixtureWith(t, store, DefaultSharePercent)
	f.seedBalance(t, "u1", 1000)

	_, err := f.txs.Create(context.Background(), "u1", EntryInput{Kind: core.Expense, Amount: core.Cents(400)})
	wantKind(t, err, core.KindInternal)
	if !errors.Is(err, errInjected) {
		t.Errorf("err = %v, want it to wrap the storage failure", err)
	}
	if got := f.balance(t, "u1"); got != 1000 {
		t.Errorf("balance = %d, want 1000 after rollback", got)
	}
}

func TestTransactionService_NotificationFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")
	f.seedBalance(t, "u1", 1000)

	if _, err := f.txs.Create(context.Background(), "u1", EntryInput{Kind: core.Expense, Amount: core.Cents(400)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := f.balance(t, "u1"); got != 600 {
		t.Errorf("balance = %d, want 600", got)
	}
}

func TestTransactionService_ListIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "u1", core.Income, "a", 100)
	f.mustCreate(t, "u1", core.Income, "b", 100)
	f.mustCreate(t, "u2", core.Income, "c", 100)

	got, err := f.txs.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(got))
	}
	for _, e := range got {
		if e.Owner != "u1" {
			t.Errorf("foreign entry in list: %+v", e)
		}
	}
}

// The balance always equals non-voided income minus non-voided expenses.
func TestTransactionService_BalanceMatchesLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	var ids []string

	for i := 0; i < 300; i++ {
		switch op := rng.Intn(10); {
		case op < 5 || len(ids) == 0:
			kind := core.Income
			if rng.Intn(2) == 0 {
				kind = core.Expense
			}
			e, err := f.txs.Create(ctx, "u1", EntryInput{Kind: kind, Category: "misc", Amount: core.Cents(int64(rng.Intn(5000) + 1))})
			if err == nil {
				ids = append(ids, e.ID)
			} else if core.KindOf(err) != core.KindInsufficientFunds {
				t.Fatalf("Create: %v", err)
			}
		case op < 8:
			kind := core.Income
			if rng.Intn(2) == 0 {
				kind = core.Expense
			}
			id := ids[rng.Intn(len(ids))]
			_, err := f.txs.Update(ctx, id, "u1", EntryInput{Kind: kind, Category: "misc", Amount: core.Cents(int64(rng.Intn(5000) + 1))})
			if err != nil && core.KindOf(err) != core.KindInsufficientFunds && core.KindOf(err) != core.KindInvalidState {
				t.Fatalf("Update: %v", err)
			}
		default:
			_, err := f.txs.Void(ctx, ids[rng.Intn(len(ids))], "u1")
			if err != nil && core.KindOf(err) != core.KindInsufficientFunds && core.KindOf(err) != core.KindInvalidState {
				t.Fatalf("Void: %v", err)
			}
		}

		entries, _ := f.txs.List(ctx, "u1")
		var want int64
		for _, e := range entries {
			if !e.Voided {
				want += e.Effect().Cents
			}
		}
		got := f.balance(t, "u1")
		if got != want || got < 0 {
			t.Fatalf("step %d: balance = %d, ledger says %d", i, got, want)
		}
	}
}

func TestTransactionService_ConcurrentExpenses(t *testing.T) {
	stores := map[string]func(t *testing.T) *fixture{
		"memory": func(t *testing.T) *fixture { return newFixture(t) },
		"sqlite": func(t *testing.T) *fixture {
			repo, err := sqlite.NewRepository(filepath.Join(t.TempDir(), "bilancio.db"))
			if err != nil {
				t.Fatalf("NewRepository: %v", err)
			}
			t.Cleanup(func() { _ = repo.Close() })
			return newFixtureWith(t, repo, DefaultSharePercent)
		},
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			f := build(t)
			f.seedBalance(t, "u1", 3000)
			f.seedBalance(t, "u2", 500)

			var g errgroup.Group
			results := make([]error, 60)
			for i := range results {
				i := i
				owner := "u1"
				if i%3 == 0 {
					owner = "u2"
				}
				g.Go(func() error {
					_, err := f.txs.Create(context.Background(), owner, EntryInput{Kind: core.Expense, Category: "food", Amount: core.Cents(100)})
					results[i] = err
					return nil
				})
			}
			_ = g.Wait()

			var ok, refused int
			for _, err := range results {
				switch {
				case err == nil:
					ok++
				case core.KindOf(err) == core.KindInsufficientFunds:
					refused++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			// u1 runs 40 expenses against 30 covered, u2 runs 20 against 5.
			if ok != 35 || refused != 25 {
				t.Errorf("ok = %d refused = %d, want 35 and 25", ok, refused)
			}
			if b := f.balance(t, "u1"); b != 0 {
				t.Errorf("u1 balance = %d, want 0", b)
			}
			if b := f.balance(t, "u2"); b != 0 {
				t.Errorf("u2 balance = %d, want 0", b)
			}
		})
	}
}
