// Package storage defines the persistence ports the balance engine depends on.
//
// Backends live in subpackages (sqlite, memory, mongo). Every financial
// operation runs inside Store.Atomically so that the balance, the entry and
// the goals it touches are committed together or not at all.
package storage

import (
	"context"
	"errors"
	"time"

	"bilancio/internal/core"
)

// ErrNotFound is returned by lookups when no record matches id and owner.
var ErrNotFound = errors.New("record not found")

type (
	Balances interface {
		// Balance returns the user's balance, zero for a user never seen before.
		Balance(ctx context.Context, userID string) (core.Money, error)
		SetBalance(ctx context.Context, userID string, balance core.Money) error
	}

	Entries interface {
		// GetEntry returns ErrNotFound when the entry is absent or owned by someone else.
		GetEntry(ctx context.Context, id, owner string) (core.Entry, error)
		SaveEntry(ctx context.Context, e core.Entry) error
		// ListEntries returns the owner's entries, newest first.
		ListEntries(ctx context.Context, owner string) ([]core.Entry, error)
		// SumExpenses totals non-voided expenses of a category created in [from, to).
		SumExpenses(ctx context.Context, owner, category string, from, to time.Time) (core.Money, error)
	}

	Goals interface {
		// GetGoal returns ErrNotFound when the goal is absent or owned by someone else.
		GetGoal(ctx context.Context, id, owner string) (core.Goal, error)
		SaveGoal(ctx context.Context, g core.Goal) error
		DeleteGoal(ctx context.Context, id, owner string) error
		// ListGoals returns the owner's goals by start date, newest first.
		ListGoals(ctx context.Context, owner string) ([]core.Goal, error)
		// ActiveGoals returns the owner's ACTIVE goals in creation order.
		ActiveGoals(ctx context.Context, owner string) ([]core.Goal, error)
	}

	Budgets interface {
		SetBudget(ctx context.Context, b core.Budget) error
		// GetBudget returns ErrNotFound when no budget is set for the category.
		GetBudget(ctx context.Context, owner, category string) (core.Budget, error)
		ListBudgets(ctx context.Context, owner string) ([]core.Budget, error)
	}

	// Tx is the view of the store inside a unit of work.
	Tx interface {
		Balances
		Entries
		Goals
		Budgets
	}

	Store interface {
		Tx
		// Atomically runs fn in a unit of work. Writes made through tx are
		// committed when fn returns nil and discarded otherwise.
		Atomically(ctx context.Context, fn func(tx Tx) error) error
		Close() error
	}
)
