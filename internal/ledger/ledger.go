// Package ledger owns the authoritative balance of each user.
//
// Every balance change in the system goes through Adjust, which refuses any
// change that would leave the balance negative.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// Balance reads the current balance of userID.
func Balance(ctx context.Context, b storage.Balances, userID string) (core.Money, error) {
	m, err := b.Balance(ctx, userID)
	if err != nil {
		return core.Money{}, core.Internal("could not read balance", err)
	}
	return m, nil
}

// ErrOverflow is returned when a credit would take the balance past the
// largest representable amount.
var ErrOverflow = errors.New("balance would exceed the largest supported amount")

// Adjust applies delta to the balance of userID and persists the result.
// When the result would be negative nothing is written and an
// InsufficientFunds error is returned. It returns the new balance.
func Adjust(ctx context.Context, b storage.Balances, userID string, delta core.Money) (core.Money, error) {
	current, err := Balance(ctx, b, userID)
	if err != nil {
		return core.Money{}, err
	}
	next, err := Add(current, delta)
	if err != nil {
		return current, err
	}
	if next.IsNegative() {
		slog.DebugContext(ctx, "Balance adjustment refused",
			"user_id", userID, "balance_cents", current.Cents, "delta_cents", delta.Cents)
		return current, core.InsufficientFunds()
	}
	if delta.IsZero() {
		return current, nil
	}
	if err := b.SetBalance(ctx, userID, next); err != nil {
		return current, core.Internal("could not update balance", err)
	}
	return next, nil
}

// Add returns a+b, or a validation error with the ErrOverflow message when the sum
// does not fit.
func Add(a, b core.Money) (core.Money, error) {
	if (b.IsPositive() && a.Cents > math.MaxInt64-b.Cents) ||
		(b.IsNegative() && a.Cents < math.MinInt64-b.Cents) {
		return a, core.Validation(ErrOverflow)
	}
	return a.Add(b), nil
}

// Covers reports whether the balance of userID is at least amount.
func Covers(ctx context.Context, b storage.Balances, userID string, amount core.Money) (bool, error) {
	current, err := Balance(ctx, b, userID)
	if err != nil {
		return false, err
	}
	return current.GreaterThanOrEqual(amount), nil
}
