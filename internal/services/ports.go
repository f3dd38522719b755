package services

import (
	"context"

	"bilancio/internal/core"
)

// BudgetNotifier is told about every recorded expense.
type BudgetNotifier interface {
	NotifyExpense(ctx context.Context, userID, category string, amount core.Money) error
}

// GoalNotifier is told when a goal reaches its target.
type GoalNotifier interface {
	NotifyGoalCompleted(ctx context.Context, userID, goalID, goalName string) error
}

// EntryNotifier is told about every committed change to a ledger entry.
type EntryNotifier interface {
	NotifyEntryChanged(ctx context.Context, e core.Entry, op core.EntryOp) error
}

// Notifier is the full set of out-of-band sinks. Deliveries are best-effort:
// errors are logged and never undo the committed change.
type Notifier interface {
	BudgetNotifier
	GoalNotifier
	EntryNotifier
}
