package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"bilancio/internal/core"
	"bilancio/internal/lock"
	"bilancio/internal/storage"
)

// unitOfWork runs a financial operation under the user's lock and inside one
// storage transaction.
type unitOfWork struct {
	store  storage.Store
	locker lock.Locker
}

func (u unitOfWork) run(ctx context.Context, owner string, fn func(ctx context.Context, tx storage.Tx, ob *outbox) error) (*outbox, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, core.Validation(errMissingOwner)
	}

	var ob *outbox
	err := u.locker.WithUserLock(ctx, owner, func(ctx context.Context) error {
		return u.store.Atomically(ctx, func(tx storage.Tx) error {
			// Some backends retry the callback on transient conflicts.
			ob = &outbox{}
			return fn(ctx, tx, ob)
		})
	})
	if err != nil {
		return nil, classify(err)
	}
	return ob, nil
}

var errMissingOwner = errors.New("user id is required")

// classify turns anything that is not already a *core.Error into an internal one.
func classify(err error) error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, lock.ErrNotAcquired) {
		return core.Internal("another operation for this user is still running", err)
	}
	return core.Internal("unexpected storage failure", err)
}

func notFound(what string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return core.NotFound(what)
	}
	return core.Internal("could not load "+what, err)
}

type expenseEvent struct {
	userID   string
	category string
	amount   core.Money
}

type entryEvent struct {
	entry core.Entry
	op    core.EntryOp
}

// outbox collects notifications during a unit of work. They are delivered
// only after it commits.
type outbox struct {
	expenses  []expenseEvent
	completed []core.Goal
	changes   []entryEvent
}

func (o *outbox) expense(userID, category string, amount core.Money) {
	o.expenses = append(o.expenses, expenseEvent{userID, category, amount})
}

func (o *outbox) goalCompleted(g core.Goal) {
	o.completed = append(o.completed, g)
}

func (o *outbox) entryChanged(e core.Entry, op core.EntryOp) {
	o.changes = append(o.changes, entryEvent{e, op})
}

func (o *outbox) flush(ctx context.Context, n Notifier) {
	if o == nil || n == nil {
		return
	}
	for _, c := range o.changes {
		if err := n.NotifyEntryChanged(ctx, c.entry, c.op); err != nil {
			slog.WarnContext(ctx, "Entry change notification failed",
				"entry_id", c.entry.ID, "op", c.op, "error", err)
		}
	}
	for _, e := range o.expenses {
		if err := n.NotifyExpense(ctx, e.userID, e.category, e.amount); err != nil {
			slog.WarnContext(ctx, "Budget notification failed",
				"user_id", e.userID, "category", e.category, "error", err)
		}
	}
	for _, g := range o.completed {
		if err := n.NotifyGoalCompleted(ctx, g.Owner, g.ID, g.Name); err != nil {
			slog.WarnContext(ctx, "Goal completion notification failed",
				"user_id", g.Owner, "goal_id", g.ID, "error", err)
		}
	}
}
