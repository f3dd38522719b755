package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/lock"
	"bilancio/internal/storage"
)

// EntryInput carries the user-editable fields of a ledger entry.
type EntryInput struct {
	Kind        core.Kind
	Category    string
	Amount      core.Money
	Description string
}

// TransactionService records, corrects and voids ledger entries, keeping the
// owner's balance equal to the effect of the entries that are not voided.
type TransactionService struct {
	uow      unitOfWork
	goals    *GoalService
	notifier Notifier
	now      func() time.Time
}

func NewTransactionService(store storage.Store, locker lock.Locker, goals *GoalService, notifier Notifier) *TransactionService {
	return &TransactionService{
		uow:      unitOfWork{store: store, locker: locker},
		goals:    goals,
		notifier: notifier,
		now:      time.Now,
	}
}

// Create records a new entry. Expenses need a balance that covers them;
// income is partly auto-distributed to the owner's active goals.
func (s *TransactionService) Create(ctx context.Context, owner string, in EntryInput) (core.Entry, error) {
	e := core.Entry{
		ID:        uuid.NewString(),
		Owner:     owner,
		CreatedAt: s.now().UTC(),
	}
	in.apply(&e)
	if err := e.Validate(); err != nil {
		return core.Entry{}, core.Validation(err)
	}

	ob, err := s.uow.run(ctx, owner, func(ctx context.Context, tx storage.Tx, ob *outbox) error {
		if e.Kind == core.Expense {
			ok, err := ledger.Covers(ctx, tx, owner, e.Amount)
			if err != nil {
				return err
			}
			if !ok {
				return core.InsufficientFunds()
			}
		}
		if _, err := ledger.Adjust(ctx, tx, owner, e.Effect()); err != nil {
			return err
		}
		if err := tx.SaveEntry(ctx, e); err != nil {
			return core.Internal("could not save transaction", err)
		}
		ob.entryChanged(e, core.EntryCreated)
		return s.afterApply(ctx, tx, e, ob)
	})
	if err != nil {
		return core.Entry{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"user_id", owner, "entry_id", e.ID, "kind", e.Kind, "amount_cents", e.Amount.Cents)
	ob.flush(ctx, s.notifier)
	return e, nil
}

// Update overwrites an entry in place. The old effect is reversed and the new
// one applied; if the result would leave the balance negative nothing changes.
func (s *TransactionService) Update(ctx context.Context, id, owner string, in EntryInput) (core.Entry, error) {
	var updated core.Entry

	ob, err := s.uow.run(ctx, owner, func(ctx context.Context, tx storage.Tx, ob *outbox) error {
		current, err := tx.GetEntry(ctx, id, owner)
		if err != nil {
			return notFound("transaction", err)
		}
		if current.Voided {
			return core.InvalidState("voided transactions cannot be changed")
		}

		updated = current
		in.apply(&updated)
		if err := updated.Validate(); err != nil {
			return core.Validation(err)
		}

		balance, err := ledger.Balance(ctx, tx, owner)
		if err != nil {
			return err
		}
		// Reverse then reapply on a scratch value; only the net change is written.
		tentative, err := ledger.Add(balance, current.Reversal())
		if err != nil {
			return err
		}
		final, err := ledger.Add(tentative, updated.Effect())
		if err != nil {
			return err
		}
		if final.IsNegative() {
			return core.InsufficientFunds()
		}
		if _, err := ledger.Adjust(ctx, tx, owner, final.Sub(balance)); err != nil {
			return err
		}

		if err := tx.SaveEntry(ctx, updated); err != nil {
			return core.Internal("could not save transaction", err)
		}
		ob.entryChanged(updated, core.EntryUpdated)
		return s.afterApply(ctx, tx, updated, ob)
	})
	if err != nil {
		return core.Entry{}, err
	}

	slog.InfoContext(ctx, "Transaction updated", "user_id", owner, "entry_id", id)
	ob.flush(ctx, s.notifier)
	return updated, nil
}

// Void reverses an entry's effect on the balance and marks it voided.
// An entry can be voided once.
func (s *TransactionService) Void(ctx context.Context, id, owner string) (core.Entry, error) {
	var voided core.Entry

	ob, err := s.uow.run(ctx, owner, func(ctx context.Context, tx storage.Tx, ob *outbox) error {
		e, err := tx.GetEntry(ctx, id, owner)
		if err != nil {
			return notFound("transaction", err)
		}
		if e.Voided {
			return core.InvalidState("transaction already voided")
		}
		if _, err := ledger.Adjust(ctx, tx, owner, e.Reversal()); err != nil {
			return err
		}
		e.Voided = true
		if err := tx.SaveEntry(ctx, e); err != nil {
			return core.Internal("could not save transaction", err)
		}
		voided = e
		ob.entryChanged(e, core.EntryVoided)
		return nil
	})
	if err != nil {
		return core.Entry{}, err
	}

	slog.InfoContext(ctx, "Transaction voided", "user_id", owner, "entry_id", id)
	ob.flush(ctx, s.notifier)
	return voided, nil
}

// List returns the owner's entries, newest first.
func (s *TransactionService) List(ctx context.Context, owner string) ([]core.Entry, error) {
	entries, err := s.uow.store.ListEntries(ctx, owner)
	if err != nil {
		return nil, core.Internal("could not list transactions", err)
	}
	return entries, nil
}

func (s *TransactionService) Get(ctx context.Context, id, owner string) (core.Entry, error) {
	e, err := s.uow.store.GetEntry(ctx, id, owner)
	if err != nil {
		return core.Entry{}, notFound("transaction", err)
	}
	return e, nil
}

func (s *TransactionService) Balance(ctx context.Context, owner string) (core.Money, error) {
	return ledger.Balance(ctx, s.uow.store, owner)
}

// afterApply runs the per-kind follow-ups of a created or updated entry.
func (s *TransactionService) afterApply(ctx context.Context, tx storage.Tx, e core.Entry, ob *outbox) error {
	switch e.Kind {
	case core.Expense:
		ob.expense(e.Owner, e.Category, e.Amount)
	case core.Income:
		if s.goals != nil {
			if _, err := s.goals.distribute(ctx, tx, e.Owner, e.Amount, ob); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in EntryInput) apply(e *core.Entry) {
	e.Kind = in.Kind
	e.Category = strings.TrimSpace(in.Category)
	e.Amount = in.Amount
	e.Description = strings.TrimSpace(in.Description)
}
