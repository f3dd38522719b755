package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bilancio/internal/core"
	"bilancio/internal/ledger"
	"bilancio/internal/lock"
	"bilancio/internal/storage"
)

// DefaultSharePercent is the part of each income credited to every active goal.
var DefaultSharePercent = decimal.NewFromInt(10)

// GoalInput carries the user-editable fields of a savings goal.
type GoalInput struct {
	Name      string
	Target    core.Money
	Accrued   core.Money
	StartDate core.Date
	EndDate   core.Date
}

// Contribution is the outcome of a manual contribution.
type Contribution struct {
	Goal core.Goal
	// Applied is the amount actually moved, at most what the goal still needed.
	Applied core.Money
}

// Cancellation is the outcome of cancelling or deleting a goal.
type Cancellation struct {
	Goal     core.Goal
	Deleted  bool
	Refunded core.Money
}

var errNonPositiveContribution = errors.New("contribution amount must be greater than zero")

// GoalService manages savings goals and the money moved into them.
type GoalService struct {
	uow      unitOfWork
	notifier Notifier
	share    decimal.Decimal
	now      func() time.Time
}

// NewGoalService builds the service. sharePercent is the auto-distribution
// share in percent; zero disables auto-distribution.
func NewGoalService(store storage.Store, locker lock.Locker, notifier Notifier, sharePercent decimal.Decimal) *GoalService {
	return &GoalService{
		uow:      unitOfWork{store: store, locker: locker},
		notifier: notifier,
		share:    sharePercent,
		now:      time.Now,
	}
}

// Create adds a goal. It does not touch the balance.
func (s *GoalService) Create(ctx context.Context, owner string, in GoalInput) (core.Goal, error) {
	g := core.Goal{
		ID:        uuid.NewString(),
		Owner:     owner,
		State:     core.GoalActive,
		CreatedAt: s.now().UTC(),
	}
	in.apply(&g)
	if err := g.Validate(); err != nil {
		return core.Goal{}, core.Validation(err)
	}

	var created core.Goal
	ob, err := s.uow.run(ctx, owner, func(ctx context.Context, tx storage.Tx, ob *outbox) error {
		created = g
		completeIfReached(&created, ob)
		if err := tx.SaveGoal(ctx, created); err != nil {
			return core.Internal("could not save goal", err)
		}
		return nil
	})
	if err != nil {
		return core.Goal{}, err
	}

	slog.InfoContext(ctx, "Goal created", "user_id", owner, "goal_id", created.ID, "state", created.State)
	ob.flush(ctx, s.notifier)
	return created, nil
}

// Contribute moves amount from the balance into an active goal. The amount is
// clamped to what the goal still needs.
func (s *GoalService) Contribute(ctx context.Context, id, owner string, amount core.Money) (Contribution, error) {
	if !amount.IsPositive() {
		return Contribution{}, core.Validation(errNonPositiveContribution)
	}

	var res Contribution
	ob, err := s.uow.run(ctx, owner, func(ctx context.Context, tx storage.Tx, ob *outbox) error {
		g, err := tx.GetGoal(ctx, id, owner)
		if err != nil {
			return notFound("goal", err)
		}
		if g.State != core.GoalActive {
			return core.InvalidState("only active goals accept contributions")
		}
		if err := requireFunds(ctx, tx, owner, amount); err != nil {
			return err
		}

		applied := core.Min(amount, g.Remaining())
		if err := requireFunds(ctx, tx, owner, applied); err != nil {
			return err
		}
		if _, err := ledger.Adjust(ctx, tx, owner, applied.Neg()); err != nil {
			return err
		}

		g.Accrued = g.Accrued.Add(applied)
		completeIfReached(&g, ob)
		if err := tx.SaveGoal(ctx, g); err != nil {
			return core.Internal("could not save goal", err)
		}
		res = Contribution{Goal: g, Applied: applied}
		return nil
	})
	if err != nil {
		return Contribution{}, err
	}

	slog.InfoContext(ctx, "Goal contribution applied",
		"user_id", owner, "goal_id", id,
		"requested_cents", amount.Cents, "applied_cents", res.Applied.Cents, "state", res.Goal.State)
	ob.flush(ctx, s.notifier)
	return res, nil
}

// Update overwrites a goal's fields without moving money.
func (s *GoalService) Update(ctx context.Context, id, owner string, in GoalInput) (core.Goal, error) {
	var updated core.Goal

	ob, err := s.uow.run(ctx, owner, func(ctx context.Context, tx storage.Tx, ob *outbox) error {
		g, err := tx.GetGoal(ctx, id, owner)
		if err != nil {
			return notFound("goal", err)
		}
		if g.State == core.GoalCancelled {
			return core.InvalidState("cancelled goals cannot be changed")
		}
		in.apply(&g)
		if err := g.Validate(); err != nil {
			return core.Validation(err)
		}
		completeIfReached(&g, ob)
		if err := tx.SaveGoal(ctx, g); err != nil {
			return core.Internal("could not save goal", err)
		}
		updated = g
		return nil
	})
	if err != nil {
		return core.Goal{}, err
	}

	slog.InfoContext(ctx, "Goal updated", "user_id", owner, "goal_id", id, "state", updated.State)
	ob.flush(ctx, s.notifier)
	return updated, nil
}

// Cancel ends a goal. Completed goals are deleted; active goals are kept as
// cancelled and their accrued amount goes back to the balance.
func (s *GoalService) Cancel(ctx context.Context, id, owner string) (Cancellation, error) {
	var res Cancellation

	_, err := s.uow.run(ctx, owner, func(ctx context.Context, tx storage.Tx, _ *outbox) error {
		g, err := tx.GetGoal(ctx, id, owner)
		if err != nil {
			return notFound("goal", err)
		}

		switch g.State {
		case core.GoalCancelled:
			return core.InvalidState("goal already cancelled")
		case core.GoalCompleted:
			if err := tx.DeleteGoal(ctx, id, owner); err != nil {
				return core.Internal("could not delete goal", err)
			}
			res = Cancellation{Goal: g, Deleted: true}
			return nil
		}

		refund := g.Accrued
		if _, err := ledger.Adjust(ctx, tx, owner, refund); err != nil {
			return err
		}
		g.Accrued = core.Money{}
		g.State = core.GoalCancelled
		if err := tx.SaveGoal(ctx, g); err != nil {
			return core.Internal("could not save goal", err)
		}
		res = Cancellation{Goal: g, Refunded: refund}
		return nil
	})
	if err != nil {
		return Cancellation{}, err
	}

	slog.InfoContext(ctx, "Goal cancelled",
		"user_id", owner, "goal_id", id, "deleted", res.Deleted, "refunded_cents", res.Refunded.Cents)
	return res, nil
}

// AutoDistribute credits the configured share of income to each active goal.
// Transaction creation calls the same logic inside its own unit of work.
func (s *GoalService) AutoDistribute(ctx context.Context, owner string, income core.Money) ([]core.Goal, error) {
	if err := income.Validate(); err != nil {
		return nil, core.Validation(err)
	}

	var touched []core.Goal
	ob, err := s.uow.run(ctx, owner, func(ctx context.Context, tx storage.Tx, ob *outbox) error {
		var err error
		touched, err = s.distribute(ctx, tx, owner, income, ob)
		return err
	})
	if err != nil {
		return nil, err
	}
	ob.flush(ctx, s.notifier)
	return touched, nil
}

// distribute gives every active goal, oldest first, the configured share of
// income. A share never exceeds what the goal still needs, and all shares
// together never exceed income. The balance is not debited.
func (s *GoalService) distribute(ctx context.Context, tx storage.Tx, owner string, income core.Money, ob *outbox) ([]core.Goal, error) {
	if !s.share.IsPositive() {
		return nil, nil
	}
	goals, err := tx.ActiveGoals(ctx, owner)
	if err != nil {
		return nil, core.Internal("could not load active goals", err)
	}

	share := income.Percent(s.share)
	left := income
	var touched []core.Goal
	for _, g := range goals {
		credit := core.Min(core.Min(share, g.Remaining()), left)
		if !credit.IsPositive() {
			continue
		}
		left = left.Sub(credit)
		g.Accrued = g.Accrued.Add(credit)
		completeIfReached(&g, ob)
		if err := tx.SaveGoal(ctx, g); err != nil {
			return nil, core.Internal("could not save goal", err)
		}
		touched = append(touched, g)
	}

	if len(touched) > 0 {
		slog.DebugContext(ctx, "Income distributed to goals",
			"user_id", owner, "income_cents", income.Cents, "goals", len(touched), "left_cents", left.Cents)
	}
	return touched, nil
}

// List returns the owner's goals by start date, newest first.
func (s *GoalService) List(ctx context.Context, owner string) ([]core.Goal, error) {
	goals, err := s.uow.store.ListGoals(ctx, owner)
	if err != nil {
		return nil, core.Internal("could not list goals", err)
	}
	return goals, nil
}

func (s *GoalService) Get(ctx context.Context, id, owner string) (core.Goal, error) {
	g, err := s.uow.store.GetGoal(ctx, id, owner)
	if err != nil {
		return core.Goal{}, notFound("goal", err)
	}
	return g, nil
}

func requireFunds(ctx context.Context, tx storage.Tx, owner string, amount core.Money) error {
	ok, err := ledger.Covers(ctx, tx, owner, amount)
	if err != nil {
		return err
	}
	if !ok {
		return core.InsufficientFunds()
	}
	return nil
}

// completeIfReached moves an active goal that met its target to COMPLETED.
func completeIfReached(g *core.Goal, ob *outbox) {
	if g.State == core.GoalActive && g.Reached() {
		g.State = core.GoalCompleted
		ob.goalCompleted(*g)
	}
}

func (in GoalInput) apply(g *core.Goal) {
	g.Name = strings.TrimSpace(in.Name)
	g.Target = in.Target
	g.Accrued = in.Accrued
	g.StartDate = in.StartDate
	g.EndDate = in.EndDate
}
