package cli

import (
	"time"

	"bilancio/internal/budget"
	"bilancio/internal/core"
	"bilancio/internal/services"
)

// Views are the JSON shapes printed in Outcome.Data. Amounts are given both
// formatted and in cents.

type balanceView struct {
	User         string `json:"user"`
	Balance      string `json:"balance"`
	BalanceCents int64  `json:"balance_cents"`
}

type entryView struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Amount      string    `json:"amount"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
	Voided      bool      `json:"voided"`
}

func newEntryView(e core.Entry) entryView {
	return entryView{
		ID:          e.ID,
		Kind:        string(e.Kind),
		Category:    e.Category,
		Description: e.Description,
		Amount:      e.Amount.String(),
		AmountCents: e.Amount.Cents,
		CreatedAt:   e.CreatedAt,
		Voided:      e.Voided,
	}
}

func newEntryViews(entries []core.Entry) []entryView {
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, newEntryView(e))
	}
	return out
}

type goalView struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Target       string  `json:"target"`
	TargetCents  int64   `json:"target_cents"`
	Accrued      string  `json:"accrued"`
	AccruedCents int64   `json:"accrued_cents"`
	Progress     float64 `json:"progress"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	State        string  `json:"state"`
}

func newGoalView(g core.Goal) goalView {
	return goalView{
		ID:           g.ID,
		Name:         g.Name,
		Target:       g.Target.String(),
		TargetCents:  g.Target.Cents,
		Accrued:      g.Accrued.String(),
		AccruedCents: g.Accrued.Cents,
		Progress:     g.Progress(),
		StartDate:    g.StartDate.String(),
		EndDate:      g.EndDate.String(),
		State:        string(g.State),
	}
}

func newGoalViews(goals []core.Goal) []goalView {
	out := make([]goalView, 0, len(goals))
	for _, g := range goals {
		out = append(out, newGoalView(g))
	}
	return out
}

type contributionView struct {
	Goal         goalView `json:"goal"`
	Applied      string   `json:"applied"`
	AppliedCents int64    `json:"applied_cents"`
}

func newContributionView(c services.Contribution) contributionView {
	return contributionView{
		Goal:         newGoalView(c.Goal),
		Applied:      c.Applied.String(),
		AppliedCents: c.Applied.Cents,
	}
}

type cancellationView struct {
	Goal          goalView `json:"goal"`
	Deleted       bool     `json:"deleted"`
	Refunded      string   `json:"refunded"`
	RefundedCents int64    `json:"refunded_cents"`
}

func newCancellationView(c services.Cancellation) cancellationView {
	return cancellationView{
		Goal:          newGoalView(c.Goal),
		Deleted:       c.Deleted,
		Refunded:      c.Refunded.String(),
		RefundedCents: c.Refunded.Cents,
	}
}

type budgetView struct {
	Category   string `json:"category"`
	Limit      string `json:"limit"`
	LimitCents int64  `json:"limit_cents"`
}

func newBudgetView(b core.Budget) budgetView {
	return budgetView{Category: b.Category, Limit: b.Limit.String(), LimitCents: b.Limit.Cents}
}

type budgetStatusView struct {
	budgetView
	Spent          string `json:"spent"`
	SpentCents     int64  `json:"spent_cents"`
	RemainingCents int64  `json:"remaining_cents"`
	Exceeded       bool   `json:"exceeded"`
}

func newBudgetStatusView(s budget.Status) budgetStatusView {
	return budgetStatusView{
		budgetView:     newBudgetView(s.Budget),
		Spent:          s.Spent.String(),
		SpentCents:     s.Spent.Cents,
		RemainingCents: s.Remaining().Cents,
		Exceeded:       s.Exceeded,
	}
}
