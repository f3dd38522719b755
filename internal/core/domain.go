package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  Kind = "INCOME"
	Expense Kind = "EXPENSE"
)

// Operations reported when an entry changes.
const (
	EntryCreated EntryOp = "created"
	EntryUpdated EntryOp = "updated"
	EntryVoided  EntryOp = "voided"
)

const (
	GoalActive    GoalState = "ACTIVE"
	GoalCompleted GoalState = "COMPLETED"
	GoalCancelled GoalState = "CANCELLED"
)

type (
	// Kind tells whether an entry adds to or takes from the balance.
	Kind string

	GoalState string

	EntryOp string

	Date struct {
		time.Time
	}

	// Entry is one recorded income or expense movement.
	Entry struct {
		ID          string
		Owner       string
		Kind        Kind
		Category    string
		Amount      Money
		Description string
		CreatedAt   time.Time
		Voided      bool
	}

	// Goal is a savings target the user accrues toward.
	Goal struct {
		ID        string
		Owner     string
		Name      string
		Target    Money
		Accrued   Money
		StartDate Date
		EndDate   Date
		State     GoalState
		CreatedAt time.Time
	}

	// Budget is a spending limit for one category, evaluated per calendar month.
	Budget struct {
		Owner    string
		Category string
		Limit    Money
	}
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrMissingKind       = errors.New("transaction kind is required")
	ErrEmptyName         = errors.New("goal name is required")
	ErrEmptyCategory     = errors.New("category is required")
	ErrNegativeTarget    = errors.New("target amount must be zero or positive")
	ErrNegativeAccrued   = errors.New("accrued amount must be zero or positive")
	ErrAccruedOverTarget = errors.New("accrued amount cannot exceed the target")
)

// ParseKind accepts the canonical names case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case Income:
		return Income, nil
	case Expense:
		return Expense, nil
	case "":
		return "", ErrMissingKind
	default:
		return "", errors.New("unknown transaction kind: " + s)
	}
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// Effect returns the signed change an amount of this kind applies to a balance.
func (k Kind) Effect(amount Money) Money {
	if k == Expense {
		return amount.Neg()
	}
	return amount
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate reads an ISO date (2006-01-02).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// Effect is the entry's signed contribution to its owner's balance.
func (e Entry) Effect() Money {
	return e.Kind.Effect(e.Amount)
}

// Reversal is the change that cancels Effect.
func (e Entry) Reversal() Money {
	return e.Effect().Neg()
}

func (e Entry) Validate() error {
	if !e.Kind.Valid() {
		if e.Kind == "" {
			return ErrMissingKind
		}
		return errors.New("unknown transaction kind: " + string(e.Kind))
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if g.Target.IsNegative() {
		return ErrNegativeTarget
	}
	if g.Accrued.IsNegative() {
		return ErrNegativeAccrued
	}
	if g.Accrued.GreaterThan(g.Target) {
		return ErrAccruedOverTarget
	}
	if err := g.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if err := g.EndDate.Validate(); err != nil {
		return errors.New("invalid end date: " + err.Error())
	}
	if g.EndDate.Before(g.StartDate.Time) {
		return errors.New("end date must be after start date")
	}
	return nil
}

// Remaining is what is still needed to reach the target.
func (g Goal) Remaining() Money {
	r := g.Target.Sub(g.Accrued)
	if r.IsNegative() {
		return Money{}
	}
	return r
}

// Reached reports whether the accrued amount meets the target.
func (g Goal) Reached() bool {
	return g.Accrued.GreaterThanOrEqual(g.Target)
}

// Progress is the completion percentage, capped at 100. A zero target reports 0.
func (g Goal) Progress() float64 {
	if !g.Target.IsPositive() {
		return 0
	}
	p := float64(g.Accrued.Cents) / float64(g.Target.Cents) * 100
	if p > 100 {
		return 100
	}
	return p
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	return b.Limit.Validate()
}

