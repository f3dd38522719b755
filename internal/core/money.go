// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. Parsing and fractional arithmetic go
// through decimal values so that user input and percentage shares round the
// same way everywhere.
package core

import (
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Currency used when rendering amounts for people.
const Currency = gomoney.EUR

// MaxCents is the largest amount a single entry, goal or budget may carry.
const MaxCents int64 = 1e17

type Money struct {
	Cents int64
}

// Cents is a shorthand constructor.
func Cents(c int64) Money { return Money{Cents: c} }

// ParseAmount converts a decimal string to Money with half-up rounding to the cent.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Zero, negative
// and malformed values are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234
//	ParseAmount("12,345") -> 1235
func ParseAmount(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || strings.HasPrefix(s, "+") {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m, err := fromDecimal(d)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

// ParseNonNegativeAmount is ParseAmount that also accepts zero, for targets
// and accrued amounts.
func ParseNonNegativeAmount(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return Money{}, ErrInvalidAmount
	}
	return fromDecimal(d)
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Shift(2).Round(0)
	if cents.Abs().GreaterThan(decimal.NewFromInt(MaxCents)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Percent returns pct percent of m, rounded half-up to the cent.
func (m Money) Percent(pct decimal.Decimal) Money {
	share := decimal.NewFromInt(m.Cents).Mul(pct).Div(decimal.NewFromInt(100)).Round(0)
	return Money{Cents: share.IntPart()}
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxCents {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(n Money) Money              { return Money{Cents: m.Cents + n.Cents} }
func (m Money) Sub(n Money) Money              { return Money{Cents: m.Cents - n.Cents} }
func (m Money) Neg() Money                     { return Money{Cents: -m.Cents} }
func (m Money) IsZero() bool                   { return m.Cents == 0 }
func (m Money) IsPositive() bool               { return m.Cents > 0 }
func (m Money) IsNegative() bool               { return m.Cents < 0 }
func (m Money) LessThan(n Money) bool          { return m.Cents < n.Cents }
func (m Money) GreaterThan(n Money) bool       { return m.Cents > n.Cents }
func (m Money) GreaterThanOrEqual(n Money) bool { return m.Cents >= n.Cents }

// Min returns the smaller of two amounts.
func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Decimal returns the major-unit value.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount for display, e.g. "€12.34".
func (m Money) String() string {
	return gomoney.New(m.Cents, Currency).Display()
}
