// Package pricing computes markup prices.  It performs no I/O.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidMarkup is returned when both or neither of the percentage and
	// flat amount are supplied.
	ErrInvalidMarkup = errors.New("exactly one of markup percentage or markup amount is required")

	// ErrNegativeAmount is returned when the base price or the resulting price
	// would be negative.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrTooPrecise is returned when a markup value carries more decimal
	// places than the markups table stores.
	ErrTooPrecise = errors.New("markup value must have at most 2 decimal places")

	// ErrOutOfRange is returned when a value does not fit its column.
	ErrOutOfRange = errors.New("amount out of range")
)

// Scale is the number of decimal places kept on currency values.
const Scale = 2

var (
	hundred = decimal.NewFromInt(100)

	// MaxPercentage and MaxAmount are the largest magnitudes that fit
	// markup_percentage DECIMAL(8,2) and the DECIMAL(12,2) amount columns.
	MaxPercentage = decimal.RequireFromString("999999.99")
	MaxAmount     = decimal.RequireFromString("9999999999.99")
)

// ComputeFinalAmount returns the price after applying either a percentage
// or a flat markup to original.  Rounding to two places happens once, on
// the result.  The markup value must already be at storage scale so that
// the persisted row reproduces its own final amount.
func ComputeFinalAmount(original decimal.Decimal, percentage, amount decimal.NullDecimal) (decimal.Decimal, error) {
	if percentage.Valid == amount.Valid {
		return decimal.Decimal{}, ErrInvalidMarkup
	}
	if original.IsNegative() {
		return decimal.Decimal{}, ErrNegativeAmount
	}
	if original.GreaterThan(MaxAmount) {
		return decimal.Decimal{}, ErrOutOfRange
	}
	value, limit := amount.Decimal, MaxAmount
	if percentage.Valid {
		value, limit = percentage.Decimal, MaxPercentage
	}
	if !value.Equal(value.Round(Scale)) {
		return decimal.Decimal{}, ErrTooPrecise
	}
	if value.Abs().GreaterThan(limit) {
		return decimal.Decimal{}, ErrOutOfRange
	}
	var final decimal.Decimal
	if percentage.Valid {
		final = original.Mul(decimal.NewFromInt(1).Add(percentage.Decimal.Div(hundred)))
	} else {
		final = original.Add(amount.Decimal)
	}
	final = final.Round(Scale)
	if final.IsNegative() {
		return decimal.Decimal{}, ErrNegativeAmount
	}
	if final.GreaterThan(MaxAmount) {
		return decimal.Decimal{}, ErrOutOfRange
	}
	return final, nil
}

// Spec is a markup as entered by a host: one value plus a flag telling
// whether it is a percentage.
type Spec struct {
	Value        decimal.Decimal
	IsPercentage bool
}

// Split returns the (percentage, amount) pair expected by
// ComputeFinalAmount and persisted on a markup row.
func (s Spec) Split() (percentage, amount decimal.NullDecimal) {
	if s.IsPercentage {
		return decimal.NewNullDecimal(s.Value), decimal.NullDecimal{}
	}
	return decimal.NullDecimal{}, decimal.NewNullDecimal(s.Value)
}

// Apply computes the final amount for original under s.
func (s Spec) Apply(original decimal.Decimal) (decimal.Decimal, error) {
	p, a := s.Split()
	return ComputeFinalAmount(original, p, a)
}
