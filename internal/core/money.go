// Package core holds the domain model: transactions, accounts,
// categories and the monthly aggregates built from them.
package core

import "math"

// Units returns the whole-currency value as a float64 for display and
// for the chart payload. Use cents for calculations to avoid
// floating-point precision issues.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

// FromUnits converts a whole-currency amount to Money with half-up
// rounding on fractional cents. Statement feeds report amounts in
// currency units, storage always keeps cents.
func FromUnits(units float64) Money {
	return Money{Cents: int64(math.Round(units * 100))}
}

// Abs returns the magnitude of the amount. Statement rows may carry
// signed amounts; the ledger stores debits as positive values.
func (m Money) Abs() Money {
	if m.Cents < 0 {
		return Money{Cents: -m.Cents}
	}
	return m
}
