// Package fees implements the overdue-fee pipeline: elapsed-time
// measurement, grace trimming, escalation, class discounting, capping,
// and bulk aggregation, composed into named strategies.
package fees

import (
	"math"
	"time"

	"github.com/openshelf/kestrel/internal/domain"
)

// CalendarDays returns the whole-day count between due and asOf, floored
// at zero. Inputs are treated as calendar dates; a same-day due and
// evaluation yields 0.
func CalendarDays(due, asOf time.Time) int {
	due = domain.DateOf(due)
	asOf = domain.DateOf(asOf)
	days := int(asOf.Sub(due) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}

// BusinessDays counts the days in the half-open interval (due, asOf] that
// fall Monday through Friday. Zero when asOf is on or before due.
func BusinessDays(due, asOf time.Time) int {
	due = domain.DateOf(due)
	asOf = domain.DateOf(asOf)

	count := 0
	for d := due.AddDate(0, 0, 1); !d.After(asOf); d = d.AddDate(0, 0, 1) {
		switch d.Weekday() {
		case time.Saturday, time.Sunday:
		default:
			count++
		}
	}
	return count
}

// ApplyGrace forgives graceDays of the elapsed overdue days, floored at
// zero.
func ApplyGrace(days, graceDays int) int {
	if graceDays < 0 {
		graceDays = 0
	}
	if days <= graceDays {
		return 0
	}
	return days - graceDays
}

// Linear converts post-grace days to an amount at a flat per-day rate.
func Linear(days int, rate float64) float64 {
	if days <= 0 {
		return 0
	}
	return float64(days) * rate
}

// Progressive charges the flat rate up to threshold days, then
// rate*multiplier per day beyond it. Continuous at the threshold: the
// value at days == threshold is identical under both branches.
func Progressive(days int, rate float64, threshold int, multiplier float64) float64 {
	if days <= 0 {
		return 0
	}
	if days <= threshold {
		return float64(days) * rate
	}
	return float64(threshold)*rate + rate*multiplier*float64(days-threshold)
}

// ApplyDiscount multiplies an amount by a class discount factor.
func ApplyDiscount(amount, factor float64) float64 {
	return amount * factor
}

// Cap clamps an amount to the fee ceiling.
func Cap(amount, ceiling float64) float64 {
	if amount > ceiling {
		return ceiling
	}
	return amount
}

// Round2 rounds to two decimal places, half away from zero.
func Round2(amount float64) float64 {
	return math.Round(amount*100) / 100
}
