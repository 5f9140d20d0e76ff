package fees

import (
	"time"

	"github.com/openshelf/kestrel/internal/domain"
)

// Engine runs the fee pipeline against an immutable rate table.
//
// Every method is a pure function of its inputs; an Engine may be shared
// by any number of goroutines without synchronization. The only mutation
// the pipeline's inputs ever see is a Loan's single return-date write,
// which the loan-lifecycle owner serializes before the loan reaches the
// engine.
type Engine struct {
	table domain.RateTable
}

// NewEngine creates an engine from a rate table, filling omitted fields
// with the stock defaults.
func NewEngine(table domain.RateTable) *Engine {
	return &Engine{table: table.Normalize()}
}

// Table returns the engine's rate table.
func (e *Engine) Table() domain.RateTable {
	return e.table
}

// ComputeFee runs elapsed-time, grace, escalation, discount, and cap in
// order for one loan under one strategy, returning the fee rounded to two
// decimals. The evaluation date is the loan's return date when present,
// otherwise asOf. A loan that is not overdue yields exactly 0.
func (e *Engine) ComputeFee(loan *domain.Loan, strategy Strategy, asOf time.Time) float64 {
	evalDate := loan.EvaluationDate(asOf)
	if !loan.OverdueAt(asOf) {
		return 0.0
	}

	var elapsed int
	switch strategy {
	case StrategyWeekendExclusive:
		elapsed = BusinessDays(loan.DueDate, evalDate)
	default:
		elapsed = CalendarDays(loan.DueDate, evalDate)
	}

	days := ApplyGrace(elapsed, e.table.GraceDays)
	rate := e.table.CategoryRate(loan.Item.Category)

	var amount float64
	switch strategy {
	case StrategyProgressive:
		amount = Progressive(days, rate, e.table.EscalationThresholdDays, e.table.EscalationMultiplier)
	default:
		amount = Linear(days, rate)
	}

	amount = ApplyDiscount(amount, e.table.ClassDiscount(loan.Patron.Class))
	amount = Cap(amount, e.table.FeeCap)
	return Round2(amount)
}

// Breakdown computes the fee for a loan under every strategy.
func (e *Engine) Breakdown(loan *domain.Loan, asOf time.Time) map[string]float64 {
	out := make(map[string]float64, 3)
	for _, s := range Strategies() {
		out[string(s)] = e.ComputeFee(loan, s, asOf)
	}
	return out
}

// PatronTotal sums the per-loan fees of a patron's open overdue loans
// under one strategy and applies the bulk tier for the overdue count.
// Closed or not-yet-overdue loans in the input are skipped and do not
// count toward the bulk tier. Zero open overdue loans yields 0.
func (e *Engine) PatronTotal(loans []*domain.Loan, strategy Strategy, asOf time.Time) float64 {
	var total float64
	count := 0
	for _, loan := range loans {
		if !loan.Open() || !loan.OverdueAt(asOf) {
			continue
		}
		total += e.ComputeFee(loan, strategy, asOf)
		count++
	}
	if count == 0 {
		return 0.0
	}
	return Round2(total * e.table.BulkFactor(count))
}
