package domain

// RateTable is the process-wide fee configuration: base rates per item
// category, discount factors per patron class, and the pipeline's
// thresholds. It is loaded once at startup and never mutated afterward,
// so lookups are safe for concurrent use.
type RateTable struct {
	// CategoryRates maps item category to per-day base rate.
	CategoryRates map[string]float64 `json:"categoryRates"`

	// ClassDiscounts maps patron class to a discount multiplier.
	ClassDiscounts map[string]float64 `json:"classDiscounts"`

	// GraceDays is the number of overdue days forgiven before any fee accrues.
	GraceDays int `json:"graceDays"`

	// EscalationThresholdDays is the day count after which the progressive
	// strategy escalates, and EscalationMultiplier the post-threshold
	// rate multiplier.
	EscalationThresholdDays int     `json:"escalationThresholdDays"`
	EscalationMultiplier    float64 `json:"escalationMultiplier"`

	// FeeCap is the absolute per-loan fee ceiling.
	FeeCap float64 `json:"feeCap"`

	// BulkTiers maps open-overdue-loan counts to total-fee multipliers,
	// highest MinLoans first.
	BulkTiers []BulkTier `json:"bulkTiers"`
}

// BulkTier applies Factor to a patron's summed fees when the patron has at
// least MinLoans open overdue loans.
type BulkTier struct {
	MinLoans int     `json:"minLoans"`
	Factor   float64 `json:"factor"`
}

// DefaultCategoryRate is the per-day rate for categories missing from the
// table.
const DefaultCategoryRate = 0.50

// DefaultRateTable returns the stock configuration.
func DefaultRateTable() RateTable {
	return RateTable{
		CategoryRates: map[string]float64{
			CategoryRegular:    0.50,
			CategoryReference:  1.00,
			CategoryBestseller: 0.75,
			CategoryChildren:   0.25,
			CategoryTextbook:   1.25,
		},
		ClassDiscounts: map[string]float64{
			ClassStudent: 0.5,
			ClassSenior:  0.3,
			ClassFaculty: 0.2,
			ClassRegular: 1.0,
		},
		GraceDays:               2,
		EscalationThresholdDays: 7,
		EscalationMultiplier:    1.5,
		FeeCap:                  50.0,
		BulkTiers: []BulkTier{
			{MinLoans: 3, Factor: 0.90},
			{MinLoans: 2, Factor: 0.95},
		},
	}
}

// Normalize fills omitted fields with the defaults so a partially
// specified table behaves like the stock one.
func (t RateTable) Normalize() RateTable {
	def := DefaultRateTable()
	if t.CategoryRates == nil {
		t.CategoryRates = def.CategoryRates
	}
	if t.ClassDiscounts == nil {
		t.ClassDiscounts = def.ClassDiscounts
	}
	if t.GraceDays < 0 {
		t.GraceDays = 0
	}
	if t.EscalationThresholdDays <= 0 {
		t.EscalationThresholdDays = def.EscalationThresholdDays
	}
	if t.EscalationMultiplier <= 0 {
		t.EscalationMultiplier = def.EscalationMultiplier
	}
	if t.FeeCap <= 0 {
		t.FeeCap = def.FeeCap
	}
	if t.BulkTiers == nil {
		t.BulkTiers = def.BulkTiers
	}
	return t
}

// CategoryRate returns the per-day base rate for a category. Unmapped
// categories get DefaultCategoryRate, never a missing-key failure.
func (t RateTable) CategoryRate(category string) float64 {
	if rate, ok := t.CategoryRates[category]; ok {
		return rate
	}
	return DefaultCategoryRate
}

// ClassDiscount returns the discount multiplier for a patron class.
// Unmapped classes get 1.0 (no discount).
func (t RateTable) ClassDiscount(class string) float64 {
	if factor, ok := t.ClassDiscounts[class]; ok {
		return factor
	}
	return 1.0
}

// BulkFactor returns the total-fee multiplier for a count of open overdue
// loans: the factor of the highest tier the count reaches, or 1.0.
func (t RateTable) BulkFactor(count int) float64 {
	best := 1.0
	bestMin := 0
	for _, tier := range t.BulkTiers {
		if count >= tier.MinLoans && tier.MinLoans > bestMin {
			best = tier.Factor
			bestMin = tier.MinLoans
		}
	}
	return best
}
