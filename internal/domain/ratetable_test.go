package domain

import "testing"

func TestCategoryRateFallback(t *testing.T) {
	table := DefaultRateTable()

	tests := []struct {
		category string
		want     float64
	}{
		{CategoryRegular, 0.50},
		{CategoryReference, 1.00},
		{CategoryBestseller, 0.75},
		{CategoryChildren, 0.25},
		{CategoryTextbook, 1.25},
		{"vinyl", DefaultCategoryRate},
		{"", DefaultCategoryRate},
	}

	for _, tc := range tests {
		if got := table.CategoryRate(tc.category); got != tc.want {
			t.Errorf("CategoryRate(%q) = %.2f, want %.2f", tc.category, got, tc.want)
		}
	}
}

func TestClassDiscountFallback(t *testing.T) {
	table := DefaultRateTable()

	tests := []struct {
		class string
		want  float64
	}{
		{ClassStudent, 0.5},
		{ClassSenior, 0.3},
		{ClassFaculty, 0.2},
		{ClassRegular, 1.0},
		{"alumni", 1.0},
		{"", 1.0},
	}

	for _, tc := range tests {
		if got := table.ClassDiscount(tc.class); got != tc.want {
			t.Errorf("ClassDiscount(%q) = %.2f, want %.2f", tc.class, got, tc.want)
		}
	}
}

func TestBulkFactor(t *testing.T) {
	table := DefaultRateTable()

	tests := []struct {
		count int
		want  float64
	}{
		{0, 1.00},
		{1, 1.00},
		{2, 0.95},
		{3, 0.90},
		{7, 0.90},
	}

	for _, tc := range tests {
		if got := table.BulkFactor(tc.count); got != tc.want {
			t.Errorf("BulkFactor(%d) = %.2f, want %.2f", tc.count, got, tc.want)
		}
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	got := RateTable{}.Normalize()
	def := DefaultRateTable()

	if got.GraceDays != 0 {
		t.Errorf("zero grace days should be preserved, got %d", got.GraceDays)
	}
	if got.EscalationThresholdDays != def.EscalationThresholdDays {
		t.Errorf("escalation threshold = %d, want %d", got.EscalationThresholdDays, def.EscalationThresholdDays)
	}
	if got.EscalationMultiplier != def.EscalationMultiplier {
		t.Errorf("escalation multiplier = %.2f, want %.2f", got.EscalationMultiplier, def.EscalationMultiplier)
	}
	if got.FeeCap != def.FeeCap {
		t.Errorf("fee cap = %.2f, want %.2f", got.FeeCap, def.FeeCap)
	}
	if got.CategoryRate(CategoryTextbook) != 1.25 {
		t.Error("normalized table should carry default category rates")
	}
	if got.BulkFactor(3) != 0.90 {
		t.Error("normalized table should carry default bulk tiers")
	}
}

func TestNormalizePreservesOverrides(t *testing.T) {
	custom := RateTable{
		CategoryRates: map[string]float64{"map": 2.00},
		GraceDays:     5,
		FeeCap:        25.0,
	}.Normalize()

	if custom.CategoryRate("map") != 2.00 {
		t.Error("override category rate lost")
	}
	if custom.CategoryRate(CategoryTextbook) != DefaultCategoryRate {
		t.Error("categories outside the override table should use the fallback rate")
	}
	if custom.GraceDays != 5 || custom.FeeCap != 25.0 {
		t.Error("override thresholds lost")
	}
}
