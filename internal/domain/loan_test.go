package domain

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewLoanComputesDueDate(t *testing.T) {
	checkout := day(2025, time.September, 1)
	loan, err := NewLoan("loan-001",
		&Item{ID: "item-001", Category: CategoryTextbook},
		&Patron{ID: "patron-001", Class: ClassStudent},
		checkout, 14)
	if err != nil {
		t.Fatalf("NewLoan failed: %v", err)
	}

	want := day(2025, time.September, 15)
	if !loan.DueDate.Equal(want) {
		t.Errorf("due date = %v, want %v", loan.DueDate, want)
	}
	if !loan.DueDate.After(loan.CheckoutDate) {
		t.Error("due date must be after checkout date")
	}
	if !loan.Open() {
		t.Error("new loan should be open")
	}
}

func TestNewLoanDefaultPeriod(t *testing.T) {
	checkout := day(2025, time.September, 1)
	loan, err := NewLoan("loan-002", &Item{}, &Patron{}, checkout, 0)
	if err != nil {
		t.Fatalf("NewLoan failed: %v", err)
	}
	if got := loan.DueDate.Sub(loan.CheckoutDate); got != DefaultLoanPeriodDays*24*time.Hour {
		t.Errorf("default period = %v, want %d days", got, DefaultLoanPeriodDays)
	}
}

func TestNewLoanInvalidPeriod(t *testing.T) {
	_, err := NewLoan("loan-003", &Item{}, &Patron{}, day(2025, time.September, 1), -7)
	if !errors.Is(err, ErrInvalidLoan) {
		t.Errorf("expected ErrInvalidLoan, got %v", err)
	}
}

func TestNewLoanStripsTimeOfDay(t *testing.T) {
	checkout := time.Date(2025, time.September, 1, 17, 45, 12, 0, time.UTC)
	loan, err := NewLoan("loan-004", &Item{}, &Patron{}, checkout, 7)
	if err != nil {
		t.Fatalf("NewLoan failed: %v", err)
	}
	if loan.CheckoutDate.Hour() != 0 || loan.DueDate.Hour() != 0 {
		t.Error("checkout and due dates should be whole calendar dates")
	}
}

func TestReturnOnce(t *testing.T) {
	loan, _ := NewLoan("loan-005", &Item{}, &Patron{}, day(2025, time.September, 1), 14)

	if err := loan.Return(day(2025, time.September, 20)); err != nil {
		t.Fatalf("Return failed: %v", err)
	}
	if loan.Open() {
		t.Error("returned loan should not be open")
	}

	err := loan.Return(day(2025, time.September, 21))
	if !errors.Is(err, ErrAlreadyReturned) {
		t.Errorf("expected ErrAlreadyReturned on second return, got %v", err)
	}
}

func TestOverdueAt(t *testing.T) {
	loan, _ := NewLoan("loan-006", &Item{}, &Patron{}, day(2025, time.September, 1), 14)
	due := day(2025, time.September, 15)

	tests := []struct {
		name string
		asOf time.Time
		want bool
	}{
		{"before due", day(2025, time.September, 10), false},
		{"on due date", due, false},
		{"day after due", day(2025, time.September, 16), true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := loan.OverdueAt(tc.asOf); got != tc.want {
				t.Errorf("OverdueAt(%v) = %v, want %v", tc.asOf, got, tc.want)
			}
		})
	}
}

func TestOverdueAtUsesReturnDate(t *testing.T) {
	loan, _ := NewLoan("loan-007", &Item{}, &Patron{}, day(2025, time.September, 1), 14)
	if err := loan.Return(day(2025, time.September, 14)); err != nil {
		t.Fatalf("Return failed: %v", err)
	}

	// Returned on time: never overdue, regardless of asOf.
	if loan.OverdueAt(day(2025, time.December, 1)) {
		t.Error("loan returned before due should not be overdue")
	}

	late, _ := NewLoan("loan-008", &Item{}, &Patron{}, day(2025, time.September, 1), 14)
	if err := late.Return(day(2025, time.September, 20)); err != nil {
		t.Fatalf("Return failed: %v", err)
	}

	// Returned late: overdue even when asOf is before the due date.
	if !late.OverdueAt(day(2025, time.September, 2)) {
		t.Error("loan returned after due should be overdue")
	}
}

func TestEvaluationDate(t *testing.T) {
	loan, _ := NewLoan("loan-009", &Item{}, &Patron{}, day(2025, time.September, 1), 14)
	asOf := day(2025, time.September, 25)

	if got := loan.EvaluationDate(asOf); !got.Equal(asOf) {
		t.Errorf("open loan evaluation date = %v, want %v", got, asOf)
	}

	returned := day(2025, time.September, 18)
	loan.Return(returned)
	if got := loan.EvaluationDate(asOf); !got.Equal(returned) {
		t.Errorf("closed loan evaluation date = %v, want %v", got, returned)
	}
}
