package domain

import (
	"errors"
	"time"
)

var (
	// ErrInvalidLoan is returned when a loan's due date would not fall
	// strictly after its checkout date.
	ErrInvalidLoan = errors.New("loan due date must be after checkout date")

	// ErrAlreadyReturned is returned on a second return of the same loan.
	ErrAlreadyReturned = errors.New("loan already returned")
)

// DefaultLoanPeriodDays is the loan period used when a checkout request
// does not specify one.
const DefaultLoanPeriodDays = 14

// Item represents a catalog item. Items are owned by the catalog and
// referenced, never copied, by loans.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Patron represents a borrower. Patrons are owned by the roster and
// referenced, never copied, by loans.
type Patron struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Class string `json:"class"`
}

// Well-known item categories. Unknown categories fall back to the
// default rate at lookup time.
const (
	CategoryRegular    = "regular"
	CategoryReference  = "reference"
	CategoryBestseller = "bestseller"
	CategoryChildren   = "children"
	CategoryTextbook   = "textbook"
)

// Well-known patron classes. Unknown classes fall back to a discount
// factor of 1.0 at lookup time.
const (
	ClassStudent = "student"
	ClassSenior  = "senior"
	ClassFaculty = "faculty"
	ClassRegular = "regular"
)

// Loan represents a checkout of an item by a patron.
//
// A Loan is immutable once constructed except for the single return-date
// write performed by Return. That write must be serialized by whichever
// component owns the loan lifecycle; the fee pipeline never observes a
// half-written Loan.
type Loan struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenantId"`
	Item     *Item   `json:"item"`
	Patron   *Patron `json:"patron"`

	CheckoutDate time.Time  `json:"checkoutDate"`
	DueDate      time.Time  `json:"dueDate"`
	ReturnDate   *time.Time `json:"returnDate,omitempty"`
}

// NewLoan creates a loan with a due date computed once from the checkout
// date and loan period. A non-positive period would produce a due date at
// or before checkout and fails immediately with ErrInvalidLoan.
func NewLoan(id string, item *Item, patron *Patron, checkout time.Time, loanPeriodDays int) (*Loan, error) {
	if loanPeriodDays == 0 {
		loanPeriodDays = DefaultLoanPeriodDays
	}
	if loanPeriodDays < 0 {
		return nil, ErrInvalidLoan
	}

	checkout = DateOf(checkout)
	return &Loan{
		ID:           id,
		Item:         item,
		Patron:       patron,
		CheckoutDate: checkout,
		DueDate:      checkout.AddDate(0, 0, loanPeriodDays),
	}, nil
}

// Return records the return date. It may be called exactly once.
func (l *Loan) Return(on time.Time) error {
	if l.ReturnDate != nil {
		return ErrAlreadyReturned
	}
	d := DateOf(on)
	l.ReturnDate = &d
	return nil
}

// Open reports whether the loan has not been returned.
func (l *Loan) Open() bool {
	return l.ReturnDate == nil
}

// EvaluationDate resolves the date a fee should be evaluated at: the
// return date when the loan is closed, otherwise the supplied as-of date.
func (l *Loan) EvaluationDate(asOf time.Time) time.Time {
	if l.ReturnDate != nil {
		return DateOf(*l.ReturnDate)
	}
	return DateOf(asOf)
}

// OverdueAt reports whether the loan is overdue relative to asOf. A closed
// loan is judged by its return date instead of asOf.
func (l *Loan) OverdueAt(asOf time.Time) bool {
	return l.EvaluationDate(asOf).After(DateOf(l.DueDate))
}

// DateOf strips the time of day, returning the calendar date in UTC.
// All fee arithmetic operates on whole calendar dates.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
