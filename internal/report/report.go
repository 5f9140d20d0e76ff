// Package report builds overdue-fee reports across a tenant's open loans.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/openshelf/kestrel/internal/domain"
	"github.com/openshelf/kestrel/internal/fees"
)

// Builder produces overdue reports from the repository and fee engine.
type Builder struct {
	repo   domain.Repository
	engine *fees.Engine
}

// NewBuilder creates a report builder.
func NewBuilder(repo domain.Repository, engine *fees.Engine) *Builder {
	return &Builder{
		repo:   repo,
		engine: engine,
	}
}

// Row is one overdue loan in a report, with the fee under every strategy.
type Row struct {
	LoanID      string             `json:"loanId"`
	ItemID      string             `json:"itemId"`
	Title       string             `json:"title"`
	PatronID    string             `json:"patronId"`
	PatronName  string             `json:"patronName"`
	PatronClass string             `json:"patronClass"`
	Category    string             `json:"category"`
	DueDate     string             `json:"dueDate"`
	DaysOverdue int                `json:"daysOverdue"`
	Fees        map[string]float64 `json:"fees"`
}

// Report is an overdue-fee report for a tenant at a point in time.
type Report struct {
	ID          string             `json:"id"`
	TenantID    string             `json:"tenantId"`
	AsOf        string             `json:"asOf"`
	GeneratedAt time.Time          `json:"generatedAt"`
	LoanCount   int                `json:"loanCount"`
	Rows        []Row              `json:"rows"`
	Totals      map[string]float64 `json:"totals"`
	ElapsedMs   int64              `json:"elapsedMs"`
}

// Build collects every open overdue loan for the tenant and computes its
// fee under each strategy. Loans that are open but not yet overdue are
// excluded.
func (b *Builder) Build(ctx context.Context, tenantID string, asOf time.Time) (*Report, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	start := time.Now()
	asOf = domain.DateOf(asOf)

	loans, err := b.repo.GetOpenLoans(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get open loans: %w", err)
	}

	rep := &Report{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		AsOf:        asOf.Format("2006-01-02"),
		GeneratedAt: time.Now().UTC(),
		Rows:        make([]Row, 0),
		Totals:      make(map[string]float64),
	}

	for _, strategy := range fees.Strategies() {
		rep.Totals[string(strategy)] = 0
	}

	for _, loan := range loans {
		if !loan.OverdueAt(asOf) {
			continue
		}

		row := Row{
			LoanID:      loan.ID,
			DueDate:     loan.DueDate.Format("2006-01-02"),
			DaysOverdue: fees.CalendarDays(loan.DueDate, asOf),
			Fees:        b.engine.Breakdown(loan, asOf),
		}
		if loan.Item != nil {
			row.ItemID = loan.Item.ID
			row.Title = loan.Item.Title
			row.Category = loan.Item.Category
		}
		if loan.Patron != nil {
			row.PatronID = loan.Patron.ID
			row.PatronName = loan.Patron.Name
			row.PatronClass = loan.Patron.Class
		}

		for name, fee := range row.Fees {
			rep.Totals[name] += fee
		}

		rep.Rows = append(rep.Rows, row)
	}

	for name, total := range rep.Totals {
		rep.Totals[name] = fees.Round2(total)
	}

	rep.LoanCount = len(rep.Rows)
	rep.ElapsedMs = time.Since(start).Milliseconds()

	return rep, nil
}

// WriteCSV renders a report as CSV. One row per overdue loan, one fee
// column per strategy, then a totals row.
func WriteCSV(w io.Writer, rep *Report) error {
	cw := csv.NewWriter(w)

	header := []string{
		"loan_id", "item_id", "title", "patron_id", "patron_name",
		"patron_class", "category", "due_date", "days_overdue",
	}
	strategies := fees.Strategies()
	for _, s := range strategies {
		header = append(header, string(s))
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range rep.Rows {
		record := []string{
			row.LoanID, row.ItemID, row.Title, row.PatronID, row.PatronName,
			row.PatronClass, row.Category, row.DueDate,
			strconv.Itoa(row.DaysOverdue),
		}
		for _, s := range strategies {
			record = append(record, formatAmount(row.Fees[string(s)]))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	totals := []string{"total", "", "", "", "", "", "", "", strconv.Itoa(rep.LoanCount)}
	for _, s := range strategies {
		totals = append(totals, formatAmount(rep.Totals[string(s)]))
	}
	if err := cw.Write(totals); err != nil {
		return err
	}

	cw.Flush()
	return cw.Error()
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
