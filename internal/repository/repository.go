// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openshelf/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveItem stores a catalog item with tenant isolation.
func (r *SQLRepository) SaveItem(ctx context.Context, tenantID string, item *domain.Item) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO items (id, tenant_id, title, category, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			title = excluded.title,
			category = excluded.category
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		item.ID, tenantID, item.Title, item.Category, time.Now().UTC(),
	)
	return err
}

// GetItem retrieves a catalog item by ID with tenant isolation.
func (r *SQLRepository) GetItem(ctx context.Context, tenantID string, itemID string) (*domain.Item, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, title, category
		FROM items
		WHERE tenant_id = ? AND id = ?
	`

	var item domain.Item
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, itemID).Scan(
		&item.ID, &item.Title, &item.Category,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// SavePatron stores a patron with tenant isolation.
func (r *SQLRepository) SavePatron(ctx context.Context, tenantID string, patron *domain.Patron) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO patrons (id, tenant_id, name, class, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			class = excluded.class
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		patron.ID, tenantID, patron.Name, patron.Class, time.Now().UTC(),
	)
	return err
}

// GetPatron retrieves a patron by ID with tenant isolation.
func (r *SQLRepository) GetPatron(ctx context.Context, tenantID string, patronID string) (*domain.Patron, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, name, class
		FROM patrons
		WHERE tenant_id = ? AND id = ?
	`

	var patron domain.Patron
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, patronID).Scan(
		&patron.ID, &patron.Name, &patron.Class,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &patron, nil
}

// SaveLoan stores a loan with tenant isolation.
func (r *SQLRepository) SaveLoan(ctx context.Context, tenantID string, loan *domain.Loan) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if loan.Item == nil || loan.Patron == nil {
		return fmt.Errorf("%w: loan item and patron are required", ErrInvalidInput)
	}

	var returnDate sql.NullTime
	if loan.ReturnDate != nil {
		returnDate = sql.NullTime{Time: *loan.ReturnDate, Valid: true}
	}

	query := `
		INSERT INTO loans (
			id, tenant_id, item_id, patron_id,
			checkout_date, due_date, return_date, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		loan.ID, tenantID, loan.Item.ID, loan.Patron.ID,
		loan.CheckoutDate, loan.DueDate, returnDate, time.Now().UTC(),
	)
	return err
}

const loanColumns = `
	l.id, l.checkout_date, l.due_date, l.return_date,
	i.id, i.title, i.category,
	p.id, p.name, p.class
`

func (r *SQLRepository) scanLoan(tenantID string, scan func(dest ...any) error) (*domain.Loan, error) {
	var loan domain.Loan
	var item domain.Item
	var patron domain.Patron
	var returnDate sql.NullTime

	if err := scan(
		&loan.ID, &loan.CheckoutDate, &loan.DueDate, &returnDate,
		&item.ID, &item.Title, &item.Category,
		&patron.ID, &patron.Name, &patron.Class,
	); err != nil {
		return nil, err
	}

	loan.TenantID = tenantID
	loan.Item = &item
	loan.Patron = &patron
	if returnDate.Valid {
		d := returnDate.Time.UTC()
		loan.ReturnDate = &d
	}
	return &loan, nil
}

// GetLoan retrieves a loan with its item and patron, tenant isolated.
func (r *SQLRepository) GetLoan(ctx context.Context, tenantID string, loanID string) (*domain.Loan, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + loanColumns + `
		FROM loans l
		JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
		JOIN patrons p ON p.id = l.patron_id AND p.tenant_id = l.tenant_id
		WHERE l.tenant_id = ? AND l.id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, loanID)
	loan, err := r.scanLoan(tenantID, row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// MarkReturned sets a loan's return date exactly once.
func (r *SQLRepository) MarkReturned(ctx context.Context, tenantID string, loanID string, returnedAt time.Time) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE loans
		SET return_date = ?
		WHERE tenant_id = ? AND id = ? AND return_date IS NULL
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), domain.DateOf(returnedAt), tenantID, loanID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing loan from a second return.
		if _, err := r.GetLoan(ctx, tenantID, loanID); err != nil {
			return err
		}
		return domain.ErrAlreadyReturned
	}

	return nil
}

// GetOpenLoansByPatron retrieves a patron's open loans with tenant isolation.
func (r *SQLRepository) GetOpenLoansByPatron(ctx context.Context, tenantID string, patronID string) ([]*domain.Loan, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + loanColumns + `
		FROM loans l
		JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
		JOIN patrons p ON p.id = l.patron_id AND p.tenant_id = l.tenant_id
		WHERE l.tenant_id = ? AND l.patron_id = ? AND l.return_date IS NULL
		ORDER BY l.due_date
	`

	return r.queryLoans(ctx, r.rebind(query), tenantID, tenantID, patronID)
}

// GetOpenLoans retrieves all open loans for a tenant, ordered by due date.
func (r *SQLRepository) GetOpenLoans(ctx context.Context, tenantID string) ([]*domain.Loan, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT ` + loanColumns + `
		FROM loans l
		JOIN items i ON i.id = l.item_id AND i.tenant_id = l.tenant_id
		JOIN patrons p ON p.id = l.patron_id AND p.tenant_id = l.tenant_id
		WHERE l.tenant_id = ? AND l.return_date IS NULL
		ORDER BY l.due_date
	`

	return r.queryLoans(ctx, r.rebind(query), tenantID, tenantID)
}

func (r *SQLRepository) queryLoans(ctx context.Context, query, tenantID string, args ...any) ([]*domain.Loan, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		loan, err := r.scanLoan(tenantID, rows.Scan)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}

	return loans, rows.Err()
}

// SaveAssessment stores an assessment result with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, assessment *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	breakdown, _ := json.Marshal(assessment.Breakdown)
	metadata, _ := json.Marshal(assessment.Metadata)

	query := `
		INSERT INTO assessments (
			id, tenant_id, loan_id, patron_id, strategy, amount,
			as_of, evaluated_at, breakdown, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		assessment.ID, tenantID, assessment.LoanID, assessment.PatronID,
		assessment.Strategy, assessment.Amount,
		assessment.AsOf, assessment.EvaluatedAt,
		string(breakdown), string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, loan_id, patron_id, strategy, amount,
			   as_of, evaluated_at, breakdown, metadata
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	var a domain.Assessment
	var breakdown, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, assessmentID).Scan(
		&a.ID, &a.TenantID, &a.LoanID, &a.PatronID, &a.Strategy, &a.Amount,
		&a.AsOf, &a.EvaluatedAt, &breakdown, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if breakdown != "" {
		json.Unmarshal([]byte(breakdown), &a.Breakdown)
	}
	json.Unmarshal([]byte(metadata), &a.Metadata)

	return &a, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
