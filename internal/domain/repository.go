// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Catalog operations
	SaveItem(ctx context.Context, tenantID string, item *Item) error
	GetItem(ctx context.Context, tenantID string, itemID string) (*Item, error)

	// Roster operations
	SavePatron(ctx context.Context, tenantID string, patron *Patron) error
	GetPatron(ctx context.Context, tenantID string, patronID string) (*Patron, error)

	// Loan lifecycle
	SaveLoan(ctx context.Context, tenantID string, loan *Loan) error
	GetLoan(ctx context.Context, tenantID string, loanID string) (*Loan, error)
	MarkReturned(ctx context.Context, tenantID string, loanID string, returnedAt time.Time) error
	GetOpenLoansByPatron(ctx context.Context, tenantID string, patronID string) ([]*Loan, error)
	GetOpenLoans(ctx context.Context, tenantID string) ([]*Loan, error)

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, assessment *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*Assessment, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
