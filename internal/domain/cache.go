package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetOpenLoans retrieves a cached open-loan snapshot for a patron.
	GetOpenLoans(ctx context.Context, tenantID string, patronID string) (*LoanSnapshot, error)

	// SetOpenLoans caches a patron's open-loan snapshot.
	SetOpenLoans(ctx context.Context, tenantID string, patronID string, snap *LoanSnapshot, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for per-patron assessment counters.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// LoanSnapshot holds a patron's open loans as cached for total/report
// computation. Entries mirror the Loan fields the fee pipeline reads.
type LoanSnapshot struct {
	PatronID string          `json:"patronId"`
	Loans    []SnapshotEntry `json:"loans"`
	TakenAt  time.Time       `json:"takenAt"`
}

// SnapshotEntry is one open loan inside a LoanSnapshot.
type SnapshotEntry struct {
	LoanID      string `json:"loanId"`
	ItemID      string `json:"itemId"`
	Category    string `json:"category"`
	PatronClass string `json:"patronClass"`
	DueDate     string `json:"dueDate"` // 2006-01-02
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
