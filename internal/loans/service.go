// Package loans provides open-loan lookup with snapshot caching.
package loans

import (
	"context"
	"fmt"
	"time"

	"github.com/openshelf/kestrel/internal/domain"
)

const dateLayout = "2006-01-02"

// Service resolves a patron's open loans for fee evaluation.
// Reads go through the cache as a loan snapshot; writes invalidate it.
type Service struct {
	repo        domain.Repository
	cache       domain.Cache
	snapshotTTL time.Duration
}

// NewService creates a new loan lookup service.
func NewService(repo domain.Repository, cache domain.Cache, snapshotTTL time.Duration) *Service {
	if snapshotTTL <= 0 {
		snapshotTTL = 5 * time.Minute
	}
	return &Service{
		repo:        repo,
		cache:       cache,
		snapshotTTL: snapshotTTL,
	}
}

// OpenLoans returns a patron's open loans, served from the snapshot cache
// when possible. Snapshot entries carry only the fields the fee pipeline
// reads, so cached loans have no checkout date.
func (s *Service) OpenLoans(ctx context.Context, tenantID, patronID string) ([]*domain.Loan, error) {
	if tenantID == "" || patronID == "" {
		return nil, fmt.Errorf("tenantID and patronID are required")
	}

	if s.cache != nil {
		snap, err := s.cache.GetOpenLoans(ctx, tenantID, patronID)
		if err == nil && snap != nil {
			loans, err := s.fromSnapshot(snap)
			if err == nil {
				return loans, nil
			}
			// Corrupt snapshot, fall through to repository
			_ = s.cache.Delete(ctx, tenantID, "loans:"+patronID)
		}
	}

	loans, err := s.repo.GetOpenLoansByPatron(ctx, tenantID, patronID)
	if err != nil {
		return nil, fmt.Errorf("failed to get open loans: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.SetOpenLoans(ctx, tenantID, patronID, s.toSnapshot(patronID, loans), s.snapshotTTL)
	}

	return loans, nil
}

// Invalidate drops the cached snapshot for a patron.
// Called after checkout and return so the next read is fresh.
func (s *Service) Invalidate(ctx context.Context, tenantID, patronID string) {
	if s.cache == nil || tenantID == "" || patronID == "" {
		return
	}
	_ = s.cache.Delete(ctx, tenantID, "loans:"+patronID)
}

// CountAssessment bumps the per-patron assessment counter and returns
// the count within the window.
func (s *Service) CountAssessment(ctx context.Context, tenantID, patronID string, window time.Duration) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.IncrementCounter(ctx, tenantID, "assessments:"+patronID, window)
}

func (s *Service) toSnapshot(patronID string, loans []*domain.Loan) *domain.LoanSnapshot {
	snap := &domain.LoanSnapshot{
		PatronID: patronID,
		Loans:    make([]domain.SnapshotEntry, 0, len(loans)),
		TakenAt:  time.Now().UTC(),
	}
	for _, l := range loans {
		entry := domain.SnapshotEntry{
			LoanID:  l.ID,
			DueDate: l.DueDate.Format(dateLayout),
		}
		if l.Item != nil {
			entry.ItemID = l.Item.ID
			entry.Category = l.Item.Category
		}
		if l.Patron != nil {
			entry.PatronClass = l.Patron.Class
		}
		snap.Loans = append(snap.Loans, entry)
	}
	return snap
}

func (s *Service) fromSnapshot(snap *domain.LoanSnapshot) ([]*domain.Loan, error) {
	loans := make([]*domain.Loan, 0, len(snap.Loans))
	for _, entry := range snap.Loans {
		due, err := time.Parse(dateLayout, entry.DueDate)
		if err != nil {
			return nil, fmt.Errorf("invalid due date in snapshot: %w", err)
		}
		loans = append(loans, &domain.Loan{
			ID:      entry.LoanID,
			DueDate: due,
			Item: &domain.Item{
				ID:       entry.ItemID,
				Category: entry.Category,
			},
			Patron: &domain.Patron{
				ID:    snap.PatronID,
				Class: entry.PatronClass,
			},
		})
	}
	return loans, nil
}
