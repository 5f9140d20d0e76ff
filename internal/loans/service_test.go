package loans

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/openshelf/kestrel/internal/cache"
	"github.com/openshelf/kestrel/internal/domain"
	"github.com/openshelf/kestrel/internal/repository"
)

func newTestService(t *testing.T) (*Service, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-loans-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	return NewService(repo, c, time.Minute), repo
}

func checkout(t *testing.T, repo domain.Repository, tenantID, loanID, patronID string, day time.Time) {
	t.Helper()
	ctx := context.Background()

	item := &domain.Item{ID: "item-" + loanID, Title: "Go Programming", Category: domain.CategoryTextbook}
	patron := &domain.Patron{ID: patronID, Name: "Carol Faculty", Class: domain.ClassFaculty}

	if err := repo.SaveItem(ctx, tenantID, item); err != nil {
		t.Fatalf("SaveItem failed: %v", err)
	}
	if err := repo.SavePatron(ctx, tenantID, patron); err != nil {
		t.Fatalf("SavePatron failed: %v", err)
	}

	loan, err := domain.NewLoan(loanID, item, patron, day, 14)
	if err != nil {
		t.Fatalf("NewLoan failed: %v", err)
	}
	loan.TenantID = tenantID
	if err := repo.SaveLoan(ctx, tenantID, loan); err != nil {
		t.Fatalf("SaveLoan failed: %v", err)
	}
}

func TestOpenLoans(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	tenantID := "branch-001"
	day := time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC)

	checkout(t, repo, tenantID, "loan-001", "patron-001", day)
	checkout(t, repo, tenantID, "loan-002", "patron-001", day.AddDate(0, 0, 3))

	t.Run("ColdRead", func(t *testing.T) {
		loans, err := svc.OpenLoans(ctx, tenantID, "patron-001")
		if err != nil {
			t.Fatalf("OpenLoans failed: %v", err)
		}
		if len(loans) != 2 {
			t.Fatalf("expected 2 loans, got %d", len(loans))
		}
	})

	t.Run("CachedRead", func(t *testing.T) {
		// Second read comes from the snapshot; fee-relevant fields survive.
		loans, err := svc.OpenLoans(ctx, tenantID, "patron-001")
		if err != nil {
			t.Fatalf("OpenLoans failed: %v", err)
		}
		if len(loans) != 2 {
			t.Fatalf("expected 2 loans, got %d", len(loans))
		}
		for _, l := range loans {
			if l.Item == nil || l.Item.Category != domain.CategoryTextbook {
				t.Errorf("loan %s missing category", l.ID)
			}
			if l.Patron == nil || l.Patron.Class != domain.ClassFaculty {
				t.Errorf("loan %s missing patron class", l.ID)
			}
			if l.DueDate.IsZero() {
				t.Errorf("loan %s missing due date", l.ID)
			}
		}
	})

	t.Run("StaleUntilInvalidated", func(t *testing.T) {
		checkout(t, repo, tenantID, "loan-003", "patron-001", day.AddDate(0, 0, 5))

		// Cached snapshot still has 2 loans
		loans, err := svc.OpenLoans(ctx, tenantID, "patron-001")
		if err != nil {
			t.Fatalf("OpenLoans failed: %v", err)
		}
		if len(loans) != 2 {
			t.Fatalf("expected stale snapshot with 2 loans, got %d", len(loans))
		}

		svc.Invalidate(ctx, tenantID, "patron-001")

		loans, err = svc.OpenLoans(ctx, tenantID, "patron-001")
		if err != nil {
			t.Fatalf("OpenLoans failed: %v", err)
		}
		if len(loans) != 3 {
			t.Fatalf("expected 3 loans after invalidation, got %d", len(loans))
		}
	})

	t.Run("NoLoans", func(t *testing.T) {
		loans, err := svc.OpenLoans(ctx, tenantID, "patron-empty")
		if err != nil {
			t.Fatalf("OpenLoans failed: %v", err)
		}
		if len(loans) != 0 {
			t.Errorf("expected no loans, got %d", len(loans))
		}
	})

	t.Run("RequiresIDs", func(t *testing.T) {
		if _, err := svc.OpenLoans(ctx, "", "patron-001"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := svc.OpenLoans(ctx, tenantID, ""); err == nil {
			t.Error("expected error for empty patronID")
		}
	})
}

func TestCountAssessment(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tenantID := "branch-001"

	count1, err := svc.CountAssessment(ctx, tenantID, "patron-001", time.Minute)
	if err != nil {
		t.Fatalf("CountAssessment failed: %v", err)
	}
	if count1 != 1 {
		t.Errorf("expected count 1, got %d", count1)
	}

	count2, _ := svc.CountAssessment(ctx, tenantID, "patron-001", time.Minute)
	if count2 != 2 {
		t.Errorf("expected count 2, got %d", count2)
	}

	// Different patron gets its own counter
	other, _ := svc.CountAssessment(ctx, tenantID, "patron-002", time.Minute)
	if other != 1 {
		t.Errorf("expected count 1 for other patron, got %d", other)
	}
}
