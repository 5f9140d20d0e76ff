package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/openshelf/kestrel/internal/bus"
	"github.com/openshelf/kestrel/internal/cache"
	"github.com/openshelf/kestrel/internal/domain"
	"github.com/openshelf/kestrel/internal/fees"
	"github.com/openshelf/kestrel/internal/loans"
	"github.com/openshelf/kestrel/internal/report"
	"github.com/openshelf/kestrel/internal/repository"
)

// createTestServer wires a server against a temp SQLite database.
func createTestServer(t *testing.T) *Server {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-api-*.db")
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
	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	engine := fees.NewEngine(domain.DefaultRateTable())
	loanSvc := loans.NewService(repo, c, time.Minute)
	reports := report.NewBuilder(repo, engine)

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	return NewServer(cfg, repo, c, eventBus, engine, loanSvc, reports, "test-v1")
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "branch-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestLoanLifecycle(t *testing.T) {
	server := createTestServer(t)

	t.Run("CreateItem", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/items", ItemRequest{
			ID:       "item-001",
			Title:    "Intro to Algorithms",
			Category: domain.CategoryTextbook,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreatePatron", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/patrons", PatronRequest{
			ID:    "patron-001",
			Name:  "Dana Reader",
			Class: domain.ClassRegular,
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Checkout", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/loans", CheckoutRequest{
			ID:           "loan-001",
			ItemID:       "item-001",
			PatronID:     "patron-001",
			CheckoutDate: "2025-09-01",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var loan domain.Loan
		if err := json.Unmarshal(rr.Body.Bytes(), &loan); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if loan.DueDate.Format("2006-01-02") != "2025-09-15" {
			t.Errorf("expected due date 2025-09-15, got %s", loan.DueDate.Format("2006-01-02"))
		}
	})

	t.Run("CheckoutUnknownItem", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/loans", CheckoutRequest{
			ItemID:   "item-missing",
			PatronID: "patron-001",
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("Assess", func(t *testing.T) {
		// Due Mon Sep 15, assessed Mon Sep 22: 7 days late, 5 chargeable,
		// textbook rate 1.25, no class discount.
		rr := doJSON(t, server, http.MethodPost, "/assess", AssessRequest{
			LoanID:   "loan-001",
			Strategy: "standard",
			AsOf:     "2025-09-22",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.AssessmentResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.Amount != 6.25 {
			t.Errorf("expected amount 6.25, got %.2f", resp.Amount)
		}
		if resp.Strategy != "standard" {
			t.Errorf("expected strategy standard, got %s", resp.Strategy)
		}
		if resp.Breakdown["weekend-exclusive"] != 3.75 {
			t.Errorf("expected weekend-exclusive 3.75, got %.2f", resp.Breakdown["weekend-exclusive"])
		}
		if resp.Metadata.EngineVersion != "test-v1" {
			t.Errorf("expected engine version test-v1, got %s", resp.Metadata.EngineVersion)
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}

		// Round-trip via GET /assessments/{id}
		get := doJSON(t, server, http.MethodGet, "/assessments/"+resp.AssessmentID, nil)
		if get.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", get.Code)
		}
	})

	t.Run("AssessUnknownStrategy", func(t *testing.T) {
		// Unknown strategies fall back to standard.
		rr := doJSON(t, server, http.MethodPost, "/assess", AssessRequest{
			LoanID:   "loan-001",
			Strategy: "lunar",
			AsOf:     "2025-09-22",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.AssessmentResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Strategy != "standard" {
			t.Errorf("expected fallback to standard, got %s", resp.Strategy)
		}
		if resp.Amount != 6.25 {
			t.Errorf("expected amount 6.25, got %.2f", resp.Amount)
		}
	})

	t.Run("AssessUnknownLoan", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/assess", AssessRequest{
			LoanID: "loan-missing",
		})
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("PatronTotal", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/patrons/patron-001/total?strategy=standard&asOf=2025-09-22", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp PatronTotalResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.OpenLoans != 1 || resp.OverdueLoans != 1 {
			t.Errorf("expected 1 open/1 overdue, got %d/%d", resp.OpenLoans, resp.OverdueLoans)
		}
		// Single overdue loan: no bulk discount applies.
		if resp.Total != 6.25 {
			t.Errorf("expected total 6.25, got %.2f", resp.Total)
		}
	})

	t.Run("OverdueReport", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/reports/overdue?asOf=2025-09-22", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var rep report.Report
		if err := json.Unmarshal(rr.Body.Bytes(), &rep); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if rep.LoanCount != 1 {
			t.Errorf("expected 1 overdue loan, got %d", rep.LoanCount)
		}
		if rep.Totals["standard"] != 6.25 {
			t.Errorf("expected standard total 6.25, got %.2f", rep.Totals["standard"])
		}
	})

	t.Run("OverdueReportCSV", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/reports/overdue.csv?asOf=2025-09-22", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if rr.Header().Get("Content-Type") != "text/csv" {
			t.Errorf("expected text/csv, got %s", rr.Header().Get("Content-Type"))
		}
		if !bytes.Contains(rr.Body.Bytes(), []byte("loan-001")) {
			t.Error("expected loan-001 in CSV output")
		}
	})

	t.Run("ReturnLoan", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/loans/loan-001/return", ReturnRequest{
			ReturnDate: "2025-09-22",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var loan domain.Loan
		if err := json.Unmarshal(rr.Body.Bytes(), &loan); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if loan.ReturnDate == nil {
			t.Error("expected return date to be set")
		}
	})

	t.Run("ReturnTwice", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/loans/loan-001/return", ReturnRequest{
			ReturnDate: "2025-09-23",
		})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("ReturnUnknownLoan", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/loans/loan-missing/return", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("AssessAfterReturnPinsDate", func(t *testing.T) {
		// Returned Sep 22. A later asOf must evaluate at the return date.
		rr := doJSON(t, server, http.MethodPost, "/assess", AssessRequest{
			LoanID:   "loan-001",
			Strategy: "standard",
			AsOf:     "2025-12-01",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.AssessmentResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Amount != 6.25 {
			t.Errorf("expected amount pinned at 6.25, got %.2f", resp.Amount)
		}
		if resp.AsOf != "2025-09-22" {
			t.Errorf("expected asOf pinned to return date, got %s", resp.AsOf)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/assess", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		// No X-Tenant-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/assess", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "branch-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/patrons/patron-001", nil)

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
	})
}

func TestBulkDiscountOverAPI(t *testing.T) {
	server := createTestServer(t)

	doJSON(t, server, http.MethodPost, "/patrons", PatronRequest{
		ID:    "patron-bulk",
		Name:  "Evan Hoarder",
		Class: domain.ClassRegular,
	})

	// Three overdue regular loans: base fee per loan is 10 days late,
	// 8 chargeable x 0.50 = 4.00; three loans reach the 0.90 bulk tier.
	for _, id := range []string{"a", "b", "c"} {
		doJSON(t, server, http.MethodPost, "/items", ItemRequest{
			ID:       "item-" + id,
			Title:    "Book " + id,
			Category: domain.CategoryRegular,
		})
		rr := doJSON(t, server, http.MethodPost, "/loans", CheckoutRequest{
			ID:           "loan-" + id,
			ItemID:       "item-" + id,
			PatronID:     "patron-bulk",
			CheckoutDate: "2025-09-01",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("checkout failed: %d: %s", rr.Code, rr.Body.String())
		}
	}

	rr := doJSON(t, server, http.MethodGet, "/patrons/patron-bulk/total?strategy=standard&asOf=2025-09-25", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp PatronTotalResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.OverdueLoans != 3 {
		t.Fatalf("expected 3 overdue loans, got %d", resp.OverdueLoans)
	}
	// 3 x 4.00 = 12.00, x 0.90 = 10.80
	if resp.Total != 10.80 {
		t.Errorf("expected total 10.80, got %.2f", resp.Total)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(t)

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-branch-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-branch-123" {
			t.Errorf("expected tenant ID 'my-branch-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
