package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/openshelf/kestrel/internal/domain"
	"github.com/openshelf/kestrel/internal/fees"
	"github.com/openshelf/kestrel/internal/loans"
	"github.com/openshelf/kestrel/internal/report"
	"github.com/openshelf/kestrel/internal/repository"
)

const dateLayout = "2006-01-02"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	engine  *fees.Engine
	loans   *loans.Service
	reports *report.Builder
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *fees.Engine, loanSvc *loans.Service, reports *report.Builder, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		engine:  engine,
		loans:   loanSvc,
		reports: reports,
		version: version,
	}
}

// ItemRequest is the request body for POST /items.
type ItemRequest struct {
	ID       string `json:"id,omitempty"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// PatronRequest is the request body for POST /patrons.
type PatronRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Class string `json:"class"`
}

// CheckoutRequest is the request body for POST /loans.
type CheckoutRequest struct {
	ID             string `json:"id,omitempty"`
	ItemID         string `json:"itemId"`
	PatronID       string `json:"patronId"`
	CheckoutDate   string `json:"checkoutDate,omitempty"`
	LoanPeriodDays int    `json:"loanPeriodDays,omitempty"`
}

// ReturnRequest is the request body for POST /loans/{id}/return.
type ReturnRequest struct {
	ReturnDate string `json:"returnDate,omitempty"`
}

// AssessRequest is the request body for POST /assess.
type AssessRequest struct {
	LoanID   string `json:"loanId"`
	Strategy string `json:"strategy,omitempty"`
	AsOf     string `json:"asOf,omitempty"`
}

// LoanEvent is the payload published on loan lifecycle topics.
type LoanEvent struct {
	LoanID   string `json:"loanId"`
	ItemID   string `json:"itemId,omitempty"`
	PatronID string `json:"patronId"`
	Date     string `json:"date"`
	TraceID  string `json:"traceId,omitempty"`
}

// CreateItem handles POST /items.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "title is required",
		})
		return
	}
	if req.Category == "" {
		req.Category = domain.CategoryRegular
	}

	item := &domain.Item{
		ID:       req.ID,
		Title:    req.Title,
		Category: req.Category,
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	if err := h.repo.SaveItem(ctx, tenantID, item); err != nil {
		slog.Error("failed to save item", "id", item.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save item",
		})
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

// GetItem handles GET /items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	itemID := chi.URLParam(r, "id")

	item, err := h.repo.GetItem(ctx, tenantID, itemID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "item not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, item)
}

// CreatePatron handles POST /patrons.
func (h *Handler) CreatePatron(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req PatronRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	if req.Class == "" {
		req.Class = domain.ClassRegular
	}

	patron := &domain.Patron{
		ID:    req.ID,
		Name:  req.Name,
		Class: req.Class,
	}
	if patron.ID == "" {
		patron.ID = uuid.New().String()
	}

	if err := h.repo.SavePatron(ctx, tenantID, patron); err != nil {
		slog.Error("failed to save patron", "id", patron.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save patron",
		})
		return
	}

	writeJSON(w, http.StatusCreated, patron)
}

// GetPatron handles GET /patrons/{id}.
func (h *Handler) GetPatron(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	patronID := chi.URLParam(r, "id")

	patron, err := h.repo.GetPatron(ctx, tenantID, patronID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "patron not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, patron)
}

// Checkout handles POST /loans.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ItemID == "" || req.PatronID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "itemId and patronId are required",
		})
		return
	}

	item, err := h.repo.GetItem(ctx, tenantID, req.ItemID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "item not found",
		})
		return
	}

	patron, err := h.repo.GetPatron(ctx, tenantID, req.PatronID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "patron not found",
		})
		return
	}

	checkoutDate, err := parseDate(req.CheckoutDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "checkoutDate must be formatted as 2006-01-02",
		})
		return
	}

	loanID := req.ID
	if loanID == "" {
		loanID = uuid.New().String()
	}

	loan, err := domain.NewLoan(loanID, item, patron, checkoutDate, req.LoanPeriodDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}
	loan.TenantID = tenantID

	if err := h.repo.SaveLoan(ctx, tenantID, loan); err != nil {
		slog.Error("failed to save loan", "id", loan.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save loan",
		})
		return
	}

	h.loans.Invalidate(ctx, tenantID, patron.ID)
	h.publish(ctx, tenantID, domain.TopicLoanCheckout, &LoanEvent{
		LoanID:   loan.ID,
		ItemID:   item.ID,
		PatronID: patron.ID,
		Date:     loan.CheckoutDate.Format(dateLayout),
		TraceID:  traceID,
	})

	writeJSON(w, http.StatusCreated, loan)
}

// GetLoan handles GET /loans/{id}.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	loanID := chi.URLParam(r, "id")

	loan, err := h.repo.GetLoan(ctx, tenantID, loanID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "loan not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

// ReturnLoan handles POST /loans/{id}/return.
func (h *Handler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)
	loanID := chi.URLParam(r, "id")

	var req ReturnRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}

	returnDate, err := parseDate(req.ReturnDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "returnDate must be formatted as 2006-01-02",
		})
		return
	}

	if err := h.repo.MarkReturned(ctx, tenantID, loanID, returnDate); err != nil {
		switch {
		case errors.Is(err, domain.ErrAlreadyReturned):
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "loan already returned",
			})
		case errors.Is(err, repository.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "loan not found",
			})
		default:
			slog.Error("failed to mark loan returned", "id", loanID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to return loan",
			})
		}
		return
	}

	loan, err := h.repo.GetLoan(ctx, tenantID, loanID)
	if err != nil {
		slog.Error("failed to reload loan after return", "id", loanID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load loan",
		})
		return
	}

	h.loans.Invalidate(ctx, tenantID, loan.Patron.ID)
	h.publish(ctx, tenantID, domain.TopicLoanReturned, &LoanEvent{
		LoanID:   loan.ID,
		ItemID:   loan.Item.ID,
		PatronID: loan.Patron.ID,
		Date:     domain.DateOf(returnDate).Format(dateLayout),
		TraceID:  traceID,
	})

	writeJSON(w, http.StatusOK, loan)
}

// Assess handles POST /assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.LoanID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "loanId is required",
		})
		return
	}

	asOf, err := parseDate(req.AsOf)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "asOf must be formatted as 2006-01-02",
		})
		return
	}

	loan, err := h.repo.GetLoan(ctx, tenantID, req.LoanID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "loan not found",
		})
		return
	}

	strategy := fees.ParseStrategy(req.Strategy)

	computeStart := time.Now()
	amount := h.engine.ComputeFee(loan, strategy, asOf)
	breakdown := h.engine.Breakdown(loan, asOf)
	computeMs := time.Since(computeStart).Milliseconds()

	assessment := &domain.Assessment{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		LoanID:      loan.ID,
		PatronID:    loan.Patron.ID,
		Strategy:    string(strategy),
		Amount:      amount,
		AsOf:        loan.EvaluationDate(asOf),
		EvaluatedAt: time.Now().UTC(),
		Breakdown:   breakdown,
		Metadata: domain.AssessmentMetadata{
			TraceID:       traceID,
			ComputeMs:     computeMs,
			TotalMs:       time.Since(start).Milliseconds(),
			EngineVersion: h.version,
		},
	}

	if err := h.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
		slog.Error("failed to save assessment", "id", assessment.ID, "error", err)
	}

	if _, err := h.loans.CountAssessment(ctx, tenantID, loan.Patron.ID, time.Hour); err != nil {
		slog.Warn("failed to bump assessment counter", "patron_id", loan.Patron.ID, "error", err)
	}

	h.publish(ctx, tenantID, domain.TopicAssessmentCreated, assessment)
	if amount >= h.engine.Table().FeeCap {
		h.publish(ctx, tenantID, domain.TopicAssessmentAlert, assessment)
	}

	writeJSON(w, http.StatusOK, assessment.ToResponse())
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	assessmentID := chi.URLParam(r, "id")

	assessment, err := h.repo.GetAssessment(ctx, tenantID, assessmentID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "assessment not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, assessment)
}

// PatronTotalResponse is the response for GET /patrons/{id}/total.
type PatronTotalResponse struct {
	PatronID     string  `json:"patronId"`
	Strategy     string  `json:"strategy"`
	AsOf         string  `json:"asOf"`
	OpenLoans    int     `json:"openLoans"`
	OverdueLoans int     `json:"overdueLoans"`
	Total        float64 `json:"total"`
}

// PatronTotal handles GET /patrons/{id}/total.
// The bulk discount is applied to the summed per-loan fees.
func (h *Handler) PatronTotal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	patronID := chi.URLParam(r, "id")

	asOf, err := parseDate(r.URL.Query().Get("asOf"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "asOf must be formatted as 2006-01-02",
		})
		return
	}
	strategy := fees.ParseStrategy(r.URL.Query().Get("strategy"))

	openLoans, err := h.loans.OpenLoans(ctx, tenantID, patronID)
	if err != nil {
		slog.Error("failed to get open loans", "patron_id", patronID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get open loans",
		})
		return
	}

	overdue := 0
	for _, l := range openLoans {
		if l.OverdueAt(asOf) {
			overdue++
		}
	}

	resp := PatronTotalResponse{
		PatronID:     patronID,
		Strategy:     string(strategy),
		AsOf:         domain.DateOf(asOf).Format(dateLayout),
		OpenLoans:    len(openLoans),
		OverdueLoans: overdue,
		Total:        h.engine.PatronTotal(openLoans, strategy, asOf),
	}

	writeJSON(w, http.StatusOK, resp)
}

// OverdueReport handles GET /reports/overdue.
func (h *Handler) OverdueReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.buildReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// OverdueReportCSV handles GET /reports/overdue.csv.
func (h *Handler) OverdueReportCSV(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.buildReport(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="overdue-%s.csv"`, rep.AsOf))
	if err := report.WriteCSV(w, rep); err != nil {
		slog.Error("failed to write CSV report", "error", err)
	}
}

func (h *Handler) buildReport(w http.ResponseWriter, r *http.Request) (*report.Report, bool) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	asOf, err := parseDate(r.URL.Query().Get("asOf"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "asOf must be formatted as 2006-01-02",
		})
		return nil, false
	}

	rep, err := h.reports.Build(ctx, tenantID, asOf)
	if err != nil {
		slog.Error("failed to build overdue report", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to build report",
		})
		return nil, false
	}

	return rep, true
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) publish(ctx context.Context, tenantID, topic string, payload any) {
	if h.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event", "topic", topic, "error", err)
		return
	}
	if err := h.bus.Publish(ctx, tenantID, topic, data); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// parseDate parses a 2006-01-02 date, defaulting to today when empty.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse(dateLayout, s)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
