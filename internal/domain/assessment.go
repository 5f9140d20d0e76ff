package domain

import (
	"time"
)

// Assessment is the persisted result of running the fee pipeline for one
// loan under one strategy.
type Assessment struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	LoanID   string `json:"loanId"`
	PatronID string `json:"patronId"`

	// Strategy that produced Amount.
	Strategy string `json:"strategy"`

	// Amount is the rounded, capped fee.
	Amount float64 `json:"amount"`

	// AsOf is the evaluation date the fee was computed against.
	AsOf time.Time `json:"asOf"`

	EvaluatedAt time.Time `json:"evaluatedAt"`

	// Breakdown holds the fee under every strategy, for reports.
	Breakdown map[string]float64 `json:"breakdown,omitempty"`

	// Processing metadata
	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID       string `json:"traceId"`
	ComputeMs     int64  `json:"computeMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// AssessmentResponse is the API response for a fee assessment.
type AssessmentResponse struct {
	AssessmentID string             `json:"assessmentId"`
	LoanID       string             `json:"loanId"`
	PatronID     string             `json:"patronId"`
	Strategy     string             `json:"strategy"`
	Amount       float64            `json:"amount"`
	AsOf         string             `json:"asOf"`
	Breakdown    map[string]float64 `json:"breakdown,omitempty"`
	Metadata     AssessmentMetadata `json:"metadata"`
}

// ToResponse converts an Assessment to an API response.
func (a *Assessment) ToResponse() *AssessmentResponse {
	return &AssessmentResponse{
		AssessmentID: a.ID,
		LoanID:       a.LoanID,
		PatronID:     a.PatronID,
		Strategy:     a.Strategy,
		Amount:       a.Amount,
		AsOf:         a.AsOf.Format("2006-01-02"),
		Breakdown:    a.Breakdown,
		Metadata:     a.Metadata,
	}
}
