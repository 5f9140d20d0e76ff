// Package worker provides async assessment of returned loans.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/openshelf/kestrel/internal/domain"
	"github.com/openshelf/kestrel/internal/fees"
)

// Worker consumes loan-returned events from the EventBus and records a
// final fee assessment for each returned loan.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	engine  *fees.Engine
	version string

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, engine *fees.Engine, version string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		engine:  engine,
		version: version,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing returned loans for the given tenants.
func (w *Worker) Start(cfg Config) error {
	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startTenantWorker subscribes one tenant to the loan-returned topic.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicLoanReturned, func(ctx context.Context, msg *domain.Message) error {
		return w.processReturn(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicLoanReturned,
	)

	return nil
}

// ReturnMessage is the payload published when a loan is returned.
type ReturnMessage struct {
	LoanID   string `json:"loanId"`
	ItemID   string `json:"itemId,omitempty"`
	PatronID string `json:"patronId"`
	Date     string `json:"date"`
	TraceID  string `json:"traceId,omitempty"`
}

// processReturn computes and records the final fee for a returned loan.
func (w *Worker) processReturn(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var ret ReturnMessage
	if err := json.Unmarshal(msg.Payload, &ret); err != nil {
		slog.Error("failed to parse return message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	traceID := ret.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing returned loan",
		"loan_id", ret.LoanID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	loan, err := w.repo.GetLoan(ctx, tenantID, ret.LoanID)
	if err != nil {
		slog.Error("failed to load returned loan",
			"loan_id", ret.LoanID,
			"error", err,
		)
		return err
	}

	// The return date is recorded on the loan, so any asOf evaluates at it.
	asOf := loan.EvaluationDate(time.Now().UTC())

	computeStart := time.Now()
	amount := w.engine.ComputeFee(loan, fees.StrategyStandard, asOf)
	breakdown := w.engine.Breakdown(loan, asOf)
	computeMs := time.Since(computeStart).Milliseconds()

	assessment := &domain.Assessment{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		LoanID:      loan.ID,
		PatronID:    loan.Patron.ID,
		Strategy:    string(fees.StrategyStandard),
		Amount:      amount,
		AsOf:        asOf,
		EvaluatedAt: time.Now().UTC(),
		Breakdown:   breakdown,
		Metadata: domain.AssessmentMetadata{
			TraceID:       traceID,
			ComputeMs:     computeMs,
			TotalMs:       time.Since(start).Milliseconds(),
			EngineVersion: w.version,
		},
	}

	if w.repo != nil {
		if err := w.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("failed to save assessment",
				"loan_id", loan.ID,
				"error", err,
			)
		}
	}

	payload, _ := json.Marshal(assessment)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentCreated, payload); err != nil {
		slog.Error("failed to publish assessment",
			"loan_id", loan.ID,
			"error", err,
		)
	}

	// A fee pinned at the cap is worth flagging for review.
	if amount >= w.engine.Table().FeeCap {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAssessmentAlert, payload); err != nil {
			slog.Error("failed to publish alert",
				"loan_id", loan.ID,
				"error", err,
			)
		}
	}

	slog.Info("returned loan assessed",
		"loan_id", loan.ID,
		"tenant_id", tenantID,
		"amount", amount,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
