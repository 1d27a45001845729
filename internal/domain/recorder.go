package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidbz/kodama/internal/observability"
)

// GenerationRecorder ties a completed generation to cost observation,
// pricing and ledger deduction, and persists the audit record.
type GenerationRecorder struct {
	estimator *CostEstimator
	pricing   *PricingEngine
	ledger    *CreditLedger
	store     AccountStore
	publisher EventPublisher
}

// NewGenerationRecorder creates a recorder (DI constructor).
func NewGenerationRecorder(
	estimator *CostEstimator,
	pricing *PricingEngine,
	ledger *CreditLedger,
	store AccountStore,
	publisher EventPublisher,
) *GenerationRecorder {
	return &GenerationRecorder{
		estimator: estimator,
		pricing:   pricing,
		ledger:    ledger,
		store:     store,
		publisher: publisher,
	}
}

// RecordGeneration processes one completed generation: it captures the
// actual cost when the provider reported one (missing cost data is normal,
// not an error), feeds the observation back to the estimator, charges the
// account and persists the generation record.
//
// A deduction failing with ErrInsufficientCredits does not drop the
// record: it is persisted flagged unpaid so reconciliation can see the
// discrepancy.
func (r *GenerationRecorder) RecordGeneration(
	ctx context.Context,
	accountID string,
	req *GenerationRequest,
	status TaskStatus,
	taskID string,
) (*GenerationRecord, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	account, err := r.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}

	logger := observability.FromContext(ctx)

	actualCost := r.estimator.EstimateCost(req.Model, req.Type, req.Settings)
	costObserved := status.ActualCostUSD != nil
	if costObserved {
		actualCost = *status.ActualCostUSD
		r.estimator.RecordObservation(req.Model, req.Type, req.Settings, actualCost)
	}

	charge := r.pricing.ComputeCharge(req.Model, actualCost)
	credits := r.pricing.Credits(charge)

	recordID := uuid.NewString()
	description := fmt.Sprintf("%s generation - %s", req.Type, req.Model)

	unpaid := false
	if credits > 0 {
		_, deductErr := r.ledger.Deduct(ctx, accountID, credits, description, recordID)
		switch {
		case deductErr == nil:
		case errors.Is(deductErr, ErrInsufficientCredits):
			// Keep the record for audit, flagged so the discrepancy is
			// visible to later reconciliation.
			unpaid = true
			logger.Warn("generation completed but deduction failed",
				observability.String("account_id", accountID),
				observability.Int64("credits", credits))
		default:
			return nil, fmt.Errorf("failed to deduct credits: %w", deductErr)
		}
	}

	now := time.Now().UTC()
	record := GenerationRecord{
		ID:           recordID,
		AccountID:    accountID,
		Type:         req.Type,
		Model:        req.Model,
		Prompt:       req.Prompt,
		Settings:     req.Settings,
		ActualCost:   actualCost,
		CostObserved: costObserved,
		Charge:       charge,
		Credits:      credits,
		Unpaid:       unpaid,
		ResultURL:    status.ResultURL,
		TaskID:       taskID,
		CreatedAt:    now,
		ExpiresAt:    now.AddDate(0, 0, retentionDays(account.StoragePlan)),
	}

	if err := r.store.SaveGeneration(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save generation record: %w", err)
	}

	if r.publisher != nil {
		r.publisher.Publish(ctx, EventCostObserved, map[string]interface{}{
			"model":           req.Model,
			"actual_cost":     actualCost,
			"customer_charge": charge.BaseAmount.InexactFloat64(),
			"timestamp":       now,
		})
	}

	logger.Info("generation recorded",
		observability.String("record_id", record.ID),
		observability.String("model", req.Model),
		observability.Float64("actual_cost", actualCost),
		observability.Int64("credits", credits),
		observability.Bool("unpaid", unpaid))

	return &record, nil
}

// History returns an account's generation records newest-first.
func (r *GenerationRecorder) History(ctx context.Context, accountID string, limit int) ([]GenerationRecord, error) {
	return r.store.Generations(ctx, accountID, limit)
}

func retentionDays(plan StoragePlan) int {
	if plan.RetentionDays > 0 {
		return plan.RetentionDays
	}
	return FreePlan().RetentionDays
}
