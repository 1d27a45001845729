package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/davidbz/kodama/internal/observability"
)

const (
	defaultPollAttempts = 30
	defaultPollInterval = 10 * time.Second
)

// GenerationService orchestrates generation requests: it validates against
// the model catalog, blocks callers who cannot afford the estimated charge
// before paying the provider, drives the submit-then-poll cycle and hands
// confirmed results to the recorder.
type GenerationService struct {
	catalog      ModelCatalog
	provider     Provider
	estimator    *CostEstimator
	pricing      *PricingEngine
	ledger       *CreditLedger
	recorder     *GenerationRecorder
	pollAttempts int
	pollInterval time.Duration
}

// NewGenerationService creates a generation service (DI constructor).
func NewGenerationService(
	catalog ModelCatalog,
	provider Provider,
	estimator *CostEstimator,
	pricing *PricingEngine,
	ledger *CreditLedger,
	recorder *GenerationRecorder,
) *GenerationService {
	return &GenerationService{
		catalog:      catalog,
		provider:     provider,
		estimator:    estimator,
		pricing:      pricing,
		ledger:       ledger,
		recorder:     recorder,
		pollAttempts: defaultPollAttempts,
		pollInterval: defaultPollInterval,
	}
}

// WithPolling overrides the poll attempt budget and interval.
func (g *GenerationService) WithPolling(attempts int, interval time.Duration) *GenerationService {
	if attempts > 0 {
		g.pollAttempts = attempts
	}
	if interval > 0 {
		g.pollInterval = interval
	}
	return g
}

// Quote returns the estimated cost, charge and credits for a request
// without running it.
func (g *GenerationService) Quote(req *GenerationRequest) (estimatedCost float64, charge Charge, credits int64) {
	estimatedCost = g.estimator.EstimateCost(req.Model, req.Type, req.Settings)
	charge = g.pricing.ComputeCharge(req.Model, estimatedCost)
	return estimatedCost, charge, g.pricing.Credits(charge)
}

// Generate runs one generation end to end. Credits are only deducted after
// a confirmed successful result, so the timeout and failure paths need no
// compensating refund.
func (g *GenerationService) Generate(ctx context.Context, accountID string, req *GenerationRequest) (*GenerationRecord, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}

	if err := g.catalog.Validate(req); err != nil {
		return nil, err
	}

	ctx = observability.WithModel(ctx, req.Model)
	logger := observability.FromContext(ctx)

	// Block before submitting: never pay the provider for work the user
	// cannot be charged for.
	_, _, credits := g.Quote(req)
	if credits > 0 {
		ok, err := g.ledger.HasSufficientCredits(ctx, accountID, credits)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: estimated charge is %d credits", ErrInsufficientCredits, credits)
		}
	}

	taskID, err := g.provider.Submit(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit failed: %w", err)
	}

	logger.Info("generation task submitted",
		observability.String("task_id", taskID),
		observability.String("provider", g.provider.Name()))

	status, err := g.poll(ctx, taskID)
	if err != nil {
		return nil, err
	}

	return g.recorder.RecordGeneration(ctx, accountID, req, status, taskID)
}

// poll drives the provider until the task completes, fails, or the attempt
// budget runs out.
func (g *GenerationService) poll(ctx context.Context, taskID string) (TaskStatus, error) {
	logger := observability.FromContext(ctx)

	for attempt := 1; attempt <= g.pollAttempts; attempt++ {
		status, err := g.provider.Poll(ctx, taskID)
		if err != nil {
			return TaskStatus{}, fmt.Errorf("poll failed: %w", err)
		}

		switch status.State {
		case TaskDone:
			return status, nil
		case TaskFailed:
			return TaskStatus{}, &ProviderError{
				Provider: g.provider.Name(),
				TaskID:   taskID,
				Message:  status.Message,
			}
		case TaskPending:
			logger.Debug("task still pending",
				observability.String("task_id", taskID),
				observability.Int("attempt", attempt))
		}

		if attempt == g.pollAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return TaskStatus{}, ctx.Err()
		case <-time.After(g.pollInterval):
		}
	}

	return TaskStatus{}, fmt.Errorf("%w after %d attempts", ErrProviderTimeout, g.pollAttempts)
}
