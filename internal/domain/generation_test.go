package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/store/memory"
)

type generationFixture struct {
	provider *scriptedProvider
	ledger   *domain.CreditLedger
	service  *domain.GenerationService
}

func newGenerationFixture(t *testing.T, startingGrant int64, provider *scriptedProvider) *generationFixture {
	t.Helper()

	catalog := newStubCatalog()
	store := memory.NewAccountStore()
	estimator := domain.NewCostEstimator(catalog, 10)
	pricing := newTestEngine(nil)
	ledger := domain.NewCreditLedger(store, startingGrant)
	recorder := domain.NewGenerationRecorder(estimator, pricing, ledger, store, nil)

	_, err := ledger.Open(context.Background(), "acc-1", "user@example.com", "User One")
	require.NoError(t, err)

	service := domain.NewGenerationService(catalog, provider, estimator, pricing, ledger, recorder).
		WithPolling(3, time.Millisecond)

	return &generationFixture{
		provider: provider,
		ledger:   ledger,
		service:  service,
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("should complete and charge on success", func(t *testing.T) {
		f := newGenerationFixture(t, 100, &scriptedProvider{
			statuses: []domain.TaskStatus{
				{State: domain.TaskPending},
				{State: domain.TaskDone, ResultURL: "https://cdn.example.com/a.jpg", ActualCostUSD: floatPtr(0.08)},
			},
		})

		record, err := f.service.Generate(ctx, "acc-1", imageRequest())
		require.NoError(t, err)
		require.Equal(t, "https://cdn.example.com/a.jpg", record.ResultURL)
		require.Equal(t, "task-1", record.TaskID)
		require.False(t, record.Unpaid)

		balance, err := f.ledger.Balance(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, int64(94), balance)
	})

	t.Run("should block before submit when credits are short", func(t *testing.T) {
		provider := &scriptedProvider{}
		f := newGenerationFixture(t, 2, provider)

		_, err := f.service.Generate(ctx, "acc-1", imageRequest())
		require.ErrorIs(t, err, domain.ErrInsufficientCredits)
		require.Zero(t, provider.submits, "provider must not be paid for unchargeable work")
	})

	t.Run("should time out when the poll budget runs out", func(t *testing.T) {
		provider := &scriptedProvider{
			statuses: []domain.TaskStatus{{State: domain.TaskPending}},
		}
		f := newGenerationFixture(t, 100, provider)

		_, err := f.service.Generate(ctx, "acc-1", imageRequest())
		require.ErrorIs(t, err, domain.ErrProviderTimeout)
		require.Equal(t, 3, provider.polls)

		balance, err := f.ledger.Balance(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, int64(100), balance, "timeout must not deduct credits")
	})

	t.Run("should surface provider failures without charging", func(t *testing.T) {
		f := newGenerationFixture(t, 100, &scriptedProvider{
			statuses: []domain.TaskStatus{
				{State: domain.TaskFailed, Message: "content policy violation"},
			},
		})

		_, err := f.service.Generate(ctx, "acc-1", imageRequest())

		var provErr *domain.ProviderError
		require.ErrorAs(t, err, &provErr)
		require.Equal(t, "content policy violation", provErr.Message)

		balance, err := f.ledger.Balance(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, int64(100), balance)
	})

	t.Run("should reject invalid requests before submitting", func(t *testing.T) {
		provider := &scriptedProvider{}
		f := newGenerationFixture(t, 100, provider)

		_, err := f.service.Generate(ctx, "acc-1", nil)
		require.Error(t, err)
		_, err = f.service.Generate(ctx, "acc-1", &domain.GenerationRequest{Type: domain.TypeImage, Prompt: "x"})
		require.Error(t, err)
		require.Zero(t, provider.submits)
	})

	t.Run("should stop polling when the context is cancelled", func(t *testing.T) {
		provider := &scriptedProvider{
			statuses: []domain.TaskStatus{{State: domain.TaskPending}},
		}
		f := newGenerationFixture(t, 100, provider)

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.service.Generate(cancelled, "acc-1", imageRequest())
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestQuote(t *testing.T) {
	t.Run("should price a request without running it", func(t *testing.T) {
		f := newGenerationFixture(t, 100, &scriptedProvider{})

		cost, charge, credits := f.service.Quote(imageRequest())
		require.InDelta(t, 0.08, cost, 1e-9)
		require.Equal(t, "0.16", charge.BaseAmount.String())
		require.Equal(t, int64(6), credits)
	})
}
