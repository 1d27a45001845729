package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/store/memory"
)

type recorderFixture struct {
	store     *memory.AccountStore
	estimator *domain.CostEstimator
	pricing   *domain.PricingEngine
	ledger    *domain.CreditLedger
	publisher *capturingPublisher
	recorder  *domain.GenerationRecorder
}

func newRecorderFixture(t *testing.T, startingGrant int64) *recorderFixture {
	t.Helper()

	store := memory.NewAccountStore()
	estimator := domain.NewCostEstimator(newStubCatalog(), 10)
	publisher := &capturingPublisher{}
	pricing := newTestEngine(publisher)
	ledger := domain.NewCreditLedger(store, startingGrant)

	_, err := ledger.Open(context.Background(), "acc-1", "user@example.com", "User One")
	require.NoError(t, err)

	return &recorderFixture{
		store:     store,
		estimator: estimator,
		pricing:   pricing,
		ledger:    ledger,
		publisher: publisher,
		recorder:  domain.NewGenerationRecorder(estimator, pricing, ledger, store, publisher),
	}
}

func imageRequest() *domain.GenerationRequest {
	return &domain.GenerationRequest{
		Model:  "test-image",
		Type:   domain.TypeImage,
		Prompt: "a castle in the clouds",
	}
}

func TestRecordGeneration(t *testing.T) {
	ctx := context.Background()

	t.Run("should charge from reported actual cost", func(t *testing.T) {
		f := newRecorderFixture(t, 100)

		record, err := f.recorder.RecordGeneration(ctx, "acc-1", imageRequest(), domain.TaskStatus{
			State:         domain.TaskDone,
			ResultURL:     "https://cdn.example.com/a.jpg",
			ActualCostUSD: floatPtr(0.08),
		}, "task-1")
		require.NoError(t, err)

		// 0.08 doubled by auto markup, 0.16 * 36 -> 6 credits.
		require.Equal(t, int64(6), record.Credits)
		require.True(t, record.CostObserved)
		require.False(t, record.Unpaid)
		require.Equal(t, "https://cdn.example.com/a.jpg", record.ResultURL)

		balance, err := f.ledger.Balance(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, int64(94), balance)

		history, err := f.ledger.History(ctx, "acc-1", 1)
		require.NoError(t, err)
		require.Equal(t, record.ID, history[0].GenerationID)
		require.Equal(t, "image generation - test-image", history[0].Description)
	})

	t.Run("should fall back to the estimate when cost is missing", func(t *testing.T) {
		f := newRecorderFixture(t, 100)

		record, err := f.recorder.RecordGeneration(ctx, "acc-1", imageRequest(), domain.TaskStatus{
			State:     domain.TaskDone,
			ResultURL: "https://cdn.example.com/a.jpg",
		}, "task-1")
		require.NoError(t, err)

		require.False(t, record.CostObserved)
		require.InDelta(t, 0.08, record.ActualCost, 1e-9)
		require.Zero(t, f.estimator.SampleSize("test-image", domain.TypeImage, domain.Settings{}),
			"estimated costs must not feed the observation window")
	})

	t.Run("should feed observed cost back into the estimator", func(t *testing.T) {
		f := newRecorderFixture(t, 100)

		_, err := f.recorder.RecordGeneration(ctx, "acc-1", imageRequest(), domain.TaskStatus{
			State:         domain.TaskDone,
			ActualCostUSD: floatPtr(0.12),
		}, "task-1")
		require.NoError(t, err)

		require.Equal(t, 1, f.estimator.SampleSize("test-image", domain.TypeImage, domain.Settings{}))
		// default 0.08, mean 0.12, blend 0.10
		require.InDelta(t, 0.10, f.estimator.EstimateCost("test-image", domain.TypeImage, domain.Settings{}), 1e-9)
	})

	t.Run("should keep the record flagged unpaid when credits run out", func(t *testing.T) {
		f := newRecorderFixture(t, 2)

		record, err := f.recorder.RecordGeneration(ctx, "acc-1", imageRequest(), domain.TaskStatus{
			State:         domain.TaskDone,
			ActualCostUSD: floatPtr(0.08),
		}, "task-1")
		require.NoError(t, err)

		require.True(t, record.Unpaid)

		balance, err := f.ledger.Balance(ctx, "acc-1")
		require.NoError(t, err)
		require.Equal(t, int64(2), balance, "failed deduction must not touch the balance")

		saved, err := f.recorder.History(ctx, "acc-1", 10)
		require.NoError(t, err)
		require.Len(t, saved, 1)
		require.True(t, saved[0].Unpaid)
	})

	t.Run("should publish a cost observed event", func(t *testing.T) {
		f := newRecorderFixture(t, 100)

		_, err := f.recorder.RecordGeneration(ctx, "acc-1", imageRequest(), domain.TaskStatus{
			State:         domain.TaskDone,
			ActualCostUSD: floatPtr(0.08),
		}, "task-1")
		require.NoError(t, err)

		events := f.publisher.byType(domain.EventCostObserved)
		require.Len(t, events, 1)
		require.Equal(t, "test-image", events[0].Data["model"])
		require.InDelta(t, 0.08, events[0].Data["actual_cost"].(float64), 1e-9)
	})

	t.Run("should set expiry from the storage plan", func(t *testing.T) {
		f := newRecorderFixture(t, 100)

		record, err := f.recorder.RecordGeneration(ctx, "acc-1", imageRequest(), domain.TaskStatus{
			State: domain.TaskDone,
		}, "task-1")
		require.NoError(t, err)

		retention := record.ExpiresAt.Sub(record.CreatedAt)
		require.Equal(t, 7*24*time.Hour, retention)
	})

	t.Run("should fail for unknown accounts", func(t *testing.T) {
		f := newRecorderFixture(t, 100)

		_, err := f.recorder.RecordGeneration(ctx, "ghost", imageRequest(), domain.TaskStatus{
			State: domain.TaskDone,
		}, "task-1")
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestRetentionPurge(t *testing.T) {
	t.Run("should purge expired generations only", func(t *testing.T) {
		ctx := context.Background()
		f := newRecorderFixture(t, 100)

		record, err := f.recorder.RecordGeneration(ctx, "acc-1", imageRequest(), domain.TaskStatus{
			State: domain.TaskDone,
		}, "task-1")
		require.NoError(t, err)

		purged, err := f.store.PurgeExpired(ctx, time.Now())
		require.NoError(t, err)
		require.Zero(t, purged)

		purged, err = f.store.PurgeExpired(ctx, record.ExpiresAt.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, 1, purged)

		remaining, err := f.recorder.History(ctx, "acc-1", 10)
		require.NoError(t, err)
		require.Empty(t, remaining)
	})
}
