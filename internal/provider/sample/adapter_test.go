package sample_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/provider/registry"
	"github.com/davidbz/kodama/internal/provider/sample"
)

func TestSubmitAndPoll(t *testing.T) {
	provider := sample.NewProvider(registry.Builtin()).WithPollsUntilDone(2)

	taskID, err := provider.Submit(context.Background(), &domain.GenerationRequest{
		Type:   domain.TypeImage,
		Model:  "Nanobanana",
		Prompt: "a quiet garden",
	})
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	status, err := provider.Poll(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskPending, status.State)

	status, err = provider.Poll(context.Background(), taskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskDone, status.State)
	require.Contains(t, status.ResultURL, taskID)
	require.NotNil(t, status.ActualCostUSD)
	require.InDelta(t, 0.05, *status.ActualCostUSD, 1e-9)
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	provider := sample.NewProvider(registry.Builtin())

	_, err := provider.Submit(context.Background(), &domain.GenerationRequest{
		Type:  domain.TypeImage,
		Model: "Nanobanana",
	})
	require.Error(t, err)
}

func TestPollUnknownTask(t *testing.T) {
	provider := sample.NewProvider(registry.Builtin())

	_, err := provider.Poll(context.Background(), "missing")
	var provErr *domain.ProviderError
	require.ErrorAs(t, err, &provErr)
	require.Equal(t, "sample", provErr.Provider)
}
