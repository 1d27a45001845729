// Package runware adapts the Runware task API to the domain Provider
// interface. Image inference often completes within the submit call, so
// the adapter caches early results and serves them from the first poll.
package runware

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/davidbz/kodama/internal/domain"
	"github.com/davidbz/kodama/internal/observability"
	"github.com/davidbz/kodama/internal/provider/registry"
)

const providerName = "runware"

// Provider implements the domain.Provider interface for Runware.
type Provider struct {
	client  *Client
	catalog *registry.Registry

	mu    sync.Mutex
	early map[string]domain.TaskStatus // results returned by Submit itself
}

// NewProvider creates a new Runware provider.
func NewProvider(config Config, catalog *registry.Registry) *Provider {
	return &Provider{
		client:  NewClient(config),
		catalog: catalog,
		early:   make(map[string]domain.TaskStatus),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Submit sends a generation task and returns its task id.
func (p *Provider) Submit(ctx context.Context, req *domain.GenerationRequest) (string, error) {
	if req == nil {
		return "", errors.New("request cannot be nil")
	}

	spec, err := p.catalog.Get(req.Model)
	if err != nil {
		return "", err
	}

	taskUUID := uuid.NewString()
	t, err := p.buildTask(taskUUID, spec, req)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Run(ctx, []task{t})
	if err != nil {
		return "", err
	}
	if len(resp.Errors) > 0 {
		return "", &domain.ProviderError{
			Provider: providerName,
			TaskID:   taskUUID,
			Message:  resp.Errors[0].Error,
		}
	}

	// Image tasks usually return their result synchronously; keep it so
	// the first poll resolves without another API round trip.
	for _, item := range resp.Data {
		if status, ok := statusFromResult(item); ok {
			p.mu.Lock()
			p.early[taskUUID] = status
			p.mu.Unlock()
			break
		}
	}

	observability.FromContext(ctx).Debug("runware task submitted",
		observability.String("task_id", taskUUID),
		observability.String("model", spec.ID))

	return taskUUID, nil
}

// Poll reports the state of a submitted task.
func (p *Provider) Poll(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	p.mu.Lock()
	if status, ok := p.early[taskID]; ok {
		delete(p.early, taskID)
		p.mu.Unlock()
		return status, nil
	}
	p.mu.Unlock()

	resp, err := p.client.Run(ctx, []task{{
		TaskType: "getResponse",
		TaskUUID: taskID,
	}})
	if err != nil {
		return domain.TaskStatus{}, err
	}

	for _, item := range resp.Errors {
		if item.TaskUUID == "" || item.TaskUUID == taskID {
			return domain.TaskStatus{State: domain.TaskFailed, Message: item.Error}, nil
		}
	}

	for _, item := range resp.Data {
		if item.TaskUUID != taskID && item.TaskUUID != "" {
			continue
		}
		if status, ok := statusFromResult(item); ok {
			return status, nil
		}
	}

	return domain.TaskStatus{State: domain.TaskPending}, nil
}

func (p *Provider) buildTask(taskUUID string, spec registry.ModelSpec, req *domain.GenerationRequest) (task, error) {
	set := req.Settings

	if spec.Type == domain.TypeVideo {
		duration := set.DurationSeconds
		if duration <= 0 && len(spec.Durations) > 0 {
			duration = spec.Durations[0]
		}
		return task{
			TaskType:       "videoInference",
			TaskUUID:       taskUUID,
			PositivePrompt: req.Prompt,
			Model:          spec.ID,
			Duration:       duration,
			OutputType:     "URL",
			IncludeCost:    true,
		}, nil
	}

	dims, err := p.catalog.OutputDimensions(req.Model, set.AspectRatio, set.Quality)
	if err != nil {
		return task{}, fmt.Errorf("failed to resolve dimensions: %w", err)
	}

	count := set.SequentialImages
	if count < 1 {
		count = 1
	}

	refs := make([]referenceImage, 0, len(set.ReferenceImages))
	for _, ref := range set.ReferenceImages {
		refs = append(refs, referenceImage{UUID: ref})
	}

	return task{
		TaskType:        "imageInference",
		TaskUUID:        taskUUID,
		PositivePrompt:  req.Prompt,
		Model:           spec.ID,
		Width:           dims.Width,
		Height:          dims.Height,
		NumberResults:   count,
		OutputType:      "URL",
		OutputFormat:    "JPG",
		IncludeCost:     true,
		ReferenceImages: refs,
	}, nil
}

// statusFromResult maps a response item to a terminal task status; ok is
// false while the task has produced no result yet.
func statusFromResult(item taskResult) (domain.TaskStatus, bool) {
	url := item.ImageURL
	if url == "" {
		url = item.VideoURL
	}
	if url == "" {
		return domain.TaskStatus{}, false
	}

	return domain.TaskStatus{
		State:         domain.TaskDone,
		ResultURL:     url,
		ActualCostUSD: item.Cost,
	}, true
}
