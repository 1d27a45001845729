// Package sample provides a deterministic in-process provider for local
// development and tests. Tasks complete after a fixed number of polls and
// report a synthetic result URL with a cost derived from the catalog.
package sample

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/davidbz/kodama/internal/domain"
)

const defaultPollsUntilDone = 2

// Provider implements domain.Provider without any external service.
type Provider struct {
	catalog        domain.ModelCatalog
	pollsUntilDone int

	mu    sync.Mutex
	tasks map[string]*taskState
}

type taskState struct {
	request domain.GenerationRequest
	polls   int
}

// NewProvider creates a sample provider backed by the given catalog.
func NewProvider(catalog domain.ModelCatalog) *Provider {
	return &Provider{
		catalog:        catalog,
		pollsUntilDone: defaultPollsUntilDone,
		tasks:          make(map[string]*taskState),
	}
}

// WithPollsUntilDone overrides how many polls a task stays pending.
func (p *Provider) WithPollsUntilDone(n int) *Provider {
	if n < 1 {
		n = 1
	}
	p.pollsUntilDone = n
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "sample"
}

// Submit registers a task and returns its id.
func (p *Provider) Submit(ctx context.Context, req *domain.GenerationRequest) (string, error) {
	if err := p.catalog.Validate(req); err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	p.mu.Lock()
	p.tasks[taskID] = &taskState{request: *req}
	p.mu.Unlock()
	return taskID, nil
}

// Poll advances the task and reports its state.
func (p *Provider) Poll(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.tasks[taskID]
	if !ok {
		return domain.TaskStatus{}, &domain.ProviderError{
			Provider: p.Name(),
			TaskID:   taskID,
			Message:  "unknown task",
		}
	}

	state.polls++
	if state.polls < p.pollsUntilDone {
		return domain.TaskStatus{State: domain.TaskPending}, nil
	}

	delete(p.tasks, taskID)

	status := domain.TaskStatus{
		State:     domain.TaskDone,
		ResultURL: fmt.Sprintf("sample://results/%s", taskID),
	}
	if cost, ok := p.catalog.DefaultCost(state.request.Model, state.request.Type, state.request.Settings); ok {
		status.ActualCostUSD = &cost
	}
	return status, nil
}
