package domain_test

import (
	"context"
	"sort"
	"sync"

	"github.com/davidbz/kodama/internal/domain"
)

// stubCatalog is a minimal ModelCatalog for testing. Costs are keyed by
// model name; the usual settings multipliers are applied on lookup.
type stubCatalog struct {
	costs       map[string]float64
	types       map[string]domain.GenerationType
	validateErr error
}

func newStubCatalog() *stubCatalog {
	return &stubCatalog{
		costs: map[string]float64{
			"test-image": 0.08,
			"test-video": 0.10, // per second
		},
		types: map[string]domain.GenerationType{
			"test-image": domain.TypeImage,
			"test-video": domain.TypeVideo,
		},
	}
}

func (c *stubCatalog) DefaultCost(model string, typ domain.GenerationType, settings domain.Settings) (float64, bool) {
	cost, ok := c.costs[model]
	if !ok || c.types[model] != typ {
		return 0, false
	}

	if typ == domain.TypeVideo {
		seconds := settings.DurationSeconds
		if seconds <= 0 {
			seconds = 5
		}
		return cost * float64(seconds), true
	}

	count := settings.SequentialImages
	if count < 1 {
		count = 1
	}
	return cost * float64(count), true
}

func (c *stubCatalog) Validate(req *domain.GenerationRequest) error {
	return c.validateErr
}

func (c *stubCatalog) Names(typ domain.GenerationType) []string {
	names := make([]string, 0, len(c.costs))
	for name := range c.costs {
		if typ != "" && c.types[name] != typ {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// publishedEvent captures one Publish call.
type publishedEvent struct {
	Type string
	Data map[string]interface{}
}

// capturingPublisher records events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *capturingPublisher) Publish(_ context.Context, eventType string, data map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Data: data})
}

func (p *capturingPublisher) byType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// scriptedProvider replays a fixed sequence of poll statuses.
type scriptedProvider struct {
	mu        sync.Mutex
	submitErr error
	pollErr   error
	statuses  []domain.TaskStatus
	submits   int
	polls     int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Submit(_ context.Context, _ *domain.GenerationRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return "", p.submitErr
	}
	p.submits++
	return "task-1", nil
}

func (p *scriptedProvider) Poll(_ context.Context, _ string) (domain.TaskStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pollErr != nil {
		return domain.TaskStatus{}, p.pollErr
	}
	p.polls++
	if len(p.statuses) == 0 {
		return domain.TaskStatus{State: domain.TaskPending}, nil
	}
	status := p.statuses[0]
	if len(p.statuses) > 1 {
		p.statuses = p.statuses[1:]
	}
	return status, nil
}

func floatPtr(v float64) *float64 { return &v }
