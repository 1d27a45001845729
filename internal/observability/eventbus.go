package observability

import (
	"context"
	"sync"
	"time"
)

// Event is one broadcast dashboard notification.
type Event struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

const subscriberBuffer = 16

// EventBus fans events out to any number of passive subscribers. Delivery
// is best effort: a subscriber whose buffer is full misses the event
// rather than blocking the publisher.
type EventBus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[int]chan Event),
	}
}

// Publish publishes an event with the given type and data.
func (e *EventBus) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	logger := FromContext(ctx)
	logger.Debug("publishing event", String("event_type", eventType))

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, ch := range e.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber, drop the event.
		}
	}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to release the subscription; the channel is closed by cancel.
func (e *EventBus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	e.mu.Lock()
	id := e.next
	e.next++
	e.subs[id] = ch
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
		e.mu.Unlock()
	}

	return ch, cancel
}
