package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kodama/internal/observability"
)

func TestEventBus(t *testing.T) {
	t.Run("should deliver events to every subscriber", func(t *testing.T) {
		bus := observability.NewEventBus()

		first, cancelFirst := bus.Subscribe()
		defer cancelFirst()
		second, cancelSecond := bus.Subscribe()
		defer cancelSecond()

		bus.Publish(context.Background(), "pricing.mode_changed", map[string]interface{}{
			"model": "Nanobanana",
		})

		for _, ch := range []<-chan observability.Event{first, second} {
			select {
			case event := <-ch:
				require.Equal(t, "pricing.mode_changed", event.Type)
				require.Equal(t, "Nanobanana", event.Data["model"])
				require.False(t, event.Timestamp.IsZero())
			case <-time.After(time.Second):
				t.Fatal("subscriber did not receive the event")
			}
		}
	})

	t.Run("should stop delivery after cancel", func(t *testing.T) {
		bus := observability.NewEventBus()

		events, cancel := bus.Subscribe()
		cancel()

		bus.Publish(context.Background(), "pricing.cost_observed", nil)

		_, open := <-events
		require.False(t, open, "cancelled subscription should be closed")
	})

	t.Run("should drop events for slow subscribers instead of blocking", func(t *testing.T) {
		bus := observability.NewEventBus()

		_, cancel := bus.Subscribe()
		defer cancel()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 100; i++ {
				bus.Publish(context.Background(), "pricing.cost_observed", nil)
			}
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("publish blocked on a slow subscriber")
		}
	})
}
