package domain

import (
	"context"
	"time"
)

// Provider represents any generation provider. The provider pattern in this
// domain is submit-then-poll: Submit returns a task id, Poll reports its
// state until done or failed.
type Provider interface {
	// Submit sends a generation request and returns the provider task id.
	Submit(ctx context.Context, req *GenerationRequest) (string, error)

	// Poll reports the current state of a submitted task.
	Poll(ctx context.Context, taskID string) (TaskStatus, error)

	// Name returns the provider identifier.
	Name() string
}

// ModelCatalog is the closed set of generation models known at startup.
type ModelCatalog interface {
	// DefaultCost returns the static base cost for a model with the
	// settings multipliers already applied. ok is false for unknown models.
	DefaultCost(model string, typ GenerationType, settings Settings) (cost float64, ok bool)

	// Validate rejects requests a model cannot serve.
	Validate(req *GenerationRequest) error

	// Names lists all registered model names for a type; empty type lists all.
	Names(typ GenerationType) []string
}

// AccountStore is the persistent per-account document store. Mutations on
// one account are applied atomically relative to each other.
type AccountStore interface {
	// Get retrieves an account by id. Returns ErrAccountNotFound.
	Get(ctx context.Context, accountID string) (Account, error)

	// Ensure creates the account if absent and reports whether it did.
	Ensure(ctx context.Context, account Account) (Account, bool, error)

	// ApplyTransaction runs fn against the current account state and, if fn
	// succeeds, durably persists the mutated account together with the
	// returned transaction as one atomic write. fn may be retried under
	// optimistic concurrency and must be side-effect free.
	ApplyTransaction(ctx context.Context, accountID string, fn func(*Account) (Transaction, error)) (Transaction, error)

	// Transactions returns an account's transactions newest-first, a prefix
	// of the true history up to limit (0 means no limit).
	Transactions(ctx context.Context, accountID string, limit int) ([]Transaction, error)

	// SaveGeneration durably appends a generation record.
	SaveGeneration(ctx context.Context, rec GenerationRecord) error

	// Generations returns an account's generation records newest-first.
	Generations(ctx context.Context, accountID string, limit int) ([]GenerationRecord, error)

	// PurgeExpired removes generation records whose expiry passed before
	// now and returns how many were removed.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// EventPublisher broadcasts events to passive subscribers (pricing
// dashboards). Delivery is best effort; dashboards recompute from
// persisted state on demand.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// Event types carried over the dashboard channel.
const (
	EventCostObserved       = "pricing.cost_observed"
	EventPricingModeChanged = "pricing.mode_changed"
)
