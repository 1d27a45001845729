package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientCredits indicates a deduction larger than the balance.
	// The balance and transaction log are left unchanged.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrInvalidPricingConfig indicates administrative input that violates a
	// field constraint. Configuration is left unchanged.
	ErrInvalidPricingConfig = errors.New("invalid pricing config")

	// ErrProviderTimeout indicates the poll attempt budget was exhausted.
	// No credits were deducted; the whole request may be retried.
	ErrProviderTimeout = errors.New("provider polling timed out")

	// ErrAccountNotFound indicates an operation referencing an unknown
	// account id.
	ErrAccountNotFound = errors.New("account not found")

	// ErrModelNotFound indicates a model missing from the catalog.
	ErrModelNotFound = errors.New("model not found")

	// ErrInvalidRequest indicates a generation request that fails catalog
	// validation.
	ErrInvalidRequest = errors.New("invalid request")
)

// ProviderError is a terminal failure reported by the generation provider
// for a submitted task. The provider's message is preserved verbatim.
type ProviderError struct {
	Provider string
	TaskID   string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed task %s: %s", e.Provider, e.TaskID, e.Message)
}
