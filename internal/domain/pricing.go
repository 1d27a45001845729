package domain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PricingMode selects how a model's customer charge is derived.
type PricingMode string

const (
	ModeAuto   PricingMode = "auto"   // default process-wide markup
	ModeMarkup PricingMode = "markup" // per-model custom markup
	ModeFixed  PricingMode = "fixed"  // fixed display-currency price
)

// ModelPricingConfig is the per-model pricing policy. Configs are replaced
// whole, never mutated field by field, so concurrent readers see either
// the old or the new policy.
type ModelPricingConfig struct {
	Mode                PricingMode `json:"mode"`
	CustomMarkupPercent float64     `json:"custom_markup_percent,omitempty"`
	FixedPriceDisplay   float64     `json:"fixed_price_display,omitempty"`
}

const chargeDecimalPlaces = 4

// PricingParams are the process-wide pricing knobs.
type PricingParams struct {
	// DefaultMarkupPercent is applied in auto mode.
	DefaultMarkupPercent float64
	// ExchangeRate converts base currency to display currency.
	ExchangeRate float64
	// CreditsPerDisplayUnit converts a display-currency charge into
	// platform credits.
	CreditsPerDisplayUnit int64
}

// PricingEngine converts smoothed cost estimates into customer charges per
// model policy, in base and display currency.
type PricingEngine struct {
	mu             sync.RWMutex
	configs        map[string]ModelPricingConfig
	defaultMarkup  decimal.Decimal
	exchangeRate   decimal.Decimal
	creditsPerUnit int64
	publisher      EventPublisher
}

// NewPricingEngine creates an engine with every model in auto mode.
func NewPricingEngine(models []string, params PricingParams, publisher EventPublisher) *PricingEngine {
	configs := make(map[string]ModelPricingConfig, len(models))
	for _, model := range models {
		configs[model] = ModelPricingConfig{Mode: ModeAuto}
	}
	creditsPerUnit := params.CreditsPerDisplayUnit
	if creditsPerUnit <= 0 {
		creditsPerUnit = 1
	}
	return &PricingEngine{
		configs:        configs,
		defaultMarkup:  decimal.NewFromFloat(params.DefaultMarkupPercent),
		exchangeRate:   decimal.NewFromFloat(params.ExchangeRate),
		creditsPerUnit: creditsPerUnit,
		publisher:      publisher,
	}
}

// Credits converts a charge into the platform credits to deduct.
func (p *PricingEngine) Credits(charge Charge) int64 {
	return charge.DisplayAmount * p.creditsPerUnit
}

// ComputeCharge converts an estimated actual cost into the customer charge
// for a model. The base amount is rounded to a fixed number of decimal
// places; the display amount rounds up so fractional display-currency
// truncation never under-charges.
func (p *PricingEngine) ComputeCharge(model string, estimatedCost float64) Charge {
	p.mu.RLock()
	cfg := p.configs[model]
	rate := p.exchangeRate
	defaultMarkup := p.defaultMarkup
	p.mu.RUnlock()

	cost := decimal.NewFromFloat(estimatedCost)

	var base decimal.Decimal
	switch cfg.Mode {
	case ModeFixed:
		fixed := decimal.NewFromFloat(cfg.FixedPriceDisplay)
		// Round the base down so base*rate never exceeds the fixed display
		// price the customer is shown.
		base = fixed.Div(rate).RoundFloor(chargeDecimalPlaces)
		return Charge{
			BaseAmount:    base,
			DisplayAmount: fixed.RoundCeil(0).IntPart(),
			ExchangeRate:  rate,
		}
	case ModeMarkup:
		base = applyMarkup(cost, decimal.NewFromFloat(cfg.CustomMarkupPercent))
	default:
		base = applyMarkup(cost, defaultMarkup)
	}

	return Charge{
		BaseAmount:    base,
		DisplayAmount: base.Mul(rate).RoundCeil(0).IntPart(),
		ExchangeRate:  rate,
	}
}

func applyMarkup(cost, percent decimal.Decimal) decimal.Decimal {
	multiplier := decimal.NewFromInt(1).Add(percent.Div(decimal.NewFromInt(100)))
	return cost.Mul(multiplier).Round(chargeDecimalPlaces)
}

// Config returns the current policy for a model, defaulting to auto.
func (p *PricingEngine) Config(model string) ModelPricingConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cfg, ok := p.configs[model]; ok {
		return cfg
	}
	return ModelPricingConfig{Mode: ModeAuto}
}

// Configs returns a copy of every model's policy.
func (p *PricingEngine) Configs() map[string]ModelPricingConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]ModelPricingConfig, len(p.configs))
	for model, cfg := range p.configs {
		out[model] = cfg
	}
	return out
}

// SetMode switches a model's pricing mode. Switching to fixed requires a
// previously configured fixed price; switching to markup keeps the last
// custom markup (zero is a valid markup).
func (p *PricingEngine) SetMode(ctx context.Context, model string, mode PricingMode) error {
	switch mode {
	case ModeAuto, ModeMarkup, ModeFixed:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidPricingConfig, mode)
	}

	p.mu.Lock()
	cfg, ok := p.configs[model]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	if mode == ModeFixed && cfg.FixedPriceDisplay <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("%w: fixed price not configured for %s", ErrInvalidPricingConfig, model)
	}
	cfg.Mode = mode
	p.configs[model] = cfg
	p.mu.Unlock()

	p.notifyModeChange(ctx, model, cfg)
	return nil
}

// SetCustomMarkup sets a per-model markup percentage and forces markup mode.
func (p *PricingEngine) SetCustomMarkup(ctx context.Context, model string, percent float64) error {
	if percent < 0 {
		return fmt.Errorf("%w: markup must be non-negative, got %v", ErrInvalidPricingConfig, percent)
	}

	p.mu.Lock()
	cfg, ok := p.configs[model]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	cfg.Mode = ModeMarkup
	cfg.CustomMarkupPercent = percent
	p.configs[model] = cfg
	p.mu.Unlock()

	p.notifyModeChange(ctx, model, cfg)
	return nil
}

// SetFixedPrice sets a fixed display-currency price and forces fixed mode.
func (p *PricingEngine) SetFixedPrice(ctx context.Context, model string, priceDisplay float64) error {
	if priceDisplay <= 0 {
		return fmt.Errorf("%w: fixed price must be positive, got %v", ErrInvalidPricingConfig, priceDisplay)
	}

	p.mu.Lock()
	cfg, ok := p.configs[model]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrModelNotFound, model)
	}
	cfg.Mode = ModeFixed
	cfg.FixedPriceDisplay = priceDisplay
	p.configs[model] = cfg
	p.mu.Unlock()

	p.notifyModeChange(ctx, model, cfg)
	return nil
}

// ApplyPromotion switches every model to markup mode at the given rate.
// The map is rebuilt and swapped under the lock, so concurrent readers
// never observe a partially updated set.
func (p *PricingEngine) ApplyPromotion(ctx context.Context, percent float64) error {
	if percent < 0 {
		return fmt.Errorf("%w: promotion markup must be non-negative, got %v", ErrInvalidPricingConfig, percent)
	}

	p.mu.Lock()
	next := make(map[string]ModelPricingConfig, len(p.configs))
	for model, cfg := range p.configs {
		cfg.Mode = ModeMarkup
		cfg.CustomMarkupPercent = percent
		next[model] = cfg
	}
	p.configs = next
	p.mu.Unlock()

	p.notifyBulkChange(ctx, "promotion", percent)
	return nil
}

// ResetToDefault returns every model to auto mode with the default markup.
func (p *PricingEngine) ResetToDefault(ctx context.Context) {
	p.mu.Lock()
	next := make(map[string]ModelPricingConfig, len(p.configs))
	for model := range p.configs {
		next[model] = ModelPricingConfig{Mode: ModeAuto}
	}
	p.configs = next
	p.mu.Unlock()

	p.notifyBulkChange(ctx, "reset", 0)
}

// ExchangeRate returns the current base-to-display conversion rate.
func (p *PricingEngine) ExchangeRate() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exchangeRate
}

// SetExchangeRate updates the base-to-display conversion rate.
func (p *PricingEngine) SetExchangeRate(ctx context.Context, rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("%w: exchange rate must be positive, got %v", ErrInvalidPricingConfig, rate)
	}

	p.mu.Lock()
	p.exchangeRate = decimal.NewFromFloat(rate)
	p.mu.Unlock()

	if p.publisher != nil {
		p.publisher.Publish(ctx, EventPricingModeChanged, map[string]interface{}{
			"change":        "exchange_rate",
			"exchange_rate": rate,
			"timestamp":     time.Now().UTC(),
		})
	}
	return nil
}

func (p *PricingEngine) notifyModeChange(ctx context.Context, model string, cfg ModelPricingConfig) {
	if p.publisher == nil {
		return
	}
	p.publisher.Publish(ctx, EventPricingModeChanged, map[string]interface{}{
		"model":     model,
		"mode":      string(cfg.Mode),
		"markup":    cfg.CustomMarkupPercent,
		"fixed":     cfg.FixedPriceDisplay,
		"timestamp": time.Now().UTC(),
	})
}

func (p *PricingEngine) notifyBulkChange(ctx context.Context, change string, percent float64) {
	if p.publisher == nil {
		return
	}
	p.publisher.Publish(ctx, EventPricingModeChanged, map[string]interface{}{
		"change":    change,
		"markup":    percent,
		"timestamp": time.Now().UTC(),
	})
}
