package domain

import (
	"sync"
	"time"
)

const (
	// DefaultObservationWindow bounds the rolling cost window.
	DefaultObservationWindow = 100

	// Fallback base costs for models missing from the catalog.
	fallbackImageCost          = 0.08 // USD per image
	fallbackVideoCostPerSecond = 0.10 // USD per second
)

// CostEstimator blends static default costs with a bounded rolling window
// of recently observed provider costs. The blend (default + mean)/2 damps
// noisy single observations while letting estimates drift toward reality
// as volume grows.
type CostEstimator struct {
	mu       sync.RWMutex
	window   []CostObservation // ring buffer
	next     int
	full     bool
	capacity int
	catalog  ModelCatalog
}

// NewCostEstimator creates an estimator over the given catalog. A capacity
// of zero or less falls back to DefaultObservationWindow.
func NewCostEstimator(catalog ModelCatalog, capacity int) *CostEstimator {
	if capacity <= 0 {
		capacity = DefaultObservationWindow
	}
	return &CostEstimator{
		window:   make([]CostObservation, capacity),
		capacity: capacity,
		catalog:  catalog,
	}
}

// RecordObservation appends an observed actual cost, evicting the oldest
// entry once the window is at capacity. It never fails.
func (e *CostEstimator) RecordObservation(model string, typ GenerationType, settings Settings, cost float64) {
	obs := CostObservation{
		Model:     model,
		Type:      typ,
		Bucket:    settings.Bucket(typ),
		Cost:      cost,
		Timestamp: time.Now().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.window[e.next] = obs
	e.next++
	if e.next == e.capacity {
		e.next = 0
		e.full = true
	}
}

// EstimateCost returns the smoothed cost estimate for a model and
// configuration. Settings multipliers are applied to the default cost
// before blending so blending happens in comparable units.
func (e *CostEstimator) EstimateCost(model string, typ GenerationType, settings Settings) float64 {
	defaultCost := e.defaultCost(model, typ, settings)

	sum, count := e.matchingObservations(model, typ, settings.Bucket(typ))
	if count == 0 {
		return defaultCost
	}

	mean := sum / float64(count)
	return (defaultCost + mean) / 2
}

// SampleSize reports how many windowed observations match a configuration.
func (e *CostEstimator) SampleSize(model string, typ GenerationType, settings Settings) int {
	_, count := e.matchingObservations(model, typ, settings.Bucket(typ))
	return count
}

// Snapshot copies the current window, oldest first, for export.
func (e *CostEstimator) Snapshot() []CostObservation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	size := e.next
	if e.full {
		size = e.capacity
	}

	out := make([]CostObservation, 0, size)
	start := 0
	if e.full {
		start = e.next
	}
	for i := 0; i < size; i++ {
		out = append(out, e.window[(start+i)%e.capacity])
	}
	return out
}

func (e *CostEstimator) defaultCost(model string, typ GenerationType, settings Settings) float64 {
	if cost, ok := e.catalog.DefaultCost(model, typ, settings); ok {
		return cost
	}

	// Unknown model: fall back to generic defaults with the same multipliers.
	if typ == TypeVideo {
		seconds := settings.DurationSeconds
		if seconds <= 0 {
			seconds = 5
		}
		return fallbackVideoCostPerSecond * float64(seconds)
	}

	count := settings.SequentialImages
	if count < 1 {
		count = 1
	}
	return fallbackImageCost * float64(count)
}

func (e *CostEstimator) matchingObservations(model string, typ GenerationType, bucket string) (sum float64, count int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	size := e.next
	if e.full {
		size = e.capacity
	}

	for i := 0; i < size; i++ {
		obs := e.window[i]
		if obs.Model != model || obs.Type != typ || obs.Bucket != bucket {
			continue
		}
		sum += obs.Cost
		count++
	}
	return sum, count
}
