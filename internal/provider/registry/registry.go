// Package registry holds the closed catalog of generation models. Each
// model is a plain spec struct registered in a lookup table at startup;
// pricing, validation and dimension lookups all read from the same table.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/davidbz/kodama/internal/domain"
)

// Dimension is an output size in pixels.
type Dimension struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ModelSpec describes one generation model: identity, default costs and
// the request shapes it accepts.
type ModelSpec struct {
	// ID is the provider-side model identifier, e.g. "bfl:2@1".
	ID string
	// Name is the catalog name requests refer to.
	Name string
	Type domain.GenerationType

	// QualityCosts maps image quality tiers to default USD cost per image.
	QualityCosts map[string]float64
	// CostPerSecond is the default USD cost per second of video.
	CostPerSecond float64

	AspectRatios  []string
	MaxSequential int
	Durations     []int    // video, seconds
	Resolutions   []string // video

	// Dimensions overrides the computed size table: aspect ratio -> quality.
	Dimensions map[string]map[string]Dimension
}

const defaultQuality = "2K"

// DefaultCost returns the static base cost with settings multipliers
// applied: sequential image count for images, duration for videos.
func (s ModelSpec) DefaultCost(settings domain.Settings) float64 {
	if s.Type == domain.TypeVideo {
		seconds := settings.DurationSeconds
		if seconds <= 0 {
			seconds = 5
		}
		return s.CostPerSecond * float64(seconds)
	}

	quality := settings.Quality
	if quality == "" {
		quality = defaultQuality
	}
	cost, ok := s.QualityCosts[quality]
	if !ok {
		cost = s.QualityCosts[defaultQuality]
	}

	count := settings.SequentialImages
	if count < 1 {
		count = 1
	}
	return cost * float64(count)
}

// Validate rejects requests this model cannot serve.
func (s ModelSpec) Validate(req *domain.GenerationRequest) error {
	if req.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", domain.ErrInvalidRequest)
	}
	if req.Type != s.Type {
		return fmt.Errorf("%w: model %s is a %s model, got %s request", domain.ErrInvalidRequest, s.Name, s.Type, req.Type)
	}

	set := req.Settings
	if s.Type == domain.TypeImage {
		if set.Quality != "" && !contains(keys(s.QualityCosts), set.Quality) {
			return fmt.Errorf("%w: model %s does not support quality %s", domain.ErrInvalidRequest, s.Name, set.Quality)
		}
		if set.SequentialImages > s.MaxSequential && s.MaxSequential > 0 {
			return fmt.Errorf("%w: model %s supports at most %d sequential images", domain.ErrInvalidRequest, s.Name, s.MaxSequential)
		}
	} else {
		if set.DurationSeconds > 0 && len(s.Durations) > 0 && !containsInt(s.Durations, set.DurationSeconds) {
			return fmt.Errorf("%w: model %s does not support %ds duration", domain.ErrInvalidRequest, s.Name, set.DurationSeconds)
		}
		if set.Resolution != "" && len(s.Resolutions) > 0 && !contains(s.Resolutions, set.Resolution) {
			return fmt.Errorf("%w: model %s does not support resolution %s", domain.ErrInvalidRequest, s.Name, set.Resolution)
		}
	}

	if set.AspectRatio != "" && len(s.AspectRatios) > 0 && !contains(s.AspectRatios, set.AspectRatio) {
		return fmt.Errorf("%w: model %s does not support aspect ratio %s", domain.ErrInvalidRequest, s.Name, set.AspectRatio)
	}

	return nil
}

// Registry implements domain.ModelCatalog over a name-keyed lookup table.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]ModelSpec
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]ModelSpec),
	}
}

// Register adds a model spec to the registry.
func (r *Registry) Register(spec ModelSpec) error {
	if spec.Name == "" {
		return errors.New("model name cannot be empty")
	}
	if spec.ID == "" {
		return errors.New("model id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[spec.Name]; exists {
		return fmt.Errorf("model %s already registered", spec.Name)
	}
	r.byName[spec.Name] = spec
	return nil
}

// Get retrieves a model spec by catalog name.
func (r *Registry) Get(name string) (ModelSpec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.byName[name]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %s", domain.ErrModelNotFound, name)
	}
	return spec, nil
}

// Names lists registered model names for a type; empty type lists all.
func (r *Registry) Names(typ domain.GenerationType) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.byName))
	for name, spec := range r.byName {
		if typ != "" && spec.Type != typ {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultCost implements domain.ModelCatalog.
func (r *Registry) DefaultCost(model string, typ domain.GenerationType, settings domain.Settings) (float64, bool) {
	spec, err := r.Get(model)
	if err != nil || spec.Type != typ {
		return 0, false
	}
	return spec.DefaultCost(settings), true
}

// Validate implements domain.ModelCatalog.
func (r *Registry) Validate(req *domain.GenerationRequest) error {
	spec, err := r.Get(req.Model)
	if err != nil {
		return err
	}
	return spec.Validate(req)
}

// OutputDimensions resolves the pixel size for a model, aspect ratio and
// quality, preferring the model's override table.
func (r *Registry) OutputDimensions(model, aspectRatio, quality string) (Dimension, error) {
	spec, err := r.Get(model)
	if err != nil {
		return Dimension{}, err
	}

	if aspectRatio == "" {
		aspectRatio = "1:1"
	}
	if quality == "" {
		quality = defaultQuality
	}

	if byAspect, ok := spec.Dimensions[aspectRatio]; ok {
		if dim, ok := byAspect[quality]; ok {
			return dim, nil
		}
	}
	return computedDimensions(aspectRatio, quality), nil
}

// computedDimensions derives a size from the quality tier's base edge,
// shrinking one side to approximate the aspect ratio.
func computedDimensions(aspectRatio, quality string) Dimension {
	base := map[string]int{"1K": 1024, "2K": 2048, "4K": 4096}[quality]
	if base == 0 {
		base = 2048
	}

	switch aspectRatio {
	case "16:9":
		return Dimension{Width: base, Height: base * 9 / 16}
	case "9:16":
		return Dimension{Width: base * 9 / 16, Height: base}
	case "4:3":
		return Dimension{Width: base, Height: base * 3 / 4}
	case "3:4":
		return Dimension{Width: base * 3 / 4, Height: base}
	default:
		return Dimension{Width: base, Height: base}
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
