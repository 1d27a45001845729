package registry

import "github.com/davidbz/kodama/internal/domain"

// Default base costs in USD, refined at runtime by observed provider costs.
const (
	nanobananaCost  = 0.05
	fluxDevCost     = 0.08
	flux11ProCost   = 0.12
	fluxKontextCost = 0.15
	seedreamCost    = 0.10

	seedancePerSecond = 0.08
	minimaxPerSecond  = 0.12
	veoFastPerSecond  = 0.15
)

var imageAspectRatios = []string{"1:1", "16:9", "9:16", "4:3", "3:4"}

// Builtin returns the registry populated with the production model catalog.
func Builtin() *Registry {
	r := NewRegistry()

	specs := []ModelSpec{
		{
			ID:            "bfl:3@1",
			Name:          "FLUX.1 Kontext [pro]",
			Type:          domain.TypeImage,
			QualityCosts:  map[string]float64{"1K": 0.10, "2K": fluxKontextCost, "4K": 0.25},
			AspectRatios:  imageAspectRatios,
			MaxSequential: 4,
			Dimensions:    map[string]map[string]Dimension{
				// Kontext accepts a narrower size grid than the computed table.
				"1:1":  {"1K": {1024, 1024}, "2K": {1440, 1440}, "4K": {1440, 1440}},
				"16:9": {"1K": {1392, 752}, "2K": {1392, 752}, "4K": {1392, 752}},
				"9:16": {"1K": {752, 1392}, "2K": {752, 1392}, "4K": {752, 1392}},
			},
		},
		{
			ID:            "bfl:2@1",
			Name:          "FLUX.1.1 Pro",
			Type:          domain.TypeImage,
			QualityCosts:  map[string]float64{"1K": 0.08, "2K": flux11ProCost, "4K": 0.20},
			AspectRatios:  imageAspectRatios,
			MaxSequential: 4,
		},
		{
			ID:            "runware:101@1",
			Name:          "FLUX.1 [dev]",
			Type:          domain.TypeImage,
			QualityCosts:  map[string]float64{"1K": 0.06, "2K": fluxDevCost, "4K": 0.15},
			AspectRatios:  imageAspectRatios,
			MaxSequential: 4,
		},
		{
			ID:            "google:4@1",
			Name:          "Nanobanana",
			Type:          domain.TypeImage,
			QualityCosts:  map[string]float64{"1K": nanobananaCost, "2K": nanobananaCost, "4K": 0.12},
			AspectRatios:  []string{"1:1", "3:4", "4:3"},
			MaxSequential: 1,
		},
		{
			ID:            "bytedance:5@0",
			Name:          "Seedream 4.0",
			Type:          domain.TypeImage,
			QualityCosts:  map[string]float64{"1K": seedreamCost, "2K": 0.18, "4K": 0.30},
			AspectRatios:  imageAspectRatios,
			MaxSequential: 4,
		},
		{
			ID:            "bytedance:1@1",
			Name:          "Seedance 1.0 Lite",
			Type:          domain.TypeVideo,
			CostPerSecond: seedancePerSecond,
			Durations:     []int{5, 10},
			Resolutions:   []string{"720p", "1080p"},
			AspectRatios:  []string{"16:9", "9:16", "1:1"},
		},
		{
			ID:            "minimax:2@1",
			Name:          "Minimax",
			Type:          domain.TypeVideo,
			CostPerSecond: minimaxPerSecond,
			Durations:     []int{6, 10},
			Resolutions:   []string{"720p", "1080p"},
			AspectRatios:  []string{"16:9"},
		},
		{
			ID:            "google:3@1",
			Name:          "Veo Fast",
			Type:          domain.TypeVideo,
			CostPerSecond: veoFastPerSecond,
			Durations:     []int{4, 6, 8},
			Resolutions:   []string{"720p", "1080p"},
			AspectRatios:  []string{"16:9", "9:16"},
		},
	}

	for _, spec := range specs {
		// Specs are static; a collision here is a programming error.
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}

	return r
}
