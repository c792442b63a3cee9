package adapters

import (
	"cotton-extractor/internal/types"
)

// Constructor builds an adapter for one retailer in one region
type Constructor func(spec types.RetailerSpec, region types.Region, opts Options) types.RetailerAdapter

// specialised lists retailers with hand-tuned adapters; everything else is generic
var specialised = map[string]Constructor{
	"hm": func(spec types.RetailerSpec, region types.Region, opts Options) types.RetailerAdapter {
		return NewHMAdapter(spec, region, opts)
	},
	"asos": func(spec types.RetailerSpec, region types.Region, opts Options) types.RetailerAdapter {
		return NewASOSAdapter(spec, region, opts)
	},
}

// New returns the specialised adapter for the retailer when one exists and
// the configuration-driven generic adapter otherwise
func New(spec types.RetailerSpec, region types.Region, opts Options) types.RetailerAdapter {
	if constructor, ok := specialised[spec.Key]; ok {
		return constructor(spec, region, opts)
	}
	return NewGenericAdapter(spec, region, opts)
}

// IsSpecialised reports whether the retailer has a hand-tuned adapter
func IsSpecialised(key string) bool {
	_, ok := specialised[key]
	return ok
}
