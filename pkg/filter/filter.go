// Package filter provides named volume filters and a registry that builds
// them from a type tag and a parameter map, so processing pipelines can be
// described in configuration.
package filter

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"activesurface/internal/models"
)

var (
	// ErrUnknownFilter is returned by New for names that were never registered.
	ErrUnknownFilter = errors.New("unknown filter")

	// ErrInvalidParam is returned when a filter parameter is missing or out of range.
	ErrInvalidParam = errors.New("invalid filter parameter")
)

// Filter transforms a volume into a new volume. Implementations must not
// modify their input.
type Filter interface {
	Name() string
	Apply(in *models.Volume) (*models.Volume, error)
}

// Factory builds a filter from its parameters.
type Factory func(params map[string]float64) (Filter, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes a filter available under name. It panics if the name is
// already taken.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[name]; dup {
		panic("filter: Register called twice for " + name)
	}
	registry[name] = factory
}

// New builds the filter registered under name.
func New(name string, params map[string]float64) (Filter, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFilter, name)
	}
	f, err := factory(params)
	if err != nil {
		return nil, fmt.Errorf("filter %s: %w", name, err)
	}
	return f, nil
}

// Names lists the registered filters in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Chain is a filter that applies its members in order.
type Chain []Filter

func (c Chain) Name() string { return "chain" }

func (c Chain) Apply(in *models.Volume) (*models.Volume, error) {
	out := in
	for _, f := range c {
		next, err := f.Apply(out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name(), err)
		}
		out = next
	}
	if out == in {
		out = in.Clone()
	}
	return out, nil
}

// param reads a parameter, falling back to def when absent.
func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func init() {
	Register("normalize", func(params map[string]float64) (Filter, error) {
		return Normalize{}, nil
	})
	Register("gaussian", func(params map[string]float64) (Filter, error) {
		sigma := param(params, "sigma", 1)
		if sigma <= 0 {
			return nil, fmt.Errorf("%w: sigma must be positive, got %v", ErrInvalidParam, sigma)
		}
		workers := int(param(params, "workers", 0))
		if workers < 0 {
			return nil, fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidParam, workers)
		}
		return Gaussian{Sigma: sigma, Workers: workers}, nil
	})
	Register("gradmag", func(params map[string]float64) (Filter, error) {
		return GradientMagnitude{}, nil
	})
	Register("threshold", func(params map[string]float64) (Filter, error) {
		return Threshold{Level: param(params, "level", 0.5)}, nil
	})
}
