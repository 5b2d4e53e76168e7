package relaxation

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is returned by Validate for unusable parameter sets.
var ErrInvalidParams = errors.New("invalid relaxation parameters")

// Params holds every tunable constant of the relaxation. The defaults are
// the values the model was originally tuned with.
type Params struct {
	// InitialScale is the length scale of the first pass. Each pass halves it.
	InitialScale float64 `yaml:"initialScale"`

	// MinScale is the floor: passes run while the scale is at least MinScale.
	// Setting it equal to InitialScale runs a single pass.
	MinScale float64 `yaml:"minScale"`

	// MaxPasses caps the number of passes; zero means no cap.
	MaxPasses int `yaml:"maxPasses"`

	// MaxIterations is the iteration cap of a single pass.
	MaxIterations int `yaml:"maxIterations"`

	// StepSize scales the per-iteration force into a displacement.
	StepSize float64 `yaml:"stepSize"`

	// InternalWeight scales the bending force in the first pass.
	InternalWeight float64 `yaml:"internalWeight"`

	// WeightGrowth multiplies InternalWeight after each pass.
	WeightGrowth float64 `yaml:"weightGrowth"`

	// BendingLambda and BendingMu weigh the first and second curvature sweeps.
	BendingLambda float64 `yaml:"bendingLambda"`
	BendingMu     float64 `yaml:"bendingMu"`

	// MinExternalForce is the smallest magnitude of a nonzero external force.
	MinExternalForce float64 `yaml:"minExternalForce"`

	// MaxForce caps the bending force and the total force.
	MaxForce float64 `yaml:"maxForce"`

	// StabilityThreshold is the count of quiet iterations after which a vertex is stable.
	StabilityThreshold int `yaml:"stabilityThreshold"`

	// HistoryLength is the number of past positions kept per vertex.
	HistoryLength int `yaml:"historyLength"`

	// WarmupIterations is the number of iterations before stability is tracked.
	WarmupIterations int `yaml:"warmupIterations"`

	// DisplacementThreshold is the distance from the history mean below which
	// an iteration counts as quiet.
	DisplacementThreshold float64 `yaml:"displacementThreshold"`

	// DisplacementGrowth multiplies DisplacementThreshold each time the stable
	// ratio crosses StableRatioThreshold.
	DisplacementGrowth float64 `yaml:"displacementGrowth"`

	// StableRatioThreshold is the stable fraction that relaxes the convergence
	// criteria. It is raised by StableRatioStep each time it is crossed.
	StableRatioThreshold float64 `yaml:"stableRatioThreshold"`
	StableRatioStep      float64 `yaml:"stableRatioStep"`

	// EarlyExitRatio is the stable fraction that ends a pass.
	EarlyExitRatio float64 `yaml:"earlyExitRatio"`

	// SubdivideFactor and MeltFactor times the scale give the remeshing
	// edge length thresholds.
	SubdivideFactor float64 `yaml:"subdivideFactor"`
	MeltFactor      float64 `yaml:"meltFactor"`

	// CoarseProgressInterval is the number of iterations between coarse progress events.
	CoarseProgressInterval int `yaml:"coarseProgressInterval"`
}

// DefaultParams returns the tuned default parameters.
func DefaultParams() Params {
	return Params{
		InitialScale:           4.0,
		MinScale:               1.0,
		MaxIterations:          1000,
		StepSize:               0.5,
		InternalWeight:         0.01,
		WeightGrowth:           10,
		BendingLambda:          1.0,
		BendingMu:              -1.1,
		MinExternalForce:       0.1,
		MaxForce:               1.0,
		StabilityThreshold:     100,
		HistoryLength:          10,
		WarmupIterations:       8,
		DisplacementThreshold:  0.05,
		DisplacementGrowth:     1.5,
		StableRatioThreshold:   0.6,
		StableRatioStep:        0.1,
		EarlyExitRatio:         0.95,
		SubdivideFactor:        1.5,
		MeltFactor:             0.5,
		CoarseProgressInterval: 5,
	}
}

// Validate checks that the parameters describe a terminating relaxation.
func (p Params) Validate() error {
	switch {
	case p.InitialScale <= 0:
		return fmt.Errorf("%w: initialScale must be positive, got %v", ErrInvalidParams, p.InitialScale)
	case p.MinScale <= 0 || p.MinScale > p.InitialScale:
		return fmt.Errorf("%w: minScale must be in (0, initialScale], got %v", ErrInvalidParams, p.MinScale)
	case p.MaxPasses < 0:
		return fmt.Errorf("%w: maxPasses must not be negative, got %d", ErrInvalidParams, p.MaxPasses)
	case p.MaxIterations <= 0:
		return fmt.Errorf("%w: maxIterations must be positive, got %d", ErrInvalidParams, p.MaxIterations)
	case p.StepSize <= 0:
		return fmt.Errorf("%w: stepSize must be positive, got %v", ErrInvalidParams, p.StepSize)
	case p.MaxForce <= 0:
		return fmt.Errorf("%w: maxForce must be positive, got %v", ErrInvalidParams, p.MaxForce)
	case p.MinExternalForce < 0 || p.MinExternalForce > p.MaxForce:
		return fmt.Errorf("%w: minExternalForce must be in [0, maxForce], got %v", ErrInvalidParams, p.MinExternalForce)
	case p.HistoryLength <= 0:
		return fmt.Errorf("%w: historyLength must be positive, got %d", ErrInvalidParams, p.HistoryLength)
	case p.StabilityThreshold < 0:
		return fmt.Errorf("%w: stabilityThreshold must not be negative, got %d", ErrInvalidParams, p.StabilityThreshold)
	case p.EarlyExitRatio <= 0 || p.EarlyExitRatio > 1:
		return fmt.Errorf("%w: earlyExitRatio must be in (0, 1], got %v", ErrInvalidParams, p.EarlyExitRatio)
	case p.MeltFactor < 0 || p.SubdivideFactor <= p.MeltFactor:
		return fmt.Errorf("%w: need 0 <= meltFactor < subdivideFactor, got %v and %v",
			ErrInvalidParams, p.MeltFactor, p.SubdivideFactor)
	case p.CoarseProgressInterval <= 0:
		return fmt.Errorf("%w: coarseProgressInterval must be positive, got %d", ErrInvalidParams, p.CoarseProgressInterval)
	}
	return nil
}
