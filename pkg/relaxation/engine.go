// Package relaxation drives a deformable surface toward image boundaries by
// iterative force relaxation over a sequence of decreasing length scales.
package relaxation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"activesurface/pkg/field"
	"activesurface/pkg/mesh"
)

// Observer receives progress events. Calls are synchronous and interleaved
// with the computation.
type Observer interface {
	// OnProgress is called after every iteration.
	OnProgress()

	// OnProgressCoarse is called every CoarseProgressInterval iterations.
	OnProgressCoarse()
}

// NopObserver ignores all progress events.
type NopObserver struct{}

func (NopObserver) OnProgress()       {}
func (NopObserver) OnProgressCoarse() {}

// Funcs adapts plain functions to an Observer. Nil functions are skipped.
type Funcs struct {
	Progress func()
	Coarse   func()
}

func (f Funcs) OnProgress() {
	if f.Progress != nil {
		f.Progress()
	}
}

func (f Funcs) OnProgressCoarse() {
	if f.Coarse != nil {
		f.Coarse()
	}
}

// State is the phase of the relaxation state machine.
type State int

const (
	Idle State = iota
	Running
	ScaleConverged
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case ScaleConverged:
		return "scale converged"
	case Done:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats is a snapshot of the engine's run state.
type Stats struct {
	State                 State
	Pass                  int
	Iteration             int
	Scale                 float64
	InternalWeight        float64
	DisplacementThreshold float64
	StableRatioThreshold  float64
	Vertices              int
	Stable                int
}

// StableRatio returns the fraction of stable vertices.
func (s Stats) StableRatio() float64 {
	if s.Vertices == 0 {
		return 0
	}
	return float64(s.Stable) / float64(s.Vertices)
}

// Engine fits a mesh to a force field. It owns neither; both must not be
// touched by anyone else while Run executes.
type Engine struct {
	field    *field.Field
	mesh     *mesh.Mesh
	params   Params
	observer Observer

	state                 State
	pass                  int
	iteration             int
	scale                 float64
	internalWeight        float64
	displacementThreshold float64
	stableRatioThreshold  float64

	// scratch buffers for the two bending sweeps
	positions []r3.Vec
	first     []r3.Vec
	corrected []r3.Vec
}

// New creates an engine. A nil observer is replaced by NopObserver. The
// mesh's vertex histories are resized to params.HistoryLength.
func New(f *field.Field, m *mesh.Mesh, params Params, observer Observer) (*Engine, error) {
	if f == nil || m == nil {
		return nil, errors.New("relaxation: field and mesh are required")
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if observer == nil {
		observer = NopObserver{}
	}
	m.SetHistoryLength(params.HistoryLength)
	return &Engine{
		field:    f,
		mesh:     m,
		params:   params,
		observer: observer,
		state:    Idle,
	}, nil
}

// Stats returns the current run state. It is safe to call from the observer.
func (e *Engine) Stats() Stats {
	return Stats{
		State:                 e.state,
		Pass:                  e.pass,
		Iteration:             e.iteration,
		Scale:                 e.scale,
		InternalWeight:        e.internalWeight,
		DisplacementThreshold: e.displacementThreshold,
		StableRatioThreshold:  e.stableRatioThreshold,
		Vertices:              len(e.mesh.Vertices),
		Stable:                e.mesh.StableCount(),
	}
}

// Run relaxes the mesh in place. Each pass remeshes at the current scale,
// iterates until the stable ratio reaches EarlyExitRatio or MaxIterations is
// hit, then halves the scale and grows the internal weight. Run returns
// when the scale drops below MinScale or MaxPasses passes have run.
func (e *Engine) Run() error {
	p := e.params
	e.scale = p.InitialScale
	e.internalWeight = p.InternalWeight

	for e.pass = 0; e.scale >= p.MinScale; e.pass++ {
		if p.MaxPasses > 0 && e.pass >= p.MaxPasses {
			break
		}
		e.state = Running
		e.mesh.ResetStability()
		e.mesh.Subdivide(p.SubdivideFactor * e.scale)
		e.mesh.Melt(p.MeltFactor * e.scale)

		if err := e.runPass(); err != nil {
			return fmt.Errorf("pass %d at scale %v: %w", e.pass, e.scale, err)
		}
		e.state = ScaleConverged

		e.scale /= 2
		e.internalWeight *= p.WeightGrowth
	}
	e.state = Done
	return nil
}

func (e *Engine) runPass() error {
	p := e.params
	e.displacementThreshold = p.DisplacementThreshold
	e.stableRatioThreshold = p.StableRatioThreshold
	every := int(math.Floor(e.scale))
	if every < 1 {
		every = 1
	}

	for it := 0; it < p.MaxIterations; it++ {
		e.iteration = it
		if it > 0 && it%every == 0 {
			e.mesh.Subdivide(p.SubdivideFactor * e.scale)
		}
		if err := e.step(it); err != nil {
			return fmt.Errorf("iteration %d: %w", it, err)
		}

		e.observer.OnProgress()
		if it%p.CoarseProgressInterval == 0 {
			e.observer.OnProgressCoarse()
		}

		ratio := float64(e.mesh.StableCount()) / float64(len(e.mesh.Vertices))
		if ratio >= p.EarlyExitRatio {
			return nil
		}
		if ratio > e.stableRatioThreshold {
			e.stableRatioThreshold = math.Min(e.stableRatioThreshold+p.StableRatioStep, p.EarlyExitRatio)
			e.displacementThreshold *= p.DisplacementGrowth
		}
	}
	return nil
}

// updateNormals recomputes normals, melting short edges once at the current
// scale when a vertex normal vanishes.
func (e *Engine) updateNormals() error {
	err := e.mesh.RecomputeNormals()
	if errors.Is(err, mesh.ErrDegenerateGeometry) {
		e.mesh.Melt(e.params.MeltFactor * e.scale)
		err = e.mesh.RecomputeNormals()
	}
	return err
}

// step performs one iteration over every non-stable vertex.
func (e *Engine) step(it int) error {
	if err := e.updateNormals(); err != nil {
		return err
	}
	p := e.params
	m := e.mesh
	n := len(m.Vertices)
	e.positions = m.Positions()
	e.first = resize(e.first, n)
	e.corrected = resize(e.corrected, n)

	// First sweep: normal component of the umbrella vector at every vertex.
	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Force = r3.Vec{}
		c, ok := m.Centroid1Ring(i, e.positions)
		if !ok {
			e.first[i] = r3.Vec{}
			e.corrected[i] = e.positions[i]
			continue
		}
		e.first[i] = projectOnto(r3.Sub(c, e.positions[i]), v.Normal)
		e.corrected[i] = r3.Add(e.positions[i], r3.Scale(p.BendingLambda, e.first[i]))
	}

	// Second sweep on the corrected positions, then the total force.
	for i := range m.Vertices {
		v := &m.Vertices[i]
		if v.Stable {
			continue
		}
		var second r3.Vec
		if c, ok := m.Centroid1Ring(i, e.corrected); ok {
			second = projectOnto(r3.Sub(c, e.corrected[i]), v.Normal)
		}
		bending := r3.Add(r3.Scale(p.BendingLambda, e.first[i]), r3.Scale(p.BendingMu, second))
		bending = ClampNorm(r3.Scale(e.internalWeight, bending), p.MaxForce)

		sample, err := e.field.SampleNearest(e.positions[i])
		if err != nil {
			return fmt.Errorf("vertex %d at %v: %w", i, e.positions[i], err)
		}
		external := ExternalForce(sample, v.Normal, p.MinExternalForce)

		v.Force = ClampNorm(r3.Add(bending, external), p.MaxForce)
	}

	for i := range m.Vertices {
		v := &m.Vertices[i]
		if v.Stable {
			continue
		}
		v.Position = r3.Add(v.Position, r3.Scale(p.StepSize, v.Force))
		v.History.Push(v.Position)
		if it <= p.WarmupIterations || !v.History.Full() {
			continue
		}
		if r3.Norm(r3.Sub(v.Position, v.History.Mean())) < e.displacementThreshold {
			v.Stability++
			if v.Stability > p.StabilityThreshold {
				v.Stable = true
			}
		} else {
			v.Stability = 0
		}
	}
	return nil
}

func resize(s []r3.Vec, n int) []r3.Vec {
	if cap(s) < n {
		return make([]r3.Vec, n)
	}
	return s[:n]
}

// projectOnto returns the component of v along the unit vector n.
func projectOnto(v, n r3.Vec) r3.Vec {
	return r3.Scale(r3.Dot(v, n), n)
}

// ExternalForce projects a field sample onto the vertex normal and raises a
// nonzero result to at least minNorm.
func ExternalForce(sample, normal r3.Vec, minNorm float64) r3.Vec {
	return ClampMinNorm(projectOnto(sample, normal), minNorm)
}

// ClampNorm scales v down to maxNorm when it is longer.
func ClampNorm(v r3.Vec, maxNorm float64) r3.Vec {
	n := r3.Norm(v)
	if n <= maxNorm || n == 0 {
		return v
	}
	return r3.Scale(maxNorm/n, v)
}

// ClampMinNorm scales a nonzero v up to minNorm when it is shorter. The zero
// vector is returned unchanged.
func ClampMinNorm(v r3.Vec, minNorm float64) r3.Vec {
	n := r3.Norm(v)
	if n == 0 || n >= minNorm {
		return v
	}
	return r3.Scale(minNorm/n, v)
}
