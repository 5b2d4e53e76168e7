// Package segmentation runs the complete active surface pipeline: it loads a
// stack of 2D slices, derives an external force field from the image edges,
// seeds a surface inside the object and relaxes it onto the boundary.
package segmentation

import (
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"activesurface/internal/models"
	"activesurface/pkg/config"
	"activesurface/pkg/field"
	"activesurface/pkg/filter"
	"activesurface/pkg/mesh"
	"activesurface/pkg/relaxation"
	"activesurface/pkg/stl"
)

// ProgressCallback receives a snapshot of the relaxation state on every
// coarse progress event.
type ProgressCallback func(stats relaxation.Stats)

// Params holds the segmentation inputs and outputs.
type Params struct {
	// InputDir is the directory containing numbered JPEG or PNG slices.
	InputDir string

	// OutputFile is the path of the STL model. Empty skips the STL output.
	OutputFile string

	// Config carries the processing, seed, relaxation and output settings.
	// Nil uses config.DefaultConfig.
	Config *config.Config
}

// Segmenter fits a deformable surface to the object in a slice stack.
//
// The process consists of several steps:
// 1. Loading the slices into a volume
// 2. Running the filter pipeline to get an edge map
// 3. Building the external force field from the edge map
// 4. Seeding a surface inside the object
// 5. Relaxing the surface onto the boundary
// 6. Writing the STL model and mesh dump
// 7. Calculating quality metrics
type Segmenter struct {
	params *Params
	cfg    *config.Config

	volume *models.Volume
	slices []models.Slice

	// mask is the thresholded normalized volume
	mask    *models.Volume
	edgeMap *models.Volume
	field   *field.Field
	mesh    *mesh.Mesh

	progress ProgressCallback
	metrics  Metrics
}

// NewSegmenter creates a segmenter for the given parameters.
func NewSegmenter(params *Params) *Segmenter {
	cfg := params.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Segmenter{
		params: params,
		cfg:    cfg,
	}
}

// SetProgressCallback installs a callback for relaxation progress.
func (s *Segmenter) SetProgressCallback(callback ProgressCallback) {
	s.progress = callback
}

// SetVolume supplies the input volume directly; Process then skips loading slices.
func (s *Segmenter) SetVolume(vol *models.Volume) {
	s.volume = vol
}

func (s *Segmenter) logf(format string, args ...interface{}) {
	if s.cfg.Output.Verbose {
		fmt.Printf(format, args...)
	}
}

// Process runs the complete segmentation pipeline
func (s *Segmenter) Process() error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Step 1: Load input slices
	if s.volume == nil {
		s.logf("Step 1: Loading input slices...\n")
		vol, slices, err := LoadSlices(s.params.InputDir, s.cfg.Processing.SliceGap)
		if err != nil {
			return fmt.Errorf("failed to load slices: %w", err)
		}
		s.volume, s.slices = vol, slices
		s.logf("Loaded %d slices with dimensions %dx%d\n", vol.Depth, vol.Width, vol.Height)
		s.logf("Inter-slice gap: %.1f mm\n", s.cfg.Processing.SliceGap)
	}

	// Step 2: Preprocess into an edge map
	s.logf("Step 2: Running filter pipeline...\n")
	if err := s.preprocess(); err != nil {
		return fmt.Errorf("failed to preprocess volume: %w", err)
	}

	// Step 3: Build the external force field
	s.logf("Step 3: Building external force field...\n")
	if err := s.buildField(); err != nil {
		return fmt.Errorf("failed to build force field: %w", err)
	}

	// Step 4: Seed the surface
	s.logf("Step 4: Seeding surface...\n")
	if err := s.seed(); err != nil {
		return fmt.Errorf("failed to seed surface: %w", err)
	}
	s.logf("Seed surface has %d vertices and %d faces\n", len(s.mesh.Vertices), len(s.mesh.Faces))

	// Step 5: Relax the surface
	s.logf("Step 5: Relaxing surface...\n")
	if err := s.relax(); err != nil {
		return fmt.Errorf("relaxation failed: %w", err)
	}

	// Step 6: Write outputs
	s.logf("Step 6: Writing outputs...\n")
	if err := s.writeOutputs(); err != nil {
		return err
	}

	// Step 7: Metrics
	s.logf("Step 7: Calculating metrics...\n")
	s.metrics = ComputeMetrics(s.mesh, s.mask)
	return nil
}

// preprocess normalizes the input, thresholds it into the object mask and
// runs the configured filter pipeline to produce the edge map.
func (s *Segmenter) preprocess() error {
	normalized, err := filter.Normalize{}.Apply(s.volume)
	if err != nil {
		return err
	}
	if s.mask, err = (filter.Threshold{Level: s.cfg.Segmentation.IsoLevel}).Apply(normalized); err != nil {
		return err
	}

	chain := make(filter.Chain, 0, len(s.cfg.Processing.Pipeline))
	for _, fc := range s.cfg.Processing.Pipeline {
		params := fc.Params
		if fc.Name == "gaussian" {
			params = withDefault(params, "workers", float64(s.cfg.Processing.NumCores))
		}
		f, err := filter.New(fc.Name, params)
		if err != nil {
			return err
		}
		chain = append(chain, f)
	}
	s.edgeMap, err = chain.Apply(s.volume)
	return err
}

// withDefault returns a copy of params with key set when it is absent.
func withDefault(params map[string]float64, key string, value float64) map[string]float64 {
	out := make(map[string]float64, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	if _, ok := out[key]; !ok {
		out[key] = value
	}
	return out
}

func (s *Segmenter) buildField() error {
	s.field = field.FromPotential(s.edgeMap, s.cfg.Processing.NormalizeField)
	if s.cfg.Processing.GVFIterations == 0 {
		return nil
	}
	gvf, err := field.GradientVectorFlow(s.field, s.cfg.Processing.GVFMu, s.cfg.Processing.GVFIterations)
	if err != nil {
		return err
	}
	s.field = gvf
	return nil
}

func (s *Segmenter) seed() error {
	seed := s.cfg.Seed
	historyLen := s.cfg.Relaxation.HistoryLength

	if seed.MeshFile != "" {
		file, err := os.Open(seed.MeshFile)
		if err != nil {
			return err
		}
		defer file.Close()
		m, err := mesh.ReadText(file, historyLen)
		if err != nil {
			return fmt.Errorf("failed to read seed mesh %s: %w", seed.MeshFile, err)
		}
		s.mesh = m
		return nil
	}

	center := r3.Vec{X: seed.Center[0], Y: seed.Center[1], Z: seed.Center[2]}
	radius := seed.Radius
	if radius == 0 {
		var err error
		center, radius, err = EstimateSeed(s.mask, 0.5)
		if err != nil {
			return err
		}
		radius *= seed.RadiusFactor
		s.logf("Estimated seed sphere at (%.1f, %.1f, %.1f) with radius %.2f\n", center.X, center.Y, center.Z, radius)
	}

	m, err := mesh.Icosphere(center, radius, seed.Subdivisions, historyLen)
	if err != nil {
		return err
	}
	s.mesh = m
	return nil
}

func (s *Segmenter) relax() error {
	var engine *relaxation.Engine
	observer := relaxation.Funcs{
		Coarse: func() {
			if s.progress != nil {
				s.progress(engine.Stats())
			}
		},
	}

	engine, err := relaxation.New(s.field, s.mesh, s.cfg.Relaxation, observer)
	if err != nil {
		return err
	}
	if err := engine.Run(); err != nil {
		if errors.Is(err, field.ErrInvalidFieldSample) {
			return fmt.Errorf("surface left the volume, try a smaller seed or step size: %w", err)
		}
		return err
	}
	stats := engine.Stats()
	s.logf("Relaxation finished after %d passes with %d vertices (%d stable)\n",
		stats.Pass, stats.Vertices, stats.Stable)
	return nil
}

func (s *Segmenter) writeOutputs() error {
	if s.params.OutputFile != "" {
		voxel := r3.Vec{X: s.volume.VoxelSize.X, Y: s.volume.VoxelSize.Y, Z: s.volume.VoxelSize.Z}
		if err := stl.SaveToSTL(s.params.OutputFile, stl.FromMesh(s.mesh, voxel)); err != nil {
			return fmt.Errorf("failed to save STL file: %w", err)
		}
		s.logf("STL model saved to %s\n", s.params.OutputFile)
	}

	if path := s.cfg.Output.MeshFile; path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create mesh file: %w", err)
		}
		if err := s.mesh.WriteText(file); err != nil {
			file.Close()
			return fmt.Errorf("failed to write mesh file: %w", err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("failed to write mesh file: %w", err)
		}
		s.logf("Mesh saved to %s\n", path)
	}
	return nil
}

// GetMetrics returns the metrics of the last Process call
func (s *Segmenter) GetMetrics() Metrics {
	return s.metrics
}

// Mesh returns the fitted surface
func (s *Segmenter) Mesh() *mesh.Mesh {
	return s.mesh
}

// Volume returns the input volume
func (s *Segmenter) Volume() *models.Volume {
	return s.volume
}
