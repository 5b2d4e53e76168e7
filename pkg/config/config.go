// Package config provides configuration loading and management for activesurface.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"activesurface/pkg/field"
	"activesurface/pkg/relaxation"
)

// FilterConfig names one step of the preprocessing pipeline and its parameters
type FilterConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params,omitempty"`
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores the filters may use
		NumCores int `yaml:"numCores"`

		// SliceGap represents the physical distance between consecutive slices in mm
		SliceGap float64 `yaml:"sliceGap"`

		// Pipeline is the ordered list of filters that turns the input volume
		// into the edge map whose gradient is the external force
		Pipeline []FilterConfig `yaml:"pipeline"`

		// NormalizeField rescales the force field so its strongest vector has unit length
		NormalizeField bool `yaml:"normalizeField"`

		// GVFIterations is the number of gradient vector flow diffusion steps
		// applied to the force field; zero disables the diffusion
		GVFIterations int `yaml:"gvfIterations"`

		// GVFMu is the diffusion weight of the gradient vector flow
		GVFMu float64 `yaml:"gvfMu"`
	} `yaml:"processing"`

	// Seed surface parameters
	Seed struct {
		// MeshFile loads the initial surface from a text mesh instead of a sphere
		MeshFile string `yaml:"meshFile"`

		// Center and Radius place the seed sphere; a zero radius estimates both
		// from the thresholded volume
		Center [3]float64 `yaml:"center"`
		Radius float64    `yaml:"radius"`

		// Subdivisions is the icosphere refinement level
		Subdivisions int `yaml:"subdivisions"`

		// RadiusFactor shrinks the estimated radius so the seed starts inside the object
		RadiusFactor float64 `yaml:"radiusFactor"`
	} `yaml:"seed"`

	// Segmentation parameters
	Segmentation struct {
		// IsoLevel separates object from background in the normalized volume
		IsoLevel float64 `yaml:"isoLevel"`
	} `yaml:"segmentation"`

	// Relaxation holds the deformable model constants
	Relaxation relaxation.Params `yaml:"relaxation"`

	// Output parameters
	Output struct {
		// MeshFile receives the text dump of the fitted mesh; empty disables it
		MeshFile string `yaml:"meshFile"`

		// SaveSlices writes the volume slices with the fitted surface drawn in
		SaveSlices bool `yaml:"saveSlices"`

		// SlicesDir is where slice images are written
		SlicesDir string `yaml:"slicesDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU()
	cfg.Processing.SliceGap = 1.0
	cfg.Processing.Pipeline = []FilterConfig{
		{Name: "normalize"},
		{Name: "gaussian", Params: map[string]float64{"sigma": 1.5}},
		{Name: "gradmag"},
		{Name: "normalize"},
	}
	cfg.Processing.NormalizeField = true
	cfg.Processing.GVFIterations = 100
	cfg.Processing.GVFMu = 0.08

	// Set default seed parameters
	cfg.Seed.Subdivisions = 3
	cfg.Seed.RadiusFactor = 0.6

	cfg.Segmentation.IsoLevel = 0.5

	cfg.Relaxation = relaxation.DefaultParams()

	// Set default output parameters
	cfg.Output.MeshFile = ""
	cfg.Output.SaveSlices = false
	cfg.Output.SlicesDir = "surface_slices"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the values that cannot be corrected later in the pipeline
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if c.Processing.SliceGap <= 0 {
		return fmt.Errorf("sliceGap must be positive, got %v", c.Processing.SliceGap)
	}
	if c.Processing.GVFIterations < 0 {
		return fmt.Errorf("gvfIterations must not be negative, got %d", c.Processing.GVFIterations)
	}
	if c.Processing.GVFIterations > 0 && (c.Processing.GVFMu <= 0 || c.Processing.GVFMu > field.MaxGVFMu) {
		return fmt.Errorf("gvfMu must be in (0, %v], got %v", field.MaxGVFMu, c.Processing.GVFMu)
	}
	if c.Seed.RadiusFactor <= 0 {
		return fmt.Errorf("seed radiusFactor must be positive, got %v", c.Seed.RadiusFactor)
	}
	if c.Seed.Radius < 0 {
		return fmt.Errorf("seed radius must not be negative, got %v", c.Seed.Radius)
	}
	if c.Seed.Subdivisions < 0 || c.Seed.Subdivisions > 6 {
		return fmt.Errorf("seed subdivisions must be in [0, 6], got %d", c.Seed.Subdivisions)
	}
	for i, f := range c.Processing.Pipeline {
		if f.Name == "" {
			return fmt.Errorf("pipeline step %d has no filter name", i)
		}
	}
	return c.Relaxation.Validate()
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
