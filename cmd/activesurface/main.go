package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"activesurface/pkg/config"
	"activesurface/pkg/relaxation"
	"activesurface/pkg/segmentation"
	"activesurface/pkg/visualization"
)

func main() {
	// Parse command line arguments
	inputDir := flag.String("input", "", "Directory containing 2D image slices")
	outputFile := flag.String("output", "surface.stl", "Output STL filename")
	configFile := flag.String("config", "", "YAML configuration file (defaults are used when empty or missing)")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this file and exit")
	meshFile := flag.String("mesh", "", "Also dump the fitted mesh as text to this file")
	seedMesh := flag.String("seed-mesh", "", "Text mesh used as the initial surface instead of a sphere")
	seedX := flag.Float64("seed-x", 0, "Seed sphere center x in voxels")
	seedY := flag.Float64("seed-y", 0, "Seed sphere center y in voxels")
	seedZ := flag.Float64("seed-z", 0, "Seed sphere center z in voxels")
	seedRadius := flag.Float64("seed-radius", 0, "Seed sphere radius in voxels (0 estimates the seed from the volume)")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config, all available)")
	sliceGap := flag.Float64("gap", 0, "Inter-slice gap in mm (default: from config)")
	extractSlices := flag.Bool("extract-slices", false, "Save volume slices with the fitted surface drawn along all axes")
	slicesDir := flag.String("slices-dir", "", "Directory to save extracted slices")
	quiet := flag.Bool("quiet", false, "Only print errors and the final summary")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	// Validate inputs
	if *inputDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line flags override the configuration file
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *sliceGap > 0 {
		cfg.Processing.SliceGap = *sliceGap
	}
	if *meshFile != "" {
		cfg.Output.MeshFile = *meshFile
	}
	if *seedMesh != "" {
		cfg.Seed.MeshFile = *seedMesh
	}
	if *seedRadius > 0 {
		cfg.Seed.Center = [3]float64{*seedX, *seedY, *seedZ}
		cfg.Seed.Radius = *seedRadius
	}
	if *extractSlices {
		cfg.Output.SaveSlices = true
	}
	if *slicesDir != "" {
		cfg.Output.SlicesDir = *slicesDir
	}
	if *quiet {
		cfg.Output.Verbose = false
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("ACTIVE SURFACE SEGMENTATION OF 3D IMAGE STACKS")
	fmt.Println("================================")

	params := &segmentation.Params{
		InputDir:   *inputDir,
		OutputFile: *outputFile,
		Config:     cfg,
	}
	segmenter := segmentation.NewSegmenter(params)
	if cfg.Output.Verbose {
		segmenter.SetProgressCallback(func(stats relaxation.Stats) {
			fmt.Printf("\rPass %d scale %.2f iteration %4d: %d/%d vertices stable (%.0f%%)   ",
				stats.Pass, stats.Scale, stats.Iteration, stats.Stable, stats.Vertices, 100*stats.StableRatio())
		})
	}

	fmt.Println("Starting surface relaxation...")
	startTime := time.Now()
	if err := segmenter.Process(); err != nil {
		log.Fatalf("\nSegmentation failed: %v", err)
	}
	processingTime := time.Since(startTime)

	metrics := segmenter.GetMetrics()
	fmt.Printf("\nSegmentation completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output surface saved to: %s\n\n", *outputFile)

	fmt.Printf("Surface Metrics (voxel units):\n")
	fmt.Printf("==============================\n")
	fmt.Printf("Vertices / Faces: %d / %d\n", metrics.Vertices, metrics.Faces)
	fmt.Printf("Surface area: %.2f\n", metrics.SurfaceArea)
	fmt.Printf("Enclosed volume: %.2f (thresholded object: %.0f voxels)\n", metrics.EnclosedVolume, metrics.MaskVolume)
	fmt.Printf("Distance to object boundary: mean %.3f, std %.3f, rms %.3f, max %.3f\n",
		metrics.MeanDistance, metrics.StdDistance, metrics.RMSDistance, metrics.MaxDistance)

	// Extract and save slices if requested
	if cfg.Output.SaveSlices {
		fmt.Println("\nExtracting slices along all axes...")
		viewer := visualization.NewViewer(segmenter.Volume(), segmenter.Mesh())

		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.SlicesDir, axis)
			fmt.Printf("Saving %s-axis slices to: %s\n", axis, axisDir)

			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				log.Printf("Warning: Failed to save %s-axis slices: %v", axis, err)
			}
		}

		fmt.Println("Slice extraction completed!")
	}
}
