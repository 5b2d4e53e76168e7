package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"activesurface/internal/models"
	"activesurface/pkg/mesh"
)

// rampVolume gives every z slice a distinct value
func rampVolume(width, height, depth int) *models.Volume {
	vol := models.NewVolume(width, height, depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(x, y, z, float64(z))
			}
		}
	}
	return vol
}

// TestExtractSlice verifies that slices are correctly extracted from the volume
func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(rampVolume(width, height, depth), nil)

	tests := []struct {
		axis          string
		position      int
		width, height int
	}{
		{"x", 3, depth, height},
		{"y", 2, width, depth},
		{"z", 4, width, height},
	}
	for _, tt := range tests {
		t.Run(tt.axis, func(t *testing.T) {
			img, err := viewer.ExtractSlice(tt.axis, tt.position)
			if err != nil {
				t.Fatalf("Failed to extract %s slice: %v", tt.axis, err)
			}
			if b := img.Bounds(); b.Dx() != tt.width || b.Dy() != tt.height {
				t.Errorf("slice is %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.width, tt.height)
			}
		})
	}

	// z slices are uniform and scaled to the full gray range
	img, _ := viewer.ExtractSlice("z", depth-1)
	r, g, b, _ := img.At(5, 5).RGBA()
	if r>>8 != 255 || g != r || b != r {
		t.Errorf("last z slice pixel = (%d, %d, %d), want white", r>>8, g>>8, b>>8)
	}
	img, _ = viewer.ExtractSlice("z", 0)
	if r, _, _, _ := img.At(5, 5).RGBA(); r != 0 {
		t.Errorf("first z slice pixel = %d, want black", r>>8)
	}
}

// TestInvalidSliceRequests verifies that invalid parameters are rejected
func TestInvalidSliceRequests(t *testing.T) {
	viewer := NewViewer(rampVolume(4, 4, 4), nil)

	tests := []struct {
		name     string
		axis     string
		position int
	}{
		{"bad axis", "w", 0},
		{"negative position", "x", -1},
		{"position past end", "z", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := viewer.ExtractSlice(tt.axis, tt.position); err == nil {
				t.Error("ExtractSlice succeeded, want error")
			}
		})
	}
	if err := viewer.SaveSliceSequence("q", t.TempDir()); err == nil {
		t.Error("SaveSliceSequence accepted an invalid axis")
	}
}

// TestSurfaceCrossSection checks that a sphere shows up as a ring in its middle slice
func TestSurfaceCrossSection(t *testing.T) {
	center := r3.Vec{X: 16, Y: 16, Z: 16}
	sphere, err := mesh.Icosphere(center, 10, 3, 0)
	if err != nil {
		t.Fatalf("Icosphere failed: %v", err)
	}
	viewer := NewViewer(models.NewVolume(32, 32, 32), sphere)

	img, err := viewer.ExtractSlice("z", 16)
	if err != nil {
		t.Fatalf("ExtractSlice failed: %v", err)
	}

	isSurface := func(x, y int) bool {
		r, g, b, _ := img.At(x, y).RGBA()
		return r>>8 == uint32(SurfaceColor.R) && g>>8 == uint32(SurfaceColor.G) && b>>8 == uint32(SurfaceColor.B)
	}
	if isSurface(16, 16) {
		t.Error("center of the sphere is marked as surface")
	}
	// The ring crosses the row through the center near x = 6 and x = 26.
	left, right := false, false
	for x := 4; x <= 8; x++ {
		left = left || isSurface(x, 16)
	}
	for x := 24; x <= 28; x++ {
		right = right || isSurface(x, 16)
	}
	if !left || !right {
		t.Errorf("ring not found on row 16: left %v right %v", left, right)
	}
}

// TestSaveSliceSequence verifies that slice sequences are saved correctly
func TestSaveSliceSequence(t *testing.T) {
	width, height, depth := 6, 5, 4
	viewer := NewViewer(rampVolume(width, height, depth), nil)
	dir := t.TempDir()

	for _, axis := range []string{"x", "y", "z"} {
		axisDir := filepath.Join(dir, axis)
		if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
			t.Fatalf("Failed to save %s slices: %v", axis, err)
		}
	}

	counts := map[string]int{"x": width, "y": height, "z": depth}
	for axis, n := range counts {
		for pos := 0; pos < n; pos++ {
			path := filepath.Join(dir, axis, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
			file, err := os.Open(path)
			if err != nil {
				t.Fatalf("Expected slice file %s: %v", path, err)
			}
			if _, _, err := image.DecodeConfig(file); err != nil {
				t.Errorf("slice %s is not a valid image: %v", path, err)
			}
			file.Close()
		}
	}
}
