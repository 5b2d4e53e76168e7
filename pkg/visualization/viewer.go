package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/spatial/r3"

	"activesurface/internal/models"
	"activesurface/pkg/mesh"
)

// SurfaceColor is the color of the surface cross-section drawn over slices.
var SurfaceColor = color.RGBA{R: 255, G: 40, B: 40, A: 255}

// Viewer extracts 2D slices from a volume and draws the cross-section of a
// fitted surface into them.
type Viewer struct {
	volume *models.Volume

	// surface is drawn over every slice when non-nil
	surface *mesh.Mesh
}

// NewViewer creates a viewer. surface may be nil.
func NewViewer(volume *models.Volume, surface *mesh.Mesh) *Viewer {
	return &Viewer{
		volume:  volume,
		surface: surface,
	}
}

// axisIndex maps an axis name to 0, 1 or 2 and returns the slice count along it
func (v *Viewer) axisIndex(axis string) (int, int, error) {
	switch axis {
	case "x", "X":
		return 0, v.volume.Width, nil
	case "y", "Y":
		return 1, v.volume.Height, nil
	case "z", "Z":
		return 2, v.volume.Depth, nil
	}
	return 0, 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
}

// project maps a volume point to image coordinates for slices along axis.
// x slices show (z, y), y slices show (x, z) and z slices show (x, y).
func project(p r3.Vec, axis int) (float64, float64) {
	switch axis {
	case 0:
		return p.Z, p.Y
	case 1:
		return p.X, p.Z
	default:
		return p.X, p.Y
	}
}

func component(p r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return p.X
	case 1:
		return p.Y
	default:
		return p.Z
	}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis
// with the surface cross-section drawn in SurfaceColor.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	ax, n, err := v.axisIndex(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, n, axis)
	}

	lo, hi := minMax(v.volume.Data)
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}

	w, h := project(r3.Vec{X: float64(v.volume.Width), Y: float64(v.volume.Height), Z: float64(v.volume.Depth)}, ax)
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for j := 0; j < int(h); j++ {
		for i := 0; i < int(w); i++ {
			var x, y, z int
			switch ax {
			case 0:
				x, y, z = position, j, i
			case 1:
				x, y, z = i, position, j
			default:
				x, y, z = i, j, position
			}
			g := uint8(math.Round((v.volume.At(x, y, z) - lo) * scale))
			img.SetRGBA(i, j, color.RGBA{R: g, G: g, B: g, A: 255})
		}
	}

	if v.surface != nil {
		v.drawCrossSection(img, ax, float64(position))
	}
	return img, nil
}

// drawCrossSection draws the intersection of every face with the plane
// component(p, axis) == level.
func (v *Viewer) drawCrossSection(img *image.RGBA, axis int, level float64) {
	for _, f := range v.surface.Faces {
		var pts []r3.Vec
		for k := 0; k < 3; k++ {
			a := v.surface.Vertices[f[k]].Position
			b := v.surface.Vertices[f[(k+1)%3]].Position
			da, db := component(a, axis)-level, component(b, axis)-level
			if (da < 0) == (db < 0) || da == db {
				continue
			}
			t := da / (da - db)
			pts = append(pts, r3.Add(a, r3.Scale(t, r3.Sub(b, a))))
		}
		if len(pts) == 2 {
			x0, y0 := project(pts[0], axis)
			x1, y1 := project(pts[1], axis)
			drawLine(img, x0, y0, x1, y1, SurfaceColor)
		}
	}
}

// drawLine rasterizes a segment by sampling it at unit steps.
func drawLine(img *image.RGBA, x0, y0, x1, y1 float64, c color.RGBA) {
	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
	if steps == 0 {
		steps = 1
	}
	bounds := img.Bounds()
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		p := image.Pt(int(math.Round(x0+t*(x1-x0))), int(math.Round(y0+t*(y1-y0))))
		if p.In(bounds) {
			img.SetRGBA(p.X, p.Y, c)
		}
	}
}

func minMax(data []float64) (lo, hi float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi = data[0], data[0]
	for _, v := range data[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	_, n, err := v.axisIndex(axis)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}
