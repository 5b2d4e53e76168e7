// Package field provides the dense 3D vector field that supplies the
// image-derived external force for deformable surface models.
package field

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"activesurface/internal/models"
)

// ErrInvalidFieldSample is returned when a sample is requested outside the field's extent.
var ErrInvalidFieldSample = errors.New("field sample outside extent")

// Field is a dense grid of 3D vectors, one per voxel, stored x fastest.
// It is not modified while a relaxation is running.
type Field struct {
	Width, Height, Depth int
	Data                 []r3.Vec
}

// New allocates a zero field with the given extent.
func New(width, height, depth int) *Field {
	return &Field{
		Width:  width,
		Height: height,
		Depth:  depth,
		Data:   make([]r3.Vec, width*height*depth),
	}
}

// Constant returns a field with every voxel set to v.
func Constant(width, height, depth int, v r3.Vec) *Field {
	f := New(width, height, depth)
	for i := range f.Data {
		f.Data[i] = v
	}
	return f
}

// Contains reports whether voxel (x, y, z) is inside the field.
func (f *Field) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < f.Width && y < f.Height && z < f.Depth
}

func (f *Field) index(x, y, z int) int {
	return z*f.Width*f.Height + y*f.Width + x
}

// Set stores v at voxel (x, y, z). It panics when the voxel is outside the field.
func (f *Field) Set(x, y, z int, v r3.Vec) {
	if !f.Contains(x, y, z) {
		panic(fmt.Sprintf("field: Set(%d, %d, %d) outside %dx%dx%d", x, y, z, f.Width, f.Height, f.Depth))
	}
	f.Data[f.index(x, y, z)] = v
}

// SampleAt returns the vector stored at voxel (x, y, z) without interpolation.
func (f *Field) SampleAt(x, y, z int) (r3.Vec, error) {
	if !f.Contains(x, y, z) {
		return r3.Vec{}, fmt.Errorf("%w: (%d, %d, %d) not in %dx%dx%d",
			ErrInvalidFieldSample, x, y, z, f.Width, f.Height, f.Depth)
	}
	return f.Data[f.index(x, y, z)], nil
}

// SampleNearest rounds p to the nearest voxel and samples it.
func (f *Field) SampleNearest(p r3.Vec) (r3.Vec, error) {
	if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z) {
		return r3.Vec{}, fmt.Errorf("%w: NaN position", ErrInvalidFieldSample)
	}
	return f.SampleAt(int(math.Round(p.X)), int(math.Round(p.Y)), int(math.Round(p.Z)))
}

// MaxNorm returns the largest vector norm stored in the field.
func (f *Field) MaxNorm() float64 {
	max := 0.0
	for _, v := range f.Data {
		if n := r3.Norm(v); n > max {
			max = n
		}
	}
	return max
}

// FromPotential builds a force field as the central-difference gradient of
// a scalar potential such as an edge map. Forces point toward increasing
// potential. When normalize is set the field is rescaled so that its largest
// vector has unit norm.
func FromPotential(vol *models.Volume, normalize bool) *Field {
	f := New(vol.Width, vol.Height, vol.Depth)
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				f.Data[f.index(x, y, z)] = r3.Vec{
					X: centralDifference(vol.AtClamped(x+1, y, z), vol.AtClamped(x-1, y, z), x, vol.Width),
					Y: centralDifference(vol.AtClamped(x, y+1, z), vol.AtClamped(x, y-1, z), y, vol.Height),
					Z: centralDifference(vol.AtClamped(x, y, z+1), vol.AtClamped(x, y, z-1), z, vol.Depth),
				}
			}
		}
	}

	if normalize {
		if max := f.MaxNorm(); max > 0 {
			for i := range f.Data {
				f.Data[i] = r3.Scale(1/max, f.Data[i])
			}
		}
	}
	return f
}

// centralDifference falls back to a one-sided difference on the border.
func centralDifference(next, prev float64, i, n int) float64 {
	if n < 2 {
		return 0
	}
	if i == 0 || i == n-1 {
		return next - prev
	}
	return (next - prev) / 2
}
