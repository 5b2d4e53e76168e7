package models

import (
	"image"
)

// Slice represents a single 2D image slice of a volume with metadata
type Slice struct {
	// Image is the actual slice image data
	Image image.Image

	// Index is the position of this slice in the sequence
	Index int

	// Filename is the original filename of the slice
	Filename string
}

// Volume represents a scalar 3D image
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order (x fastest, then y, then z)
	Data []float64

	// Width is the width of the volume in voxels
	Width int

	// Height is the height of the volume in voxels
	Height int

	// Depth is the depth of the volume in voxels
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// NewVolume allocates a zero-filled volume with unit voxel size.
func NewVolume(width, height, depth int) *Volume {
	v := &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = 1, 1, 1
	return v
}

// Index returns the offset of voxel (x, y, z) in Data.
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// Contains reports whether (x, y, z) lies inside the volume.
func (v *Volume) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Width && y < v.Height && z < v.Depth
}

func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// AtClamped returns the voxel value with coordinates clamped to the volume extent.
func (v *Volume) AtClamped(x, y, z int) float64 {
	x = clamp(x, 0, v.Width-1)
	y = clamp(y, 0, v.Height-1)
	z = clamp(z, 0, v.Depth-1)
	return v.Data[v.Index(x, y, z)]
}

// Like returns a zero-filled volume with the same dimensions and voxel size.
func (v *Volume) Like() *Volume {
	out := NewVolume(v.Width, v.Height, v.Depth)
	out.VoxelSize = v.VoxelSize
	return out
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := v.Like()
	copy(out.Data, v.Data)
	return out
}

func clamp(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}
