package filter

import (
	"errors"
	"math"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/floats"

	"activesurface/internal/models"
)

var errEmptyVolume = errors.New("empty volume")

// Normalize rescales intensities linearly to [0, 1]. A constant volume maps to zero.
type Normalize struct{}

func (Normalize) Name() string { return "normalize" }

func (Normalize) Apply(in *models.Volume) (*models.Volume, error) {
	if len(in.Data) == 0 {
		return nil, errEmptyVolume
	}
	out := in.Like()
	lo, hi := floats.Min(in.Data), floats.Max(in.Data)
	if hi-lo == 0 {
		return out, nil
	}
	scale := 1 / (hi - lo)
	for i, v := range in.Data {
		out.Data[i] = (v - lo) * scale
	}
	return out, nil
}

// Gaussian smooths with a separable gaussian kernel truncated at three
// sigma. Borders are clamped. Slices of each axis pass are spread over
// Workers goroutines; zero uses every CPU.
type Gaussian struct {
	Sigma   float64
	Workers int
}

func (Gaussian) Name() string { return "gaussian" }

func (g Gaussian) Apply(in *models.Volume) (*models.Volume, error) {
	if len(in.Data) == 0 {
		return nil, errEmptyVolume
	}
	kernel := gaussianKernel(g.Sigma)
	workers := g.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	src := in.Clone()
	dst := in.Like()
	for axis := 0; axis < 3; axis++ {
		convolveAxis(src, dst, kernel, axis, workers)
		src, dst = dst, src
	}
	return src, nil
}

// gaussianKernel returns a normalized kernel of radius ceil(3 sigma).
func gaussianKernel(sigma float64) []float64 {
	radius := int(math.Ceil(3 * sigma))
	kernel := make([]float64, 2*radius+1)
	for i := range kernel {
		x := float64(i - radius)
		kernel[i] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

// convolveAxis convolves src along one axis into dst, one z slice per job.
func convolveAxis(src, dst *models.Volume, kernel []float64, axis, workers int) {
	radius := len(kernel) / 2
	jobs := make(chan int, src.Depth)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for z := range jobs {
				for y := 0; y < src.Height; y++ {
					for x := 0; x < src.Width; x++ {
						sum := 0.0
						for k, weight := range kernel {
							d := k - radius
							switch axis {
							case 0:
								sum += weight * src.AtClamped(x+d, y, z)
							case 1:
								sum += weight * src.AtClamped(x, y+d, z)
							default:
								sum += weight * src.AtClamped(x, y, z+d)
							}
						}
						dst.Set(x, y, z, sum)
					}
				}
			}
		}()
	}

	for z := 0; z < src.Depth; z++ {
		jobs <- z
	}
	close(jobs)
	wg.Wait()
}

// GradientMagnitude computes the central-difference gradient norm, scaled by the voxel size.
type GradientMagnitude struct{}

func (GradientMagnitude) Name() string { return "gradmag" }

func (GradientMagnitude) Apply(in *models.Volume) (*models.Volume, error) {
	if len(in.Data) == 0 {
		return nil, errEmptyVolume
	}
	out := in.Like()
	sx, sy, sz := voxelSpacing(in)
	for z := 0; z < in.Depth; z++ {
		for y := 0; y < in.Height; y++ {
			for x := 0; x < in.Width; x++ {
				gx := (in.AtClamped(x+1, y, z) - in.AtClamped(x-1, y, z)) / (2 * sx)
				gy := (in.AtClamped(x, y+1, z) - in.AtClamped(x, y-1, z)) / (2 * sy)
				gz := (in.AtClamped(x, y, z+1) - in.AtClamped(x, y, z-1)) / (2 * sz)
				out.Set(x, y, z, math.Sqrt(gx*gx+gy*gy+gz*gz))
			}
		}
	}
	return out, nil
}

func voxelSpacing(v *models.Volume) (x, y, z float64) {
	x, y, z = v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z
	if x <= 0 {
		x = 1
	}
	if y <= 0 {
		y = 1
	}
	if z <= 0 {
		z = 1
	}
	return x, y, z
}

// Threshold produces a binary mask: 1 where the intensity is at least Level, else 0.
type Threshold struct {
	Level float64
}

func (Threshold) Name() string { return "threshold" }

func (t Threshold) Apply(in *models.Volume) (*models.Volume, error) {
	out := in.Like()
	for i, v := range in.Data {
		if v >= t.Level {
			out.Data[i] = 1
		}
	}
	return out, nil
}
