package segmentation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"activesurface/internal/models"
)

// ErrEmptyMask is returned when no voxel reaches the iso level.
var ErrEmptyMask = errors.New("no voxel above the iso level")

// EstimateSeed places a seed sphere inside the object formed by the voxels
// of vol at or above isoLevel. The center is the mask centroid. The radius
// comes from the smallest principal variance of the mask: a solid ball of
// radius R has variance R²/5 along every axis.
func EstimateSeed(vol *models.Volume, isoLevel float64) (center r3.Vec, radius float64, err error) {
	var (
		n   float64
		sum r3.Vec
		// second moments xx, xy, xz, yy, yz, zz
		m2 [6]float64
	)
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				if vol.At(x, y, z) < isoLevel {
					continue
				}
				fx, fy, fz := float64(x), float64(y), float64(z)
				n++
				sum = r3.Add(sum, r3.Vec{X: fx, Y: fy, Z: fz})
				m2[0] += fx * fx
				m2[1] += fx * fy
				m2[2] += fx * fz
				m2[3] += fy * fy
				m2[4] += fy * fz
				m2[5] += fz * fz
			}
		}
	}
	if n == 0 {
		return r3.Vec{}, 0, fmt.Errorf("%w: level %v", ErrEmptyMask, isoLevel)
	}

	center = r3.Scale(1/n, sum)
	c := [3]float64{center.X, center.Y, center.Z}
	cov := mat.NewSymDense(3, nil)
	k := 0
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			cov.SetSym(i, j, m2[k]/n-c[i]*c[j])
			k++
		}
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(cov, false); !ok {
		return center, 0, errors.New("eigen decomposition of mask covariance failed")
	}
	// Eigenvalues are in ascending order.
	smallest := math.Max(eig.Values(nil)[0], 0)
	radius = math.Sqrt(5 * smallest)
	if radius < 1 {
		radius = 1
	}
	return center, radius, nil
}
