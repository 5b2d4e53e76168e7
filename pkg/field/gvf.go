package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// MaxGVFMu is the largest diffusion weight for which the explicit update
// stays stable in 3D with edge weights up to one.
const MaxGVFMu = 1.0 / 12.0

// GradientVectorFlow diffuses f into homogeneous regions so that surfaces
// far from any edge still feel a pull toward it. Each iteration applies
//
//	v += mu * laplacian(v) - |f|^2 * (v - f)
//
// with replicated borders, starting from v = f. Vectors where f is strong
// stay close to f. |f|^2 is capped at one, so f should be normalized.
func GradientVectorFlow(f *Field, mu float64, iterations int) (*Field, error) {
	if mu <= 0 || mu > MaxGVFMu {
		return nil, fmt.Errorf("gvf mu must be in (0, %v], got %v", MaxGVFMu, mu)
	}
	if iterations < 0 {
		return nil, fmt.Errorf("gvf iterations must not be negative, got %d", iterations)
	}

	weight := make([]float64, len(f.Data))
	for i, v := range f.Data {
		weight[i] = math.Min(r3.Norm2(v), 1)
	}

	cur := &Field{Width: f.Width, Height: f.Height, Depth: f.Depth, Data: append([]r3.Vec(nil), f.Data...)}
	next := New(f.Width, f.Height, f.Depth)
	at := func(x, y, z int) r3.Vec {
		x = clampIndex(x, f.Width)
		y = clampIndex(y, f.Height)
		z = clampIndex(z, f.Depth)
		return cur.Data[cur.index(x, y, z)]
	}

	for it := 0; it < iterations; it++ {
		for z := 0; z < f.Depth; z++ {
			for y := 0; y < f.Height; y++ {
				for x := 0; x < f.Width; x++ {
					i := cur.index(x, y, z)
					v := cur.Data[i]
					lap := r3.Add(r3.Add(at(x-1, y, z), at(x+1, y, z)),
						r3.Add(r3.Add(at(x, y-1, z), at(x, y+1, z)),
							r3.Add(at(x, y, z-1), at(x, y, z+1))))
					lap = r3.Sub(lap, r3.Scale(6, v))
					next.Data[i] = r3.Sub(r3.Add(v, r3.Scale(mu, lap)), r3.Scale(weight[i], r3.Sub(v, f.Data[i])))
				}
			}
		}
		cur, next = next, cur
	}
	return cur, nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
