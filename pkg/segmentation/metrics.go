package segmentation

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"
	"gonum.org/v1/gonum/stat"

	"activesurface/internal/models"
	"activesurface/pkg/mesh"
)

// Metrics describes the fitted surface and how closely it follows the
// boundary of the thresholded object. Lengths are in voxels.
type Metrics struct {
	Vertices int
	Faces    int

	SurfaceArea    float64
	EnclosedVolume float64

	// MaskVolume is the number of voxels in the thresholded object.
	MaskVolume float64

	// Distances from each vertex to the nearest boundary voxel of the mask.
	MeanDistance float64
	StdDistance  float64
	RMSDistance  float64
	MaxDistance  float64
}

// point is a voxel center stored in the boundary KD-tree
type point struct {
	X, Y, Z float64
}

// Compare implements the kdtree.Comparable interface
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

func (p point) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// points is a collection of voxel centers that satisfies kdtree.Interface
type points []point

func (p points) Index(i int) kdtree.Comparable         { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{points: p, Dim: d}, kdtree.MedianOfRandoms(plane{points: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer for points
type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.points[i].X < p.points[j].X
	case 1:
		return p.points[i].Y < p.points[j].Y
	case 2:
		return p.points[i].Z < p.points[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

// boundaryVoxels returns the mask voxels with a 6-neighbor outside the mask
// and the total mask voxel count.
func boundaryVoxels(mask *models.Volume) (points, int) {
	inside := func(x, y, z int) bool {
		return mask.Contains(x, y, z) && mask.At(x, y, z) >= 0.5
	}
	var boundary points
	count := 0
	for z := 0; z < mask.Depth; z++ {
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				if !inside(x, y, z) {
					continue
				}
				count++
				if !inside(x-1, y, z) || !inside(x+1, y, z) ||
					!inside(x, y-1, z) || !inside(x, y+1, z) ||
					!inside(x, y, z-1) || !inside(x, y, z+1) {
					boundary = append(boundary, point{float64(x), float64(y), float64(z)})
				}
			}
		}
	}
	return boundary, count
}

// ComputeMetrics measures m against the binary mask (voxels >= 0.5 are inside).
// Distance fields stay zero when the mask is empty.
func ComputeMetrics(m *mesh.Mesh, mask *models.Volume) Metrics {
	metrics := Metrics{
		Vertices:       len(m.Vertices),
		Faces:          len(m.Faces),
		SurfaceArea:    m.Area(),
		EnclosedVolume: m.EnclosedVolume(),
	}

	boundary, count := boundaryVoxels(mask)
	metrics.MaskVolume = float64(count)
	if len(boundary) == 0 || len(m.Vertices) == 0 {
		return metrics
	}

	tree := kdtree.New(boundary, false)
	distances := make([]float64, len(m.Vertices))
	squares := make([]float64, len(m.Vertices))
	for i := range m.Vertices {
		p := m.Vertices[i].Position
		_, d2 := tree.Nearest(point{p.X, p.Y, p.Z})
		squares[i] = d2
		distances[i] = math.Sqrt(d2)
	}

	metrics.MeanDistance = stat.Mean(distances, nil)
	if len(distances) > 1 {
		metrics.StdDistance = stat.StdDev(distances, nil)
	}
	metrics.RMSDistance = math.Sqrt(stat.Mean(squares, nil))
	metrics.MaxDistance = floats.Max(distances)
	return metrics
}
