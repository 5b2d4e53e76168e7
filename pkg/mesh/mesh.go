// Package mesh implements the deformable triangle surface used by the
// active surface model: per-vertex state, 1-ring adjacency, normals and
// the subdivide/melt remeshing operators.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

var (
	// ErrDegenerateGeometry is returned when a vector the algorithm has to
	// normalize (a vertex normal) has zero length.
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrNonManifold is returned when the triangulation is not a closed 2-manifold.
	ErrNonManifold = errors.New("mesh is not a closed 2-manifold")

	// ErrInvalidFace is returned when a face references a missing vertex or repeats one.
	ErrInvalidFace = errors.New("invalid face")
)

// DefaultHistoryLength is the number of past positions kept per vertex.
const DefaultHistoryLength = 10

// Vertex holds the state of one surface node.
type Vertex struct {
	Position r3.Vec

	// Force is reset at the start of each iteration and written once by the engine.
	Force r3.Vec

	// Normal is the unit normal estimated from incident faces.
	Normal r3.Vec

	// Stability counts consecutive iterations with small displacement.
	Stability int

	// Stable is set once Stability exceeds the engine's threshold and stays
	// set until ResetStability.
	Stable bool

	History History
}

// Face is a triangle given by three vertex indices, counter-clockwise when
// seen from outside the surface.
type Face [3]int

// Mesh is an indexed triangle surface. Adjacency is derived from Faces and
// rebuilt whenever the topology changes.
type Mesh struct {
	Vertices []Vertex
	Faces    []Face

	historyLen int
	adjacency  [][]int
}

// New builds a mesh from vertex positions and faces.
func New(positions []r3.Vec, faces []Face, historyLen int) (*Mesh, error) {
	if historyLen <= 0 {
		historyLen = DefaultHistoryLength
	}
	m := &Mesh{
		Vertices:   make([]Vertex, len(positions)),
		Faces:      make([]Face, len(faces)),
		historyLen: historyLen,
	}
	for i, p := range positions {
		m.Vertices[i] = Vertex{Position: p, History: NewHistory(historyLen)}
	}
	for i, f := range faces {
		for k := 0; k < 3; k++ {
			if f[k] < 0 || f[k] >= len(positions) {
				return nil, fmt.Errorf("%w: face %d references vertex %d of %d", ErrInvalidFace, i, f[k], len(positions))
			}
		}
		if f[0] == f[1] || f[1] == f[2] || f[2] == f[0] {
			return nil, fmt.Errorf("%w: face %d repeats a vertex %v", ErrInvalidFace, i, f)
		}
		m.Faces[i] = f
	}
	m.rebuildAdjacency()
	return m, nil
}

// HistoryLength returns the per-vertex history capacity.
func (m *Mesh) HistoryLength() int { return m.historyLen }

// SetHistoryLength replaces every vertex history with an empty one of capacity n.
func (m *Mesh) SetHistoryLength(n int) {
	if n <= 0 {
		n = DefaultHistoryLength
	}
	m.historyLen = n
	for i := range m.Vertices {
		m.Vertices[i].History = NewHistory(n)
	}
}

// Neighbors returns the 1-ring of vertex i in no particular order.
// The returned slice is owned by the mesh and must not be modified.
func (m *Mesh) Neighbors(i int) []int {
	return m.adjacency[i]
}

// Centroid1Ring returns the mean position of the neighbors of vertex i
// using the supplied positions, or false when i has no neighbors.
func (m *Mesh) Centroid1Ring(i int, positions []r3.Vec) (r3.Vec, bool) {
	nb := m.adjacency[i]
	if len(nb) == 0 {
		return r3.Vec{}, false
	}
	var sum r3.Vec
	for _, j := range nb {
		sum = r3.Add(sum, positions[j])
	}
	return r3.Scale(1/float64(len(nb)), sum), true
}

// Positions copies the current vertex positions.
func (m *Mesh) Positions() []r3.Vec {
	out := make([]r3.Vec, len(m.Vertices))
	for i := range m.Vertices {
		out[i] = m.Vertices[i].Position
	}
	return out
}

func (m *Mesh) rebuildAdjacency() {
	adj := make([][]int, len(m.Vertices))
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			a, b := f[k], f[(k+1)%3]
			adj[a] = appendUnique(adj[a], b)
			adj[b] = appendUnique(adj[b], a)
		}
	}
	m.adjacency = adj
}

func appendUnique(s []int, v int) []int {
	for _, existing := range s {
		if existing == v {
			return s
		}
	}
	return append(s, v)
}

// RecomputeNormals sets every vertex normal to the normalized sum of its
// incident face normals weighted by face area. Vertices whose sum vanishes
// keep a zero normal and an ErrDegenerateGeometry is returned after all
// other normals have been updated.
func (m *Mesh) RecomputeNormals() error {
	acc := make([]r3.Vec, len(m.Vertices))
	for _, f := range m.Faces {
		n := m.faceCross(f)
		for k := 0; k < 3; k++ {
			acc[f[k]] = r3.Add(acc[f[k]], n)
		}
	}

	degenerate := -1
	for i := range m.Vertices {
		norm := r3.Norm(acc[i])
		if norm < 1e-12 || math.IsNaN(norm) {
			m.Vertices[i].Normal = r3.Vec{}
			if degenerate < 0 {
				degenerate = i
			}
			continue
		}
		m.Vertices[i].Normal = r3.Scale(1/norm, acc[i])
	}
	if degenerate >= 0 {
		return fmt.Errorf("%w: zero normal at vertex %d", ErrDegenerateGeometry, degenerate)
	}
	return nil
}

// faceCross returns the cross product of the face edges, twice the area-weighted normal.
func (m *Mesh) faceCross(f Face) r3.Vec {
	a := m.Vertices[f[0]].Position
	b := m.Vertices[f[1]].Position
	c := m.Vertices[f[2]].Position
	return r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
}

// ResetStability clears the convergence state of every vertex.
func (m *Mesh) ResetStability() {
	for i := range m.Vertices {
		v := &m.Vertices[i]
		v.Stable = false
		v.Stability = 0
		v.History.Reset()
	}
}

// StableCount returns the number of vertices marked stable.
func (m *Mesh) StableCount() int {
	n := 0
	for i := range m.Vertices {
		if m.Vertices[i].Stable {
			n++
		}
	}
	return n
}

// Area returns the total surface area.
func (m *Mesh) Area() float64 {
	area := 0.0
	for _, f := range m.Faces {
		area += r3.Norm(m.faceCross(f)) / 2
	}
	return area
}

// EnclosedVolume returns the signed volume bounded by the surface. It is
// positive for a closed surface with outward-facing winding.
func (m *Mesh) EnclosedVolume() float64 {
	vol := 0.0
	for _, f := range m.Faces {
		a := m.Vertices[f[0]].Position
		b := m.Vertices[f[1]].Position
		c := m.Vertices[f[2]].Position
		vol += r3.Dot(a, r3.Cross(b, c)) / 6
	}
	return vol
}

// Centroid returns the mean vertex position.
func (m *Mesh) Centroid() r3.Vec {
	if len(m.Vertices) == 0 {
		return r3.Vec{}
	}
	var sum r3.Vec
	for i := range m.Vertices {
		sum = r3.Add(sum, m.Vertices[i].Position)
	}
	return r3.Scale(1/float64(len(m.Vertices)), sum)
}

// EdgeLengthStats returns the minimum, mean and maximum edge length.
func (m *Mesh) EdgeLengthStats() (min, mean, max float64) {
	min = math.Inf(1)
	n := 0
	m.forEachEdge(func(a, b int) {
		l := m.edgeLength(a, b)
		min = math.Min(min, l)
		max = math.Max(max, l)
		mean += l
		n++
	})
	if n == 0 {
		return 0, 0, 0
	}
	return min, mean / float64(n), max
}

func (m *Mesh) edgeLength(a, b int) float64 {
	return r3.Norm(r3.Sub(m.Vertices[a].Position, m.Vertices[b].Position))
}

// forEachEdge calls fn once per undirected edge.
func (m *Mesh) forEachEdge(fn func(a, b int)) {
	for a, nb := range m.adjacency {
		for _, b := range nb {
			if a < b {
				fn(a, b)
			}
		}
	}
}

type edgeKey struct{ a, b int }

func makeEdge(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// CheckManifold verifies that every edge is shared by exactly two faces
// traversing it in opposite directions and that every vertex is used.
func (m *Mesh) CheckManifold() error {
	directed := make(map[edgeKey]int, 3*len(m.Faces))
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			directed[edgeKey{f[k], f[(k+1)%3]}]++
		}
	}
	for e, n := range directed {
		if n != 1 {
			return fmt.Errorf("%w: edge %d->%d used by %d faces in the same direction", ErrNonManifold, e.a, e.b, n)
		}
		if directed[edgeKey{e.b, e.a}] != 1 {
			return fmt.Errorf("%w: boundary edge %d-%d", ErrNonManifold, e.a, e.b)
		}
	}
	for i, nb := range m.adjacency {
		if len(nb) == 0 {
			return fmt.Errorf("%w: vertex %d is not used by any face", ErrNonManifold, i)
		}
	}
	return nil
}
