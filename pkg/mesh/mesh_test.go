package mesh

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// octahedron returns a closed unit octahedron with outward winding
func octahedron(t *testing.T) ([]r3.Vec, []Face) {
	t.Helper()
	positions := []r3.Vec{
		{X: 1}, {Y: 1}, {Z: 1}, {X: -1}, {Y: -1}, {Z: -1},
	}
	faces := []Face{
		{0, 1, 2}, {1, 3, 2}, {3, 4, 2}, {4, 0, 2},
		{1, 0, 5}, {3, 1, 5}, {4, 3, 5}, {0, 4, 5},
	}
	return positions, faces
}

func mustNew(t *testing.T, positions []r3.Vec, faces []Face) *Mesh {
	t.Helper()
	m, err := New(positions, faces, DefaultHistoryLength)
	if err != nil {
		t.Fatalf("Failed to build mesh: %v", err)
	}
	return m
}

func TestNewRejectsInvalidFaces(t *testing.T) {
	positions := []r3.Vec{{}, {X: 1}, {Y: 1}}
	tests := []struct {
		name string
		face Face
	}{
		{"missing vertex", Face{0, 1, 3}},
		{"negative index", Face{-1, 1, 2}},
		{"repeated vertex", Face{0, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(positions, []Face{tt.face}, 0); !errors.Is(err, ErrInvalidFace) {
				t.Errorf("expected ErrInvalidFace, got %v", err)
			}
		})
	}
}

func TestOctahedronTopology(t *testing.T) {
	positions, faces := octahedron(t)
	m := mustNew(t, positions, faces)

	if err := m.CheckManifold(); err != nil {
		t.Fatalf("octahedron should be manifold: %v", err)
	}
	for i := range m.Vertices {
		if n := len(m.Neighbors(i)); n != 4 {
			t.Errorf("vertex %d has %d neighbors, want 4", i, n)
		}
	}
	if vol := m.EnclosedVolume(); math.Abs(vol-4.0/3.0) > 1e-12 {
		t.Errorf("enclosed volume = %v, want 4/3", vol)
	}
	c, ok := m.Centroid1Ring(0, m.Positions())
	if !ok || r3.Norm(c) > 1e-12 {
		t.Errorf("1-ring centroid of +x = %v, want origin", c)
	}
}

func TestRecomputeNormalsIdempotent(t *testing.T) {
	m, err := Icosphere(r3.Vec{X: 5, Y: 5, Z: 5}, 3, 2, 0)
	if err != nil {
		t.Fatalf("Icosphere failed: %v", err)
	}

	if err := m.RecomputeNormals(); err != nil {
		t.Fatalf("RecomputeNormals failed: %v", err)
	}
	first := make([]r3.Vec, len(m.Vertices))
	for i := range m.Vertices {
		first[i] = m.Vertices[i].Normal
	}
	if err := m.RecomputeNormals(); err != nil {
		t.Fatalf("RecomputeNormals failed: %v", err)
	}
	for i := range m.Vertices {
		if m.Vertices[i].Normal != first[i] {
			t.Fatalf("normal %d changed from %v to %v", i, first[i], m.Vertices[i].Normal)
		}
		if math.Abs(r3.Norm(first[i])-1) > 1e-9 {
			t.Errorf("normal %d is not unit length: %v", i, first[i])
		}
		// Sphere normals point away from the center.
		radial := r3.Unit(r3.Sub(m.Vertices[i].Position, r3.Vec{X: 5, Y: 5, Z: 5}))
		if r3.Dot(radial, first[i]) < 0.95 {
			t.Errorf("normal %d not radial: dot = %v", i, r3.Dot(radial, first[i]))
		}
	}
}

func TestRecomputeNormalsDegenerate(t *testing.T) {
	// Two coincident triangles with opposite winding cancel out.
	positions := []r3.Vec{{}, {X: 1}, {Y: 1}}
	m := mustNew(t, positions, []Face{{0, 1, 2}, {0, 2, 1}})

	if err := m.RecomputeNormals(); !errors.Is(err, ErrDegenerateGeometry) {
		t.Errorf("expected ErrDegenerateGeometry, got %v", err)
	}
}

func TestIcosphere(t *testing.T) {
	tests := []struct {
		subdivisions int
		vertices     int
		faces        int
	}{
		{0, 12, 20},
		{1, 42, 80},
		{2, 162, 320},
	}
	for _, tt := range tests {
		m, err := Icosphere(r3.Vec{}, 2, tt.subdivisions, 0)
		if err != nil {
			t.Fatalf("Icosphere(%d) failed: %v", tt.subdivisions, err)
		}
		if len(m.Vertices) != tt.vertices || len(m.Faces) != tt.faces {
			t.Errorf("Icosphere(%d) has %d vertices and %d faces, want %d and %d",
				tt.subdivisions, len(m.Vertices), len(m.Faces), tt.vertices, tt.faces)
		}
		if err := m.CheckManifold(); err != nil {
			t.Errorf("Icosphere(%d) not manifold: %v", tt.subdivisions, err)
		}
		if m.EnclosedVolume() <= 0 {
			t.Errorf("Icosphere(%d) has inward winding", tt.subdivisions)
		}
	}

	m, _ := Icosphere(r3.Vec{}, 2, 3, 0)
	if area := m.Area(); math.Abs(area-4*math.Pi*4)/(4*math.Pi*4) > 0.02 {
		t.Errorf("area of refined sphere = %v, want about %v", area, 16*math.Pi)
	}
}

// TestSubdivideSingleEdge splits the only edge above the threshold
func TestSubdivideSingleEdge(t *testing.T) {
	positions := []r3.Vec{
		{X: -1}, {X: 1}, {Y: 0.8}, {Y: -0.8},
	}
	m := mustNew(t, positions, []Face{{0, 1, 2}, {1, 0, 3}})
	areaBefore := m.Area()

	if n := m.Subdivide(1.5); n != 1 {
		t.Fatalf("Subdivide split %d edges, want 1", n)
	}
	if len(m.Vertices) != 5 {
		t.Errorf("vertex count = %d, want 5", len(m.Vertices))
	}
	if len(m.Faces) != 4 {
		t.Errorf("face count = %d, want 4", len(m.Faces))
	}
	if math.Abs(m.Area()-areaBefore) > 1e-12 {
		t.Errorf("area changed from %v to %v", areaBefore, m.Area())
	}
	if mid := m.Vertices[4].Position; r3.Norm(mid) > 1e-12 {
		t.Errorf("new vertex at %v, want the edge midpoint", mid)
	}
	if n := len(m.Neighbors(4)); n != 4 {
		t.Errorf("new vertex has %d neighbors, want 4", n)
	}
	if n := m.Subdivide(1.5); n != 0 {
		t.Errorf("second Subdivide split %d edges, want 0", n)
	}
}

func TestSubdivideClosedMesh(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		split     int
	}{
		{"all edges", 1.0, 12},
		{"no edges", 2.0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			positions, faces := octahedron(t)
			m := mustNew(t, positions, faces)
			area := m.Area()
			if n := m.Subdivide(tt.threshold); n != tt.split {
				t.Errorf("Subdivide split %d edges, want %d", n, tt.split)
			}
			if err := m.CheckManifold(); err != nil {
				t.Errorf("mesh not manifold after subdivide: %v", err)
			}
			if math.Abs(m.Area()-area) > 1e-9 {
				t.Errorf("area changed from %v to %v", area, m.Area())
			}
		})
	}

	// Stretch one vertex so only some faces see two or three split edges.
	positions, faces := octahedron(t)
	positions[0] = r3.Vec{X: 3}
	m := mustNew(t, positions, faces)
	area := m.Area()
	m.Subdivide(2.0)
	if err := m.CheckManifold(); err != nil {
		t.Errorf("mesh not manifold after partial subdivide: %v", err)
	}
	if math.Abs(m.Area()-area) > 1e-9 {
		t.Errorf("area changed from %v to %v", area, m.Area())
	}
}

// TestMeltSingleEdge collapses the only edge below the threshold
func TestMeltSingleEdge(t *testing.T) {
	positions, faces := octahedron(t)
	// Insert a vertex just inside face {0, 1, 2} next to vertex 0.
	centroid := r3.Scale(1.0/3.0, r3.Add(positions[0], r3.Add(positions[1], positions[2])))
	p := r3.Add(positions[0], r3.Scale(0.05, r3.Sub(centroid, positions[0])))
	positions = append(positions, p)
	faces[0] = Face{0, 1, 6}
	faces = append(faces, Face{1, 2, 6}, Face{2, 0, 6})

	m := mustNew(t, positions, faces)
	if err := m.CheckManifold(); err != nil {
		t.Fatalf("input mesh not manifold: %v", err)
	}
	short := r3.Norm(r3.Sub(p, positions[0]))

	if n := m.Melt(2 * short); n != 1 {
		t.Fatalf("Melt removed %d vertices, want 1", n)
	}
	if len(m.Vertices) != 6 || len(m.Faces) != 8 {
		t.Errorf("got %d vertices and %d faces, want 6 and 8", len(m.Vertices), len(m.Faces))
	}
	if err := m.CheckManifold(); err != nil {
		t.Errorf("mesh not manifold after melt: %v", err)
	}
}

func TestMeltKeepsManifold(t *testing.T) {
	m, err := Icosphere(r3.Vec{}, 1, 3, 0)
	if err != nil {
		t.Fatalf("Icosphere failed: %v", err)
	}
	_, mean, _ := m.EdgeLengthStats()

	removed := m.Melt(1.2 * mean)
	if removed == 0 {
		t.Fatal("Melt removed no vertices")
	}
	if err := m.CheckManifold(); err != nil {
		t.Errorf("mesh not manifold after melt: %v", err)
	}
	if m.EnclosedVolume() <= 0 {
		t.Error("melt flipped the surface inside out")
	}
	for i := range m.Vertices {
		if len(m.Neighbors(i)) < 3 {
			t.Errorf("vertex %d has only %d neighbors", i, len(m.Neighbors(i)))
		}
	}
}

func TestMeltStopsAtTetrahedron(t *testing.T) {
	positions, faces := octahedron(t)
	m := mustNew(t, positions, faces)
	m.Melt(10)
	if len(m.Vertices) < 4 {
		t.Errorf("melt left %d vertices", len(m.Vertices))
	}
	if err := m.CheckManifold(); err != nil {
		t.Errorf("mesh not manifold after melt: %v", err)
	}
}

func TestResetStability(t *testing.T) {
	positions, faces := octahedron(t)
	m := mustNew(t, positions, faces)
	for i := range m.Vertices {
		m.Vertices[i].Stable = true
		m.Vertices[i].Stability = 42
		m.Vertices[i].History.Push(r3.Vec{X: 1})
	}
	if m.StableCount() != len(m.Vertices) {
		t.Fatalf("StableCount = %d, want %d", m.StableCount(), len(m.Vertices))
	}
	m.ResetStability()
	for i, v := range m.Vertices {
		if v.Stable || v.Stability != 0 || v.History.Len() != 0 {
			t.Errorf("vertex %d not reset: %+v", i, v)
		}
	}
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	if h.Full() {
		t.Fatal("new history reports full")
	}
	for i := 1; i <= 5; i++ {
		h.Push(r3.Vec{X: float64(i)})
	}
	if !h.Full() || h.Len() != 3 {
		t.Fatalf("history len = %d full = %v, want 3 and true", h.Len(), h.Full())
	}
	// Holds 3, 4, 5.
	if mean := h.Mean(); mean != (r3.Vec{X: 4}) {
		t.Errorf("Mean = %v, want (4,0,0)", mean)
	}
	h.Reset()
	if h.Len() != 0 || h.Cap() != 3 {
		t.Errorf("after reset len = %d cap = %d", h.Len(), h.Cap())
	}
}

func TestTextRoundTrip(t *testing.T) {
	m, err := Icosphere(r3.Vec{X: 1.25, Y: -2, Z: 0.5}, 1.5, 1, 0)
	if err != nil {
		t.Fatalf("Icosphere failed: %v", err)
	}
	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}

	got, err := ReadText(&buf, 0)
	if err != nil {
		t.Fatalf("ReadText failed: %v", err)
	}
	if len(got.Vertices) != len(m.Vertices) || len(got.Faces) != len(m.Faces) {
		t.Fatalf("read %d vertices and %d faces, want %d and %d",
			len(got.Vertices), len(got.Faces), len(m.Vertices), len(m.Faces))
	}
	for i := range m.Vertices {
		if got.Vertices[i].Position != m.Vertices[i].Position {
			t.Errorf("vertex %d = %v, want %v", i, got.Vertices[i].Position, m.Vertices[i].Position)
		}
	}

	for _, input := range []string{"", "2\n0 0 0\n", "1\n0 0\n0\n", "1\n0 0 0\n1\n0 0 5\n"} {
		if _, err := ReadText(bytes.NewBufferString(input), 0); err == nil {
			t.Errorf("ReadText(%q) succeeded, want error", input)
		}
	}
}
