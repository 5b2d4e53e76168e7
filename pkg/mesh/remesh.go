package mesh

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Subdivide splits every edge longer than threshold at its midpoint and
// re-triangulates the affected faces so the triangulation stays valid.
// A face with one split edge becomes two triangles, two split edges three
// and three split edges four. It returns the number of edges split.
func (m *Mesh) Subdivide(threshold float64) int {
	mids := make(map[edgeKey]int)
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			e := makeEdge(f[k], f[(k+1)%3])
			if _, ok := mids[e]; ok {
				continue
			}
			if m.edgeLength(e.a, e.b) > threshold {
				mid := r3.Scale(0.5, r3.Add(m.Vertices[e.a].Position, m.Vertices[e.b].Position))
				mids[e] = m.addVertex(mid)
			}
		}
	}
	if len(mids) == 0 {
		return 0
	}

	faces := make([]Face, 0, len(m.Faces)+2*len(mids))
	for _, f := range m.Faces {
		faces = m.appendSplitFace(faces, f, mids)
	}
	m.Faces = faces
	m.rebuildAdjacency()
	return len(mids)
}

func (m *Mesh) addVertex(p r3.Vec) int {
	m.Vertices = append(m.Vertices, Vertex{Position: p, History: NewHistory(m.historyLen)})
	return len(m.Vertices) - 1
}

// appendSplitFace appends the triangles replacing f given the midpoints of its split edges.
func (m *Mesh) appendSplitFace(dst []Face, f Face, mids map[edgeKey]int) []Face {
	var mid [3]int // mid[k] splits edge f[k]-f[k+1]
	split := 0
	for k := 0; k < 3; k++ {
		mid[k] = -1
		if v, ok := mids[makeEdge(f[k], f[(k+1)%3])]; ok {
			mid[k] = v
			split++
		}
	}

	switch split {
	case 0:
		return append(dst, f)
	case 3:
		return append(dst,
			Face{f[0], mid[0], mid[2]},
			Face{f[1], mid[1], mid[0]},
			Face{f[2], mid[2], mid[1]},
			Face{mid[0], mid[1], mid[2]},
		)
	}

	// Rotate so that the split edges come first.
	r := 0
	if split == 1 {
		for mid[r] < 0 {
			r++
		}
	} else {
		// The unsplit edge goes last.
		for mid[(r+2)%3] >= 0 {
			r++
		}
	}
	v0, v1, v2 := f[r], f[(r+1)%3], f[(r+2)%3]
	m01, m12 := mid[r], mid[(r+1)%3]

	if split == 1 {
		return append(dst, Face{v0, m01, v2}, Face{m01, v1, v2})
	}

	dst = append(dst, Face{v1, m12, m01})
	// Cut the remaining quad v0, m01, m12, v2 along its shorter diagonal.
	if m.edgeLength(v0, m12) <= m.edgeLength(m01, v2) {
		return append(dst, Face{v0, m01, m12}, Face{v0, m12, v2})
	}
	return append(dst, Face{v0, m01, v2}, Face{m01, m12, v2})
}

// Melt collapses edges shorter than threshold into their midpoint, shortest
// first, removing one vertex per collapse. An edge is only collapsed when
// its endpoints share exactly the neighbors opposite the edge, so a closed
// 2-manifold stays one. Passes repeat until no edge qualifies. It returns
// the number of vertices removed.
func (m *Mesh) Melt(threshold float64) int {
	removed := 0
	for {
		n := m.meltPass(threshold)
		if n == 0 {
			return removed
		}
		removed += n
	}
}

type candidate struct {
	e      edgeKey
	length float64
}

func (m *Mesh) meltPass(threshold float64) int {
	edgeFaces := make(map[edgeKey]int, 3*len(m.Faces))
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			edgeFaces[makeEdge(f[k], f[(k+1)%3])]++
		}
	}
	boundary := make([]bool, len(m.Vertices))
	for e, n := range edgeFaces {
		if n == 1 {
			boundary[e.a] = true
			boundary[e.b] = true
		}
	}

	var candidates []candidate
	m.forEachEdge(func(a, b int) {
		if l := m.edgeLength(a, b); l < threshold {
			candidates = append(candidates, candidate{makeEdge(a, b), l})
		}
	})
	if len(candidates) == 0 {
		return 0
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].length < candidates[j].length })

	locked := make([]bool, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	for i := range remap {
		remap[i] = i
	}
	live := len(m.Vertices)
	collapsed := 0

	for _, c := range candidates {
		a, b := c.e.a, c.e.b
		if locked[a] || locked[b] {
			continue
		}
		// A tetrahedron is the smallest closed surface.
		if live <= 4 {
			break
		}
		if edgeFaces[c.e] != 2 || boundary[a] && boundary[b] {
			continue
		}
		if m.commonNeighbors(a, b) != 2 {
			continue
		}

		pa, pb := m.Vertices[a].Position, m.Vertices[b].Position
		switch {
		case boundary[a]:
		case boundary[b]:
			m.Vertices[a].Position = pb
		default:
			m.Vertices[a].Position = r3.Scale(0.5, r3.Add(pa, pb))
		}
		survivor := &m.Vertices[a]
		survivor.Stability = 0
		survivor.Stable = false
		survivor.History.Reset()

		remap[b] = a
		for _, v := range []int{a, b} {
			locked[v] = true
			for _, n := range m.adjacency[v] {
				locked[n] = true
			}
		}
		live--
		collapsed++
	}
	if collapsed == 0 {
		return 0
	}

	faces := m.Faces[:0]
	for _, f := range m.Faces {
		g := Face{remap[f[0]], remap[f[1]], remap[f[2]]}
		if g[0] == g[1] || g[1] == g[2] || g[2] == g[0] {
			continue
		}
		faces = append(faces, g)
	}
	m.Faces = faces
	m.compact(remap)
	return collapsed
}

func (m *Mesh) commonNeighbors(a, b int) int {
	n := 0
	for _, x := range m.adjacency[a] {
		for _, y := range m.adjacency[b] {
			if x == y {
				n++
				break
			}
		}
	}
	return n
}

// compact drops vertices that were merged away and renumbers faces.
func (m *Mesh) compact(remap []int) {
	index := make([]int, len(m.Vertices))
	vertices := make([]Vertex, 0, len(m.Vertices))
	for i := range m.Vertices {
		if remap[i] != i {
			index[i] = -1
			continue
		}
		index[i] = len(vertices)
		vertices = append(vertices, m.Vertices[i])
	}
	for i := range m.Faces {
		for k := 0; k < 3; k++ {
			m.Faces[i][k] = index[m.Faces[i][k]]
		}
	}
	m.Vertices = vertices
	m.rebuildAdjacency()
}
