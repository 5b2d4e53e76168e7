package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Icosphere returns a closed sphere surface built by refining an
// icosahedron the given number of times, projecting new vertices onto
// the sphere after each refinement.
func Icosphere(center r3.Vec, radius float64, subdivisions, historyLen int) (*Mesh, error) {
	t := (1 + math.Sqrt(5)) / 2
	unit := []r3.Vec{
		{X: -1, Y: t}, {X: 1, Y: t}, {X: -1, Y: -t}, {X: 1, Y: -t},
		{Y: -1, Z: t}, {Y: 1, Z: t}, {Y: -1, Z: -t}, {Y: 1, Z: -t},
		{X: t, Z: -1}, {X: t, Z: 1}, {X: -t, Z: -1}, {X: -t, Z: 1},
	}
	for i := range unit {
		unit[i] = r3.Unit(unit[i])
	}
	faces := []Face{
		{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
		{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
		{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
		{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
	}

	for s := 0; s < subdivisions; s++ {
		mids := make(map[edgeKey]int)
		midpoint := func(a, b int) int {
			e := makeEdge(a, b)
			if v, ok := mids[e]; ok {
				return v
			}
			unit = append(unit, r3.Unit(r3.Add(unit[a], unit[b])))
			mids[e] = len(unit) - 1
			return mids[e]
		}
		refined := make([]Face, 0, 4*len(faces))
		for _, f := range faces {
			a := midpoint(f[0], f[1])
			b := midpoint(f[1], f[2])
			c := midpoint(f[2], f[0])
			refined = append(refined,
				Face{f[0], a, c}, Face{f[1], b, a}, Face{f[2], c, b}, Face{a, b, c})
		}
		faces = refined
	}

	positions := make([]r3.Vec, len(unit))
	for i, u := range unit {
		positions[i] = r3.Add(center, r3.Scale(radius, u))
	}
	return New(positions, faces, historyLen)
}
