package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// WriteText writes the mesh as plain text: the vertex count, one "x y z"
// line per vertex, the face count and one "a b c" line per face.
func (m *Mesh) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(m.Vertices))
	for i := range m.Vertices {
		p := m.Vertices[i].Position
		fmt.Fprintf(bw, "%s %s %s\n", formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z))
	}
	fmt.Fprintf(bw, "%d\n", len(m.Faces))
	for _, f := range m.Faces {
		fmt.Fprintf(bw, "%d %d %d\n", f[0], f[1], f[2])
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ReadText parses a mesh written by WriteText.
func ReadText(r io.Reader, historyLen int) (*Mesh, error) {
	sc := bufio.NewScanner(r)
	line := 0
	next := func() ([]string, error) {
		for sc.Scan() {
			line++
			fields := strings.Fields(sc.Text())
			if len(fields) > 0 {
				return fields, nil
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}
		return nil, io.ErrUnexpectedEOF
	}
	count := func() (int, error) {
		fields, err := next()
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil || n < 0 || len(fields) != 1 {
			return 0, fmt.Errorf("line %d: expected a count, got %q", line, strings.Join(fields, " "))
		}
		return n, nil
	}

	nv, err := count()
	if err != nil {
		return nil, fmt.Errorf("error reading vertex count: %w", err)
	}
	positions := make([]r3.Vec, nv)
	for i := range positions {
		fields, err := next()
		if err != nil {
			return nil, fmt.Errorf("error reading vertex %d: %w", i, err)
		}
		var xyz [3]float64
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 coordinates, got %d", line, len(fields))
		}
		for k := range xyz {
			if xyz[k], err = strconv.ParseFloat(fields[k], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		positions[i] = r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}
	}

	nf, err := count()
	if err != nil {
		return nil, fmt.Errorf("error reading face count: %w", err)
	}
	faces := make([]Face, nf)
	for i := range faces {
		fields, err := next()
		if err != nil {
			return nil, fmt.Errorf("error reading face %d: %w", i, err)
		}
		if len(fields) != 3 {
			return nil, fmt.Errorf("line %d: expected 3 indices, got %d", line, len(fields))
		}
		for k := 0; k < 3; k++ {
			if faces[i][k], err = strconv.Atoi(fields[k]); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
	}
	return New(positions, faces, historyLen)
}
