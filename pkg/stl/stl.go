// Package stl writes triangle surfaces in the binary STL format.
package stl

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"

	"activesurface/pkg/mesh"
)

// ErrEmptyModel is returned when there are no triangles to write.
var ErrEmptyModel = errors.New("empty triangle slice")

// Triangle is one STL facet.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// header is the fixed 84 byte STL preamble.
type header struct {
	_     [80]uint8
	Count uint32
}

// record is one 50 byte facet as laid out on disk.
type record struct {
	Triangle
	_ uint16 // attribute byte count
}

// FromMesh converts mesh faces to facets, scaling voxel coordinates by the
// given voxel size so the model comes out in physical units.
func FromMesh(m *mesh.Mesh, voxelSize r3.Vec) []Triangle {
	tris := make([]Triangle, 0, len(m.Faces))
	for _, f := range m.Faces {
		a := scale(m.Vertices[f[0]].Position, voxelSize)
		b := scale(m.Vertices[f[1]].Position, voxelSize)
		c := scale(m.Vertices[f[2]].Position, voxelSize)
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		if l := r3.Norm(n); l > 0 {
			n = r3.Scale(1/l, n)
		}
		tris = append(tris, Triangle{
			Normal:  toFloat32(n),
			Vertex1: toFloat32(a),
			Vertex2: toFloat32(b),
			Vertex3: toFloat32(c),
		})
	}
	return tris
}

func scale(p, s r3.Vec) r3.Vec {
	return r3.Vec{X: p.X * s.X, Y: p.Y * s.Y, Z: p.Z * s.Z}
}

func toFloat32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}

// WriteSTL writes triangles to w in binary STL format.
func WriteSTL(w io.Writer, triangles []Triangle) error {
	if len(triangles) == 0 {
		return ErrEmptyModel
	}
	if uint64(len(triangles)) > math.MaxUint32 {
		return fmt.Errorf("too many triangles for STL: %d", len(triangles))
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &header{Count: uint32(len(triangles))}); err != nil {
		return err
	}
	for i := range triangles {
		if err := binary.Write(bw, binary.LittleEndian, &record{Triangle: triangles[i]}); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveToSTL writes triangles to the file at path.
func SaveToSTL(path string, triangles []Triangle) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	if err := WriteSTL(file, triangles); err != nil {
		file.Close()
		return fmt.Errorf("failed to write STL file: %w", err)
	}
	return file.Close()
}

// ReadSTL reads a binary STL stream.
func ReadSTL(r io.Reader) ([]Triangle, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("failed to read STL header: %w", err)
	}
	tris := make([]Triangle, h.Count)
	for i := range tris {
		var rec record
		if err := binary.Read(r, binary.LittleEndian, &rec); err != nil {
			return nil, fmt.Errorf("failed to read triangle %d: %w", i, err)
		}
		tris[i] = rec.Triangle
	}
	return tris, nil
}
