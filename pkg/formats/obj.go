// Package formats reads and writes the mesh, skeleton, weight and voxel
// files used by the solver.
package formats

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/mesh"
)

// OBJ format errors.
var (
	ErrInvalidOBJ    = errors.New("invalid OBJ data")
	ErrOBJIndexRange = errors.New("OBJ face index out of range")
	ErrOBJNoGeometry = errors.New("OBJ file has no faces")
)

// ParseOBJ parses a Wavefront OBJ file. Only vertex positions and faces are
// read; polygons are fan triangulated and every other statement is ignored.
func ParseOBJ(data []byte) (*mesh.Mesh, error) {
	m := &mesh.Mesh{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrInvalidOBJ, line)
			}
			var c [3]float64
			for i := range c {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidOBJ, line, err)
				}
				c[i] = f
			}
			m.Vertices = append(m.Vertices, r3.Vec{X: c[0], Y: c[1], Z: c[2]})

		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: face needs at least 3 corners", ErrInvalidOBJ, line)
			}
			idx := make([]int, len(fields)-1)
			for i, ref := range fields[1:] {
				v, err := objIndex(ref, len(m.Vertices))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", line, err)
				}
				idx[i] = v
			}
			for i := 1; i+1 < len(idx); i++ {
				m.Faces = append(m.Faces, [3]int{idx[0], idx[i], idx[i+1]})
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOBJ, err)
	}
	if len(m.Faces) == 0 {
		return nil, ErrOBJNoGeometry
	}
	return m, nil
}

// objIndex resolves a face corner ("v", "v/vt", "v//vn" or "v/vt/vn") to a
// zero-based vertex index. Negative indices count back from the last vertex.
func objIndex(ref string, n int) (int, error) {
	if i := strings.IndexByte(ref, '/'); i >= 0 {
		ref = ref[:i]
	}
	v, err := strconv.Atoi(ref)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOBJ, ref)
	}
	switch {
	case v > 0 && v <= n:
		return v - 1, nil
	case v < 0 && -v <= n:
		return n + v, nil
	default:
		return 0, fmt.Errorf("%w: %d with %d vertices", ErrOBJIndexRange, v, n)
	}
}

// ParseOBJFile reads and parses an OBJ file from disk.
func ParseOBJFile(path string) (*mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OBJ file: %w", err)
	}
	return ParseOBJ(data)
}

// WriteOBJ writes m as an OBJ file with one-based indices.
func WriteOBJ(out io.Writer, m *mesh.Mesh) error {
	w := bufio.NewWriter(out)
	for _, v := range m.Vertices {
		fmt.Fprintf(w, "v %s %s %s\n", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
	}
	for _, f := range m.Faces {
		fmt.Fprintf(w, "f %d %d %d\n", f[0]+1, f[1]+1, f[2]+1)
	}
	return w.Flush()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
