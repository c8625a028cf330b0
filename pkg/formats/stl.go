package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/mesh"
)

// STL format errors.
var (
	ErrTruncatedSTLData = errors.New("truncated STL data")
	ErrInvalidSTL       = errors.New("invalid ASCII STL data")
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50 // normal, 3 corners, attribute count
)

// ParseSTL parses a binary or ASCII STL file. STL stores every triangle
// with its own corners, so identical positions are welded into shared
// vertices in order of first appearance.
func ParseSTL(data []byte) (*mesh.Mesh, error) {
	if isASCIISTL(data) {
		return parseASCIISTL(data)
	}
	return parseBinarySTL(data)
}

// isASCIISTL treats a file as text when it starts with "solid" and its size
// does not match the triangle count of a binary file. Some exporters write
// "solid" into binary headers.
func isASCIISTL(data []byte) bool {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		return false
	}
	if len(data) >= stlHeaderSize+4 {
		n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
		if uint64(len(data)) == stlHeaderSize+4+uint64(n)*stlTriangleSize {
			return false
		}
	}
	return true
}

func parseBinarySTL(data []byte) (*mesh.Mesh, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, ErrTruncatedSTLData
	}
	n := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	body := data[stlHeaderSize+4:]
	if len(body) < n*stlTriangleSize {
		return nil, fmt.Errorf("%w: %d triangles need %d bytes, have %d",
			ErrTruncatedSTLData, n, n*stlTriangleSize, len(body))
	}

	w := newWelder(n)
	for t := 0; t < n; t++ {
		rec := body[t*stlTriangleSize:]
		var f [3]int
		for c := 0; c < 3; c++ {
			off := 12 + 12*c // skip the normal
			f[c] = w.add(r3.Vec{
				X: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off:]))),
				Y: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+4:]))),
				Z: float64(math.Float32frombits(binary.LittleEndian.Uint32(rec[off+8:]))),
			})
		}
		w.m.Faces = append(w.m.Faces, f)
	}
	return w.m, nil
}

func parseASCIISTL(data []byte) (*mesh.Mesh, error) {
	w := newWelder(0)
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	var corners []int
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrInvalidSTL, line)
			}
			var c [3]float64
			for i := range c {
				f, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidSTL, line, err)
				}
				c[i] = f
			}
			corners = append(corners, w.add(r3.Vec{X: c[0], Y: c[1], Z: c[2]}))
		case "endloop":
			if len(corners) != 3 {
				return nil, fmt.Errorf("%w: line %d: facet has %d corners", ErrInvalidSTL, line, len(corners))
			}
			w.m.Faces = append(w.m.Faces, [3]int{corners[0], corners[1], corners[2]})
			corners = corners[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSTL, err)
	}
	if len(w.m.Faces) == 0 {
		return nil, fmt.Errorf("%w: no facets", ErrInvalidSTL)
	}
	return w.m, nil
}

// ParseSTLFile reads and parses an STL file from disk.
func ParseSTLFile(path string) (*mesh.Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading STL file: %w", err)
	}
	return ParseSTL(data)
}

// welder merges bit-identical positions.
type welder struct {
	m    *mesh.Mesh
	seen map[r3.Vec]int
}

func newWelder(faces int) *welder {
	return &welder{
		m: &mesh.Mesh{
			Vertices: make([]r3.Vec, 0, faces/2+3),
			Faces:    make([][3]int, 0, faces),
		},
		seen: make(map[r3.Vec]int, faces/2+3),
	}
}

func (w *welder) add(p r3.Vec) int {
	if i, ok := w.seen[p]; ok {
		return i
	}
	i := len(w.m.Vertices)
	w.m.Vertices = append(w.m.Vertices, p)
	w.seen[p] = i
	return i
}
