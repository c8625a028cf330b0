package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/internal/testmesh"
	"github.com/Faultbox/bbweights/pkg/mesh"
)

// createTestSTL writes m as a binary STL file with the given header text.
func createTestSTL(m *mesh.Mesh, header string) []byte {
	buf := new(bytes.Buffer)
	h := make([]byte, stlHeaderSize)
	copy(h, header)
	buf.Write(h)
	binary.Write(buf, binary.LittleEndian, uint32(len(m.Faces)))
	for i := range m.Faces {
		tri := m.Triangle(i)
		for j := 0; j < 3; j++ {
			binary.Write(buf, binary.LittleEndian, float32(0)) // normal
		}
		for _, p := range tri {
			binary.Write(buf, binary.LittleEndian, float32(p.X))
			binary.Write(buf, binary.LittleEndian, float32(p.Y))
			binary.Write(buf, binary.LittleEndian, float32(p.Z))
		}
		binary.Write(buf, binary.LittleEndian, uint16(0))
	}
	return buf.Bytes()
}

func createTestASCIISTL(m *mesh.Mesh) []byte {
	var sb strings.Builder
	sb.WriteString("solid test\n")
	for i := range m.Faces {
		sb.WriteString("  facet normal 0 0 0\n    outer loop\n")
		for _, p := range m.Triangle(i) {
			sb.WriteString("      vertex " + formatFloat(p.X) + " " + formatFloat(p.Y) + " " + formatFloat(p.Z) + "\n")
		}
		sb.WriteString("    endloop\n  endfacet\n")
	}
	sb.WriteString("endsolid test\n")
	return []byte(sb.String())
}

func TestParseSTL_Welds(t *testing.T) {
	box := testmesh.Box(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1})
	tests := []struct {
		name string
		data []byte
	}{
		{"binary", createTestSTL(box, "exported")},
		{"binary with solid header", createTestSTL(box, "solid but binary")},
		{"ascii", createTestASCIISTL(box)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseSTL(tt.data)
			if err != nil {
				t.Fatalf("ParseSTL failed: %v", err)
			}
			if len(m.Faces) != 12 {
				t.Errorf("expected 12 faces, got %d", len(m.Faces))
			}
			if len(m.Vertices) != 8 {
				t.Errorf("expected 8 welded vertices, got %d", len(m.Vertices))
			}
			if err := m.Validate(); err != nil {
				t.Errorf("welded box should be closed: %v", err)
			}
			if v := m.Volume(); math.Abs(v-8) > 1e-6 {
				t.Errorf("expected volume 8, got %g", v)
			}
		})
	}
}

func TestParseSTL_Errors(t *testing.T) {
	box := testmesh.Box(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	full := createTestSTL(box, "")

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"short header", make([]byte, 40), ErrTruncatedSTLData},
		{"missing triangles", full[:len(full)-10], ErrTruncatedSTLData},
		{"ascii no facets", []byte("solid x\nendsolid x\n"), ErrInvalidSTL},
		{"ascii bad vertex", []byte("solid x\nfacet normal 0 0 1\nouter loop\nvertex 0 0\n"), ErrInvalidSTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSTL(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
