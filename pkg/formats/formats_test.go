package formats

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/internal/testmesh"
)

func TestParseMeshFile_ByExtension(t *testing.T) {
	dir := t.TempDir()
	box := testmesh.Box(r3.Vec{}, r3.Vec{X: 1, Y: 2, Z: 3})

	var obj bytes.Buffer
	if err := WriteOBJ(&obj, box); err != nil {
		t.Fatal(err)
	}
	files := map[string][]byte{
		"box.obj":   obj.Bytes(),
		"box.OBJ":   obj.Bytes(),
		"box.stl":   createTestSTL(box, "binary box"),
		"ascii.stl": createTestASCIISTL(box),
	}
	for name, data := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, data, 0644); err != nil {
				t.Fatal(err)
			}
			m, err := ParseMeshFile(path)
			if err != nil {
				t.Fatalf("ParseMeshFile failed: %v", err)
			}
			if len(m.Vertices) != 8 || len(m.Faces) != 12 {
				t.Errorf("expected 8 vertices and 12 faces, got %d and %d", len(m.Vertices), len(m.Faces))
			}
			if err := m.Validate(); err != nil {
				t.Errorf("expected a closed mesh: %v", err)
			}
		})
	}
}

func TestParseMeshFile_Unknown(t *testing.T) {
	_, err := ParseMeshFile(filepath.Join(t.TempDir(), "mesh.ply"))
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}
