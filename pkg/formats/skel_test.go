package formats

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/skeleton"
)

const armYAML = `joints:
  - name: hand
    parent: elbow
    position: [2, 0, 0]
  - name: shoulder
    position: [0, 0, 0]
  - name: elbow
    parent: shoulder
    position: [1, 0, 0.5]
`

const armJSON = `{"joints": [
  {"name": "shoulder", "position": [0, 0, 0]},
  {"name": "elbow", "parent": "shoulder", "position": [1, 0, 0.5]},
  {"name": "hand", "parent": "elbow", "position": [2, 0, 0]}
]}`

func TestParseSkeleton(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		elbow  int
		parent int
	}{
		{"yaml forward parent", armYAML, 2, 1},
		{"json", armJSON, 1, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSkeleton([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseSkeleton failed: %v", err)
			}
			if len(s.Joints) != 3 {
				t.Fatalf("expected 3 joints, got %d", len(s.Joints))
			}
			if err := s.Validate(); err != nil {
				t.Errorf("expected a valid tree: %v", err)
			}
			e := s.Joints[tt.elbow]
			if e.Name != "elbow" || e.Parent != tt.parent {
				t.Errorf("expected elbow with parent %d, got %+v", tt.parent, e)
			}
			if e.Position != (r3.Vec{X: 1, Z: 0.5}) {
				t.Errorf("expected elbow at (1,0,0.5), got %v", e.Position)
			}
		})
	}
}

func TestParseSkeleton_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"empty", "", ErrInvalidSkeleton},
		{"not yaml", "joints: [", ErrInvalidSkeleton},
		{"unnamed", "joints:\n  - position: [0, 0, 0]\n", ErrInvalidSkeleton},
		{"unknown parent", "joints:\n  - name: a\n    parent: b\n", ErrUnknownParent},
		{"duplicate", "joints:\n  - name: a\n  - name: a\n", skeleton.ErrDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSkeleton([]byte(tt.data))
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMarshalSkeleton(t *testing.T) {
	s, err := ParseSkeleton([]byte(armJSON))
	if err != nil {
		t.Fatalf("ParseSkeleton failed: %v", err)
	}
	data, err := MarshalSkeleton(s)
	if err != nil {
		t.Fatalf("MarshalSkeleton failed: %v", err)
	}
	back, err := ParseSkeleton(data)
	if err != nil {
		t.Fatalf("ParseSkeleton of marshalled data failed: %v", err)
	}
	for i := range s.Joints {
		if back.Joints[i] != s.Joints[i] {
			t.Errorf("joint %d: expected %+v, got %+v", i, s.Joints[i], back.Joints[i])
		}
	}
}

func TestParseSkeletonFile_ByExtension(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "arm.yaml")
	bvhPath := filepath.Join(dir, "arm.BVH")
	if err := os.WriteFile(yamlPath, []byte(armYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bvhPath, []byte(armBVH), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := ParseSkeletonFile(yamlPath)
	if err != nil || len(s.Joints) != 3 {
		t.Errorf("yaml: expected 3 joints, got %v, %v", s, err)
	}
	s, err = ParseSkeletonFile(bvhPath)
	if err != nil || len(s.Joints) != 4 {
		t.Errorf("bvh: expected 4 joints, got %v, %v", s, err)
	}
	if _, err := ParseSkeletonFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
