package formats

import (
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/bbweights/pkg/skeleton"
)

// Skeleton file errors.
var (
	ErrInvalidSkeleton = errors.New("invalid skeleton file")
	ErrUnknownParent   = errors.New("unknown parent joint")
)

// skelFile is the on-disk layout. JSON is a subset of YAML, so one decoder
// reads both.
type skelFile struct {
	Joints []skelJoint `yaml:"joints"`
}

type skelJoint struct {
	Name     string     `yaml:"name"`
	Parent   string     `yaml:"parent,omitempty"`
	Position [3]float64 `yaml:"position,flow"`
}

// ParseSkeleton parses a YAML or JSON skeleton file. Parents are referenced
// by name and may appear after their children; joints keep file order.
func ParseSkeleton(data []byte) (*skeleton.Skeleton, error) {
	var f skelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSkeleton, err)
	}
	if len(f.Joints) == 0 {
		return nil, fmt.Errorf("%w: no joints", ErrInvalidSkeleton)
	}

	index := make(map[string]int, len(f.Joints))
	for i, j := range f.Joints {
		if j.Name == "" {
			return nil, fmt.Errorf("%w: joint %d has no name", ErrInvalidSkeleton, i)
		}
		if _, dup := index[j.Name]; dup {
			return nil, fmt.Errorf("%w: %q", skeleton.ErrDuplicateName, j.Name)
		}
		index[j.Name] = i
	}

	s := &skeleton.Skeleton{Joints: make([]skeleton.Joint, len(f.Joints))}
	for i, j := range f.Joints {
		parent := -1
		if j.Parent != "" {
			p, ok := index[j.Parent]
			if !ok {
				return nil, fmt.Errorf("%w: %q (parent of %q)", ErrUnknownParent, j.Parent, j.Name)
			}
			parent = p
		}
		s.Joints[i] = skeleton.Joint{
			Name:     j.Name,
			Parent:   parent,
			Position: r3.Vec{X: j.Position[0], Y: j.Position[1], Z: j.Position[2]},
		}
	}
	return s, nil
}

// ParseSkeletonFile reads a skeleton from disk. Files ending in .bvh are
// read as BVH hierarchies, everything else as YAML or JSON.
func ParseSkeletonFile(path string) (*skeleton.Skeleton, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading skeleton file: %w", err)
	}
	if extIs(path, ".bvh") {
		return ParseBVH(data)
	}
	return ParseSkeleton(data)
}

// MarshalSkeleton encodes s in the YAML skeleton layout.
func MarshalSkeleton(s *skeleton.Skeleton) ([]byte, error) {
	f := skelFile{Joints: make([]skelJoint, len(s.Joints))}
	for i, j := range s.Joints {
		f.Joints[i] = skelJoint{
			Name:     s.JointName(i),
			Position: [3]float64{j.Position.X, j.Position.Y, j.Position.Z},
		}
		if j.Parent >= 0 && j.Parent < len(s.Joints) {
			f.Joints[i].Parent = s.JointName(j.Parent)
		}
	}
	return yaml.Marshal(&f)
}
