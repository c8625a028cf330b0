// Package skeleton describes the joint hierarchy that drives a skin.
package skeleton

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Validation errors.
var (
	ErrEmpty         = errors.New("skeleton has no joints")
	ErrNoRoot        = errors.New("skeleton has no root joint")
	ErrMultipleRoots = errors.New("skeleton has more than one root joint")
	ErrParentRange   = errors.New("joint parent out of range")
	ErrCycle         = errors.New("joint hierarchy contains a cycle")
	ErrDuplicateName = errors.New("duplicate joint name")
	ErrNonFinite     = errors.New("joint position is not finite")
)

// Joint is a node of the hierarchy. Parent is -1 for the root.
type Joint struct {
	Name     string
	Parent   int
	Position r3.Vec
}

// Bone connects a joint to one of its children.
type Bone struct {
	Parent int
	Child  int
}

// Skeleton is a tree of joints stored in traversal order.
type Skeleton struct {
	Joints []Joint
}

// Validate checks the hierarchy is a single rooted tree.
func (s *Skeleton) Validate() error {
	if len(s.Joints) == 0 {
		return ErrEmpty
	}

	roots := 0
	names := make(map[string]int, len(s.Joints))
	for i, j := range s.Joints {
		if j.Parent == -1 {
			roots++
		} else if j.Parent < 0 || j.Parent >= len(s.Joints) || j.Parent == i {
			return fmt.Errorf("%w: joint %d has parent %d", ErrParentRange, i, j.Parent)
		}
		p := j.Position
		if math.IsNaN(p.X+p.Y+p.Z) || math.IsInf(p.X+p.Y+p.Z, 0) {
			return fmt.Errorf("%w: joint %d", ErrNonFinite, i)
		}
		if j.Name != "" {
			if prev, ok := names[j.Name]; ok {
				return fmt.Errorf("%w: %q used by joints %d and %d", ErrDuplicateName, j.Name, prev, i)
			}
			names[j.Name] = i
		}
	}
	switch {
	case roots == 0:
		return ErrNoRoot
	case roots > 1:
		return fmt.Errorf("%w: found %d", ErrMultipleRoots, roots)
	}

	// Walk each joint to the root; a walk longer than the joint count loops.
	for i := range s.Joints {
		steps := 0
		for p := s.Joints[i].Parent; p != -1; p = s.Joints[p].Parent {
			steps++
			if steps > len(s.Joints) {
				return fmt.Errorf("%w: through joint %d", ErrCycle, i)
			}
		}
	}
	return nil
}

// Root returns the index of the root joint, or -1.
func (s *Skeleton) Root() int {
	for i, j := range s.Joints {
		if j.Parent == -1 {
			return i
		}
	}
	return -1
}

// Bones returns one bone per non-root joint, in joint order.
func (s *Skeleton) Bones() []Bone {
	bones := make([]Bone, 0, len(s.Joints))
	for i, j := range s.Joints {
		if j.Parent >= 0 {
			bones = append(bones, Bone{Parent: j.Parent, Child: i})
		}
	}
	return bones
}

// Children returns the direct children of joint i in joint order.
func (s *Skeleton) Children(i int) []int {
	var out []int
	for c, j := range s.Joints {
		if j.Parent == i {
			out = append(out, c)
		}
	}
	return out
}

// Index returns the joint with the given name, or -1.
func (s *Skeleton) Index(name string) int {
	for i, j := range s.Joints {
		if j.Name == name {
			return i
		}
	}
	return -1
}

// JointName returns the name of joint i, falling back to "joint<i>".
func (s *Skeleton) JointName(i int) string {
	if n := s.Joints[i].Name; n != "" {
		return n
	}
	return fmt.Sprintf("joint%d", i)
}

// Segment returns the end points of bone b.
func (s *Skeleton) Segment(b Bone) (r3.Vec, r3.Vec) {
	return s.Joints[b.Parent].Position, s.Joints[b.Child].Position
}

// Depth returns the number of ancestors of joint i.
func (s *Skeleton) Depth(i int) int {
	d := 0
	for p := s.Joints[i].Parent; p != -1; p = s.Joints[p].Parent {
		d++
	}
	return d
}
