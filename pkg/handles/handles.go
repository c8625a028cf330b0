// Package handles pins skeleton joints and bones to nodes of the volume mesh.
package handles

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/skeleton"
	"github.com/Faultbox/bbweights/pkg/volume"
)

// Mode selects what a handle is.
type Mode int

// Handle modes.
const (
	Auto   Mode = iota // Bones when the skeleton has any, joints otherwise
	Joints             // One handle per joint
	Bones              // One handle per bone
)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case Auto:
		return "auto"
	case Joints:
		return "joints"
	case Bones:
		return "bones"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a config name.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "auto", "":
		return Auto, nil
	case "joints", "joint":
		return Joints, nil
	case "bones", "bone":
		return Bones, nil
	}
	return 0, fmt.Errorf("unknown handle mode %q (want auto, joints or bones)", s)
}

// Kind tells joint handles from bone handles.
type Kind int

// Handle kinds.
const (
	JointHandle Kind = iota
	BoneHandle
)

// Handle is one column of the weight matrix.
type Handle struct {
	Name   string
	Kind   Kind
	Joint  int // the joint, or the bone's child joint
	Parent int // the bone's parent joint, -1 for joint handles
	Nodes  []int
}

// WarningKind classifies a constraint warning.
type WarningKind int

// Warning kinds.
const (
	Collision WarningKind = iota // Two handles claimed the same nodes
	Empty                        // A handle lost all of its nodes
	Outside                      // A joint lies outside the volume
)

// String returns a readable warning kind.
func (k WarningKind) String() string {
	switch k {
	case Collision:
		return "collision"
	case Empty:
		return "empty"
	case Outside:
		return "outside"
	default:
		return fmt.Sprintf("WarningKind(%d)", int(k))
	}
}

// Warning is a non-fatal problem found while pinning handles.
type Warning struct {
	Kind    WarningKind
	Handle  int
	Message string
}

// Options configures handle placement.
type Options struct {
	Mode Mode
	// Radius of bone capsules. 0 uses half a voxel diagonal.
	Radius float64
}

// Set is the resolved handle constraints. Owner maps each node to the
// handle it is pinned to, or -1.
type Set struct {
	Mode     Mode
	Handles  []Handle
	Owner    []int
	Warnings []Warning
}

// Build pins every handle of skel to nodes of vm. Handles are processed in
// order; a node claimed twice goes to the later handle.
func Build(vm *volume.Mesh, skel *skeleton.Skeleton, opts Options) *Set {
	mode := opts.Mode
	bones := skel.Bones()
	if mode == Auto {
		mode = Joints
		if len(bones) > 0 {
			mode = Bones
		}
	}
	if mode == Bones && len(bones) == 0 {
		mode = Joints
	}

	s := &Set{Mode: mode, Owner: make([]int, len(vm.Nodes))}
	for i := range s.Owner {
		s.Owner[i] = -1
	}

	switch mode {
	case Joints:
		for j := range skel.Joints {
			p := skel.Joints[j].Position
			if _, _, ok := vm.Locate(p); !ok {
				s.Warnings = append(s.Warnings, Warning{
					Kind:    Outside,
					Handle:  len(s.Handles),
					Message: fmt.Sprintf("joint %q lies outside the volume; pinned to the nearest node", skel.JointName(j)),
				})
			}
			s.Handles = append(s.Handles, Handle{
				Name:   skel.JointName(j),
				Kind:   JointHandle,
				Joint:  j,
				Parent: -1,
				Nodes:  []int{vm.NearestNode(p)},
			})
		}
	case Bones:
		radius := opts.Radius
		if radius <= 0 {
			radius = vm.Grid.Size * math.Sqrt(3) / 2
		}
		for _, b := range bones {
			a, c := skel.Segment(b)
			s.Handles = append(s.Handles, Handle{
				Name:   skel.JointName(b.Child),
				Kind:   BoneHandle,
				Joint:  b.Child,
				Parent: b.Parent,
				Nodes:  boneNodes(vm, a, c, radius),
			})
		}
	}

	s.resolve()
	return s
}

// boneNodes returns the nodes inside the capsule around a-c plus the
// nearest node to samples along it. The segment is trimmed by 1.5 radii at
// both ends so bones meeting at a joint keep clear of each other. Bones too
// short to trim fall back to the node nearest their midpoint.
func boneNodes(vm *volume.Mesh, a, c r3.Vec, radius float64) []int {
	ab := r3.Sub(c, a)
	length := r3.Norm(ab)
	trim := 1.5 * radius
	if length <= 2*trim {
		return []int{vm.NearestNode(r3.Scale(0.5, r3.Add(a, c)))}
	}
	dir := r3.Scale(1/length, ab)
	a0 := r3.Add(a, r3.Scale(trim, dir))
	c0 := r3.Sub(c, r3.Scale(trim, dir))

	seen := make(map[int]bool)
	var nodes []int
	add := func(n int) {
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
	}
	for _, n := range vm.NodesNearSegment(a0, c0, radius) {
		add(n)
	}
	inner := length - 2*trim
	steps := int(math.Ceil(inner/(vm.Grid.Size/2))) + 1
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		add(vm.NearestNode(r3.Add(a0, r3.Scale(t*inner, dir))))
	}
	sort.Ints(nodes)
	return nodes
}

// resolve assigns every node to the last handle that claims it and records
// one warning per pair of colliding handles.
func (s *Set) resolve() {
	type pair struct{ earlier, later int }
	lost := make(map[pair]int)
	var pairs []pair

	for h, hd := range s.Handles {
		for _, n := range hd.Nodes {
			if prev := s.Owner[n]; prev >= 0 && prev != h {
				p := pair{prev, h}
				if lost[p] == 0 {
					pairs = append(pairs, p)
				}
				lost[p]++
			}
			s.Owner[n] = h
		}
	}

	for _, p := range pairs {
		s.Warnings = append(s.Warnings, Warning{
			Kind:   Collision,
			Handle: p.later,
			Message: fmt.Sprintf("handles %q and %q claim %d shared node(s); %q keeps them",
				s.Handles[p.earlier].Name, s.Handles[p.later].Name, lost[p], s.Handles[p.later].Name),
		})
	}

	for h := range s.Handles {
		s.Handles[h].Nodes = s.Handles[h].Nodes[:0]
	}
	for n, h := range s.Owner {
		if h >= 0 {
			s.Handles[h].Nodes = append(s.Handles[h].Nodes, n)
		}
	}
	for h, hd := range s.Handles {
		if len(hd.Nodes) == 0 {
			s.Warnings = append(s.Warnings, Warning{
				Kind:    Empty,
				Handle:  h,
				Message: fmt.Sprintf("handle %q has no pinned nodes and receives zero weight", hd.Name),
			})
		}
	}
}

// Pinned returns the number of pinned nodes.
func (s *Set) Pinned() int {
	n := 0
	for _, h := range s.Owner {
		if h >= 0 {
			n++
		}
	}
	return n
}

// Active returns the handles that kept at least one node.
func (s *Set) Active() []int {
	var out []int
	for h, hd := range s.Handles {
		if len(hd.Nodes) > 0 {
			out = append(out, h)
		}
	}
	return out
}
