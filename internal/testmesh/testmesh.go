// Package testmesh builds small procedural meshes and skeletons for tests.
package testmesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/mesh"
	"github.com/Faultbox/bbweights/pkg/skeleton"
)

// boxFaces are the 12 outward facing triangles of a box whose corners are
// indexed by bit pattern x | y<<1 | z<<2.
var boxFaces = [][3]int{
	{0, 2, 3}, {0, 3, 1}, // -z
	{4, 5, 7}, {4, 7, 6}, // +z
	{0, 1, 5}, {0, 5, 4}, // -y
	{2, 6, 7}, {2, 7, 3}, // +y
	{0, 4, 6}, {0, 6, 2}, // -x
	{1, 3, 7}, {1, 7, 5}, // +x
}

// Box returns a closed axis-aligned box between min and max.
func Box(min, max r3.Vec) *mesh.Mesh {
	m := &mesh.Mesh{}
	appendBox(m, min, max)
	return m
}

// TwoBoxes returns two disjoint boxes in a single mesh, separated by gap
// along x.
func TwoBoxes(size, gap float64) *mesh.Mesh {
	m := &mesh.Mesh{}
	appendBox(m, r3.Vec{}, r3.Vec{X: size, Y: size, Z: size})
	appendBox(m, r3.Vec{X: size + gap}, r3.Vec{X: 2*size + gap, Y: size, Z: size})
	return m
}

// OpenBox returns a box with its top two triangles removed.
func OpenBox() *mesh.Mesh {
	m := Box(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1})
	m.Faces = append(m.Faces[:2], m.Faces[4:]...)
	return m
}

func appendBox(m *mesh.Mesh, min, max r3.Vec) {
	base := len(m.Vertices)
	for i := 0; i < 8; i++ {
		v := min
		if i&1 != 0 {
			v.X = max.X
		}
		if i&2 != 0 {
			v.Y = max.Y
		}
		if i&4 != 0 {
			v.Z = max.Z
		}
		m.Vertices = append(m.Vertices, v)
	}
	for _, f := range boxFaces {
		m.Faces = append(m.Faces, [3]int{base + f[0], base + f[1], base + f[2]})
	}
}

// Sphere returns a closed UV sphere.
func Sphere(center r3.Vec, radius float64, rings, segments int) *mesh.Mesh {
	m := &mesh.Mesh{}
	m.Vertices = append(m.Vertices, r3.Add(center, r3.Vec{Z: radius}))
	for r := 1; r < rings; r++ {
		phi := math.Pi * float64(r) / float64(rings)
		for s := 0; s < segments; s++ {
			theta := 2 * math.Pi * float64(s) / float64(segments)
			m.Vertices = append(m.Vertices, r3.Add(center, r3.Vec{
				X: radius * math.Sin(phi) * math.Cos(theta),
				Y: radius * math.Sin(phi) * math.Sin(theta),
				Z: radius * math.Cos(phi),
			}))
		}
	}
	south := len(m.Vertices)
	m.Vertices = append(m.Vertices, r3.Add(center, r3.Vec{Z: -radius}))

	ring := func(r, s int) int { return 1 + (r-1)*segments + s%segments }
	for s := 0; s < segments; s++ {
		m.Faces = append(m.Faces, [3]int{0, ring(1, s), ring(1, s+1)})
	}
	for r := 1; r < rings-1; r++ {
		for s := 0; s < segments; s++ {
			a, b := ring(r, s), ring(r, s+1)
			c, d := ring(r+1, s), ring(r+1, s+1)
			m.Faces = append(m.Faces, [3]int{a, c, d}, [3]int{a, d, b})
		}
	}
	for s := 0; s < segments; s++ {
		m.Faces = append(m.Faces, [3]int{south, ring(rings-1, s+1), ring(rings-1, s)})
	}
	return m
}

// Bar returns an elongated box centered on the origin, longest along x.
func Bar() *mesh.Mesh {
	return Box(r3.Vec{X: -2, Y: -0.5, Z: -0.5}, r3.Vec{X: 2, Y: 0.5, Z: 0.5})
}

// SingleJoint returns a one-joint skeleton at p.
func SingleJoint(p r3.Vec) *skeleton.Skeleton {
	return &skeleton.Skeleton{Joints: []skeleton.Joint{{Name: "root", Parent: -1, Position: p}}}
}

// MirroredPair returns a root at -x and a child at +x, symmetric about the
// yz plane.
func MirroredPair(x float64) *skeleton.Skeleton {
	return &skeleton.Skeleton{Joints: []skeleton.Joint{
		{Name: "left", Parent: -1, Position: r3.Vec{X: -x}},
		{Name: "right", Parent: 0, Position: r3.Vec{X: x}},
	}}
}

// Chain returns a straight chain of n joints along x from a to b.
func Chain(n int, a, b float64) *skeleton.Skeleton {
	s := &skeleton.Skeleton{}
	for i := 0; i < n; i++ {
		t := 0.0
		if n > 1 {
			t = float64(i) / float64(n-1)
		}
		s.Joints = append(s.Joints, skeleton.Joint{
			Name:     string(rune('a' + i)),
			Parent:   i - 1,
			Position: r3.Vec{X: a + t*(b-a)},
		})
	}
	return s
}
