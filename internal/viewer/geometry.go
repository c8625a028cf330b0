package viewer

import (
	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/mesh"
	"github.com/Faultbox/bbweights/pkg/skeleton"
)

// Floats per vertex in each buffer layout.
const (
	surfaceStride = 6 // position, normal
	colorStride   = 3
	lineStride    = 6 // position, color
)

var (
	boneColor   = [3]float32{0.95, 0.85, 0.2}
	jointColor  = [3]float32{1, 1, 1}
	boundsColor = [3]float32{0.45, 0.45, 0.5}
)

// surfaceVertices interleaves positions with area weighted vertex normals
// and returns the triangle index list.
func surfaceVertices(m *mesh.Mesh) ([]float32, []uint32) {
	normals := vertexNormals(m)
	verts := make([]float32, 0, len(m.Vertices)*surfaceStride)
	for i, p := range m.Vertices {
		n := normals[i]
		verts = append(verts,
			float32(p.X), float32(p.Y), float32(p.Z),
			float32(n.X), float32(n.Y), float32(n.Z))
	}
	indices := make([]uint32, 0, len(m.Faces)*3)
	for _, f := range m.Faces {
		indices = append(indices, uint32(f[0]), uint32(f[1]), uint32(f[2]))
	}
	return verts, indices
}

func vertexNormals(m *mesh.Mesh) []r3.Vec {
	normals := make([]r3.Vec, len(m.Vertices))
	for i, f := range m.Faces {
		t := m.Triangle(i)
		// The cross product's length is twice the area.
		n := r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0]))
		for _, v := range f {
			normals[v] = r3.Add(normals[v], n)
		}
	}
	for i, n := range normals {
		if l := r3.Norm(n); l > 0 {
			normals[i] = r3.Scale(1/l, n)
		}
	}
	return normals
}

// colorData packs vertex colors for the color buffer.
func colorData(colors []colorful.Color) []float32 {
	out := make([]float32, 0, len(colors)*colorStride)
	for _, c := range colors {
		c = c.Clamped()
		out = append(out, float32(c.R), float32(c.G), float32(c.B))
	}
	return out
}

// skeletonLines draws each bone as a segment and each joint as a small
// three-axis cross of half-width r.
func skeletonLines(s *skeleton.Skeleton, r float64) []float32 {
	var out []float32
	for _, b := range s.Bones() {
		p, c := s.Segment(b)
		out = appendLine(out, p, c, boneColor)
	}
	for _, j := range s.Joints {
		p := j.Position
		for _, d := range []r3.Vec{{X: r}, {Y: r}, {Z: r}} {
			out = appendLine(out, r3.Sub(p, d), r3.Add(p, d), jointColor)
		}
	}
	return out
}

// boxLines draws the twelve edges of b.
func boxLines(b r3.Box) []float32 {
	corner := func(i int) r3.Vec {
		v := b.Min
		if i&1 != 0 {
			v.X = b.Max.X
		}
		if i&2 != 0 {
			v.Y = b.Max.Y
		}
		if i&4 != 0 {
			v.Z = b.Max.Z
		}
		return v
	}
	out := make([]float32, 0, 24*lineStride)
	for i := 0; i < 8; i++ {
		for _, bit := range []int{1, 2, 4} {
			if i&bit == 0 {
				out = appendLine(out, corner(i), corner(i|bit), boundsColor)
			}
		}
	}
	return out
}

func appendLine(out []float32, a, b r3.Vec, c [3]float32) []float32 {
	return append(out,
		float32(a.X), float32(a.Y), float32(a.Z), c[0], c[1], c[2],
		float32(b.X), float32(b.Y), float32(b.Z), c[0], c[1], c[2])
}
