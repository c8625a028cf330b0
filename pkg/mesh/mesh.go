// Package mesh holds the closed triangle surface that weights are computed for.
package mesh

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Validation errors.
var (
	ErrEmpty          = errors.New("mesh has no faces")
	ErrIndexRange     = errors.New("face index out of range")
	ErrNonFinite      = errors.New("vertex coordinate is not finite")
	ErrDegenerateFace = errors.New("degenerate face")
	ErrOpen           = errors.New("mesh is not closed")
	ErrNonManifold    = errors.New("non-manifold edge")
	ErrOrientation    = errors.New("inconsistent face orientation")
)

// Mesh is an indexed triangle surface.
type Mesh struct {
	Vertices []r3.Vec
	Faces    [][3]int
}

// Edge is an undirected edge with A < B.
type Edge struct {
	A, B int
}

func makeEdge(a, b int) Edge {
	if a > b {
		a, b = b, a
	}
	return Edge{A: a, B: b}
}

// Triangle returns the corner positions of face i.
func (m *Mesh) Triangle(i int) [3]r3.Vec {
	f := m.Faces[i]
	return [3]r3.Vec{m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]}
}

// Bounds returns the axis-aligned bounding box of all vertices.
func (m *Mesh) Bounds() r3.Box {
	if len(m.Vertices) == 0 {
		return r3.Box{}
	}
	b := r3.Box{Min: m.Vertices[0], Max: m.Vertices[0]}
	for _, v := range m.Vertices[1:] {
		b.Min = r3.Vec{X: math.Min(b.Min.X, v.X), Y: math.Min(b.Min.Y, v.Y), Z: math.Min(b.Min.Z, v.Z)}
		b.Max = r3.Vec{X: math.Max(b.Max.X, v.X), Y: math.Max(b.Max.Y, v.Y), Z: math.Max(b.Max.Z, v.Z)}
	}
	return b
}

// Diagonal returns the length of the bounding box diagonal.
func (m *Mesh) Diagonal() float64 {
	b := m.Bounds()
	return r3.Norm(r3.Sub(b.Max, b.Min))
}

// Area returns the total surface area.
func (m *Mesh) Area() float64 {
	var a float64
	for i := range m.Faces {
		t := m.Triangle(i)
		a += 0.5 * r3.Norm(r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0])))
	}
	return a
}

// Volume returns the signed enclosed volume. It is positive for outward
// facing (counter-clockwise) winding.
func (m *Mesh) Volume() float64 {
	var v float64
	for i := range m.Faces {
		t := m.Triangle(i)
		v += r3.Dot(t[0], r3.Cross(t[1], t[2])) / 6
	}
	return v
}

// EdgeFaces counts how many faces use each undirected edge.
func (m *Mesh) EdgeFaces() map[Edge]int {
	edges := make(map[Edge]int, len(m.Faces)*3/2)
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			edges[makeEdge(f[k], f[(k+1)%3])]++
		}
	}
	return edges
}

// Validate checks that the mesh is a closed, consistently oriented
// two-manifold made of non-degenerate triangles with finite coordinates.
func (m *Mesh) Validate() error {
	if len(m.Faces) == 0 {
		return ErrEmpty
	}
	for i, v := range m.Vertices {
		if !finite(v) {
			return fmt.Errorf("%w: vertex %d", ErrNonFinite, i)
		}
	}

	// Degeneracy is judged relative to the model size so that millimetre and
	// metre scale assets behave the same.
	diag := m.Diagonal()
	minArea := 1e-14 * diag * diag

	for i, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || idx >= len(m.Vertices) {
				return fmt.Errorf("%w: face %d references vertex %d of %d", ErrIndexRange, i, idx, len(m.Vertices))
			}
		}
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			return fmt.Errorf("%w: face %d repeats a vertex", ErrDegenerateFace, i)
		}
		t := m.Triangle(i)
		if 0.5*r3.Norm(r3.Cross(r3.Sub(t[1], t[0]), r3.Sub(t[2], t[0]))) <= minArea {
			return fmt.Errorf("%w: face %d has zero area", ErrDegenerateFace, i)
		}
	}

	// Report the lowest offending edge so the message is stable across runs.
	var open, nonManifold *Edge
	for e, n := range m.EdgeFaces() {
		e := e
		switch {
		case n == 1:
			if open == nil || lessEdge(e, *open) {
				open = &e
			}
		case n > 2:
			if nonManifold == nil || lessEdge(e, *nonManifold) {
				nonManifold = &e
			}
		}
	}
	if open != nil {
		return fmt.Errorf("%w: boundary edge %d-%d", ErrOpen, open.A, open.B)
	}
	if nonManifold != nil {
		return fmt.Errorf("%w: edge %d-%d", ErrNonManifold, nonManifold.A, nonManifold.B)
	}

	// Neighbouring faces traverse their shared edge in opposite directions,
	// so every directed edge occurs exactly once.
	directed := make(map[[2]int]int, 3*len(m.Faces))
	for _, f := range m.Faces {
		for k := 0; k < 3; k++ {
			directed[[2]int{f[k], f[(k+1)%3]}]++
		}
	}
	var flipped *Edge
	for d, n := range directed {
		if n > 1 {
			e := makeEdge(d[0], d[1])
			if flipped == nil || lessEdge(e, *flipped) {
				flipped = &e
			}
		}
	}
	if flipped != nil {
		return fmt.Errorf("%w: edge %d-%d", ErrOrientation, flipped.A, flipped.B)
	}
	return nil
}

// Stats summarizes a mesh for reports.
type Stats struct {
	Vertices int
	Faces    int
	Edges    int
	Bounds   r3.Box
	Area     float64
	Volume   float64
}

// Stats computes summary statistics.
func (m *Mesh) Stats() Stats {
	return Stats{
		Vertices: len(m.Vertices),
		Faces:    len(m.Faces),
		Edges:    len(m.EdgeFaces()),
		Bounds:   m.Bounds(),
		Area:     m.Area(),
		Volume:   m.Volume(),
	}
}

func lessEdge(a, b Edge) bool {
	if a.A != b.A {
		return a.A < b.A
	}
	return a.B < b.B
}

func finite(v r3.Vec) bool {
	return !math.IsNaN(v.X+v.Y+v.Z) && !math.IsInf(v.X+v.Y+v.Z, 0)
}
