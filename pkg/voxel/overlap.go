package voxel

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// triBoxOverlap reports whether triangle t intersects the axis-aligned box
// with the given center and half extent. It is the separating axis test over
// the box normals, the triangle normal and the nine edge cross products.
// Touching counts as overlapping.
func triBoxOverlap(t [3]r3.Vec, center r3.Vec, half float64) bool {
	v := [3]r3.Vec{r3.Sub(t[0], center), r3.Sub(t[1], center), r3.Sub(t[2], center)}

	// Box normals.
	for axis := 0; axis < 3; axis++ {
		a, b, c := comp(v[0], axis), comp(v[1], axis), comp(v[2], axis)
		if math.Min(a, math.Min(b, c)) > half || math.Max(a, math.Max(b, c)) < -half {
			return false
		}
	}

	e := [3]r3.Vec{r3.Sub(v[1], v[0]), r3.Sub(v[2], v[1]), r3.Sub(v[0], v[2])}

	// Triangle plane.
	if separates(r3.Cross(e[0], e[1]), v, half) {
		return false
	}

	boxAxes := [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}
	for _, edge := range e {
		for _, ba := range boxAxes {
			if separates(r3.Cross(edge, ba), v, half) {
				return false
			}
		}
	}
	return true
}

// separates reports whether axis a separates the triangle v from the box.
func separates(a r3.Vec, v [3]r3.Vec, half float64) bool {
	if a.X == 0 && a.Y == 0 && a.Z == 0 {
		return false
	}
	p0, p1, p2 := r3.Dot(a, v[0]), r3.Dot(a, v[1]), r3.Dot(a, v[2])
	r := half * (math.Abs(a.X) + math.Abs(a.Y) + math.Abs(a.Z))
	return math.Min(p0, math.Min(p1, p2)) > r || math.Max(p0, math.Max(p1, p2)) < -r
}

func comp(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// columnHit intersects the vertical line through (px, py) with triangle t
// projected onto the xy plane. Edges and vertices shared by two faces are
// owned by exactly one of them (top-left rule), so parity along a column is
// exact for a closed surface even when the line runs through an edge.
func columnHit(t [3]r3.Vec, px, py float64) (z float64, ok bool) {
	a, b, c := t[0], t[1], t[2]
	area := edgeFn(a, b, c.X, c.Y)
	if area == 0 {
		return 0, false
	}
	if area < 0 {
		b, c = c, b
		area = -area
	}

	wa := edgeFn(b, c, px, py)
	wb := edgeFn(c, a, px, py)
	wc := edgeFn(a, b, px, py)
	if !owns(wa, b, c) || !owns(wb, c, a) || !owns(wc, a, b) {
		return 0, false
	}
	return (wa*a.Z + wb*b.Z + wc*c.Z) / area, true
}

// edgeFn is the signed doubled area of (a, b, p) in the xy plane. The
// endpoints are put in a canonical order first so two faces sharing the
// edge compute the same magnitude bit for bit.
func edgeFn(a, b r3.Vec, px, py float64) float64 {
	if b.X < a.X || (b.X == a.X && b.Y < a.Y) {
		return -orient(b, a, px, py)
	}
	return orient(a, b, px, py)
}

func orient(a, b r3.Vec, px, py float64) float64 {
	return (b.X-a.X)*(py-a.Y) - (b.Y-a.Y)*(px-a.X)
}

// owns applies the top-left fill rule to directed edge a->b of a
// counter-clockwise triangle.
func owns(w float64, a, b r3.Vec) bool {
	if w != 0 {
		return w > 0
	}
	dy := b.Y - a.Y
	return dy < 0 || (dy == 0 && b.X < a.X)
}
