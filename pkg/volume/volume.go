// Package volume turns occupied voxels into a hexahedral mesh whose nodes
// carry the weight unknowns.
package volume

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/voxel"
)

// Volume mesh errors.
var (
	ErrEmpty        = errors.New("no occupied voxels")
	ErrDegenerate   = errors.New("voxel size must be positive")
	ErrDisconnected = errors.New("volume is not connected")
)

// Mesh is a hexahedral mesh over the occupied voxels of a grid. Element
// corner c sits at offset (c&1, c>>1&1, c>>2&1) from the voxel's minimum
// corner.
type Mesh struct {
	Grid     *voxel.Grid
	Nodes    []r3.Vec
	Lattice  [][3]int // lattice coordinate of each node
	Elements [][8]int
	Voxels   []int // grid index of each element

	nodeAt []int32 // lattice index -> node, -1 if absent
	elemAt []int32 // voxel index -> element, -1 if absent
}

// CornerOffset returns the lattice offset of element corner c.
func CornerOffset(c int) (dx, dy, dz int) {
	return c & 1, c >> 1 & 1, c >> 2 & 1
}

// Build creates the hex mesh for all Boundary and Inside voxels of g and
// checks it forms a single connected component.
func Build(g *voxel.Grid) (*Mesh, error) {
	if !(g.Size > 0) {
		return nil, fmt.Errorf("%w: %g", ErrDegenerate, g.Size)
	}

	m := &Mesh{
		Grid:   g,
		nodeAt: make([]int32, (g.Dims[0]+1)*(g.Dims[1]+1)*(g.Dims[2]+1)),
		elemAt: make([]int32, g.Len()),
	}
	for i := range m.nodeAt {
		m.nodeAt[i] = -1
	}
	for i := range m.elemAt {
		m.elemAt[i] = -1
	}

	// Mark lattice points first so node ids follow lattice order.
	for i, l := range g.Labels {
		if !l.Occupied() {
			continue
		}
		x, y, z := g.Coord(i)
		for c := 0; c < 8; c++ {
			dx, dy, dz := CornerOffset(c)
			m.nodeAt[m.latticeIndex(x+dx, y+dy, z+dz)] = 0
		}
	}
	for li := range m.nodeAt {
		if m.nodeAt[li] < 0 {
			continue
		}
		i, j, k := m.latticeCoord(li)
		m.nodeAt[li] = int32(len(m.Nodes))
		m.Nodes = append(m.Nodes, g.Corner(i, j, k))
		m.Lattice = append(m.Lattice, [3]int{i, j, k})
	}
	if len(m.Nodes) == 0 {
		return nil, ErrEmpty
	}

	for i, l := range g.Labels {
		if !l.Occupied() {
			continue
		}
		x, y, z := g.Coord(i)
		var e [8]int
		for c := 0; c < 8; c++ {
			dx, dy, dz := CornerOffset(c)
			e[c] = int(m.nodeAt[m.latticeIndex(x+dx, y+dy, z+dz)])
		}
		m.elemAt[i] = int32(len(m.Elements))
		m.Elements = append(m.Elements, e)
		m.Voxels = append(m.Voxels, i)
	}

	if sizes := m.Components(); len(sizes) > 1 {
		return nil, fmt.Errorf("%w: %d components with %v nodes", ErrDisconnected, len(sizes), sizes)
	}
	return m, nil
}

func (m *Mesh) latticeIndex(i, j, k int) int {
	d := m.Grid.Dims
	return (k*(d[1]+1)+j)*(d[0]+1) + i
}

func (m *Mesh) latticeCoord(li int) (i, j, k int) {
	d := m.Grid.Dims
	i = li % (d[0] + 1)
	li /= d[0] + 1
	return i, li % (d[1] + 1), li / (d[1] + 1)
}

// NodeAt returns the node at lattice point (i, j, k), or -1.
func (m *Mesh) NodeAt(i, j, k int) int {
	d := m.Grid.Dims
	if i < 0 || j < 0 || k < 0 || i > d[0] || j > d[1] || k > d[2] {
		return -1
	}
	return int(m.nodeAt[m.latticeIndex(i, j, k)])
}

// ElementAt returns the element for voxel (x, y, z), or -1.
func (m *Mesh) ElementAt(x, y, z int) int {
	if !m.Grid.InBounds(x, y, z) {
		return -1
	}
	return int(m.elemAt[m.Grid.Index(x, y, z)])
}

// ElementVolume is the volume of every element.
func (m *Mesh) ElementVolume() float64 {
	h := m.Grid.Size
	return h * h * h
}

// Components returns the node count of each connected component, ordered
// by each component's lowest node id. Two nodes are connected when they
// share an element.
func (m *Mesh) Components() []int {
	parent := make([]int32, len(m.Nodes))
	for i := range parent {
		parent[i] = int32(i)
	}
	var find func(int32) int32
	find = func(x int32) int32 {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for _, e := range m.Elements {
		r0 := find(int32(e[0]))
		for _, n := range e[1:] {
			if r := find(int32(n)); r != r0 {
				// keep the lower id as root so the result is order independent
				if r < r0 {
					parent[r0] = r
					r0 = r
				} else {
					parent[r] = r0
				}
			}
		}
	}

	size := make(map[int32]int)
	var roots []int32
	for i := range parent {
		r := find(int32(i))
		if size[r] == 0 {
			roots = append(roots, r)
		}
		size[r]++
	}
	sort.Slice(roots, func(a, b int) bool { return roots[a] < roots[b] })
	out := make([]int, len(roots))
	for i, r := range roots {
		out[i] = size[r]
	}
	return out
}

// Locate finds the element containing p and the trilinear coordinates of p
// inside it, each in [0, 1]. When p is not inside any element the nearest
// element is used with clamped coordinates and ok is false.
func (m *Mesh) Locate(p r3.Vec) (elem int, t r3.Vec, ok bool) {
	g := m.Grid
	x, y, z := g.Locate(p)
	elem = m.ElementAt(x, y, z)
	ok = elem >= 0 && m.contains(x, y, z, p)
	if elem < 0 {
		elem = m.nearestElement(p, x, y, z)
		x, y, z = g.Coord(m.Voxels[elem])
		ok = m.contains(x, y, z, p)
	}

	c := g.Corner(x, y, z)
	t = r3.Vec{
		X: clamp01((p.X - c.X) / g.Size),
		Y: clamp01((p.Y - c.Y) / g.Size),
		Z: clamp01((p.Z - c.Z) / g.Size),
	}
	return elem, t, ok
}

// containSlack is the distance, in voxel sizes, a point may lie outside
// its voxel and still count as inside. Points on voxel faces round either way.
const containSlack = 1e-9

func (m *Mesh) contains(x, y, z int, p r3.Vec) bool {
	return boxDistance(m.Grid, x, y, z, p) <= containSlack*m.Grid.Size
}

// nearestElement searches shells of voxels around (x, y, z) for the
// occupied voxel closest to p. Ties go to the lowest element id.
func (m *Mesh) nearestElement(p r3.Vec, x, y, z int) int {
	g := m.Grid
	best, bestD := -1, math.Inf(1)
	limit := max(g.Dims[0], g.Dims[1], g.Dims[2])
	for r := 0; r <= limit; r++ {
		// every voxel of shell r is at least (r-1) voxels away from p
		if best >= 0 && float64(r-1)*g.Size > bestD {
			break
		}
		shell(r, x, y, z, func(i, j, k int) {
			e := m.ElementAt(i, j, k)
			if e < 0 {
				return
			}
			d := boxDistance(g, i, j, k, p)
			if d < bestD || (d == bestD && e < best) {
				best, bestD = e, d
			}
		})
	}
	return best
}

// NearestNode returns the node closest to p. Ties go to the lowest node id.
func (m *Mesh) NearestNode(p r3.Vec) int {
	g := m.Grid
	d := g.Dims
	ci := clampInt(int(math.Round((p.X-g.Origin.X)/g.Size)), 0, d[0])
	cj := clampInt(int(math.Round((p.Y-g.Origin.Y)/g.Size)), 0, d[1])
	ck := clampInt(int(math.Round((p.Z-g.Origin.Z)/g.Size)), 0, d[2])
	c := g.Corner(ci, cj, ck)
	d0 := math.Max(math.Abs(p.X-c.X), math.Max(math.Abs(p.Y-c.Y), math.Abs(p.Z-c.Z)))

	best, bestD := -1, math.Inf(1)
	limit := max(d[0], d[1], d[2]) + 1
	for r := 0; r <= limit; r++ {
		if best >= 0 && float64(r)*g.Size-d0 > bestD {
			break
		}
		shell(r, ci, cj, ck, func(i, j, k int) {
			n := m.NodeAt(i, j, k)
			if n < 0 {
				return
			}
			dist := r3.Norm(r3.Sub(m.Nodes[n], p))
			if dist < bestD || (dist == bestD && n < best) {
				best, bestD = n, dist
			}
		})
	}
	return best
}

// NodesNearSegment returns, in ascending order, every node within radius of
// the segment a-b.
func (m *Mesh) NodesNearSegment(a, b r3.Vec, radius float64) []int {
	g := m.Grid
	d := g.Dims
	lo := func(v, o float64, n int) int {
		return clampInt(int(math.Floor((v-radius-o)/g.Size)), 0, n)
	}
	hi := func(v, o float64, n int) int {
		return clampInt(int(math.Ceil((v+radius-o)/g.Size)), 0, n)
	}
	i0, i1 := lo(math.Min(a.X, b.X), g.Origin.X, d[0]), hi(math.Max(a.X, b.X), g.Origin.X, d[0])
	j0, j1 := lo(math.Min(a.Y, b.Y), g.Origin.Y, d[1]), hi(math.Max(a.Y, b.Y), g.Origin.Y, d[1])
	k0, k1 := lo(math.Min(a.Z, b.Z), g.Origin.Z, d[2]), hi(math.Max(a.Z, b.Z), g.Origin.Z, d[2])

	var out []int
	for k := k0; k <= k1; k++ {
		for j := j0; j <= j1; j++ {
			for i := i0; i <= i1; i++ {
				n := m.NodeAt(i, j, k)
				if n >= 0 && SegmentDistance(m.Nodes[n], a, b) <= radius {
					out = append(out, n)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}

// SegmentDistance returns the distance from p to segment a-b.
func SegmentDistance(p, a, b r3.Vec) float64 {
	ab := r3.Sub(b, a)
	l2 := r3.Norm2(ab)
	if l2 == 0 {
		return r3.Norm(r3.Sub(p, a))
	}
	t := clamp01(r3.Dot(r3.Sub(p, a), ab) / l2)
	return r3.Norm(r3.Sub(p, r3.Add(a, r3.Scale(t, ab))))
}

// shell calls fn for every integer point at Chebyshev distance exactly r
// from (x, y, z). Callers filter out-of-range points.
func shell(r, x, y, z int, fn func(i, j, k int)) {
	for k := z - r; k <= z+r; k++ {
		for j := y - r; j <= y+r; j++ {
			for i := x - r; i <= x+r; i++ {
				if abs(i-x) != r && abs(j-y) != r && abs(k-z) != r {
					continue
				}
				fn(i, j, k)
			}
		}
	}
}

// boxDistance is the distance from p to voxel (x, y, z).
func boxDistance(g *voxel.Grid, x, y, z int, p r3.Vec) float64 {
	lo := g.Corner(x, y, z)
	hi := g.Corner(x+1, y+1, z+1)
	dx := math.Max(0, math.Max(lo.X-p.X, p.X-hi.X))
	dy := math.Max(0, math.Max(lo.Y-p.Y, p.Y-hi.Y))
	dz := math.Max(0, math.Max(lo.Z-p.Z, p.Z-hi.Z))
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
