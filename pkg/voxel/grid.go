// Package voxel rasterizes a closed surface into a regular grid of cubic cells.
package voxel

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/spatial/r3"
)

// Label classifies a voxel against the surface.
type Label uint8

// Voxel labels.
const (
	Outside  Label = iota // Entirely outside the surface
	Boundary              // Touched by at least one face
	Inside                // Center inside, not touched by any face
)

// String returns a readable label name.
func (l Label) String() string {
	switch l {
	case Outside:
		return "Outside"
	case Boundary:
		return "Boundary"
	case Inside:
		return "Inside"
	default:
		return fmt.Sprintf("Unknown(%d)", l)
	}
}

// Occupied reports whether the voxel takes part in the volume.
func (l Label) Occupied() bool {
	return l == Boundary || l == Inside
}

// Grid is a labelled voxel grid. Voxel (x, y, z) spans
// Origin + Size*[x,x+1] x [y,y+1] x [z,z+1].
type Grid struct {
	Dims   [3]int
	Origin r3.Vec
	Size   float64
	Labels []Label

	// OddColumns counts ray columns that crossed the surface an odd number
	// of times. It is zero for a watertight surface.
	OddColumns int
}

// NewGrid allocates an all-outside grid.
func NewGrid(dims [3]int, origin r3.Vec, size float64) *Grid {
	return &Grid{
		Dims:   dims,
		Origin: origin,
		Size:   size,
		Labels: make([]Label, dims[0]*dims[1]*dims[2]),
	}
}

// Len returns the number of voxels.
func (g *Grid) Len() int {
	return len(g.Labels)
}

// Index returns the linear index of voxel (x, y, z). x varies fastest.
func (g *Grid) Index(x, y, z int) int {
	return (z*g.Dims[1]+y)*g.Dims[0] + x
}

// Coord is the inverse of Index.
func (g *Grid) Coord(i int) (x, y, z int) {
	x = i % g.Dims[0]
	i /= g.Dims[0]
	return x, i % g.Dims[1], i / g.Dims[1]
}

// InBounds reports whether (x, y, z) is a voxel of the grid.
func (g *Grid) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.Dims[0] && y < g.Dims[1] && z < g.Dims[2]
}

// At returns the label of voxel (x, y, z); voxels beyond the grid are Outside.
func (g *Grid) At(x, y, z int) Label {
	if !g.InBounds(x, y, z) {
		return Outside
	}
	return g.Labels[g.Index(x, y, z)]
}

// Set labels voxel (x, y, z).
func (g *Grid) Set(x, y, z int, l Label) {
	g.Labels[g.Index(x, y, z)] = l
}

// Center returns the center of voxel (x, y, z).
func (g *Grid) Center(x, y, z int) r3.Vec {
	return r3.Vec{
		X: g.Origin.X + (float64(x)+0.5)*g.Size,
		Y: g.Origin.Y + (float64(y)+0.5)*g.Size,
		Z: g.Origin.Z + (float64(z)+0.5)*g.Size,
	}
}

// Corner returns lattice point (i, j, k), the minimum corner of voxel (i, j, k).
func (g *Grid) Corner(i, j, k int) r3.Vec {
	return r3.Vec{
		X: g.Origin.X + float64(i)*g.Size,
		Y: g.Origin.Y + float64(j)*g.Size,
		Z: g.Origin.Z + float64(k)*g.Size,
	}
}

// Locate returns the voxel containing p, clamped to the grid.
func (g *Grid) Locate(p r3.Vec) (x, y, z int) {
	return g.cell(p.X-g.Origin.X, 0), g.cell(p.Y-g.Origin.Y, 1), g.cell(p.Z-g.Origin.Z, 2)
}

func (g *Grid) cell(d float64, axis int) int {
	return clamp(int(math.Floor(d/g.Size)), 0, g.Dims[axis]-1)
}

// Bounds returns the world-space extent of the grid.
func (g *Grid) Bounds() r3.Box {
	return r3.Box{
		Min: g.Origin,
		Max: g.Corner(g.Dims[0], g.Dims[1], g.Dims[2]),
	}
}

// Counts returns the number of voxels per label.
func (g *Grid) Counts() (outside, boundary, inside int) {
	for _, l := range g.Labels {
		switch l {
		case Outside:
			outside++
		case Boundary:
			boundary++
		case Inside:
			inside++
		}
	}
	return
}

// Occupied returns the number of boundary and inside voxels.
func (g *Grid) Occupied() int {
	_, b, i := g.Counts()
	return b + i
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
