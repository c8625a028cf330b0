package voxel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/mesh"
)

// Resolution limits along the longest axis.
const (
	MinResolution = 2
	MaxResolution = 512
)

// Voxelizer errors.
var (
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrEmptyBounds       = errors.New("mesh bounds have zero extent")
)

// Options tunes voxelization.
type Options struct {
	// Workers is the number of goroutines; 0 uses runtime.NumCPU().
	Workers int
}

// ValidateResolution checks res is within [MinResolution, MaxResolution].
func ValidateResolution(res int) error {
	if res < MinResolution || res > MaxResolution {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidResolution, res, MinResolution, MaxResolution)
	}
	return nil
}

// footprint indexes a face by its xy bounding polygon.
type footprint struct {
	geom.Polygonal
	Face int
}

// Layout computes the grid that Voxelize would use for bounds b: res voxels
// along the longest axis, cubic voxels, centered on b.
func Layout(b r3.Box, res int) (dims [3]int, origin r3.Vec, size float64, err error) {
	if err := ValidateResolution(res); err != nil {
		return dims, origin, 0, err
	}
	ext := r3.Sub(b.Max, b.Min)
	longest := math.Max(ext.X, math.Max(ext.Y, ext.Z))
	if !(longest > 0) {
		return dims, origin, 0, ErrEmptyBounds
	}
	size = longest / float64(res)

	e := [3]float64{ext.X, ext.Y, ext.Z}
	var pad [3]float64
	for axis := range e {
		n := int(math.Ceil(e[axis]/size - 1e-9))
		dims[axis] = clamp(n, 1, res)
		pad[axis] = (float64(dims[axis])*size - e[axis]) / 2
	}
	origin = r3.Vec{X: b.Min.X - pad[0], Y: b.Min.Y - pad[1], Z: b.Min.Z - pad[2]}
	return dims, origin, size, nil
}

// Voxelize labels every voxel of a grid laid out over m as Outside,
// Boundary or Inside. Inside/outside comes from ray parity along z through
// each column center; Boundary marks voxels any face touches.
func Voxelize(ctx context.Context, m *mesh.Mesh, res int, opts Options) (*Grid, error) {
	if err := ValidateResolution(res); err != nil {
		return nil, err
	}
	dims, origin, size, err := Layout(m.Bounds(), res)
	if err != nil {
		return nil, err
	}
	g := NewGrid(dims, origin, size)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	index := rtree.NewTree(25, 50)
	for i := range m.Faces {
		t := m.Triangle(i)
		index.Insert(&footprint{
			Polygonal: geom.Polygon([]geom.Path{{
				{X: t[0].X, Y: t[0].Y}, {X: t[1].X, Y: t[1].Y},
				{X: t[2].X, Y: t[2].Y}, {X: t[0].X, Y: t[0].Y}}}),
			Face: i,
		})
	}

	odd, err := fillColumns(ctx, m, g, index, workers)
	if err != nil {
		return nil, err
	}
	g.OddColumns = odd

	if err := markBoundary(ctx, m, g, workers); err != nil {
		return nil, err
	}
	return g, nil
}

// fillColumns labels voxels Inside by parity. Rows of columns (fixed y) are
// split across workers so every worker writes a disjoint set of voxels.
func fillColumns(ctx context.Context, m *mesh.Mesh, g *Grid, index *rtree.Rtree, workers int) (int, error) {
	ny := g.Dims[1]
	oddPerRow := make([]int, ny)

	eg, ctx := errgroup.WithContext(ctx)
	rows := make(chan int)
	eg.Go(func() error {
		defer close(rows)
		for y := 0; y < ny; y++ {
			select {
			case rows <- y:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			var hits []float64
			for y := range rows {
				if err := ctx.Err(); err != nil {
					return err
				}
				for x := 0; x < g.Dims[0]; x++ {
					c := g.Center(x, y, 0)
					hits = hits[:0]
					query := &geom.Bounds{
						Min: geom.Point{X: c.X, Y: c.Y},
						Max: geom.Point{X: c.X, Y: c.Y},
					}
					for _, fI := range index.SearchIntersect(query) {
						f := fI.(*footprint)
						if z, ok := columnHit(m.Triangle(f.Face), c.X, c.Y); ok {
							hits = append(hits, z)
						}
					}
					if len(hits)%2 != 0 {
						oddPerRow[y]++
					}
					if len(hits) < 2 {
						continue
					}
					sort.Float64s(hits)
					below := 0
					for z := 0; z < g.Dims[2]; z++ {
						zc := g.Origin.Z + (float64(z)+0.5)*g.Size
						for below < len(hits) && hits[below] < zc {
							below++
						}
						if below%2 == 1 {
							g.Labels[g.Index(x, y, z)] = Inside
						}
					}
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	odd := 0
	for _, n := range oddPerRow {
		odd += n
	}
	return odd, nil
}

// markBoundary labels every voxel a face overlaps. Workers own disjoint
// z slabs of the grid.
func markBoundary(ctx context.Context, m *mesh.Mesh, g *Grid, workers int) error {
	nz := g.Dims[2]
	if workers > nz {
		workers = nz
	}
	half := g.Size / 2 * (1 + 1e-9)

	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		z0, z1 := w*nz/workers, (w+1)*nz/workers
		eg.Go(func() error {
			for i := range m.Faces {
				if i%1024 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				t := m.Triangle(i)
				lo, hi := g.faceRange(t)
				lo[2], hi[2] = max(lo[2], z0), min(hi[2], z1-1)
				for z := lo[2]; z <= hi[2]; z++ {
					for y := lo[1]; y <= hi[1]; y++ {
						for x := lo[0]; x <= hi[0]; x++ {
							idx := g.Index(x, y, z)
							if g.Labels[idx] == Boundary {
								continue
							}
							if triBoxOverlap(t, g.Center(x, y, z), half) {
								g.Labels[idx] = Boundary
							}
						}
					}
				}
			}
			return nil
		})
	}
	return eg.Wait()
}

// faceRange returns the inclusive voxel range covered by the bounding box of
// triangle t, widened by one voxel where the box ends on a voxel face.
func (g *Grid) faceRange(t [3]r3.Vec) (lo, hi [3]int) {
	for axis := 0; axis < 3; axis++ {
		a, b, c := comp(t[0], axis), comp(t[1], axis), comp(t[2], axis)
		o := comp(g.Origin, axis)
		mn := (math.Min(a, math.Min(b, c)) - o) / g.Size
		mx := (math.Max(a, math.Max(b, c)) - o) / g.Size
		lo[axis] = clamp(int(math.Floor(mn))-1, 0, g.Dims[axis]-1)
		hi[axis] = clamp(int(math.Floor(mx))+1, 0, g.Dims[axis]-1)
	}
	return lo, hi
}
