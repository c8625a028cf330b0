// Package transfer interpolates node weights of the volume mesh onto the
// vertices of the surface mesh.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/pkg/volume"
)

// ErrShape is returned when the node weights do not match the volume.
var ErrShape = errors.New("node weights do not match the volume mesh")

// Options controls the transfer.
type Options struct {
	Workers int // 0 uses runtime.NumCPU()
}

// Stats reports how vertices were located.
type Stats struct {
	Vertices int
	Fallback int // vertices outside every element, snapped to the nearest one
}

// Weights interpolates nodeW (one row per volume node) trilinearly at every
// point and renormalizes each row to sum to exactly one.
func Weights(ctx context.Context, vm *volume.Mesh, nodeW *mat.Dense, points []r3.Vec, opts Options) (*mat.Dense, Stats, error) {
	rows, cols := nodeW.Dims()
	if rows != len(vm.Nodes) {
		return nil, Stats{}, fmt.Errorf("%w: %d rows for %d nodes", ErrShape, rows, len(vm.Nodes))
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if len(points) == 0 || cols == 0 {
		return &mat.Dense{}, Stats{}, nil
	}
	out := mat.NewDense(len(points), cols, nil)
	fallback := make([]int, workers)

	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*len(points)/workers, (w+1)*len(points)/workers
		eg.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				elem, t, ok := vm.Locate(points[i])
				if !ok {
					fallback[w]++
				}
				Interpolate(out.RawRowView(i), nodeW, vm.Elements[elem], t)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, Stats{}, err
	}

	st := Stats{Vertices: len(points)}
	for _, n := range fallback {
		st.Fallback += n
	}
	return out, st, nil
}

// Interpolate writes into dst the trilinear blend of the weights at the
// corners of element e evaluated at local coordinates t, clamped to be
// non-negative and normalized to sum to one.
func Interpolate(dst []float64, nodeW *mat.Dense, e [8]int, t r3.Vec) {
	for h := range dst {
		dst[h] = 0
	}
	for c := 0; c < 8; c++ {
		dx, dy, dz := volume.CornerOffset(c)
		a := lerpWeight(t.X, dx) * lerpWeight(t.Y, dy) * lerpWeight(t.Z, dz)
		if a == 0 {
			continue
		}
		row := nodeW.RawRowView(e[c])
		for h, w := range row {
			dst[h] += a * w
		}
	}

	var sum float64
	for h, w := range dst {
		if w < 0 {
			dst[h] = 0
			continue
		}
		sum += w
	}
	if sum == 0 {
		return
	}
	for h := range dst {
		dst[h] /= sum
	}
	// Division can leave the row a few ulps off; fold the residue into the
	// largest entry.
	var s float64
	top := 0
	for h, w := range dst {
		s += w
		if w > dst[top] {
			top = h
		}
	}
	dst[top] += 1 - s
}

func lerpWeight(t float64, d int) float64 {
	if d == 0 {
		return 1 - t
	}
	return t
}
