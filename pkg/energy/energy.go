// Package energy assembles the discrete Laplacian and the harmonic or
// biharmonic quadratic form over a hex volume mesh.
package energy

import (
	"context"
	"fmt"
	"math/bits"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/bbweights/pkg/linalg"
	"github.com/Faultbox/bbweights/pkg/volume"
)

// Laplacian selects the discrete operator.
type Laplacian int

// Laplacian kinds.
const (
	Graph Laplacian = iota // Umbrella operator over element edges
	FEM                    // Trilinear hexahedral stiffness
)

// String returns the config name of the operator.
func (l Laplacian) String() string {
	switch l {
	case Graph:
		return "graph"
	case FEM:
		return "fem"
	default:
		return fmt.Sprintf("Laplacian(%d)", int(l))
	}
}

// ParseLaplacian converts a config name.
func ParseLaplacian(s string) (Laplacian, error) {
	switch s {
	case "graph", "":
		return Graph, nil
	case "fem":
		return FEM, nil
	}
	return 0, fmt.Errorf("unknown laplacian %q (want graph or fem)", s)
}

// Kind selects the smoothness energy.
type Kind int

// Energy kinds.
const (
	Biharmonic Kind = iota // wᵀ L M⁻¹ L w
	Harmonic               // wᵀ L w
)

// String returns the config name of the energy.
func (k Kind) String() string {
	switch k {
	case Biharmonic:
		return "biharmonic"
	case Harmonic:
		return "harmonic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind converts a config name.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "biharmonic", "":
		return Biharmonic, nil
	case "harmonic":
		return Harmonic, nil
	}
	return 0, fmt.Errorf("unknown energy %q (want biharmonic or harmonic)", s)
}

// Options configures assembly.
type Options struct {
	Laplacian Laplacian
	Energy    Kind
	Workers   int // 0 uses runtime.NumCPU()
}

// System is the assembled quadratic form. Operators are kept in lattice
// units: the physical matrices are L·h/12 and M·h³/8 for the FEM operator.
// A uniform factor does not move the minimizer, so Scale only matters when
// reporting energies.
type System struct {
	L     *linalg.CSR
	Mass  []float64 // lumped mass per node, nil means identity
	Q     *linalg.CSR
	Scale float64 // physical Q = Scale * Q
}

// Energy returns wᵀ Q w in lattice units.
func (s *System) Energy(w []float64) float64 {
	qw := make([]float64, len(w))
	s.Q.MulVec(qw, w)
	var e float64
	for i := range w {
		e += w[i] * qw[i]
	}
	return e
}

// Assemble builds L, the lumped mass and Q for vm.
func Assemble(ctx context.Context, vm *volume.Mesh, opts Options) (*System, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var (
		l   *linalg.CSR
		err error
		sys = &System{Scale: 1}
	)
	h := vm.Grid.Size
	switch opts.Laplacian {
	case Graph:
		l, err = graphLaplacian(ctx, vm, workers)
	case FEM:
		l, err = femLaplacian(ctx, vm, workers)
		sys.Mass = LumpedMass(vm)
		sys.Scale = h / 12
	default:
		return nil, fmt.Errorf("unknown laplacian %d", opts.Laplacian)
	}
	if err != nil {
		return nil, err
	}
	sys.L = l

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch opts.Energy {
	case Harmonic:
		sys.Q = l
	case Biharmonic:
		ml := l
		if sys.Mass != nil {
			inv := make([]float64, len(sys.Mass))
			for i, m := range sys.Mass {
				inv[i] = 1 / m
			}
			ml = l.ScaleRows(inv)
			// (h/12)² / (h³/8)
			sys.Scale = h * h / 144 / (h * h * h / 8)
		}
		if sys.Q, err = linalg.Mul(l, ml); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown energy %d", opts.Energy)
	}
	return sys, nil
}

// LumpedMass returns, per node, the number of incident elements. This is
// the row-sum lumped trilinear mass matrix divided by h³/8.
func LumpedMass(vm *volume.Mesh) []float64 {
	m := make([]float64, len(vm.Nodes))
	for _, e := range vm.Elements {
		for _, n := range e {
			m[n]++
		}
	}
	return m
}

// femStencil is the trilinear hex stiffness in units of h/12, indexed by
// the number of axes two corners differ in.
var femStencil = [4]float64{4, 0, -1, -1}

// femLaplacian assembles the hex stiffness matrix. Elements are split into
// contiguous ranges per worker and the per-worker triplets are merged in
// range order. Stencil entries are small integers, so the sums are exact for
// any worker count.
func femLaplacian(ctx context.Context, vm *volume.Mesh, workers int) (*linalg.CSR, error) {
	n := len(vm.Nodes)
	ne := len(vm.Elements)
	parts := make([]*linalg.Triplets, workers)

	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*ne/workers, (w+1)*ne/workers
		eg.Go(func() error {
			t := linalg.NewTriplets(n, n)
			for ei := lo; ei < hi; ei++ {
				if (ei-lo)%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				e := vm.Elements[ei]
				for a := 0; a < 8; a++ {
					for b := 0; b < 8; b++ {
						d := bits.OnesCount(uint(a ^ b))
						if d < 2 {
							continue
						}
						t.Add(e[a], e[b], femStencil[d])
					}
				}
			}
			parts[w] = t
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return withZeroRowSums(n, parts), nil
}

// graphLaplacian assembles the umbrella operator: -1 for every lattice
// edge that is an edge of some element. Nodes are split into contiguous
// ranges per worker; each worker emits the edges leaving its nodes in the
// +x, +y and +z directions.
func graphLaplacian(ctx context.Context, vm *volume.Mesh, workers int) (*linalg.CSR, error) {
	n := len(vm.Nodes)
	parts := make([]*linalg.Triplets, workers)

	eg, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*n/workers, (w+1)*n/workers
		eg.Go(func() error {
			t := linalg.NewTriplets(n, n)
			for a := lo; a < hi; a++ {
				if (a-lo)%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				c := vm.Lattice[a]
				for axis := 0; axis < 3; axis++ {
					nb := c
					nb[axis]++
					b := vm.NodeAt(nb[0], nb[1], nb[2])
					if b < 0 || !edgeInElement(vm, c, axis) {
						continue
					}
					t.Add(a, b, -1)
					t.Add(b, a, -1)
				}
			}
			parts[w] = t
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return withZeroRowSums(n, parts), nil
}

// edgeInElement reports whether the lattice edge from c along axis borders
// an occupied voxel. Up to four voxels share the edge.
func edgeInElement(vm *volume.Mesh, c [3]int, axis int) bool {
	u, v := (axis+1)%3, (axis+2)%3
	for du := 0; du < 2; du++ {
		for dv := 0; dv < 2; dv++ {
			p := c
			p[u] -= du
			p[v] -= dv
			if vm.ElementAt(p[0], p[1], p[2]) >= 0 {
				return true
			}
		}
	}
	return false
}

// withZeroRowSums merges the off-diagonal triplets and sets every diagonal
// entry to minus its row's off-diagonal sum. Entries are integers in
// lattice units, so the row sums are exactly zero.
func withZeroRowSums(n int, parts []*linalg.Triplets) *linalg.CSR {
	all := linalg.NewTriplets(n, n)
	for _, p := range parts {
		all.Append(p)
	}
	for i := 0; i < n; i++ {
		all.Add(i, i, 0)
	}
	l := all.ToCSR()
	for i := 0; i < n; i++ {
		cols, vals := l.Row(i)
		var s float64
		diag := -1
		for k, j := range cols {
			if j == i {
				diag = k
				continue
			}
			s += vals[k]
		}
		vals[diag] = -s
	}
	return l
}
