// Package qp minimizes the summed quadratic energy of all handle weight
// fields subject to pinned values, bounds [0, 1] and partition of unity.
package qp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/bbweights/pkg/linalg"
)

// Solver errors.
var (
	ErrNoHandles = errors.New("no handle has a pinned node")
	ErrSize      = errors.New("owner table does not match matrix size")
)

const boundSlack = 1e-8

// Options controls the solve.
type Options struct {
	MaxIterations   int     // refinement iterations, 0 scales with the free node count
	Tolerance       float64 // largest weight change at convergence, 0 means 1e-6
	CGMaxIterations int     // 0 means 10 * free nodes
	CGTolerance     float64 // 0 means 1e-10
	Workers         int     // 0 uses runtime.NumCPU()
}

// minIterations is the smallest automatic refinement cap.
const minIterations = 1000

// withDefaults fills unset options for a problem with nf free nodes. The
// automatic iteration cap grows like nf^(2/3): accelerated gradient needs
// about sqrt(cond(Q)) steps and the biharmonic condition number grows with
// the fourth power of the grid resolution.
func (o Options) withDefaults(nf int) Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = max(minIterations, int(math.Round(4*math.Cbrt(float64(nf)*float64(nf)))))
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-6
	}
	if o.CGTolerance <= 0 {
		o.CGTolerance = 1e-10
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}

// Problem is the quadratic program over n nodes and Handles columns.
// Owner[v] is the handle node v is pinned to (weight 1 there and 0 for every
// other handle), or -1 for a free node.
type Problem struct {
	Q       *linalg.CSR
	Owner   []int
	Handles int
}

// Result holds node weights, one row per node and one column per handle.
type Result struct {
	W          *mat.Dense
	Iterations int  // refinement iterations
	Converged  bool // false means the iteration cap was hit
	Energy     float64
	CG         []linalg.CGResult // warm start per active handle
	Clamped    int               // warm start weights outside [0, 1]
}

// Solve runs the three phases: an unconstrained conjugate gradient solve
// per handle, a projection of every node's weights onto the probability
// simplex, and accelerated projected gradient refinement until the set of
// zero weights settles. Every returned iterate is feasible.
func Solve(ctx context.Context, p Problem, opts Options) (*Result, error) {
	n := p.Q.Rows
	if len(p.Owner) != n {
		return nil, fmt.Errorf("%w: %d nodes, %d owners", ErrSize, n, len(p.Owner))
	}

	// Columns that own at least one node take part; the rest stay zero.
	pinned := make([]bool, p.Handles)
	for _, h := range p.Owner {
		if h >= 0 {
			pinned[h] = true
		}
	}
	var active []int
	for h, ok := range pinned {
		if ok {
			active = append(active, h)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoHandles
	}
	k := len(active)

	free := make([]int, n)
	fixed := make([]int, n)
	var freeNodes, fixedNodes []int
	for v, h := range p.Owner {
		if h < 0 {
			free[v], fixed[v] = len(freeNodes), -1
			freeNodes = append(freeNodes, v)
		} else {
			free[v], fixed[v] = -1, len(fixedNodes)
			fixedNodes = append(fixedNodes, v)
		}
	}
	nf := len(freeNodes)
	opts = opts.withDefaults(nf)

	res := &Result{W: mat.NewDense(n, p.Handles, nil), Converged: true}
	for _, v := range fixedNodes {
		res.W.Set(v, p.Owner[v], 1)
	}
	if nf == 0 {
		res.Energy = energy(p.Q, res.W, active)
		return res, nil
	}
	if k == 1 {
		for _, v := range freeNodes {
			res.W.Set(v, active[0], 1)
		}
		res.Energy = energy(p.Q, res.W, active)
		return res, nil
	}

	qff, qfc := p.Q.Split(free, fixed, nf, len(fixedNodes))

	// b_h = -Q_FC c_h, with c_h the indicator of nodes pinned to h.
	b := make([][]float64, k)
	x := make([][]float64, k)
	c := make([]float64, len(fixedNodes))
	for a, h := range active {
		for j, v := range fixedNodes {
			c[j] = 0
			if p.Owner[v] == h {
				c[j] = 1
			}
		}
		b[a] = make([]float64, nf)
		qfc.MulVec(b[a], c)
		floats.Scale(-1, b[a])
		x[a] = make([]float64, nf)
	}

	// Phase 1: unconstrained solves. With partition-of-unity pins and
	// Q·1 = 0 the columns already sum to one.
	res.CG = make([]linalg.CGResult, k)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(opts.Workers)
	for a := range active {
		eg.Go(func() error {
			r, err := linalg.SolveCG(egCtx, qff, b[a], x[a], linalg.CGOptions{
				MaxIterations: opts.CGMaxIterations,
				Tolerance:     opts.CGTolerance,
			})
			res.CG[a] = r
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	s := &state{qff: qff, b: b, k: k, nf: nf, workers: opts.Workers}

	// Phase 2: project onto the bounds and the sum constraint. Deviations
	// within boundSlack are conjugate gradient round-off, not violations.
	for a := range x {
		for _, v := range x[a] {
			if v < -boundSlack || v > 1+boundSlack {
				res.Clamped++
			}
		}
	}
	s.project(x)

	// Phase 3: refinement, skipped when the warm start was an exact
	// optimum that already lay inside the bounds.
	if res.Clamped > 0 || !allConverged(res.CG) {
		it, converged, err := s.refine(ctx, x, opts)
		if err != nil {
			return nil, err
		}
		res.Iterations, res.Converged = it, converged
	}

	for a, h := range active {
		for i, v := range freeNodes {
			res.W.Set(v, h, x[a][i])
		}
	}
	res.Energy = energy(p.Q, res.W, active)
	return res, nil
}

// state carries the free-block system through refinement.
type state struct {
	qff     *linalg.CSR
	b       [][]float64
	k, nf   int
	workers int
}

// project maps every node's weight vector across handles onto the simplex.
func (s *state) project(x [][]float64) {
	s.forNodes(func(lo, hi int) {
		y := make([]float64, s.k)
		scratch := make([]float64, s.k)
		for i := lo; i < hi; i++ {
			for a := range x {
				y[a] = x[a][i]
			}
			projectSimplex(y, scratch)
			for a := range x {
				x[a][i] = y[a]
			}
		}
	})
}

// forNodes splits [0, nf) into one contiguous range per worker.
func (s *state) forNodes(fn func(lo, hi int)) {
	var eg errgroup.Group
	for w := 0; w < s.workers; w++ {
		lo, hi := w*s.nf/s.workers, (w+1)*s.nf/s.workers
		if lo == hi {
			continue
		}
		eg.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = eg.Wait()
}

// gradient sets g_a = Q_FF x_a - b_a, half the true gradient.
func (s *state) gradient(g, x [][]float64) {
	var eg errgroup.Group
	eg.SetLimit(s.workers)
	for a := range x {
		eg.Go(func() error {
			s.qff.MulVec(g[a], x[a])
			floats.Sub(g[a], s.b[a])
			return nil
		})
	}
	_ = eg.Wait()
}

// objective is sum_a x_aᵀ Q_FF x_a - 2 b_aᵀ x_a given g = Q_FF x - b:
// xᵀQx - 2bᵀx = xᵀ(Qx - b) - bᵀx.
func (s *state) objective(x, g [][]float64) float64 {
	var f float64
	for a := range x {
		f += floats.Dot(x[a], g[a]) - floats.Dot(s.b[a], x[a])
	}
	return f
}

// refine runs projected gradient descent with Nesterov momentum and
// function value restarts. The metric is scaled per node by the diagonal of
// Q_FF; since the scale is shared by all handles at a node, the scaled
// projection is still the plain simplex projection.
func (s *state) refine(ctx context.Context, x [][]float64, opts Options) (int, bool, error) {
	diag := s.qff.Diagonal()
	for i, d := range diag {
		if !(d > 0) {
			diag[i] = 1
		}
	}
	// Gershgorin bound on the largest eigenvalue of D^-1/2 Q D^-1/2.
	lip := 0.0
	for i := 0; i < s.nf; i++ {
		cols, vals := s.qff.Row(i)
		var r float64
		for k, j := range cols {
			r += math.Abs(vals[k]) / math.Sqrt(diag[i]*diag[j])
		}
		lip = math.Max(lip, r)
	}
	step := make([]float64, s.nf)
	for i := range step {
		step[i] = 1 / (lip * diag[i])
	}

	g := newCols(s.k, s.nf)
	y := cloneCols(x)
	prev := cloneCols(x)
	next := newCols(s.k, s.nf)

	s.gradient(g, x)
	f := s.objective(x, g)
	t := 1.0

	for it := 1; it <= opts.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return it - 1, false, err
		}

		s.gradient(g, y)
		for a := range next {
			for i := range next[a] {
				next[a][i] = y[a][i] - step[i]*g[a][i]
			}
		}
		s.project(next)

		s.gradient(g, next)
		fNext := s.objective(next, g)
		if fNext > f {
			// Momentum overshot: restart from the last accepted iterate.
			if t == 1 {
				// A plain projected step only fails to descend through
				// rounding, so x is optimal to working precision.
				return it, true, nil
			}
			t = 1
			copyCols(y, x)
			continue
		}

		delta, changed := 0.0, 0
		for a := range next {
			for i := range next[a] {
				delta = math.Max(delta, math.Abs(next[a][i]-x[a][i]))
				if (next[a][i] == 0) != (x[a][i] == 0) {
					changed++
				}
			}
		}

		copyCols(prev, x)
		copyCols(x, next)
		f = fNext

		tNext := (1 + math.Sqrt(1+4*t*t)) / 2
		beta := (t - 1) / tNext
		t = tNext
		for a := range y {
			for i := range y[a] {
				y[a][i] = x[a][i] + beta*(x[a][i]-prev[a][i])
			}
		}

		if delta < opts.Tolerance && changed == 0 {
			return it, true, nil
		}
	}
	return opts.MaxIterations, false, nil
}

func allConverged(rs []linalg.CGResult) bool {
	for _, r := range rs {
		if !r.Converged {
			return false
		}
	}
	return true
}

// energy sums wᵀ Q w over the active columns.
func energy(q *linalg.CSR, w *mat.Dense, active []int) float64 {
	n, _ := w.Dims()
	col := make([]float64, n)
	qw := make([]float64, n)
	var e float64
	for _, h := range active {
		mat.Col(col, h, w)
		q.MulVec(qw, col)
		e += floats.Dot(col, qw)
	}
	return e
}

func newCols(k, n int) [][]float64 {
	out := make([][]float64, k)
	for a := range out {
		out[a] = make([]float64, n)
	}
	return out
}

func cloneCols(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for a := range x {
		out[a] = append([]float64(nil), x[a]...)
	}
	return out
}

func copyCols(dst, src [][]float64) {
	for a := range src {
		copy(dst[a], src[a])
	}
}
