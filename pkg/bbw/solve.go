// Package bbw computes bounded biharmonic skinning weights for a closed
// triangle mesh and a joint hierarchy.
//
// The pipeline voxelizes the surface, builds a hexahedral volume mesh over
// the occupied voxels, pins skeleton handles to volume nodes, assembles the
// Laplacian energy and solves one coupled quadratic program for all handles
// under bounds and partition of unity. The node weights are then
// interpolated back onto the surface vertices.
package bbw

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/bbweights/pkg/energy"
	"github.com/Faultbox/bbweights/pkg/handles"
	"github.com/Faultbox/bbweights/pkg/mesh"
	"github.com/Faultbox/bbweights/pkg/qp"
	"github.com/Faultbox/bbweights/pkg/skeleton"
	"github.com/Faultbox/bbweights/pkg/transfer"
	"github.com/Faultbox/bbweights/pkg/volume"
	"github.com/Faultbox/bbweights/pkg/voxel"
)

// run tracks one solve.
type run struct {
	ctx   context.Context
	opts  Options
	log   *zap.Logger
	res   *Result
	start time.Time
	phase Phase
}

func (r *run) enter(p Phase) error {
	r.leave()
	if err := r.ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	r.phase, r.start = p, time.Now()
	if r.opts.Progress != nil {
		r.opts.Progress(p)
	}
	return nil
}

func (r *run) leave() {
	if r.phase == "" {
		return
	}
	d := time.Since(r.start)
	r.res.Timings = append(r.res.Timings, Timing{Phase: r.phase, Duration: d})
	r.log.Debug("phase done", zap.String("phase", string(r.phase)), zap.Duration("took", d))
	r.phase = ""
}

func (r *run) warn(kind WarningKind, msg string) {
	r.res.Warnings = append(r.res.Warnings, Warning{Kind: kind, Message: msg})
	r.log.Warn(msg, zap.Stringer("kind", kind))
}

// Solve computes one weight per surface vertex and handle. Inputs are
// validated before any work starts: a bad resolution fails with
// ErrInvalidResolution, a malformed skeleton with ErrSkeleton and an open,
// non-manifold or degenerate mesh with ErrGeometry. A volume that falls
// apart into several pieces fails with ErrTopology before assembly.
// Numerical trouble never fails the solve; it is reported in
// Result.Warnings next to feasible weights.
func Solve(ctx context.Context, m *mesh.Mesh, skel *skeleton.Skeleton, opts Options) (*Result, error) {
	if err := ValidateResolution(opts.Resolution); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("%w: nil mesh", ErrGeometry)
	}
	if skel == nil {
		return nil, fmt.Errorf("%w: nil skeleton", ErrSkeleton)
	}

	r := &run{
		ctx:  ctx,
		opts: opts,
		log:  opts.Logger,
		res:  &Result{RunID: uuid.New()},
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	r.log = r.log.With(zap.String("run", r.res.RunID.String()))
	begin := time.Now()

	if err := r.enter(PhaseValidate); err != nil {
		return nil, err
	}
	if err := skel.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSkeleton, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeometry, err)
	}

	if err := r.enter(PhaseVoxelize); err != nil {
		return nil, err
	}
	grid, err := voxel.Voxelize(ctx, m, opts.Resolution, voxel.Options{Workers: opts.Workers})
	if err != nil {
		if errors.Is(err, voxel.ErrEmptyBounds) {
			return nil, fmt.Errorf("%w: %w", ErrGeometry, err)
		}
		return nil, fmt.Errorf("%s: %w", PhaseVoxelize, err)
	}
	r.res.Stats.fromGrid(grid)
	if grid.OddColumns > 0 {
		r.warn(ParityWarning, fmt.Sprintf("%d ray column(s) crossed the surface an odd number of times; the mesh may self-intersect", grid.OddColumns))
	}

	if err := r.enter(PhaseMesh); err != nil {
		return nil, err
	}
	vm, err := volume.Build(grid)
	switch {
	case errors.Is(err, volume.ErrDisconnected):
		return nil, fmt.Errorf("%w: %w", ErrTopology, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrGeometry, err)
	}
	r.res.Stats.Nodes = len(vm.Nodes)
	r.res.Stats.Elements = len(vm.Elements)

	if err := r.enter(PhaseHandles); err != nil {
		return nil, err
	}
	hs := handles.Build(vm, skel, handles.Options{Mode: opts.Handles, Radius: opts.CapsuleRadius})
	for _, w := range hs.Warnings {
		switch w.Kind {
		case handles.Collision:
			r.warn(CollisionWarning, w.Message)
		case handles.Empty:
			r.warn(EmptyHandleWarning, w.Message)
		case handles.Outside:
			r.warn(OutsideJointWarning, w.Message)
		}
	}
	r.res.Handles = hs.Handles
	r.res.Mode = hs.Mode
	r.res.Stats.Pinned = hs.Pinned()

	if err := r.enter(PhaseAssemble); err != nil {
		return nil, err
	}
	sys, err := energy.Assemble(ctx, vm, energy.Options{
		Laplacian: opts.Laplacian,
		Energy:    opts.Energy,
		Workers:   opts.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PhaseAssemble, err)
	}

	if err := r.enter(PhaseSolve); err != nil {
		return nil, err
	}
	sol, err := qp.Solve(ctx, qp.Problem{Q: sys.Q, Owner: hs.Owner, Handles: len(hs.Handles)}, qp.Options{
		MaxIterations:   opts.MaxIterations,
		Tolerance:       opts.Tolerance,
		CGMaxIterations: opts.CGMaxIterations,
		CGTolerance:     opts.CGTolerance,
		Workers:         opts.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PhaseSolve, err)
	}
	r.res.Converged = sol.Converged
	r.res.Iterations = sol.Iterations
	r.res.Energy = sol.Energy * sys.Scale
	if !sol.Converged {
		r.warn(ConvergenceWarning, fmt.Sprintf("refinement stopped after %d iterations without settling; weights are feasible but may not be optimal", sol.Iterations))
	}

	if err := r.enter(PhaseTransfer); err != nil {
		return nil, err
	}
	w, st, err := transfer.Weights(ctx, vm, sol.W, m.Vertices, transfer.Options{Workers: opts.Workers})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", PhaseTransfer, err)
	}
	r.res.Weights = w
	r.res.Stats.Fallback = st.Fallback
	if st.Fallback > 0 {
		r.warn(FallbackWarning, fmt.Sprintf("%d vertex(es) lie outside the volume and took the nearest voxel's weights", st.Fallback))
	}
	r.leave()

	if opts.KeepVolume {
		r.res.Volume = vm
		r.res.NodeWeights = sol.W
	}

	r.log.Info("weights solved",
		zap.Int("vertices", len(m.Vertices)),
		zap.Int("handles", len(hs.Handles)),
		zap.Int("nodes", len(vm.Nodes)),
		zap.Int("iterations", sol.Iterations),
		zap.Bool("converged", sol.Converged),
		zap.Int("warnings", len(r.res.Warnings)),
		zap.Duration("took", time.Since(begin)),
	)
	return r.res, nil
}
