package bbw_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/internal/testmesh"
	"github.com/Faultbox/bbweights/pkg/bbw"
	"github.com/Faultbox/bbweights/pkg/energy"
	"github.com/Faultbox/bbweights/pkg/handles"
	"github.com/Faultbox/bbweights/pkg/mesh"
	"github.com/Faultbox/bbweights/pkg/skeleton"
)

func options(res int) bbw.Options {
	o := bbw.DefaultOptions()
	o.Resolution = res
	o.MaxIterations = 20000
	return o
}

func TestSolve_PartitionOfUnity(t *testing.T) {
	tests := []struct {
		name string
		mode handles.Mode
		lap  energy.Laplacian
		kind energy.Kind
	}{
		{"joints graph biharmonic", handles.Joints, energy.Graph, energy.Biharmonic},
		{"bones graph biharmonic", handles.Bones, energy.Graph, energy.Biharmonic},
		{"joints fem biharmonic", handles.Joints, energy.FEM, energy.Biharmonic},
		{"joints graph harmonic", handles.Joints, energy.Graph, energy.Harmonic},
	}
	sphere := testmesh.Sphere(r3.Vec{}, 1, 12, 16)
	skel := testmesh.Chain(3, -0.6, 0.6)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := options(12)
			opts.Handles = tt.mode
			opts.Laplacian = tt.lap
			opts.Energy = tt.kind

			res, err := bbw.Solve(context.Background(), sphere, skel, opts)
			if err != nil {
				t.Fatalf("Solve failed: %v", err)
			}
			rows, cols := res.Weights.Dims()
			if rows != len(sphere.Vertices) {
				t.Errorf("expected %d rows, got %d", len(sphere.Vertices), rows)
			}
			if cols != len(res.Handles) {
				t.Errorf("expected %d columns, got %d", len(res.Handles), cols)
			}
			if err := bbw.CheckPartition(res.Weights, 1e-12); err != nil {
				t.Error(err)
			}
			if res.Stats.Nodes == 0 || res.Stats.Elements == 0 {
				t.Errorf("expected a non-empty volume, got %+v", res.Stats)
			}
		})
	}
}

func TestSolve_SingleJoint(t *testing.T) {
	m := testmesh.Box(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1})
	res, err := bbw.Solve(context.Background(), m, testmesh.SingleJoint(r3.Vec{}), options(8))
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	rows, cols := res.Weights.Dims()
	if cols != 1 {
		t.Fatalf("expected 1 column, got %d", cols)
	}
	for i := 0; i < rows; i++ {
		if w := res.Weights.At(i, 0); w != 1 {
			t.Errorf("vertex %d: expected weight exactly 1, got %.17g", i, w)
		}
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", res.Warnings)
	}
}

func TestSolve_Idempotent(t *testing.T) {
	m := testmesh.Bar()
	skel := testmesh.Chain(3, -1.5, 1.5)

	a := options(16)
	a.Workers = 1
	b := options(16)
	b.Workers = 4

	first, err := bbw.Solve(context.Background(), m, skel, a)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	again, err := bbw.Solve(context.Background(), m, skel, a)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	parallel, err := bbw.Solve(context.Background(), m, skel, b)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	if !mat.Equal(first.Weights, again.Weights) {
		t.Error("two runs with identical options differ")
	}
	if !mat.Equal(first.Weights, parallel.Weights) {
		t.Error("weights depend on the worker count")
	}
	if first.RunID == again.RunID {
		t.Error("expected distinct run ids")
	}
}

func TestSolve_MirrorSymmetry(t *testing.T) {
	m := testmesh.Bar()
	opts := options(16)
	opts.Handles = handles.Joints

	res, err := bbw.Solve(context.Background(), m, testmesh.MirroredPair(1), opts)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}

	for i, v := range m.Vertices {
		mirror := r3.Vec{X: -v.X, Y: v.Y, Z: v.Z}
		j := -1
		for k, u := range m.Vertices {
			if r3.Norm(r3.Sub(u, mirror)) < 1e-12 {
				j = k
				break
			}
		}
		if j < 0 {
			t.Fatalf("vertex %d has no mirror image", i)
		}
		if d := math.Abs(res.Weights.At(i, 0) - res.Weights.At(j, 1)); d > 1e-4 {
			t.Errorf("vertex %d: left %g, mirrored right %g", i, res.Weights.At(i, 0), res.Weights.At(j, 1))
		}
	}

	// The ends of the bar belong to the nearer joint.
	for i, v := range m.Vertices {
		near := 0
		if v.X > 0 {
			near = 1
		}
		if res.Weights.At(i, near) < 0.5 {
			t.Errorf("vertex %d at %v: expected the nearer joint to dominate, got %v", i, v, res.Weights.RawRowView(i))
		}
	}
}

func TestSolve_Errors(t *testing.T) {
	box := testmesh.Box(r3.Vec{X: -1, Y: -1, Z: -1}, r3.Vec{X: 1, Y: 1, Z: 1})
	joint := testmesh.SingleJoint(r3.Vec{})

	tests := []struct {
		name string
		mesh *mesh.Mesh
		skel *skeleton.Skeleton
		res  int
		want error
		last bbw.Phase // last phase entered before failing, "" for none
	}{
		{"resolution too low", box, joint, 1, bbw.ErrInvalidResolution, ""},
		{"resolution too high", box, joint, 513, bbw.ErrInvalidResolution, ""},
		{"resolution before mesh", nil, nil, 0, bbw.ErrInvalidResolution, ""},
		{"open mesh", testmesh.OpenBox(), joint, 8, bbw.ErrGeometry, bbw.PhaseValidate},
		{"nil mesh", nil, joint, 8, bbw.ErrGeometry, ""},
		{"empty skeleton", box, &skeleton.Skeleton{}, 8, bbw.ErrSkeleton, bbw.PhaseValidate},
		{"two pieces", testmesh.TwoBoxes(1, 2), joint, 12, bbw.ErrTopology, bbw.PhaseMesh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var last bbw.Phase
			opts := options(tt.res)
			opts.Progress = func(p bbw.Phase) { last = p }

			_, err := bbw.Solve(context.Background(), tt.mesh, tt.skel, opts)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if last != tt.last {
				t.Errorf("expected failure after phase %q, got %q", tt.last, last)
			}
		})
	}
}

func TestSolve_ResolutionRefinement(t *testing.T) {
	m := testmesh.Sphere(r3.Vec{}, 1, 10, 12)
	skel := testmesh.MirroredPair(0.5)

	for _, res := range []int{8, 12, 16} {
		r, err := bbw.Solve(context.Background(), m, skel, options(res))
		if err != nil {
			t.Fatalf("res %d: Solve failed: %v", res, err)
		}
		if err := bbw.CheckPartition(r.Weights, 1e-12); err != nil {
			t.Errorf("res %d: %v", res, err)
		}
	}
}

func TestSolve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bbw.Solve(ctx, testmesh.Bar(), testmesh.MirroredPair(1), options(8))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSolve_Progress(t *testing.T) {
	var phases []bbw.Phase
	opts := options(8)
	opts.Progress = func(p bbw.Phase) { phases = append(phases, p) }
	opts.KeepVolume = true

	res, err := bbw.Solve(context.Background(), testmesh.Bar(), testmesh.MirroredPair(1), opts)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	want := []bbw.Phase{
		bbw.PhaseValidate, bbw.PhaseVoxelize, bbw.PhaseMesh, bbw.PhaseHandles,
		bbw.PhaseAssemble, bbw.PhaseSolve, bbw.PhaseTransfer,
	}
	if len(phases) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d: expected %s, got %s", i, want[i], phases[i])
		}
	}
	if len(res.Timings) != len(want) {
		t.Errorf("expected %d timings, got %d", len(want), len(res.Timings))
	}
	if res.Volume == nil || res.NodeWeights == nil {
		t.Fatal("expected the volume to be kept")
	}
	if err := bbw.CheckPartition(res.NodeWeights, 1e-9); err != nil {
		t.Error(err)
	}
}

func TestResult_JointWeights(t *testing.T) {
	skel := testmesh.Chain(3, -1.5, 1.5)
	opts := options(16)
	opts.Handles = handles.Bones

	res, err := bbw.Solve(context.Background(), testmesh.Bar(), skel, opts)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if len(res.Handles) != 2 {
		t.Fatalf("expected 2 bone handles, got %d", len(res.Handles))
	}

	jw, err := res.JointWeights(skel)
	if err != nil {
		t.Fatalf("JointWeights failed: %v", err)
	}
	rows, cols := jw.Dims()
	if cols != 3 {
		t.Fatalf("expected 3 joint columns, got %d", cols)
	}
	for i := 0; i < rows; i++ {
		if w := jw.At(i, 2); w != 0 {
			t.Errorf("vertex %d: leaf joint expected 0, got %g", i, w)
		}
		for h := 0; h < 2; h++ {
			if jw.At(i, h) != res.Weights.At(i, h) {
				t.Errorf("vertex %d: bone %d weight not carried to its parent joint", i, h)
			}
		}
	}
	if err := bbw.CheckPartition(jw, 1e-12); err != nil {
		t.Error(err)
	}
}

func TestDominant(t *testing.T) {
	w := mat.NewDense(3, 3, []float64{
		0.2, 0.5, 0.3,
		0.5, 0.5, 0,
		0, 0, 1,
	})
	got := bbw.Dominant(w)
	want := []int{1, 0, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestCheckPartition(t *testing.T) {
	tests := []struct {
		name string
		data []float64
		ok   bool
	}{
		{"valid", []float64{0.25, 0.75}, true},
		{"negative", []float64{-0.1, 1.1}, false},
		{"short", []float64{0.4, 0.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bbw.CheckPartition(mat.NewDense(1, 2, tt.data), 1e-12)
			if (err == nil) != tt.ok {
				t.Errorf("expected ok=%v, got %v", tt.ok, err)
			}
		})
	}
}

func TestSolve_ClosedMeshHasNoFallback(t *testing.T) {
	sphere := testmesh.Sphere(r3.Vec{}, 1, 12, 16)
	skel := testmesh.Chain(3, -0.6, 0.6)

	for _, res := range []int{12, 24} {
		r, err := bbw.Solve(context.Background(), sphere, skel, options(res))
		if err != nil {
			t.Fatalf("res %d: Solve failed: %v", res, err)
		}
		if r.Stats.Fallback != 0 {
			t.Errorf("res %d: expected every vertex inside the volume, %d fell back", res, r.Stats.Fallback)
		}
		for _, w := range r.Warnings {
			if w.Kind == bbw.FallbackWarning {
				t.Errorf("res %d: unexpected warning %q", res, w.Message)
			}
		}
	}
}

func TestSolve_DefaultOptionsConverge(t *testing.T) {
	opts := bbw.DefaultOptions()
	opts.Resolution = 24

	r, err := bbw.Solve(context.Background(), testmesh.Sphere(r3.Vec{}, 1, 12, 16), testmesh.Chain(3, -0.6, 0.6), opts)
	if err != nil {
		t.Fatalf("Solve failed: %v", err)
	}
	if !r.Converged {
		t.Errorf("expected convergence under the default options, stopped after %d iterations", r.Iterations)
	}
	for _, w := range r.Warnings {
		if w.Kind == bbw.ConvergenceWarning {
			t.Errorf("unexpected warning %q", w.Message)
		}
	}
	if err := bbw.CheckPartition(r.Weights, 1e-12); err != nil {
		t.Error(err)
	}
}
