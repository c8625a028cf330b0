package transfer_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/internal/testmesh"
	"github.com/Faultbox/bbweights/pkg/transfer"
	"github.com/Faultbox/bbweights/pkg/volume"
	"github.com/Faultbox/bbweights/pkg/voxel"
)

func boxVolume(t *testing.T) *volume.Mesh {
	t.Helper()
	g, err := voxel.Voxelize(context.Background(), testmesh.Box(r3.Vec{}, r3.Vec{X: 1, Y: 1, Z: 1}), 4, voxel.Options{})
	if err != nil {
		t.Fatalf("Voxelize failed: %v", err)
	}
	vm, err := volume.Build(g)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return vm
}

// linearWeights assigns w0 = x, w1 = 1 - x at every node.
func linearWeights(vm *volume.Mesh) *mat.Dense {
	w := mat.NewDense(len(vm.Nodes), 2, nil)
	for i, p := range vm.Nodes {
		w.Set(i, 0, p.X)
		w.Set(i, 1, 1-p.X)
	}
	return w
}

func TestWeights_ReproducesLinearField(t *testing.T) {
	vm := boxVolume(t)
	points := []r3.Vec{
		{X: 0.1, Y: 0.2, Z: 0.3},
		{X: 0.5, Y: 0.5, Z: 0.5},
		{X: 0.93, Y: 0.01, Z: 0.77},
		{X: 1, Y: 1, Z: 1},
	}

	out, st, err := transfer.Weights(context.Background(), vm, linearWeights(vm), points, transfer.Options{Workers: 3})
	if err != nil {
		t.Fatalf("Weights failed: %v", err)
	}
	if st.Vertices != 4 || st.Fallback != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
	for i, p := range points {
		if got := out.At(i, 0); math.Abs(got-p.X) > 1e-12 {
			t.Errorf("point %d: expected %f, got %f", i, p.X, got)
		}
		if s := out.At(i, 0) + out.At(i, 1); math.Abs(s-1) > 1e-15 {
			t.Errorf("point %d: row sums to %.17f", i, s)
		}
	}
}

func TestWeights_OutsidePointsFallBack(t *testing.T) {
	vm := boxVolume(t)
	out, st, err := transfer.Weights(context.Background(), vm, linearWeights(vm), []r3.Vec{{X: 3, Y: 0.5, Z: 0.5}}, transfer.Options{})
	if err != nil {
		t.Fatalf("Weights failed: %v", err)
	}
	if st.Fallback != 1 {
		t.Errorf("expected 1 fallback, got %d", st.Fallback)
	}
	if got := out.At(0, 0); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected clamped weight 1, got %f", got)
	}
}

func TestInterpolate_RenormalizesAndClamps(t *testing.T) {
	nodeW := mat.NewDense(8, 3, nil)
	for c := 0; c < 8; c++ {
		nodeW.SetRow(c, []float64{0.5, 0.6, -0.05})
	}
	e := [8]int{0, 1, 2, 3, 4, 5, 6, 7}

	dst := make([]float64, 3)
	transfer.Interpolate(dst, nodeW, e, r3.Vec{X: 0.3, Y: 0.3, Z: 0.3})
	if dst[2] != 0 {
		t.Errorf("expected negative weight clamped to 0, got %g", dst[2])
	}
	if s := dst[0] + dst[1] + dst[2]; math.Abs(s-1) > 1e-15 {
		t.Errorf("expected exact partition of unity, got %.17f", s)
	}
	if math.Abs(dst[0]-0.5/1.1) > 1e-12 {
		t.Errorf("expected %f, got %f", 0.5/1.1, dst[0])
	}
}

func TestWeights_ShapeMismatch(t *testing.T) {
	vm := boxVolume(t)
	_, _, err := transfer.Weights(context.Background(), vm, mat.NewDense(3, 2, nil), []r3.Vec{{}}, transfer.Options{})
	if !errors.Is(err, transfer.ErrShape) {
		t.Errorf("expected ErrShape, got %v", err)
	}
}
