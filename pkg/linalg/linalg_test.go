package linalg

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func dense(a *CSR) [][]float64 {
	out := make([][]float64, a.Rows)
	for i := range out {
		out[i] = make([]float64, a.Cols)
		cols, vals := a.Row(i)
		for k, j := range cols {
			out[i][j] = vals[k]
		}
	}
	return out
}

// path returns the graph Laplacian of a path with n nodes plus shift on
// the diagonal.
func path(n int, shift float64) *CSR {
	t := NewTriplets(n, n)
	for i := 0; i < n; i++ {
		t.Add(i, i, shift)
		if i+1 < n {
			t.Add(i, i, 1)
			t.Add(i+1, i+1, 1)
			t.Add(i, i+1, -1)
			t.Add(i+1, i, -1)
		}
	}
	return t.ToCSR()
}

func TestTriplets_ToCSR(t *testing.T) {
	tr := NewTriplets(3, 3)
	tr.Add(2, 0, 1)
	tr.Add(0, 2, 5)
	tr.Add(0, 0, 1)
	tr.Add(2, 0, 2)
	tr.Add(0, 2, -5)

	m := tr.ToCSR()
	if m.NNZ() != 3 {
		t.Errorf("expected 3 stored entries, got %d", m.NNZ())
	}
	if m.At(2, 0) != 3 {
		t.Errorf("expected summed duplicate 3, got %f", m.At(2, 0))
	}
	if m.At(0, 2) != 0 {
		t.Errorf("expected cancelled entry 0, got %f", m.At(0, 2))
	}
	if m.At(1, 1) != 0 {
		t.Errorf("expected missing entry 0, got %f", m.At(1, 1))
	}
	if m.RowPtr[3] != 3 || m.RowPtr[1] != 2 || m.RowPtr[2] != 2 {
		t.Errorf("unexpected row pointers %v", m.RowPtr)
	}
}

func TestTriplets_AppendMatchesSingleBuilder(t *testing.T) {
	one := NewTriplets(4, 4)
	parts := []*Triplets{NewTriplets(4, 4), NewTriplets(4, 4), NewTriplets(4, 4)}
	for k := 0; k < 30; k++ {
		i, j, v := k%4, (k*7)%4, float64(k%5)-2
		one.Add(i, j, v)
		parts[k%3].Add(i, j, v)
	}
	merged := NewTriplets(4, 4)
	for _, p := range parts {
		merged.Append(p)
	}
	if !mat.Equal(one.ToCSR(), merged.ToCSR()) {
		t.Errorf("merged parts differ from a single builder:\n%v\n%v", dense(one.ToCSR()), dense(merged.ToCSR()))
	}
	if merged.Len() != one.Len() {
		t.Errorf("expected %d entries, got %d", one.Len(), merged.Len())
	}
}

func TestCSR_GonumMatrix(t *testing.T) {
	a := NewTriplets(2, 3)
	a.Add(0, 0, 1)
	a.Add(0, 2, 2)
	a.Add(1, 1, 3)
	m := a.ToCSR()

	want := mat.NewDense(2, 3, []float64{1, 0, 2, 0, 3, 0})
	if !mat.Equal(m, want) {
		t.Errorf("expected %v, got %v", mat.Formatted(want), mat.Formatted(m))
	}
	if !mat.Equal(m.T(), want.T()) {
		t.Error("implicit transpose differs")
	}
	if !mat.Equal(m.Transpose(), want.T()) {
		t.Error("explicit transpose differs")
	}

	var x mat.VecDense
	x.MulVec(m, mat.NewVecDense(3, []float64{1, 1, 1}))
	got := make([]float64, 2)
	m.MulVec(got, []float64{1, 1, 1})
	if x.AtVec(0) != got[0] || x.AtVec(1) != got[1] {
		t.Errorf("MulVec %v disagrees with gonum %v", got, mat.Formatted(&x))
	}
}

func TestMul_MatchesDense(t *testing.T) {
	a := NewTriplets(2, 3)
	a.Add(0, 0, 1)
	a.Add(0, 2, 2)
	a.Add(1, 1, 3)
	b := NewTriplets(3, 2)
	b.Add(0, 1, 4)
	b.Add(1, 0, 5)
	b.Add(2, 0, 6)
	b.Add(2, 1, 7)

	c, err := Mul(a.ToCSR(), b.ToCSR())
	if err != nil {
		t.Fatalf("Mul failed: %v", err)
	}
	want := [][]float64{{12, 18}, {15, 0}}
	got := dense(c)
	for i := range want {
		for j := range want[i] {
			if got[i][j] != want[i][j] {
				t.Errorf("(%d,%d): expected %f, got %f", i, j, want[i][j], got[i][j])
			}
		}
	}

	if _, err := Mul(a.ToCSR(), a.ToCSR()); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestLaplacianSquared(t *testing.T) {
	l := path(5, 0)
	q, err := Mul(l, l)
	if err != nil {
		t.Fatalf("Mul failed: %v", err)
	}
	if !q.IsSymmetric(0) {
		t.Error("expected symmetric product")
	}
	for i, s := range q.RowSums() {
		if s != 0 {
			t.Errorf("row %d: expected zero sum, got %g", i, s)
		}
	}
	if q.At(0, 0) != 2 || q.At(2, 2) != 6 || q.At(0, 2) != 1 {
		t.Errorf("unexpected entries %v", dense(q))
	}
}

func TestTransposeAndScale(t *testing.T) {
	a := NewTriplets(2, 3)
	a.Add(0, 2, 2)
	a.Add(1, 0, 3)
	m := a.ToCSR()

	tr := m.Transpose()
	if tr.Rows != 3 || tr.Cols != 2 || tr.At(2, 0) != 2 || tr.At(0, 1) != 3 {
		t.Errorf("unexpected transpose %v", dense(tr))
	}

	s := m.ScaleRows([]float64{10, -1})
	if s.At(0, 2) != 20 || s.At(1, 0) != -3 || m.At(0, 2) != 2 {
		t.Errorf("unexpected scaled matrix %v", dense(s))
	}
}

func TestSplit(t *testing.T) {
	l := path(4, 0)
	// nodes 0 and 3 fixed
	free := []int{-1, 0, 1, -1}
	fixed := []int{0, -1, -1, 1}

	ff, fc := l.Split(free, fixed, 2, 2)
	if ff.At(0, 0) != 2 || ff.At(0, 1) != -1 || ff.At(1, 1) != 2 {
		t.Errorf("unexpected free block %v", dense(ff))
	}
	if fc.At(0, 0) != -1 || fc.At(1, 1) != -1 || fc.At(0, 1) != 0 {
		t.Errorf("unexpected coupling block %v", dense(fc))
	}
}

func TestSolveCG(t *testing.T) {
	a := path(50, 0.1)
	want := make([]float64, 50)
	for i := range want {
		want[i] = math.Sin(float64(i) / 7)
	}
	b := make([]float64, 50)
	a.MulVec(b, want)

	x := make([]float64, 50)
	res, err := SolveCG(context.Background(), a, b, x, CGOptions{Tolerance: 1e-12})
	if err != nil {
		t.Fatalf("SolveCG failed: %v", err)
	}
	if !res.Converged {
		t.Fatalf("expected convergence, got %+v", res)
	}
	for i := range x {
		if math.Abs(x[i]-want[i]) > 1e-8 {
			t.Fatalf("x[%d]: expected %f, got %f", i, want[i], x[i])
		}
	}
}

func TestSolveCG_ZeroRHS(t *testing.T) {
	a := path(3, 1)
	x := []float64{1, 2, 3}
	res, err := SolveCG(context.Background(), a, make([]float64, 3), x, CGOptions{})
	if err != nil || !res.Converged {
		t.Fatalf("expected trivial convergence, got %+v %v", res, err)
	}
	for _, v := range x {
		if v != 0 {
			t.Fatalf("expected zero solution, got %v", x)
		}
	}
}

func TestSolveCG_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := path(10, 0.5)
	b := make([]float64, 10)
	b[0] = 1
	_, err := SolveCG(ctx, a, b, make([]float64, 10), CGOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
