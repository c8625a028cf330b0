// Package linalg provides the compressed sparse row kernels used to assemble
// and solve the weight systems.
package linalg

import (
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/sparse"
	"gonum.org/v1/gonum/mat"
)

// CSR is a compressed sparse row matrix. Column indices within a row are
// strictly increasing.
type CSR struct {
	Rows, Cols int
	RowPtr     []int
	ColIdx     []int
	Val        []float64
}

// Triplets accumulates (row, col, value) entries in a sparse array keyed by
// the row-major position. Repeated entries are summed as they are added, in
// insertion order.
type Triplets struct {
	Rows, Cols int
	acc        *sparse.SparseArray
}

// NewTriplets returns an empty builder.
func NewTriplets(rows, cols int) *Triplets {
	return &Triplets{Rows: rows, Cols: cols, acc: sparse.ZerosSparse(rows, cols)}
}

// Add adds v to entry (i, j). Adding zero still stores the entry.
func (t *Triplets) Add(i, j int, v float64) {
	t.acc.AddVal(v, i, j)
}

// Len returns the number of distinct stored entries.
func (t *Triplets) Len() int {
	return len(t.acc.Elements)
}

// Append adds the entries of other to t. Each entry receives exactly one
// addition, so merging parts in a fixed order gives the same sums
// regardless of how the parts were split.
func (t *Triplets) Append(other *Triplets) {
	t.acc.AddSparse(other.acc)
}

// ToCSR converts the stored entries.
func (t *Triplets) ToCSR() *CSR {
	keys := t.acc.Nonzero()
	sort.Ints(keys)

	m := &CSR{
		Rows:   t.Rows,
		Cols:   t.Cols,
		RowPtr: make([]int, t.Rows+1),
		ColIdx: make([]int, len(keys)),
		Val:    make([]float64, len(keys)),
	}
	for n, key := range keys {
		i, j := key/t.Cols, key%t.Cols
		m.ColIdx[n] = j
		m.Val[n] = t.acc.Elements[key]
		m.RowPtr[i+1]++
	}
	for i := 0; i < t.Rows; i++ {
		m.RowPtr[i+1] += m.RowPtr[i]
	}
	return m
}

// NNZ returns the number of stored entries.
func (a *CSR) NNZ() int {
	return len(a.Val)
}

// Row returns the column indices and values of row i.
func (a *CSR) Row(i int) ([]int, []float64) {
	lo, hi := a.RowPtr[i], a.RowPtr[i+1]
	return a.ColIdx[lo:hi], a.Val[lo:hi]
}

// At returns entry (i, j).
func (a *CSR) At(i, j int) float64 {
	cols, vals := a.Row(i)
	k := sort.SearchInts(cols, j)
	if k < len(cols) && cols[k] == j {
		return vals[k]
	}
	return 0
}

// Dims returns the matrix size. With At and T it makes a CSR usable
// wherever gonum expects a mat.Matrix.
func (a *CSR) Dims() (r, c int) {
	return a.Rows, a.Cols
}

// T returns the implicit transpose.
func (a *CSR) T() mat.Matrix {
	return mat.Transpose{Matrix: a}
}

// MulVec computes dst = A x.
func (a *CSR) MulVec(dst, x []float64) {
	for i := 0; i < a.Rows; i++ {
		var s float64
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			s += a.Val[k] * x[a.ColIdx[k]]
		}
		dst[i] = s
	}
}

// Diagonal returns the main diagonal.
func (a *CSR) Diagonal() []float64 {
	d := make([]float64, min(a.Rows, a.Cols))
	for i := range d {
		d[i] = a.At(i, i)
	}
	return d
}

// RowSums returns the sum of each row, accumulated in column order.
func (a *CSR) RowSums() []float64 {
	s := make([]float64, a.Rows)
	for i := range s {
		_, vals := a.Row(i)
		for _, v := range vals {
			s[i] += v
		}
	}
	return s
}

// AbsRowSums returns the sum of absolute values of each row.
func (a *CSR) AbsRowSums() []float64 {
	s := make([]float64, a.Rows)
	for i := range s {
		_, vals := a.Row(i)
		for _, v := range vals {
			s[i] += math.Abs(v)
		}
	}
	return s
}

// ScaleRows returns diag(d) A.
func (a *CSR) ScaleRows(d []float64) *CSR {
	out := &CSR{
		Rows:   a.Rows,
		Cols:   a.Cols,
		RowPtr: append([]int(nil), a.RowPtr...),
		ColIdx: append([]int(nil), a.ColIdx...),
		Val:    make([]float64, len(a.Val)),
	}
	for i := 0; i < a.Rows; i++ {
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			out.Val[k] = d[i] * a.Val[k]
		}
	}
	return out
}

// Transpose returns Aᵀ.
func (a *CSR) Transpose() *CSR {
	out := &CSR{
		Rows:   a.Cols,
		Cols:   a.Rows,
		RowPtr: make([]int, a.Cols+1),
		ColIdx: make([]int, a.NNZ()),
		Val:    make([]float64, a.NNZ()),
	}
	for _, j := range a.ColIdx {
		out.RowPtr[j+1]++
	}
	for j := 0; j < a.Cols; j++ {
		out.RowPtr[j+1] += out.RowPtr[j]
	}
	next := append([]int(nil), out.RowPtr[:a.Cols]...)
	// Rows are visited in order, so each output row comes out sorted.
	for i := 0; i < a.Rows; i++ {
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			j := a.ColIdx[k]
			out.ColIdx[next[j]] = i
			out.Val[next[j]] = a.Val[k]
			next[j]++
		}
	}
	return out
}

// IsSymmetric reports whether |A - Aᵀ| <= tol entrywise.
func (a *CSR) IsSymmetric(tol float64) bool {
	if a.Rows != a.Cols {
		return false
	}
	for i := 0; i < a.Rows; i++ {
		cols, vals := a.Row(i)
		for k, j := range cols {
			if math.Abs(vals[k]-a.At(j, i)) > tol {
				return false
			}
		}
	}
	return true
}

// Mul returns the product A B using Gustavson's row-by-row algorithm.
func Mul(a, b *CSR) (*CSR, error) {
	if a.Cols != b.Rows {
		return nil, fmt.Errorf("linalg: dimension mismatch %dx%d * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := &CSR{Rows: a.Rows, Cols: b.Cols, RowPtr: make([]int, a.Rows+1)}
	acc := make([]float64, b.Cols)
	mark := make([]int, b.Cols)
	for i := range mark {
		mark[i] = -1
	}
	var cols []int

	for i := 0; i < a.Rows; i++ {
		cols = cols[:0]
		for ka := a.RowPtr[i]; ka < a.RowPtr[i+1]; ka++ {
			k, av := a.ColIdx[ka], a.Val[ka]
			for kb := b.RowPtr[k]; kb < b.RowPtr[k+1]; kb++ {
				j := b.ColIdx[kb]
				if mark[j] != i {
					mark[j] = i
					acc[j] = 0
					cols = append(cols, j)
				}
				acc[j] += av * b.Val[kb]
			}
		}
		sort.Ints(cols)
		for _, j := range cols {
			out.ColIdx = append(out.ColIdx, j)
			out.Val = append(out.Val, acc[j])
		}
		out.RowPtr[i+1] = len(out.Val)
	}
	return out, nil
}

// Split partitions a square matrix by a node classification: free[i] >= 0
// is the free index of row i, fixed[i] >= 0 its fixed index. Both indices
// must increase with i. It returns the free-free and free-fixed blocks.
func (a *CSR) Split(free, fixed []int, nFree, nFixed int) (ff, fc *CSR) {
	ff = &CSR{Rows: nFree, Cols: nFree, RowPtr: make([]int, nFree+1)}
	fc = &CSR{Rows: nFree, Cols: nFixed, RowPtr: make([]int, nFree+1)}
	for i := 0; i < a.Rows; i++ {
		fi := free[i]
		if fi < 0 {
			continue
		}
		for k := a.RowPtr[i]; k < a.RowPtr[i+1]; k++ {
			j := a.ColIdx[k]
			if fj := free[j]; fj >= 0 {
				ff.ColIdx = append(ff.ColIdx, fj)
				ff.Val = append(ff.Val, a.Val[k])
			} else if cj := fixed[j]; cj >= 0 {
				fc.ColIdx = append(fc.ColIdx, cj)
				fc.Val = append(fc.Val, a.Val[k])
			}
		}
		ff.RowPtr[fi+1] = len(ff.Val)
		fc.RowPtr[fi+1] = len(fc.Val)
	}
	return ff, fc
}
