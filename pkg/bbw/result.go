package bbw

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/bbweights/pkg/handles"
	"github.com/Faultbox/bbweights/pkg/skeleton"
	"github.com/Faultbox/bbweights/pkg/volume"
	"github.com/Faultbox/bbweights/pkg/voxel"
)

// Timing is the wall time of one phase.
type Timing struct {
	Phase    Phase
	Duration time.Duration
}

// Stats summarizes the intermediate structures of a solve.
type Stats struct {
	Dims     [3]int
	Voxel    float64 // edge length
	Outside  int
	Boundary int
	Inside   int
	Nodes    int
	Elements int
	Pinned   int // nodes with a handle constraint
	Fallback int // vertices located by nearest element
}

func (s *Stats) fromGrid(g *voxel.Grid) {
	s.Dims = g.Dims
	s.Voxel = g.Size
	s.Outside, s.Boundary, s.Inside = g.Counts()
}

// Result is a finished solve. Weights has one row per surface vertex and
// one column per handle, in Handles order.
type Result struct {
	RunID      uuid.UUID
	Weights    *mat.Dense
	Handles    []handles.Handle
	Mode       handles.Mode
	Warnings   []Warning
	Converged  bool
	Iterations int
	Energy     float64
	Stats      Stats
	Timings    []Timing

	// Set only with Options.KeepVolume.
	Volume      *volume.Mesh
	NodeWeights *mat.Dense
}

// HandleNames returns the column labels.
func (r *Result) HandleNames() []string {
	out := make([]string, len(r.Handles))
	for i, h := range r.Handles {
		out[i] = h.Name
	}
	return out
}

// HasWarning reports whether a warning of kind k was raised.
func (r *Result) HasWarning(k WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == k {
			return true
		}
	}
	return false
}

// JointWeights returns one column per joint of skel. Joint handles map to
// their own joint and bone handles to the bone's parent joint, which is the
// joint that drives the bone in linear blend skinning. Joints with no handle
// get a zero column.
func (r *Result) JointWeights(skel *skeleton.Skeleton) (*mat.Dense, error) {
	rows, _ := r.Weights.Dims()
	nj := len(skel.Joints)
	target := make([]int, len(r.Handles))
	for h, hd := range r.Handles {
		j := hd.Joint
		if hd.Kind == handles.BoneHandle {
			j = hd.Parent
		}
		if j < 0 || j >= nj {
			return nil, fmt.Errorf("%w: handle %q refers to joint %d of %d", ErrSkeleton, hd.Name, j, nj)
		}
		target[h] = j
	}
	if rows == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(rows, nj, nil)
	for i := 0; i < rows; i++ {
		src := r.Weights.RawRowView(i)
		dst := out.RawRowView(i)
		for h, w := range src {
			dst[target[h]] += w
		}
	}
	return out, nil
}

// Dominant returns, for every row of w, the column with the largest weight.
// Ties go to the lowest column.
func Dominant(w *mat.Dense) []int {
	if w.IsEmpty() {
		return nil
	}
	rows, _ := w.Dims()
	out := make([]int, rows)
	for i := range out {
		row := w.RawRowView(i)
		for h, v := range row {
			if v > row[out[i]] {
				out[i] = h
			}
		}
	}
	return out
}

// CheckPartition verifies every row of w lies in [0, 1] and sums to one
// within tol. It returns the first offending row.
func CheckPartition(w *mat.Dense, tol float64) error {
	if w.IsEmpty() {
		return nil
	}
	rows, _ := w.Dims()
	for i := 0; i < rows; i++ {
		var s float64
		for h, v := range w.RawRowView(i) {
			if v < -tol || v > 1+tol || math.IsNaN(v) {
				return fmt.Errorf("row %d column %d: weight %g out of bounds", i, h, v)
			}
			s += v
		}
		if math.Abs(s-1) > tol {
			return fmt.Errorf("row %d: weights sum to %.17g", i, s)
		}
	}
	return nil
}
