package bbw

import (
	"errors"
	"fmt"

	"github.com/Faultbox/bbweights/pkg/voxel"
)

// Solve errors. Detailed causes from the stage that failed are wrapped
// inside, so errors.Is works against both.
var (
	ErrInvalidResolution = voxel.ErrInvalidResolution
	ErrGeometry          = errors.New("geometry error")
	ErrTopology          = errors.New("topology error")
	ErrSkeleton          = errors.New("invalid skeleton")
)

// WarningKind classifies a non-fatal problem.
type WarningKind int

// Warning kinds.
const (
	ConvergenceWarning  WarningKind = iota // Iteration cap hit; weights are feasible but not optimal
	CollisionWarning                       // Two handles claimed the same node
	EmptyHandleWarning                     // A handle has no pinned node and gets zero weight
	OutsideJointWarning                    // A joint lies outside the volume
	ParityWarning                          // Some ray columns crossed the surface an odd number of times
	FallbackWarning                        // Some vertices were outside every element
)

// String returns a readable warning kind.
func (k WarningKind) String() string {
	switch k {
	case ConvergenceWarning:
		return "convergence"
	case CollisionWarning:
		return "collision"
	case EmptyHandleWarning:
		return "empty-handle"
	case OutsideJointWarning:
		return "outside-joint"
	case ParityWarning:
		return "parity"
	case FallbackWarning:
		return "fallback"
	default:
		return fmt.Sprintf("WarningKind(%d)", int(k))
	}
}

// MarshalText encodes the kind by name.
func (k WarningKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Warning is returned alongside a usable result.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return w.Kind.String() + ": " + w.Message
}
