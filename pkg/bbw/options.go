package bbw

import (
	"go.uber.org/zap"

	"github.com/Faultbox/bbweights/pkg/energy"
	"github.com/Faultbox/bbweights/pkg/handles"
	"github.com/Faultbox/bbweights/pkg/voxel"
)

// DefaultResolution is the voxel count along the longest axis.
const DefaultResolution = 64

// Phase names a pipeline stage.
type Phase string

// Pipeline phases in execution order.
const (
	PhaseValidate Phase = "validate"
	PhaseVoxelize Phase = "voxelize"
	PhaseMesh     Phase = "mesh"
	PhaseHandles  Phase = "handles"
	PhaseAssemble Phase = "assemble"
	PhaseSolve    Phase = "solve"
	PhaseTransfer Phase = "transfer"
)

// Options configures a solve. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	Resolution int
	Energy     energy.Kind
	Laplacian  energy.Laplacian
	Handles    handles.Mode

	// CapsuleRadius for bone handles; 0 uses half a voxel diagonal.
	CapsuleRadius float64

	// MaxIterations caps refinement; 0 scales the cap with the volume
	// size. CGMaxIterations 0 means ten times the free node count.
	MaxIterations   int
	Tolerance       float64
	CGMaxIterations int
	CGTolerance     float64

	// Workers bounds internal parallelism; 0 uses runtime.NumCPU().
	Workers int

	// KeepVolume retains the volume mesh and node weights in the result.
	KeepVolume bool

	// Logger receives phase timings. nil disables logging.
	Logger *zap.Logger

	// Progress, if set, is called as each phase starts.
	Progress func(Phase)
}

// DefaultOptions returns the recommended settings.
func DefaultOptions() Options {
	return Options{
		Resolution:  DefaultResolution,
		Energy:      energy.Biharmonic,
		Laplacian:   energy.Graph,
		Handles:     handles.Auto,
		Tolerance:   1e-6,
		CGTolerance: 1e-10,
	}
}

// ValidateResolution checks res against the supported range.
func ValidateResolution(res int) error {
	return voxel.ValidateResolution(res)
}
