package config

import (
	"time"

	"github.com/spf13/pflag"
)

// Flags holds command line overrides. Zero values mean "not set" and leave
// the file or default value in place.
type Flags struct {
	Config  string
	Debug   bool
	LogFile string

	Resolution    int
	Energy        string
	Laplacian     string
	Handles       string
	CapsuleRadius float64
	MaxIterations int
	Tolerance     float64
	Workers       int
	Timeout       time.Duration

	Output    string
	Format    string
	Joints    bool
	MinWeight float64
}

// RegisterGlobalFlags adds the flags shared by every command.
func (f *Flags) RegisterGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "path to a YAML or TOML config file")
	fs.BoolVar(&f.Debug, "debug", false, "enable debug logging")
	fs.StringVar(&f.LogFile, "log-file", "", "also log to this rotating file")
	fs.IntVar(&f.Workers, "workers", 0, "parallel workers (default: all CPUs)")
	fs.DurationVar(&f.Timeout, "timeout", 0, "abort the solve after this long")
}

// RegisterSolverFlags adds the solver settings.
func (f *Flags) RegisterSolverFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&f.Resolution, "res", "r", 0, "voxels along the longest axis (2-512)")
	fs.StringVar(&f.Energy, "energy", "", "biharmonic or harmonic")
	fs.StringVar(&f.Laplacian, "laplacian", "", "graph or fem")
	fs.StringVar(&f.Handles, "handles", "", "auto, joints or bones")
	fs.Float64Var(&f.CapsuleRadius, "capsule-radius", 0, "bone capsule radius (default: half a voxel diagonal)")
	fs.IntVar(&f.MaxIterations, "max-iter", 0, "refinement iteration cap")
	fs.Float64Var(&f.Tolerance, "tol", 0, "refinement convergence tolerance")
}

// RegisterOutputFlags adds the export settings.
func (f *Flags) RegisterOutputFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&f.Output, "output", "o", "", "output file (.csv, .json, .xlsx or .bbw)")
	fs.StringVar(&f.Format, "format", "", "output format, overriding the extension")
	fs.BoolVar(&f.Joints, "joint-columns", false, "fold bone columns into one column per joint")
	fs.Float64Var(&f.MinWeight, "min-weight", 0, "drop smaller weights in sparse JSON output")
}

// Apply copies every set flag into cfg.
func (f *Flags) Apply(cfg *Config) {
	if f == nil {
		return
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.Resolution != 0 {
		cfg.Solver.Resolution = f.Resolution
	}
	if f.Energy != "" {
		cfg.Solver.Energy = f.Energy
	}
	if f.Laplacian != "" {
		cfg.Solver.Laplacian = f.Laplacian
	}
	if f.Handles != "" {
		cfg.Solver.Handles = f.Handles
	}
	if f.CapsuleRadius > 0 {
		cfg.Solver.CapsuleRadius = f.CapsuleRadius
	}
	if f.MaxIterations > 0 {
		cfg.Solver.MaxIterations = f.MaxIterations
	}
	if f.Tolerance > 0 {
		cfg.Solver.Tolerance = f.Tolerance
	}
	if f.Workers > 0 {
		cfg.Solver.Workers = f.Workers
	}
	if f.Timeout > 0 {
		cfg.Solver.Timeout = Duration(f.Timeout)
	}
	if f.Output != "" {
		cfg.Output.Path = f.Output
	}
	if f.Format != "" {
		cfg.Output.Format = f.Format
	}
	if f.Joints {
		cfg.Output.JointColumns = true
	}
	if f.MinWeight > 0 {
		cfg.Output.MinWeight = f.MinWeight
	}
}
