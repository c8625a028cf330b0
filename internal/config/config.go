// Package config loads settings for the bbw tools.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Faultbox/bbweights/pkg/bbw"
	"github.com/Faultbox/bbweights/pkg/energy"
	"github.com/Faultbox/bbweights/pkg/handles"
)

// Config holds all settings.
type Config struct {
	Solver  SolverConfig  `yaml:"solver" toml:"solver"`
	Output  OutputConfig  `yaml:"output" toml:"output"`
	Render  RenderConfig  `yaml:"render" toml:"render"`
	Viewer  ViewerConfig  `yaml:"viewer" toml:"viewer"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

// SolverConfig mirrors bbw.Options.
type SolverConfig struct {
	Resolution      int      `yaml:"resolution" toml:"resolution"`
	Energy          string   `yaml:"energy" toml:"energy"`       // biharmonic or harmonic
	Laplacian       string   `yaml:"laplacian" toml:"laplacian"` // graph or fem
	Handles         string   `yaml:"handles" toml:"handles"`     // auto, joints or bones
	CapsuleRadius   float64  `yaml:"capsule_radius" toml:"capsule_radius"`
	MaxIterations   int      `yaml:"max_iterations" toml:"max_iterations"` // 0 scales with the volume
	Tolerance       float64  `yaml:"tolerance" toml:"tolerance"`
	CGMaxIterations int      `yaml:"cg_max_iterations" toml:"cg_max_iterations"`
	CGTolerance     float64  `yaml:"cg_tolerance" toml:"cg_tolerance"`
	Workers         int      `yaml:"workers" toml:"workers"`
	Timeout         Duration `yaml:"timeout" toml:"timeout"` // 0 means none
}

// OutputConfig controls weight export.
type OutputConfig struct {
	Format       string  `yaml:"format" toml:"format"` // empty picks by extension
	Path         string  `yaml:"path" toml:"path"`
	JointColumns bool    `yaml:"joint_columns" toml:"joint_columns"`
	MinWeight    float64 `yaml:"min_weight" toml:"min_weight"`
}

// RenderConfig controls preview images.
type RenderConfig struct {
	Size        int    `yaml:"size" toml:"size"`
	Supersample int    `yaml:"supersample" toml:"supersample"`
	Handle      string `yaml:"handle" toml:"handle"` // name, index or "dominant"
	Colormap    string `yaml:"colormap" toml:"colormap"`
}

// ViewerConfig holds window settings for bbwview.
type ViewerConfig struct {
	Width  int  `yaml:"width" toml:"width"`
	Height int  `yaml:"height" toml:"height"`
	VSync  bool `yaml:"vsync" toml:"vsync"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level" toml:"level"`
	LogFile string `yaml:"log_file" toml:"log_file"`
	Format  string `yaml:"format" toml:"format"` // console or json
}

// Default returns a Config with the recommended settings.
func Default() *Config {
	opts := bbw.DefaultOptions()
	return &Config{
		Solver: SolverConfig{
			Resolution:    opts.Resolution,
			Energy:        opts.Energy.String(),
			Laplacian:     opts.Laplacian.String(),
			Handles:       opts.Handles.String(),
			MaxIterations: opts.MaxIterations,
			Tolerance:     opts.Tolerance,
			CGTolerance:   opts.CGTolerance,
		},
		Output: OutputConfig{
			MinWeight: 0,
		},
		Render: RenderConfig{
			Size:        512,
			Supersample: 2,
			Handle:      "dominant",
			Colormap:    "heat",
		},
		Viewer: ViewerConfig{
			Width:  1280,
			Height: 720,
			VSync:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := c.SolverOptions(); err != nil {
		return err
	}
	switch {
	case c.Solver.Tolerance < 0 || c.Solver.CGTolerance < 0:
		return fmt.Errorf("%w: tolerances must not be negative", ErrInvalid)
	case c.Solver.MaxIterations < 0 || c.Solver.CGMaxIterations < 0:
		return fmt.Errorf("%w: iteration limits must not be negative", ErrInvalid)
	case c.Solver.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative", ErrInvalid)
	case c.Solver.CapsuleRadius < 0:
		return fmt.Errorf("%w: capsule_radius must not be negative", ErrInvalid)
	case c.Output.MinWeight < 0 || c.Output.MinWeight >= 1:
		return fmt.Errorf("%w: min_weight must be in [0, 1)", ErrInvalid)
	case c.Render.Size <= 0 || c.Render.Supersample <= 0:
		return fmt.Errorf("%w: render size and supersample must be positive", ErrInvalid)
	case c.Viewer.Width <= 0 || c.Viewer.Height <= 0:
		return fmt.Errorf("%w: viewer size must be positive", ErrInvalid)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("%w: logging format %q", ErrInvalid, c.Logging.Format)
	}
	return nil
}

// SolverOptions converts the solver section. Logger and Progress are left
// for the caller.
func (c *Config) SolverOptions() (bbw.Options, error) {
	s := c.Solver
	if err := bbw.ValidateResolution(s.Resolution); err != nil {
		return bbw.Options{}, err
	}
	kind, err := energy.ParseKind(s.Energy)
	if err != nil {
		return bbw.Options{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	lap, err := energy.ParseLaplacian(s.Laplacian)
	if err != nil {
		return bbw.Options{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	mode, err := handles.ParseMode(s.Handles)
	if err != nil {
		return bbw.Options{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return bbw.Options{
		Resolution:      s.Resolution,
		Energy:          kind,
		Laplacian:       lap,
		Handles:         mode,
		CapsuleRadius:   s.CapsuleRadius,
		MaxIterations:   s.MaxIterations,
		Tolerance:       s.Tolerance,
		CGMaxIterations: s.CGMaxIterations,
		CGTolerance:     s.CGTolerance,
		Workers:         s.Workers,
	}, nil
}

// Duration is a time.Duration written as text ("90s") in both YAML and
// TOML files.
type Duration time.Duration

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
