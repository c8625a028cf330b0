package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/Faultbox/bbweights/pkg/bbw"
	"github.com/Faultbox/bbweights/pkg/energy"
	"github.com/Faultbox/bbweights/pkg/handles"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Solver.Resolution != 64 {
		t.Errorf("expected resolution 64, got %d", cfg.Solver.Resolution)
	}
	if cfg.Solver.Energy != "biharmonic" || cfg.Solver.Laplacian != "graph" || cfg.Solver.Handles != "auto" {
		t.Errorf("unexpected solver defaults %+v", cfg.Solver)
	}
	if cfg.Solver.MaxIterations != 0 || cfg.Solver.Tolerance != 1e-6 {
		t.Errorf("unexpected iteration defaults %+v", cfg.Solver)
	}
	if cfg.Render.Size != 512 || cfg.Render.Handle != "dominant" {
		t.Errorf("unexpected render defaults %+v", cfg.Render)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml", "bbw.yaml", `
solver:
  resolution: 96
  laplacian: fem
  handles: bones
  timeout: 90s
output:
  joint_columns: true
logging:
  level: debug
  log_file: bbw.log
`},
		{"toml", "bbw.toml", `
[solver]
resolution = 96
laplacian = "fem"
handles = "bones"
timeout = "90s"

[output]
joint_columns = true

[logging]
level = "debug"
log_file = "bbw.log"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}

			cfg := Default()
			if err := LoadFile(cfg, path); err != nil {
				t.Fatalf("LoadFile failed: %v", err)
			}

			if cfg.Solver.Resolution != 96 {
				t.Errorf("expected resolution 96, got %d", cfg.Solver.Resolution)
			}
			if cfg.Solver.Laplacian != "fem" || cfg.Solver.Handles != "bones" {
				t.Errorf("unexpected solver section %+v", cfg.Solver)
			}
			if time.Duration(cfg.Solver.Timeout) != 90*time.Second {
				t.Errorf("expected timeout 90s, got %v", time.Duration(cfg.Solver.Timeout))
			}
			if !cfg.Output.JointColumns {
				t.Error("expected joint_columns to be set")
			}
			if cfg.Logging.Level != "debug" || cfg.Logging.LogFile != "bbw.log" {
				t.Errorf("unexpected logging section %+v", cfg.Logging)
			}
			// Unset keys keep their defaults.
			if cfg.Solver.Energy != "biharmonic" || cfg.Render.Size != 512 {
				t.Error("expected defaults to survive a partial file")
			}
		})
	}
}

func TestLoadFileInvalid(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"yaml syntax", "bad.yaml", "solver:\n  resolution: not a number\n  invalid syntax here\n"},
		{"yaml unknown key", "bad.yaml", "solver:\n  resolutoin: 32\n"},
		{"toml unknown key", "bad.toml", "[solver]\nresolutoin = 32\n"},
		{"bad duration", "bad.yaml", "solver:\n  timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("failed to write test config: %v", err)
			}
			if err := LoadFile(Default(), path); err == nil {
				t.Error("expected an error, got nil")
			}
		})
	}

	if err := LoadFile(Default(), "/nonexistent/path/config.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"resolution low", func(c *Config) { c.Solver.Resolution = 1 }, bbw.ErrInvalidResolution},
		{"resolution high", func(c *Config) { c.Solver.Resolution = 513 }, bbw.ErrInvalidResolution},
		{"energy", func(c *Config) { c.Solver.Energy = "triharmonic" }, ErrInvalid},
		{"laplacian", func(c *Config) { c.Solver.Laplacian = "cotan" }, ErrInvalid},
		{"handles", func(c *Config) { c.Solver.Handles = "points" }, ErrInvalid},
		{"tolerance", func(c *Config) { c.Solver.Tolerance = -1 }, ErrInvalid},
		{"min weight", func(c *Config) { c.Output.MinWeight = 1 }, ErrInvalid},
		{"render size", func(c *Config) { c.Render.Size = 0 }, ErrInvalid},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSolverOptions(t *testing.T) {
	cfg := Default()
	cfg.Solver.Laplacian = "fem"
	cfg.Solver.Energy = "harmonic"
	cfg.Solver.Handles = "joints"
	cfg.Solver.Workers = 3

	opts, err := cfg.SolverOptions()
	if err != nil {
		t.Fatalf("SolverOptions failed: %v", err)
	}
	if opts.Laplacian != energy.FEM || opts.Energy != energy.Harmonic || opts.Handles != handles.Joints {
		t.Errorf("unexpected options %+v", opts)
	}
	if opts.Workers != 3 || opts.Resolution != 64 {
		t.Errorf("unexpected options %+v", opts)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "bbw.toml"), []byte("[solver]\nresolution = 32\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path != "./bbw.toml" {
		t.Errorf("expected ./bbw.toml, got %q", path)
	}

	// YAML wins over TOML in the same directory.
	if err := os.WriteFile(filepath.Join(tmpDir, "bbw.yaml"), []byte("solver:\n  resolution: 48\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path != "./bbw.yaml" {
		t.Errorf("expected ./bbw.yaml, got %q", path)
	}
}

func TestFlags_Apply(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		verify func(*testing.T, *Config)
	}{
		{
			name: "debug flag",
			args: []string{"--debug"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
		},
		{
			name: "solver flags",
			args: []string{"-r", "128", "--laplacian", "fem", "--handles", "bones", "--tol", "1e-8"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Solver.Resolution != 128 || cfg.Solver.Laplacian != "fem" || cfg.Solver.Handles != "bones" {
					t.Errorf("unexpected solver section %+v", cfg.Solver)
				}
				if cfg.Solver.Tolerance != 1e-8 {
					t.Errorf("expected tolerance 1e-8, got %g", cfg.Solver.Tolerance)
				}
			},
		},
		{
			name: "output flags",
			args: []string{"-o", "w.json", "--joint-columns", "--min-weight", "0.01"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Output.Path != "w.json" || !cfg.Output.JointColumns || cfg.Output.MinWeight != 0.01 {
					t.Errorf("unexpected output section %+v", cfg.Output)
				}
			},
		},
		{
			name: "global flags",
			args: []string{"--workers", "2", "--timeout", "1m"},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Solver.Workers != 2 || time.Duration(cfg.Solver.Timeout) != time.Minute {
					t.Errorf("unexpected solver section %+v", cfg.Solver)
				}
			},
		},
		{
			name: "no flags",
			args: nil,
			verify: func(t *testing.T, cfg *Config) {
				def := Default()
				if cfg.Solver != def.Solver || cfg.Output != def.Output {
					t.Error("expected defaults to be untouched")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Flags
			fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
			f.RegisterGlobalFlags(fs)
			f.RegisterSolverFlags(fs)
			f.RegisterOutputFlags(fs)
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}

			cfg := Default()
			f.Apply(cfg)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bbw.yaml")
	yamlContent := `
solver:
  resolution: 40
  laplacian: fem
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	flags := &Flags{Config: configPath, Resolution: 80}
	cfg, used, err := Load(flags)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if used != configPath {
		t.Errorf("expected config path %s, got %s", configPath, used)
	}
	// Resolution comes from the flag, laplacian from the file.
	if cfg.Solver.Resolution != 80 {
		t.Errorf("expected resolution 80 from flag, got %d", cfg.Solver.Resolution)
	}
	if cfg.Solver.Laplacian != "fem" {
		t.Errorf("expected laplacian fem from file, got %s", cfg.Solver.Laplacian)
	}

	flags.Resolution = 1000
	if _, _, err := Load(flags); !errors.Is(err, bbw.ErrInvalidResolution) {
		t.Errorf("expected ErrInvalidResolution, got %v", err)
	}
}

func TestSaveTo(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"out.yaml", "out.toml"} {
		path := filepath.Join(dir, "nested", name)
		cfg := Default()
		cfg.Solver.Resolution = 24
		cfg.Solver.Timeout = Duration(30 * time.Second)
		if err := cfg.SaveTo(path); err != nil {
			t.Fatalf("%s: SaveTo failed: %v", name, err)
		}

		back := Default()
		if err := LoadFile(back, path); err != nil {
			t.Fatalf("%s: LoadFile failed: %v", name, err)
		}
		if back.Solver != cfg.Solver {
			t.Errorf("%s: expected %+v, got %+v", name, cfg.Solver, back.Solver)
		}
	}
}
