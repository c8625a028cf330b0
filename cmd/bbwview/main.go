// bbwview solves weights for a mesh and skeleton and shows them in a window.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/bbweights/internal/config"
	"github.com/Faultbox/bbweights/internal/logger"
	"github.com/Faultbox/bbweights/internal/raster"
	"github.com/Faultbox/bbweights/internal/viewer"
	"github.com/Faultbox/bbweights/pkg/bbw"
	"github.com/Faultbox/bbweights/pkg/formats"
	"github.com/Faultbox/bbweights/pkg/voxel"
)

func main() {
	var (
		flags    config.Flags
		meshPath string
		skelPath string
	)
	fs := pflag.NewFlagSet("bbwview", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bbwview --mesh FILE --skeleton FILE [options]\n\n")
		fs.PrintDefaults()
	}
	fs.StringVarP(&meshPath, "mesh", "m", "", "surface mesh (.obj or .stl)")
	fs.StringVarP(&skelPath, "skeleton", "s", "", "skeleton (.yaml, .json or .bvh)")
	flags.RegisterGlobalFlags(fs)
	flags.RegisterSolverFlags(fs)
	fs.BoolVar(&flags.Joints, "joint-columns", false, "show one column per joint")
	_ = fs.Parse(os.Args[1:])

	if meshPath == "" || skelPath == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg, _, err := config.Load(&flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(2)
	}

	opts := logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Console: os.Stderr}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, meshPath, skelPath); err != nil {
		logger.Error("bbwview failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, meshPath, skelPath string) error {
	m, err := formats.ParseMeshFile(meshPath)
	if err != nil {
		return err
	}
	skel, err := formats.ParseSkeletonFile(skelPath)
	if err != nil {
		return err
	}

	opts, err := cfg.SolverOptions()
	if err != nil {
		return err
	}
	opts.Logger = logger.Log

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := time.Duration(cfg.Solver.Timeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	res, err := bbw.Solve(ctx, m, skel, opts)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		logger.Warn(w.Message, zap.Stringer("kind", w.Kind))
	}

	scene := viewer.Scene{
		Mesh:     m,
		Skeleton: skel,
		Weights:  res.Weights,
		Names:    res.HandleNames(),
	}
	if cfg.Output.JointColumns {
		if scene.Weights, err = res.JointWeights(skel); err != nil {
			return err
		}
		scene.Names = make([]string, len(skel.Joints))
		for i := range scene.Names {
			scene.Names[i] = skel.JointName(i)
		}
	}
	if dims, origin, size, err := voxel.Layout(m.Bounds(), opts.Resolution); err == nil {
		scene.Bounds = r3.Box{
			Min: origin,
			Max: r3.Add(origin, r3.Vec{
				X: float64(dims[0]) * size,
				Y: float64(dims[1]) * size,
				Z: float64(dims[2]) * size,
			}),
		}
	}

	cmap, err := raster.ParseColormap(cfg.Render.Colormap)
	if err != nil {
		return err
	}
	return viewer.Run(viewer.Config{
		Window: viewer.WindowConfig{
			Title:  "bbwview",
			Width:  cfg.Viewer.Width,
			Height: cfg.Viewer.Height,
			VSync:  cfg.Viewer.VSync,
		},
		Colormap: cmap,
		Logger:   logger.Log,
	}, scene)
}
