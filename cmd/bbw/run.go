package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/bbweights/internal/export"
	"github.com/Faultbox/bbweights/internal/logger"
	"github.com/Faultbox/bbweights/pkg/bbw"
	"github.com/Faultbox/bbweights/pkg/formats"
	"github.com/Faultbox/bbweights/pkg/mesh"
	"github.com/Faultbox/bbweights/pkg/skeleton"
)

// inputs are the mesh and skeleton paths shared by the solving commands.
type inputs struct {
	mesh     string
	skeleton string
}

func (in *inputs) register(fs *pflag.FlagSet, withSkeleton bool) {
	fs.StringVarP(&in.mesh, "mesh", "m", "", "surface mesh (.obj or .stl)")
	if withSkeleton {
		fs.StringVarP(&in.skeleton, "skeleton", "s", "", "skeleton (.yaml, .json or .bvh)")
	}
}

func (in *inputs) require(withSkeleton bool) error {
	if in.mesh == "" {
		return usagef("--mesh is required")
	}
	if withSkeleton && in.skeleton == "" {
		return usagef("--skeleton is required")
	}
	return nil
}

// paths lists the files to watch.
func (in *inputs) paths() []string {
	if in.skeleton == "" {
		return []string{in.mesh}
	}
	return []string{in.mesh, in.skeleton}
}

// loadMesh parses the mesh. Parse failures count as geometry errors.
func (in *inputs) loadMesh() (*mesh.Mesh, error) {
	m, err := formats.ParseMeshFile(in.mesh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bbw.ErrGeometry, err)
	}
	logger.Debug("mesh loaded",
		zap.String("path", in.mesh),
		zap.Int("vertices", len(m.Vertices)),
		zap.Int("faces", len(m.Faces)),
	)
	return m, nil
}

func (in *inputs) load() (*mesh.Mesh, *skeleton.Skeleton, error) {
	m, err := in.loadMesh()
	if err != nil {
		return nil, nil, err
	}
	skel, err := formats.ParseSkeletonFile(in.skeleton)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", bbw.ErrSkeleton, err)
	}
	logger.Debug("skeleton loaded",
		zap.String("path", in.skeleton),
		zap.Int("joints", len(skel.Joints)),
	)
	return m, skel, nil
}

// solve runs the solver with the effective config, bounded by the
// configured timeout.
func (a *app) solve(ctx context.Context, m *mesh.Mesh, skel *skeleton.Skeleton) (*bbw.Result, error) {
	opts, err := a.cfg.SolverOptions()
	if err != nil {
		return nil, err
	}
	opts.Logger = logger.Log
	opts.Progress = func(p bbw.Phase) {
		logger.Debug("phase", zap.String("phase", string(p)))
	}

	if d := time.Duration(a.cfg.Solver.Timeout); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	res, err := bbw.Solve(ctx, m, skel, opts)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		logger.Warn(w.Message, zap.Stringer("kind", w.Kind))
	}
	return res, nil
}

// table builds the export table, folding bone columns when asked.
func (a *app) table(res *bbw.Result, skel *skeleton.Skeleton) (export.Table, error) {
	var joints *mat.Dense
	if a.cfg.Output.JointColumns {
		w, err := res.JointWeights(skel)
		if err != nil {
			return export.Table{}, err
		}
		joints = w
	}
	t := export.FromResult(res, skel, joints)
	t.MinWeight = a.cfg.Output.MinWeight
	return t, nil
}

// write sends t to the configured output path, or to stdout when none is
// set.
func (a *app) write(stdout io.Writer, t export.Table) error {
	out := a.cfg.Output
	f := export.CSV
	var err error
	switch {
	case out.Format != "":
		f, err = export.ParseFormat(out.Format)
	case out.Path != "":
		f, err = export.FormatFromPath(out.Path)
	}
	if err != nil {
		return usageError{err}
	}

	if out.Path == "" {
		return export.Write(stdout, f, t)
	}
	file, err := os.Create(out.Path)
	if err != nil {
		return err
	}
	if err := export.Write(file, f, t); err != nil {
		file.Close()
		return fmt.Errorf("writing %s: %w", out.Path, err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	logger.Info("weights written", zap.String("path", out.Path), zap.Stringer("format", f))
	return nil
}
