package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/bbweights/internal/logger"
	"github.com/Faultbox/bbweights/internal/raster"
	"github.com/Faultbox/bbweights/pkg/bbw"
	"github.com/Faultbox/bbweights/pkg/formats"
	"github.com/Faultbox/bbweights/pkg/voxel"
)

func newVoxelizeCmd(a *app) *cobra.Command {
	var (
		in         inputs
		output     string
		slices     string
		sliceScale int
	)
	cmd := &cobra.Command{
		Use:   "voxelize",
		Short: "Voxelize a mesh and write the grid as binvox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := in.require(false); err != nil {
				return err
			}
			m, err := in.loadMesh()
			if err != nil {
				return err
			}
			if err := m.Validate(); err != nil {
				return fmt.Errorf("%w: %w", bbw.ErrGeometry, err)
			}

			g, err := voxel.Voxelize(cmd.Context(), m, a.cfg.Solver.Resolution, voxel.Options{
				Workers: a.cfg.Solver.Workers,
			})
			if err != nil {
				if errors.Is(err, voxel.ErrEmptyBounds) {
					err = fmt.Errorf("%w: %w", bbw.ErrGeometry, err)
				}
				return err
			}
			outside, boundary, inside := g.Counts()
			logger.Info("voxelized",
				zap.Ints("dims", g.Dims[:]),
				zap.Float64("voxel", g.Size),
				zap.Int("outside", outside),
				zap.Int("boundary", boundary),
				zap.Int("inside", inside),
			)
			if g.OddColumns > 0 {
				logger.Warn("surface is not watertight along some rays", zap.Int("columns", g.OddColumns))
			}

			if slices != "" {
				if err := writeSlices(g, slices, sliceScale); err != nil {
					return err
				}
			}

			bv := formats.BinvoxFromGrid(g)
			if output == "" {
				return formats.WriteBinvox(cmd.OutOrStdout(), bv)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := formats.WriteBinvox(f, bv); err != nil {
				f.Close()
				return fmt.Errorf("writing %s: %w", output, err)
			}
			return f.Close()
		},
	}
	in.register(cmd.Flags(), false)
	cmd.Flags().IntVarP(&a.flags.Resolution, "res", "r", 0, "voxels along the longest axis (2-512)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "binvox file (default stdout)")
	cmd.Flags().StringVar(&slices, "slices", "", "also write one PNG per z layer into this directory")
	cmd.Flags().IntVar(&sliceScale, "slice-scale", 4, "pixels per voxel in slice images")
	return cmd
}

func writeSlices(g *voxel.Grid, dir string, scale int) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for z := 0; z < g.Dims[2]; z++ {
		path := filepath.Join(dir, fmt.Sprintf("slice_%03d.png", z))
		if err := raster.SaveFile(path, raster.Slice(g, z, scale)); err != nil {
			return err
		}
	}
	logger.Info("slices written", zap.String("dir", dir), zap.Int("count", g.Dims[2]))
	return nil
}
