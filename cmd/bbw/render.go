package main

import (
	"math"
	"strconv"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/Faultbox/bbweights/internal/logger"
	"github.com/Faultbox/bbweights/internal/raster"
	"github.com/Faultbox/bbweights/pkg/bbw"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		in         inputs
		output     string
		handle     string
		colormap   string
		size       int
		yaw, pitch float64
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Solve and draw a weight preview image",
		Long: `Solve and draw the mesh colored by weight. --handle selects one handle by name
or column index (heat colormap), "dominant" colors each vertex by its
strongest handle, and "blend" mixes one color per handle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := in.require(true); err != nil {
				return err
			}
			if output == "" {
				return usagef("-o is required")
			}
			rc := a.cfg.Render
			if handle != "" {
				rc.Handle = handle
			}
			if colormap != "" {
				rc.Colormap = colormap
			}
			if size > 0 {
				rc.Size = size
			}
			cmap, err := raster.ParseColormap(rc.Colormap)
			if err != nil {
				return usageError{err}
			}

			m, skel, err := in.load()
			if err != nil {
				return err
			}
			res, err := a.solve(cmd.Context(), m, skel)
			if err != nil {
				return err
			}
			t, err := a.table(res, skel)
			if err != nil {
				return err
			}

			colors, err := vertexColors(t.Weights, t.Names, rc.Handle, cmap)
			if err != nil {
				return err
			}
			opts := raster.DefaultOptions()
			opts.Size = rc.Size
			opts.Supersample = rc.Supersample
			if cmd.Flags().Changed("yaw") {
				opts.Yaw = yaw * math.Pi / 180
			}
			if cmd.Flags().Changed("pitch") {
				opts.Pitch = pitch * math.Pi / 180
			}
			img, err := raster.Render(m, colors, opts)
			if err != nil {
				return err
			}
			if err := raster.SaveFile(output, img); err != nil {
				return err
			}
			logger.Info("preview written", zap.String("path", output), zap.String("handle", rc.Handle))
			return nil
		},
	}
	in.register(cmd.Flags(), true)
	a.flags.RegisterSolverFlags(cmd.Flags())
	cmd.Flags().BoolVar(&a.flags.Joints, "joint-columns", false, "fold bone columns into one column per joint")
	cmd.Flags().StringVarP(&output, "output", "o", "", "image file (.png, .webp, .bmp or .tiff)")
	cmd.Flags().StringVar(&handle, "handle", "", `handle name, column index, "dominant" or "blend"`)
	cmd.Flags().StringVar(&colormap, "colormap", "", "heat or gray")
	cmd.Flags().IntVar(&size, "size", 0, "image width and height in pixels")
	cmd.Flags().Float64Var(&yaw, "yaw", 30, "view rotation about the up axis, degrees")
	cmd.Flags().Float64Var(&pitch, "pitch", -20, "view tilt, degrees")
	return cmd
}

// vertexColors picks the coloring named by handle.
func vertexColors(w *mat.Dense, names []string, handle string, cmap raster.Colormap) ([]colorful.Color, error) {
	switch handle {
	case "dominant":
		_, cols := w.Dims()
		palette := raster.Palette(cols)
		dom := bbw.Dominant(w)
		colors := make([]colorful.Color, len(dom))
		for i, j := range dom {
			colors[i] = palette[j]
		}
		return colors, nil
	case "blend":
		return raster.BlendColors(w), nil
	}

	col := -1
	for j, name := range names {
		if name == handle {
			col = j
			break
		}
	}
	if col < 0 {
		if n, err := strconv.Atoi(handle); err == nil && n >= 0 && n < len(names) {
			col = n
		}
	}
	if col < 0 {
		return nil, usagef("unknown handle %q (have %v)", handle, names)
	}
	return raster.HandleColors(w, col, cmap), nil
}
