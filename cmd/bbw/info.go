package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Faultbox/bbweights/pkg/formats"
	"github.com/Faultbox/bbweights/pkg/mesh"
	"github.com/Faultbox/bbweights/pkg/skeleton"
	"github.com/Faultbox/bbweights/pkg/voxel"
)

func newInfoCmd(a *app) *cobra.Command {
	var in inputs
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show mesh and skeleton statistics and validation results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := in.require(false); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			m, err := in.loadMesh()
			if err != nil {
				return err
			}
			printMesh(out, in.mesh, m, a.cfg.Solver.Resolution)

			if in.skeleton == "" {
				return nil
			}
			skel, err := formats.ParseSkeletonFile(in.skeleton)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			printSkeleton(out, in.skeleton, skel, m)
			return nil
		},
	}
	in.register(cmd.Flags(), true)
	cmd.Flags().IntVarP(&a.flags.Resolution, "res", "r", 0, "resolution for the grid layout report")
	return cmd
}

func printMesh(out io.Writer, path string, m *mesh.Mesh, res int) {
	st := m.Stats()
	fmt.Fprintf(out, "Mesh: %s\n", path)
	fmt.Fprintf(out, "  Vertices: %d\n", st.Vertices)
	fmt.Fprintf(out, "  Faces:    %d\n", st.Faces)
	fmt.Fprintf(out, "  Edges:    %d\n", st.Edges)
	fmt.Fprintf(out, "  Bounds:   (%.4g, %.4g, %.4g) - (%.4g, %.4g, %.4g)\n",
		st.Bounds.Min.X, st.Bounds.Min.Y, st.Bounds.Min.Z,
		st.Bounds.Max.X, st.Bounds.Max.Y, st.Bounds.Max.Z)
	fmt.Fprintf(out, "  Area:     %.6g\n", st.Area)
	fmt.Fprintf(out, "  Volume:   %.6g\n", st.Volume)
	if err := m.Validate(); err != nil {
		fmt.Fprintf(out, "  Valid:    no (%v)\n", err)
	} else {
		fmt.Fprintf(out, "  Valid:    yes\n")
	}

	dims, _, size, err := voxel.Layout(st.Bounds, res)
	if err != nil {
		fmt.Fprintf(out, "  Grid:     %v\n", err)
		return
	}
	fmt.Fprintf(out, "  Grid:     %dx%dx%d at res %d, voxel %.4g\n", dims[0], dims[1], dims[2], res, size)
}

func printSkeleton(out io.Writer, path string, s *skeleton.Skeleton, m *mesh.Mesh) {
	fmt.Fprintf(out, "Skeleton: %s\n", path)
	fmt.Fprintf(out, "  Joints: %d\n", len(s.Joints))
	fmt.Fprintf(out, "  Bones:  %d\n", len(s.Bones()))
	if err := s.Validate(); err != nil {
		fmt.Fprintf(out, "  Valid:  no (%v)\n", err)
		return
	}
	fmt.Fprintf(out, "  Valid:  yes\n")

	b := m.Bounds()
	for i, j := range s.Joints {
		parent := "-"
		if j.Parent >= 0 {
			parent = s.JointName(j.Parent)
		}
		p := j.Position
		note := ""
		if p.X < b.Min.X || p.Y < b.Min.Y || p.Z < b.Min.Z || p.X > b.Max.X || p.Y > b.Max.Y || p.Z > b.Max.Z {
			note = "  (outside mesh bounds)"
		}
		fmt.Fprintf(out, "  %*s%-16s parent=%-12s (%.4g, %.4g, %.4g)%s\n",
			2*s.Depth(i), "", s.JointName(i), parent, p.X, p.Y, p.Z, note)
	}
}
