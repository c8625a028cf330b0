package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/bbweights/internal/logger"
)

func newSolveCmd(a *app) *cobra.Command {
	var in inputs
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Compute skinning weights for a mesh and skeleton",
		Long: `Compute one weight per mesh vertex and handle. Without -o the weights are
written to stdout as CSV.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := in.require(true); err != nil {
				return err
			}
			m, skel, err := in.load()
			if err != nil {
				return err
			}
			res, err := a.solve(cmd.Context(), m, skel)
			if err != nil {
				return err
			}
			logger.Info("solved",
				zap.Stringer("run", res.RunID),
				zap.Int("handles", len(res.Handles)),
				zap.Bool("converged", res.Converged),
				zap.Int("iterations", res.Iterations),
				zap.Float64("energy", res.Energy),
			)
			t, err := a.table(res, skel)
			if err != nil {
				return err
			}
			return a.write(cmd.OutOrStdout(), t)
		},
	}
	in.register(cmd.Flags(), true)
	a.flags.RegisterSolverFlags(cmd.Flags())
	a.flags.RegisterOutputFlags(cmd.Flags())
	return cmd
}
