package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/bbweights/internal/logger"
	"github.com/Faultbox/bbweights/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		in       inputs
		debounce = watch.DefaultDebounce
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-solve whenever the mesh or skeleton changes",
		Long: `Solve once, then again every time the mesh or skeleton file is saved. A change
that arrives mid-solve cancels the running solve. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := in.require(true); err != nil {
				return err
			}
			if a.cfg.Output.Path == "" {
				return usagef("-o is required")
			}
			job := func(ctx context.Context) error {
				m, skel, err := in.load()
				if err != nil {
					return err
				}
				res, err := a.solve(ctx, m, skel)
				if err != nil {
					return err
				}
				t, err := a.table(res, skel)
				if err != nil {
					return err
				}
				return a.write(cmd.OutOrStdout(), t)
			}
			logger.Info("watching", zap.Strings("paths", in.paths()))
			return watch.Run(cmd.Context(), in.paths(), job, watch.Options{
				Debounce: debounce,
				Logger:   logger.Log,
			})
		},
	}
	in.register(cmd.Flags(), true)
	a.flags.RegisterSolverFlags(cmd.Flags())
	a.flags.RegisterOutputFlags(cmd.Flags())
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before re-solving")
	return cmd
}
