// bbw computes bounded biharmonic skinning weights from the command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Faultbox/bbweights/internal/config"
	"github.com/Faultbox/bbweights/internal/logger"
	"github.com/Faultbox/bbweights/pkg/bbw"
)

// Exit codes.
const (
	exitError      = 1
	exitUsage      = 2
	exitGeometry   = 3
	exitTopology   = 4
	exitResolution = 5
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	logger.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// usageError marks a bad invocation.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

func exitCode(err error) int {
	var ue usageError
	switch {
	case errors.Is(err, bbw.ErrInvalidResolution):
		return exitResolution
	case errors.Is(err, bbw.ErrTopology):
		return exitTopology
	case errors.Is(err, bbw.ErrGeometry):
		return exitGeometry
	case errors.As(err, &ue), errors.Is(err, config.ErrInvalid):
		return exitUsage
	default:
		return exitError
	}
}

// app is the state shared by all commands.
type app struct {
	flags   config.Flags
	cfg     *config.Config
	cfgPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "bbw",
		Short: "Bounded biharmonic skinning weights",
		Long: `bbw voxelizes a closed triangle mesh, builds handles from a skeleton and
solves for smooth, bounded, partition-of-unity skinning weights.

Examples:
  bbw solve --mesh body.obj --skeleton body.yaml -o weights.csv
  bbw solve --mesh body.stl --skeleton walk.bvh --handles bones --joint-columns -o w.json
  bbw render --mesh body.obj --skeleton body.yaml --handle dominant -o preview.png
  bbw voxelize --mesh body.obj -r 96 -o body.binvox`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	a.flags.RegisterGlobalFlags(root.PersistentFlags())

	root.AddCommand(
		newSolveCmd(a),
		newVoxelizeCmd(a),
		newRenderCmd(a),
		newWatchCmd(a),
		newInfoCmd(a),
		newConfigCmd(a),
	)
	return root
}

// setup loads the config and starts logging before any command runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, path, err := config.Load(&a.flags)
	if err != nil {
		return err
	}
	a.cfg, a.cfgPath = cfg, path

	opts := logger.Options{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: os.Stderr,
	}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(opts); err != nil {
		return usageError{fmt.Errorf("logger: %w", err)}
	}
	if path != "" {
		logger.Debug("config loaded", zap.String("path", path))
	}
	return nil
}
