// Package cli wires the bioimg tools into one cobra command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bioimg-tools/bioimg/internal/config"
	"github.com/bioimg-tools/bioimg/internal/logger"
	"github.com/bioimg-tools/bioimg/internal/source"
	"github.com/bioimg-tools/bioimg/internal/system"
)

// ErrInvalidArgument marks a rejected command line. Nothing has been read or
// written when it is returned.
var ErrInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// app carries what every subcommand shares once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log *logger.Logger
}

// NewRootCommand builds the bioimg command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{}
	defaults := config.Default()

	root := &cobra.Command{
		Use:           "bioimg",
		Short:         "Label masks, polygons and OME-TIFF pyramids for bioimage pipelines",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML file with per-command defaults")
	root.PersistentFlags().StringVarP(&a.logLevel, "log-level", "l", defaults.LogLevel, "log level: DEBUG or INFO")

	root.AddCommand(
		newMask2PolyCommand(a, defaults.Mask2Poly),
		newRescaleCommand(a, defaults.Rescale),
		newPyramidCommand(a, defaults.Pyramid),
		newResizeCommand(a, defaults.Resize),
		newExpandCommand(a, defaults.Expand),
		newRasterizeCommand(a, defaults.Rasterize),
		newConfigCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return invalid("%v", err)
	}
	level := cfg.LogLevel
	if cmd.Flags().Changed("log-level") {
		level = a.logLevel
	}
	log, err := logger.NewWithWriter(level, cmd.OutOrStdout())
	if err != nil {
		return invalid("%v", err)
	}
	a.cfg = cfg
	a.log = log.With("run", uuid.NewString()[:8])
	return nil
}

// run executes fn and logs how long it took, the way every tool ends.
func (a *app) run(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	start := time.Now()
	if err := fn(cmd.Context()); err != nil {
		return err
	}
	a.log.Info("Execution time", "seconds", fmt.Sprintf("%.1f", time.Since(start).Seconds()))
	return nil
}

// pick keeps the flag value when the flag was given on the command line and
// otherwise leaves the config file value in place.
func pick[T any](cmd *cobra.Command, name string, flagVal T, dst *T) {
	if cmd.Flags().Changed(name) {
		*dst = flagVal
	}
}

// checkInputFile resolves path and requires an existing regular file with
// one of exts.
func checkInputFile(path string, exts ...string) (string, error) {
	if path == "" {
		return "", invalid("input is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", invalid("input %q: %v", path, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", invalid("input %s does not exist", abs)
	}
	if fi.IsDir() {
		return "", invalid("input %s must be a file", abs)
	}
	if !source.HasExt(abs, exts...) {
		return "", invalid("input %s must end in one of %v", abs, exts)
	}
	return abs, nil
}

// checkOutputFile resolves path and requires one of exts and an existing
// parent directory.
func checkOutputFile(path string, exts ...string) (string, error) {
	if path == "" {
		return "", invalid("output is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", invalid("output %q: %v", path, err)
	}
	if !source.HasExt(abs, exts...) {
		return "", invalid("output %s must end in one of %v", abs, exts)
	}
	if fi, err := os.Stat(filepath.Dir(abs)); err != nil || !fi.IsDir() {
		return "", invalid("output directory %s does not exist", filepath.Dir(abs))
	}
	return abs, nil
}

// checkMemory warns when an array of need bytes may not fit in memory.
func (a *app) checkMemory(what string, need uint64) {
	avail, err := system.CheckMemory(need)
	switch {
	case errors.Is(err, system.ErrInsufficientMemory):
		a.log.Warn("array may not fit in memory", "what", what, "error", err)
	case err != nil:
		a.log.Debug("memory check skipped", "error", err)
	default:
		a.log.Debug("memory check", "what", what, "need", system.FormatBytes(need), "available", system.FormatBytes(avail))
	}
}
