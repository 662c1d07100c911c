package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bioimg-tools/bioimg/internal/config"
	"github.com/bioimg-tools/bioimg/internal/pyramid"
	"github.com/bioimg-tools/bioimg/internal/source"
	"github.com/bioimg-tools/bioimg/internal/tiff"
)

func newPyramidCommand(a *app, defaults config.Pyramid) *cobra.Command {
	flags := defaults
	cmd := &cobra.Command{
		Use:   "pyramid",
		Short: "Write tiled pyramidal OME-TIFFs from a file or a directory of files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := a.cfg.Pyramid
			pick(cmd, "input", flags.Input, &o.Input)
			pick(cmd, "output", flags.Output, &o.Output)
			pick(cmd, "tile-size", flags.TileSize, &o.TileSize)
			pick(cmd, "compress", flags.EightBit, &o.EightBit)
			pick(cmd, "compression", flags.Compression, &o.Compression)
			pick(cmd, "workers", flags.Workers, &o.Workers)
			pick(cmd, "files", flags.Files, &o.Files)
			return a.run(cmd, func(ctx context.Context) error { return a.pyramid(ctx, o) })
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.Input, "input", "i", "", "input image or directory of images")
	f.StringVarP(&flags.Output, "output", "o", "", "output image, or directory for directory input")
	f.IntVarP(&flags.TileSize, "tile-size", "t", defaults.TileSize, "tile edge in pixels, a multiple of 16")
	f.BoolVar(&flags.EightBit, "compress", defaults.EightBit, "stretch every channel to 8 bits before tiling")
	f.StringVar(&flags.Compression, "compression", defaults.Compression, "tile compression: none or deflate")
	f.IntVar(&flags.Workers, "workers", defaults.Workers, "channels prepared at once")
	f.IntVar(&flags.Files, "files", defaults.Files, "files of a directory converted at once")
	return cmd
}

func (a *app) pyramid(ctx context.Context, o config.Pyramid) error {
	if o.Input == "" || o.Output == "" {
		return invalid("input and output are required")
	}
	if err := pyramid.ValidateTileSize(o.TileSize); err != nil {
		return invalid("%v", err)
	}
	comp, err := tiff.ParseCompression(o.Compression)
	if err != nil {
		return invalid("%v", err)
	}
	if o.Files < 1 {
		return invalid("files must be at least 1, got %d", o.Files)
	}
	opts := pyramid.Options{
		TileSize:    o.TileSize,
		EightBit:    o.EightBit,
		Compression: comp,
		Workers:     o.Workers,
	}

	in, err := filepath.Abs(o.Input)
	if err != nil {
		return invalid("input %q: %v", o.Input, err)
	}
	fi, err := os.Stat(in)
	if err != nil {
		return invalid("input %s does not exist", in)
	}

	if fi.IsDir() {
		out, err := filepath.Abs(o.Output)
		if err != nil {
			return invalid("output %q: %v", o.Output, err)
		}
		if source.HasExt(out, source.TIFFExts...) {
			return invalid("output %s must be a directory when the input is one", out)
		}
		if ofi, err := os.Stat(out); err == nil && !ofi.IsDir() {
			return invalid("output %s exists and is not a directory", out)
		}
		a.log.Info("Pyramidising directory", "input", in, "output", out)
		return pyramid.Dir(ctx, a.log, in, out, o.Files, opts)
	}

	in, err = checkInputFile(in, source.TIFFExts...)
	if err != nil {
		return err
	}
	out, err := checkOutputFile(o.Output, source.TIFFExts...)
	if err != nil {
		return err
	}
	if err := pyramid.Validate(a.log, in); err != nil {
		return err
	}
	_, err = pyramid.File(ctx, a.log, in, out, opts)
	return err
}
