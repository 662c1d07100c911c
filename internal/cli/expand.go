package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bioimg-tools/bioimg/internal/config"
	"github.com/bioimg-tools/bioimg/internal/expand"
	"github.com/bioimg-tools/bioimg/internal/raster"
	"github.com/bioimg-tools/bioimg/internal/source"
)

func newExpandCommand(a *app, defaults config.Expand) *cobra.Command {
	flags := defaults
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Grow labelled regions of a mask by a number of pixels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := a.cfg.Expand
			pick(cmd, "input", flags.Input, &o.Input)
			pick(cmd, "output", flags.Output, &o.Output)
			pick(cmd, "channel", flags.Channel, &o.Channel)
			pick(cmd, "pixels", flags.Pixels, &o.Pixels)
			return a.run(cmd, func(ctx context.Context) error { return a.expand(ctx, o) })
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.Input, "input", "i", "", "labelled mask (.tif or .tiff)")
	f.StringVarP(&flags.Output, "output", "o", "", "expanded mask (.tif or .tiff)")
	f.IntVar(&flags.Channel, "channel", defaults.Channel, "page to read from a multi-page mask")
	f.Float64VarP(&flags.Pixels, "pixels", "p", defaults.Pixels, "expansion distance in pixels")
	return cmd
}

func (a *app) expand(_ context.Context, o config.Expand) error {
	in, err := checkInputFile(o.Input, source.TIFFExts...)
	if err != nil {
		return err
	}
	out, err := checkOutputFile(o.Output, source.TIFFExts...)
	if err != nil {
		return err
	}
	if o.Pixels <= 0 {
		return invalid("pixels must be positive, got %v", o.Pixels)
	}
	if o.Channel < 0 {
		return invalid("channel must not be negative, got %d", o.Channel)
	}

	mask, err := source.ReadMask(in, o.Channel)
	if err != nil {
		return err
	}
	a.log.Info("Processing", "path", in, "channel", o.Channel, "width", mask.Width, "height", mask.Height)

	grown, err := expand.Labels(mask, o.Pixels)
	if err != nil {
		return err
	}
	narrowed := raster.Narrow(grown)
	a.log.Info("Expanded labels", "dtype", narrowed.Depth().String())
	if err := source.WriteMask(out, narrowed); err != nil {
		return err
	}
	a.log.Info("Mask saved", "path", out)
	return nil
}
