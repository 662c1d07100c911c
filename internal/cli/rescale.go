package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bioimg-tools/bioimg/internal/config"
	"github.com/bioimg-tools/bioimg/internal/rescale"
	"github.com/bioimg-tools/bioimg/internal/source"
	"github.com/bioimg-tools/bioimg/internal/system"
	"github.com/bioimg-tools/bioimg/internal/tiff"
)

func newRescaleCommand(a *app, defaults config.Rescale) *cobra.Command {
	flags := defaults
	cmd := &cobra.Command{
		Use:   "rescale",
		Short: "Stretch an image to 8 bits per sample and save it as OME-TIFF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := a.cfg.Rescale
			pick(cmd, "input", flags.Input, &o.Input)
			pick(cmd, "output", flags.Output, &o.Output)
			pick(cmd, "per-channel", flags.PerChannel, &o.PerChannel)
			pick(cmd, "clip-percentile", flags.ClipPercentile, &o.ClipPercentile)
			pick(cmd, "workers", flags.Workers, &o.Workers)
			return a.run(cmd, func(ctx context.Context) error { return a.rescale(ctx, o) })
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.Input, "input", "i", "", "input image (.tif or .tiff)")
	f.StringVarP(&flags.Output, "output", "o", "", "output image (.tif or .tiff)")
	f.BoolVar(&flags.PerChannel, "per-channel", defaults.PerChannel, "stretch each channel over its own range")
	f.Float64Var(&flags.ClipPercentile, "clip-percentile", defaults.ClipPercentile, "saturate this percentage of samples at each end")
	f.IntVar(&flags.Workers, "workers", defaults.Workers, "channels processed at once")
	return cmd
}

func (a *app) rescale(ctx context.Context, o config.Rescale) error {
	in, err := checkInputFile(o.Input, source.TIFFExts...)
	if err != nil {
		return err
	}
	out, err := checkOutputFile(o.Output, source.TIFFExts...)
	if err != nil {
		return err
	}
	if o.ClipPercentile < 0 || o.ClipPercentile >= 50 {
		return invalid("clip percentile must be in [0, 50), got %v", o.ClipPercentile)
	}

	st, meta, err := source.ReadStack(in)
	if err != nil {
		return err
	}
	c, h, w := st.Shape()
	lo, hi := st.Range()
	a.log.Info("Image loaded", "shape", []int{c, h, w}, "dtype", st.Depth().String(),
		"min", lo, "max", hi, "size", system.FormatBytes(st.Bytes()))

	scaled, bounds, err := rescale.Stack(ctx, st, rescale.Options{
		PerChannel:     o.PerChannel,
		ClipPercentile: o.ClipPercentile,
		Workers:        o.Workers,
	})
	if err != nil {
		return err
	}
	for i, b := range bounds {
		a.log.Debug("Channel range", "channel", i, "min", b.Lo, "max", b.Hi)
	}
	a.log.Info("Scaled image", "dtype", scaled.Depth().String(), "pixel_size_um", meta.PhysicalSizeX)

	if err := source.WriteOME(out, scaled, meta, tiff.PageOptions{}); err != nil {
		return err
	}
	a.log.Info("Image saved", "path", out)
	return nil
}
