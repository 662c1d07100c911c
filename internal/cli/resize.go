package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bioimg-tools/bioimg/internal/config"
	"github.com/bioimg-tools/bioimg/internal/resize"
	"github.com/bioimg-tools/bioimg/internal/source"
	"github.com/bioimg-tools/bioimg/internal/tiff"
)

func newResizeCommand(a *app, defaults config.Resize) *cobra.Command {
	flags := defaults
	cmd := &cobra.Command{
		Use:   "resize",
		Short: "Resample every channel of an image with a cubic kernel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := a.cfg.Resize
			pick(cmd, "input", flags.Input, &o.Input)
			pick(cmd, "output", flags.Output, &o.Output)
			pick(cmd, "factor", flags.Factor, &o.Factor)
			pick(cmd, "fx", flags.FactorX, &o.FactorX)
			pick(cmd, "fy", flags.FactorY, &o.FactorY)
			pick(cmd, "workers", flags.Workers, &o.Workers)
			return a.run(cmd, func(ctx context.Context) error { return a.resize(ctx, o) })
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.Input, "input", "i", "", "input image (.tif or .tiff)")
	f.StringVarP(&flags.Output, "output", "o", "", "output image (.tif or .tiff)")
	f.Float64Var(&flags.Factor, "factor", defaults.Factor, "scale factor for both axes")
	f.Float64Var(&flags.FactorX, "fx", defaults.FactorX, "scale factor for x, overrides --factor")
	f.Float64Var(&flags.FactorY, "fy", defaults.FactorY, "scale factor for y, overrides --factor")
	f.IntVar(&flags.Workers, "workers", defaults.Workers, "row bands resampled at once")
	return cmd
}

func (a *app) resize(ctx context.Context, o config.Resize) error {
	in, err := checkInputFile(o.Input, source.TIFFExts...)
	if err != nil {
		return err
	}
	out, err := checkOutputFile(o.Output, source.TIFFExts...)
	if err != nil {
		return err
	}
	f := resize.Factors{X: o.Factor, Y: o.Factor}
	if o.FactorX != 0 {
		f.X = o.FactorX
	}
	if o.FactorY != 0 {
		f.Y = o.FactorY
	}
	if f.X <= 0 || f.Y <= 0 {
		return invalid("scale factors must be positive, got %vx%v", f.X, f.Y)
	}

	st, meta, err := source.ReadStack(in)
	if err != nil {
		return err
	}
	c, h, w := st.Shape()
	nw, nh := f.Size(w, h)
	a.log.Info("Resizing", "shape", []int{c, h, w}, "new_shape", []int{c, nh, nw}, "dtype", st.Depth().String())
	a.checkMemory("resized image", uint64(c)*uint64(nw)*uint64(nh)*uint64(st.Depth().Bytes()))

	resized, err := resize.Stack(ctx, st, f, o.Workers)
	if err != nil {
		return err
	}
	meta.PhysicalSizeX /= f.X
	meta.PhysicalSizeY /= f.Y
	if err := source.WriteOME(out, resized, meta, tiff.PageOptions{}); err != nil {
		return err
	}
	a.log.Info("Image saved", "path", out)
	return nil
}
