package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bioimg-tools/bioimg/internal/config"
	"github.com/bioimg-tools/bioimg/internal/raster"
	"github.com/bioimg-tools/bioimg/internal/rasterize"
	"github.com/bioimg-tools/bioimg/internal/source"
	"github.com/bioimg-tools/bioimg/internal/vector"
)

func newRasterizeCommand(a *app, defaults config.Rasterize) *cobra.Command {
	flags := defaults
	cmd := &cobra.Command{
		Use:   "rasterize",
		Short: "Burn GeoJSON polygons into a labelled TIFF mask",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := a.cfg.Rasterize
			pick(cmd, "input", flags.Input, &o.Input)
			pick(cmd, "output", flags.Output, &o.Output)
			pick(cmd, "reference", flags.Reference, &o.Reference)
			pick(cmd, "width", flags.Width, &o.Width)
			pick(cmd, "height", flags.Height, &o.Height)
			pick(cmd, "label-property", flags.LabelProperty, &o.LabelProperty)
			return a.run(cmd, func(ctx context.Context) error { return a.rasterize(ctx, o) })
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.Input, "input", "i", "", "polygons (.geojson or .json)")
	f.StringVarP(&flags.Output, "output", "o", "", "mask output (.tif or .tiff)")
	f.StringVar(&flags.Reference, "reference", "", "image whose last two dimensions give the mask size")
	f.IntVar(&flags.Width, "width", 0, "mask width when no reference is given")
	f.IntVar(&flags.Height, "height", 0, "mask height when no reference is given")
	f.StringVar(&flags.LabelProperty, "label-property", defaults.LabelProperty, "feature property holding the label")
	return cmd
}

func (a *app) rasterize(_ context.Context, o config.Rasterize) error {
	in, err := checkInputFile(o.Input, ".geojson", ".json")
	if err != nil {
		return err
	}
	out, err := checkOutputFile(o.Output, source.TIFFExts...)
	if err != nil {
		return err
	}

	w, h := o.Width, o.Height
	switch {
	case o.Reference != "":
		ref, err := checkInputFile(o.Reference, source.TIFFExts...)
		if err != nil {
			return err
		}
		src, err := source.OpenTIFF(ref)
		if err != nil {
			return err
		}
		c, rh, rw := src.Shape()
		src.Close()
		a.log.Info("Reference image", "path", ref, "shape", []int{c, rh, rw})
		w, h = rw, rh
	case w <= 0 || h <= 0:
		return invalid("give --reference or a positive --width and --height")
	}

	shapes, err := vector.Read(in, o.LabelProperty)
	if err != nil {
		return err
	}
	a.log.Info("Rasterizing", "features", len(shapes), "width", w, "height", h)
	a.checkMemory("mask", uint64(w)*uint64(h)*8)

	mask, err := rasterize.Burn(shapes, w, h)
	if err != nil {
		return err
	}
	narrowed := raster.Narrow(mask)
	if err := source.WriteMask(out, narrowed); err != nil {
		return err
	}
	a.log.Info("Mask saved", "path", out, "dtype", narrowed.Depth().String())
	return nil
}
