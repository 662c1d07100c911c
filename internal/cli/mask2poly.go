package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bioimg-tools/bioimg/internal/config"
	"github.com/bioimg-tools/bioimg/internal/polygonize"
	"github.com/bioimg-tools/bioimg/internal/source"
	"github.com/bioimg-tools/bioimg/internal/vector"
)

func newMask2PolyCommand(a *app, defaults config.Mask2Poly) *cobra.Command {
	flags := defaults
	cmd := &cobra.Command{
		Use:   "mask2poly",
		Short: "Convert a labelled TIFF mask into GeoJSON polygons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := a.cfg.Mask2Poly
			pick(cmd, "input", flags.Input, &o.Input)
			pick(cmd, "output", flags.Output, &o.Output)
			pick(cmd, "channel", flags.Channel, &o.Channel)
			pick(cmd, "connectivity", flags.Connectivity, &o.Connectivity)
			pick(cmd, "crs", flags.CRS, &o.CRS)
			return a.run(cmd, func(ctx context.Context) error { return a.mask2poly(ctx, o) })
		},
	}
	f := cmd.Flags()
	f.StringVarP(&flags.Input, "input", "i", "", "labelled mask (.tif or .tiff)")
	f.StringVarP(&flags.Output, "output", "o", "", "GeoJSON output (.geojson)")
	f.IntVar(&flags.Channel, "channel", defaults.Channel, "page to read from a multi-page mask")
	f.IntVar(&flags.Connectivity, "connectivity", defaults.Connectivity, "pixel connectivity, 4 or 8")
	f.StringVar(&flags.CRS, "crs", defaults.CRS, "CRS recorded in the output, empty for none")
	return cmd
}

func (a *app) mask2poly(_ context.Context, o config.Mask2Poly) error {
	in, err := checkInputFile(o.Input, source.TIFFExts...)
	if err != nil {
		return err
	}
	out, err := checkOutputFile(o.Output, ".geojson")
	if err != nil {
		return err
	}
	if o.Connectivity != 4 && o.Connectivity != 8 {
		return invalid("connectivity must be 4 or 8, got %d", o.Connectivity)
	}
	if o.Channel < 0 {
		return invalid("channel must not be negative, got %d", o.Channel)
	}
	if _, err := vector.CRSName(o.CRS); err != nil {
		return invalid("%v", err)
	}

	src, err := source.OpenTIFF(in)
	if err != nil {
		return err
	}
	c, h, w := src.Shape()
	bits := src.SampleBits()
	src.Close()
	a.checkMemory("mask", uint64(w)*uint64(h)*8)

	mask, err := source.ReadMask(in, o.Channel)
	if err != nil {
		return err
	}
	lo, hi := mask.Bounds()
	a.log.Info("Loaded mask", "shape", fmt.Sprintf("(%d, %d, %d)", c, h, w), "bits", bits, "max", hi, "min", lo)

	regions, err := polygonize.Aggregate(mask, polygonize.Options{Connectivity: polygonize.Connectivity(o.Connectivity)})
	if err != nil {
		return err
	}
	multi := 0
	for _, r := range regions {
		if r.Geometry.GeoJSONType() == "MultiPolygon" {
			multi++
		}
	}
	a.log.Info("Traced regions", "labels", len(regions), "multipolygons", multi)

	name := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
	fc, err := vector.Collection(name, regions, o.CRS)
	if err != nil {
		return err
	}
	if err := vector.Write(out, fc); err != nil {
		return err
	}
	a.log.Info("GeoJSON saved", "path", out)
	return nil
}
