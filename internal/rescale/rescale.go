// Package rescale maps image intensities onto the 8-bit range.
package rescale

import (
	"context"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

// Options control how intensity bounds are chosen.
type Options struct {
	// PerChannel stretches every channel over its own range; otherwise one
	// range spans the whole stack.
	PerChannel bool
	// ClipPercentile in [0, 50) saturates that share of samples at each end.
	ClipPercentile float64
	Workers        int
}

func (o Options) validate() error {
	if o.ClipPercentile < 0 || o.ClipPercentile >= 50 || math.IsNaN(o.ClipPercentile) {
		return fmt.Errorf("clip percentile must be in [0, 50), got %v", o.ClipPercentile)
	}
	return nil
}

// Bounds is the intensity range mapped onto 0..255.
type Bounds struct {
	Lo, Hi float64
}

// Stack converts every channel of st to uint8.
func Stack(ctx context.Context, st *raster.Stack, opts Options) (*raster.Stack, []Bounds, error) {
	if err := opts.validate(); err != nil {
		return nil, nil, err
	}
	bounds := make([]Bounds, len(st.Channels))
	for i, p := range st.Channels {
		bounds[i] = Range(p, opts.ClipPercentile)
	}
	if !opts.PerChannel && len(bounds) > 0 {
		los, his := make([]float64, len(bounds)), make([]float64, len(bounds))
		for i, b := range bounds {
			los[i], his[i] = b.Lo, b.Hi
		}
		all := Bounds{Lo: floats.Min(los), Hi: floats.Max(his)}
		for i := range bounds {
			bounds[i] = all
		}
	}

	out := make([]raster.Plane, len(st.Channels))
	g, ctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, p := range st.Channels {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = Channel(p, bounds[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	res, err := raster.NewStack(out...)
	return res, bounds, err
}

// Range returns the bounds of p, optionally clipped at the given
// percentile from each end.
func Range(p raster.Plane, clip float64) Bounds {
	if clip == 0 {
		lo, hi := raster.PlaneRange(p)
		return Bounds{Lo: lo, Hi: hi}
	}
	vals := slices.Clone(raster.Convert[float64](p).Pix)
	if len(vals) == 0 {
		return Bounds{}
	}
	slices.Sort(vals)
	return Bounds{
		Lo: stat.Quantile(clip/100, stat.Empirical, vals, nil),
		Hi: stat.Quantile(1-clip/100, stat.Empirical, vals, nil),
	}
}

// Channel computes (x-lo)/(hi-lo)*255 truncated to uint8, saturating
// outside the bounds. A flat channel maps to zero.
func Channel(p raster.Plane, b Bounds) *raster.Grid[uint8] {
	w, h := p.Size()
	out := raster.NewGrid[uint8](w, h)
	span := b.Hi - b.Lo
	if span <= 0 || math.IsNaN(span) {
		return out
	}
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := (p.Float64At(x, y) - b.Lo) * math.MaxUint8 / span
			switch {
			case v <= 0 || math.IsNaN(v):
			case v >= math.MaxUint8:
				out.Pix[i] = math.MaxUint8
			default:
				out.Pix[i] = uint8(v)
			}
			i++
		}
	}
	return out
}
