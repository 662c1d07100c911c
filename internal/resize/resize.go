// Package resize resamples image planes with a Catmull-Rom cubic kernel.
package resize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"golang.org/x/sync/errgroup"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

// ErrDepth is returned for planes other than 8 or 16-bit.
var ErrDepth = errors.New("resize: only uint8 and uint16 planes can be resampled")

// Factors scale the x and y axes.
type Factors struct {
	X, Y float64
}

func (f Factors) validate() error {
	for _, v := range []float64{f.X, f.Y} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("scale factors must be positive, got %vx%v", f.X, f.Y)
		}
	}
	return nil
}

// Size is the output size for a width x height input: ceil(size*factor).
func (f Factors) Size(width, height int) (int, int) {
	return int(math.Ceil(float64(width) * f.X)), int(math.Ceil(float64(height) * f.Y))
}

// Plane resamples p. The output is cut into horizontal bands drawn
// concurrently by up to workers goroutines. All bands share one transform,
// so the result does not depend on the band count.
func Plane(ctx context.Context, p raster.Plane, f Factors, workers int) (raster.Plane, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	w, h := p.Size()
	dw, dh := f.Size(w, h)
	if dw == 0 || dh == 0 {
		return nil, fmt.Errorf("%w: %dx%d input", raster.ErrDimension, w, h)
	}

	var src image.Image
	var dst draw.Image
	var result func() raster.Plane
	switch g := p.(type) {
	case *raster.Grid[uint8]:
		src = &image.Gray{Pix: g.Pix, Stride: g.Width, Rect: image.Rect(0, 0, w, h)}
		out := raster.NewGrid[uint8](dw, dh)
		dst = &image.Gray{Pix: out.Pix, Stride: dw, Rect: image.Rect(0, 0, dw, dh)}
		result = func() raster.Plane { return out }
	case *raster.Grid[uint16]:
		gray := image.NewGray16(image.Rect(0, 0, w, h))
		for i, v := range g.Pix {
			gray.Pix[2*i], gray.Pix[2*i+1] = uint8(v>>8), uint8(v)
		}
		src = gray
		d16 := image.NewGray16(image.Rect(0, 0, dw, dh))
		dst = d16
		result = func() raster.Plane {
			out := raster.NewGrid[uint16](dw, dh)
			for i := range out.Pix {
				out.Pix[i] = uint16(d16.Pix[2*i])<<8 | uint16(d16.Pix[2*i+1])
			}
			return out
		}
	default:
		return nil, fmt.Errorf("%w: got %v", ErrDepth, p.Depth())
	}

	// Mapping the full extents keeps edges aligned when ceil rounds up.
	s2d := f64.Aff3{
		float64(dw) / float64(w), 0, 0,
		0, float64(dh) / float64(h), 0,
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	bands := min(workers, dh)
	step := (dh + bands - 1) / bands

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for y0 := 0; y0 < dh; y0 += step {
		band := image.Rect(0, y0, dw, min(dh, y0+step))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sub := dst.(interface {
				SubImage(image.Rectangle) image.Image
			}).SubImage(band).(draw.Image)
			draw.CatmullRom.Transform(sub, s2d, src, src.Bounds(), draw.Src, nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result(), nil
}

// Stack resamples every channel of st.
func Stack(ctx context.Context, st *raster.Stack, f Factors, workers int) (*raster.Stack, error) {
	out := make([]raster.Plane, len(st.Channels))
	for i, p := range st.Channels {
		r, err := Plane(ctx, p, f, workers)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		out[i] = r
	}
	return raster.NewStack(out...)
}
