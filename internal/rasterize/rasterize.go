// Package rasterize burns polygonal shapes into a label grid.
package rasterize

import (
	"fmt"
	"math"
	"slices"

	"github.com/paulmach/orb"

	"github.com/bioimg-tools/bioimg/internal/raster"
	"github.com/bioimg-tools/bioimg/internal/vector"
)

// Burn returns a width x height grid where every pixel whose centre lies
// inside a shape holds that shape's label. Holes follow the even-odd rule
// and later shapes overwrite earlier ones. Coordinates are pixel corners,
// the inverse of polygonize.
func Burn(shapes []vector.Shape, width, height int) (*raster.Grid[uint64], error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: mask size %dx%d", raster.ErrDimension, width, height)
	}
	g := raster.NewGrid[uint64](width, height)
	for _, s := range shapes {
		switch geom := s.Geometry.(type) {
		case orb.Polygon:
			fill(g, geom, s.Label)
		case orb.MultiPolygon:
			for _, p := range geom {
				fill(g, p, s.Label)
			}
		default:
			return nil, fmt.Errorf("%w: got %T", vector.ErrGeometry, s.Geometry)
		}
	}
	return g, nil
}

// fill scan-converts one polygon row by row at pixel centres.
func fill(g *raster.Grid[uint64], p orb.Polygon, label uint64) {
	if len(p) == 0 {
		return
	}
	b := p.Bound()
	y0 := max(0, int(math.Floor(b.Min.Y())))
	y1 := min(g.Height-1, int(math.Ceil(b.Max.Y())))

	var xs []float64
	for y := y0; y <= y1; y++ {
		cy := float64(y) + 0.5
		xs = xs[:0]
		for _, r := range p {
			for i := 0; i < len(r); i++ {
				a, c := r[i], r[(i+1)%len(r)]
				if (a.Y() <= cy) == (c.Y() <= cy) {
					continue
				}
				t := (cy - a.Y()) / (c.Y() - a.Y())
				xs = append(xs, a.X()+t*(c.X()-a.X()))
			}
		}
		slices.Sort(xs)

		row := g.Row(y)
		for i := 0; i+1 < len(xs); i += 2 {
			from := max(0, int(math.Ceil(xs[i]-0.5)))
			to := min(g.Width, int(math.Ceil(xs[i+1]-0.5)))
			for x := from; x < to; x++ {
				row[x] = label
			}
		}
	}
}
