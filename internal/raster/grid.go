package raster

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// ErrDimension is returned when a plane or stack does not have the shape an
// operation requires.
var ErrDimension = errors.New("raster: unexpected dimensions")

// Sample is any numeric type a plane can hold.
type Sample interface {
	constraints.Unsigned | constraints.Float
}

// Plane is a 2-D grid of samples of unknown element type. *Grid[T] implements
// it for every supported T.
type Plane interface {
	Size() (width, height int)
	Depth() Depth
	// Uint64At returns the sample at (x, y) truncated to an unsigned integer.
	Uint64At(x, y int) uint64
	Float64At(x, y int) float64
}

// Grid is a row-major 2-D array.
type Grid[T Sample] struct {
	Width  int
	Height int
	Pix    []T
}

// NewGrid allocates a zeroed width x height grid.
func NewGrid[T Sample](width, height int) *Grid[T] {
	return &Grid[T]{
		Width:  width,
		Height: height,
		Pix:    make([]T, width*height),
	}
}

// FromRows builds a grid from a slice of equal-length rows.
func FromRows[T Sample](rows [][]T) (*Grid[T], error) {
	if len(rows) == 0 {
		return NewGrid[T](0, 0), nil
	}
	w := len(rows[0])
	g := NewGrid[T](w, len(rows))
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimension, y, len(row), w)
		}
		copy(g.Pix[y*w:], row)
	}
	return g, nil
}

func (g *Grid[T]) Size() (int, int) { return g.Width, g.Height }

func (g *Grid[T]) At(x, y int) T { return g.Pix[y*g.Width+x] }

func (g *Grid[T]) Set(x, y int, v T) { g.Pix[y*g.Width+x] = v }

func (g *Grid[T]) Uint64At(x, y int) uint64 { return uint64(g.Pix[y*g.Width+x]) }

func (g *Grid[T]) Float64At(x, y int) float64 { return float64(g.Pix[y*g.Width+x]) }

// Row returns the backing slice of row y.
func (g *Grid[T]) Row(y int) []T {
	return g.Pix[y*g.Width : (y+1)*g.Width]
}

// Depth reports the sample type of the grid.
func (g *Grid[T]) Depth() Depth {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return U8
	case uint16:
		return U16
	case uint32:
		return U32
	case uint64:
		return U64
	case float32:
		return F32
	case float64:
		return F64
	}
	return Invalid
}

// Bytes estimates the memory held by the grid's pixels.
func (g *Grid[T]) Bytes() uint64 {
	return uint64(len(g.Pix)) * uint64(g.Depth().Bytes())
}

// Bounds returns the smallest and largest sample. An empty grid yields (0, 0).
func (g *Grid[T]) Bounds() (lo, hi T) {
	if len(g.Pix) == 0 {
		return 0, 0
	}
	lo, hi = g.Pix[0], g.Pix[0]
	for _, v := range g.Pix[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Convert returns p as a grid of type T, copying unless p already is one.
// Float sources are rounded and clamped when T is an integer type.
func Convert[T Sample](p Plane) *Grid[T] {
	if g, ok := p.(*Grid[T]); ok {
		return g
	}
	w, h := p.Size()
	out := NewGrid[T](w, h)
	dst := out.Depth()
	src := p.Depth()
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if src.IsFloat() && !dst.IsFloat() {
				out.Pix[i] = T(clampRound(p.Float64At(x, y), dst.Max()))
			} else if src.IsFloat() {
				out.Pix[i] = T(p.Float64At(x, y))
			} else {
				out.Pix[i] = T(p.Uint64At(x, y))
			}
			i++
		}
	}
	return out
}

// Labels is the label-mask view of a plane.
func Labels(p Plane) *Grid[uint64] {
	return Convert[uint64](p)
}

func clampRound(v float64, max uint64) uint64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v >= float64(max) {
		return max
	}
	return uint64(v)
}
