// Package pyramid writes tiled multi-resolution OME-TIFFs: every channel is
// a full-resolution page with its reduced levels stored as SubIFDs.
package pyramid

import (
	"fmt"
	"math"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

// DefaultTileSize matches the tiling most whole-slide viewers expect.
const DefaultTileSize = 1072

// ValidateTileSize checks that tile is a positive multiple of 16.
func ValidateTileSize(tile int) error {
	if tile <= 0 || tile%16 != 0 {
		return fmt.Errorf("tile size must be a positive multiple of 16, got %d", tile)
	}
	return nil
}

// Levels is the number of reduced levels for a width x height base:
// ceil(log2(max(1, maxdim/tile))) + 1.
func Levels(width, height, tile int) int {
	ratio := float64(max(width, height)) / float64(tile)
	return int(math.Ceil(math.Log2(math.Max(1, ratio)))) + 1
}

// Downsample keeps every second row and column, starting with the first.
func Downsample(p raster.Plane) raster.Plane {
	switch g := p.(type) {
	case *raster.Grid[uint8]:
		return stride(g)
	case *raster.Grid[uint16]:
		return stride(g)
	case *raster.Grid[uint32]:
		return stride(g)
	case *raster.Grid[uint64]:
		return stride(g)
	case *raster.Grid[float32]:
		return stride(g)
	case *raster.Grid[float64]:
		return stride(g)
	}
	return stride(raster.Convert[float64](p))
}

func stride[T raster.Sample](g *raster.Grid[T]) *raster.Grid[T] {
	out := raster.NewGrid[T]((g.Width+1)/2, (g.Height+1)/2)
	for y := 0; y < out.Height; y++ {
		src := g.Row(2 * y)
		dst := out.Row(y)
		for x := range dst {
			dst[x] = src[2*x]
		}
	}
	return out
}

// Build returns the reduced levels of base, each half the previous one.
func Build(base raster.Plane, levels int) []raster.Plane {
	out := make([]raster.Plane, 0, levels)
	cur := base
	for range levels {
		cur = Downsample(cur)
		out = append(out, cur)
	}
	return out
}
