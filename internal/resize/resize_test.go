package resize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

func TestFactorsSize(t *testing.T) {
	w, h := Factors{0.5, 0.5}.Size(5, 4)
	assert.Equal(t, []int{3, 2}, []int{w, h})
	w, h = Factors{2, 1}.Size(5, 4)
	assert.Equal(t, []int{10, 4}, []int{w, h})
}

func TestPlaneConstantStaysConstant(t *testing.T) {
	g8 := raster.NewGrid[uint8](17, 9)
	for i := range g8.Pix {
		g8.Pix[i] = 120
	}
	got, err := Plane(context.Background(), g8, Factors{0.5, 0.5}, 3)
	require.NoError(t, err)
	out := got.(*raster.Grid[uint8])
	assert.Equal(t, 9, out.Width)
	assert.Equal(t, 5, out.Height)
	for _, v := range out.Pix {
		assert.Equal(t, uint8(120), v)
	}

	g16 := raster.NewGrid[uint16](8, 8)
	for i := range g16.Pix {
		g16.Pix[i] = 40000
	}
	got, err = Plane(context.Background(), g16, Factors{1.5, 0.25}, 2)
	require.NoError(t, err)
	out16 := got.(*raster.Grid[uint16])
	assert.Equal(t, 12, out16.Width)
	assert.Equal(t, 2, out16.Height)
	for _, v := range out16.Pix {
		assert.InDelta(t, 40000, v, 1)
	}
}

func TestPlaneBandsAreSeamless(t *testing.T) {
	g := raster.NewGrid[uint16](40, 30)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			g.Set(x, y, uint16((x*x+3*y*y)%5000))
		}
	}
	one, err := Plane(context.Background(), g, Factors{0.7, 0.45}, 1)
	require.NoError(t, err)
	many, err := Plane(context.Background(), g, Factors{0.7, 0.45}, 8)
	require.NoError(t, err)
	assert.Equal(t, one, many)
}

func TestPlaneRejects(t *testing.T) {
	_, err := Plane(context.Background(), raster.NewGrid[float32](4, 4), Factors{0.5, 0.5}, 1)
	assert.ErrorIs(t, err, ErrDepth)

	_, err = Plane(context.Background(), raster.NewGrid[uint8](4, 4), Factors{0, 0.5}, 1)
	assert.Error(t, err)
}

func TestStack(t *testing.T) {
	st, err := raster.NewStack(raster.NewGrid[uint8](10, 6), raster.NewGrid[uint8](10, 6))
	require.NoError(t, err)
	out, err := Stack(context.Background(), st, Factors{0.5, 0.5}, 2)
	require.NoError(t, err)
	c, h, w := out.Shape()
	assert.Equal(t, []int{2, 3, 5}, []int{c, h, w})
}
