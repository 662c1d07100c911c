package rescale

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

func grid16(t *testing.T, vals ...uint16) *raster.Grid[uint16] {
	t.Helper()
	g, err := raster.FromRows([][]uint16{vals})
	require.NoError(t, err)
	return g
}

func TestChannel(t *testing.T) {
	got := Channel(grid16(t, 100, 150, 200, 1100), Bounds{Lo: 100, Hi: 1100})
	assert.Equal(t, []uint8{0, 12, 25, 255}, got.Pix)

	flat := Channel(grid16(t, 7, 7), Bounds{Lo: 7, Hi: 7})
	assert.Equal(t, []uint8{0, 0}, flat.Pix)

	clipped := Channel(grid16(t, 0, 50, 100), Bounds{Lo: 10, Hi: 60})
	assert.Equal(t, []uint8{0, 204, 255}, clipped.Pix)
}

func TestStackPerChannel(t *testing.T) {
	st, err := raster.NewStack(grid16(t, 0, 10), grid16(t, 100, 300))
	require.NoError(t, err)

	per, bounds, err := Stack(context.Background(), st, Options{PerChannel: true})
	require.NoError(t, err)
	assert.Equal(t, []Bounds{{0, 10}, {100, 300}}, bounds)
	assert.Equal(t, []uint8{0, 255}, per.Channels[0].(*raster.Grid[uint8]).Pix)
	assert.Equal(t, []uint8{0, 255}, per.Channels[1].(*raster.Grid[uint8]).Pix)

	global, bounds, err := Stack(context.Background(), st, Options{Workers: 1})
	require.NoError(t, err)
	assert.Equal(t, []Bounds{{0, 300}, {0, 300}}, bounds)
	assert.Equal(t, []uint8{0, 8}, global.Channels[0].(*raster.Grid[uint8]).Pix)
	assert.Equal(t, []uint8{85, 255}, global.Channels[1].(*raster.Grid[uint8]).Pix)
	assert.Equal(t, raster.U8, global.Depth())
}

func TestRangeClip(t *testing.T) {
	vals := make([]uint16, 100)
	for i := range vals {
		vals[i] = uint16(i + 1)
	}
	vals[99] = 60000

	b := Range(grid16(t, vals...), 1)
	assert.Equal(t, 1.0, b.Lo)
	assert.Equal(t, 99.0, b.Hi)

	b = Range(grid16(t, vals...), 0)
	assert.Equal(t, Bounds{1, 60000}, b)
}

func TestStackRejectsClip(t *testing.T) {
	st, err := raster.NewStack(grid16(t, 1))
	require.NoError(t, err)
	_, _, err = Stack(context.Background(), st, Options{ClipPercentile: 50})
	assert.Error(t, err)
}
