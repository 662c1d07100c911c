package expand

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

func TestLabels(t *testing.T) {
	g, err := raster.FromRows([][]uint64{
		{0, 0, 0, 0, 0, 0},
		{0, 1, 0, 0, 0, 2},
		{0, 0, 0, 0, 0, 0},
	})
	require.NoError(t, err)

	got, err := Labels(g, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{
		0, 1, 0, 0, 0, 2,
		1, 1, 1, 0, 2, 2,
		0, 1, 0, 0, 0, 2,
	}, got.Pix)

	got, err = Labels(g, 1.5)
	require.NoError(t, err)
	assert.Equal(t, []uint64{
		1, 1, 1, 0, 2, 2,
		1, 1, 1, 0, 2, 2,
		1, 1, 1, 0, 2, 2,
	}, got.Pix)
	assert.Equal(t, uint64(1), g.At(1, 1), "input is not modified")
	assert.Equal(t, uint64(0), g.At(0, 0))
}

func TestLabelsKeepsExistingLabels(t *testing.T) {
	g, err := raster.FromRows([][]uint64{{1, 2, 0, 0}})
	require.NoError(t, err)
	got, err := Labels(g, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 2, 2}, got.Pix)
}

func TestLabelsRejectsDistance(t *testing.T) {
	g := raster.NewGrid[uint64](2, 2)
	for _, p := range []float64{0, -1, math.NaN()} {
		_, err := Labels(g, p)
		assert.Error(t, err, "distance %v", p)
	}
}

func TestTransformEmpty(t *testing.T) {
	dist, nearest := Transform(raster.NewGrid[uint64](3, 2))
	for i := range dist {
		assert.True(t, math.IsInf(dist[i], 1))
		assert.Equal(t, -1, nearest[i])
	}
}

func TestTransformMatchesBruteForce(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	g := raster.NewGrid[uint64](31, 17)
	for i := range g.Pix {
		if r.Intn(25) == 0 {
			g.Pix[i] = uint64(1 + r.Intn(9))
		}
	}
	g.Pix[0] = 1

	dist, nearest := Transform(g)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			best := math.Inf(1)
			for fy := 0; fy < g.Height; fy++ {
				for fx := 0; fx < g.Width; fx++ {
					if g.At(fx, fy) == 0 {
						continue
					}
					d := float64((fx-x)*(fx-x) + (fy-y)*(fy-y))
					best = min(best, d)
				}
			}
			i := y*g.Width + x
			require.Equal(t, best, dist[i], "distance at (%d,%d)", x, y)

			n := nearest[i]
			require.GreaterOrEqual(t, n, 0)
			nx, ny := n%g.Width, n/g.Width
			assert.NotZero(t, g.Pix[n])
			assert.Equal(t, best, float64((nx-x)*(nx-x)+(ny-y)*(ny-y)), "nearest of (%d,%d)", x, y)
		}
	}
}
