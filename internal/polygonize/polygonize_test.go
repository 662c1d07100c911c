package polygonize

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

func grid(t *testing.T, rows [][]uint64) *raster.Grid[uint64] {
	t.Helper()
	g, err := raster.FromRows(rows)
	require.NoError(t, err)
	return g
}

func ring(pts ...float64) orb.Ring {
	r := make(orb.Ring, 0, len(pts)/2)
	for i := 0; i < len(pts); i += 2 {
		r = append(r, orb.Point{pts[i], pts[i+1]})
	}
	return r
}

func TestAggregateScenario(t *testing.T) {
	g := grid(t, [][]uint64{
		{0, 1, 1},
		{0, 1, 1},
		{2, 0, 0},
	})

	got, err := Aggregate(g, Options{})
	require.NoError(t, err)

	want := []Region{
		{Label: 1, Geometry: orb.Polygon{ring(1, 0, 3, 0, 3, 2, 1, 2, 1, 0)}},
		{Label: 2, Geometry: orb.Polygon{ring(0, 2, 1, 2, 1, 3, 0, 3, 0, 2)}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateAllZero(t *testing.T) {
	got, err := Aggregate(raster.NewGrid[uint64](5, 4), Options{})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = Aggregate(raster.NewGrid[uint64](0, 0), Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAggregateSingleRegion(t *testing.T) {
	g := grid(t, [][]uint64{
		{0, 0, 0, 0},
		{0, 7, 7, 0},
		{0, 7, 0, 0},
	})

	got, err := Aggregate(g, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Label)

	poly, ok := got[0].Geometry.(orb.Polygon)
	require.True(t, ok, "want Polygon, got %T", got[0].Geometry)
	require.Len(t, poly, 1)
	assert.Equal(t, ring(1, 1, 3, 1, 3, 2, 2, 2, 2, 3, 1, 3, 1, 1), poly[0])
}

func TestAggregateDisjointFragmentsBecomeMultiPolygon(t *testing.T) {
	g := grid(t, [][]uint64{
		{4, 0, 4},
	})

	got, err := Aggregate(g, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := orb.MultiPolygon{
		{ring(0, 0, 1, 0, 1, 1, 0, 1, 0, 0)},
		{ring(2, 0, 3, 0, 3, 1, 2, 1, 2, 0)},
	}
	if diff := cmp.Diff(orb.Geometry(want), got[0].Geometry); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateHole(t *testing.T) {
	g := grid(t, [][]uint64{
		{1, 1, 1},
		{1, 3, 1},
		{1, 1, 1},
	})

	got, err := Aggregate(g, Options{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	outer := got[0].Geometry.(orb.Polygon)
	require.Len(t, outer, 2)
	assert.Equal(t, ring(0, 0, 3, 0, 3, 3, 0, 3, 0, 0), outer[0])
	assert.Equal(t, ring(2, 1, 1, 1, 1, 2, 2, 2, 2, 1), outer[1])
	assert.Equal(t, orb.CCW, outer[0].Orientation())
	assert.Equal(t, orb.CW, outer[1].Orientation())
	assert.InDelta(t, 8, planar.Area(outer), 1e-9)

	inner := got[1].Geometry.(orb.Polygon)
	assert.Equal(t, uint64(3), got[1].Label)
	assert.Equal(t, orb.Polygon{ring(1, 1, 2, 1, 2, 2, 1, 2, 1, 1)}, inner)
}

func TestAggregateHoleTouchingShell(t *testing.T) {
	// The enclosed cell at (1,1) meets the outside only at vertex (2,2).
	g := grid(t, [][]uint64{
		{1, 1, 1},
		{1, 0, 1},
		{1, 1, 0},
	})

	got, err := Aggregate(g, Options{})
	require.NoError(t, err)
	require.Len(t, got, 1)

	want := orb.Polygon{
		ring(0, 0, 3, 0, 3, 2, 2, 2, 2, 3, 0, 3, 0, 0),
		ring(2, 1, 1, 1, 1, 2, 2, 2, 2, 1),
	}
	if diff := cmp.Diff(orb.Geometry(want), got[0].Geometry); diff != "" {
		t.Errorf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateConnectivity(t *testing.T) {
	g := grid(t, [][]uint64{
		{5, 0},
		{0, 5},
	})

	four, err := Aggregate(g, Options{Connectivity: FourConnected})
	require.NoError(t, err)
	require.Len(t, four, 1)
	assert.IsType(t, orb.MultiPolygon{}, four[0].Geometry)

	eight, err := Aggregate(g, Options{Connectivity: EightConnected})
	require.NoError(t, err)
	require.Len(t, eight, 1)
	poly, ok := eight[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly, 1)
	assert.InDelta(t, 2, planar.Area(poly), 1e-9)

	_, err = Aggregate(g, Options{Connectivity: 6})
	assert.Error(t, err)
}

func TestAggregateFirstSeenOrder(t *testing.T) {
	g := grid(t, [][]uint64{
		{9, 0, 2},
		{0, 0, 0},
		{2, 0, 9},
	})

	got, err := Aggregate(g, Options{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(9), got[0].Label)
	assert.Equal(t, uint64(2), got[1].Label)
}

func TestAggregateLabelsAndAreaMatchRaster(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	g := raster.NewGrid[uint64](40, 30)
	for i := range g.Pix {
		// Sparse labels produce plenty of holes, pinches and split regions.
		if r.Intn(3) > 0 {
			g.Pix[i] = uint64(r.Intn(6))
		}
	}

	counts := make(map[uint64]int)
	for _, v := range g.Pix {
		if v != 0 {
			counts[v]++
		}
	}

	for _, conn := range []Connectivity{FourConnected, EightConnected} {
		got, err := Aggregate(g, Options{Connectivity: conn})
		require.NoError(t, err)

		seen := make(map[uint64]bool)
		for _, reg := range got {
			assert.False(t, seen[reg.Label], "label %d emitted twice", reg.Label)
			seen[reg.Label] = true
			assert.InDelta(t, float64(counts[reg.Label]), planar.Area(reg.Geometry), 1e-9,
				"area of label %d with connectivity %d", reg.Label, conn)
		}
		assert.Len(t, seen, len(counts))
		assert.NotContains(t, seen, uint64(0))

		again, err := Aggregate(g, Options{Connectivity: conn})
		require.NoError(t, err)
		if diff := cmp.Diff(got, again); diff != "" {
			t.Errorf("aggregation is not repeatable (-first +second):\n%s", diff)
		}
	}
}

func TestShapesStopsEarly(t *testing.T) {
	g := grid(t, [][]uint64{{1, 0, 2, 0, 3}})

	var labels []uint64
	for _, label := range Shapes(g, Options{}) {
		labels = append(labels, label)
		if len(labels) == 2 {
			break
		}
	}
	assert.Equal(t, []uint64{1, 2}, labels)
}
