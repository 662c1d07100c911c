package polygonize

import (
	"github.com/paulmach/orb"

	"github.com/bioimg-tools/bioimg/internal/raster"
)

// Region pairs a label with its geometry: an orb.Polygon when the label was
// traced as one fragment, otherwise an orb.MultiPolygon holding every
// fragment as a separate part.
type Region struct {
	Label    uint64
	Geometry orb.Geometry
}

// Aggregate groups the traced fragments of g by label. There is one Region
// per distinct non-zero value, in the order labels were first met during the
// trace. Callers must not rely on that order matching numeric label order.
func Aggregate(g *raster.Grid[uint64], opts Options) ([]Region, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	var order []uint64
	parts := make(map[uint64][]orb.Polygon)
	for poly, label := range Shapes(g, opts) {
		if _, seen := parts[label]; !seen {
			order = append(order, label)
		}
		parts[label] = append(parts[label], poly)
	}

	regions := make([]Region, 0, len(order))
	for _, label := range order {
		polys := parts[label]
		var geom orb.Geometry = polys[0]
		if len(polys) > 1 {
			geom = orb.MultiPolygon(polys)
		}
		regions = append(regions, Region{Label: label, Geometry: geom})
	}
	return regions, nil
}
