// Package vector reads and writes labelled polygons as GeoJSON.
package vector

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/bioimg-tools/bioimg/internal/polygonize"
)

// LabelProperty is the feature property holding the label value.
const LabelProperty = "cellId"

// ErrGeometry is returned for features that are not polygonal.
var ErrGeometry = errors.New("vector: feature is not a Polygon or MultiPolygon")

// crsNames maps accepted --crs values to the URN written in the legacy
// "crs" member.
var crsNames = map[string]string{
	"EPSG:4326": "urn:ogc:def:crs:OGC:1.3:CRS84",
	"CRS84":     "urn:ogc:def:crs:OGC:1.3:CRS84",
}

// CRSName returns the named-CRS URN for code. Codes outside the table are
// written as urn:ogc:def:crs:EPSG::<n>. An empty code yields "".
func CRSName(code string) (string, error) {
	if code == "" {
		return "", nil
	}
	code = strings.ToUpper(code)
	if urn, ok := crsNames[code]; ok {
		return urn, nil
	}
	if n, ok := strings.CutPrefix(code, "EPSG:"); ok && n != "" && strings.Trim(n, "0123456789") == "" {
		return "urn:ogc:def:crs:EPSG::" + n, nil
	}
	return "", fmt.Errorf("unsupported CRS %q, want EPSG:<code>", code)
}

// MaxLabel is the largest label that survives a GeoJSON round trip, since
// JSON readers hold numbers as float64.
const MaxLabel = 1 << 53

// Collection builds a FeatureCollection with one feature per region and the
// label in LabelProperty. Labels above MaxLabel are written exactly but Read
// rejects them.
func Collection(name string, regions []polygonize.Region, crs string) (*geojson.FeatureCollection, error) {
	urn, err := CRSName(crs)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, r := range regions {
		f := geojson.NewFeature(r.Geometry)
		f.Properties[LabelProperty] = r.Label
		fc.Append(f)
	}
	fc.ExtraMembers = geojson.Properties{}
	if name != "" {
		fc.ExtraMembers["name"] = name
	}
	if urn != "" {
		fc.ExtraMembers["crs"] = map[string]any{
			"type":       "name",
			"properties": map[string]any{"name": urn},
		}
	}
	return fc, nil
}

// Write stores fc at path, replacing it only once fully written.
func Write(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding GeoJSON: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Shape is a polygonal feature and the label it burns into a mask.
type Shape struct {
	Label    uint64
	Geometry orb.Geometry
}

// Read loads the polygonal features of a GeoJSON file. The label comes from
// the numeric property prop; features without it are numbered by position
// starting at 1.
func Read(path, prop string) ([]Shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	shapes := make([]Shape, 0, len(fc.Features))
	for i, f := range fc.Features {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("%w: feature %d is %s", ErrGeometry, i, geometryType(f.Geometry))
		}
		label := uint64(i + 1)
		if v, ok := f.Properties[prop]; ok {
			n, ok := v.(float64)
			if !ok || n < 0 || n > MaxLabel || n != math.Trunc(n) {
				return nil, fmt.Errorf("feature %d: property %q is %v, want an integer in [0, 2^53]", i, prop, v)
			}
			label = uint64(n)
		}
		shapes = append(shapes, Shape{Label: label, Geometry: f.Geometry})
	}
	return shapes, nil
}

func geometryType(g orb.Geometry) string {
	if g == nil {
		return "null"
	}
	return g.GeoJSONType()
}
