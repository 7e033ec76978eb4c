// Package hazard answers point-in-polygon flood hazard queries against a
// loaded dataset collection.
package hazard

import (
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/floodwatch/internal/dataset"
)

// NoDataLabel is returned when no labeled polygon contains the query point.
const NoDataLabel = "No flood hazard data for this location"

// Result is the outcome of a hazard lookup.
type Result struct {
	// Label is the hazard label of the matched polygon, or NoDataLabel.
	Label string
	// Matched reports whether a labeled polygon contained the point.
	Matched bool
	// Feature is the dataset index of the matched polygon, -1 otherwise.
	Feature int
	// X, Y are the query coordinates in the collection's reference system.
	X, Y float64
}

// Resolve finds the hazard label for the WGS84 point (lat, lon). The point is
// reprojected when the collection is not in WGS84. Candidates come from the
// bounding-box index and are tested in dataset order; the first containing
// feature with a non-empty label wins. Overlap tie-breaks beyond dataset
// order are unspecified.
func Resolve(lat, lon float64, coll *dataset.Collection) Result {
	x, y := lon, lat
	if coll.SRID == dataset.SRIDWebMercator {
		x, y = ToWebMercator(lon, lat)
	}

	for _, i := range coll.Candidates(x, y) {
		f := coll.Features[i]
		if f.Label == "" {
			continue
		}
		if contains(f.Geom, x, y) {
			return Result{Label: f.Label, Matched: true, Feature: i, X: x, Y: y}
		}
	}

	return Result{Label: NoDataLabel, Feature: -1, X: x, Y: y}
}

// contains reports whether g contains the point (x, y). Polygon and
// MultiPolygon geometries are supported; a point inside a hole is outside.
func contains(g geom.T, x, y float64) bool {
	p := geom.Coord{x, y}
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonContains(t, p)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			if polygonContains(t.Polygon(i), p) {
				return true
			}
		}
	}
	return false
}

func polygonContains(poly *geom.Polygon, p geom.Coord) bool {
	if poly.NumLinearRings() == 0 {
		return false
	}
	if !xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(0).FlatCoords()) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if xy.IsPointInRing(poly.Layout(), p, poly.LinearRing(i).FlatCoords()) {
			return false
		}
	}
	return true
}
