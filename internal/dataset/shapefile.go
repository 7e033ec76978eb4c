package dataset

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// readShapefile loads polygon features from a shapefile. The hazard label is
// read from the DBF field named labelField (case-insensitive). Shapefiles
// carry no CRS in-band, so coordinates are assumed WGS84.
func readShapefile(path, labelField string) (*Collection, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", path)
	}
	defer func() { _ = reader.Close() }()

	// Build field name → index map.
	fields := reader.Fields()
	labelIdx := -1
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, labelField) {
			labelIdx = i
			break
		}
	}
	if labelIdx < 0 {
		return nil, eris.Errorf("shapefile: field %q not found in %s", labelField, path)
	}

	var features []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()

		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		g := polygonToMultiPolygon(poly)
		if g == nil {
			skipped++
			continue
		}

		label := strings.TrimSpace(strings.TrimRight(reader.Attribute(labelIdx), "\x00"))
		features = append(features, Feature{Geom: g, Label: label})
	}

	if skipped > 0 {
		zap.L().Debug("shapefile: skipped records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}

	return NewCollection(SRIDWGS84, features)
}

// polygonToMultiPolygon converts a shapefile Polygon to a geom.MultiPolygon.
// Shapefile parts are flat rings: outer rings wind clockwise, holes
// counter-clockwise. Holes attach to the most recent outer ring.
func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(SRIDWGS84)
	var current *geom.Polygon

	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		var end int32
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		} else {
			end = int32(len(p.Points))
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}

		ring := geom.NewLinearRingFlat(geom.XY, flat)
		if signedArea(flat) <= 0 || current == nil {
			// Clockwise: outer ring starts a new polygon.
			if current != nil {
				if err := mp.Push(current); err != nil {
					zap.L().Debug("shapefile: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
				}
			}
			current = geom.NewPolygon(geom.XY)
			if err := current.Push(ring); err != nil {
				zap.L().Debug("shapefile: skipping malformed ring", zap.Int32("part", i), zap.Error(err))
				current = nil
			}
			continue
		}

		// Counter-clockwise: hole in the current polygon.
		if err := current.Push(ring); err != nil {
			zap.L().Debug("shapefile: skipping malformed hole ring", zap.Int32("part", i), zap.Error(err))
		}
	}
	if current != nil {
		if err := mp.Push(current); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon part", zap.Error(err))
		}
	}

	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// signedArea is the shoelace sum of a flat XY ring: negative for clockwise
// winding.
func signedArea(flat []float64) float64 {
	var sum float64
	n := len(flat) / 2
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += flat[i*2]*flat[j*2+1] - flat[j*2]*flat[i*2+1]
	}
	return sum / 2
}
