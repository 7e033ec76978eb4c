package hazard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/floodwatch/internal/dataset"
)

func square(minX, minY, maxX, maxY float64) *geom.Polygon {
	poly := geom.NewPolygon(geom.XY)
	err := poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		minX, minY,
		maxX, minY,
		maxX, maxY,
		minX, maxY,
		minX, minY,
	}))
	if err != nil {
		panic(err)
	}
	return poly
}

func mustCollection(t *testing.T, srid int, features []dataset.Feature) *dataset.Collection {
	t.Helper()
	coll, err := dataset.NewCollection(srid, features)
	require.NoError(t, err)
	return coll
}

func TestResolveInsidePolygon(t *testing.T) {
	coll := mustCollection(t, dataset.SRIDWGS84, []dataset.Feature{
		{Geom: square(-10, -10, 10, 10), Label: "HIGH"},
	})

	res := Resolve(0, 0, coll)
	assert.True(t, res.Matched)
	assert.Equal(t, "HIGH", res.Label)
	assert.Equal(t, 0, res.Feature)
}

func TestResolveOutsideAllPolygons(t *testing.T) {
	coll := mustCollection(t, dataset.SRIDWGS84, []dataset.Feature{
		{Geom: square(-10, -10, 10, 10), Label: "HIGH"},
	})

	res := Resolve(50, 50, coll)
	assert.False(t, res.Matched)
	assert.Equal(t, NoDataLabel, res.Label)
	assert.Equal(t, -1, res.Feature)
}

func TestResolveLonLatOrder(t *testing.T) {
	// Polygon spanning lon 100..110, lat 0..5. A point at lat 2, lon 105 is
	// inside only when the geometry axis order is (lon, lat).
	coll := mustCollection(t, dataset.SRIDWGS84, []dataset.Feature{
		{Geom: square(100, 0, 110, 5), Label: "HIGH"},
	})

	assert.True(t, Resolve(2, 105, coll).Matched)
	assert.False(t, Resolve(105, 2, coll).Matched)
}

func TestResolvePointInHole(t *testing.T) {
	poly := square(0, 0, 10, 10)
	require.NoError(t, poly.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		4, 4,
		6, 4,
		6, 6,
		4, 6,
		4, 4,
	})))
	coll := mustCollection(t, dataset.SRIDWGS84, []dataset.Feature{
		{Geom: poly, Label: "HIGH"},
	})

	assert.True(t, Resolve(2, 2, coll).Matched)

	res := Resolve(5, 5, coll)
	assert.False(t, res.Matched)
	assert.Equal(t, NoDataLabel, res.Label)
}

func TestResolveMultiPolygon(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(square(0, 0, 10, 10)))
	require.NoError(t, mp.Push(square(20, 20, 30, 30)))

	coll := mustCollection(t, dataset.SRIDWGS84, []dataset.Feature{
		{Geom: mp, Label: "MEDIUM"},
	})

	assert.Equal(t, "MEDIUM", Resolve(25, 25, coll).Label)
	assert.Equal(t, NoDataLabel, Resolve(15, 15, coll).Label)
}

func TestResolveSkipsUnlabeledFeatures(t *testing.T) {
	coll := mustCollection(t, dataset.SRIDWGS84, []dataset.Feature{
		{Geom: square(-10, -10, 10, 10), Label: ""},
		{Geom: square(-5, -5, 5, 5), Label: "LOW"},
	})

	res := Resolve(0, 0, coll)
	assert.Equal(t, "LOW", res.Label)
	assert.Equal(t, 1, res.Feature)
}

func TestResolveFirstMatchWins(t *testing.T) {
	coll := mustCollection(t, dataset.SRIDWGS84, []dataset.Feature{
		{Geom: square(-10, -10, 10, 10), Label: "FIRST"},
		{Geom: square(-10, -10, 10, 10), Label: "SECOND"},
	})

	assert.Equal(t, "FIRST", Resolve(0, 0, coll).Label)
}

func TestResolveWebMercatorDataset(t *testing.T) {
	// Square around the reprojected position of (lat 10, lon 20).
	cx, cy := ToWebMercator(20, 10)
	coll := mustCollection(t, dataset.SRIDWebMercator, []dataset.Feature{
		{Geom: square(cx-1000, cy-1000, cx+1000, cy+1000), Label: "HIGH"},
	})

	res := Resolve(10, 20, coll)
	assert.True(t, res.Matched)
	assert.Equal(t, "HIGH", res.Label)

	assert.False(t, Resolve(-10, 20, coll).Matched)
}

func TestWebMercatorRoundTrip(t *testing.T) {
	cases := [][2]float64{ // lon, lat
		{0, 0},
		{20, 10},
		{-122.42, 37.77},
		{151.21, -33.87},
		{179.9, 84.9},
	}
	for _, c := range cases {
		x, y := ToWebMercator(c[0], c[1])
		lon, lat := FromWebMercator(x, y)
		assert.InDelta(t, c[0], lon, 1e-9)
		assert.InDelta(t, c[1], lat, 1e-9)
	}
}

func TestWebMercatorKnownValues(t *testing.T) {
	x, y := ToWebMercator(0, 0)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	// Equatorial circumference edge.
	x, _ = ToWebMercator(180, 0)
	assert.InDelta(t, 20037508.34, x, 0.01)
}
