package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func testRows() []struct {
	g     geom.T
	label any
} {
	return []struct {
		g     geom.T
		label any
	}{
		{squarePolygon(-10, -10, 10, 10), "HIGH"},
		{squarePolygon(5, 5, 20, 20), "MEDIUM"},
	}
}

func TestNewCollectionUnsupportedSRID(t *testing.T) {
	_, err := NewCollection(27700, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "27700")
}

func TestCandidates(t *testing.T) {
	coll, err := NewCollection(SRIDWGS84, []Feature{
		{Geom: squarePolygon(-10, -10, 10, 10), Label: "HIGH"},
		{Geom: squarePolygon(5, 5, 20, 20), Label: "MEDIUM"},
		{Geom: squarePolygon(100, 100, 110, 110), Label: "LOW"},
	})
	require.NoError(t, err)

	// Inside both of the overlapping squares: dataset order preserved.
	assert.Equal(t, []int{0, 1}, coll.Candidates(7, 7))

	// Inside the first square only.
	assert.Equal(t, []int{0}, coll.Candidates(0, 0))

	// Outside everything.
	assert.Empty(t, coll.Candidates(50, 50))
}

func TestCandidatesDegenerateBounds(t *testing.T) {
	// A zero-area feature must not break index construction.
	line := geom.NewPolygon(geom.XY)
	require.NoError(t, line.Push(geom.NewLinearRingFlat(geom.XY, []float64{
		0, 0, 0, 5, 0, 0,
	})))

	coll, err := NewCollection(SRIDWGS84, []Feature{{Geom: line, Label: "X"}})
	require.NoError(t, err)
	assert.NotNil(t, coll)
}

func TestStoreLoadCachesCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hazard.gpkg")
	writeGeoPackage(t, path, SRIDWGS84, testRows())

	store := NewStore(Options{Path: path})

	first, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Features, 2)
	assert.True(t, store.Loaded())

	// Remove the file: the cached collection must still be served with no I/O.
	require.NoError(t, os.Remove(path))

	second, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestStoreLoadConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hazard.gpkg")
	writeGeoPackage(t, path, SRIDWGS84, testRows())

	store := NewStore(Options{Path: path})

	const n = 16
	colls := make([]*Collection, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			colls[i], errs[i] = store.Load(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, colls[0], colls[i])
	}
}

func TestStoreDownloadsMissingFile(t *testing.T) {
	fixture := filepath.Join(t.TempDir(), "fixture.gpkg")
	writeGeoPackage(t, fixture, SRIDWGS84, testRows())
	data, err := os.ReadFile(fixture)
	require.NoError(t, err)

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "data", "hazard.gpkg")
	store := NewStore(Options{
		Path:            path,
		URL:             srv.URL + "/hazard.gpkg",
		DownloadTimeout: 10 * time.Second,
	})

	coll, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, coll.Features, 2)
	assert.Equal(t, 1, hits)

	// File landed on disk.
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), info.Size())
}

func TestStoreDownloadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := NewStore(Options{
		Path: filepath.Join(t.TempDir(), "hazard.gpkg"),
		URL:  srv.URL,
	})

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.False(t, store.Loaded())
}

func TestStoreMissingFileNoURL(t *testing.T) {
	store := NewStore(Options{Path: filepath.Join(t.TempDir(), "absent.gpkg")})

	_, err := store.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no download url")
}

func TestStoreCorruptFileFailsAtParse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hazard.gpkg")
	require.NoError(t, os.WriteFile(path, []byte("not a sqlite database"), 0o644))

	store := NewStore(Options{Path: path})
	_, err := store.Load(context.Background())
	assert.Error(t, err)
}

func TestStoreInferFormat(t *testing.T) {
	store := NewStore(Options{Path: "x.dat"})
	_, err := store.parse("x.dat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot infer format")

	store = NewStore(Options{Format: "tiff"})
	_, err = store.parse("x.tiff")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}
