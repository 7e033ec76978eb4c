// Package dataset loads the flood-hazard polygon dataset and caches the
// parsed geometry collection in process memory. The dataset file is fetched
// from a remote URL on first use when it is not already on disk.
package dataset

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dhconnelly/rtreego"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Supported spatial reference systems.
const (
	SRIDWGS84       = 4326
	SRIDWebMercator = 3857
)

// DefaultLabelField is the attribute column carrying the hazard label.
const DefaultLabelField = "SOIL_FLOOD_HAZARD"

// Feature is one dataset polygon with its hazard label. Label is empty when
// the source row carried no attribute value.
type Feature struct {
	Geom  geom.T
	Label string
}

// Collection is the parsed dataset: ordered features, their reference system,
// and a bounding-box index. Immutable after construction.
type Collection struct {
	SRID     int
	Features []Feature

	index *rtreego.Rtree
}

// spatialFeature wraps a feature index for R-tree storage.
type spatialFeature struct {
	idx  int
	rect *rtreego.Rect
}

func (s *spatialFeature) Bounds() *rtreego.Rect { return s.rect }

// NewCollection builds a Collection with its bounding-box index. The SRID
// must be one of the supported reference systems.
func NewCollection(srid int, features []Feature) (*Collection, error) {
	if srid != SRIDWGS84 && srid != SRIDWebMercator {
		return nil, eris.Errorf("dataset: unsupported srid %d (supported: %d, %d)", srid, SRIDWGS84, SRIDWebMercator)
	}

	c := &Collection{
		SRID:     srid,
		Features: features,
		index:    rtreego.NewTree(2, 25, 50),
	}

	for i, f := range c.Features {
		if f.Geom == nil {
			continue
		}
		b := f.Geom.Bounds()
		lengths := []float64{b.Max(0) - b.Min(0), b.Max(1) - b.Min(1)}
		// rtreego rejects zero-extent rectangles; pad degenerate bounds.
		for d := range lengths {
			if lengths[d] <= 0 {
				lengths[d] = 1e-9
			}
		}
		rect, err := rtreego.NewRect(rtreego.Point{b.Min(0), b.Min(1)}, lengths)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: index feature %d", i)
		}
		c.index.Insert(&spatialFeature{idx: i, rect: rect})
	}

	return c, nil
}

// Candidates returns indexes of features whose bounds contain (x, y), in
// dataset order. Coordinates are in the collection's reference system.
func (c *Collection) Candidates(x, y float64) []int {
	probe := rtreego.Point{x, y}.ToRect(1e-9)
	results := c.index.SearchIntersect(probe)

	idxs := make([]int, 0, len(results))
	for _, r := range results {
		sf, ok := r.(*spatialFeature)
		if !ok {
			continue
		}
		idxs = append(idxs, sf.idx)
	}
	sort.Ints(idxs)
	return idxs
}

// Options configures a Store.
type Options struct {
	// Path is the local dataset file location.
	Path string
	// URL is the remote location fetched when Path does not exist.
	URL string
	// Format selects the parser: "gpkg" or "shapefile". Empty means infer
	// from the file extension.
	Format string
	// LabelField is the attribute column holding the hazard label.
	LabelField string
	// DownloadTimeout bounds the dataset download.
	DownloadTimeout time.Duration
}

// Store lazily loads the dataset and caches the parsed Collection for the
// lifetime of the process. Concurrent first loads collapse into a single
// download and parse.
type Store struct {
	opts  Options
	group singleflight.Group

	mu   sync.RWMutex
	coll *Collection
}

// NewStore creates a Store with defaults applied.
func NewStore(opts Options) *Store {
	if opts.LabelField == "" {
		opts.LabelField = DefaultLabelField
	}
	if opts.DownloadTimeout == 0 {
		opts.DownloadTimeout = 5 * time.Minute
	}
	return &Store{opts: opts}
}

// Load returns the cached Collection, downloading and parsing the dataset
// file on first use. Safe to call on every request.
func (s *Store) Load(ctx context.Context) (*Collection, error) {
	s.mu.RLock()
	coll := s.coll
	s.mu.RUnlock()
	if coll != nil {
		return coll, nil
	}

	v, err, _ := s.group.Do("load", func() (any, error) {
		// Another caller may have finished while we queued.
		s.mu.RLock()
		cached := s.coll
		s.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		path, err := s.ensureFile(ctx)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		loaded, err := s.parse(path)
		if err != nil {
			return nil, err
		}

		zap.L().Info("dataset loaded",
			zap.String("path", path),
			zap.Int("features", len(loaded.Features)),
			zap.Int("srid", loaded.SRID),
			zap.Duration("elapsed", time.Since(start)),
		)

		s.mu.Lock()
		s.coll = loaded
		s.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Collection), nil
}

// Loaded reports whether the collection is already cached, without
// triggering a load.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coll != nil
}

// parse dispatches to the format-specific reader.
func (s *Store) parse(path string) (*Collection, error) {
	format := s.opts.Format
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".gpkg":
			format = "gpkg"
		case ".shp":
			format = "shapefile"
		default:
			return nil, eris.Errorf("dataset: cannot infer format from %q", path)
		}
	}

	switch format {
	case "gpkg":
		return readGeoPackage(path, s.opts.LabelField)
	case "shapefile":
		return readShapefile(path, s.opts.LabelField)
	default:
		return nil, eris.Errorf("dataset: unknown format %q", format)
	}
}
