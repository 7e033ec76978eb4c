package dataset

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// readGeoPackage loads the feature table of a GeoPackage file. A GeoPackage
// is a SQLite database; the feature table name, geometry column, and SRID are
// discovered from gpkg_geometry_columns. The hazard label is read from
// labelField.
func readGeoPackage(path, labelField string) (*Collection, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: open")
	}
	defer db.Close() //nolint:errcheck

	var table, geomCol string
	var srid int
	row := db.QueryRow(`SELECT table_name, column_name, srs_id FROM gpkg_geometry_columns LIMIT 1`)
	if err := row.Scan(&table, &geomCol, &srid); err != nil {
		return nil, eris.Wrap(err, "gpkg: read gpkg_geometry_columns")
	}

	query := fmt.Sprintf(`SELECT %s, %s FROM %s`,
		quoteIdent(geomCol), quoteIdent(labelField), quoteIdent(table))
	rows, err := db.Query(query)
	if err != nil {
		return nil, eris.Wrapf(err, "gpkg: query feature table %s", table)
	}
	defer rows.Close() //nolint:errcheck

	var features []Feature
	var skipped int
	for rows.Next() {
		var blob []byte
		var label sql.NullString
		if err := rows.Scan(&blob, &label); err != nil {
			return nil, eris.Wrap(err, "gpkg: scan feature row")
		}

		g, err := decodeGPB(blob)
		if err != nil {
			skipped++
			continue
		}
		if g == nil {
			skipped++
			continue
		}

		features = append(features, Feature{Geom: g, Label: label.String})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "gpkg: iterate feature rows")
	}

	if skipped > 0 {
		zap.L().Debug("gpkg: skipped undecodable features",
			zap.String("table", table),
			zap.Int("skipped", skipped),
		)
	}

	return NewCollection(srid, features)
}

// GeoPackage binary header flag bits.
const (
	gpbFlagEmpty = 0x10
)

// decodeGPB strips the GeoPackage binary header from a geometry blob and
// decodes the WKB payload. Header layout: magic "GP", version, flags,
// int32 srs_id, then an optional envelope whose size the flags encode.
// Returns nil, nil for empty geometries.
func decodeGPB(blob []byte) (geom.T, error) {
	if len(blob) < 8 {
		return nil, eris.New("gpkg: geometry blob too short")
	}
	if blob[0] != 'G' || blob[1] != 'P' {
		return nil, eris.New("gpkg: bad magic")
	}

	flags := blob[3]
	if flags&gpbFlagEmpty != 0 {
		return nil, nil
	}

	var envLen int
	switch (flags >> 1) & 0x07 {
	case 0:
		envLen = 0
	case 1:
		envLen = 32
	case 2, 3:
		envLen = 48
	case 4:
		envLen = 64
	default:
		return nil, eris.Errorf("gpkg: invalid envelope indicator %d", (flags>>1)&0x07)
	}

	offset := 8 + envLen
	if len(blob) < offset {
		return nil, eris.New("gpkg: truncated envelope")
	}

	g, err := wkb.Unmarshal(blob[offset:])
	if err != nil {
		return nil, eris.Wrap(err, "gpkg: decode wkb")
	}
	return g, nil
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes. Table
// and column names come from the GeoPackage metadata and config, not request
// input, but they may contain spaces.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
