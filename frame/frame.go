// Package frame maps vector features to Apache Arrow records and back.
//
// It holds the pure-Go half of gdalframe: a Source of features (from GDAL,
// FlatGeobuf or anything else) is materialized into an arrow.Record with one
// column per attribute and a trailing geometry column, and a record can be
// walked row by row to produce field values and encoded geometries for a
// writer. Nothing in this package needs cgo.
package frame

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow/go/v14/arrow/memory"
)

// Common errors returned by this package.
var (
	ErrEmptyFrame       = errors.New("frame: record has no rows")
	ErrUnknownFormat    = errors.New("frame: unknown geometry format")
	ErrUnsupportedArray = errors.New("frame: unsupported array type")
	ErrIntegerOverflow  = errors.New("frame: unsigned value overflows a 64-bit attribute")
)

// Schema metadata keys written by Read.
const (
	MetaLayer          = "gdalframe:layer"
	MetaCRSWKT         = "gdalframe:crs_wkt"
	MetaCRSEPSG        = "gdalframe:crs_epsg"
	MetaGeometryColumn = "gdalframe:geometry_column"
)

// Field metadata keys set on the geometry column.
const (
	MetaEncoding      = "gdalframe:encoding"
	extensionName     = "ARROW:extension:name"
	extensionMetadata = "ARROW:extension:metadata"
)

// DefaultGeometryColumn is the geometry column name used when none is given.
const DefaultGeometryColumn = "geometry"

// GeometryFormat is the encoding of the geometry column.
type GeometryFormat int

const (
	WKB GeometryFormat = iota
	WKT
	GeoJSON
)

func (f GeometryFormat) String() string {
	switch f {
	case WKB:
		return "WKB"
	case WKT:
		return "WKT"
	case GeoJSON:
		return "GeoJSON"
	}
	return fmt.Sprintf("GeometryFormat(%d)", int(f))
}

// ParseGeometryFormat parses a format name, case-insensitively.
func ParseGeometryFormat(s string) (GeometryFormat, error) {
	switch strings.ToLower(s) {
	case "", "wkb":
		return WKB, nil
	case "wkt":
		return WKT, nil
	case "geojson", "json":
		return GeoJSON, nil
	}
	return WKB, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// MarshalText implements encoding.TextMarshaler.
func (f GeometryFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *GeometryFormat) UnmarshalText(b []byte) error {
	v, err := ParseGeometryFormat(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Options configures Read.
type Options struct {
	FIDColumn      string         // Leading int64 column with feature ids (optional)
	GeometryColumn string         // Geometry column name (default: "geometry")
	GeometryFormat GeometryFormat // Geometry encoding (default: WKB)
	Offset         int            // Features to skip first
	Limit          int            // Stop after this many rows (0: unbounded)
	MaxFeatures    int            // Fail if more rows than this would be read (0: unbounded)
	Allocator      memory.Allocator
	Metadata       map[string]string // Extra schema metadata
}

// DefaultOptions returns default options for Read.
func DefaultOptions() Options {
	return Options{
		GeometryColumn: DefaultGeometryColumn,
		GeometryFormat: WKB,
	}
}

func (o Options) geometryColumn() string {
	if o.GeometryColumn == "" {
		return DefaultGeometryColumn
	}
	return o.GeometryColumn
}

func (o Options) allocator() memory.Allocator {
	if o.Allocator == nil {
		return memory.DefaultAllocator
	}
	return o.Allocator
}
