package gdalframe

import (
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/tingold/gdalframe/frame"
)

// SQL dialects understood by GDAL.
const (
	DialectOGRSQL         = "OGRSQL"
	DialectSQLite         = "SQLITE"
	DialectIndirectSQLite = "INDIRECT_SQLITE"
)

// Query filters a layer before it is mapped. GDAL evaluates every part of it.
type Query struct {
	SQL     string     // Full statement; replaces the layer selection
	Dialect string     // SQL dialect (default: OGRSQL)
	Where   string     // Attribute filter
	Bounds  *orb.Bound // Spatial filter
}

func (q Query) empty() bool {
	return q.SQL == "" && q.Where == "" && q.Bounds == nil
}

// ReadParams configures how a resource is opened and mapped to a record.
type ReadParams struct {
	Drivers       []string // Allowed GDAL drivers (default: all)
	OpenOptions   []string // Driver open options, KEY=value
	SiblingFiles  []string // Auxiliary files (default: let GDAL look for them)
	ConfigOptions []string // GDAL config options for the open call, KEY=value
	Update        bool     // Open in update mode

	// CountFeatures makes ListLayers report feature counts. GDAL scans the
	// whole layer when the driver has no stored count, which is slow on
	// remote and database sources.
	CountFeatures bool

	LayerName  string // Layer to read; wins over LayerIndex
	LayerIndex int    // Layer position (default: first layer)

	FIDColumn      string         // Leading int64 column with feature ids (optional)
	GeometryColumn string         // Geometry column name (default: "geometry")
	GeometryFormat GeometryFormat // Geometry encoding (default: WKB)

	Limit       int // Stop after this many rows (0: unbounded)
	MaxFeatures int // Fail if more rows than this would be read (0: unbounded)
	Offset      int // Features to skip first

	Query Query

	Allocator memory.Allocator
	Logger    *zap.Logger
}

// DefaultReadParams returns the parameters used when none are given.
func DefaultReadParams() *ReadParams {
	return &ReadParams{
		GeometryColumn: frame.DefaultGeometryColumn,
		GeometryFormat: WKB,
	}
}

func (p *ReadParams) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *ReadParams) frameOptions() frame.Options {
	return frame.Options{
		FIDColumn:      p.FIDColumn,
		GeometryColumn: p.GeometryColumn,
		GeometryFormat: p.GeometryFormat,
		Offset:         p.Offset,
		Limit:          p.Limit,
		MaxFeatures:    p.MaxFeatures,
		Allocator:      p.Allocator,
	}
}

// CRS is the coordinate reference system assigned to a written layer.
// Code wins over WKT when both are set.
type CRS struct {
	Code int    // EPSG code
	WKT  string // Well-Known Text definition
}

// WriteParams configures how a record is written to a layer.
type WriteParams struct {
	LayerName      string         // Created layer name (default: "layer")
	GeometryColumn string         // Geometry column name (default: "geometry")
	GeometryFormat GeometryFormat // Geometry encoding (default: WKB)
	FIDColumn      string         // Column left out of the layer fields

	CRS          *CRS          // Layer CRS (default: from record metadata)
	GeometryType *GeometryType // Layer geometry type (default: detected from the first row)

	CreationOptions []string // Dataset creation options, KEY=value
	LayerOptions    []string // Layer creation options, KEY=value

	FileName string // In-memory file name used by BytesFromFrame (default: "layer")

	Logger *zap.Logger
}

// DefaultWriteParams returns the parameters used when none are given.
func DefaultWriteParams() *WriteParams {
	return &WriteParams{
		LayerName:      defaultLayerName,
		GeometryColumn: frame.DefaultGeometryColumn,
		GeometryFormat: WKB,
	}
}

const defaultLayerName = "layer"

func (p *WriteParams) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}

func (p *WriteParams) layerName() string {
	if p.LayerName == "" {
		return defaultLayerName
	}
	return p.LayerName
}

func (p *WriteParams) fileName() string {
	if p.FileName == "" {
		return defaultLayerName
	}
	return p.FileName
}

func (p *WriteParams) geometryColumn() string {
	if p.GeometryColumn == "" {
		return frame.DefaultGeometryColumn
	}
	return p.GeometryColumn
}

// LayerInfo describes one layer of a dataset.
type LayerInfo struct {
	Name         string
	FeatureCount int // -1 unless ReadParams.CountFeatures is set
	EPSG         int // 0 when unknown
	WKT          string
}
