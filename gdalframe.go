// Package gdalframe reads GDAL vector layers into Arrow records and writes
// Arrow records back out through any GDAL vector driver.
//
// Every format concern (sniffing, parsing, spatial references, SQL) is left to
// GDAL. This package opens datasets with the requested options, walks layer
// features through the frame mapper, and reverses the mapping on write.
//
// Reading a GeoJSON file:
//
//	rec, err := gdalframe.FromResource("roads.geojson", nil)
//	if err != nil {
//		return err
//	}
//	defer rec.Release()
//
// Writing a record as a zipped shapefile:
//
//	p := gdalframe.DefaultWriteParams()
//	p.FileName = "roads.shp.zip"
//	data, err := gdalframe.BytesFromFrame(rec, godal.Shapefile, p)
package gdalframe

import (
	"errors"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/tingold/gdalframe/frame"
)

// Common errors returned by this package.
var (
	ErrEmptyData          = errors.New("gdalframe: empty data")
	ErrUpdateNotSupported = errors.New("gdalframe: update mode is not supported for in-memory data")
	ErrLayerNotFound      = errors.New("gdalframe: layer not found")
	ErrFIDUnavailable     = errors.New("gdalframe: feature ids need the source dataset; use FromResource or FromDataset")
	ErrFIDWithSQL         = errors.New("gdalframe: a FID column cannot be combined with a SQL query; select FID in the query instead")
	ErrQueryUnavailable   = errors.New("gdalframe: queries need the source dataset; use FromResource or FromDataset")
	ErrWhereWithSQL       = errors.New("gdalframe: a where clause cannot be combined with a SQL query; filter in the query instead")
)

// Errors shared with the mapper, re-exported so callers need a single import.
var (
	ErrEmptyFrame = frame.ErrEmptyFrame
)

type (
	FeatureLimitError       = frame.FeatureLimitError
	MissingColumnError      = frame.MissingColumnError
	GeometryColumnTypeError = frame.GeometryColumnTypeError
	GeometryTypeError       = frame.GeometryTypeError
)

// GeometryFormat selects how geometries are stored in a record.
type GeometryFormat = frame.GeometryFormat

const (
	WKB     = frame.WKB
	WKT     = frame.WKT
	GeoJSON = frame.GeoJSON
)

// GeometryType is the geometry type of a written layer.
type GeometryType = frame.GeometryType

var registerOnce sync.Once

// register loads every GDAL driver the first time a dataset is touched.
func register() {
	registerOnce.Do(godal.RegisterAll)
}
