package gdalframe

import (
	"errors"
	"fmt"
	"io"

	"github.com/airbusgeo/godal"
	"github.com/apache/arrow/go/v14/arrow"
	"go.uber.org/zap"

	"github.com/tingold/gdalframe/frame"
)

var geometryTypes = map[frame.GeometryType]godal.GeometryType{
	frame.GeometryUnknown:         godal.GTUnknown,
	frame.GeometryPoint:           godal.GTPoint,
	frame.GeometryLineString:      godal.GTLineString,
	frame.GeometryPolygon:         godal.GTPolygon,
	frame.GeometryMultiPoint:      godal.GTMultiPoint,
	frame.GeometryMultiLineString: godal.GTMultiLineString,
	frame.GeometryMultiPolygon:    godal.GTMultiPolygon,
	frame.GeometryCollection:      godal.GTGeometryCollection,
	frame.GeometryNone:            godal.GTNone,
}

// ogrFieldType returns the OGR field type an attribute is written as. OGR
// has no boolean field type in godal, so booleans are written as integers.
func ogrFieldType(t frame.FieldType) godal.FieldType {
	switch t {
	case frame.FieldInteger, frame.FieldBoolean:
		return godal.FTInt
	case frame.FieldInteger64:
		return godal.FTInt64
	case frame.FieldReal:
		return godal.FTReal
	case frame.FieldDate:
		return godal.FTDate
	case frame.FieldTime:
		return godal.FTTime
	case frame.FieldDateTime:
		return godal.FTDateTime
	case frame.FieldBinary:
		return godal.FTBinary
	case frame.FieldIntegerList:
		return godal.FTIntList
	case frame.FieldInteger64List:
		return godal.FTInt64List
	case frame.FieldRealList:
		return godal.FTRealList
	case frame.FieldStringList:
		return godal.FTStringList
	default:
		return godal.FTString
	}
}

// fieldGoValue converts a value to the Go type godal's SetFieldValue expects
// for the field's OGR type.
func fieldGoValue(v frame.Value) interface{} {
	switch v.Type {
	case frame.FieldInteger:
		return int(v.Int)
	case frame.FieldBoolean:
		if v.Bool {
			return 1
		}
		return 0
	case frame.FieldInteger64:
		return v.Int
	case frame.FieldReal:
		return v.Float
	case frame.FieldDate, frame.FieldTime, frame.FieldDateTime:
		return v.Time
	case frame.FieldBinary:
		return v.Bytes
	case frame.FieldIntegerList:
		ints := make([]int, len(v.Ints))
		for i, n := range v.Ints {
			ints[i] = int(n)
		}
		return ints
	case frame.FieldInteger64List:
		return v.Ints
	case frame.FieldRealList:
		return v.Floats
	case frame.FieldStringList:
		return v.Strs
	default:
		return v.String()
	}
}

// LayerFromFrame creates a layer in ds holding the rows of rec. Attribute
// columns without an OGR field type are skipped and logged.
func LayerFromFrame(rec arrow.Record, ds *godal.Dataset, p *WriteParams) (godal.Layer, error) {
	if p == nil {
		p = DefaultWriteParams()
	}
	register()
	logger := p.logger()
	geomCol := p.geometryColumn()

	geomIdx, err := frame.GeometryColumnIndex(rec, geomCol, p.GeometryFormat)
	if err != nil {
		return godal.Layer{}, err
	}

	geoms := rec.Column(geomIdx)
	var gtype godal.GeometryType
	if p.GeometryType != nil {
		gtype = geometryTypes[*p.GeometryType]
	} else if gtype, err = detectGeometryType(geoms, geomCol, p.GeometryFormat); err != nil {
		return godal.Layer{}, err
	}

	sr, err := spatialRef(p.CRS, rec.Schema())
	if err != nil {
		return godal.Layer{}, err
	}
	if sr != nil {
		defer sr.Close()
	}

	fields, skipped := frame.FieldColumns(rec.Schema(), geomCol, p.FIDColumn)
	for _, f := range skipped {
		logger.Warn("skipping column without an OGR field type",
			zap.String("column", f.Name),
			zap.Stringer("type", f.Type))
	}

	defs := make([]godal.CreateLayerOption, len(fields))
	for i, f := range fields {
		defs[i] = godal.NewFieldDefinition(f.Name, ogrFieldType(f.Type))
	}

	name := p.layerName()
	layer, err := ds.CreateLayer(name, sr, gtype, defs...)
	if err != nil {
		return godal.Layer{}, fmt.Errorf("gdalframe: create layer %q: %w", name, err)
	}

	for row := 0; row < int(rec.NumRows()); row++ {
		if err := writeRow(layer, rec, row, geoms, fields, sr, p.GeometryFormat); err != nil {
			return godal.Layer{}, fmt.Errorf("gdalframe: layer %q row %d: %w", name, row, err)
		}
	}

	logger.Debug("wrote layer",
		zap.String("layer", name),
		zap.Uint32("geometry_type", uint32(gtype)),
		zap.Int("fields", len(fields)),
		zap.Int64("rows", rec.NumRows()))
	return layer, nil
}

func writeRow(layer godal.Layer, rec arrow.Record, row int, geoms arrow.Array, fields []frame.ColumnField, sr *godal.SpatialRef, format GeometryFormat) error {
	geom, err := newGeometry(frame.GeometryAt(geoms, row), format, sr)
	if err != nil {
		return err
	}
	if geom != nil {
		defer geom.Close()
	}

	feat, err := layer.NewFeature(geom)
	if err != nil {
		return err
	}
	defer feat.Close()

	var (
		targets = feat.Fields()
		changed bool
	)
	for _, f := range fields {
		v, err := frame.ValueAt(rec.Column(f.Index), row, f.Type)
		if err != nil {
			return fmt.Errorf("column %q: %w", f.Name, err)
		}
		if !v.Valid || (v.Type == frame.FieldBinary && len(v.Bytes) == 0) {
			// godal cannot set a zero-length binary; the field stays unset
			continue
		}
		target, ok := targets[f.Name]
		if !ok {
			// the driver renamed or dropped the field
			continue
		}
		if err := feat.SetFieldValue(target, fieldGoValue(v)); err != nil {
			return fmt.Errorf("column %q: %w", f.Name, err)
		}
		changed = true
	}
	if !changed {
		return nil
	}
	return layer.UpdateFeature(feat)
}

// detectGeometryType returns the GDAL type of the first row's geometry.
// GDAL parses the cell, so Z and M flavours and curve types are kept.
func detectGeometryType(geoms arrow.Array, column string, format GeometryFormat) (godal.GeometryType, error) {
	g, err := newGeometry(frame.GeometryAt(geoms, 0), format, nil)
	if err != nil {
		return godal.GTUnknown, &GeometryTypeError{Column: column, Err: err}
	}
	if g == nil {
		return godal.GTUnknown, &GeometryTypeError{Column: column}
	}
	defer g.Close()
	return g.Type(), nil
}

// newGeometry builds a GDAL geometry from an encoded cell. Null and empty
// cells yield a nil geometry.
func newGeometry(data []byte, format GeometryFormat, sr *godal.SpatialRef) (*godal.Geometry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	switch format {
	case WKB:
		return godal.NewGeometryFromWKB(data, sr)
	case WKT:
		return godal.NewGeometryFromWKT(string(data), sr)
	case GeoJSON:
		g, err := godal.NewGeometryFromGeoJSON(string(data))
		if err != nil {
			return nil, err
		}
		if sr != nil {
			g.SetSpatialRef(sr)
		}
		return g, nil
	}
	return nil, fmt.Errorf("%w: %v", frame.ErrUnknownFormat, format)
}

// DatasetFromFrame writes rec as a new dataset at name using driver. The
// layer is staged in a GDAL Memory dataset and copied with ogr2ogr, so
// drivers that only support sequential writes work too. The caller closes
// the returned dataset; for file based drivers the data is complete only
// after Close.
func DatasetFromFrame(rec arrow.Record, driver godal.DriverName, name string, p *WriteParams) (*godal.Dataset, error) {
	if p == nil {
		p = DefaultWriteParams()
	}
	register()
	logger := p.logger()

	stage, err := godal.CreateVector(godal.Memory, memPath("stage"), godal.ErrLogger(errorHandler(logger)))
	if err != nil {
		return nil, fmt.Errorf("gdalframe: create staging dataset: %w", err)
	}
	defer closeDataset(stage, logger)

	if _, err := LayerFromFrame(rec, stage, p); err != nil {
		return nil, err
	}

	var switches []string
	for _, lco := range p.LayerOptions {
		switches = append(switches, "-lco", lco)
	}
	opts := []godal.DatasetVectorTranslateOption{
		driver,
		godal.ErrLogger(errorHandler(logger)),
	}
	if len(p.CreationOptions) > 0 {
		opts = append(opts, godal.CreationOption(p.CreationOptions...))
	}

	out, err := stage.VectorTranslate(name, switches, opts...)
	if err != nil {
		return nil, fmt.Errorf("gdalframe: write %s dataset %s: %w", driver, name, err)
	}
	return out, nil
}

// BytesFromFrame writes rec with driver and returns the encoded file.
// Drivers producing several files (such as shapefiles) need a single-file
// container name in p.FileName, for example "roads.shp.zip".
func BytesFromFrame(rec arrow.Record, driver godal.DriverName, p *WriteParams) (data []byte, err error) {
	if p == nil {
		p = DefaultWriteParams()
	}
	name := memPath(p.fileName())

	ds, err := DatasetFromFrame(rec, driver, name, p)
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := godal.VSIUnlink(name); uerr != nil {
			p.logger().Debug("unlink in-memory file", zap.String("name", name), zap.Error(uerr))
		}
	}()
	if err := ds.Close(); err != nil {
		return nil, fmt.Errorf("gdalframe: flush %s: %w", name, err)
	}

	f, err := godal.VSIOpen(name)
	if err != nil {
		return nil, fmt.Errorf("gdalframe: open %s: %w", name, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err = io.ReadAll(f)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("gdalframe: read %s: %w", name, err)
	}
	return data, nil
}
