package gdalframe

import (
	"io"
	"sort"

	"github.com/airbusgeo/godal"

	"github.com/tingold/gdalframe/frame"
)

// fidAlias is the column name feature ids are selected under when a read
// needs them.
const fidAlias = "__gdalframe_fid"

// layerSource walks the features of a godal layer as a frame.Source.
//
// godal reports fields as a map, so the source field order is lost; fields
// are yielded sorted by name.
type layerSource struct {
	layer   godal.Layer
	current *godal.Feature
	withFID bool
}

func newLayerSource(layer godal.Layer, withFID bool) *layerSource {
	layer.ResetReading()
	return &layerSource{layer: layer, withFID: withFID}
}

// Next returns the next feature. The previous feature stays open until this
// call, since frame.Read encodes its geometry after Next returns.
func (s *layerSource) Next() (*frame.Feature, error) {
	s.close()
	f := s.layer.NextFeature()
	if f == nil {
		return nil, io.EOF
	}
	s.current = f

	out := &frame.Feature{}
	fields := f.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out.Fields = make([]frame.Field, 0, len(names))
	for _, name := range names {
		fld := fields[name]
		if s.withFID && name == fidAlias {
			out.FID, out.HasFID = fld.Int(), fld.IsSet()
			continue
		}
		out.Fields = append(out.Fields, frame.Field{Name: name, Value: fieldValue(fld)})
	}

	if g := f.Geometry(); g != nil && !g.Empty() {
		out.Geometry = gdalGeometry{g}
	}
	return out, nil
}

// Count reports the layer feature count when the driver knows it.
func (s *layerSource) Count() (int, bool) {
	n, err := s.layer.FeatureCount()
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func (s *layerSource) close() {
	if s.current != nil {
		s.current.Close()
		s.current = nil
	}
}

// gdalGeometry lets GDAL encode feature geometries for the mapper.
type gdalGeometry struct {
	g *godal.Geometry
}

func (g gdalGeometry) Empty() bool              { return g.g.Empty() }
func (g gdalGeometry) WKB() ([]byte, error)     { return g.g.WKB() }
func (g gdalGeometry) WKT() (string, error)     { return g.g.WKT() }
func (g gdalGeometry) GeoJSON() (string, error) { return g.g.GeoJSON() }

var fieldTypes = map[godal.FieldType]frame.FieldType{
	godal.FTInt:        frame.FieldInteger,
	godal.FTInt64:      frame.FieldInteger64,
	godal.FTReal:       frame.FieldReal,
	godal.FTString:     frame.FieldString,
	godal.FTDate:       frame.FieldDate,
	godal.FTTime:       frame.FieldTime,
	godal.FTDateTime:   frame.FieldDateTime,
	godal.FTBinary:     frame.FieldBinary,
	godal.FTIntList:    frame.FieldIntegerList,
	godal.FTInt64List:  frame.FieldInteger64List,
	godal.FTRealList:   frame.FieldRealList,
	godal.FTStringList: frame.FieldStringList,
}

// fieldValue converts a godal field. Unset fields are nulls of the field's
// type; unknown OGR types read as their string form.
func fieldValue(fld godal.Field) frame.Value {
	t, ok := fieldTypes[fld.Type()]
	if !ok {
		t = frame.FieldString
	}
	if !fld.IsSet() {
		return frame.Null(t)
	}

	switch t {
	case frame.FieldInteger:
		return frame.IntegerValue(int32(fld.Int()))
	case frame.FieldInteger64:
		return frame.Integer64Value(fld.Int())
	case frame.FieldReal:
		return frame.RealValue(fld.Float())
	case frame.FieldDate, frame.FieldTime, frame.FieldDateTime:
		ts := fld.DateTime()
		if ts == nil {
			return frame.Null(t)
		}
		switch t {
		case frame.FieldDate:
			return frame.DateValue(*ts)
		case frame.FieldTime:
			return frame.TimeValue(*ts)
		}
		return frame.DateTimeValue(*ts)
	case frame.FieldBinary:
		return frame.BinaryValue(fld.Bytes())
	case frame.FieldIntegerList:
		return frame.IntegerListValue(fld.IntList())
	case frame.FieldInteger64List:
		return frame.Integer64ListValue(fld.IntList())
	case frame.FieldRealList:
		return frame.RealListValue(fld.FloatList())
	case frame.FieldStringList:
		return frame.StringListValue(fld.StringList())
	}
	return frame.StringValue(fld.String())
}
