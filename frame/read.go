package frame

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

// Feature is one row of a layer.
type Feature struct {
	FID      int64
	HasFID   bool
	Fields   []Field
	Geometry Geometry // nil for features without geometry
}

// Source yields features in layer order. Next returns io.EOF after the last
// feature.
type Source interface {
	Next() (*Feature, error)
}

// Counter is implemented by sources that know their feature count up front.
// ok is false when counting would be expensive or is unsupported.
type Counter interface {
	Count() (n int, ok bool)
}

// SliceSource is a Source over an in-memory feature slice.
type SliceSource struct {
	features []*Feature
	index    int
}

// NewSliceSource returns a Source yielding features in order.
func NewSliceSource(features []*Feature) *SliceSource {
	return &SliceSource{features: features}
}

func (s *SliceSource) Next() (*Feature, error) {
	if s.index >= len(s.features) {
		return nil, io.EOF
	}
	f := s.features[s.index]
	s.index++
	return f, nil
}

func (s *SliceSource) Count() (int, bool) { return len(s.features), true }

type column struct {
	name    string
	typ     FieldType
	values  []Value
	lastRow int
}

// Read drains src into a single record.
//
// Attribute columns appear in the order their field is first seen, after the
// optional FID column and before the geometry column. A field missing from
// some features is null there. When a field's values disagree on type the
// column is promoted to a type holding all of them.
func Read(src Source, opts Options) (arrow.Record, error) {
	geomCol := opts.geometryColumn()

	if err := checkCount(src, opts); err != nil {
		return nil, err
	}

	var (
		columns  []*column
		byName   = map[string]*column{}
		fids     []int64
		fidValid []bool
		geoms    [][]byte
		geomOK   []bool
		rows     int
		skipped  int
	)

	for {
		if opts.Limit > 0 && rows >= opts.Limit {
			break
		}
		f, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		if opts.MaxFeatures > 0 && rows >= opts.MaxFeatures {
			return nil, &FeatureLimitError{Max: opts.MaxFeatures, Count: -1}
		}

		for _, fld := range f.Fields {
			name := fld.Name
			if name == geomCol || (opts.FIDColumn != "" && name == opts.FIDColumn) {
				name += "_original"
			}
			col, ok := byName[name]
			if !ok {
				col = &column{name: name, values: make([]Value, rows, rows+1), lastRow: -1}
				for i := range col.values {
					col.values[i] = Null(FieldNull)
				}
				byName[name] = col
				columns = append(columns, col)
			}
			col.typ = promoteFieldType(col.typ, fld.Value.typeIfValid())
			if col.lastRow == rows {
				col.values[rows] = fld.Value
				continue
			}
			col.values = append(col.values, fld.Value)
			col.lastRow = rows
		}
		for _, col := range columns {
			if col.lastRow != rows {
				col.values = append(col.values, Null(FieldNull))
				col.lastRow = rows
			}
		}

		if opts.FIDColumn != "" {
			fids = append(fids, f.FID)
			fidValid = append(fidValid, f.HasFID)
		}

		var wire []byte
		if f.Geometry != nil && !f.Geometry.Empty() {
			wire, err = Encode(f.Geometry, opts.GeometryFormat)
			if err != nil {
				return nil, fmt.Errorf("frame: encode geometry of row %d: %w", rows, err)
			}
		}
		geoms = append(geoms, wire)
		geomOK = append(geomOK, wire != nil)

		rows++
	}

	return buildRecord(opts, columns, fids, fidValid, geoms, geomOK, rows)
}

func (v Value) typeIfValid() FieldType {
	if !v.Valid {
		return FieldNull
	}
	return v.Type
}

func checkCount(src Source, opts Options) error {
	if opts.MaxFeatures <= 0 {
		return nil
	}
	c, ok := src.(Counter)
	if !ok {
		return nil
	}
	n, ok := c.Count()
	if !ok {
		return nil
	}
	n -= opts.Offset
	if opts.Limit > 0 && n > opts.Limit {
		n = opts.Limit
	}
	if n > opts.MaxFeatures {
		return &FeatureLimitError{Max: opts.MaxFeatures, Count: n}
	}
	return nil
}

func buildRecord(opts Options, columns []*column, fids []int64, fidValid []bool, geoms [][]byte, geomOK []bool, rows int) (arrow.Record, error) {
	mem := opts.allocator()
	fields := make([]arrow.Field, 0, len(columns)+2)
	arrays := make([]arrow.Array, 0, len(columns)+2)
	defer func() {
		for _, a := range arrays {
			a.Release()
		}
	}()

	if opts.FIDColumn != "" {
		b := array.NewInt64Builder(mem)
		b.AppendValues(fids, fidValid)
		arrays = append(arrays, b.NewArray())
		b.Release()
		fields = append(fields, arrow.Field{Name: opts.FIDColumn, Type: arrow.PrimitiveTypes.Int64, Nullable: hasFalse(fidValid)})
	}

	for _, col := range columns {
		arr, err := buildColumn(mem, col, rows)
		if err != nil {
			return nil, err
		}
		arrays = append(arrays, arr)
		fields = append(fields, arrow.Field{Name: col.name, Type: arr.DataType(), Nullable: arr.NullN() > 0 || col.typ == FieldNull})
	}

	geomField, geomArr := buildGeometry(mem, opts, geoms, geomOK)
	fields = append(fields, geomField)
	arrays = append(arrays, geomArr)

	schema := arrow.NewSchema(fields, schemaMetadata(opts))
	return array.NewRecord(schema, arrays, int64(rows)), nil
}

func schemaMetadata(opts Options) *arrow.Metadata {
	keys := make([]string, 0, len(opts.Metadata)+1)
	values := make([]string, 0, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		if k == MetaGeometryColumn {
			continue
		}
		keys = append(keys, k)
		values = append(values, v)
	}
	keys = append(keys, MetaGeometryColumn)
	values = append(values, opts.geometryColumn())
	md := arrow.NewMetadata(keys, values)
	return &md
}

func buildGeometry(mem memory.Allocator, opts Options, geoms [][]byte, valid []bool) (arrow.Field, arrow.Array) {
	var (
		arr  arrow.Array
		meta arrow.Metadata
	)
	switch opts.GeometryFormat {
	case WKB:
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		b.AppendValues(geoms, valid)
		arr = b.NewArray()
		b.Release()
		meta = arrow.NewMetadata(
			[]string{extensionName, extensionMetadata, MetaEncoding},
			[]string{"geoarrow.wkb", "{}", WKB.String()})
	default:
		b := array.NewStringBuilder(mem)
		for i, g := range geoms {
			if valid[i] {
				b.Append(string(g))
			} else {
				b.AppendNull()
			}
		}
		arr = b.NewArray()
		b.Release()
		if opts.GeometryFormat == WKT {
			meta = arrow.NewMetadata(
				[]string{extensionName, extensionMetadata, MetaEncoding},
				[]string{"geoarrow.wkt", "{}", WKT.String()})
		} else {
			meta = arrow.NewMetadata([]string{MetaEncoding}, []string{opts.GeometryFormat.String()})
		}
	}
	return arrow.Field{Name: opts.geometryColumn(), Type: arr.DataType(), Nullable: true, Metadata: meta}, arr
}

func buildColumn(mem memory.Allocator, col *column, rows int) (arrow.Array, error) {
	if col.typ == FieldNull {
		return array.NewNull(rows), nil
	}

	b := array.NewBuilder(mem, ArrowType(col.typ))
	defer b.Release()
	b.Reserve(rows)
	for _, v := range col.values {
		if !v.Valid {
			b.AppendNull()
			continue
		}
		if err := appendValue(b, coerce(v, col.typ)); err != nil {
			return nil, fmt.Errorf("frame: column %q: %w", col.name, err)
		}
	}
	return b.NewArray(), nil
}

// ArrowType returns the Arrow type a field of type t is read into.
func ArrowType(t FieldType) arrow.DataType {
	switch t {
	case FieldInteger:
		return arrow.PrimitiveTypes.Int32
	case FieldInteger64:
		return arrow.PrimitiveTypes.Int64
	case FieldReal:
		return arrow.PrimitiveTypes.Float64
	case FieldString:
		return arrow.BinaryTypes.String
	case FieldDate:
		return arrow.FixedWidthTypes.Date32
	case FieldTime:
		return arrow.FixedWidthTypes.Time32ms
	case FieldDateTime:
		return &arrow.TimestampType{Unit: arrow.Nanosecond, TimeZone: "UTC"}
	case FieldBinary:
		return arrow.BinaryTypes.Binary
	case FieldBoolean:
		return arrow.FixedWidthTypes.Boolean
	case FieldIntegerList:
		return arrow.ListOf(arrow.PrimitiveTypes.Int32)
	case FieldInteger64List:
		return arrow.ListOf(arrow.PrimitiveTypes.Int64)
	case FieldRealList:
		return arrow.ListOf(arrow.PrimitiveTypes.Float64)
	case FieldStringList:
		return arrow.ListOf(arrow.BinaryTypes.String)
	}
	return arrow.Null
}

func appendValue(b array.Builder, v Value) error {
	switch b := b.(type) {
	case *array.Int32Builder:
		b.Append(int32(v.Int))
	case *array.Int64Builder:
		b.Append(v.Int)
	case *array.Float64Builder:
		b.Append(v.Float)
	case *array.StringBuilder:
		b.Append(v.Str)
	case *array.BinaryBuilder:
		b.Append(v.Bytes)
	case *array.BooleanBuilder:
		b.Append(v.Bool)
	case *array.Date32Builder:
		b.Append(arrow.Date32FromTime(v.Time))
	case *array.Time32Builder:
		b.Append(arrow.Time32(millisOfDay(v.Time)))
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(v.Time.UTC().UnixNano()))
	case *array.ListBuilder:
		b.Append(true)
		switch vb := b.ValueBuilder().(type) {
		case *array.Int32Builder:
			for _, n := range v.Ints {
				vb.Append(int32(n))
			}
		case *array.Int64Builder:
			vb.AppendValues(v.Ints, nil)
		case *array.Float64Builder:
			vb.AppendValues(v.Floats, nil)
		case *array.StringBuilder:
			vb.AppendValues(v.Strs, nil)
		default:
			return fmt.Errorf("%w: list of %s", ErrUnsupportedArray, vb.Type())
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArray, b.Type())
	}
	return nil
}

func millisOfDay(t time.Time) int64 {
	h, m, s := t.Clock()
	return int64(h)*3_600_000 + int64(m)*60_000 + int64(s)*1000 + int64(t.Nanosecond()/1_000_000)
}

func hasFalse(v []bool) bool {
	for _, ok := range v {
		if !ok {
			return true
		}
	}
	return false
}

// SchemaMetadata returns the value of key in rec's schema metadata.
func SchemaMetadata(schema *arrow.Schema, key string) (string, bool) {
	md := schema.Metadata()
	i := md.FindKey(key)
	if i < 0 {
		return "", false
	}
	return md.Values()[i], true
}

// EPSG returns the EPSG code recorded in the schema metadata, or 0.
func EPSG(schema *arrow.Schema) int {
	s, ok := SchemaMetadata(schema, MetaCRSEPSG)
	if !ok {
		return 0
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return code
}
