package frame

import (
	"fmt"
	"math"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
)

// ColumnField is a record column written as a layer attribute.
type ColumnField struct {
	Index int // Column index in the record
	Name  string
	Type  FieldType
}

// FieldColumns lists the columns of schema that become layer attributes,
// skipping the geometry and FID columns. Columns with no attribute mapping
// are returned in skipped.
func FieldColumns(schema *arrow.Schema, geometryColumn, fidColumn string) (fields []ColumnField, skipped []arrow.Field) {
	if geometryColumn == "" {
		geometryColumn = DefaultGeometryColumn
	}
	for i, f := range schema.Fields() {
		if f.Name == geometryColumn || (fidColumn != "" && f.Name == fidColumn) {
			continue
		}
		t, ok := FieldTypeOf(f.Type)
		if !ok {
			skipped = append(skipped, f)
			continue
		}
		fields = append(fields, ColumnField{Index: i, Name: f.Name, Type: t})
	}
	return fields, skipped
}

// FieldTypeOf returns the attribute type used to write an Arrow column.
// Booleans map to FieldBoolean; formats without a boolean type store them
// as integers.
func FieldTypeOf(dt arrow.DataType) (FieldType, bool) {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.UINT8, arrow.UINT16:
		return FieldInteger, true
	case arrow.INT64, arrow.UINT32, arrow.UINT64, arrow.TIME32, arrow.TIME64, arrow.DURATION:
		return FieldInteger64, true
	case arrow.FLOAT16, arrow.FLOAT32, arrow.FLOAT64:
		return FieldReal, true
	case arrow.STRING, arrow.LARGE_STRING:
		return FieldString, true
	case arrow.DATE32, arrow.DATE64:
		return FieldDate, true
	case arrow.TIMESTAMP:
		return FieldDateTime, true
	case arrow.BINARY:
		return FieldBinary, true
	case arrow.BOOL:
		return FieldBoolean, true
	case arrow.LIST:
		switch dt.(*arrow.ListType).Elem().ID() {
		case arrow.INT8, arrow.INT16, arrow.INT32, arrow.UINT8, arrow.UINT16:
			return FieldIntegerList, true
		case arrow.INT64, arrow.UINT32, arrow.UINT64:
			return FieldInteger64List, true
		case arrow.FLOAT32, arrow.FLOAT64:
			return FieldRealList, true
		case arrow.STRING:
			return FieldStringList, true
		}
	}
	return FieldNull, false
}

// ValueAt converts the cell at row of arr to a value of type t. Null cells
// yield an invalid Value.
func ValueAt(arr arrow.Array, row int, t FieldType) (Value, error) {
	if arr.IsNull(row) {
		return Null(t), nil
	}
	switch a := arr.(type) {
	case *array.Int8:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Int16:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Int32:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Int64:
		return intValue(a.Value(row), t), nil
	case *array.Uint8:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Uint16:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Uint32:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Uint64:
		n := a.Value(row)
		if n > math.MaxInt64 {
			return Null(t), fmt.Errorf("%w: %d", ErrIntegerOverflow, n)
		}
		return intValue(int64(n), t), nil
	case *array.Time32:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Time64:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Duration:
		return intValue(int64(a.Value(row)), t), nil
	case *array.Float16:
		return RealValue(float64(a.Value(row).Float32())), nil
	case *array.Float32:
		return RealValue(float64(a.Value(row))), nil
	case *array.Float64:
		return RealValue(a.Value(row)), nil
	case *array.String:
		return StringValue(a.Value(row)), nil
	case *array.LargeString:
		return StringValue(a.Value(row)), nil
	case *array.Binary:
		return BinaryValue(a.Value(row)), nil
	case *array.Boolean:
		return BooleanValue(a.Value(row)), nil
	case *array.Date32:
		return DateValue(a.Value(row).ToTime()), nil
	case *array.Date64:
		return DateValue(a.Value(row).ToTime()), nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return DateTimeValue(a.Value(row).ToTime(unit)), nil
	case *array.List:
		return listValue(a, row, t)
	}
	return Null(t), fmt.Errorf("%w: %s", ErrUnsupportedArray, arr.DataType())
}

func intValue(n int64, t FieldType) Value {
	if t == FieldInteger {
		return IntegerValue(int32(n))
	}
	return Integer64Value(n)
}

func listValue(a *array.List, row int, t FieldType) (Value, error) {
	start, end := a.ValueOffsets(row)
	switch values := a.ListValues().(type) {
	case *array.Int8, *array.Int16, *array.Int32, *array.Int64,
		*array.Uint8, *array.Uint16, *array.Uint32, *array.Uint64:
		ints := make([]int64, 0, end-start)
		for i := start; i < end; i++ {
			v, err := ValueAt(values, int(i), FieldInteger64)
			if err != nil {
				return Null(t), err
			}
			ints = append(ints, v.Int)
		}
		if t == FieldIntegerList {
			return IntegerListValue(ints), nil
		}
		return Integer64ListValue(ints), nil
	case *array.Float32, *array.Float64:
		floats := make([]float64, 0, end-start)
		for i := start; i < end; i++ {
			v, err := ValueAt(values, int(i), FieldReal)
			if err != nil {
				return Null(t), err
			}
			floats = append(floats, v.Float)
		}
		return RealListValue(floats), nil
	case *array.String:
		strs := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			strs = append(strs, values.Value(int(i)))
		}
		return StringListValue(strs), nil
	default:
		return Null(t), fmt.Errorf("%w: %s", ErrUnsupportedArray, a.DataType())
	}
}

// GeometryColumnIndex validates that rec can be written with its geometry in
// column name encoded as format, and returns the column index.
func GeometryColumnIndex(rec arrow.Record, name string, format GeometryFormat) (int, error) {
	if rec == nil || rec.NumRows() == 0 {
		return -1, ErrEmptyFrame
	}
	if name == "" {
		name = DefaultGeometryColumn
	}
	indices := rec.Schema().FieldIndices(name)
	if len(indices) == 0 {
		return -1, &MissingColumnError{Column: name}
	}
	idx := indices[0]
	dt := rec.Column(idx).DataType()

	var ok bool
	var expected string
	switch format {
	case WKB:
		ok, expected = dt.ID() == arrow.BINARY || dt.ID() == arrow.LARGE_BINARY, "binary"
	case WKT, GeoJSON:
		ok, expected = dt.ID() == arrow.STRING || dt.ID() == arrow.LARGE_STRING, "utf8"
	default:
		return -1, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
	}
	if !ok {
		return -1, &GeometryColumnTypeError{Column: name, Format: format, Expected: expected, Got: dt}
	}
	return idx, nil
}

// GeometryAt returns the encoded geometry cell at row, or nil for nulls.
func GeometryAt(arr arrow.Array, row int) []byte {
	if arr.IsNull(row) {
		return nil
	}
	switch a := arr.(type) {
	case *array.Binary:
		return a.Value(row)
	case *array.LargeBinary:
		return a.Value(row)
	case *array.String:
		return []byte(a.Value(row))
	case *array.LargeString:
		return []byte(a.Value(row))
	}
	return nil
}
