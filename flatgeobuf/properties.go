package flatgeobuf

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/tingold/gdalframe/frame"
)

// property is a record column written as a FlatGeobuf column.
type property struct {
	frame.ColumnField
	colType flattypes.ColumnType
}

// columnTypeOf maps an attribute type to the FlatGeobuf column storing it.
// Lists have no native column type and are stored as JSON arrays.
func columnTypeOf(t frame.FieldType) flattypes.ColumnType {
	switch t {
	case frame.FieldBoolean:
		return flattypes.ColumnTypeBool
	case frame.FieldInteger:
		return flattypes.ColumnTypeInt
	case frame.FieldInteger64:
		return flattypes.ColumnTypeLong
	case frame.FieldReal:
		return flattypes.ColumnTypeDouble
	case frame.FieldDate, frame.FieldTime, frame.FieldDateTime:
		return flattypes.ColumnTypeDateTime
	case frame.FieldBinary:
		return flattypes.ColumnTypeBinary
	case frame.FieldIntegerList, frame.FieldInteger64List, frame.FieldRealList, frame.FieldStringList:
		return flattypes.ColumnTypeJson
	default:
		return flattypes.ColumnTypeString
	}
}

// fieldTypeOf maps a FlatGeobuf column type to the attribute type it is read as.
func fieldTypeOf(t flattypes.ColumnType) frame.FieldType {
	switch t {
	case flattypes.ColumnTypeBool:
		return frame.FieldBoolean
	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte,
		flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort, flattypes.ColumnTypeInt:
		return frame.FieldInteger
	case flattypes.ColumnTypeUInt, flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		return frame.FieldInteger64
	case flattypes.ColumnTypeFloat, flattypes.ColumnTypeDouble:
		return frame.FieldReal
	case flattypes.ColumnTypeDateTime:
		return frame.FieldDateTime
	case flattypes.ColumnTypeBinary:
		return frame.FieldBinary
	default:
		return frame.FieldString
	}
}

// newColumns builds the header columns for props.
func newColumns(props []property, builder *flatbuffers.Builder) []*writer.Column {
	columns := make([]*writer.Column, 0, len(props))
	for _, p := range props {
		col := writer.NewColumn(builder)
		col.SetName(p.Name)
		col.SetTitle(p.Name) // Set title to match name for JS library compatibility
		col.SetType(p.colType)
		col.SetNullable(true)
		columns = append(columns, col)
	}
	return columns
}

// encodeProperties encodes one row to FlatGeobuf binary format.
// The format is: [2-byte column index][value bytes]... repeated for each
// non-null value.
func encodeProperties(values []frame.Value, props []property) []byte {
	var buf bytes.Buffer

	for i, v := range values {
		if !v.Valid {
			continue
		}

		indexBytes := make([]byte, 2)
		binary.LittleEndian.PutUint16(indexBytes, uint16(i))
		buf.Write(indexBytes)

		writePropertyValue(&buf, v, props[i].colType)
	}

	return buf.Bytes()
}

// writePropertyValue writes a single property value to the buffer using the
// column's declared type.
func writePropertyValue(buf *bytes.Buffer, v frame.Value, colType flattypes.ColumnType) {
	switch colType {
	case flattypes.ColumnTypeBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}

	case flattypes.ColumnTypeInt:
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(int32(v.Int)))
		buf.Write(b)

	case flattypes.ColumnTypeLong:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v.Int))
		buf.Write(b)

	case flattypes.ColumnTypeDouble:
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.Float))
		buf.Write(b)

	case flattypes.ColumnTypeDateTime:
		writeString(buf, v.Time.UTC().Format(time.RFC3339Nano))

	case flattypes.ColumnTypeBinary:
		lenBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(lenBytes, uint32(len(v.Bytes)))
		buf.Write(lenBytes)
		buf.Write(v.Bytes)

	case flattypes.ColumnTypeJson:
		var list interface{}
		switch v.Type {
		case frame.FieldRealList:
			list = v.Floats
		case frame.FieldStringList:
			list = v.Strs
		default:
			list = v.Ints
		}
		jsonBytes, err := json.Marshal(list)
		if err != nil {
			jsonBytes = []byte("[]")
		}
		writeString(buf, string(jsonBytes))

	default:
		writeString(buf, v.String())
	}
}

// writeString writes a length-prefixed UTF-8 string.
func writeString(buf *bytes.Buffer, s string) {
	lenBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBytes, uint32(len(s)))
	buf.Write(lenBytes)
	buf.WriteString(s)
}

// decodeProperties decodes FlatGeobuf binary properties into one value per
// header column. Columns absent from data are null.
func decodeProperties(data []byte, header *flattypes.Header) []frame.Field {
	colLen := header.ColumnsLength()
	if colLen == 0 {
		return nil
	}

	fields := make([]frame.Field, colLen)
	for i := 0; i < colLen; i++ {
		var col flattypes.Column
		if header.Columns(&col, i) {
			fields[i] = frame.Field{Name: string(col.Name()), Value: frame.Null(fieldTypeOf(col.Type()))}
		}
	}

	offset := 0
	for offset+2 <= len(data) {
		colIndex := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if colIndex >= colLen {
			break
		}

		var col flattypes.Column
		if !header.Columns(&col, colIndex) {
			break
		}

		value, bytesRead := readPropertyValue(data[offset:], col.Type())
		if bytesRead == 0 {
			break
		}
		offset += bytesRead

		fields[colIndex].Value = value
	}

	return fields
}

// readPropertyValue reads a property value from the buffer.
// Returns the value and number of bytes read.
func readPropertyValue(data []byte, colType flattypes.ColumnType) (frame.Value, int) {
	switch colType {
	case flattypes.ColumnTypeBool:
		if len(data) < 1 {
			return frame.Value{}, 0
		}
		return frame.BooleanValue(data[0] != 0), 1

	case flattypes.ColumnTypeByte:
		if len(data) < 1 {
			return frame.Value{}, 0
		}
		return frame.IntegerValue(int32(int8(data[0]))), 1

	case flattypes.ColumnTypeUByte:
		if len(data) < 1 {
			return frame.Value{}, 0
		}
		return frame.IntegerValue(int32(data[0])), 1

	case flattypes.ColumnTypeShort:
		if len(data) < 2 {
			return frame.Value{}, 0
		}
		return frame.IntegerValue(int32(int16(binary.LittleEndian.Uint16(data[:2])))), 2

	case flattypes.ColumnTypeUShort:
		if len(data) < 2 {
			return frame.Value{}, 0
		}
		return frame.IntegerValue(int32(binary.LittleEndian.Uint16(data[:2]))), 2

	case flattypes.ColumnTypeInt:
		if len(data) < 4 {
			return frame.Value{}, 0
		}
		return frame.IntegerValue(int32(binary.LittleEndian.Uint32(data[:4]))), 4

	case flattypes.ColumnTypeUInt:
		if len(data) < 4 {
			return frame.Value{}, 0
		}
		return frame.Integer64Value(int64(binary.LittleEndian.Uint32(data[:4]))), 4

	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		if len(data) < 8 {
			return frame.Value{}, 0
		}
		return frame.Integer64Value(int64(binary.LittleEndian.Uint64(data[:8]))), 8

	case flattypes.ColumnTypeFloat:
		if len(data) < 4 {
			return frame.Value{}, 0
		}
		bits := binary.LittleEndian.Uint32(data[:4])
		return frame.RealValue(float64(math.Float32frombits(bits))), 4

	case flattypes.ColumnTypeDouble:
		if len(data) < 8 {
			return frame.Value{}, 0
		}
		bits := binary.LittleEndian.Uint64(data[:8])
		return frame.RealValue(math.Float64frombits(bits)), 8

	case flattypes.ColumnTypeDateTime:
		s, n := readString(data)
		if n == 0 {
			return frame.Value{}, 0
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return frame.Null(frame.FieldDateTime), n
		}
		return frame.DateTimeValue(t), n

	case flattypes.ColumnTypeBinary:
		if len(data) < 4 {
			return frame.Value{}, 0
		}
		length := int(binary.LittleEndian.Uint32(data[:4]))
		if len(data) < 4+length {
			return frame.Value{}, 0
		}
		return frame.BinaryValue(append([]byte(nil), data[4:4+length]...)), 4 + length

	case flattypes.ColumnTypeString, flattypes.ColumnTypeJson:
		s, n := readString(data)
		if n == 0 {
			return frame.Value{}, 0
		}
		return frame.StringValue(s), n

	default:
		return frame.Value{}, 0
	}
}

// readString reads a length-prefixed string, returning the bytes consumed.
func readString(data []byte) (string, int) {
	if len(data) < 4 {
		return "", 0
	}
	length := int(binary.LittleEndian.Uint32(data[:4]))
	if len(data) < 4+length {
		return "", 0
	}
	return string(data[4 : 4+length]), 4 + length
}
