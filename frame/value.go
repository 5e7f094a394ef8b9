package frame

import (
	"strconv"
	"strings"
	"time"
)

// FieldType is the attribute type of a layer field. It mirrors OGR's field
// types, plus Boolean for sources that carry it natively.
type FieldType int

const (
	FieldNull FieldType = iota // no non-null value seen yet
	FieldInteger
	FieldInteger64
	FieldReal
	FieldString
	FieldDate
	FieldTime
	FieldDateTime
	FieldBinary
	FieldBoolean
	FieldIntegerList
	FieldInteger64List
	FieldRealList
	FieldStringList
)

var fieldTypeNames = map[FieldType]string{
	FieldNull:          "Null",
	FieldInteger:       "Integer",
	FieldInteger64:     "Integer64",
	FieldReal:          "Real",
	FieldString:        "String",
	FieldDate:          "Date",
	FieldTime:          "Time",
	FieldDateTime:      "DateTime",
	FieldBinary:        "Binary",
	FieldBoolean:       "Boolean",
	FieldIntegerList:   "IntegerList",
	FieldInteger64List: "Integer64List",
	FieldRealList:      "RealList",
	FieldStringList:    "StringList",
}

func (t FieldType) String() string {
	if s, ok := fieldTypeNames[t]; ok {
		return s
	}
	return "FieldType(" + strconv.Itoa(int(t)) + ")"
}

// IsList reports whether t holds a list of scalars.
func (t FieldType) IsList() bool {
	switch t {
	case FieldIntegerList, FieldInteger64List, FieldRealList, FieldStringList:
		return true
	}
	return false
}

// Value is a single attribute value. Only the member matching Type is
// meaningful; an invalid Value is a null of that type.
type Value struct {
	Type  FieldType
	Valid bool

	Int    int64
	Float  float64
	Str    string
	Bool   bool
	Bytes  []byte
	Time   time.Time
	Ints   []int64
	Floats []float64
	Strs   []string
}

// Null returns a null value of type t.
func Null(t FieldType) Value { return Value{Type: t} }

func IntegerValue(v int32) Value   { return Value{Type: FieldInteger, Valid: true, Int: int64(v)} }
func Integer64Value(v int64) Value { return Value{Type: FieldInteger64, Valid: true, Int: v} }
func RealValue(v float64) Value    { return Value{Type: FieldReal, Valid: true, Float: v} }
func StringValue(v string) Value   { return Value{Type: FieldString, Valid: true, Str: v} }
func BooleanValue(v bool) Value    { return Value{Type: FieldBoolean, Valid: true, Bool: v} }
func BinaryValue(v []byte) Value   { return Value{Type: FieldBinary, Valid: true, Bytes: v} }
func DateValue(v time.Time) Value  { return Value{Type: FieldDate, Valid: true, Time: v} }
func TimeValue(v time.Time) Value  { return Value{Type: FieldTime, Valid: true, Time: v} }

func DateTimeValue(v time.Time) Value {
	return Value{Type: FieldDateTime, Valid: true, Time: v}
}

func IntegerListValue(v []int64) Value {
	return Value{Type: FieldIntegerList, Valid: true, Ints: v}
}

func Integer64ListValue(v []int64) Value {
	return Value{Type: FieldInteger64List, Valid: true, Ints: v}
}

func RealListValue(v []float64) Value {
	return Value{Type: FieldRealList, Valid: true, Floats: v}
}

func StringListValue(v []string) Value {
	return Value{Type: FieldStringList, Valid: true, Strs: v}
}

// Field is a named attribute value of one feature.
type Field struct {
	Name  string
	Value Value
}

// promoteFieldType returns the type that can hold values of both a and b.
func promoteFieldType(a, b FieldType) FieldType {
	if a == b || b == FieldNull {
		return a
	}
	if a == FieldNull {
		return b
	}

	numeric := map[FieldType]int{
		FieldBoolean:   0,
		FieldInteger:   1,
		FieldInteger64: 2,
		FieldReal:      3,
	}
	rankA, okA := numeric[a]
	rankB, okB := numeric[b]
	if okA && okB {
		if rankA > rankB {
			return a
		}
		return b
	}

	lists := map[FieldType]int{
		FieldIntegerList:   0,
		FieldInteger64List: 1,
		FieldRealList:      2,
	}
	rankA, okA = lists[a]
	rankB, okB = lists[b]
	if okA && okB {
		if rankA > rankB {
			return a
		}
		return b
	}
	if a.IsList() && b.IsList() {
		return FieldStringList
	}

	return FieldString
}

// coerce converts v to type t. t must be v.Type or a promotion of it.
func coerce(v Value, t FieldType) Value {
	if !v.Valid || v.Type == t {
		v.Type = t
		return v
	}

	switch t {
	case FieldInteger64:
		if v.Type == FieldBoolean {
			return Integer64Value(boolToInt(v.Bool))
		}
		return Integer64Value(v.Int)
	case FieldInteger:
		if v.Type == FieldBoolean {
			return IntegerValue(int32(boolToInt(v.Bool)))
		}
	case FieldReal:
		switch v.Type {
		case FieldBoolean:
			return RealValue(float64(boolToInt(v.Bool)))
		case FieldInteger, FieldInteger64:
			return RealValue(float64(v.Int))
		}
	case FieldInteger64List:
		return Integer64ListValue(v.Ints)
	case FieldRealList:
		floats := make([]float64, len(v.Ints))
		for i, n := range v.Ints {
			floats[i] = float64(n)
		}
		return RealListValue(floats)
	case FieldStringList:
		return StringListValue(listStrings(v))
	case FieldString:
		return StringValue(v.String())
	}
	return Null(t)
}

// String formats the value the way GDAL renders fields as strings.
func (v Value) String() string {
	if !v.Valid {
		return ""
	}
	switch v.Type {
	case FieldInteger, FieldInteger64:
		return strconv.FormatInt(v.Int, 10)
	case FieldReal:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case FieldString:
		return v.Str
	case FieldBoolean:
		return strconv.FormatBool(v.Bool)
	case FieldBinary:
		return string(v.Bytes)
	case FieldDate:
		return v.Time.Format("2006/01/02")
	case FieldTime:
		return v.Time.Format("15:04:05.000")
	case FieldDateTime:
		return v.Time.Format("2006/01/02 15:04:05.000")
	default:
		return "(" + strings.Join(listStrings(v), ",") + ")"
	}
}

func listStrings(v Value) []string {
	switch v.Type {
	case FieldIntegerList, FieldInteger64List:
		out := make([]string, len(v.Ints))
		for i, n := range v.Ints {
			out[i] = strconv.FormatInt(n, 10)
		}
		return out
	case FieldRealList:
		out := make([]string, len(v.Floats))
		for i, f := range v.Floats {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out
	case FieldStringList:
		return v.Strs
	}
	return []string{v.String()}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
