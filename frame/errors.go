package frame

import (
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
)

// MissingColumnError is returned when a required column is absent.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("frame: column %q not found", e.Column)
}

// GeometryColumnTypeError is returned when the geometry column's Arrow type
// does not match the requested geometry format.
type GeometryColumnTypeError struct {
	Column   string
	Format   GeometryFormat
	Expected string
	Got      arrow.DataType
}

func (e *GeometryColumnTypeError) Error() string {
	return fmt.Sprintf("frame: geometry column %q holds %s, %s geometries need %s",
		e.Column, e.Got, e.Format, e.Expected)
}

// GeometryTypeError is returned when the geometry type of a record cannot be
// detected from its first row.
type GeometryTypeError struct {
	Column string
	Err    error
}

func (e *GeometryTypeError) Error() string {
	msg := fmt.Sprintf("frame: cannot detect geometry type of column %q from the first row", e.Column)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + "; set the geometry type explicitly"
}

func (e *GeometryTypeError) Unwrap() error { return e.Err }

// FeatureLimitError is returned when a read would produce more rows than
// Options.MaxFeatures allows. Count is -1 when the total is not known.
type FeatureLimitError struct {
	Max   int
	Count int
}

func (e *FeatureLimitError) Error() string {
	if e.Count < 0 {
		return fmt.Sprintf("frame: more than %d features", e.Max)
	}
	return fmt.Sprintf("frame: %d features exceed the limit of %d", e.Count, e.Max)
}
