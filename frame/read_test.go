package frame

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(x, y float64) Geometry { return OrbGeometry{orb.Point{x, y}} }

func schemaNames(s *arrow.Schema) []string {
	names := make([]string, 0, len(s.Fields()))
	for _, f := range s.Fields() {
		names = append(names, f.Name)
	}
	return names
}

func readAll(t *testing.T, features []*Feature, opts Options) arrow.Record {
	t.Helper()
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	t.Cleanup(func() { mem.AssertSize(t, 0) })
	opts.Allocator = mem
	rec, err := Read(NewSliceSource(features), opts)
	require.NoError(t, err)
	t.Cleanup(rec.Release)
	return rec
}

func TestRead_ColumnOrder(t *testing.T) {
	t.Parallel()

	features := []*Feature{
		{FID: 1, HasFID: true, Fields: []Field{
			{Name: "name", Value: StringValue("a")},
			{Name: "pop", Value: IntegerValue(10)},
		}, Geometry: point(1, 2)},
		{FID: 2, HasFID: true, Fields: []Field{
			{Name: "area", Value: RealValue(1.5)},
			{Name: "name", Value: StringValue("b")},
		}, Geometry: point(3, 4)},
	}

	opts := DefaultOptions()
	opts.FIDColumn = "fid"
	rec := readAll(t, features, opts)

	want := []string{"fid", "name", "pop", "area", "geometry"}
	if diff := cmp.Diff(want, schemaNames(rec.Schema())); diff != "" {
		t.Errorf("column order mismatch (-want +got):\n%s", diff)
	}
	assert.EqualValues(t, 2, rec.NumRows())

	fid := rec.Column(0).(*array.Int64)
	assert.Equal(t, []int64{1, 2}, fid.Int64Values())

	pop := rec.Column(2).(*array.Int32)
	assert.True(t, pop.IsValid(0))
	assert.True(t, pop.IsNull(1), "pop missing from second feature")

	area := rec.Column(3).(*array.Float64)
	assert.True(t, area.IsNull(0), "area missing from first feature")
	assert.Equal(t, 1.5, area.Value(1))

	assert.True(t, rec.Schema().Field(2).Nullable)
	assert.False(t, rec.Schema().Field(1).Nullable)
}

func TestRead_TypePromotion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []Value
		want   arrow.DataType
	}{
		{"int to int64", []Value{IntegerValue(1), Integer64Value(1 << 40)}, arrow.PrimitiveTypes.Int64},
		{"int to real", []Value{IntegerValue(1), RealValue(2.5)}, arrow.PrimitiveTypes.Float64},
		{"real stays real", []Value{RealValue(2.5), Integer64Value(3)}, arrow.PrimitiveTypes.Float64},
		{"number to string", []Value{IntegerValue(1), StringValue("x")}, arrow.BinaryTypes.String},
		{"null first", []Value{Null(FieldInteger), IntegerValue(3)}, arrow.PrimitiveTypes.Int32},
		{"all null", []Value{Null(FieldString), Null(FieldString)}, arrow.Null},
		{"lists", []Value{IntegerListValue([]int64{1}), RealListValue([]float64{2})}, arrow.ListOf(arrow.PrimitiveTypes.Float64)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			features := make([]*Feature, len(tt.values))
			for i, v := range tt.values {
				features[i] = &Feature{Fields: []Field{{Name: "v", Value: v}}, Geometry: point(0, 0)}
			}
			rec := readAll(t, features, DefaultOptions())
			got := rec.Schema().Field(0).Type
			assert.True(t, arrow.TypeEqual(tt.want, got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestRead_PromotedValues(t *testing.T) {
	t.Parallel()

	features := []*Feature{
		{Fields: []Field{{Name: "v", Value: IntegerValue(7)}}},
		{Fields: []Field{{Name: "v", Value: StringValue("seven")}}},
		{Fields: []Field{{Name: "v", Value: RealValue(0.5)}}},
	}
	rec := readAll(t, features, DefaultOptions())

	col := rec.Column(0).(*array.String)
	assert.Equal(t, "7", col.Value(0))
	assert.Equal(t, "seven", col.Value(1))
	assert.Equal(t, "0.5", col.Value(2))
}

func TestRead_RenamesConflictingColumns(t *testing.T) {
	t.Parallel()

	features := []*Feature{
		{FID: 9, HasFID: true, Fields: []Field{
			{Name: "geometry", Value: StringValue("attr")},
			{Name: "id", Value: IntegerValue(3)},
		}, Geometry: point(0, 0)},
	}
	opts := DefaultOptions()
	opts.FIDColumn = "id"
	rec := readAll(t, features, opts)

	assert.Equal(t, []string{"id", "geometry_original", "id_original", "geometry"}, schemaNames(rec.Schema()))
}

func TestRead_NullGeometries(t *testing.T) {
	t.Parallel()

	features := []*Feature{
		{Geometry: point(1, 1)},
		{Geometry: nil},
		{Geometry: OrbGeometry{orb.LineString{}}},
	}
	rec := readAll(t, features, DefaultOptions())

	geom := rec.Column(0).(*array.Binary)
	assert.True(t, geom.IsValid(0))
	assert.True(t, geom.IsNull(1))
	assert.True(t, geom.IsNull(2))

	field := rec.Schema().Field(0)
	i := field.Metadata.FindKey("ARROW:extension:name")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "geoarrow.wkb", field.Metadata.Values()[i])
}

func TestRead_GeometryFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format GeometryFormat
		want   string
	}{
		{WKT, "POINT(1 2)"},
		{GeoJSON, `{"type":"Point","coordinates":[1,2]}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.format.String(), func(t *testing.T) {
			t.Parallel()

			opts := DefaultOptions()
			opts.GeometryFormat = tt.format
			opts.GeometryColumn = "geom"
			rec := readAll(t, []*Feature{{Geometry: point(1, 2)}}, opts)

			require.Equal(t, "geom", rec.Schema().Field(0).Name)
			col := rec.Column(0).(*array.String)
			assert.Equal(t, tt.want, col.Value(0))

			v, ok := SchemaMetadata(rec.Schema(), MetaGeometryColumn)
			assert.True(t, ok)
			assert.Equal(t, "geom", v)
		})
	}
}

func TestRead_TemporalTypes(t *testing.T) {
	t.Parallel()

	ts := time.Date(2021, 3, 4, 5, 6, 7, 8_000_000, time.UTC)
	features := []*Feature{{Fields: []Field{
		{Name: "d", Value: DateValue(ts)},
		{Name: "t", Value: TimeValue(ts)},
		{Name: "dt", Value: DateTimeValue(ts)},
	}}}
	rec := readAll(t, features, DefaultOptions())

	assert.Equal(t, arrow.Date32FromTime(ts), rec.Column(0).(*array.Date32).Value(0))
	assert.Equal(t, arrow.Time32(5*3_600_000+6*60_000+7_008), rec.Column(1).(*array.Time32).Value(0))
	assert.Equal(t, arrow.Timestamp(ts.UnixNano()), rec.Column(2).(*array.Timestamp).Value(0))

	tsType := rec.Schema().Field(2).Type.(*arrow.TimestampType)
	assert.Equal(t, arrow.Nanosecond, tsType.Unit)
	assert.Equal(t, "UTC", tsType.TimeZone)
}

func TestRead_OffsetLimit(t *testing.T) {
	t.Parallel()

	features := make([]*Feature, 10)
	for i := range features {
		features[i] = &Feature{FID: int64(i), HasFID: true, Geometry: point(float64(i), 0)}
	}

	tests := []struct {
		name   string
		offset int
		limit  int
		want   []int64
	}{
		{"all", 0, 0, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
		{"limit", 0, 3, []int64{0, 1, 2}},
		{"offset", 7, 0, []int64{7, 8, 9}},
		{"offset and limit", 2, 2, []int64{2, 3}},
		{"offset past end", 20, 0, []int64{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := DefaultOptions()
			opts.FIDColumn = "fid"
			opts.Offset = tt.offset
			opts.Limit = tt.limit
			rec := readAll(t, features, opts)
			got := rec.Column(0).(*array.Int64).Int64Values()
			assert.Equal(t, tt.want, append([]int64{}, got...))
		})
	}
}

// uncounted hides SliceSource.Count.
type uncounted struct{ src *SliceSource }

func (u uncounted) Next() (*Feature, error) { return u.src.Next() }

func TestRead_MaxFeatures(t *testing.T) {
	t.Parallel()

	features := []*Feature{{}, {}, {}}

	t.Run("counted", func(t *testing.T) {
		t.Parallel()
		opts := DefaultOptions()
		opts.MaxFeatures = 2
		_, err := Read(NewSliceSource(features), opts)
		var limitErr *FeatureLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, 3, limitErr.Count)
	})

	t.Run("streamed", func(t *testing.T) {
		t.Parallel()
		opts := DefaultOptions()
		opts.MaxFeatures = 2
		_, err := Read(uncounted{NewSliceSource(features)}, opts)
		var limitErr *FeatureLimitError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, -1, limitErr.Count)
	})

	t.Run("limit within max", func(t *testing.T) {
		t.Parallel()
		opts := DefaultOptions()
		opts.MaxFeatures = 2
		opts.Limit = 2
		rec, err := Read(NewSliceSource(features), opts)
		require.NoError(t, err)
		defer rec.Release()
		assert.EqualValues(t, 2, rec.NumRows())
	})

	t.Run("exactly max", func(t *testing.T) {
		t.Parallel()
		opts := DefaultOptions()
		opts.MaxFeatures = 3
		rec, err := Read(uncounted{NewSliceSource(features)}, opts)
		require.NoError(t, err)
		defer rec.Release()
		assert.EqualValues(t, 3, rec.NumRows())
	})
}

type failingSource struct{ n int }

func (f *failingSource) Next() (*Feature, error) {
	if f.n == 0 {
		return nil, errors.New("boom")
	}
	f.n--
	return &Feature{}, nil
}

func TestRead_SourceError(t *testing.T) {
	t.Parallel()

	_, err := Read(&failingSource{n: 2}, DefaultOptions())
	assert.EqualError(t, err, "boom")
}

func TestRead_Empty(t *testing.T) {
	t.Parallel()

	rec := readAll(t, nil, DefaultOptions())
	assert.EqualValues(t, 0, rec.NumRows())
	assert.Equal(t, []string{"geometry"}, schemaNames(rec.Schema()))
}

func TestRead_Metadata(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Metadata = map[string]string{MetaCRSEPSG: "4326", MetaLayer: "cities"}
	rec := readAll(t, []*Feature{{Geometry: point(0, 0)}}, opts)

	assert.Equal(t, 4326, EPSG(rec.Schema()))
	layer, ok := SchemaMetadata(rec.Schema(), MetaLayer)
	assert.True(t, ok)
	assert.Equal(t, "cities", layer)
}

func TestSliceSource(t *testing.T) {
	t.Parallel()

	src := NewSliceSource([]*Feature{{FID: 1}})
	n, ok := src.Count()
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	f, err := src.Next()
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.FID)

	_, err = src.Next()
	assert.ErrorIs(t, err, io.EOF)
}
