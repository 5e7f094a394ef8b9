package flatgeobuf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingold/gdalframe/frame"
)

// recordOf materializes features through the frame mapper.
func recordOf(t testing.TB, features []*frame.Feature) arrow.Record {
	t.Helper()
	rec, err := frame.Read(frame.NewSliceSource(features), frame.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(rec.Release)
	return rec
}

func pointFeature(x, y float64, fields ...frame.Field) *frame.Feature {
	return &frame.Feature{Geometry: frame.OrbGeometry{Geometry: orb.Point{x, y}}, Fields: fields}
}

func writeFile(t *testing.T, rec arrow.Record, opts *Options) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.fgb")
	file, err := os.Create(path)
	require.NoError(t, err)
	err = WriteRecord(file, rec, opts)
	require.NoError(t, file.Close())
	require.NoError(t, err)
	return path
}

func TestNewReaderFromData_Invalid(t *testing.T) {
	_, err := NewReaderFromData([]byte("not a flatgeobuf"))
	assert.Error(t, err)
}

func TestNewReaderFromData_Empty(t *testing.T) {
	_, err := NewReaderFromData([]byte{})
	assert.Error(t, err)
}

func TestNewReader_NonExistent(t *testing.T) {
	_, err := NewReader("/nonexistent/path/to/file.fgb")
	assert.Error(t, err)
}

func TestRoundTrip_Points(t *testing.T) {
	features := make([]*frame.Feature, 0, 10)
	for i := 0; i < 10; i++ {
		features = append(features, pointFeature(float64(i), float64(i*2),
			frame.Field{Name: "index", Value: frame.IntegerValue(int32(i))},
			frame.Field{Name: "name", Value: frame.StringValue("point")},
		))
	}
	rec := recordOf(t, features)

	path := writeFile(t, rec, &Options{Name: "test_points", IncludeIndex: true, CRS: WGS84()})

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	require.NotNil(t, header)
	assert.Equal(t, "test_points", header.Name)
	assert.Equal(t, "Point", header.GeometryType)
	assert.True(t, header.HasIndex)
	assert.EqualValues(t, 10, header.FeaturesCount)
	require.NotNil(t, header.CRS)
	assert.Equal(t, 4326, header.CRS.Code)

	out, err := reader.ReadAll(frame.DefaultOptions())
	require.NoError(t, err)
	defer out.Release()

	assert.EqualValues(t, 10, out.NumRows())
	assert.Equal(t, "index", out.Schema().Field(0).Name)
	assert.Equal(t, "name", out.Schema().Field(1).Name)
	assert.Equal(t, "geometry", out.Schema().Field(2).Name)
	assert.Equal(t, 4326, frame.EPSG(out.Schema()))

	layer, ok := frame.SchemaMetadata(out.Schema(), frame.MetaLayer)
	assert.True(t, ok)
	assert.Equal(t, "test_points", layer)

	// the index reorders features, so compare as sets
	seen := map[int32]bool{}
	index := out.Column(0).(*array.Int32)
	geoms := out.Column(2).(*array.Binary)
	for i := 0; i < index.Len(); i++ {
		seen[index.Value(i)] = true
		g, err := frame.Decode(geoms.Value(i), frame.WKB)
		require.NoError(t, err)
		p := g.(orb.Point)
		assert.Equal(t, p[0]*2, p[1])
		assert.Equal(t, float64(index.Value(i)), p[0])
	}
	assert.Len(t, seen, 10)
}

func TestRoundTrip_Polygons(t *testing.T) {
	features := []*frame.Feature{
		{Geometry: frame.OrbGeometry{Geometry: orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}}},
			Fields: []frame.Field{{Name: "name", Value: frame.StringValue("square1")}}},
		{Geometry: frame.OrbGeometry{Geometry: orb.Polygon{{{20, 20}, {30, 20}, {30, 30}, {20, 30}, {20, 20}}}},
			Fields: []frame.Field{{Name: "name", Value: frame.StringValue("square2")}}},
	}
	path := writeFile(t, recordOf(t, features), nil)

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	assert.Equal(t, "Polygon", reader.Header().GeometryType)
}

func TestRoundTrip_Search(t *testing.T) {
	var features []*frame.Feature
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			features = append(features, pointFeature(float64(x), float64(y),
				frame.Field{Name: "x", Value: frame.IntegerValue(int32(x))},
				frame.Field{Name: "y", Value: frame.IntegerValue(int32(y))},
			))
		}
	}
	path := writeFile(t, recordOf(t, features), &Options{IncludeIndex: true})

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	bounds := orb.Bound{Min: orb.Point{2, 2}, Max: orb.Point{4, 4}}
	results, err := reader.Search(bounds, frame.DefaultOptions())
	require.NoError(t, err)
	defer results.Release()

	require.NotZero(t, results.NumRows())
	xs := results.Column(0).(*array.Int32)
	for i := 0; i < xs.Len(); i++ {
		assert.GreaterOrEqual(t, xs.Value(i), int32(2))
		assert.LessOrEqual(t, xs.Value(i), int32(4))
	}
}

func TestSearch_Limit(t *testing.T) {
	var features []*frame.Feature
	for i := 0; i < 20; i++ {
		features = append(features, pointFeature(float64(i), 0))
	}
	reader, err := NewReader(writeFile(t, recordOf(t, features), nil))
	require.NoError(t, err)

	opts := frame.DefaultOptions()
	opts.Limit = 5
	opts.FIDColumn = "fid"
	opts.GeometryFormat = frame.WKT
	out, err := reader.ReadAll(opts)
	require.NoError(t, err)
	defer out.Release()

	assert.EqualValues(t, 5, out.NumRows())
	assert.Equal(t, "fid", out.Schema().Field(0).Name)
	assert.Equal(t, arrow.STRING, out.Schema().Field(1).Type.ID())
}

func TestSearch_NoIndex(t *testing.T) {
	rec := recordOf(t, []*frame.Feature{pointFeature(1, 2), pointFeature(3, 4)})
	path := writeFile(t, rec, &Options{IncludeIndex: false})

	reader, err := NewReader(path)
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	// unindexed files carry no feature count either
	header := reader.Header()
	assert.False(t, header.HasIndex)
	assert.Zero(t, header.FeaturesCount)

	_, err = reader.Search(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}, frame.DefaultOptions())
	assert.ErrorIs(t, err, ErrNoIndex)

	_, err = reader.ReadAll(frame.DefaultOptions())
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestReader_Close(t *testing.T) {
	rec := recordOf(t, []*frame.Feature{pointFeature(1, 2)})
	reader, err := NewReader(writeFile(t, rec, nil))
	require.NoError(t, err)
	assert.NoError(t, reader.Close())
}

func TestHeader_ColumnInfo(t *testing.T) {
	rec := recordOf(t, []*frame.Feature{pointFeature(1, 2,
		frame.Field{Name: "name", Value: frame.StringValue("test")},
		frame.Field{Name: "value", Value: frame.IntegerValue(42)},
		frame.Field{Name: "active", Value: frame.BooleanValue(true)},
		frame.Field{Name: "score", Value: frame.RealValue(3.14)},
	)})

	reader, err := NewReader(writeFile(t, rec, &Options{IncludeIndex: true}))
	require.NoError(t, err)
	defer func() { _ = reader.Close() }()

	header := reader.Header()
	require.NotNil(t, header)
	require.Len(t, header.Columns, 4)

	columnTypes := make(map[string]string)
	for _, col := range header.Columns {
		columnTypes[col.Name] = col.Type
	}
	assert.Equal(t, map[string]string{
		"name":   "String",
		"value":  "Int",
		"active": "Bool",
		"score":  "Double",
	}, columnTypes)
}
