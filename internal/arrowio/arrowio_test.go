package arrowio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tingold/gdalframe/frame"
)

func testRecord(t *testing.T, epsg string) arrow.Record {
	t.Helper()
	features := []*frame.Feature{
		{Fields: []frame.Field{
			{Name: "name", Value: frame.StringValue("a")},
			{Name: "lanes", Value: frame.IntegerValue(2)},
		}, Geometry: frame.OrbGeometry{Geometry: orb.LineString{{0, 0}, {1, 1}}}},
		{Fields: []frame.Field{
			{Name: "name", Value: frame.StringValue("b")},
			{Name: "lanes", Value: frame.Null(frame.FieldInteger)},
		}, Geometry: frame.OrbGeometry{Geometry: orb.Point{2, 3}}},
		{Fields: []frame.Field{
			{Name: "name", Value: frame.StringValue("c")},
			{Name: "lanes", Value: frame.IntegerValue(4)},
		}},
	}
	opts := frame.DefaultOptions()
	opts.Metadata = map[string]string{frame.MetaLayer: "roads"}
	if epsg != "" {
		opts.Metadata[frame.MetaCRSEPSG] = epsg
	}
	rec, err := frame.Read(frame.NewSliceSource(features), opts)
	require.NoError(t, err)
	t.Cleanup(rec.Release)
	return rec
}

func assertSameRecord(t *testing.T, want, got arrow.Record) {
	t.Helper()
	require.Equal(t, want.NumRows(), got.NumRows())
	require.Equal(t, want.NumCols(), got.NumCols())
	for i := 0; i < int(want.NumCols()); i++ {
		assert.Equal(t, want.Schema().Field(i).Name, got.Schema().Field(i).Name)
		assert.True(t, array.Equal(want.Column(i), got.Column(i)),
			"column %s: want %v, got %v", want.Schema().Field(i).Name, want.Column(i), got.Column(i))
	}
	layer, _ := frame.SchemaMetadata(got.Schema(), frame.MetaLayer)
	assert.Equal(t, "roads", layer)
}

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.arrow", IPC},
		{"a.FEATHER", IPC},
		{"dir/a.parquet", Parquet},
		{"a.geoparquet", Parquet},
	}
	for _, tt := range tests {
		got, err := FormatOf(tt.path)
		if err != nil {
			t.Errorf("FormatOf(%s): %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("FormatOf(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}

	_, err := FormatOf("a.csv")
	assert.True(t, errors.Is(err, ErrUnknownExtension))
}

func TestIPC_RoundTrip(t *testing.T) {
	rec := testRecord(t, "")
	path := filepath.Join(t.TempDir(), "roads.arrow")
	require.NoError(t, WriteFile(path, rec))

	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	got, err := ReadFile(context.Background(), path, mem)
	require.NoError(t, err)
	defer got.Release()
	assertSameRecord(t, rec, got)
}

func TestIPC_MultipleBatches(t *testing.T) {
	rec := testRecord(t, "")
	path := filepath.Join(t.TempDir(), "roads.arrow")

	f, err := os.Create(path)
	require.NoError(t, err)
	fw, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()))
	require.NoError(t, err)
	require.NoError(t, fw.Write(rec))
	require.NoError(t, fw.Write(rec))
	require.NoError(t, fw.Close())
	require.NoError(t, f.Close())

	got, err := ReadFile(context.Background(), path, nil)
	require.NoError(t, err)
	defer got.Release()
	assert.EqualValues(t, 6, got.NumRows())
}

func TestParquet_RoundTrip(t *testing.T) {
	rec := testRecord(t, "")
	path := filepath.Join(t.TempDir(), "roads.parquet")
	require.NoError(t, WriteFile(path, rec))

	got, err := ReadFile(context.Background(), path, nil)
	require.NoError(t, err)
	defer got.Release()
	assertSameRecord(t, rec, got)

	geo, ok, err := ReadGeoMetadata(got.Schema())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", geo.Version)
	assert.Equal(t, "geometry", geo.PrimaryColumn)
	col := geo.Columns["geometry"]
	require.NotNil(t, col)
	assert.Equal(t, "WKB", col.Encoding)
	assert.ElementsMatch(t, []string{"LineString", "Point"}, col.GeometryTypes)
	assert.Nil(t, col.CRS)
}

func TestParquet_CRS(t *testing.T) {
	rec := testRecord(t, "3857")
	path := filepath.Join(t.TempDir(), "roads.parquet")
	require.NoError(t, WriteFile(path, rec))

	got, err := ReadFile(context.Background(), path, nil)
	require.NoError(t, err)
	defer got.Release()

	geo, ok, err := ReadGeoMetadata(got.Schema())
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":{"authority":"EPSG","code":3857}}`, string(geo.Columns["geometry"].CRS))
}

func TestParquet_WKTHasNoGeoMetadata(t *testing.T) {
	features := []*frame.Feature{{Geometry: frame.OrbGeometry{Geometry: orb.Point{1, 2}}}}
	opts := frame.DefaultOptions()
	opts.GeometryFormat = frame.WKT
	rec, err := frame.Read(frame.NewSliceSource(features), opts)
	require.NoError(t, err)
	defer rec.Release()

	assert.Nil(t, geoMetadata(rec))
}
