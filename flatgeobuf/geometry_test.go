package flatgeobuf

import (
	"testing"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb"

	"github.com/tingold/gdalframe/frame"
)

func TestFGBGeometryType(t *testing.T) {
	tests := []struct {
		name     string
		geom     orb.Geometry
		expected flattypes.GeometryType
	}{
		{"Point", orb.Point{1, 2}, flattypes.GeometryTypePoint},
		{"MultiPoint", orb.MultiPoint{{1, 2}, {3, 4}}, flattypes.GeometryTypeMultiPoint},
		{"LineString", orb.LineString{{0, 0}, {1, 1}}, flattypes.GeometryTypeLineString},
		{"MultiLineString", orb.MultiLineString{{{0, 0}, {1, 1}}}, flattypes.GeometryTypeMultiLineString},
		{"Ring", orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 0}}, flattypes.GeometryTypePolygon},
		{"Polygon", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, flattypes.GeometryTypePolygon},
		{"MultiPolygon", orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}}, flattypes.GeometryTypeMultiPolygon},
		{"Collection", orb.Collection{orb.Point{1, 2}}, flattypes.GeometryTypeGeometryCollection},
		{"Bound", orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, flattypes.GeometryTypePolygon},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := fgbGeometryType(frame.GeometryTypeOf(tt.geom))
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}

	if got := fgbGeometryType(frame.GeometryNone); got != flattypes.GeometryTypeUnknown {
		t.Errorf("expected Unknown for no geometry, got %v", got)
	}
}

func TestGeometryToFGB(t *testing.T) {
	geoms := map[string]orb.Geometry{
		"Point":        orb.Point{1.5, 2.5},
		"LineString":   orb.LineString{{0, 0}, {1, 1}, {2, 2}},
		"Polygon":      orb.Polygon{{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}},
		"MultiPolygon": orb.MultiPolygon{{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}}, {{{5, 5}, {6, 5}, {6, 6}, {5, 5}}}},
		"Collection":   orb.Collection{orb.Point{1, 2}, orb.LineString{{0, 0}, {1, 1}}},
		"Bound":        orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}},
	}

	for name, g := range geoms {
		t.Run(name, func(t *testing.T) {
			if geometryToFGB(g, flatbuffers.NewBuilder(256)) == nil {
				t.Fatal("expected non-nil geometry")
			}
		})
	}
}

func TestGeometryToFGB_Nil(t *testing.T) {
	if geom := geometryToFGB(nil, flatbuffers.NewBuilder(256)); geom != nil {
		t.Error("expected nil geometry for nil input")
	}
}

func TestFlatten(t *testing.T) {
	ls := orb.LineString{{0, 1}, {2, 3}, {4, 5}}
	expected := []float64{0, 1, 2, 3, 4, 5}
	if diff := cmp.Diff(expected, flatten(ls)); diff != "" {
		t.Errorf("flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestPolygonToXYEnds(t *testing.T) {
	poly := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}, // exterior
		{{2, 2}, {4, 2}, {4, 4}, {2, 2}},              // hole
	}

	xy, ends := polygonToXYEnds(poly)

	// 5 + 4 points
	if len(xy) != 18 {
		t.Errorf("expected 18 coordinates, got %d", len(xy))
	}
	if diff := cmp.Diff([]uint32{5, 9}, ends); diff != "" {
		t.Errorf("ends mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenParts_Empty(t *testing.T) {
	xy, ends := flattenParts(nil)
	if len(xy) != 0 || len(ends) != 0 {
		t.Errorf("expected empty output, got %v %v", xy, ends)
	}
}

// TestGeometryRoundTrip writes each geometry to a FlatGeobuf buffer and reads it back.
func TestGeometryRoundTrip(t *testing.T) {
	geoms := []orb.Geometry{
		orb.Point{1.5, 2.5},
		orb.MultiPoint{{1, 2}, {3, 4}},
		orb.LineString{{0, 0}, {1, 1}, {2, 2}},
		orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}, {4, 4}}},
		orb.Polygon{
			{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
			{{2, 2}, {4, 2}, {4, 4}, {2, 2}},
		},
		orb.MultiPolygon{
			{{{0, 0}, {1, 0}, {1, 1}, {0, 0}}},
			{{{5, 5}, {6, 5}, {6, 6}, {5, 5}}},
		},
	}

	for _, g := range geoms {
		t.Run(g.GeoJSONType(), func(t *testing.T) {
			rec := geometryRecord(t, g)
			reader := writeBuffer(t, rec, nil)

			out, err := reader.ReadAll(frame.DefaultOptions())
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			defer out.Release()

			data := frame.GeometryAt(out.Column(0), 0)
			got, err := frame.Decode(data, frame.WKB)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if diff := cmp.Diff(g, got); diff != "" {
				t.Errorf("geometry mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
