package frame

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// Geometry is a feature geometry that can be encoded in every supported
// format. GDAL geometries and orb geometries both satisfy it.
type Geometry interface {
	Empty() bool
	WKB() ([]byte, error)
	WKT() (string, error)
	GeoJSON() (string, error)
}

// OrbGeometry adapts an orb.Geometry to Geometry.
type OrbGeometry struct {
	orb.Geometry
}

// Empty reports whether the geometry has no coordinates.
func (g OrbGeometry) Empty() bool {
	return isEmptyOrb(g.Geometry)
}

func (g OrbGeometry) WKB() ([]byte, error) {
	return wkb.Marshal(g.Geometry)
}

func (g OrbGeometry) WKT() (string, error) {
	return wkt.MarshalString(g.Geometry), nil
}

func (g OrbGeometry) GeoJSON() (string, error) {
	b, err := geojson.NewGeometry(g.Geometry).MarshalJSON()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isEmptyOrb(g orb.Geometry) bool {
	switch v := g.(type) {
	case nil:
		return true
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Ring:
		return len(v) == 0
	case orb.Polygon:
		return len(v) == 0 || len(v[0]) == 0
	case orb.MultiPolygon:
		for _, p := range v {
			if !isEmptyOrb(p) {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range v {
			if !isEmptyOrb(c) {
				return false
			}
		}
		return true
	case orb.Bound:
		return false
	}
	return true
}

// Encode renders g in the given format. WKB yields raw bytes, the text
// formats yield UTF-8.
func Encode(g Geometry, format GeometryFormat) ([]byte, error) {
	switch format {
	case WKB:
		return g.WKB()
	case WKT:
		s, err := g.WKT()
		return []byte(s), err
	case GeoJSON:
		s, err := g.GeoJSON()
		return []byte(s), err
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
}

// Decode parses an encoded geometry cell into an orb.Geometry.
func Decode(data []byte, format GeometryFormat) (orb.Geometry, error) {
	switch format {
	case WKB:
		return wkb.Unmarshal(data)
	case WKT:
		return wkt.Unmarshal(string(data))
	case GeoJSON:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		return g.Geometry(), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownFormat, format)
}

// GeometryType is the layer geometry type.
type GeometryType int

const (
	GeometryUnknown GeometryType = iota
	GeometryPoint
	GeometryLineString
	GeometryPolygon
	GeometryMultiPoint
	GeometryMultiLineString
	GeometryMultiPolygon
	GeometryCollection
	GeometryNone
)

var geometryTypeNames = []string{
	GeometryUnknown:         "Unknown",
	GeometryPoint:           "Point",
	GeometryLineString:      "LineString",
	GeometryPolygon:         "Polygon",
	GeometryMultiPoint:      "MultiPoint",
	GeometryMultiLineString: "MultiLineString",
	GeometryMultiPolygon:    "MultiPolygon",
	GeometryCollection:      "GeometryCollection",
	GeometryNone:            "None",
}

func (t GeometryType) String() string {
	if t >= 0 && int(t) < len(geometryTypeNames) {
		return geometryTypeNames[t]
	}
	return fmt.Sprintf("GeometryType(%d)", int(t))
}

// ParseGeometryType parses a geometry type name such as "MultiPolygon".
func ParseGeometryType(s string) (GeometryType, error) {
	for i, name := range geometryTypeNames {
		if strings.EqualFold(name, s) {
			return GeometryType(i), nil
		}
	}
	return GeometryUnknown, fmt.Errorf("frame: unknown geometry type %q", s)
}

// GeometryTypeOf returns the layer geometry type matching g.
func GeometryTypeOf(g orb.Geometry) GeometryType {
	if g == nil {
		return GeometryUnknown
	}
	switch g.GeoJSONType() {
	case geojson.TypePoint:
		return GeometryPoint
	case geojson.TypeLineString:
		return GeometryLineString
	case geojson.TypePolygon:
		return GeometryPolygon
	case geojson.TypeMultiPoint:
		return GeometryMultiPoint
	case geojson.TypeMultiLineString:
		return GeometryMultiLineString
	case geojson.TypeMultiPolygon:
		return GeometryMultiPolygon
	case orb.Collection{}.GeoJSONType():
		return GeometryCollection
	}
	return GeometryUnknown
}
