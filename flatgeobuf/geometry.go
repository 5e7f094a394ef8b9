package flatgeobuf

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/tingold/gdalframe/frame"
)

var fgbGeometryTypes = map[frame.GeometryType]flattypes.GeometryType{
	frame.GeometryPoint:           flattypes.GeometryTypePoint,
	frame.GeometryLineString:      flattypes.GeometryTypeLineString,
	frame.GeometryPolygon:         flattypes.GeometryTypePolygon,
	frame.GeometryMultiPoint:      flattypes.GeometryTypeMultiPoint,
	frame.GeometryMultiLineString: flattypes.GeometryTypeMultiLineString,
	frame.GeometryMultiPolygon:    flattypes.GeometryTypeMultiPolygon,
	frame.GeometryCollection:      flattypes.GeometryTypeGeometryCollection,
}

// fgbGeometryType converts a layer geometry type to its FlatGeobuf counterpart.
func fgbGeometryType(t frame.GeometryType) flattypes.GeometryType {
	if gt, ok := fgbGeometryTypes[t]; ok {
		return gt
	}
	return flattypes.GeometryTypeUnknown
}

// geometryToFGB converts an orb.Geometry to a FlatGeobuf writer.Geometry.
func geometryToFGB(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	switch v := geom.(type) {
	case nil:
		return nil
	case orb.Ring:
		geom = orb.Polygon{v}
	case orb.Bound:
		geom = v.ToPolygon()
	}

	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(flatten(v))

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(flatten(v))

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		lines := make([][]orb.Point, len(v))
		for i, ls := range v {
			lines[i] = ls
		}
		xy, ends := flattenParts(lines)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonToXYEnds(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			if part := geometryToFGB(poly, builder); part != nil {
				parts = append(parts, *part)
			}
		}
		g.SetParts(parts)

	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			if part := geometryToFGB(child, builder); part != nil {
				parts = append(parts, *part)
			}
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

// flatten interleaves point coordinates as x0, y0, x1, y1, ...
func flatten[P ~[]orb.Point](points P) []float64 {
	xy := make([]float64, 0, len(points)*2)
	for _, p := range points {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// flattenParts flattens a list of point sequences and returns the running
// end offset (in points) of each sequence.
func flattenParts(parts [][]orb.Point) ([]float64, []uint32) {
	total := 0
	for _, part := range parts {
		total += len(part)
	}

	xy := make([]float64, 0, total*2)
	ends := make([]uint32, 0, len(parts))
	for _, part := range parts {
		for _, p := range part {
			xy = append(xy, p[0], p[1])
		}
		ends = append(ends, uint32(len(xy)/2))
	}
	return xy, ends
}

func polygonToXYEnds(poly orb.Polygon) ([]float64, []uint32) {
	rings := make([][]orb.Point, len(poly))
	for i, r := range poly {
		rings[i] = r
	}
	return flattenParts(rings)
}

// geometryFromFGB converts a FlatGeobuf flattypes.Geometry to an orb.Geometry.
// Unknown geometry types yield nil.
func geometryFromFGB(g *flattypes.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}

	switch g.Type() {
	case flattypes.GeometryTypePoint:
		if g.XyLength() < 2 {
			return nil
		}
		return orb.Point{g.Xy(0), g.Xy(1)}

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(pointsBetween(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeLineString:
		return orb.LineString(pointsBetween(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeMultiLineString:
		parts := splitEnds(g)
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls

	case flattypes.GeometryTypePolygon:
		return polygonFromFGB(g)

	case flattypes.GeometryTypeMultiPolygon:
		n := g.PartsLength()
		if n == 0 {
			// single-part multipolygons may be stored without parts
			if poly := polygonFromFGB(g); len(poly) > 0 {
				return orb.MultiPolygon{poly}
			}
			return orb.MultiPolygon{}
		}
		mp := make(orb.MultiPolygon, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if poly := polygonFromFGB(&part); len(poly) > 0 {
					mp = append(mp, poly)
				}
			}
		}
		return mp

	case flattypes.GeometryTypeGeometryCollection:
		n := g.PartsLength()
		coll := make(orb.Collection, 0, n)
		for i := 0; i < n; i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if child := geometryFromFGB(&part); child != nil {
					coll = append(coll, child)
				}
			}
		}
		return coll

	default:
		return nil
	}
}

func polygonFromFGB(g *flattypes.Geometry) orb.Polygon {
	parts := splitEnds(g)
	poly := make(orb.Polygon, len(parts))
	for i, p := range parts {
		poly[i] = orb.Ring(p)
	}
	return poly
}

// pointsBetween returns points [from, to) of g's coordinate array.
func pointsBetween(g *flattypes.Geometry, from, to int) []orb.Point {
	if n := g.XyLength() / 2; to > n {
		to = n
	}
	if from >= to {
		return []orb.Point{}
	}
	points := make([]orb.Point, 0, to-from)
	for i := from; i < to; i++ {
		points = append(points, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return points
}

// splitEnds splits g's coordinates at its ends array. Without ends all
// coordinates form a single part.
func splitEnds(g *flattypes.Geometry) [][]orb.Point {
	total := g.XyLength() / 2
	if total == 0 {
		return nil
	}
	n := g.EndsLength()
	if n == 0 {
		return [][]orb.Point{pointsBetween(g, 0, total)}
	}

	parts := make([][]orb.Point, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := int(g.Ends(i))
		parts = append(parts, pointsBetween(g, start, end))
		start = end
	}
	return parts
}
