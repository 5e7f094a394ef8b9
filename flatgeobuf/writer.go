package flatgeobuf

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"

	"github.com/tingold/gdalframe/frame"
)

// WriteRecord writes the rows of rec to w as a FlatGeobuf layer. Attribute
// columns keep their record order; columns with no FlatGeobuf mapping are
// left out. Rows without a geometry are skipped.
//
// The layer geometry type is the type shared by every row, or Unknown when
// rows differ.
func WriteRecord(w io.Writer, rec arrow.Record, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	geomIdx, err := frame.GeometryColumnIndex(rec, opts.GeometryColumn, opts.GeometryFormat)
	if err != nil {
		return err
	}

	geometries, err := decodeGeometries(rec.Column(geomIdx), opts.GeometryFormat)
	if err != nil {
		return err
	}

	geomType := flattypes.GeometryTypeUnknown
	for _, g := range geometries {
		if g == nil {
			continue
		}
		t := fgbGeometryType(frame.GeometryTypeOf(g))
		if geomType == flattypes.GeometryTypeUnknown {
			geomType = t
		} else if t != geomType {
			geomType = flattypes.GeometryTypeUnknown
			break
		}
	}
	if geomType == flattypes.GeometryTypeUnknown && !hasGeometry(geometries) {
		return ErrNilGeometry
	}

	fields, _ := frame.FieldColumns(rec.Schema(), opts.GeometryColumn, opts.FIDColumn)
	props := make([]property, len(fields))
	for i, f := range fields {
		props[i] = property{ColumnField: f, colType: columnTypeOf(f.Type)}
	}

	crs := opts.CRS
	if crs == nil {
		crs = crsFromSchema(rec.Schema())
	}

	gen := &recordGenerator{
		rec:        rec,
		geometries: geometries,
		props:      props,
	}

	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(geomType)

	if opts.Name != "" {
		header.SetName(opts.Name)
	} else if name, ok := frame.SchemaMetadata(rec.Schema(), frame.MetaLayer); ok {
		header.SetName(name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}
	if len(props) > 0 {
		header.SetColumns(newColumns(props, builder))
	}

	if crs != nil {
		c := writer.NewCrs(builder)
		c.SetOrg("EPSG")
		if crs.Code > 0 {
			c.SetCode(int32(crs.Code))
		}
		if crs.Name != "" {
			c.SetName(crs.Name)
		}
		if crs.Description != "" {
			c.SetDescription(crs.Description)
		} else if crs.WKT != "" {
			c.SetDescription(crs.WKT)
		}
		header.SetCrs(c)
	}

	fgbWriter := writer.NewWriter(header, opts.IncludeIndex, gen, nil)
	if _, err := fgbWriter.Write(w); err != nil {
		return err
	}
	return gen.err
}

func decodeGeometries(arr arrow.Array, format frame.GeometryFormat) ([]orb.Geometry, error) {
	geometries := make([]orb.Geometry, arr.Len())
	for row := range geometries {
		data := frame.GeometryAt(arr, row)
		if data == nil {
			continue
		}
		g, err := frame.Decode(data, format)
		if err != nil {
			return nil, fmt.Errorf("flatgeobuf: decode geometry of row %d: %w", row, err)
		}
		geometries[row] = g
	}
	return geometries, nil
}

func hasGeometry(geometries []orb.Geometry) bool {
	for _, g := range geometries {
		if g != nil {
			return true
		}
	}
	return false
}

func crsFromSchema(schema *arrow.Schema) *CRS {
	code := frame.EPSG(schema)
	wkt, _ := frame.SchemaMetadata(schema, frame.MetaCRSWKT)
	if code == 0 && wkt == "" {
		return nil
	}
	return &CRS{Code: code, WKT: wkt}
}

// recordGenerator generates one FlatGeobuf feature per record row.
type recordGenerator struct {
	rec        arrow.Record
	geometries []orb.Geometry
	props      []property
	row        int
	err        error
}

func (g *recordGenerator) Generate() *writer.Feature {
	for g.err == nil && g.row < len(g.geometries) {
		row := g.row
		g.row++

		geom := g.geometries[row]
		if geom == nil {
			continue
		}

		builder := flatbuffers.NewBuilder(1024)
		fgbGeom := geometryToFGB(geom, builder)
		if fgbGeom == nil {
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(fgbGeom)

		if len(g.props) > 0 {
			values := make([]frame.Value, len(g.props))
			for i, p := range g.props {
				v, err := frame.ValueAt(g.rec.Column(p.Index), row, p.Type)
				if err != nil {
					g.err = fmt.Errorf("flatgeobuf: column %q row %d: %w", p.Name, row, err)
					return nil
				}
				values[i] = v
			}
			if propBytes := encodeProperties(values, g.props); len(propBytes) > 0 {
				feature.SetProperties(propBytes)
			}
		}

		return feature
	}
	return nil
}
