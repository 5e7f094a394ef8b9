package arrowio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/tingold/gdalframe/frame"
)

// GeoKey is the Parquet key-value metadata key holding GeoParquet metadata.
const GeoKey = "geo"

const geoParquetVersion = "1.0.0"

// GeoMetadata is the GeoParquet file metadata.
type GeoMetadata struct {
	Version       string                     `json:"version"`
	PrimaryColumn string                     `json:"primary_column"`
	Columns       map[string]*GeoColumnMeta `json:"columns"`
}

// GeoColumnMeta describes one geometry column.
type GeoColumnMeta struct {
	Encoding      string          `json:"encoding"`
	GeometryTypes []string        `json:"geometry_types"`
	CRS           json.RawMessage `json:"crs,omitempty"`
}

// ParquetOptions configures Parquet output.
type ParquetOptions struct {
	Compression compress.Compression
	RowGroupLen int64
}

// DefaultParquetOptions returns snappy compression with the library's row
// group length.
func DefaultParquetOptions() *ParquetOptions {
	return &ParquetOptions{
		Compression: compress.Codecs.Snappy,
		RowGroupLen: parquet.DefaultMaxRowGroupLen,
	}
}

// geoMetadata builds GeoParquet metadata for a WKB geometry column of rec.
// It returns nil when rec carries no WKB geometry column.
func geoMetadata(rec arrow.Record) *GeoMetadata {
	schema := rec.Schema()
	column, ok := frame.SchemaMetadata(schema, frame.MetaGeometryColumn)
	if !ok {
		column = frame.DefaultGeometryColumn
	}
	idx, err := frame.GeometryColumnIndex(rec, column, frame.WKB)
	if err != nil {
		return nil
	}

	col := &GeoColumnMeta{Encoding: "WKB", GeometryTypes: []string{}}
	seen := map[frame.GeometryType]bool{}
	arr := rec.Column(idx)
	for row := 0; row < arr.Len(); row++ {
		data := frame.GeometryAt(arr, row)
		if data == nil {
			continue
		}
		g, err := frame.Decode(data, frame.WKB)
		if err != nil {
			continue
		}
		if t := frame.GeometryTypeOf(g); t != frame.GeometryUnknown && !seen[t] {
			seen[t] = true
			col.GeometryTypes = append(col.GeometryTypes, t.String())
		}
	}

	// GeoParquet defaults to OGC:CRS84; other CRSs are given by identifier.
	if code := frame.EPSG(schema); code > 0 && code != 4326 {
		col.CRS, _ = json.Marshal(map[string]interface{}{
			"id": map[string]interface{}{"authority": "EPSG", "code": code},
		})
	}

	return &GeoMetadata{
		Version:       geoParquetVersion,
		PrimaryColumn: column,
		Columns:       map[string]*GeoColumnMeta{column: col},
	}
}

// WriteParquet writes rec as a Parquet file. A WKB geometry column is
// described with GeoParquet metadata. w is closed when it is an io.Closer.
func WriteParquet(w io.Writer, rec arrow.Record, opts *ParquetOptions) error {
	if opts == nil {
		opts = DefaultParquetOptions()
	}

	schema := rec.Schema()
	if geo := geoMetadata(rec); geo != nil {
		b, err := json.Marshal(geo)
		if err != nil {
			return fmt.Errorf("arrowio: geo metadata: %w", err)
		}
		var keys, values []string
		old := schema.Metadata()
		for i, k := range old.Keys() {
			if k != GeoKey {
				keys = append(keys, k)
				values = append(values, old.Values()[i])
			}
		}
		md := arrow.NewMetadata(append(keys, GeoKey), append(values, string(b)))
		schema = arrow.NewSchema(schema.Fields(), &md)
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(opts.Compression),
		parquet.WithMaxRowGroupLength(opts.RowGroupLen),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	fw, err := pqarrow.NewFileWriter(schema, w, props, arrowProps)
	if err != nil {
		return fmt.Errorf("arrowio: %w", err)
	}
	out := array.NewRecord(schema, rec.Columns(), rec.NumRows())
	defer out.Release()
	if err := fw.Write(out); err != nil {
		fw.Close()
		return fmt.Errorf("arrowio: write row group: %w", err)
	}
	return fw.Close()
}

// ReadParquet reads a Parquet file into one record.
func ReadParquet(ctx context.Context, r parquet.ReaderAtSeeker, mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	pf, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("arrowio: %w", err)
	}
	defer pf.Close()

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("arrowio: %w", err)
	}
	tbl, err := fr.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("arrowio: read table: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	cols := make([]arrow.Array, schema.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()
	for i := range cols {
		chunks := tbl.Column(i).Data().Chunks()
		if len(chunks) == 0 {
			cols[i] = array.MakeArrayOfNull(mem, schema.Field(i).Type, 0)
			continue
		}
		c, err := array.Concatenate(chunks, mem)
		if err != nil {
			return nil, fmt.Errorf("arrowio: column %q: %w", schema.Field(i).Name, err)
		}
		cols[i] = c
	}
	return array.NewRecord(schema, cols, tbl.NumRows()), nil
}

// ReadGeoMetadata returns the GeoParquet metadata recorded in schema.
func ReadGeoMetadata(schema *arrow.Schema) (*GeoMetadata, bool, error) {
	raw, ok := frame.SchemaMetadata(schema, GeoKey)
	if !ok {
		return nil, false, nil
	}
	var md GeoMetadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, true, fmt.Errorf("arrowio: geo metadata: %w", err)
	}
	return &md, true, nil
}
