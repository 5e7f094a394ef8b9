package flatgeobuf

import (
	"io"
	"math"
	"strconv"

	"github.com/apache/arrow/go/v14/arrow"
	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"

	"github.com/tingold/gdalframe/frame"
)

// Reader provides read access to a FlatGeobuf file.
type Reader struct {
	fgb *flatgeobuf.FlatGeoBuf
}

// NewReader creates a reader from a file path.
// The file is memory-mapped for efficient access.
func NewReader(path string) (*Reader, error) {
	fgb, err := flatgeobuf.New(path)
	if err != nil {
		return nil, err
	}

	return &Reader{fgb: fgb}, nil
}

// NewReaderFromData creates a reader from byte data.
func NewReaderFromData(data []byte) (*Reader, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, err
	}

	return &Reader{fgb: fgb}, nil
}

// Header returns metadata about the FlatGeobuf file.
func (r *Reader) Header() *Header {
	h := r.fgb.Header()
	if h == nil {
		return nil
	}

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}

	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)}
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
			WKT:         string(crs.Wkt()),
		}
	}

	colLen := h.ColumnsLength()
	if colLen > 0 {
		header.Columns = make([]ColumnInfo, 0, colLen)
		for i := 0; i < colLen; i++ {
			var col flattypes.Column
			if h.Columns(&col, i) {
				header.Columns = append(header.Columns, ColumnInfo{
					Name:        string(col.Name()),
					Type:        flattypes.EnumNamesColumnType[col.Type()],
					Title:       string(col.Title()),
					Description: string(col.Description()),
					Nullable:    col.Nullable(),
				})
			}
		}
	}

	return header
}

// ReadAll reads every feature into a record. The official Go library only
// iterates features through the packed R-tree, so files without an index
// yield ErrNoIndex.
func (r *Reader) ReadAll(opts frame.Options) (arrow.Record, error) {
	h := r.fgb.Header()

	bounds := orb.Bound{
		Min: orb.Point{-math.MaxFloat64, -math.MaxFloat64},
		Max: orb.Point{math.MaxFloat64, math.MaxFloat64},
	}
	if h.EnvelopeLength() >= 4 {
		bounds = orb.Bound{
			Min: orb.Point{h.Envelope(0), h.Envelope(1)},
			Max: orb.Point{h.Envelope(2), h.Envelope(3)},
		}
	}

	return r.Search(bounds, opts)
}

// Search performs a spatial query using the built-in index and returns the
// features whose bounding boxes intersect bounds.
func (r *Reader) Search(bounds orb.Bound, opts frame.Options) (arrow.Record, error) {
	h := r.fgb.Header()

	// Writers leave the feature count at zero when they skip the index.
	if h.IndexNodeSize() == 0 {
		return nil, ErrNoIndex
	}

	var features []*flattypes.Feature
	if h.FeaturesCount() > 0 {
		var err error
		features, err = r.fgb.Search(bounds.Min[0], bounds.Min[1], bounds.Max[0], bounds.Max[1])
		if err != nil {
			return nil, err
		}
	}

	opts.Metadata = r.metadata(opts.Metadata)
	return frame.Read(&featureSource{features: features, header: h}, opts)
}

// metadata adds the layer name and CRS to the caller's schema metadata.
func (r *Reader) metadata(extra map[string]string) map[string]string {
	md := make(map[string]string, len(extra)+3)
	for k, v := range extra {
		md[k] = v
	}

	header := r.Header()
	if header.Name != "" {
		md[frame.MetaLayer] = header.Name
	}
	if header.CRS != nil {
		if header.CRS.Code > 0 {
			md[frame.MetaCRSEPSG] = strconv.Itoa(header.CRS.Code)
		}
		if header.CRS.WKT != "" {
			md[frame.MetaCRSWKT] = header.CRS.WKT
		}
	}
	return md
}

// Close releases resources associated with the reader.
func (r *Reader) Close() error {
	// The FlatGeoBuf type doesn't expose a public Close method,
	// but the finalizer will clean up when garbage collected.
	r.fgb = nil
	return nil
}

// featureSource adapts decoded FlatGeobuf features to frame.Source. The
// index of a feature in the search result stands in for its FID.
type featureSource struct {
	features []*flattypes.Feature
	header   *flattypes.Header
	index    int
}

func (s *featureSource) Next() (*frame.Feature, error) {
	for s.index < len(s.features) {
		fgbFeature := s.features[s.index]
		s.index++
		if fgbFeature == nil {
			continue
		}
		return s.convert(fgbFeature, int64(s.index-1)), nil
	}
	return nil, io.EOF
}

func (s *featureSource) Count() (int, bool) { return len(s.features), true }

func (s *featureSource) convert(fgbFeature *flattypes.Feature, fid int64) *frame.Feature {
	f := &frame.Feature{FID: fid, HasFID: true}

	var geomObj flattypes.Geometry
	if geom := fgbFeature.Geometry(&geomObj); geom != nil {
		if g := geometryFromFGB(geom); g != nil {
			f.Geometry = frame.OrbGeometry{Geometry: g}
		}
	}

	if s.header.ColumnsLength() > 0 {
		f.Fields = decodeProperties(fgbFeature.PropertiesBytes(), s.header)
	}

	return f
}
