package gdalframe

import (
	"fmt"
	"path"

	"github.com/airbusgeo/godal"
	"github.com/apache/arrow/go/v14/arrow"
	"go.uber.org/zap"

	"github.com/tingold/gdalframe/frame"
)

// FromResource reads one layer of the dataset at name into a record. name is
// anything GDAL can open: a file path, a /vsi path, an http(s) URL or a
// database connection string such as "PG:dbname=gis".
func FromResource(name string, p *ReadParams) (arrow.Record, error) {
	if p == nil {
		p = DefaultReadParams()
	}
	ds, err := open(name, p, true)
	if err != nil {
		return nil, err
	}
	defer closeDataset(ds, p.logger())

	return FromDataset(ds, p)
}

// FromBytes reads one layer of an in-memory dataset into a record.
// filenameHint helps GDAL pick a driver, for example "roads.shp.zip" for a
// zipped shapefile; it defaults to "layer". The buffer is served read-only
// and must not change until FromBytes returns.
func FromBytes(data []byte, filenameHint string, p *ReadParams) (arrow.Record, error) {
	if p == nil {
		p = DefaultReadParams()
	}
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	if p.Update {
		return nil, ErrUpdateNotSupported
	}
	if filenameHint == "" {
		filenameHint = defaultLayerName
	}

	register()
	if err := installBufferHandler(); err != nil {
		return nil, fmt.Errorf("gdalframe: install buffer handler: %w", err)
	}
	name, release := buffers.add(data, path.Base(filenameHint))
	defer release()

	ds, err := open(name, p, false)
	if err != nil {
		return nil, err
	}
	defer closeDataset(ds, p.logger())

	return FromDataset(ds, p)
}

// FromDataset reads the layer of ds selected by p into a record. When p
// carries a query or a FID column, the layer is first filtered by GDAL into
// an in-memory dataset.
func FromDataset(ds *godal.Dataset, p *ReadParams) (arrow.Record, error) {
	if p == nil {
		p = DefaultReadParams()
	}
	if p.FIDColumn != "" && p.Query.SQL != "" {
		return nil, ErrFIDWithSQL
	}

	layer, err := selectLayer(ds, p)
	if err != nil {
		return nil, err
	}
	name := layer.Name()

	if !p.needsTranslate() {
		return readLayer(layer, name, p, false)
	}

	out, err := translate(ds, name, p)
	if err != nil {
		return nil, err
	}
	defer closeDataset(out, p.logger())

	layers := out.Layers()
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: query of %q returned no layer", ErrLayerNotFound, name)
	}
	if p.Query.SQL != "" {
		name = layers[0].Name()
	}
	return readLayer(layers[0], name, p, p.FIDColumn != "")
}

// FromLayer reads every feature of a caller-owned layer into a record, for
// example the result of a SQL statement run with Dataset.VectorTranslate.
// Feature ids and queries need the dataset and are rejected here.
func FromLayer(layer godal.Layer, p *ReadParams) (arrow.Record, error) {
	if p == nil {
		p = DefaultReadParams()
	}
	if p.FIDColumn != "" {
		return nil, ErrFIDUnavailable
	}
	if !p.Query.empty() {
		return nil, ErrQueryUnavailable
	}
	return readLayer(layer, layer.Name(), p, false)
}

// ListLayers describes every layer of the dataset at name. Feature counts
// are only taken when p.CountFeatures is set.
func ListLayers(name string, p *ReadParams) ([]LayerInfo, error) {
	if p == nil {
		p = DefaultReadParams()
	}
	ds, err := open(name, p, true)
	if err != nil {
		return nil, err
	}
	defer closeDataset(ds, p.logger())

	layers := ds.Layers()
	infos := make([]LayerInfo, 0, len(layers))
	for _, l := range layers {
		info := LayerInfo{Name: l.Name(), FeatureCount: -1}
		if p.CountFeatures {
			if n, err := l.FeatureCount(godal.ErrLogger(errorHandler(p.logger()))); err == nil {
				info.FeatureCount = n
			}
		}
		sr := l.SpatialRef()
		if info.WKT = srsMetadata(sr)[frame.MetaCRSWKT]; info.WKT != "" {
			info.EPSG = epsgCode(sr)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func open(name string, p *ReadParams, findSiblings bool) (*godal.Dataset, error) {
	register()

	opts := []godal.OpenOption{
		godal.VectorOnly(),
		godal.ErrLogger(errorHandler(p.logger())),
	}
	if len(p.Drivers) > 0 {
		opts = append(opts, godal.Drivers(p.Drivers...))
	}
	if len(p.OpenOptions) > 0 {
		opts = append(opts, godal.DriverOpenOption(p.OpenOptions...))
	}
	if len(p.SiblingFiles) > 0 || findSiblings {
		opts = append(opts, godal.SiblingFiles(p.SiblingFiles...))
	}
	if len(p.ConfigOptions) > 0 {
		opts = append(opts, godal.ConfigOption(p.ConfigOptions...))
	}
	if p.Update {
		opts = append(opts, godal.Update())
	}

	ds, err := godal.Open(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("gdalframe: open %s: %w", name, err)
	}
	p.logger().Debug("opened dataset", zap.String("name", name), zap.Int("layers", len(ds.Layers())))
	return ds, nil
}

func selectLayer(ds *godal.Dataset, p *ReadParams) (godal.Layer, error) {
	if p.LayerName != "" {
		l := ds.LayerByName(p.LayerName)
		if l == nil {
			return godal.Layer{}, fmt.Errorf("%w: %q", ErrLayerNotFound, p.LayerName)
		}
		return *l, nil
	}
	layers := ds.Layers()
	if p.LayerIndex < 0 || p.LayerIndex >= len(layers) {
		return godal.Layer{}, fmt.Errorf("%w: index %d of %d layers", ErrLayerNotFound, p.LayerIndex, len(layers))
	}
	return layers[p.LayerIndex], nil
}

func readLayer(layer godal.Layer, name string, p *ReadParams, withFID bool) (arrow.Record, error) {
	opts := p.frameOptions()
	opts.Metadata = srsMetadata(layer.SpatialRef())
	if name != "" {
		opts.Metadata[frame.MetaLayer] = name
	}

	src := newLayerSource(layer, withFID)
	defer src.close()

	rec, err := frame.Read(src, opts)
	if err != nil {
		return nil, err
	}
	p.logger().Debug("read layer",
		zap.String("layer", name),
		zap.Int64("rows", rec.NumRows()),
		zap.Int64("columns", rec.NumCols()))
	return rec, nil
}

func closeDataset(ds *godal.Dataset, logger *zap.Logger) {
	if err := ds.Close(); err != nil {
		logger.Warn("close dataset", zap.Error(err))
	}
}
