package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/tingold/gdalframe"
	"github.com/tingold/gdalframe/frame"
)

// driverExtensions maps GDAL vector driver short names to the extension of
// the files they write.
var driverExtensions = map[string]string{
	"GPKG":           ".gpkg",
	"GeoJSON":        ".geojson",
	"GeoJSONSeq":     ".geojsonl",
	"ESRI Shapefile": ".shp",
	"FlatGeobuf":     ".fgb",
	"CSV":            ".csv",
	"KML":            ".kml",
	"GML":            ".gml",
	"SQLite":         ".sqlite",
	"Parquet":        ".parquet",
	"Arrow":          ".arrow",
	"MapInfo File":   ".tab",
}

func driverExtension(driver string) (string, error) {
	for name, ext := range driverExtensions {
		if strings.EqualFold(name, driver) {
			return ext, nil
		}
	}
	return "", fmt.Errorf("no known file extension for driver %q; set --ext", driver)
}

func addFrameFlags(cmd *cobra.Command) {
	cmd.Flags().String("fid", "", "Feature id column")
	cmd.Flags().String("geometry-column", "", "Geometry column name (default: geometry)")
	cmd.Flags().String("geometry-format", "", "Geometry encoding: wkb, wkt or geojson (default: wkb)")
}

func addReadFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("if", nil, "Allowed input GDAL drivers")
	cmd.Flags().StringSlice("oo", nil, "Driver open options, KEY=value")
	cmd.Flags().StringSlice("config-option", nil, "GDAL config options, KEY=value")
	cmd.Flags().String("layer", "", "Layer name")
	cmd.Flags().Int("layer-index", 0, "Layer index, when no name is given")
	cmd.Flags().Int("limit", 0, "Read at most this many features")
	cmd.Flags().Int("max-features", 0, "Fail when more features would be read")
	cmd.Flags().Int("offset", 0, "Skip this many features")
	cmd.Flags().String("where", "", "Attribute filter")
	cmd.Flags().String("sql", "", "SQL statement replacing the layer selection")
	cmd.Flags().String("dialect", "", "SQL dialect: OGRSQL, SQLITE or INDIRECT_SQLITE")
	cmd.Flags().String("bbox", "", "Spatial filter minx,miny,maxx,maxy")
}

func addWriteFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "", "Output GDAL driver (default from config: GPKG)")
	cmd.Flags().String("layer-name", "", "Output layer name (default: layer)")
	cmd.Flags().Int("epsg", 0, "Output CRS as an EPSG code (default: CRS of the record)")
	cmd.Flags().StringSlice("dsco", nil, "Dataset creation options, KEY=value")
	cmd.Flags().StringSlice("lco", nil, "Layer creation options, KEY=value")
}

func changedString(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func changedInt(cmd *cobra.Command, name string, dst *int) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetInt(name)
	}
}

func changedSlice(cmd *cobra.Command, name string, dst *[]string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetStringSlice(name)
	}
}

// frameFlags returns the geometry and FID settings shared by reads and writes.
func frameFlags(cmd *cobra.Command) (fid, column string, format frame.GeometryFormat, err error) {
	fid = cfg.Read.FIDColumn
	column = cfg.Read.GeometryColumn
	format = cfg.Read.GeometryFormat

	changedString(cmd, "fid", &fid)
	changedString(cmd, "geometry-column", &column)
	if cmd.Flags().Changed("geometry-format") {
		s, _ := cmd.Flags().GetString("geometry-format")
		if format, err = frame.ParseGeometryFormat(s); err != nil {
			return "", "", format, err
		}
	}
	if column == "" {
		column = frame.DefaultGeometryColumn
	}
	return fid, column, format, nil
}

func readParams(cmd *cobra.Command) (*gdalframe.ReadParams, error) {
	c := cfg.Read
	p := gdalframe.DefaultReadParams()
	p.Drivers = c.Drivers
	p.OpenOptions = c.OpenOptions
	p.ConfigOptions = c.ConfigOptions
	p.LayerName = c.Layer
	p.Limit = c.Limit
	p.MaxFeatures = c.MaxFeatures
	p.Offset = c.Offset
	p.Logger = logger

	var err error
	if p.FIDColumn, p.GeometryColumn, p.GeometryFormat, err = frameFlags(cmd); err != nil {
		return nil, err
	}

	changedSlice(cmd, "if", &p.Drivers)
	changedSlice(cmd, "oo", &p.OpenOptions)
	changedSlice(cmd, "config-option", &p.ConfigOptions)
	changedString(cmd, "layer", &p.LayerName)
	changedInt(cmd, "layer-index", &p.LayerIndex)
	changedInt(cmd, "limit", &p.Limit)
	changedInt(cmd, "max-features", &p.MaxFeatures)
	changedInt(cmd, "offset", &p.Offset)
	changedString(cmd, "where", &p.Query.Where)
	changedString(cmd, "sql", &p.Query.SQL)
	changedString(cmd, "dialect", &p.Query.Dialect)

	if cmd.Flags().Changed("bbox") {
		s, _ := cmd.Flags().GetString("bbox")
		if p.Query.Bounds, err = parseBounds(s); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// writeParams returns the write parameters and the output driver name.
func writeParams(cmd *cobra.Command) (*gdalframe.WriteParams, string, error) {
	c := cfg.Write
	p := gdalframe.DefaultWriteParams()
	p.LayerName = c.LayerName
	p.CreationOptions = c.CreationOptions
	p.LayerOptions = c.LayerOptions
	p.Logger = logger

	var err error
	if p.FIDColumn, p.GeometryColumn, p.GeometryFormat, err = frameFlags(cmd); err != nil {
		return nil, "", err
	}

	epsg := c.EPSG
	driver := c.Driver
	changedString(cmd, "layer-name", &p.LayerName)
	changedSlice(cmd, "dsco", &p.CreationOptions)
	changedSlice(cmd, "lco", &p.LayerOptions)
	changedInt(cmd, "epsg", &epsg)
	changedString(cmd, "format", &driver)
	if epsg > 0 {
		p.CRS = &gdalframe.CRS{Code: epsg}
	}
	if driver == "" {
		return nil, "", fmt.Errorf("no output driver; set --format")
	}
	return p, driver, nil
}

// parseBounds parses "minx,miny,maxx,maxy".
func parseBounds(s string) (*orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("bbox %q: want minx,miny,maxx,maxy", s)
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("bbox %q: %w", s, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return nil, fmt.Errorf("bbox %q: min is greater than max", s)
	}
	return &orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
