package gdalframe

import (
	"fmt"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/apache/arrow/go/v14/arrow"

	"github.com/tingold/gdalframe/frame"
)

// srsMetadata describes sr as schema metadata. A layer without a spatial
// reference yields no entries.
func srsMetadata(sr *godal.SpatialRef) map[string]string {
	md := map[string]string{}
	if sr == nil {
		return md
	}
	wkt, err := sr.WKT()
	if err != nil || wkt == "" {
		return md
	}
	md[frame.MetaCRSWKT] = wkt
	if code := epsgCode(sr); code > 0 {
		md[frame.MetaCRSEPSG] = strconv.Itoa(code)
	}
	return md
}

func epsgCode(sr *godal.SpatialRef) int {
	if sr.AuthorityName("") != "EPSG" {
		return 0
	}
	code, err := strconv.Atoi(sr.AuthorityCode(""))
	if err != nil {
		return 0
	}
	return code
}

// spatialRef builds the spatial reference of a written layer from crs, or
// from the CRS recorded in schema when crs is nil. It returns nil when
// neither names one. The caller closes the result.
func spatialRef(crs *CRS, schema *arrow.Schema) (*godal.SpatialRef, error) {
	if crs == nil {
		code := frame.EPSG(schema)
		wkt, _ := frame.SchemaMetadata(schema, frame.MetaCRSWKT)
		if code == 0 && wkt == "" {
			return nil, nil
		}
		crs = &CRS{Code: code, WKT: wkt}
	}

	switch {
	case crs.Code > 0:
		sr, err := godal.NewSpatialRefFromEPSG(crs.Code)
		if err != nil {
			return nil, fmt.Errorf("gdalframe: EPSG:%d: %w", crs.Code, err)
		}
		return sr, nil
	case crs.WKT != "":
		sr, err := godal.NewSpatialRefFromWKT(crs.WKT)
		if err != nil {
			return nil, fmt.Errorf("gdalframe: parse CRS WKT: %w", err)
		}
		return sr, nil
	}
	return nil, nil
}
