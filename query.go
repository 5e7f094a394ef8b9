package gdalframe

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// needsTranslate reports whether a dataset read has to go through ogr2ogr.
func (p *ReadParams) needsTranslate() bool {
	return !p.Query.empty() || p.FIDColumn != ""
}

// translateSwitches builds the ogr2ogr switches selecting the queried
// features of layer.
func translateSwitches(layer string, p *ReadParams) ([]string, error) {
	var switches []string
	q := p.Query
	if q.SQL != "" && q.Where != "" {
		return nil, ErrWhereWithSQL
	}

	switch {
	case q.SQL != "":
		switches = append(switches, "-sql", q.SQL)
		if q.Dialect != "" {
			switches = append(switches, "-dialect", q.Dialect)
		}
	case p.FIDColumn != "":
		// FID is an OGR SQL special field; other dialects do not expose it
		stmt := fmt.Sprintf(`SELECT FID AS "%s", * FROM "%s"`, fidAlias, quoteIdent(layer))
		if q.Where != "" {
			stmt += " WHERE " + q.Where
		}
		switches = append(switches, "-sql", stmt, "-dialect", DialectOGRSQL)
	default:
		if q.Where != "" {
			switches = append(switches, "-where", q.Where)
		}
		if q.Dialect != "" {
			switches = append(switches, "-dialect", q.Dialect)
		}
	}

	if b := q.Bounds; b != nil {
		switches = append(switches, "-spat",
			formatFloat(b.Min[0]), formatFloat(b.Min[1]),
			formatFloat(b.Max[0]), formatFloat(b.Max[1]))
	}

	if q.SQL == "" && p.FIDColumn == "" {
		switches = append(switches, layer)
	}
	return switches, nil
}

func quoteIdent(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// translate runs the query of p against layer into an in-memory dataset.
// The caller closes the result.
func translate(ds *godal.Dataset, layer string, p *ReadParams) (*godal.Dataset, error) {
	switches, err := translateSwitches(layer, p)
	if err != nil {
		return nil, err
	}
	p.logger().Debug("running ogr2ogr",
		zap.String("layer", layer),
		zap.Strings("switches", switches))

	opts := []godal.DatasetVectorTranslateOption{
		godal.Memory,
		godal.ErrLogger(errorHandler(p.logger())),
	}
	if len(p.ConfigOptions) > 0 {
		opts = append(opts, godal.ConfigOption(p.ConfigOptions...))
	}

	out, err := ds.VectorTranslate(memPath("query"), switches, opts...)
	if err != nil {
		return nil, fmt.Errorf("gdalframe: query layer %q: %w", layer, err)
	}
	return out, nil
}
