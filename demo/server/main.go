package main

import (
	"bytes"
	"flag"
	"net/http"
	"path/filepath"

	"github.com/airbusgeo/godal"
	"github.com/apache/arrow/go/v14/arrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/tingold/gdalframe"
	"github.com/tingold/gdalframe/flatgeobuf"
	"github.com/tingold/gdalframe/internal/arrowio"
)

type City struct {
	Name       string
	Country    string
	Longitude  float64
	Latitude   float64
	Population int
	Capital    bool
}

var cities = []City{
	{"Tokyo", "Japan", 139.6917, 35.6895, 13960000, true},
	{"New York", "United States", -73.9857, 40.7484, 8336817, false},
	{"London", "United Kingdom", -0.1276, 51.5074, 8982000, true},
	{"Paris", "France", 2.3522, 48.8566, 2161000, true},
	{"Beijing", "China", 116.4074, 39.9042, 21540000, true},
	{"Moscow", "Russia", 37.6173, 55.7558, 12615000, true},
	{"São Paulo", "Brazil", -46.6333, -23.5505, 12300000, false},
	{"Mumbai", "India", 72.8777, 19.0760, 12400000, false},
	{"Los Angeles", "United States", -118.2437, 34.0522, 3971883, false},
	{"Shanghai", "China", 121.4737, 31.2304, 24870000, false},
	{"Istanbul", "Turkey", 28.9784, 41.0082, 15520000, false},
	{"Buenos Aires", "Argentina", -58.3816, -34.6037, 3075646, true},
	{"Cairo", "Egypt", 31.2357, 30.0444, 10230000, true},
	{"Sydney", "Australia", 151.2093, -33.8688, 5312000, false},
	{"Berlin", "Germany", 13.4050, 52.5200, 3669491, true},
}

// citiesGeoJSON is the built-in dataset served when no resource is given.
func citiesGeoJSON() ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, city := range cities {
		f := geojson.NewFeature(orb.Point{city.Longitude, city.Latitude})
		f.Properties = geojson.Properties{
			"name":       city.Name,
			"country":    city.Country,
			"population": city.Population,
			"capital":    city.Capital,
		}
		fc.Append(f)
	}
	return fc.MarshalJSON()
}

func loadRecord(resource string, p *gdalframe.ReadParams) (arrow.Record, error) {
	if resource != "" {
		return gdalframe.FromResource(resource, p)
	}
	data, err := citiesGeoJSON()
	if err != nil {
		return nil, err
	}
	return gdalframe.FromBytes(data, "world_cities.geojson", p)
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	resource := flag.String("resource", "", "GDAL resource to serve (default: built-in world cities)")
	layer := flag.String("layer", "", "Layer of the resource")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	p := gdalframe.DefaultReadParams()
	p.LayerName = *layer
	p.Logger = logger
	rec, err := loadRecord(*resource, p)
	if err != nil {
		logger.Fatal("Failed to read resource", zap.Error(err))
	}
	defer rec.Release()

	// Encode every format once; the record does not change
	var fgb bytes.Buffer
	opts := flatgeobuf.DefaultOptions()
	opts.Description = "Served by gdalframe"
	if err := flatgeobuf.WriteRecord(&fgb, rec, opts); err != nil {
		logger.Fatal("Failed to create FlatGeobuf", zap.Error(err))
	}

	wp := gdalframe.DefaultWriteParams()
	wp.FileName = "data.geojson"
	wp.Logger = logger
	geoJSON, err := gdalframe.BytesFromFrame(rec, godal.GeoJSON, wp)
	if err != nil {
		logger.Fatal("Failed to create GeoJSON", zap.Error(err))
	}

	var stream bytes.Buffer
	if err := arrowio.WriteStream(&stream, rec); err != nil {
		logger.Fatal("Failed to create Arrow stream", zap.Error(err))
	}

	data := map[string]struct {
		contentType string
		body        []byte
	}{
		"/data.fgb":     {"application/octet-stream", fgb.Bytes()},
		"/data.geojson": {"application/geo+json", geoJSON},
		"/data.arrow":   {"application/vnd.apache.arrow.stream", stream.Bytes()},
	}

	// Get the directory of the client files (one level up from server)
	clientDir := filepath.Join("..", "client")

	fs := http.FileServer(http.Dir(clientDir))
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if d, ok := data[r.URL.Path]; ok {
			w.Header().Set("Content-Type", d.contentType)
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Write(d.body)
			return
		}
		fs.ServeHTTP(w, r)
	})

	logger.Info("Server starting",
		zap.String("addr", *addr),
		zap.String("client_dir", clientDir),
		zap.Int64("features", rec.NumRows()))
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}
