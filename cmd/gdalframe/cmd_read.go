package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tingold/gdalframe"
	"github.com/tingold/gdalframe/flatgeobuf"
	"github.com/tingold/gdalframe/frame"
	"github.com/tingold/gdalframe/internal/arrowio"
)

var layersCmd = &cobra.Command{
	Use:   "layers <resource>",
	Short: "List the layers of a dataset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := gdalframe.DefaultReadParams()
		p.Drivers = cfg.Read.Drivers
		p.OpenOptions = cfg.Read.OpenOptions
		p.Logger = logger
		p.CountFeatures, _ = cmd.Flags().GetBool("count")
		changedSlice(cmd, "if", &p.Drivers)
		changedSlice(cmd, "oo", &p.OpenOptions)

		infos, err := gdalframe.ListLayers(args[0], p)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tFEATURES\tCRS")
		for _, info := range infos {
			crs := "-"
			if info.EPSG > 0 {
				crs = fmt.Sprintf("EPSG:%d", info.EPSG)
			} else if info.WKT != "" {
				crs = "custom"
			}
			count := "?"
			if info.FeatureCount >= 0 {
				count = humanize.Comma(int64(info.FeatureCount))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", info.Name, count, crs)
		}
		return tw.Flush()
	},
}

var readCmd = &cobra.Command{
	Use:   "read <resource>",
	Short: "Read a layer into an Arrow record",
	Long: `Read one layer of any GDAL vector dataset and print its schema, or store
it as Arrow IPC (.arrow), GeoParquet (.parquet) or FlatGeobuf (.fgb) with -o.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := readParams(cmd)
		if err != nil {
			return err
		}
		rec, err := gdalframe.FromResource(args[0], p)
		if err != nil {
			return err
		}
		defer rec.Release()

		out, _ := cmd.Flags().GetString("output")
		if out == "" {
			return printSummary(cmd.OutOrStdout(), rec)
		}
		if err := saveRecord(out, rec, p.GeometryFormat); err != nil {
			return err
		}
		logFileWritten(out, rec.NumRows())
		return nil
	},
}

func printSummary(w io.Writer, rec arrow.Record) error {
	layer, _ := frame.SchemaMetadata(rec.Schema(), frame.MetaLayer)
	fmt.Fprintf(w, "layer: %s\n", layer)
	fmt.Fprintf(w, "rows: %s\n", humanize.Comma(rec.NumRows()))
	if code := frame.EPSG(rec.Schema()); code > 0 {
		fmt.Fprintf(w, "crs: EPSG:%d\n", code)
	}
	fmt.Fprintf(w, "size: %s\n", humanize.Bytes(recordSize(rec)))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLUMN\tTYPE\tNULLS")
	for i, f := range rec.Schema().Fields() {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Name, f.Type, rec.Column(i).NullN())
	}
	return tw.Flush()
}

// recordSize sums the buffer sizes of every column.
func recordSize(rec arrow.Record) uint64 {
	var n uint64
	for _, col := range rec.Columns() {
		n += dataSize(col.Data())
	}
	return n
}

func dataSize(d arrow.ArrayData) uint64 {
	var n uint64
	for _, b := range d.Buffers() {
		if b != nil {
			n += uint64(b.Len())
		}
	}
	for _, child := range d.Children() {
		n += dataSize(child)
	}
	return n
}

// saveRecord stores rec in the format named by the extension of path.
func saveRecord(path string, rec arrow.Record, format frame.GeometryFormat) (err error) {
	if !strings.EqualFold(filepath.Ext(path), ".fgb") {
		return arrowio.WriteFile(path, rec)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	opts := flatgeobuf.DefaultOptions()
	opts.GeometryFormat = format
	if column, ok := frame.SchemaMetadata(rec.Schema(), frame.MetaGeometryColumn); ok {
		opts.GeometryColumn = column
	}
	return flatgeobuf.WriteRecord(f, rec, opts)
}

// loadRecord reads a record stored by saveRecord. The caller releases it.
func loadRecord(ctx context.Context, path string) (arrow.Record, error) {
	if !strings.EqualFold(filepath.Ext(path), ".fgb") {
		return arrowio.ReadFile(ctx, path, nil)
	}
	r, err := flatgeobuf.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReadAll(frame.DefaultOptions())
}

func logFileWritten(path string, rows int64) {
	fields := []zap.Field{zap.String("path", path), zap.Int64("rows", rows)}
	if st, err := os.Stat(path); err == nil {
		fields = append(fields, zap.String("size", humanize.Bytes(uint64(st.Size()))))
	}
	logger.Info("wrote file", fields...)
}
