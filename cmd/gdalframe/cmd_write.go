package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/airbusgeo/godal"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tingold/gdalframe"
)

var writeCmd = &cobra.Command{
	Use:   "write <in.arrow|in.parquet|in.fgb> <dst>",
	Short: "Write an Arrow record through a GDAL driver",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, driver, err := writeParams(cmd)
		if err != nil {
			return err
		}
		rec, err := loadRecord(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer rec.Release()

		ds, err := gdalframe.DatasetFromFrame(rec, godal.DriverName(driver), args[1], p)
		if err != nil {
			return err
		}
		if err := ds.Close(); err != nil {
			return fmt.Errorf("close %s: %w", args[1], err)
		}
		logFileWritten(args[1], rec.NumRows())
		return nil
	},
}

var convertCmd = &cobra.Command{
	Use:   "convert <glob>...",
	Short: "Convert every matching dataset with a GDAL driver",
	Long: `Read every resource matching the given patterns and write it with the
output driver into --out-dir. Patterns support ** (doublestar) matching.

  gdalframe convert 'data/**/*.shp' -f GPKG --out-dir out/`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rp, err := readParams(cmd)
		if err != nil {
			return err
		}
		wp, driver, err := writeParams(cmd)
		if err != nil {
			return err
		}

		c := cfg.Convert
		changedString(cmd, "out-dir", &c.OutDir)
		changedInt(cmd, "concurrency", &c.Concurrency)
		changedString(cmd, "ext", &c.Extension)
		if c.Concurrency < 1 {
			return fmt.Errorf("concurrency must be at least 1")
		}
		if c.Extension == "" {
			if c.Extension, err = driverExtension(driver); err != nil {
				return err
			}
		}
		if !strings.HasPrefix(c.Extension, ".") {
			c.Extension = "." + c.Extension
		}

		inputs, err := expandGlobs(args)
		if err != nil {
			return err
		}
		if len(inputs) == 0 {
			return fmt.Errorf("no files match %s", strings.Join(args, " "))
		}
		outputs, err := outputPaths(c.OutDir, inputs, c.Extension)
		if err != nil {
			return err
		}
		for _, out := range outputs {
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return err
			}
		}

		var written atomic.Int64
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(c.Concurrency)
		for i, in := range inputs {
			out := outputs[i]
			g.Go(func() error {
				n, err := convert(ctx, in.path, out, driver, rp, wp)
				if err != nil {
					return fmt.Errorf("%s: %w", in.path, err)
				}
				written.Add(n)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		logger.Info("converted",
			zap.Int("files", len(inputs)),
			zap.String("driver", driver),
			zap.String("size", humanize.Bytes(uint64(written.Load()))))
		return nil
	},
}

// input is a dataset to convert. rel is its path below the static base
// of the pattern that matched it and names the output file.
type input struct {
	path string
	rel  string
}

// expandGlobs returns the de-duplicated files matching patterns.
// Patterns without glob syntax are kept as given, so GDAL connection
// strings and /vsi paths pass through.
func expandGlobs(patterns []string) ([]input, error) {
	var out []input
	seen := map[string]bool{}
	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[{") {
			if !seen[pattern] {
				seen[pattern] = true
				out = append(out, input{path: pattern, rel: filepath.Base(pattern)})
			}
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		base, _ := doublestar.SplitPattern(filepath.ToSlash(filepath.Clean(pattern)))
		base = filepath.FromSlash(base)
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			rel, err := filepath.Rel(base, m)
			if err != nil {
				rel = filepath.Base(m)
			}
			out = append(out, input{path: m, rel: rel})
		}
	}
	return out, nil
}

// outputPaths names the converted file of every input inside dir. Inputs
// that would write the same file are rejected before anything runs.
func outputPaths(dir string, inputs []input, ext string) ([]string, error) {
	outs := make([]string, len(inputs))
	owners := make(map[string]string, len(inputs))
	for i, in := range inputs {
		out := outputPath(dir, in.rel, ext)
		if prev, ok := owners[out]; ok {
			return nil, fmt.Errorf("%s and %s both convert to %s", prev, in.path, out)
		}
		owners[out] = in.path
		outs[i] = out
	}
	return outs, nil
}

// outputPath names the converted file of rel inside dir, keeping the
// directories of rel.
func outputPath(dir, rel, ext string) string {
	base := filepath.Base(rel)
	for {
		e := filepath.Ext(base)
		if e == "" || e == base {
			break
		}
		base = strings.TrimSuffix(base, e)
	}
	return filepath.Join(dir, filepath.Dir(rel), base+ext)
}

func convert(ctx context.Context, in, out, driver string, rp *gdalframe.ReadParams, wp *gdalframe.WriteParams) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rec, err := gdalframe.FromResource(in, rp)
	if err != nil {
		return 0, err
	}
	defer rec.Release()

	p := *wp
	if p.LayerName == "" {
		p.LayerName = strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
	}
	ds, err := gdalframe.DatasetFromFrame(rec, godal.DriverName(driver), out, &p)
	if err != nil {
		return 0, err
	}
	if err := ds.Close(); err != nil {
		return 0, err
	}
	logger.Debug("converted file", zap.String("from", in), zap.String("to", out), zap.Int64("rows", rec.NumRows()))

	st, err := os.Stat(out)
	if err != nil {
		// drivers such as PostgreSQL write no local file
		return 0, nil
	}
	return st.Size(), nil
}
