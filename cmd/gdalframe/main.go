// Command gdalframe moves vector data between GDAL datasets and Arrow files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tingold/gdalframe/internal/config"
)

var (
	// Global flags
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "gdalframe",
	Short: "Read GDAL vector layers into Arrow and write them back",
	Long: `gdalframe reads any vector dataset GDAL can open into an Arrow record
and writes Arrow records out through any GDAL vector driver.

Records are stored as Arrow IPC (.arrow) or GeoParquet (.parquet) files.
Defaults for every command can be set in a YAML file given with --config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg = config.DefaultConfig()
		if configPath != "" {
			if cfg, err = config.Load(configPath); err != nil {
				return err
			}
		}
		logger, err = newLogger(cfg.Logging, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newLogger(c config.LoggingConfig, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	level, err := c.ZapLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if c.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zc.Build()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML file with command defaults")

	addFrameFlags(readCmd)
	addReadFlags(readCmd)
	readCmd.Flags().StringP("output", "o", "", "Write the record to this .arrow, .parquet or .fgb file")

	addFrameFlags(convertCmd)
	addReadFlags(convertCmd)
	addWriteFlags(convertCmd)
	convertCmd.Flags().String("out-dir", "", "Output directory (default from config: .)")
	convertCmd.Flags().Int("concurrency", 0, "Resources converted at once (default from config: 4)")
	convertCmd.Flags().String("ext", "", "Output file extension (default: from driver)")

	addFrameFlags(writeCmd)
	addWriteFlags(writeCmd)

	layersCmd.Flags().StringSlice("if", nil, "Allowed input GDAL drivers")
	layersCmd.Flags().StringSlice("oo", nil, "Driver open options, KEY=value")
	layersCmd.Flags().Bool("count", false, "Count features (may scan remote or database layers)")

	rootCmd.AddCommand(layersCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(convertCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
