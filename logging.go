package gdalframe

import (
	"errors"

	"github.com/airbusgeo/godal"
	"go.uber.org/zap"
)

// errorHandler routes GDAL's CPL messages to logger. Debug and warning
// messages are logged and swallowed; failures are logged and returned so the
// godal call that raised them fails.
func errorHandler(logger *zap.Logger) godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		switch ec {
		case godal.CE_None, godal.CE_Debug:
			logger.Debug(msg, zap.Int("code", code))
			return nil
		case godal.CE_Warning:
			logger.Warn(msg, zap.Int("code", code))
			return nil
		default:
			logger.Error(msg, zap.Int("code", code))
			return errors.New(msg)
		}
	}
}
