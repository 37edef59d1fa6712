// Package logger provides opinionated logging for the zrelay system.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger writing to stdout. Debug mode lowers the
// level to Debug, which the relay uses to dump per-event normalizer
// rewrites, so expect it to be very chatty on streaming requests.
func New(debug bool) *zap.Logger {
	return NewWithWriter(debug, os.Stdout)
}

// NewWithWriter builds the same logger against an arbitrary writer.
// Tests use this to capture output.
func NewWithWriter(debug bool, w io.Writer) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)

	return zap.New(core, zap.AddCaller())
}
