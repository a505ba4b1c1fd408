// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultRetainDays is how long rolled log files are kept.
const DefaultRetainDays = 90

// Options selects the logger's encoders and sinks.
type Options struct {
	// Development switches to the human-friendly console encoder and debug level.
	Development bool
	// Dir enables the rolling file sink when non-empty.
	Dir string
	// RetainDays bounds how long rolled files are kept. Zero means DefaultRetainDays.
	RetainDays int
	// Fs hosts the rolling files. Nil means the OS filesystem.
	Fs afero.Fs
	// Location decides when a new day, and so a new file, starts. Nil means
	// the local time zone.
	Location *time.Location
}

// New builds a zap.Logger writing to stdout and, when opts.Dir is set, to a
// daily rolling file. The returned cleanup flushes and closes the file sink.
func New(opts Options) (*zap.Logger, func(), error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	stdoutEnc := zapcore.NewJSONEncoder(encoderConfig(false))
	if opts.Development {
		level.SetLevel(zapcore.DebugLevel)
		stdoutEnc = zapcore.NewConsoleEncoder(encoderConfig(true))
	}

	cores := []zapcore.Core{
		zapcore.NewCore(stdoutEnc, zapcore.Lock(os.Stdout), level),
	}
	cleanup := func() {}

	if opts.Dir != "" {
		fs := opts.Fs
		if fs == nil {
			fs = afero.NewOsFs()
		}
		retain := opts.RetainDays
		if retain <= 0 {
			retain = DefaultRetainDays
		}
		file, err := NewRollingFile(fs, opts.Dir, retain, opts.Location)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		fileEnc := zapcore.NewConsoleEncoder(encoderConfig(false))
		cores = append(cores, zapcore.NewCore(fileEnc, file, level))
		cleanup = func() {
			_ = file.Close()
		}
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, func() {
		_ = logger.Sync()
		cleanup()
	}, nil
}

func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}
