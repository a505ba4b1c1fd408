// Package app initializes and holds the launcher's long-lived services,
// acting as a small dependency injection container for the commands.
package app

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
	"github.com/JakeFAU/embedded-launcher/internal/config"
	"github.com/JakeFAU/embedded-launcher/internal/logging"
)

// Options controls how the container is assembled.
type Options struct {
	// Viper holds external settings; nil means config.NewViper().
	Viper *viper.Viper
	// Fs is used for the properties file and the log directory.
	Fs afero.Fs
	// FileLog adds the rolling log file under jetty.home.
	FileLog bool
	// HostResolver overrides local hostname lookup.
	HostResolver config.HostResolver
}

// App holds the logger and the resolved configuration.
type App struct {
	logger   *zap.Logger
	config   *config.Configuration
	closeLog func()
}

// New resolves settings, builds the logger and loads the properties file.
// It fails fast when the configuration cannot be resolved.
func New(opts Options) (*App, error) {
	v := opts.Viper
	if v == nil {
		v = config.NewViper()
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	settings := config.Settings(v)
	loc, err := logLocation(settings)
	if err != nil {
		return nil, err
	}
	logOpts := logging.Options{
		Development: settings.Bool(config.KeyLogDevelopment, false),
		Fs:          fs,
		Location:    loc,
	}
	if opts.FileLog {
		logOpts.Dir = settings.Get(config.KeyLogDir, config.DefaultLogDir)
	}
	logger, closeLog, err := logging.New(logOpts)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	loaderOpts := []config.LoaderOption{config.WithFs(fs)}
	if opts.HostResolver != nil {
		loaderOpts = append(loaderOpts, config.WithHostResolver(opts.HostResolver))
	}
	cfg, err := config.NewLoader(logger.Named("config"), loaderOpts...).Load(settings)
	if err != nil {
		logger.Error("configuration could not be resolved", zap.Error(err))
		closeLog()
		return nil, err
	}

	return &App{logger: logger, config: cfg, closeLog: closeLog}, nil
}

// logLocation resolves the zone the log files roll over in.
func logLocation(settings *config.Configuration) (*time.Location, error) {
	name := settings.Get(config.KeyLogTimeZone, "")
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, "resolve log time zone", fmt.Errorf("%s=%q: %w", config.KeyLogTimeZone, name, err))
	}
	return loc, nil
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Configuration {
	return a.config
}

// Close flushes and releases the log sinks.
func (a *App) Close() {
	a.closeLog()
}
