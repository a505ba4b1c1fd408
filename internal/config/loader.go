package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/magiconair/properties"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
)

// ErrConfigFileNotFound is returned when the configured properties file does
// not exist.
var ErrConfigFileNotFound = errors.New("config file not found")

// DefaultRestrictedHosts are the application servers whose configured
// hostname must match the machine name.
var DefaultRestrictedHosts = []string{"node1", "node2"}

// HostnameMismatchError reports a configured hostname that differs from the
// resolved machine name on a restricted host.
type HostnameMismatchError struct {
	Configured string
	Actual     string
}

func (e *HostnameMismatchError) Error() string {
	return fmt.Sprintf("configured hostname %q does not match actual hostname %q", e.Configured, e.Actual)
}

// HostResolver returns the local machine's host name.
type HostResolver func() (string, error)

// Loader reads the properties file named by the config setting.
type Loader struct {
	fs         afero.Fs
	resolve    HostResolver
	restricted map[string]struct{}
	logger     *zap.Logger
}

// LoaderOption customizes a Loader.
type LoaderOption func(*Loader)

// WithFs reads files from fs instead of the OS filesystem.
func WithFs(fs afero.Fs) LoaderOption {
	return func(l *Loader) {
		l.fs = fs
	}
}

// WithHostResolver replaces os.Hostname.
func WithHostResolver(r HostResolver) LoaderOption {
	return func(l *Loader) {
		l.resolve = r
	}
}

// WithRestrictedHosts replaces DefaultRestrictedHosts.
func WithRestrictedHosts(hosts ...string) LoaderOption {
	return func(l *Loader) {
		l.restricted = hostSet(hosts)
	}
}

// NewLoader builds a Loader.
func NewLoader(logger *zap.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loader{
		fs:         afero.NewOsFs(),
		resolve:    os.Hostname,
		restricted: hostSet(DefaultRestrictedHosts),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func hostSet(hosts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	return set
}

// Load reads the properties file named by seed's config key, validates the
// hostname on restricted hosts, and returns seed overwritten by every key in
// the file.
func (l *Loader) Load(seed *Configuration) (*Configuration, error) {
	const op = "load config"

	path, err := seed.Require(KeyConfig)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.New(apperr.KindConfiguration, op, fmt.Errorf("%w: %s", ErrConfigFileNotFound, abs))
		}
		return nil, apperr.New(apperr.KindConfiguration, op, fmt.Errorf("read %s: %w", abs, err))
	}

	parsed, err := parseProperties(data)
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, op, fmt.Errorf("parse %s: %w", abs, err))
	}

	actual, err := l.resolve()
	if err != nil {
		return nil, apperr.New(apperr.KindConfiguration, op, fmt.Errorf("resolve local hostname: %w", err))
	}
	if err := l.checkHostname(parsed[KeyHostname], actual); err != nil {
		return nil, apperr.New(apperr.KindValidation, op, err)
	}

	merged := seed.Merge(parsed)
	l.logger.Info("configuration loaded",
		zap.String("path", abs),
		zap.Int("keys", merged.Len()),
		zap.Any("properties", merged.Redacted()),
	)
	return merged, nil
}

// checkHostname only compares on restricted hosts; elsewhere the configured
// value is not required to match.
func (l *Loader) checkHostname(configured, actual string) error {
	if _, ok := l.restricted[actual]; !ok {
		return nil
	}
	if configured != actual {
		return &HostnameMismatchError{Configured: configured, Actual: actual}
	}
	return nil
}

func parseProperties(data []byte) (map[string]string, error) {
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, p.Len())
	for _, key := range p.Keys() {
		v, _ := p.Get(key)
		out[key] = v
	}
	return out, nil
}
