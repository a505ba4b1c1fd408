// Package config resolves the launcher's runtime configuration: external
// settings from flags and the environment, merged with a properties file.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/JakeFAU/embedded-launcher/internal/apperr"
)

// Configuration keys. The names match the properties files deployed next to
// the launcher, so they keep their dotted form.
const (
	KeyConfig         = "config"
	KeyPort           = "jetty.port"
	KeyContextPath    = "jetty.contextPath"
	KeyBaseDir        = "basedir"
	KeySecret         = "jetty.secret"
	KeyWorkDir        = "jetty.workDir"
	KeyHostname       = "hostname"
	KeyLogDir         = "jetty.home"
	KeyMetricsPath    = "metrics.path"
	KeyLogDevelopment = "log.development"
	KeyLogTimeZone    = "log.timezone"
)

// ErrMissingSetting is returned when a required key has no value.
var ErrMissingSetting = errors.New("required setting is not set")

// Configuration is a resolved, flat key/value mapping. A Configuration is
// never modified once built; merging produces a new value.
type Configuration struct {
	values map[string]string
}

// New builds a Configuration holding a copy of values.
func New(values map[string]string) *Configuration {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &Configuration{values: cp}
}

// Lookup returns the value for key and whether it is present.
func (c *Configuration) Lookup(key string) (string, bool) {
	if c == nil {
		return "", false
	}
	v, ok := c.values[key]
	return v, ok
}

// Get returns the value for key, or def when the key is absent or empty.
func (c *Configuration) Get(key, def string) string {
	if v, ok := c.Lookup(key); ok && v != "" {
		return v
	}
	return def
}

// Require returns the value for key or an error wrapping ErrMissingSetting.
func (c *Configuration) Require(key string) (string, error) {
	v, ok := c.Lookup(key)
	if !ok || v == "" {
		return "", apperr.New(apperr.KindConfiguration, "resolve setting",
			fmt.Errorf("%w: %q", ErrMissingSetting, key))
	}
	return v, nil
}

// Bool parses key as a boolean, returning def when absent or malformed.
func (c *Configuration) Bool(key string, def bool) bool {
	v, ok := c.Lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// Keys returns all keys in sorted order.
func (c *Configuration) Keys() []string {
	if c == nil {
		return nil
	}
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len reports the number of keys.
func (c *Configuration) Len() int {
	if c == nil {
		return 0
	}
	return len(c.values)
}

// Merge returns a new Configuration with overrides applied on top of c.
func (c *Configuration) Merge(overrides map[string]string) *Configuration {
	merged := New(nil)
	if c != nil {
		for k, v := range c.values {
			merged.values[k] = v
		}
	}
	for k, v := range overrides {
		merged.values[k] = v
	}
	return merged
}
