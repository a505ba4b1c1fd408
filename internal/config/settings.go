package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the launcher reads,
// e.g. LAUNCHER_JETTY_PORT for jetty.port.
const EnvPrefix = "LAUNCHER"

// Default values for settings the launcher can run without.
const (
	DefaultContextPath = "/"
	DefaultBaseDir     = "target/appassembler/repo"
	DefaultLogDir      = "../logs"
)

// settingKeys lists the keys resolved from the external settings namespace.
var settingKeys = []string{
	KeyConfig,
	KeyPort,
	KeyContextPath,
	KeyBaseDir,
	KeySecret,
	KeyWorkDir,
	KeyHostname,
	KeyLogDir,
	KeyMetricsPath,
	KeyLogDevelopment,
	KeyLogTimeZone,
}

// NewViper returns a viper instance reading LAUNCHER_* environment
// variables with the launcher defaults applied. Callers bind CLI flags onto
// it before calling Settings.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyContextPath, DefaultContextPath)
	v.SetDefault(KeyBaseDir, DefaultBaseDir)
	v.SetDefault(KeyLogDir, DefaultLogDir)
	v.SetDefault(KeyLogDevelopment, false)
}

// Settings snapshots the external settings held by v into a Configuration.
// Keys without a value are left out so that Require reports them missing.
func Settings(v *viper.Viper) *Configuration {
	values := make(map[string]string, len(settingKeys))
	for _, key := range settingKeys {
		if !v.IsSet(key) {
			continue
		}
		if s := v.GetString(key); s != "" {
			values[key] = s
		}
	}
	return New(values)
}
