// Package config loads protohackd.toml via viper, with defaults set in
// code, PROTOHACKD_* environment overrides, and a file watch that
// hot-reloads the subset of settings safe to change without a restart.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/protohackd/internal/xerrors"
)

// Config is the full set of protohackd settings.
type Config struct {
	Speed     ListenConfig `mapstructure:"speed"`
	LRCP      ListenConfig `mapstructure:"lrcp"`
	Pest      PestConfig   `mapstructure:"pest"`
	JobCentre ListenConfig `mapstructure:"jobcentre"`
	Log       LogConfig    `mapstructure:"log"`
}

// ListenConfig is the bind address shared by every subsystem.
type ListenConfig struct {
	Addr string `mapstructure:"addr"`
}

// PestConfig adds the fixed upstream authority address (§6.3) on top of
// the usual listen address.
type PestConfig struct {
	Addr         string `mapstructure:"addr"`
	UpstreamAddr string `mapstructure:"upstream_addr"`
}

// LogConfig controls the ambient logging stack (internal/logger).
type LogConfig struct {
	Level int    `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
	Theme string `mapstructure:"theme"`
}

var global *Config

// Load reads protohackd.toml (if present) plus defaults and environment
// overrides. Subsequent calls return the cached config; use Reset to force
// a reread (the config watcher does this on file change).
func Load(configPath string) (*Config, error) {
	if global != nil {
		return global, nil
	}
	v := newViper(configPath)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, xerrors.Wrap(err, "reading protohackd.toml")
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, xerrors.Wrap(err, "unmarshalling config")
	}
	global = &cfg
	return global, nil
}

// Reset clears the cached config, forcing the next Load to reread disk.
func Reset() { global = nil }

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("protohackd")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}
	setDefaults(v)
	v.SetEnvPrefix("PROTOHACKD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("speed.addr", ":9001")
	v.SetDefault("lrcp.addr", ":9002")
	v.SetDefault("pest.addr", ":9003")
	v.SetDefault("pest.upstream_addr", "pestcontrol.protohackers.com:20547")
	v.SetDefault("jobcentre.addr", ":9004")
	v.SetDefault("log.level", 1)
	v.SetDefault("log.json", false)
	v.SetDefault("log.theme", "slate")
}
