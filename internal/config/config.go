// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthGate Contributors

// Package config loads service configuration from a YAML file and
// command-line flags. Flags take precedence over the file, the file
// over built-in defaults.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Default values used when neither the config file nor flags set a key.
const (
	DefaultMetricsAddr       = "127.0.0.1:9100"
	DefaultLogFormat         = "json"
	DefaultLogLevel          = "info"
	DefaultSessionTTL        = 24 * time.Hour
	DefaultMinPasswordLength = 8
	DefaultSweepInterval     = time.Hour
)

// Config holds all runtime configuration for the service.
type Config struct {
	Database     DatabaseConfig     `koanf:"database"`
	Listen       ListenConfig       `koanf:"listen"`
	Log          LogConfig          `koanf:"log"`
	Session      SessionConfig      `koanf:"session"`
	Password     PasswordConfig     `koanf:"password"`
	Registration RegistrationConfig `koanf:"registration"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// ListenConfig holds listen addresses.
type ListenConfig struct {
	Metrics string `koanf:"metrics"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// SessionConfig holds session token settings.
type SessionConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// PasswordConfig holds password policy settings.
type PasswordConfig struct {
	MinLength int `koanf:"min_length"`
}

// RegistrationConfig holds account registration settings.
type RegistrationConfig struct {
	EnabledDefault bool `koanf:"enabled_default"`
}

// Default returns a Config populated with built-in defaults.
// The database URL has no default and must be supplied.
func Default() Config {
	return Config{
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Listen: ListenConfig{
			Metrics: DefaultMetricsAddr,
		},
		Log: LogConfig{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
		Session: SessionConfig{
			TTL:           DefaultSessionTTL,
			SweepInterval: DefaultSweepInterval,
		},
		Password: PasswordConfig{
			MinLength: DefaultMinPasswordLength,
		},
		Registration: RegistrationConfig{
			EnabledDefault: true,
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and a flag set.
// path may be empty, in which case no file is read. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	// Unmarshal over the defaults so absent keys keep their default values.
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.sweep_interval must be positive")
	}
	if c.Password.MinLength < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("password.min_length must be at least 1")
	}
	return nil
}
