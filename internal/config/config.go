// Package config loads the settings of the singleinstance tools.
//
// Settings come from config.yaml next to the executable, or from the file
// named by SINGLE_INSTANCE_CONFIG_FILE, and every key can be overridden with
// a SINGLE_INSTANCE_ prefixed environment variable (dots become
// underscores, e.g. SINGLE_INSTANCE_LOG_LEVEL). The relay mailbox location is
// deliberately not configurable: primary and secondaries find each other
// through the executable directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	EnvConfigFile = "SINGLE_INSTANCE_CONFIG_FILE"
	envPrefix     = "SINGLE_INSTANCE"

	DefaultName = "singleinstance"
)

type Config struct {
	// Name is the unique application name used for the election.
	Name string
	// LockDir holds unix lock files; empty means the system temp dir.
	LockDir string
	// Presence enables publishing the primary's presence record.
	Presence bool

	LogLevel  string
	LogFormat string

	// File is the config file in use, empty when none was read.
	File string
	// Warnings lists non-fatal problems met while loading.
	Warnings []string
}

type Options struct {
	// File overrides the config file location (takes precedence over the
	// environment variable).
	File string
	// WriteDefault writes a default config file when none exists.
	WriteDefault bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("name", DefaultName)
	v.SetDefault("lock_dir", "")
	v.SetDefault("presence", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Load reads configuration according to opts.
func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := opts.File
	if file == "" {
		file = os.Getenv(EnvConfigFile)
	}

	defaultPath := ""
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		defaultPath = file
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if exePath, err := os.Executable(); err == nil {
			dir := filepath.Dir(exePath)
			v.AddConfigPath(dir)
			defaultPath = filepath.Join(dir, "config.yaml")
		}
	}

	cfg := &Config{}

	var notFound viper.ConfigFileNotFoundError
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if opts.WriteDefault && defaultPath != "" {
			if err := v.WriteConfigAs(defaultPath); err != nil {
				cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("failed to write default config %s: %v", defaultPath, err))
			}
		}
	} else {
		cfg.File = v.ConfigFileUsed()
	}

	cfg.Name = strings.TrimSpace(v.GetString("name"))
	cfg.LockDir = strings.TrimSpace(v.GetString("lock_dir"))
	cfg.Presence = v.GetBool("presence")
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(v.GetString("log.level")))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(v.GetString("log.format")))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("config: name must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unsupported log.level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("config: unsupported log.format %q", c.LogFormat)
	}
	return nil
}
