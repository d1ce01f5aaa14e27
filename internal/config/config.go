// SPDX-License-Identifier: MPL-2.0

// Package config loads and persists the updraft configuration file. A
// missing or unreadable file never fails the host: loading degrades to
// the defaults and reports the problem to the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name, also the config directory name.
	AppName = "updraft"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "updraft"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "toml"
)

// ConfigDir returns the updraft configuration directory using
// platform-specific conventions: Windows uses %APPDATA%, macOS uses
// ~/Library/Application Support, and Linux/others use $XDG_CONFIG_HOME
// (defaulting to ~/.config).
func ConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, "Library", "Application Support")
	default: // Linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
	}

	return filepath.Join(configDir, AppName), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName+"."+ConfigFileExt), nil
}

// Load reads the configuration from path; an empty path resolves to
// the default location, then the current directory. Load never returns
// a nil config: a missing file yields the defaults silently, and an
// unreadable or malformed file yields the defaults together with the
// error so callers can report it and carry on. Invalid artifact entries
// are dropped with a warning.
func Load(path string, logger *log.Logger) (*Config, string, error) {
	v := viper.New()
	v.SetConfigType(ConfigFileExt)

	defaults := DefaultConfig()
	v.SetDefault("enabled", defaults.Enabled)
	v.SetDefault("auto_download", defaults.AutoDownload)
	v.SetDefault("auto_install", defaults.AutoInstall)
	v.SetDefault("check_on_startup", defaults.CheckOnStartup)
	v.SetDefault("check_interval_minutes", defaults.CheckIntervalMinutes)
	v.SetDefault("download_timeout_seconds", defaults.DownloadTimeoutSeconds)
	v.SetDefault("require_signature", defaults.RequireSignature)
	v.SetDefault("install_dir", defaults.InstallDir)
	v.SetDefault("authority_path", defaults.AuthorityPath)
	v.SetDefault("authority_branch", defaults.AuthorityBranch)

	resolved := path
	if resolved == "" {
		def, err := DefaultPath()
		if err != nil {
			return DefaultConfig(), "", err
		}
		switch {
		case fileExists(def):
			resolved = def
		case fileExists(ConfigFileName + "." + ConfigFileExt):
			resolved = ConfigFileName + "." + ConfigFileExt
		}
	}

	if resolved != "" {
		v.SetConfigFile(resolved)
		if err := v.ReadInConfig(); err != nil {
			return DefaultConfig(), "", fmt.Errorf("reading config %s: %w", resolved, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return DefaultConfig(), "", fmt.Errorf("parsing config %s: %w", resolved, err)
	}

	cfg.Normalize(logger)
	return &cfg, resolved, nil
}

// Save writes the configuration to path, creating parent directories
// as needed. An empty path resolves to the default location.
func Save(cfg *Config, path string) (string, error) {
	if path == "" {
		def, err := DefaultPath()
		if err != nil {
			return "", err
		}
		path = def
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
