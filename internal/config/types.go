// SPDX-License-Identifier: MPL-2.0

package config

import (
	"time"

	"github.com/charmbracelet/log"

	"updraft/internal/registry"
)

type (
	// Config is the full updraft configuration.
	Config struct {
		// Enabled gates the whole update subsystem.
		Enabled bool `mapstructure:"enabled" toml:"enabled"`
		// AutoDownload fetches packages as soon as an update is found.
		AutoDownload bool `mapstructure:"auto_download" toml:"auto_download"`
		// AutoInstall validates and installs downloaded packages; when
		// false they are staged with a pending marker instead.
		AutoInstall bool `mapstructure:"auto_install" toml:"auto_install"`
		// CheckOnStartup runs one check when the host starts.
		CheckOnStartup bool `mapstructure:"check_on_startup" toml:"check_on_startup"`
		// CheckIntervalMinutes is the periodic check cadence; 0 disables
		// periodic checks.
		CheckIntervalMinutes int `mapstructure:"check_interval_minutes" toml:"check_interval_minutes"`
		// DownloadTimeoutSeconds bounds one download end to end.
		DownloadTimeoutSeconds int `mapstructure:"download_timeout_seconds" toml:"download_timeout_seconds"`
		// RequireSignature rejects unsigned packages instead of accepting
		// them with a warning.
		RequireSignature bool `mapstructure:"require_signature" toml:"require_signature"`
		// InstallDir is where packages are installed.
		InstallDir string `mapstructure:"install_dir" toml:"install_dir"`
		// AuthorityRepo is an optional "owner/name" repository publishing
		// an authority config (artifact list and version mandates). Empty
		// disables the authority flow.
		AuthorityRepo string `mapstructure:"authority_repo" toml:"authority_repo,omitempty"`
		// AuthorityPath is the authority config path inside the repo.
		AuthorityPath string `mapstructure:"authority_path" toml:"authority_path,omitempty"`
		// AuthorityBranch is the branch the authority config is read from.
		AuthorityBranch string `mapstructure:"authority_branch" toml:"authority_branch,omitempty"`
		// Artifacts are the managed artifacts.
		Artifacts []registry.Artifact `mapstructure:"artifacts" toml:"artifacts,omitempty"`
	}
)

// DefaultConfig returns the configuration used when no file exists or
// the file cannot be read.
func DefaultConfig() *Config {
	return &Config{
		Enabled:                true,
		AutoDownload:           true,
		AutoInstall:            true,
		CheckOnStartup:         true,
		CheckIntervalMinutes:   60,
		DownloadTimeoutSeconds: 30,
		InstallDir:             "plugins",
		AuthorityPath:          "updraft.toml",
		AuthorityBranch:        "main",
	}
}

// CheckInterval returns the periodic check cadence, zero when periodic
// checks are disabled.
func (c *Config) CheckInterval() time.Duration {
	if c.CheckIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(c.CheckIntervalMinutes) * time.Minute
}

// DownloadTimeout returns the per-download timeout, falling back to the
// default for non-positive values.
func (c *Config) DownloadTimeout() time.Duration {
	if c.DownloadTimeoutSeconds <= 0 {
		return time.Duration(DefaultConfig().DownloadTimeoutSeconds) * time.Second
	}
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

// Normalize repairs what can be repaired instead of failing the load:
// non-positive timeouts revert to defaults and invalid artifact entries
// are dropped with a logged warning. Returns the number of artifacts
// dropped.
func (c *Config) Normalize(logger *log.Logger) int {
	if c.DownloadTimeoutSeconds < 0 {
		c.DownloadTimeoutSeconds = DefaultConfig().DownloadTimeoutSeconds
	}
	if c.CheckIntervalMinutes < 0 {
		c.CheckIntervalMinutes = 0
	}
	if c.InstallDir == "" {
		c.InstallDir = DefaultConfig().InstallDir
	}
	if c.AuthorityRepo != "" {
		if c.AuthorityPath == "" {
			c.AuthorityPath = DefaultConfig().AuthorityPath
		}
		if c.AuthorityBranch == "" {
			c.AuthorityBranch = DefaultConfig().AuthorityBranch
		}
	}

	kept := c.Artifacts[:0]
	dropped := 0
	for _, a := range c.Artifacts {
		if err := a.Validate(); err != nil {
			logger.Warn("dropping invalid artifact entry", "artifact", a.ID, "err", err)
			dropped++
			continue
		}
		kept = append(kept, a)
	}
	c.Artifacts = kept
	return dropped
}
