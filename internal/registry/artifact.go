// SPDX-License-Identifier: MPL-2.0

// Package registry holds the set of managed artifacts: the binding
// between an artifact id, the GitHub repository its releases come from,
// and the filename pattern its installed copies follow.
package registry

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ChannelStable queries the latest non-prerelease endpoint.
	ChannelStable Channel = "stable"
	// ChannelPrerelease queries the full release list and takes the newest
	// entry, pre-release or not.
	ChannelPrerelease Channel = "prerelease"

	// VersionPlaceholder is the token a file pattern substitutes the
	// release version into.
	VersionPlaceholder = "{version}"
)

var (
	// ErrInvalidArtifact is the sentinel error wrapped by InvalidArtifactError.
	ErrInvalidArtifact = errors.New("invalid artifact")
	// ErrInvalidChannel is returned when a Channel value is not recognized.
	ErrInvalidChannel = errors.New("invalid update channel")
)

type (
	// Channel selects which remote release endpoint an artifact is
	// checked against.
	Channel string

	// Artifact is one managed artifact. Instances are validated at the
	// boundary that creates them (configuration load or a registration
	// call) and treated as immutable afterwards; reconfiguration replaces
	// them wholesale.
	Artifact struct {
		// ID uniquely identifies the artifact, e.g. "landscaper".
		ID string `mapstructure:"id" toml:"id"`
		// Repo is the release source in "owner/name" form.
		Repo string `mapstructure:"repo" toml:"repo"`
		// FilePattern is the installed filename with a {version}
		// placeholder, e.g. "landscaper-{version}.zip".
		FilePattern string `mapstructure:"file_pattern" toml:"file_pattern"`
		// Enabled gates update checks for this artifact.
		Enabled bool `mapstructure:"enabled" toml:"enabled"`
		// MinVersion is an optional floor the update target may not fall
		// below. Empty means no floor.
		MinVersion string `mapstructure:"min_version" toml:"min_version,omitempty"`
		// Channel is "stable" or "prerelease".
		Channel Channel `mapstructure:"channel" toml:"channel"`
		// Required marks artifacts whose update failure should be treated
		// as fatal by the host.
		Required bool `mapstructure:"required" toml:"required"`
	}

	// InvalidArtifactError is returned when an Artifact fails validation.
	// It wraps ErrInvalidArtifact for errors.Is() compatibility.
	InvalidArtifactError struct {
		ID     string
		Reason string
	}
)

// Error implements the error interface for InvalidArtifactError.
func (e *InvalidArtifactError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("invalid artifact: %s", e.Reason)
	}
	return fmt.Sprintf("invalid artifact %q: %s", e.ID, e.Reason)
}

// Unwrap returns ErrInvalidArtifact for errors.Is() compatibility.
func (e *InvalidArtifactError) Unwrap() error { return ErrInvalidArtifact }

// String returns the string representation of the Channel.
func (c Channel) String() string { return string(c) }

// IsValid returns whether the Channel is one of the defined channels.
// The zero value is treated as stable.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelStable, ChannelPrerelease, "":
		return true
	default:
		return false
	}
}

// IncludePrerelease reports whether this channel wants pre-releases.
func (c Channel) IncludePrerelease() bool { return c == ChannelPrerelease }

// Validate checks the invariants every managed artifact must hold: a
// non-empty id, a non-empty source repository, and a file pattern that
// contains the {version} placeholder exactly once.
func (a Artifact) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return &InvalidArtifactError{Reason: "id must be non-empty"}
	}
	if strings.TrimSpace(a.Repo) == "" {
		return &InvalidArtifactError{ID: a.ID, Reason: "repo must be non-empty"}
	}
	if strings.TrimSpace(a.FilePattern) == "" {
		return &InvalidArtifactError{ID: a.ID, Reason: "file_pattern must be non-empty"}
	}
	if strings.Count(a.FilePattern, VersionPlaceholder) != 1 {
		return &InvalidArtifactError{ID: a.ID, Reason: "file_pattern must contain the {version} placeholder exactly once"}
	}
	if !a.Channel.IsValid() {
		return &InvalidArtifactError{ID: a.ID, Reason: fmt.Sprintf("channel %q is not valid (stable, prerelease)", a.Channel)}
	}
	return nil
}

// InstalledName returns the filename this artifact uses on disk for the
// given version.
func (a Artifact) InstalledName(version string) string {
	return strings.ReplaceAll(a.FilePattern, VersionPlaceholder, version)
}
