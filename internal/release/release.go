// SPDX-License-Identifier: MPL-2.0

// Package release fetches release metadata for managed artifacts from the
// GitHub Releases API, memoizing results in a TTL-bounded cache so that
// many concurrent artifact checks against the same repository cost one
// network round trip.
package release

import (
	"strings"
	"time"
)

type (
	// Release is the metadata of one published release.
	Release struct {
		TagName     string  // Git tag, e.g. "v1.2.0"
		Name        string  // Human-readable release name
		Prerelease  bool    // True for alpha/beta/RC releases
		Assets      []Asset // Downloadable artifacts
		PublishedAt time.Time
	}

	// Asset is a single downloadable file attached to a release.
	Asset struct {
		Name               string
		BrowserDownloadURL string
		Size               int64
	}
)

// Version returns the release version derived from the tag name, with a
// leading "v" marker stripped ("v1.2.0" -> "1.2.0").
func (r *Release) Version() string {
	return strings.TrimPrefix(r.TagName, "v")
}

// FindAsset resolves the filename pattern against this release's assets.
// The release version is substituted into the "{version}" placeholder and
// the resulting name must match one asset exactly (case-sensitive).
// Returns nil when the pattern is malformed or no asset matches.
func (r *Release) FindAsset(pattern string) *Asset {
	if !strings.Contains(pattern, "{version}") {
		return nil
	}

	want := strings.ReplaceAll(pattern, "{version}", r.Version())
	for i := range r.Assets {
		if r.Assets[i].Name == want {
			return &r.Assets[i]
		}
	}
	return nil
}
