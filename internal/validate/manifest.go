// SPDX-License-Identifier: MPL-2.0

// Package validate applies the structural and signature checks a
// downloaded plugin package must pass before it is trusted. A package is
// a zip container carrying a META-INF/plugin.toml metadata record and,
// optionally, a META-INF/signature.toml manifest signing every content
// entry.
package validate

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	// MetaDir is the reserved directory for package metadata. Entries
	// under it are exempt from signing.
	MetaDir = "META-INF/"

	// ManifestEntry is the metadata record every plugin package must carry.
	ManifestEntry = MetaDir + "plugin.toml"

	// SignatureEntry is the optional signature manifest.
	SignatureEntry = MetaDir + "signature.toml"

	// PlatformMarker is the value the manifest's platform field must carry
	// for the package to be recognized as a plugin for this host.
	PlatformMarker = "updraft"

	// maxManifestBytes bounds the metadata records read out of an
	// untrusted archive.
	maxManifestBytes = 1 << 20
)

// ErrNoManifest indicates the archive carries no readable plugin.toml.
var ErrNoManifest = errors.New("package has no plugin manifest")

type (
	// Manifest is the package metadata record. Id and Platform form the
	// marker identifying a recognized plugin package; Version is the
	// embedded fallback used when a filename carries no version.
	Manifest struct {
		ID       string `toml:"id"`
		Name     string `toml:"name"`
		Version  string `toml:"version"`
		Platform string `toml:"platform"`
	}
)

// ReadManifest opens the package at path and decodes its plugin.toml.
// Returns ErrNoManifest (wrapped) when the entry is absent, and a decode
// error when it is present but malformed.
func ReadManifest(path string) (*Manifest, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening package %s: %w", path, err)
	}
	defer func() { _ = zr.Close() }() // read-only archive handle

	return readManifestFromZip(&zr.Reader)
}

func readManifestFromZip(zr *zip.Reader) (*Manifest, error) {
	for _, f := range zr.File {
		if f.Name != ManifestEntry {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", ManifestEntry, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxManifestBytes))
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ManifestEntry, err)
		}

		var m Manifest
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", ManifestEntry, err)
		}
		return &m, nil
	}

	return nil, fmt.Errorf("%w: missing %s", ErrNoManifest, ManifestEntry)
}

// isMetaEntry reports whether name lives under the metadata directory.
// Metadata entries are exempt from the signature coverage requirement.
func isMetaEntry(name string) bool {
	return strings.HasPrefix(name, MetaDir)
}
