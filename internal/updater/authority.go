// SPDX-License-Identifier: MPL-2.0

package updater

import (
	"context"
	"fmt"

	"github.com/pelletier/go-toml/v2"

	"updraft/internal/registry"
)

type (
	// RawFetcher is the slice of the release client that fetches raw
	// repository files. The authority flow is built on it.
	RawFetcher interface {
		FetchRawFile(ctx context.Context, repo, path, branch string) (string, error)
	}

	// authorityConfig is the wire shape of an authority-published config:
	// an artifact list that replaces the local one wholesale, plus
	// version mandates keyed by artifact id.
	authorityConfig struct {
		Enabled   *bool                       `toml:"enabled"`
		Artifacts []registry.Artifact         `toml:"artifacts"`
		Mandates  map[string]authorityMandate `toml:"mandates"`
	}

	authorityMandate struct {
		Version  string `toml:"version"`
		Required bool   `toml:"required"`
	}
)

// SyncAuthority fetches the authority config published in the
// configured repository and applies it: the artifact list replaces the
// registry wholesale and every mandate is pinned in the resolver. A
// missing file or unset authority repo is a no-op; a transport or parse
// failure is returned so the caller can report it and carry on with the
// local configuration.
func (u *Updater) SyncAuthority(ctx context.Context) error {
	if u.cfg.AuthorityRepo == "" || u.raw == nil {
		return nil
	}

	body, err := u.raw.FetchRawFile(ctx, u.cfg.AuthorityRepo, u.cfg.AuthorityPath, u.cfg.AuthorityBranch)
	if err != nil {
		return fmt.Errorf("fetching authority config: %w", err)
	}
	if body == "" {
		u.logger.Debug("no authority config published", "repo", u.cfg.AuthorityRepo)
		return nil
	}

	var ac authorityConfig
	if err := toml.Unmarshal([]byte(body), &ac); err != nil {
		return fmt.Errorf("decoding authority config: %w", err)
	}

	if ac.Enabled != nil && !*ac.Enabled {
		u.logger.Info("updates disabled by authority", "repo", u.cfg.AuthorityRepo)
		u.cfg.Enabled = false
		return nil
	}

	if len(ac.Artifacts) > 0 {
		n := u.registry.Reload(ac.Artifacts)
		u.logger.Info("authority artifact list applied", "accepted", n, "published", len(ac.Artifacts))
	}

	mandates := make(map[string]Mandate, len(ac.Mandates))
	for id, m := range ac.Mandates {
		mandates[id] = Mandate{Version: m.Version, Required: m.Required}
	}
	u.ApplyMandates(mandates)

	return nil
}
