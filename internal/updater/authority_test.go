// SPDX-License-Identifier: MPL-2.0

package updater

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"updraft/internal/notify"
	"updraft/internal/release"
)

// fakeRawFetcher serves one canned authority config body.
type fakeRawFetcher struct {
	body string
	err  error

	repo, path, branch string
}

func (f *fakeRawFetcher) FetchRawFile(_ context.Context, repo, path, branch string) (string, error) {
	f.repo, f.path, f.branch = repo, path, branch
	return f.body, f.err
}

func authorityUpdater(t *testing.T, raw RawFetcher, releases map[string]*release.Release) *Updater {
	t.Helper()

	cfg := demoConfig(t.TempDir())
	cfg.AuthorityRepo = "owner/authority"
	cfg.Normalize(log.New(io.Discard))

	return New(cfg,
		WithReleaseSource(&fakeSource{releases: releases}),
		WithRawFetcher(raw),
		WithNotifier(notify.NopNotifier{}),
		WithLogger(log.New(io.Discard)),
	)
}

func TestSyncAuthorityAppliesMandates(t *testing.T) {
	raw := &fakeRawFetcher{body: `
[mandates.demo]
version = "1.2.0"
required = true
`}
	u := authorityUpdater(t, raw, nil)

	if err := u.SyncAuthority(t.Context()); err != nil {
		t.Fatalf("SyncAuthority returned error: %v", err)
	}
	if raw.repo != "owner/authority" || raw.path != "updraft.toml" || raw.branch != "main" {
		t.Errorf("fetched %s/%s@%s, want the configured authority location", raw.repo, raw.path, raw.branch)
	}

	states := u.States()
	if len(states) != 1 || states[0].Mandated != "1.2.0" || !states[0].Required {
		t.Errorf("states = %+v, want the mandate pinned", states)
	}
}

func TestSyncAuthorityReplacesArtifactList(t *testing.T) {
	raw := &fakeRawFetcher{body: `
[[artifacts]]
id = "replacement"
repo = "owner/replacement"
file_pattern = "replacement-{version}.zip"
enabled = true

[[artifacts]]
id = "broken"
repo = "owner/broken"
file_pattern = "no-placeholder.zip"
`}
	u := authorityUpdater(t, raw, nil)

	if err := u.SyncAuthority(t.Context()); err != nil {
		t.Fatalf("SyncAuthority returned error: %v", err)
	}

	if _, ok := u.Registry().Get("demo"); ok {
		t.Error("authority artifact list must replace the local one wholesale")
	}
	if _, ok := u.Registry().Get("replacement"); !ok {
		t.Error("authority artifact missing from the registry")
	}
	if _, ok := u.Registry().Get("broken"); ok {
		t.Error("invalid authority entry must be dropped")
	}
}

func TestSyncAuthorityDisablesUpdates(t *testing.T) {
	raw := &fakeRawFetcher{body: "enabled = false\n"}
	u := authorityUpdater(t, raw, map[string]*release.Release{
		"owner/demo": {
			TagName: "v1.1.0",
			Assets: []release.Asset{
				{Name: "demo-1.1.0.zip", BrowserDownloadURL: "https://example.test/demo-1.1.0.zip"},
			},
		},
	})

	report := u.Check(t.Context())
	if len(report.Updates) != 0 {
		t.Errorf("Updates = %+v, want none when the authority disables updates", report.Updates)
	}
}

func TestSyncAuthorityMissingFileIsNoop(t *testing.T) {
	u := authorityUpdater(t, &fakeRawFetcher{body: ""}, nil)

	if err := u.SyncAuthority(t.Context()); err != nil {
		t.Fatalf("missing authority config must be a no-op, got %v", err)
	}
	if _, ok := u.Registry().Get("demo"); !ok {
		t.Error("local artifact list must survive an absent authority config")
	}
}

func TestSyncAuthorityMalformedBody(t *testing.T) {
	u := authorityUpdater(t, &fakeRawFetcher{body: "not = [valid"}, nil)

	if err := u.SyncAuthority(t.Context()); err == nil {
		t.Fatal("malformed authority config must surface an error")
	}
	if _, ok := u.Registry().Get("demo"); !ok {
		t.Error("local configuration must survive a malformed authority config")
	}
}

func TestCheckContinuesAfterAuthorityFailure(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "demo-1.0.0.zip"), []byte("pkg"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := demoConfig(dir)
	cfg.AuthorityRepo = "owner/authority"
	cfg.Normalize(log.New(io.Discard))

	u := New(cfg,
		WithReleaseSource(&fakeSource{releases: map[string]*release.Release{
			"owner/demo": {
				TagName: "v1.1.0",
				Assets: []release.Asset{
					{Name: "demo-1.1.0.zip", BrowserDownloadURL: "https://example.test/demo-1.1.0.zip"},
				},
			},
		}}),
		WithRawFetcher(&fakeRawFetcher{err: context.DeadlineExceeded}),
		WithNotifier(notify.NopNotifier{}),
		WithLogger(log.New(io.Discard)),
	)

	report := u.Check(t.Context())
	if len(report.Updates) != 1 {
		t.Errorf("Updates = %+v, want the local config check to proceed", report.Updates)
	}
}
