// SPDX-License-Identifier: MPL-2.0

// Package resolver tracks the version state of every managed artifact
// (installed, remote, mandated) and decides whether an update applies.
package resolver

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"updraft/internal/registry"
	"updraft/internal/release"
	"updraft/internal/semver"
	"updraft/internal/validate"
)

type (
	// State is the resolved version picture of one artifact. Mandated
	// takes precedence over Remote as the update target; UpdateAvailable
	// is recomputed synchronously on every Record call, so reads never
	// observe a stale decision.
	State struct {
		ArtifactID string
		// Local is the installed version, or "" when nothing is installed.
		Local string
		// Remote is the newest version the release source advertises.
		Remote string
		// Mandated is a version pinned by the host, overriding Remote.
		Mandated string
		// Required marks a mandate whose failure the host treats as fatal.
		Required bool
		// DownloadURL is where the target version's package can be fetched,
		// or "" when the release carries no matching asset.
		DownloadURL     string
		UpdateAvailable bool
	}

	// ReleaseSource is the slice of the release client the resolver needs.
	ReleaseSource interface {
		LatestRelease(ctx context.Context, repo string, includePrerelease bool) (*release.Release, error)
	}

	// CheckFailure records one artifact whose remote check failed. A
	// failed check never aborts the checks of other artifacts.
	CheckFailure struct {
		ArtifactID string
		Err        error
	}

	// Resolver owns the per-artifact states. Safe for concurrent use.
	Resolver struct {
		mu     sync.RWMutex
		states map[string]*State
		source ReleaseSource
		logger *log.Logger
	}

	// ResolverOption configures a Resolver during construction.
	ResolverOption func(*Resolver)
)

// WithLogger overrides the default package logger.
func WithLogger(l *log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver backed by the given release source.
func New(source ReleaseSource, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		states: make(map[string]*State),
		source: source,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// state returns the tracked state for id, creating it if needed.
// Callers must hold r.mu.
func (r *Resolver) state(id string) *State {
	s, ok := r.states[id]
	if !ok {
		s = &State{ArtifactID: id}
		r.states[id] = s
	}
	return s
}

// RecordLocal records the installed version of an artifact. An empty
// version means nothing is installed.
func (r *Resolver) RecordLocal(id, version string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(id)
	s.Local = version
	s.recompute()
}

// RecordRemote records the newest advertised version and its download
// URL. An empty URL marks a release with no matching asset, which can
// never become an update.
func (r *Resolver) RecordRemote(id, version, downloadURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(id)
	s.Remote = version
	s.DownloadURL = downloadURL
	s.recompute()
}

// RecordMandate pins an artifact to a host-mandated version, overriding
// whatever the release source advertises. An empty version clears the
// mandate.
func (r *Resolver) RecordMandate(id, version string, required bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.state(id)
	s.Mandated = version
	s.Required = required
	s.recompute()
}

// Lookup returns a snapshot of the artifact's state.
func (r *Resolver) Lookup(id string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[id]
	if !ok {
		return State{}, false
	}
	return *s, true
}

// WithUpdates returns snapshots of every artifact with an update
// available, sorted by artifact id.
func (r *Resolver) WithUpdates() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []State
	for _, s := range r.states {
		if s.UpdateAvailable {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArtifactID < out[j].ArtifactID })
	return out
}

// Target returns the version an update would install: the mandate when
// one is set, the advertised remote version otherwise.
func (s *State) Target() string {
	if s.Mandated != "" {
		return s.Mandated
	}
	return s.Remote
}

// recompute derives UpdateAvailable from the current fields. With no
// target there is nothing to update to. With a target and nothing
// installed the target itself is the update. When either side fails to
// parse, any string difference counts as an update so an artifact never
// wedges on an unparseable installed version.
func (s *State) recompute() {
	target := s.Target()
	switch {
	case target == "":
		s.UpdateAvailable = false
	case s.Local == "":
		s.UpdateAvailable = true
	default:
		lv, lerr := semver.Parse(s.Local)
		tv, terr := semver.Parse(target)
		if lerr != nil || terr != nil {
			s.UpdateAvailable = s.Local != target
			return
		}
		s.UpdateAvailable = tv.GreaterThan(lv)
	}
}

// CheckAll queries the release source for every artifact concurrently
// and records what it finds. Per-repository coalescing happens in the
// release cache, so checks are not capped here. One artifact's failure
// is recorded and returned but never stops the others.
func (r *Resolver) CheckAll(ctx context.Context, artifacts []registry.Artifact) []CheckFailure {
	var (
		mu       sync.Mutex
		failures []CheckFailure
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, a := range artifacts {
		g.Go(func() error {
			rel, err := r.source.LatestRelease(ctx, a.Repo, a.Channel.IncludePrerelease())
			if err != nil {
				r.logger.Warn("release check failed", "artifact", a.ID, "repo", a.Repo, "err", err)
				mu.Lock()
				failures = append(failures, CheckFailure{ArtifactID: a.ID, Err: err})
				mu.Unlock()
				return nil
			}
			if rel == nil {
				r.logger.Debug("no release published", "artifact", a.ID, "repo", a.Repo)
				return nil
			}

			var url string
			if asset := rel.FindAsset(a.FilePattern); asset != nil {
				url = asset.BrowserDownloadURL
			} else {
				r.logger.Warn("release has no matching asset", "artifact", a.ID, "version", rel.Version())
			}
			r.RecordRemote(a.ID, rel.Version(), url)
			return nil
		})
	}
	_ = g.Wait() // goroutines only record failures, never return them

	sort.Slice(failures, func(i, j int) bool { return failures[i].ArtifactID < failures[j].ArtifactID })
	return failures
}

// DetectLocal scans dir for an installed copy of the artifact and
// records what it finds. The file pattern is matched in reverse: the
// {version} placeholder becomes a capture group and the newest matching
// file wins. When the captured version does not parse, the version
// embedded in the package manifest is preferred if it is readable.
// Returns the matched path and version, both "" when nothing is
// installed.
func (r *Resolver) DetectLocal(dir string, a registry.Artifact) (string, string, error) {
	re, err := patternRegexp(a.FilePattern)
	if err != nil {
		return "", "", err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			r.RecordLocal(a.ID, "")
			return "", "", nil
		}
		return "", "", err
	}

	var (
		bestName    string
		bestVersion string
		bestMod     int64
	)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if bestName == "" || info.ModTime().UnixNano() > bestMod {
			bestName = e.Name()
			bestVersion = m[1]
			bestMod = info.ModTime().UnixNano()
		}
	}

	if bestName == "" {
		r.RecordLocal(a.ID, "")
		return "", "", nil
	}

	path := filepath.Join(dir, bestName)
	if _, err := semver.Parse(bestVersion); err != nil {
		if m, merr := validate.ReadManifest(path); merr == nil && m.Version != "" {
			r.logger.Debug("using manifest version", "artifact", a.ID, "file", bestName, "version", m.Version)
			bestVersion = m.Version
		}
	}

	r.RecordLocal(a.ID, bestVersion)
	return path, bestVersion, nil
}

// patternRegexp compiles a file pattern into an anchored regexp whose
// single capture group matches the version.
func patternRegexp(pattern string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(pattern)
	expr := "^" + strings.Replace(quoted, regexp.QuoteMeta(registry.VersionPlaceholder), `(.+)`, 1) + "$"
	return regexp.Compile(expr)
}
