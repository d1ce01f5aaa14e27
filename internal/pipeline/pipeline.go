// SPDX-License-Identifier: MPL-2.0

// Package pipeline downloads and installs update packages. Tasks are
// staged with Enqueue and executed by RunAll under a fixed global
// concurrency cap; each task streams its package to a temp file in the
// install dir and only renames it into place after the full body has
// arrived and validation passed.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"updraft/internal/registry"
	"updraft/internal/resolver"
	"updraft/internal/semver"
	"updraft/internal/validate"
)

const (
	// MaxConcurrentDownloads caps in-flight downloads globally, however
	// many tasks are queued.
	MaxConcurrentDownloads = 3

	// DefaultTimeout bounds one download end to end.
	DefaultTimeout = 30 * time.Second

	// PendingSuffix marks a downloaded package staged for manual install.
	PendingSuffix = ".pending"
)

type (
	// Task is one staged download.
	Task struct {
		Artifact registry.Artifact
		// Version is the target version being fetched.
		Version string
		URL     string
		// OldVersion is the installed version this download supersedes,
		// "" when nothing is installed.
		OldVersion string
	}

	// InstallResult records one package that was downloaded, validated
	// and moved into place (or staged, when auto-install is off).
	InstallResult struct {
		ArtifactID string
		OldVersion string
		Version    string
		Path       string
	}

	// TaskFailure records one task that did not complete, with a
	// human-readable reason. A failed task never affects its siblings.
	TaskFailure struct {
		ArtifactID string
		Version    string
		Reason     string
	}

	// Results is the complete partition of one RunAll pass: every queued
	// task lands in exactly one of the three lists.
	Results struct {
		Installed []InstallResult
		Staged    []InstallResult
		Failed    []TaskFailure
	}

	// ProgressFunc receives download progress. total is -1 when the
	// server declares no Content-Length.
	ProgressFunc func(artifactID string, received, total int64)

	// Pipeline stages and executes download tasks. Safe for concurrent
	// use; Enqueue may race with other Enqueues but not with RunAll.
	Pipeline struct {
		mu    sync.Mutex
		queue []Task

		httpClient  *http.Client
		installDir  string
		validator   *validate.Validator
		autoInstall bool
		timeout     time.Duration
		progress    ProgressFunc
		logger      *log.Logger
	}

	// PipelineOption configures a Pipeline during construction.
	PipelineOption func(*Pipeline)
)

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) PipelineOption {
	return func(p *Pipeline) {
		p.httpClient = c
	}
}

// WithTimeout overrides the per-download timeout.
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithAutoInstall controls whether validated packages are installed
// immediately or staged next to the install dir with a pending marker.
func WithAutoInstall(install bool) PipelineOption {
	return func(p *Pipeline) {
		p.autoInstall = install
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) PipelineOption {
	return func(p *Pipeline) {
		p.progress = fn
	}
}

// WithLogger overrides the default package logger.
func WithLogger(l *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline installing into installDir and validating
// every download with validator.
func New(installDir string, validator *validate.Validator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		httpClient:  &http.Client{},
		installDir:  installDir,
		validator:   validator,
		autoInstall: true,
		timeout:     DefaultTimeout,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue stages a download for the artifact's resolved state. Returns
// false without staging when the state carries no download URL or the
// target falls below the artifact's minimum version. A version that
// does not parse never blocks the download; the floor check fails open.
func (p *Pipeline) Enqueue(a registry.Artifact, s resolver.State) bool {
	if s.DownloadURL == "" {
		p.logger.Debug("skipping artifact without download url", "artifact", a.ID)
		return false
	}

	target := s.Target()
	if a.MinVersion != "" {
		tv, terr := semver.Parse(target)
		mv, merr := semver.Parse(a.MinVersion)
		if terr == nil && merr == nil && tv.LessThan(mv) {
			p.logger.Warn("target below minimum version, skipping",
				"artifact", a.ID, "target", target, "min", a.MinVersion)
			return false
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, Task{
		Artifact:   a,
		Version:    target,
		URL:        s.DownloadURL,
		OldVersion: s.Local,
	})
	return true
}

// Pending returns the number of staged tasks.
func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// RunAll executes every staged task and drains the queue. At most
// MaxConcurrentDownloads tasks hold a download slot at once; the rest
// block on the semaphore. The returned Results account for every task.
func (p *Pipeline) RunAll(ctx context.Context) Results {
	p.mu.Lock()
	tasks := p.queue
	p.queue = nil
	p.mu.Unlock()

	var (
		res   Results
		resMu sync.Mutex
		wg    sync.WaitGroup
	)
	sem := semaphore.NewWeighted(MaxConcurrentDownloads)

	for _, t := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				resMu.Lock()
				res.Failed = append(res.Failed, TaskFailure{
					ArtifactID: t.Artifact.ID, Version: t.Version, Reason: err.Error(),
				})
				resMu.Unlock()
				return
			}
			defer sem.Release(1)

			path, installed, err := p.run(ctx, t)
			resMu.Lock()
			defer resMu.Unlock()
			if err != nil {
				p.logger.Error("update failed", "artifact", t.Artifact.ID, "version", t.Version, "err", err)
				res.Failed = append(res.Failed, TaskFailure{
					ArtifactID: t.Artifact.ID, Version: t.Version, Reason: err.Error(),
				})
				return
			}

			r := InstallResult{
				ArtifactID: t.Artifact.ID,
				OldVersion: t.OldVersion,
				Version:    t.Version,
				Path:       path,
			}
			if installed {
				res.Installed = append(res.Installed, r)
			} else {
				res.Staged = append(res.Staged, r)
			}
		}()
	}
	wg.Wait()

	return res
}

// run executes one task: stream the package to a temp file, validate,
// and either install it under its final name or stage it with the
// pending marker. Reports whether the package was installed.
func (p *Pipeline) run(ctx context.Context, t Task) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := os.MkdirAll(p.installDir, 0o755); err != nil {
		return "", false, fmt.Errorf("preparing install dir: %w", err)
	}

	tmp, err := p.download(ctx, t)
	if err != nil {
		return "", false, err
	}

	if !p.autoInstall {
		staged := filepath.Join(p.installDir, t.Artifact.InstalledName(t.Version)+PendingSuffix)
		if err := os.Rename(tmp, staged); err != nil {
			_ = os.Remove(tmp)
			return "", false, fmt.Errorf("staging package: %w", err)
		}
		p.logger.Info("update staged", "artifact", t.Artifact.ID, "version", t.Version, "path", staged)
		return staged, false, nil
	}

	if err := p.validator.Validate(tmp); err != nil {
		_ = os.Remove(tmp)
		return "", false, err
	}

	dest := filepath.Join(p.installDir, t.Artifact.InstalledName(t.Version))
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return "", false, fmt.Errorf("installing package: %w", err)
	}

	p.removeSuperseded(t, dest)

	p.logger.Info("update installed", "artifact", t.Artifact.ID,
		"from", t.OldVersion, "to", t.Version)
	return dest, true, nil
}

// download streams the package body into a temp file in the install dir
// and returns the temp path. The caller owns the file.
func (p *Pipeline) download(ctx context.Context, t Task) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return "", fmt.Errorf("building download request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", t.Artifact.ID, err)
	}
	defer func() { _ = resp.Body.Close() }() // best-effort body close

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: unexpected status %d", t.Artifact.ID, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(p.installDir, "."+t.Artifact.ID+"-*.part")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}

	var w io.Writer = tmp
	if p.progress != nil {
		w = io.MultiWriter(tmp, &progressWriter{
			id:       t.Artifact.ID,
			total:    resp.ContentLength,
			progress: p.progress,
		})
	}

	_, copyErr := io.Copy(w, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return "", fmt.Errorf("receiving %s: %w", t.Artifact.ID, copyErr)
		}
		return "", fmt.Errorf("flushing %s: %w", t.Artifact.ID, closeErr)
	}

	return tmp.Name(), nil
}

// removeSuperseded deletes the previously installed copy, but only
// after the new file is already in place.
func (p *Pipeline) removeSuperseded(t Task, dest string) {
	if t.OldVersion == "" {
		return
	}
	old := filepath.Join(p.installDir, t.Artifact.InstalledName(t.OldVersion))
	if old == dest {
		return
	}
	if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("could not remove superseded file", "path", old, "err", err)
	}
}

// progressWriter relays byte counts to the registered callback.
type progressWriter struct {
	id       string
	total    int64
	received int64
	progress ProgressFunc
}

func (w *progressWriter) Write(b []byte) (int, error) {
	w.received += int64(len(b))
	w.progress(w.id, w.received, w.total)
	return len(b), nil
}
