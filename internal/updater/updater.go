// SPDX-License-Identifier: MPL-2.0

// Package updater wires the update engine together: the artifact
// registry, the release resolver, the download pipeline and the install
// ledger, driven by one configuration. Services are constructed
// explicitly; there are no package globals.
package updater

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"updraft/internal/config"
	"updraft/internal/ledger"
	"updraft/internal/notify"
	"updraft/internal/pipeline"
	"updraft/internal/registry"
	"updraft/internal/release"
	"updraft/internal/resolver"
	"updraft/internal/validate"
)

// LedgerFileName is the install ledger kept inside the install dir.
const LedgerFileName = ".updraft-ledger.json"

type (
	// Mandate is a host-mandated version pin for one artifact.
	Mandate struct {
		Version  string
		Required bool
	}

	// CheckReport is the outcome of one check pass.
	CheckReport struct {
		Updates  []notify.Update
		Failures []resolver.CheckFailure
	}

	// Updater is the update engine.
	Updater struct {
		cfg      *config.Config
		registry *registry.Registry
		resolver *resolver.Resolver
		pipeline *pipeline.Pipeline
		ledger   *ledger.Ledger
		notifier notify.Notifier
		raw      RawFetcher
		logger   *log.Logger
	}

	// Option configures an Updater during construction.
	Option func(*options)

	options struct {
		source     resolver.ReleaseSource
		raw        RawFetcher
		notifier   notify.Notifier
		logger     *log.Logger
		ledgerPath string
		signers    validate.TrustedSigners
	}
)

// WithReleaseSource overrides the release source. Tests use this to
// avoid the network.
func WithReleaseSource(s resolver.ReleaseSource) Option {
	return func(o *options) {
		o.source = s
	}
}

// WithRawFetcher overrides the raw-file fetcher the authority flow
// uses. Defaults to the release source when it supports raw fetches.
func WithRawFetcher(f RawFetcher) Option {
	return func(o *options) {
		o.raw = f
	}
}

// WithNotifier sets the event sink. Defaults to a LogNotifier.
func WithNotifier(n notify.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithLedgerPath overrides the ledger location. Defaults to
// LedgerFileName inside the install dir.
func WithLedgerPath(path string) Option {
	return func(o *options) {
		o.ledgerPath = path
	}
}

// WithTrustedSigners sets the signer allow-list for package validation.
func WithTrustedSigners(s validate.TrustedSigners) Option {
	return func(o *options) {
		o.signers = s
	}
}

// New builds an Updater from the configuration. Invalid artifact
// entries have already been dropped by the config loader; entries that
// still fail registration are skipped with a warning.
func New(cfg *config.Config, opts ...Option) *Updater {
	o := options{
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.notifier == nil {
		o.notifier = notify.NewLogNotifier(o.logger)
	}
	if o.source == nil {
		o.source = release.NewClient(
			release.WithCache(release.NewCache()),
			release.WithLogger(o.logger),
		)
	}
	if o.raw == nil {
		if f, ok := o.source.(RawFetcher); ok {
			o.raw = f
		}
	}
	if o.ledgerPath == "" {
		o.ledgerPath = filepath.Join(cfg.InstallDir, LedgerFileName)
	}

	reg := registry.New(registry.WithLogger(o.logger))
	for _, a := range cfg.Artifacts {
		if err := reg.Register(a); err != nil {
			o.logger.Warn("skipping artifact", "artifact", a.ID, "err", err)
		}
	}

	validator := validate.New(
		validate.WithRequireSignature(cfg.RequireSignature),
		validate.WithTrustedSigners(o.signers),
		validate.WithLogger(o.logger),
	)

	return &Updater{
		cfg:      cfg,
		registry: reg,
		resolver: resolver.New(o.source, resolver.WithLogger(o.logger)),
		pipeline: pipeline.New(cfg.InstallDir, validator,
			pipeline.WithAutoInstall(cfg.AutoInstall),
			pipeline.WithTimeout(cfg.DownloadTimeout()),
			pipeline.WithLogger(o.logger),
		),
		ledger:   ledger.New(o.ledgerPath, ledger.WithLogger(o.logger)),
		notifier: o.notifier,
		raw:      o.raw,
		logger:   o.logger,
	}
}

// Registry exposes the artifact registry for registration commands.
func (u *Updater) Registry() *registry.Registry { return u.registry }

// ApplyMandates feeds host-mandated version pins into the resolver,
// overriding whatever the release source advertises.
func (u *Updater) ApplyMandates(mandates map[string]Mandate) {
	for id, m := range mandates {
		if _, ok := u.registry.Get(id); !ok {
			u.logger.Warn("mandate for unknown artifact ignored", "artifact", id)
			continue
		}
		u.resolver.RecordMandate(id, m.Version, m.Required)
	}
}

// ScanLocal detects the installed version of every enabled artifact
// without touching the network.
func (u *Updater) ScanLocal() {
	for _, a := range u.registry.Enabled() {
		if _, _, err := u.resolver.DetectLocal(u.cfg.InstallDir, a); err != nil {
			u.logger.Warn("local scan failed", "artifact", a.ID, "err", err)
		}
	}
}

// Check scans local installs, queries the release source for every
// enabled artifact and reports what is out of date. Per-artifact
// failures are reported, never fatal.
func (u *Updater) Check(ctx context.Context) CheckReport {
	if err := u.SyncAuthority(ctx); err != nil {
		u.notifier.Error(fmt.Sprintf("authority sync failed: %v", err))
	}
	if !u.cfg.Enabled {
		u.logger.Info("updates disabled by configuration")
		return CheckReport{}
	}

	artifacts := u.registry.Enabled()
	u.notifier.CheckingStarted(len(artifacts))

	u.ScanLocal()

	failures := u.resolver.CheckAll(ctx, artifacts)
	for _, f := range failures {
		u.notifier.Error(fmt.Sprintf("check failed for %s: %v", f.ArtifactID, f.Err))
	}

	var updates []notify.Update
	for _, s := range u.resolver.WithUpdates() {
		updates = append(updates, notify.Update{
			ArtifactID: s.ArtifactID,
			From:       s.Local,
			To:         s.Target(),
		})
	}

	if len(updates) == 0 {
		u.notifier.NoUpdates()
	} else {
		u.notifier.UpdatesFound(updates)
	}

	return CheckReport{Updates: updates, Failures: failures}
}

// Run performs one full update pass: check, then — when auto-download
// is enabled — download, validate and install everything out of date,
// recording installs in the ledger.
func (u *Updater) Run(ctx context.Context) (CheckReport, pipeline.Results) {
	report := u.Check(ctx)
	if !u.cfg.AutoDownload || len(report.Updates) == 0 {
		return report, pipeline.Results{}
	}
	return report, u.Download(ctx)
}

// Download stages and executes downloads for every artifact the
// resolver currently flags, regardless of the auto-download setting.
func (u *Updater) Download(ctx context.Context) pipeline.Results {
	for _, s := range u.resolver.WithUpdates() {
		a, ok := u.registry.Get(s.ArtifactID)
		if !ok {
			continue
		}
		u.pipeline.Enqueue(a, s)
	}

	pending := u.pipeline.Pending()
	if pending == 0 {
		return pipeline.Results{}
	}
	u.notifier.DownloadStarted(pending)

	res := u.pipeline.RunAll(ctx)
	for _, r := range res.Installed {
		if err := u.ledger.Record(r.ArtifactID, r.OldVersion, r.Version); err != nil {
			u.logger.Error("recording install failed", "artifact", r.ArtifactID, "err", err)
		}
		u.resolver.RecordLocal(r.ArtifactID, r.Version)
	}

	u.notifier.DownloadFinished(len(res.Installed)+len(res.Staged), len(res.Failed))
	return res
}

// States returns the resolved state of every registered artifact, in
// registry order. Artifacts never checked yield a zero state carrying
// only the id.
func (u *Updater) States() []resolver.State {
	var out []resolver.State
	for _, a := range u.registry.All() {
		s, ok := u.resolver.Lookup(a.ID)
		if !ok {
			s = resolver.State{ArtifactID: a.ID}
		}
		out = append(out, s)
	}
	return out
}

// RestartRequired reports whether an install since the last
// acknowledgment needs a host restart.
func (u *Updater) RestartRequired() (bool, error) {
	return u.ledger.RestartRequired()
}

// AcknowledgeRestart clears the restart flag.
func (u *Updater) AcknowledgeRestart() error {
	return u.ledger.ClearRestartRequired()
}

// History returns the persisted install records, oldest first.
func (u *Updater) History() ([]ledger.Record, error) {
	return u.ledger.Records()
}

// Start runs the configured check schedule until ctx is cancelled: one
// pass on startup when check_on_startup is set, then one per interval.
// A zero interval means startup-only.
func (u *Updater) Start(ctx context.Context) error {
	if !u.cfg.Enabled {
		u.logger.Info("updates disabled by configuration")
		return nil
	}

	if u.cfg.CheckOnStartup {
		u.Run(ctx)
	}

	interval := u.cfg.CheckInterval()
	if interval == 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			u.Run(ctx)
		}
	}
}
