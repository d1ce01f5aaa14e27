// SPDX-License-Identifier: MPL-2.0

// Package ledger durably records completed installs. Every mutation is
// a full read-modify-write of the JSON state file serialized with a
// file lock, so concurrent processes never lose each other's records
// and a crash mid-run never loses prior installs.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofrs/flock"
)

type (
	// Record is one completed install.
	Record struct {
		ArtifactID string    `json:"artifact_id"`
		OldVersion string    `json:"old_version,omitempty"`
		NewVersion string    `json:"new_version"`
		Timestamp  time.Time `json:"timestamp"`
	}

	// state is the persisted wire shape.
	state struct {
		LastUpdate      time.Time `json:"last_update"`
		Updated         []Record  `json:"updated"`
		RestartRequired bool      `json:"restart_required"`
	}

	// Ledger persists install records at a fixed path. Safe for
	// concurrent use across goroutines and processes.
	Ledger struct {
		path string
		lock *flock.Flock
		now  func() time.Time

		logger *log.Logger
	}

	// LedgerOption configures a Ledger during construction.
	LedgerOption func(*Ledger)
)

// WithClock injects the time source. Tests use this to pin timestamps.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLogger overrides the default package logger.
func WithLogger(lg *log.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = lg
	}
}

// New creates a Ledger persisting to path. The file and its parent
// directory are created on first mutation.
func New(path string, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		path:   path,
		lock:   flock.New(path + ".lock"),
		now:    time.Now,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one install record, stamps LastUpdate and flags a
// restart, then writes the whole state back.
func (l *Ledger) Record(artifactID, oldVersion, newVersion string) error {
	return l.mutate(func(s *state) {
		now := l.now()
		s.Updated = append(s.Updated, Record{
			ArtifactID: artifactID,
			OldVersion: oldVersion,
			NewVersion: newVersion,
			Timestamp:  now,
		})
		s.LastUpdate = now
		s.RestartRequired = true
		l.logger.Debug("install recorded", "artifact", artifactID, "from", oldVersion, "to", newVersion)
	})
}

// Records returns every persisted install record, oldest first.
func (l *Ledger) Records() ([]Record, error) {
	s, err := l.read()
	if err != nil {
		return nil, err
	}
	return s.Updated, nil
}

// LastUpdate returns the timestamp of the most recent install, zero
// when nothing was ever installed.
func (l *Ledger) LastUpdate() (time.Time, error) {
	s, err := l.read()
	if err != nil {
		return time.Time{}, err
	}
	return s.LastUpdate, nil
}

// RestartRequired reports whether an install since the last
// acknowledgment needs a host restart.
func (l *Ledger) RestartRequired() (bool, error) {
	s, err := l.read()
	if err != nil {
		return false, err
	}
	return s.RestartRequired, nil
}

// ClearRestartRequired acknowledges the restart flag. Install records
// are kept.
func (l *Ledger) ClearRestartRequired() error {
	return l.mutate(func(s *state) {
		s.RestartRequired = false
	})
}

// mutate runs fn on the persisted state under the file lock and writes
// the result back atomically.
func (l *Ledger) mutate(fn func(*state)) error {
	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("locking ledger: %w", err)
	}
	defer func() { _ = l.lock.Unlock() }() // lock release is best-effort

	s, err := l.read()
	if err != nil {
		return err
	}
	fn(s)
	return l.write(s)
}

// read loads the persisted state. A missing file is an empty ledger.
func (l *Ledger) read() (*state, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return &state{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}

	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding ledger %s: %w", l.path, err)
	}
	return &s, nil
}

// write persists the state via a temp file and rename so readers never
// observe a torn ledger.
func (l *Ledger) write(s *state) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("preparing ledger dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("creating ledger temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("flushing ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}
