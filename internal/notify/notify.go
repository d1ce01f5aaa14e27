// SPDX-License-Identifier: MPL-2.0

// Package notify decouples update progress reporting from the engine.
// The host chooses how events surface (log lines, console output, a
// UI); the engine only emits them.
package notify

import (
	"github.com/charmbracelet/log"
)

type (
	// Update describes one available update for notification purposes.
	Update struct {
		ArtifactID string
		// From is the installed version, "" when nothing is installed.
		From string
		To   string
	}

	// Notifier receives the update lifecycle events.
	Notifier interface {
		// CheckingStarted fires before count artifacts are checked.
		CheckingStarted(count int)
		// UpdatesFound fires with every available update after a check.
		UpdatesFound(updates []Update)
		// NoUpdates fires when a check finds everything current.
		NoUpdates()
		// DownloadStarted fires before count downloads begin.
		DownloadStarted(count int)
		// DownloadFinished fires with the final tallies of one pipeline run.
		DownloadFinished(successes, failures int)
		// Error fires for operational problems worth surfacing.
		Error(msg string)
	}

	// LogNotifier reports events through a structured logger.
	LogNotifier struct {
		logger *log.Logger
	}

	// NopNotifier discards every event.
	NopNotifier struct{}
)

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = NopNotifier{}
)

// NewLogNotifier creates a LogNotifier on the given logger.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) CheckingStarted(count int) {
	n.logger.Info("checking for updates", "artifacts", count)
}

func (n *LogNotifier) UpdatesFound(updates []Update) {
	for _, u := range updates {
		if u.From == "" {
			n.logger.Info("update available", "artifact", u.ArtifactID, "version", u.To)
			continue
		}
		n.logger.Info("update available", "artifact", u.ArtifactID, "from", u.From, "to", u.To)
	}
}

func (n *LogNotifier) NoUpdates() {
	n.logger.Info("all artifacts up to date")
}

func (n *LogNotifier) DownloadStarted(count int) {
	n.logger.Info("downloading updates", "count", count)
}

func (n *LogNotifier) DownloadFinished(successes, failures int) {
	if failures > 0 {
		n.logger.Warn("downloads finished", "succeeded", successes, "failed", failures)
		return
	}
	n.logger.Info("downloads finished", "succeeded", successes)
}

func (n *LogNotifier) Error(msg string) {
	n.logger.Error(msg)
}

func (NopNotifier) CheckingStarted(int)       {}
func (NopNotifier) UpdatesFound([]Update)     {}
func (NopNotifier) NoUpdates()                {}
func (NopNotifier) DownloadStarted(int)       {}
func (NopNotifier) DownloadFinished(int, int) {}
func (NopNotifier) Error(string)              {}
