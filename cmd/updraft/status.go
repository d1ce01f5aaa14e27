// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ackRestart bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show installed versions and the restart flag",
	Long: `Status lists every registered artifact with its installed version,
reports whether a completed install still needs a host restart, and
shows the recorded install history. No network requests are made.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		logger := newLogger()
		cfg, _ := loadConfig(logger)

		u := newUpdater(cfg, logger)

		if ackRestart {
			if err := u.AcknowledgeRestart(); err != nil {
				return fmt.Errorf("acknowledging restart: %w", err)
			}
			fmt.Println(SuccessStyle.Render("Restart acknowledged."))
		}

		u.ScanLocal()

		states := u.States()
		if len(states) == 0 {
			fmt.Println(SubtitleStyle.Render("No artifacts registered."))
		} else {
			fmt.Println(TitleStyle.Render("Artifacts:"))
			for _, s := range states {
				version := s.Local
				if version == "" {
					version = SubtitleStyle.Render("not installed")
				}
				line := fmt.Sprintf("  %s  %s", ArtifactStyle.Render(s.ArtifactID), version)
				if s.Mandated != "" {
					line += WarningStyle.Render(fmt.Sprintf("  (pinned to %s)", s.Mandated))
				}
				fmt.Println(line)
			}
		}

		restart, err := u.RestartRequired()
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		if restart {
			fmt.Println(WarningStyle.Render("A restart is required to load updated artifacts."))
		}

		history, err := u.History()
		if err != nil {
			return fmt.Errorf("reading ledger: %w", err)
		}
		if len(history) > 0 {
			fmt.Println(TitleStyle.Render("Install history:"))
			for _, r := range history {
				from := r.OldVersion
				if from == "" {
					from = "none"
				}
				fmt.Printf("  %s  %s -> %s  %s\n",
					ArtifactStyle.Render(r.ArtifactID), from, r.NewVersion,
					SubtitleStyle.Render(r.Timestamp.Format("2006-01-02 15:04")))
			}
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&ackRestart, "ack", false, "acknowledge the pending restart")
}
