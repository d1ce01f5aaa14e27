// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"updraft/internal/notify"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report available updates without changing anything",
	Long: `Check queries the release source for every enabled artifact and
reports which installed versions are out of date. Nothing is downloaded
or installed.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		cfg, _ := loadConfig(logger)

		u := newUpdater(cfg, logger)
		report := u.Check(cmd.Context())

		printUpdates(report.Updates)
		for _, f := range report.Failures {
			fmt.Println(ErrorStyle.Render("  check failed: ") + f.ArtifactID + ": " + f.Err.Error())
		}
		return nil
	},
}

// printUpdates renders the update list for check and update output.
func printUpdates(updates []notify.Update) {
	if len(updates) == 0 {
		fmt.Println(SuccessStyle.Render("All artifacts are up to date."))
		return
	}

	fmt.Println(TitleStyle.Render(fmt.Sprintf("%d update(s) available:", len(updates))))
	for _, up := range updates {
		from := up.From
		if from == "" {
			from = "not installed"
		}
		fmt.Printf("  %s  %s -> %s\n",
			ArtifactStyle.Render(up.ArtifactID), from, ArtifactStyle.Render(up.To))
	}
}
