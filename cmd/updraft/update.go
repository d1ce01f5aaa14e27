// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Download, validate and install available updates",
	Long: `Update checks every enabled artifact and downloads what is out of
date. Packages are validated before they replace the installed copy;
with auto_install disabled they are staged with a .pending suffix
instead. An explicit update ignores the auto_download setting.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		cfg, _ := loadConfig(logger)

		u := newUpdater(cfg, logger)
		report := u.Check(cmd.Context())
		printUpdates(report.Updates)
		if len(report.Updates) == 0 {
			return nil
		}

		res := u.Download(cmd.Context())

		for _, r := range res.Installed {
			fmt.Println(SuccessStyle.Render("  installed ") +
				ArtifactStyle.Render(r.ArtifactID) + " " + r.Version)
		}
		for _, r := range res.Staged {
			fmt.Println(WarningStyle.Render("  staged ") +
				ArtifactStyle.Render(r.ArtifactID) + " " + r.Version + " (" + r.Path + ")")
		}
		for _, f := range res.Failed {
			fmt.Println(ErrorStyle.Render("  failed ") +
				ArtifactStyle.Render(f.ArtifactID) + " " + f.Version + ": " + f.Reason)
		}

		if len(res.Installed) > 0 {
			fmt.Println(WarningStyle.Render("Restart the host to load the new versions."))
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("%d update(s) failed", len(res.Failed))
		}
		return nil
	},
}
