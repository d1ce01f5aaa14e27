// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"updraft/internal/config"
	"updraft/internal/registry"
)

var (
	registerMinVersion string
	registerChannel    string
	registerRequired   bool
	registerDisabled   bool
)

var registerCmd = &cobra.Command{
	Use:   "register <id> <owner/repo> <file-pattern>",
	Short: "Register an artifact and persist it to the configuration",
	Long: `Register adds a managed artifact. The file pattern must contain the
{version} placeholder exactly once; it names both the release asset to
download and the installed file.

Example:
  updraft register landscaper owner/landscaper "landscaper-{version}.zip"`,
	Args: cobra.ExactArgs(3),
	RunE: func(_ *cobra.Command, args []string) error {
		logger := newLogger()
		cfg, resolved := loadConfig(logger)

		a := registry.Artifact{
			ID:          args[0],
			Repo:        args[1],
			FilePattern: args[2],
			Enabled:     !registerDisabled,
			MinVersion:  registerMinVersion,
			Channel:     registry.Channel(registerChannel),
			Required:    registerRequired,
		}
		if err := a.Validate(); err != nil {
			return err
		}

		for _, existing := range cfg.Artifacts {
			if existing.ID == a.ID {
				return fmt.Errorf("artifact %q is already registered", a.ID)
			}
		}

		cfg.Artifacts = append(cfg.Artifacts, a)
		path, err := config.Save(cfg, resolved)
		if err != nil {
			return fmt.Errorf("persisting configuration: %w", err)
		}

		fmt.Println(SuccessStyle.Render("Registered ") + ArtifactStyle.Render(a.ID) +
			SubtitleStyle.Render(" ("+path+")"))
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerMinVersion, "min-version", "", "lowest version that may be installed")
	registerCmd.Flags().StringVar(&registerChannel, "channel", registry.ChannelStable.String(), "release channel (stable, prerelease)")
	registerCmd.Flags().BoolVar(&registerRequired, "required", false, "treat update failures as fatal")
	registerCmd.Flags().BoolVar(&registerDisabled, "disabled", false, "register without enabling update checks")
}
