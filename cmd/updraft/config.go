// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"updraft/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and manage the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(_ *cobra.Command, _ []string) error {
		logger := newLogger()
		cfg, resolved := loadConfig(logger)

		if resolved == "" {
			fmt.Println(SubtitleStyle.Render("No config file found; showing defaults."))
		} else {
			fmt.Println(SubtitleStyle.Render("Config file: " + resolved))
		}

		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		_, _ = os.Stdout.Write(data)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file if none exists",
	RunE: func(_ *cobra.Command, _ []string) error {
		path := cfgFile
		if path == "" {
			def, err := config.DefaultPath()
			if err != nil {
				return err
			}
			path = def
		}

		if _, err := os.Stat(path); err == nil {
			fmt.Println(WarningStyle.Render("Config file already exists: ") + path)
			return nil
		}

		written, err := config.Save(config.DefaultConfig(), path)
		if err != nil {
			return fmt.Errorf("writing default config: %w", err)
		}
		fmt.Println(SuccessStyle.Render("Created ") + written)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
