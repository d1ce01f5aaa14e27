// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for updraft.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"updraft/internal/config"
	"updraft/internal/updater"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug-level logging
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "updraft",
		Short: "Keep installed plugin artifacts up to date",
		Long: TitleStyle.Render("updraft") + SubtitleStyle.Render(" - release-driven artifact updater") + `

updraft tracks a set of plugin artifacts against their GitHub release
sources, downloads newer versions with validation, and installs them
atomically into a managed directory.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Register an artifact: updraft register myplugin owner/repo "myplugin-{version}.zip"
  2. Check what is out of date: updraft check
  3. Download and install: updraft update

` + SubtitleStyle.Render("Examples:") + `
  updraft check             Report available updates without changing anything
  updraft update            Download, validate and install updates
  updraft status            Show installed versions and the restart flag
  updraft status --ack      Acknowledge a pending restart
  updraft config show       Show current configuration`,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/updraft/updraft.toml)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(configCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the CLI logger honoring the verbose flag.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// loadConfig loads the configuration for a command, surfacing load
// problems as warnings and carrying on with the fallback.
func loadConfig(logger *log.Logger) (*config.Config, string) {
	cfg, resolved, err := config.Load(cfgFile, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+err.Error())
	}
	return cfg, resolved
}

// newUpdater wires an update engine for a command invocation.
func newUpdater(cfg *config.Config, logger *log.Logger) *updater.Updater {
	return updater.New(cfg, updater.WithLogger(logger))
}
