// Package commands implements the Discord Copilot CLI commands using cobra.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root CLI command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "copilot",
		Short: "Discord Copilot - mention-driven LLM assistant",
		Long: `Discord Copilot is a Discord bot that answers @mentions with LLM
completions and keeps a rolling per-channel conversation summary.

Examples:
  copilot serve
  copilot serve --config ./config.yaml
  copilot config init
  copilot config set-key`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}
