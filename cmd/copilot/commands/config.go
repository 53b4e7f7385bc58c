package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hem26/Discord-Copilot/pkg/copilot"
)

// newConfigCmd creates the `copilot config` command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage assistant configuration",
		Long: `Manage Discord Copilot configuration and credentials.

Examples:
  copilot config init
  copilot config set-key
  copilot config delete-key`,
	}

	cmd.AddCommand(
		newConfigInitCmd(),
		newConfigSetKeyCmd(),
		newConfigDeleteKeyCmd(),
	)

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config.yaml",
		RunE: func(_ *cobra.Command, _ []string) error {
			const path = "config.yaml"
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", path)
			}

			if err := copilot.SaveConfigToFile(copilot.DefaultConfig(), path); err != nil {
				return err
			}

			fmt.Printf("Configuration written to ./%s\n", path)
			fmt.Println("Set DISCORD_TOKEN and COPILOT_API_KEY (or run 'copilot config set-key') before serving.")
			return nil
		},
	}
}

func newConfigSetKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-key",
		Short: "Store the completion API key in the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			key, err := copilot.ReadPassword("API key (hidden input): ")
			if err != nil {
				return fmt.Errorf("reading API key: %w", err)
			}
			if key == "" {
				return fmt.Errorf("API key cannot be empty")
			}

			if err := copilot.StoreKeyring("api_key", key); err != nil {
				return fmt.Errorf("storing key in OS keyring: %w", err)
			}

			fmt.Println("API key stored in the OS keyring.")
			return nil
		},
	}
}

func newConfigDeleteKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-key",
		Short: "Remove the completion API key from the OS keyring",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := copilot.DeleteKeyring("api_key"); err != nil {
				return fmt.Errorf("deleting key from OS keyring: %w", err)
			}
			fmt.Println("API key removed from the OS keyring.")
			return nil
		},
	}
}
