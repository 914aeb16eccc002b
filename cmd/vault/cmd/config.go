package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/recordvault/pkg/config"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the vault configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with a generated API key",
		Long: `Create a configuration file with default limits, the built-in schemas
and a freshly generated API key.

Examples:
  vault config init
  vault config init --config ./vault.yaml --data-dir ./data --print-key`,
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			force, _ := cmd.Flags().GetBool("force")
			printKey, _ := cmd.Flags().GetBool("print-key")

			if config.ConfigExists(e.configPath) && !force {
				cmd.Printf("Configuration already exists at %s. Use --force to overwrite.\n", e.configPath)
				return nil
			}

			dataDir, _ := cmd.Flags().GetString("data-dir")
			cfg, err := config.BootstrapConfig(e.configPath, dataDir)
			if err != nil {
				return err
			}

			cmd.Printf("Configuration created at %s\n", e.configPath)
			if printKey {
				cmd.Printf("API key: %s\n", cfg.Security.APIKey)
			}
			return nil
		}),
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing configuration")
	initCmd.Flags().Bool("print-key", false, "Print the generated API key")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			shown := *e.cfg
			if shown.Security.APIKey != "" && shown.Security.APIKey != "auto" {
				shown.Security.APIKey = "<redacted>"
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}),
	}

	configCmd.AddCommand(initCmd, showCmd)
	return configCmd
}
