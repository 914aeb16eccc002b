/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssargent/recordvault/pkg/api"
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start the RecordVault REST API server.

The API key comes from the config file unless --api-key is given. Run
'vault config init' first to generate a config with a fresh key.

Examples:
  vault serve
  vault serve --port 9000 --bind 0.0.0.0
  vault serve --api-key=mysecretkey --data-dir ./data`,
		Annotations: map[string]string{needsStore: "true"},
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			cfg := e.cfg
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}
			if cmd.Flags().Changed("bind") {
				cfg.Bind, _ = cmd.Flags().GetString("bind")
			}
			if cmd.Flags().Changed("api-key") {
				cfg.Security.APIKey, _ = cmd.Flags().GetString("api-key")
			}
			if cfg.Security.APIKey == "" || cfg.Security.APIKey == "auto" {
				return errors.New("no API key configured: run 'vault config init' or pass --api-key")
			}

			deriver, err := cfg.Deriver()
			if err != nil {
				return err
			}

			if container == nil {
				return errors.New("dependency container not initialized")
			}
			starter := container.GetServerFactory().CreateServerStarter()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cmd.Printf("Starting RecordVault server on %s:%d\n", cfg.Bind, cfg.Port)
			cmd.Printf("Data directory: %s\n", cfg.DataDir)

			return starter.StartServer(ctx, e.records, api.ServerConfig{
				Port:    cfg.Port,
				Bind:    cfg.Bind,
				APIKey:  cfg.Security.APIKey,
				Deriver: deriver,
			}, e.logger)
		}),
	}

	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("bind", "127.0.0.1", "Address to bind server to")
	serveCmd.Flags().String("api-key", "", "API key for client authentication (overrides config)")
	return serveCmd
}
