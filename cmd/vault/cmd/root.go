/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ssargent/recordvault/pkg/config"
	"github.com/ssargent/recordvault/pkg/di"
	"github.com/ssargent/recordvault/pkg/store"
)

// annotation marking commands that operate on the record store
const needsStore = "vault/store"

var container *di.Container

// SetContainer injects the dependency container used by all commands
func SetContainer(c *di.Container) {
	container = c
}

type envKey struct{}

// env is what PersistentPreRunE hands to a command
type env struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
	records    *store.RecordStore
}

func envFrom(cmd *cobra.Command) (*env, error) {
	e, ok := cmd.Context().Value(envKey{}).(*env)
	if !ok {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// close releases the store and flushes the logger
func (e *env) close() error {
	var err error
	if e.records != nil {
		if cerr := e.records.Close(); cerr != nil {
			err = fmt.Errorf("failed to close store: %w", cerr)
		}
	}
	_ = e.logger.Sync()
	return err
}

// withEnv runs fn with the command environment and closes it afterwards
func withEnv(fn func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := envFrom(cmd)
		if err != nil {
			return err
		}
		runErr := fn(cmd, args, e)
		if err := e.close(); err != nil && runErr == nil {
			return err
		}
		return runErr
	}
}

// NewRootCmd builds the vault command tree
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vault",
		Short: "RecordVault - resizable record store",
		Long: `RecordVault stores fixed-layout records with variable-length sequences
inside capacity-bounded allocations that grow on demand under a growth policy.

Records are addressed by base58 keys, usually derived from a namespace and
an owner with 'vault key derive'.`,
		SilenceUsage:      true,
		PersistentPreRunE: setupEnv,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: OS-specific location)")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "", "Data directory for the store (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides config)")

	rootCmd.AddCommand(
		newServeCmd(),
		newConfigCmd(),
		newKeyCmd(),
		newRecordCmd(),
		newReceiptCmd(),
		newSchemasCmd(),
	)
	return rootCmd
}

// setupEnv loads configuration, builds the logger and, for commands that need
// it, opens the record store
func setupEnv(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	logLevel, _ := cmd.Flags().GetString("log-level")

	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	cfg := config.DefaultConfig()
	if config.ConfigExists(configPath) {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return err
	}

	e := &env{configPath: configPath, cfg: cfg, logger: logger}
	if requiresStore(cmd) {
		// cobra checks required flags after this hook; fail before opening the store
		if err := cmd.ValidateRequiredFlags(); err != nil {
			return err
		}
		if container == nil {
			return errors.New("dependency container not initialized")
		}
		records, err := container.GetStoreFactory().CreateStore(cfg, logger)
		if err != nil {
			return err
		}
		e.records = records
	}

	cmd.SetContext(context.WithValue(cmd.Context(), envKey{}, e))
	return nil
}

func requiresStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if _, ok := c.Annotations[needsStore]; ok {
			return true
		}
	}
	return false
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
