// Package api provides factory implementations for dependency injection
package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/ssargent/recordvault/pkg/config"
	"github.com/ssargent/recordvault/pkg/storage"
	"github.com/ssargent/recordvault/pkg/store"
)

// DefaultStoreFactory opens a pebble-backed record store under cfg.DataDir
type DefaultStoreFactory struct{}

// NewStoreFactory creates a new store factory
func NewStoreFactory() StoreFactory {
	return &DefaultStoreFactory{}
}

// CreateStore opens the substrate, registers the configured schemas and loads records
func (f *DefaultStoreFactory) CreateStore(cfg *config.Config, logger *zap.Logger) (*store.RecordStore, error) {
	schemas, err := cfg.BuildSchemas()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	substrate, err := storage.OpenPebbleSubstrate(filepath.Join(cfg.DataDir, "records"), &pebble.Options{}, cfg.Storage.Sync)
	if err != nil {
		return nil, err
	}

	records, err := store.New(store.Config{
		Limits:    cfg.Limits,
		Schemas:   schemas,
		Substrate: substrate,
		Logger:    logger,
	})
	if err != nil {
		substrate.Close()
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	if _, err := records.Open(); err != nil {
		records.Close()
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return records, nil
}

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct{}

// NewServerFactory creates a new server factory
func NewServerFactory() ServerFactory {
	return &DefaultServerFactory{}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct{}

// StartServer starts the API server with the given configuration
func (s *DefaultServerStarter) StartServer(ctx context.Context, records RecordService, cfg ServerConfig, logger *zap.Logger) error {
	return StartServer(ctx, records, cfg, logger)
}
