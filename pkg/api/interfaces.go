// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"go.uber.org/zap"

	"github.com/ssargent/recordvault/pkg/config"
	"github.com/ssargent/recordvault/pkg/store"
)

// StoreFactory opens record stores
type StoreFactory interface {
	// CreateStore opens the store described by cfg and loads its records
	CreateStore(cfg *config.Config, logger *zap.Logger) (*store.RecordStore, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves records until ctx is cancelled
	StartServer(ctx context.Context, records RecordService, cfg ServerConfig, logger *zap.Logger) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
