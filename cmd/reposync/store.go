package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/steveyegge/reposync/internal/config"
	"github.com/steveyegge/reposync/internal/debug"
	"github.com/steveyegge/reposync/internal/storage"
	"github.com/steveyegge/reposync/internal/storage/dolt"
	"github.com/steveyegge/reposync/internal/storage/memory"
	"github.com/steveyegge/reposync/internal/telemetry"
)

// openStore opens the backend selected by store.backend, wrapped with
// telemetry instrumentation.
func openStore(ctx context.Context) (storage.Storage, error) {
	backend := config.GetStoreBackend()
	debug.Logger().Debug("opening store", "backend", backend)

	var store storage.Storage
	switch backend {
	case config.StoreMemory:
		store = memory.New()
	case config.StoreDolt, config.StoreDoltServer:
		path, err := filepath.Abs(config.GetString("store.path"))
		if err != nil {
			return nil, fmt.Errorf("invalid store.path: %w", err)
		}
		ds, err := dolt.New(ctx, &dolt.Config{
			Path:           path,
			Database:       config.GetString("store.database"),
			ServerMode:     backend == config.StoreDoltServer,
			ServerHost:     config.GetString("store.host"),
			ServerPort:     config.GetInt("store.port"),
			ServerUser:     config.GetString("store.user"),
			ServerPassword: config.GetString("store.password"),
			ServerTLS:      config.GetBool("store.tls"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", backend, err)
		}
		store = ds
	default:
		return nil, fmt.Errorf("unsupported store backend %q", backend)
	}
	return telemetry.WrapStorage(store), nil
}
