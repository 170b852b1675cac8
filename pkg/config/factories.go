package config

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/fsbridge/internal/logger"
	"github.com/marmos91/fsbridge/pkg/adapter"
	"github.com/marmos91/fsbridge/pkg/adapter/webrtc"
	"github.com/marmos91/fsbridge/pkg/cache"
	"github.com/marmos91/fsbridge/pkg/cache/badger"
	"github.com/marmos91/fsbridge/pkg/cache/memory"
	"github.com/marmos91/fsbridge/pkg/labels/manifest"
	"github.com/marmos91/fsbridge/pkg/metrics"
	"github.com/marmos91/fsbridge/pkg/mount"
	"github.com/marmos91/fsbridge/pkg/worker"
)

// CreateUploadCache creates the upload cache selected by cfg.Type.
//
// Supported types:
//   - "memory": Uses pkg/cache/memory (lost on restart)
//   - "badger": Uses pkg/cache/badger (persistent)
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Upload cache configuration
//
// Returns:
//   - cache.Cache: Initialized cache; the caller closes it
//   - error: Configuration or initialization error
func CreateUploadCache(ctx context.Context, cfg *CacheConfig) (cache.Cache, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return memory.New(), nil
	case "badger":
		return createBadgerCache(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown upload cache type: %q (supported: memory, badger)", cfg.Type)
	}
}

// createBadgerCache decodes the badger section and opens the database.
func createBadgerCache(ctx context.Context, options map[string]any) (cache.Cache, error) {
	var cacheCfg badger.Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &cacheCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(options); err != nil {
		return nil, fmt.Errorf("failed to decode badger cache options: %w", err)
	}

	if cacheCfg.DBPath == "" && !cacheCfg.InMemory {
		return nil, fmt.Errorf("badger cache: db_path is required")
	}

	c, err := badger.New(ctx, cacheCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger cache: %w", err)
	}
	return c, nil
}

// CreateMountRegistry canonicalizes the configured mounts.
func CreateMountRegistry(mounts []MountConfig) (*mount.Registry, error) {
	ms := make([]mount.Mount, 0, len(mounts))
	for _, m := range mounts {
		ms = append(ms, mount.Mount{Root: m.Path, Label: m.Label})
	}

	reg, err := mount.NewRegistry(ms)
	if err != nil {
		return nil, fmt.Errorf("failed to create mount registry: %w", err)
	}

	for _, m := range reg.Mounts() {
		logger.Info("Mount %q: %s", m.Label, m.Root)
	}
	return reg, nil
}

// InitializeWorker builds the dependencies shared by every peer engine.
//
// The returned cache must be closed by the caller once the server stops.
func InitializeWorker(ctx context.Context, cfg *Config) (worker.Deps, error) {
	reg, err := CreateMountRegistry(cfg.Mounts)
	if err != nil {
		return worker.Deps{}, err
	}

	c, err := CreateUploadCache(ctx, &cfg.Upload.Cache)
	if err != nil {
		return worker.Deps{}, err
	}

	return worker.Deps{
		Mounts: reg,
		Cache:  c,
		Labels: manifest.Adapter{},
		Config: worker.Config{
			PageSize: cfg.Listing.PageSize,
			Search:   cfg.Search,
			Upload:   cfg.Upload.Config,
		},
	}, nil
}

// CreateAdapters creates the enabled peer adapters.
func CreateAdapters(cfg *Config, m metrics.WorkerMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.WebRTC.Enabled {
		wcfg := cfg.Adapters.WebRTC
		wcfg.Transfer = cfg.Transfer

		a, err := webrtc.New(wcfg, m)
		if err != nil {
			return nil, fmt.Errorf("failed to create webrtc adapter: %w", err)
		}
		adapters = append(adapters, a)
	}

	return adapters, nil
}
