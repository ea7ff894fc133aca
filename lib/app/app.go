// Copyright 2026 The Docmill Authors
// SPDX-License-Identifier: Apache-2.0

// Package app assembles the shared runtime of the Docmill service
// binaries: configuration, artifact store, catalog, event publisher,
// and the operation coordinator. The three services differ only in
// their HTTP surface; everything beneath it is built here.
package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/docmill/docmill/lib/artifact"
	"github.com/docmill/docmill/lib/catalog"
	"github.com/docmill/docmill/lib/clock"
	"github.com/docmill/docmill/lib/config"
	"github.com/docmill/docmill/lib/event"
	"github.com/docmill/docmill/lib/pipeline"
	"github.com/docmill/docmill/lib/transform"
)

// App holds the wired collaborators of one service process.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Store       artifact.Store
	Catalog     *catalog.SQLiteCatalog
	Publisher   event.Publisher
	Registry    *transform.Registry
	Coordinator *pipeline.Coordinator
}

// Bootstrap loads the configuration at path and wires the stack.
// The caller owns the returned App and must Close it on shutdown.
func Bootstrap(ctx context.Context, path string, logger *slog.Logger) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.OpenSQLite(catalog.SQLiteCatalogConfig{
		Path:     cfg.Catalog.Path,
		PoolSize: cfg.Catalog.PoolSize,
		Clock:    clock.Real(),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	var publisher event.Publisher
	if cfg.Events.URL == "" {
		logger.Info("event publishing disabled (no broker url)")
		publisher = event.NopPublisher{}
	} else {
		publisher, err = event.NewAMQPPublisher(event.AMQPPublisherConfig{
			URL:      cfg.Events.URL,
			Exchange: cfg.Events.Exchange,
			Logger:   logger,
		})
		if err != nil {
			cat.Close()
			return nil, err
		}
	}

	registry := transform.NewRegistry(transform.Limits{
		MaxWatermarkTextLength: cfg.Limits.MaxWatermarkTextLength,
	})

	coordinator := pipeline.NewCoordinator(pipeline.CoordinatorConfig{
		Store:          store,
		Catalog:        cat,
		Registry:       registry,
		Publisher:      publisher,
		Container:      cfg.Store.Container,
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		Clock:          clock.Real(),
		Logger:         logger,
	})

	return &App{
		Config:      cfg,
		Logger:      logger,
		Store:       store,
		Catalog:     cat,
		Publisher:   publisher,
		Registry:    registry,
		Coordinator: coordinator,
	}, nil
}

// Close releases the App's resources in reverse dependency order.
func (a *App) Close() {
	if err := a.Publisher.Close(); err != nil {
		a.Logger.Error("closing event publisher", "error", err)
	}
	if err := a.Catalog.Close(); err != nil {
		a.Logger.Error("closing catalog", "error", err)
	}
}

// openStore builds the configured artifact store backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (artifact.Store, error) {
	switch cfg.Store.Backend {
	case "fs":
		masterKey, err := loadEncryptionKey(cfg.Store.EncryptionKeyFile)
		if err != nil {
			return nil, err
		}
		return artifact.NewFSStore(artifact.FSStoreConfig{
			Root:      cfg.Store.Root,
			MasterKey: masterKey,
			Logger:    logger,
		})

	case "s3":
		store, err := artifact.NewS3Store(artifact.S3StoreConfig{
			Endpoint:  cfg.Store.S3.Endpoint,
			AccessKey: cfg.Store.S3.AccessKey,
			SecretKey: cfg.Store.S3.SecretKey,
			UseTLS:    cfg.Store.S3.UseTLS,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureContainer(ctx, cfg.Store.Container); err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("app: unknown store backend %q", cfg.Store.Backend)
	}
}

// loadEncryptionKey reads a hex-encoded 32-byte key file. An empty
// path means at-rest encryption is off.
func loadEncryptionKey(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("app: reading encryption key %s: %w", path, err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("app: decoding encryption key %s: %w", path, err)
	}
	if len(key) != artifact.KeySize {
		return nil, fmt.Errorf("app: encryption key %s must be %d bytes, got %d",
			path, artifact.KeySize, len(key))
	}
	return key, nil
}
