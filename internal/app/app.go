// Package app assembles the sync pipeline shared by the API and worker binaries.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/raidsync/internal/activity"
	"example.com/raidsync/internal/bungie"
	"example.com/raidsync/internal/config"
	"example.com/raidsync/internal/domain"
	"example.com/raidsync/internal/manifest"
	"example.com/raidsync/internal/persistence/memory"
	"example.com/raidsync/internal/persistence/postgres"
	"example.com/raidsync/internal/raids"
	"example.com/raidsync/internal/raidsync"
)

// Store backends accepted in config.StoreBackend.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Stores groups the persistence dependencies. Pool is nil for the memory backend.
type Stores struct {
	Users          domain.UserStore
	Authorizations domain.AuthorizationStore
	Pool           *pgxpool.Pool
}

// Close releases the connection pool, if any.
func (s Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStores connects the configured backend.
func OpenStores(ctx context.Context, cfg config.Config) (Stores, error) {
	switch cfg.StoreBackend {
	case BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return Stores{}, fmt.Errorf("connect to postgres: %w", err)
		}
		return Stores{
			Users:          postgres.NewUserStore(pool, cfg.SyncEventsTopic),
			Authorizations: postgres.NewAuthorizationStore(pool),
			Pool:           pool,
		}, nil
	case BackendMemory:
		return Stores{
			Users:          memory.NewUserStore(),
			Authorizations: memory.NewAuthorizationStore(),
		}, nil
	default:
		return Stores{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// Pipeline is the assembled sync engine.
type Pipeline struct {
	Bungie   *bungie.Client
	Manifest *manifest.Cache
	Sync     *raidsync.Service
}

// NewPipeline wires the Bungie client, manifest cache, activity fetcher and
// raid builders into a sync service over users.
func NewPipeline(cfg config.Config, users domain.UserStore, logger *log.Logger) (*Pipeline, error) {
	client := bungie.NewClient(cfg.BungieBaseURL, cfg.BungieAPIKey, cfg.BungieHTTPTimeout)

	cache, err := manifest.NewCache(client, cfg.ManifestCacheSize, manifest.WithFetchTimeout(cfg.BungieHTTPTimeout))
	if err != nil {
		return nil, fmt.Errorf("manifest cache: %w", err)
	}

	fetcher := activity.NewFetcher(client,
		activity.WithConcurrency(cfg.PageFetchConcurrency),
		activity.WithLogger(logger),
	)

	service := raidsync.NewService(users, client, fetcher,
		raids.NewBuilder(cache),
		raids.NewAugmenter(client),
		raidsync.WithEnrichConcurrency(cfg.EnrichConcurrency),
		raidsync.WithLogger(logger),
	)

	return &Pipeline{Bungie: client, Manifest: cache, Sync: service}, nil
}
