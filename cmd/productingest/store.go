package main

import (
	"context"
	"fmt"

	"github.com/nao1215/productingest/internal/config"
	"github.com/nao1215/productingest/internal/database"
)

// openStore opens the record store selected by cfg. An empty scope opens an
// existing store with the scope it was created with.
func openStore(ctx context.Context, cfg *config.Config, scope database.DedupScope) (database.Store, error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := database.OpenPostgres(ctx, cfg.PostgresDSN, database.PostgresOptions{
			MaxConns: int32(cfg.BatchSize) + 2, //nolint:gosec // batch size is validated and small
			Scope:    scope,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return store, nil
	default:
		opts := database.DefaultOptions()
		opts.Scope = scope
		store, err := database.OpenSQLite(cfg.DBDir, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return store, nil
	}
}
