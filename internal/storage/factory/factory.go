// Package factory opens the storage.Table selected by configuration.
package factory

import (
	"context"
	"fmt"

	"github.com/kvdb/kvdb/internal/config"
	"github.com/kvdb/kvdb/internal/storage"
	"github.com/kvdb/kvdb/internal/storage/pebblestore"
	"github.com/kvdb/kvdb/internal/storage/sqlstore"
)

// Open opens the table for the configured driver
func Open(ctx context.Context, cfg config.StorageConfig) (storage.Table, error) {
	switch cfg.Driver {
	case config.DriverPostgres, config.DriverSQLite:
		dialect := sqlstore.DialectPostgres
		if cfg.Driver == config.DriverSQLite {
			dialect = sqlstore.DialectSQLite
		}
		store, err := sqlstore.Open(ctx, sqlstore.Config{
			Dialect:      dialect,
			DSN:          cfg.URL,
			MaxOpenConns: cfg.MaxOpenConns,
			QueryTimeout: cfg.QueryTimeout,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPebble:
		store, err := pebblestore.Open(cfg.URL)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}
