package storage

import (
	"context"
	"fmt"
)

// Config holds connection settings for every backend. An empty SQLitePath
// disables the local archive.
type Config struct {
	SQLitePath string
	ClickHouse ClickHouseConfig
	Postgres   PostgresConfig
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		SQLitePath: "cargo.db",
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "cargo",
			User:     "default",
			Password: "",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "cargo_state",
			User:     "cargo",
			Password: "cargo",
		},
	}
}

// DB wraps the archive, shipment and analytics stores.
type DB struct {
	Lite *SQLiteDB     // SQLite archive of every broadcast.
	PG   *PostgresDB   // PostgreSQL for shipments and items.
	CH   *ClickHouseDB // ClickHouse for drop analytics.
}

// Open opens connections to all configured backends.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	d := &DB{}

	if cfg.SQLitePath != "" {
		lite, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		d.Lite = lite
	}

	pg, err := OpenPostgres(ctx, cfg.Postgres)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}
	d.PG = pg

	ch, err := OpenClickHouse(ctx, cfg.ClickHouse)
	if err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("clickhouse: %w", err)
	}
	d.CH = ch

	return d, nil
}

// Close closes all open connections.
func (d *DB) Close() error {
	var errs []error
	if d.CH != nil {
		if err := d.CH.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse: %w", err))
		}
	}
	if d.PG != nil {
		d.PG.Close()
	}
	if d.Lite != nil {
		if err := d.Lite.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sqlite: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// CreateSchemas creates the schemas in the server databases. SQLite creates
// its own schema on open.
func (d *DB) CreateSchemas(ctx context.Context) error {
	if err := d.PG.CreateSchema(ctx); err != nil {
		return fmt.Errorf("postgres schema: %w", err)
	}
	if err := d.CH.CreateSchema(ctx); err != nil {
		return fmt.Errorf("clickhouse schema: %w", err)
	}
	return nil
}
