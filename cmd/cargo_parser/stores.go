package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"cargo_parser/internal/ingest"
	"cargo_parser/internal/storage"
)

// storeFlags selects and configures the sinks of ingest and subscribe.
type storeFlags struct {
	sqlitePath *string
	usePG      *bool
	useCH      *bool
	cfg        storage.Config
}

func addStoreFlags(fs *flag.FlagSet, defaultDB string) *storeFlags {
	d := storage.DefaultConfig()
	sf := &storeFlags{cfg: d}

	sf.sqlitePath = fs.String("db", envOrDefault("CARGO_DB", defaultDB), "SQLite archive path (empty disables)")
	sf.usePG = fs.Bool("pg", envOrDefault("POSTGRES_ENABLED", "") == "1", "Store shipments in PostgreSQL")
	sf.useCH = fs.Bool("ch", envOrDefault("CLICKHOUSE_ENABLED", "") == "1", "Store drops in ClickHouse")

	fs.StringVar(&sf.cfg.Postgres.Host, "pg-host", envOrDefault("POSTGRES_HOST", d.Postgres.Host), "PostgreSQL host")
	fs.IntVar(&sf.cfg.Postgres.Port, "pg-port", envOrDefaultInt("POSTGRES_PORT", d.Postgres.Port), "PostgreSQL port")
	fs.StringVar(&sf.cfg.Postgres.User, "pg-user", envOrDefault("POSTGRES_USER", d.Postgres.User), "PostgreSQL user")
	fs.StringVar(&sf.cfg.Postgres.Password, "pg-password", envOrDefault("POSTGRES_PASSWORD", d.Postgres.Password), "PostgreSQL password")
	fs.StringVar(&sf.cfg.Postgres.Database, "pg-database", envOrDefault("POSTGRES_DATABASE", d.Postgres.Database), "PostgreSQL database")

	fs.StringVar(&sf.cfg.ClickHouse.Host, "ch-host", envOrDefault("CLICKHOUSE_HOST", d.ClickHouse.Host), "ClickHouse host")
	fs.IntVar(&sf.cfg.ClickHouse.Port, "ch-port", envOrDefaultInt("CLICKHOUSE_PORT", d.ClickHouse.Port), "ClickHouse native port")
	fs.StringVar(&sf.cfg.ClickHouse.User, "ch-user", envOrDefault("CLICKHOUSE_USER", d.ClickHouse.User), "ClickHouse user")
	fs.StringVar(&sf.cfg.ClickHouse.Password, "ch-password", envOrDefault("CLICKHOUSE_PASSWORD", d.ClickHouse.Password), "ClickHouse password")
	fs.StringVar(&sf.cfg.ClickHouse.Database, "ch-database", envOrDefault("CLICKHOUSE_DATABASE", d.ClickHouse.Database), "ClickHouse database")

	return sf
}

// open connects the selected stores and returns a sink writing to all of
// them plus a function closing them.
func (sf *storeFlags) open(ctx context.Context, log *zap.Logger) (ingest.Sink, func(), error) {
	var (
		sinks   ingest.MultiSink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if *sf.sqlitePath != "" {
		lite, err := storage.OpenSQLite(*sf.sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		closers = append(closers, func() { _ = lite.Close() })
		sinks = append(sinks, &ingest.ArchiveSink{DB: lite})
		log.Info("archive enabled", zap.String("path", *sf.sqlitePath))
	}

	shipments := &ingest.ShipmentSink{}

	if *sf.usePG {
		pg, err := storage.OpenPostgres(ctx, sf.cfg.Postgres)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		if err := pg.CreateSchema(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		shipments.Shipments = pg
		log.Info("postgres enabled", zap.String("host", sf.cfg.Postgres.Host), zap.String("database", sf.cfg.Postgres.Database))
	}

	if *sf.useCH {
		ch, err := storage.OpenClickHouse(ctx, sf.cfg.ClickHouse)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		closers = append(closers, func() { _ = ch.Close() })
		if err := ch.CreateSchema(ctx); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		shipments.Drops = ch
		log.Info("clickhouse enabled", zap.String("host", sf.cfg.ClickHouse.Host), zap.String("database", sf.cfg.ClickHouse.Database))
	}

	if shipments.Shipments != nil || shipments.Drops != nil {
		sinks = append(sinks, shipments)
	}
	if len(sinks) == 0 {
		return nil, nil, fmt.Errorf("no store selected (use -db, -pg or -ch)")
	}

	return sinks, closeAll, nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
