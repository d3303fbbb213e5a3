// Package main provides the cargo-api server for parsed cargo broadcasts.
//
// This is a standalone REST API server that parses loading broadcasts on
// demand and stores them in PostgreSQL, with optional per-drop analytics in
// ClickHouse.
//
// Usage:
//
//	cargo-api [options]
//
// Options:
//
//	-pg-host HOST       PostgreSQL host (default: localhost, env: POSTGRES_HOST)
//	-pg-port PORT       PostgreSQL port (default: 5432, env: POSTGRES_PORT)
//	-pg-database DB     PostgreSQL database (default: cargo_state, env: POSTGRES_DATABASE)
//	-pg-user USER       PostgreSQL user (default: cargo, env: POSTGRES_USER)
//	-pg-password PASS   PostgreSQL password (default: cargo, env: POSTGRES_PASSWORD)
//	-ch                 Enable ClickHouse analytics (env: CLICKHOUSE_ENABLED=1)
//	-ch-host HOST       ClickHouse host (default: localhost, env: CLICKHOUSE_HOST)
//	-ch-port PORT       ClickHouse native port (default: 9000, env: CLICKHOUSE_PORT)
//	-ch-database DB     ClickHouse database (default: cargo, env: CLICKHOUSE_DATABASE)
//	-port N             HTTP port (default: 8081, env: PORT)
//	-auth               Enable API key authentication
//	-api-keys KEYS      Comma-separated list of valid API keys (env: API_KEYS)
//
// Settings are also read from a .env file in the working directory.
//
// API Endpoints:
//
//	GET  /api/v1/health
//	POST /api/v1/parse                      Parse one broadcast (JSON or text/plain).
//	POST /api/v1/shipments                  Parse and store one broadcast.
//	GET  /api/v1/shipments/{id}             Get a stored shipment.
//	GET  /api/v1/shipments?date=YYYY-MM-DD  List shipments loading on a date.
//	GET  /api/v1/volume?from=&to=&origin=   Daily volume per destination (ClickHouse).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cargo_parser/internal/api"
	"cargo_parser/internal/storage"
)

func main() {
	// Missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	defaults := storage.DefaultConfig()

	// PostgreSQL connection flags.
	pgHost := flag.String("pg-host", envOrDefault("POSTGRES_HOST", defaults.Postgres.Host), "PostgreSQL host")
	pgPort := flag.Int("pg-port", envOrDefaultInt("POSTGRES_PORT", defaults.Postgres.Port), "PostgreSQL port")
	pgUser := flag.String("pg-user", envOrDefault("POSTGRES_USER", defaults.Postgres.User), "PostgreSQL user")
	pgPassword := flag.String("pg-password", envOrDefault("POSTGRES_PASSWORD", defaults.Postgres.Password), "PostgreSQL password")
	pgDB := flag.String("pg-database", envOrDefault("POSTGRES_DATABASE", defaults.Postgres.Database), "PostgreSQL database")

	// ClickHouse connection flags.
	chEnabled := flag.Bool("ch", envOrDefault("CLICKHOUSE_ENABLED", "") == "1", "Enable ClickHouse analytics")
	chHost := flag.String("ch-host", envOrDefault("CLICKHOUSE_HOST", defaults.ClickHouse.Host), "ClickHouse host")
	chPort := flag.Int("ch-port", envOrDefaultInt("CLICKHOUSE_PORT", defaults.ClickHouse.Port), "ClickHouse native port")
	chUser := flag.String("ch-user", envOrDefault("CLICKHOUSE_USER", defaults.ClickHouse.User), "ClickHouse user")
	chPassword := flag.String("ch-password", envOrDefault("CLICKHOUSE_PASSWORD", defaults.ClickHouse.Password), "ClickHouse password")
	chDB := flag.String("ch-database", envOrDefault("CLICKHOUSE_DATABASE", defaults.ClickHouse.Database), "ClickHouse database")

	// API server flags.
	port := flag.Int("port", envOrDefaultInt("PORT", 8081), "HTTP port for API server")
	authEnabled := flag.Bool("auth", false, "Enable API key authentication")
	apiKeys := flag.String("api-keys", envOrDefault("API_KEYS", ""), "Comma-separated list of valid API keys (when auth enabled)")
	devLog := flag.Bool("dev", false, "Human-readable development logging")

	flag.Parse()

	log, err := newLogger(*devLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := storage.OpenPostgres(ctx, storage.PostgresConfig{
		Host:     *pgHost,
		Port:     *pgPort,
		Database: *pgDB,
		User:     *pgUser,
		Password: *pgPassword,
	})
	if err != nil {
		log.Fatal("open postgres", zap.Error(err))
	}
	defer pg.Close()

	if err := pg.CreateSchema(ctx); err != nil {
		log.Fatal("postgres schema", zap.Error(err))
	}

	var volumes api.VolumeStore
	if *chEnabled {
		ch, err := storage.OpenClickHouse(ctx, storage.ClickHouseConfig{
			Host:     *chHost,
			Port:     *chPort,
			Database: *chDB,
			User:     *chUser,
			Password: *chPassword,
		})
		if err != nil {
			log.Fatal("open clickhouse", zap.Error(err))
		}
		defer func() { _ = ch.Close() }()

		if err := ch.CreateSchema(ctx); err != nil {
			log.Fatal("clickhouse schema", zap.Error(err))
		}
		volumes = ch
	}

	server := api.NewServer(pg, volumes, api.Config{
		Port:        *port,
		AuthEnabled: *authEnabled,
		APIKeys:     splitList(*apiKeys),
		Logger:      log,
	})

	if err := server.Run(ctx); err != nil {
		log.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("server stopped")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
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
