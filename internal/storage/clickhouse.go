// Package storage provides persistent storage for parsed cargo broadcasts.
package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"cargo_parser/internal/extractor"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// ClickHouseDB wraps a ClickHouse connection for drop analytics.
type ClickHouseDB struct {
	conn driver.Conn
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables. Re-ingesting a shipment
// replaces its drops once parts merge.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS cargo_drops (
			shipment_id     UUID,
			ship_date       String,
			origin          LowCardinality(String),
			destination     String,
			destination_key LowCardinality(String),
			item_sequence   UInt16,
			drop_sequence   UInt16,
			is_primary      UInt8,
			volume_cbm      UInt32,
			unit_count      UInt32,
			po_date         Nullable(String),
			inserted_at     DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = ReplacingMergeTree(inserted_at)
		PARTITION BY substring(ship_date, 1, 7)
		ORDER BY (ship_date, origin, destination_key, shipment_id, item_sequence, drop_sequence)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	// Token index for destination lookups (ignore error if already exists).
	_ = d.conn.Exec(ctx, `ALTER TABLE cargo_drops ADD INDEX IF NOT EXISTS idx_destination_bloom destination TYPE tokenbf_v1(8192, 3, 0) GRANULARITY 1`)

	return nil
}

// InsertDrops stores the drops of one shipment in a single batch.
func (d *ClickHouseDB) InsertDrops(ctx context.Context, shipmentID uuid.UUID, drops []*extractor.DropUpdate) error {
	if len(drops) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO cargo_drops (shipment_id, ship_date, origin, destination, destination_key,
			item_sequence, drop_sequence, is_primary, volume_cbm, unit_count, po_date)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer func() { _ = batch.Abort() }()

	for _, dr := range drops {
		row, err := dropRow(shipmentID, dr)
		if err != nil {
			return err
		}
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("append drop: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// dropRow converts one drop to the column order of cargo_drops. Dates are
// stored as written; counts outside the column range are rejected.
func dropRow(shipmentID uuid.UUID, dr *extractor.DropUpdate) ([]any, error) {
	if !ValidDate(dr.ShipDate) {
		return nil, fmt.Errorf("drop %d.%d: invalid ship date %q", dr.ItemSequence, dr.DropSequence, dr.ShipDate)
	}

	var poDate *string
	if ValidDate(dr.PODate) {
		poDate = &dr.PODate
	}

	if dr.ItemSequence < 0 || dr.ItemSequence > math.MaxUint16 || dr.DropSequence < 0 || dr.DropSequence > math.MaxUint16 {
		return nil, fmt.Errorf("drop %d.%d: sequence out of range", dr.ItemSequence, dr.DropSequence)
	}
	if dr.VolumeCBM < 0 || int64(dr.VolumeCBM) > math.MaxUint32 || dr.UnitCount < 0 || int64(dr.UnitCount) > math.MaxUint32 {
		return nil, fmt.Errorf("drop %d.%d: count out of range", dr.ItemSequence, dr.DropSequence)
	}

	var primary uint8
	if dr.Primary {
		primary = 1
	}

	return []any{shipmentID, dr.ShipDate, dr.Origin, dr.Destination, dr.DestinationKey,
		uint16(dr.ItemSequence), uint16(dr.DropSequence), primary,
		uint32(dr.VolumeCBM), uint32(dr.UnitCount), poDate}, nil
}

// DailyVolume is the volume delivered to one destination on one day.
type DailyVolume struct {
	Date           string `json:"date"`
	Origin         string `json:"origin"`
	DestinationKey string `json:"destination_key"`
	Drops          uint64 `json:"drops"`
	VolumeCBM      uint64 `json:"volume_cbm"`
	Units          uint64 `json:"units"`
}

// DailyVolumeByDestination sums drops per day and destination between from
// and to inclusive (YYYY-MM-DD). An empty origin matches all origins.
func (d *ClickHouseDB) DailyVolumeByDestination(ctx context.Context, from, to, origin string) ([]DailyVolume, error) {
	query := `
		SELECT ship_date, origin, destination_key, count(), sum(volume_cbm), sum(unit_count)
		FROM cargo_drops FINAL
		WHERE ship_date BETWEEN ? AND ?`
	args := []any{from, to}

	if origin != "" {
		query += ` AND origin = ?`
		args = append(args, origin)
	}
	query += `
		GROUP BY ship_date, origin, destination_key
		ORDER BY ship_date, origin, destination_key`

	rows, err := d.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query daily volume: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DailyVolume
	for rows.Next() {
		var v DailyVolume
		if err := rows.Scan(&v.Date, &v.Origin, &v.DestinationKey, &v.Drops, &v.VolumeCBM, &v.Units); err != nil {
			return nil, fmt.Errorf("scan daily volume: %w", err)
		}
		out = append(out, v)
	}

	return out, rows.Err()
}

// Count returns the number of stored drops, optionally for one origin.
func (d *ClickHouseDB) Count(ctx context.Context, origin string) (uint64, error) {
	var count uint64
	var err error
	if origin != "" {
		row := d.conn.QueryRow(ctx, "SELECT count() FROM cargo_drops FINAL WHERE origin = ?", origin)
		err = row.Scan(&count)
	} else {
		row := d.conn.QueryRow(ctx, "SELECT count() FROM cargo_drops FINAL")
		err = row.Scan(&count)
	}
	return count, err
}
