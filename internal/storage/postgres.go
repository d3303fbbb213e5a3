package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cargo_parser/internal/extractor"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

// PostgresDB wraps a PostgreSQL connection pool for shipment storage.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS shipments (
		id              UUID PRIMARY KEY,
		message_id      BIGINT NOT NULL DEFAULT 0,
		source          TEXT NOT NULL DEFAULT '',
		chat_id         TEXT NOT NULL DEFAULT '',
		sender          TEXT NOT NULL DEFAULT '',
		sent_at         TEXT NOT NULL DEFAULT '',
		ship_date       TEXT NOT NULL CHECK (ship_date ~ '^[0-9]{4}-[0-9]{2}-[0-9]{2}$'),
		origin          TEXT NOT NULL,
		safety_note     TEXT NOT NULL DEFAULT '',
		raw_text        TEXT NOT NULL DEFAULT '',
		item_count      INTEGER NOT NULL DEFAULT 0,
		total_cbm       INTEGER NOT NULL DEFAULT 0,
		total_units     INTEGER NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	ALTER TABLE shipments ALTER COLUMN ship_date TYPE TEXT USING ship_date::text;

	CREATE INDEX IF NOT EXISTS idx_shipments_date ON shipments(ship_date);
	CREATE INDEX IF NOT EXISTS idx_shipments_origin ON shipments(origin);

	CREATE TABLE IF NOT EXISTS cargo_items (
		shipment_id     UUID NOT NULL REFERENCES shipments(id) ON DELETE CASCADE,
		sequence        INTEGER NOT NULL,
		destinations    TEXT[] NOT NULL DEFAULT '{}',
		volume_cbm      INTEGER,
		unit_count      INTEGER,
		po_date         TEXT,
		notes           TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (shipment_id, sequence)
	);

	ALTER TABLE cargo_items ALTER COLUMN po_date TYPE TEXT USING po_date::text;
	`

	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Shipment is one stored manifest header with its items.
type Shipment struct {
	ID         uuid.UUID      `json:"id"`
	MessageID  int64          `json:"message_id"`
	Source     string         `json:"source,omitempty"`
	ChatID     string         `json:"chat_id,omitempty"`
	Sender     string         `json:"sender,omitempty"`
	SentAt     string         `json:"sent_at,omitempty"`
	Date       string         `json:"date"`
	Origin     string         `json:"origin"`
	SafetyNote string         `json:"safety_note,omitempty"`
	RawText    string         `json:"raw_text,omitempty"`
	ItemCount  int            `json:"item_count"`
	TotalCBM   int            `json:"total_cbm"`
	TotalUnits int            `json:"total_units"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Items      []ShipmentItem `json:"items"`
}

// ShipmentItem is one stored cargo line.
type ShipmentItem struct {
	Sequence     int      `json:"sequence"`
	Destinations []string `json:"destinations"`
	VolumeCBM    *int     `json:"volume_cbm"`
	UnitCount    *int     `json:"unit_count"`
	PODate       string   `json:"po_date,omitempty"`
	Notes        string   `json:"notes,omitempty"`
}

// shipmentNamespace seeds deterministic shipment IDs.
var shipmentNamespace = uuid.MustParse("6f1c2a4e-9b7d-4e35-8a0f-3c5d7e9b1a24")

// ShipmentID returns a stable ID for messages that carry an upstream ID so
// that redelivery overwrites instead of duplicating. Anonymous messages get a
// random ID.
func ShipmentID(s *extractor.ShipmentUpdate) uuid.UUID {
	if s == nil || s.MessageID == 0 {
		return uuid.New()
	}
	key := s.Source + "/" + s.ChatID + "/" + strconv.FormatInt(s.MessageID, 10)
	return uuid.NewSHA1(shipmentNamespace, []byte(key))
}

// UpsertShipment stores a manifest and replaces its items in one transaction.
func (d *PostgresDB) UpsertShipment(ctx context.Context, data extractor.ExtractedData) (uuid.UUID, error) {
	s := data.Shipment
	if s == nil {
		return uuid.Nil, fmt.Errorf("upsert shipment: no manifest header")
	}

	if !ValidDate(s.Date) {
		return uuid.Nil, fmt.Errorf("upsert shipment: invalid ship date %q", s.Date)
	}

	var totalCBM, totalUnits int
	if data.Summary != nil {
		totalCBM, totalUnits = data.Summary.TotalCBM, data.Summary.TotalUnits
	}

	id := ShipmentID(s)

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO shipments (id, message_id, source, chat_id, sender, sent_at, ship_date, origin,
			safety_note, raw_text, item_count, total_cbm, total_units)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			sender = EXCLUDED.sender,
			sent_at = EXCLUDED.sent_at,
			ship_date = EXCLUDED.ship_date,
			origin = EXCLUDED.origin,
			safety_note = EXCLUDED.safety_note,
			raw_text = EXCLUDED.raw_text,
			item_count = EXCLUDED.item_count,
			total_cbm = EXCLUDED.total_cbm,
			total_units = EXCLUDED.total_units,
			updated_at = NOW()
	`, id, s.MessageID, s.Source, s.ChatID, s.Sender, s.SentAt, s.Date, s.Origin,
		s.SafetyNote, s.RawText, len(data.Items), totalCBM, totalUnits)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert shipment: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cargo_items WHERE shipment_id = $1`, id); err != nil {
		return uuid.Nil, fmt.Errorf("clear items: %w", err)
	}

	rows := itemRows(id, data.Items)
	if len(rows) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"cargo_items"},
			[]string{"shipment_id", "sequence", "destinations", "volume_cbm", "unit_count", "po_date", "notes"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return uuid.Nil, fmt.Errorf("copy items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// itemRows lays out items for COPY. PO dates are kept as written; only a
// value that is not YYYY-MM-DD is stored as NULL.
func itemRows(id uuid.UUID, items []*extractor.ItemUpdate) [][]any {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		var poDate *string
		if ValidDate(it.PODate) {
			poDate = &it.PODate
		}
		dests := it.Destinations
		if dests == nil {
			dests = []string{}
		}
		rows = append(rows, []any{id, it.Sequence, dests, it.VolumeCBM, it.UnitCount, poDate, it.Notes})
	}
	return rows
}

const shipmentColumns = `id, message_id, source, chat_id, sender, sent_at, ship_date, origin,
	safety_note, raw_text, item_count, total_cbm, total_units, created_at, updated_at`

// GetShipment retrieves a shipment with its items. Returns nil if not found.
func (d *PostgresDB) GetShipment(ctx context.Context, id uuid.UUID) (*Shipment, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE id = $1`, id)

	s, err := scanShipment(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shipment: %w", err)
	}

	if err := d.loadItems(ctx, []*Shipment{s}); err != nil {
		return nil, err
	}
	return s, nil
}

// ListShipmentsByDate returns every shipment loading on date (YYYY-MM-DD),
// ordered by origin then arrival.
func (d *PostgresDB) ListShipmentsByDate(ctx context.Context, date string) ([]*Shipment, error) {
	if !ValidDate(date) {
		return nil, fmt.Errorf("list shipments: invalid date %q", date)
	}

	rows, err := d.pool.Query(ctx, `
		SELECT `+shipmentColumns+` FROM shipments
		WHERE ship_date = $1
		ORDER BY origin, created_at
	`, date)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var shipments []*Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		shipments = append(shipments, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.loadItems(ctx, shipments); err != nil {
		return nil, err
	}
	return shipments, nil
}

// DeleteShipment removes a shipment and, by cascade, its items.
func (d *PostgresDB) DeleteShipment(ctx context.Context, id uuid.UUID) error {
	_, err := d.pool.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, id)
	return err
}

func (d *PostgresDB) loadItems(ctx context.Context, shipments []*Shipment) error {
	if len(shipments) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(shipments))
	byID := make(map[uuid.UUID]*Shipment, len(shipments))
	for i, s := range shipments {
		ids[i] = s.ID
		byID[s.ID] = s
		s.Items = []ShipmentItem{}
	}

	rows, err := d.pool.Query(ctx, `
		SELECT shipment_id, sequence, destinations, volume_cbm, unit_count, po_date, notes
		FROM cargo_items
		WHERE shipment_id = ANY($1)
		ORDER BY shipment_id, sequence
	`, ids)
	if err != nil {
		return fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			shipmentID uuid.UUID
			it         ShipmentItem
			poDate     *string
		)
		if err := rows.Scan(&shipmentID, &it.Sequence, &it.Destinations, &it.VolumeCBM, &it.UnitCount, &poDate, &it.Notes); err != nil {
			return fmt.Errorf("scan item: %w", err)
		}
		if poDate != nil {
			it.PODate = *poDate
		}
		if s := byID[shipmentID]; s != nil {
			s.Items = append(s.Items, it)
		}
	}
	return rows.Err()
}

func scanShipment(row pgx.Row) (*Shipment, error) {
	var s Shipment
	err := row.Scan(&s.ID, &s.MessageID, &s.Source, &s.ChatID, &s.Sender, &s.SentAt, &s.Date, &s.Origin,
		&s.SafetyNote, &s.RawText, &s.ItemCount, &s.TotalCBM, &s.TotalUnits, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
