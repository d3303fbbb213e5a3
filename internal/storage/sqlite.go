package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Broadcast represents an archived chat broadcast with its parse outcome.
type Broadcast struct {
	ID         int64
	MessageID  int64
	Source     string
	ChatID     string
	SentAt     string
	ParserType string
	ShipDate   string
	Origin     string
	ItemCount  int
	TotalCBM   int
	TotalUnits int
	SafetyNote string
	RawText    string
	ParsedJSON string
	ParseError string
	IsGolden   bool
	Annotation string
	CreatedAt  string
}

// SQLiteDB wraps a SQLite database connection for the local broadcast archive.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	// Create schema.
	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

// createSQLiteSchema creates the database tables and indices.
func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS broadcasts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id INTEGER NOT NULL DEFAULT 0,
		source TEXT,
		chat_id TEXT,
		sent_at TEXT,
		parser_type TEXT NOT NULL DEFAULT '',
		ship_date TEXT,
		origin TEXT,
		item_count INTEGER NOT NULL DEFAULT 0,
		total_cbm INTEGER NOT NULL DEFAULT 0,
		raw_text TEXT NOT NULL,
		parsed_json TEXT,
		parse_error TEXT,
		created_at TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_broadcasts_parser_type ON broadcasts(parser_type);
	CREATE INDEX IF NOT EXISTS idx_broadcasts_ship_date ON broadcasts(ship_date);
	CREATE INDEX IF NOT EXISTS idx_broadcasts_origin ON broadcasts(origin);
	CREATE INDEX IF NOT EXISTS idx_broadcasts_message ON broadcasts(source, chat_id, message_id);

	-- FTS5 virtual table for full-text search on raw broadcast text.
	CREATE VIRTUAL TABLE IF NOT EXISTS broadcasts_fts USING fts5(
		raw_text,
		content='broadcasts',
		content_rowid='id'
	);

	-- Triggers to keep FTS index in sync.
	CREATE TRIGGER IF NOT EXISTS broadcasts_ai AFTER INSERT ON broadcasts BEGIN
		INSERT INTO broadcasts_fts(rowid, raw_text) VALUES (new.id, new.raw_text);
	END;

	CREATE TRIGGER IF NOT EXISTS broadcasts_ad AFTER DELETE ON broadcasts BEGIN
		INSERT INTO broadcasts_fts(broadcasts_fts, rowid, raw_text) VALUES('delete', old.id, old.raw_text);
	END;

	CREATE TRIGGER IF NOT EXISTS broadcasts_au AFTER UPDATE ON broadcasts BEGIN
		INSERT INTO broadcasts_fts(broadcasts_fts, rowid, raw_text) VALUES('delete', old.id, old.raw_text);
		INSERT INTO broadcasts_fts(rowid, raw_text) VALUES (new.id, new.raw_text);
	END;
	`

	if _, err := db.Exec(schema); err != nil {
		return err
	}

	// Run migrations for existing databases.
	return migrateSQLiteSchema(db)
}

// sqliteMigrations lists columns added after the first archive format.
var sqliteMigrations = []struct {
	column string
	ddl    string
}{
	{"total_units", `ALTER TABLE broadcasts ADD COLUMN total_units INTEGER NOT NULL DEFAULT 0`},
	{"safety_note", `ALTER TABLE broadcasts ADD COLUMN safety_note TEXT`},
	{"is_golden", `ALTER TABLE broadcasts ADD COLUMN is_golden INTEGER NOT NULL DEFAULT 0`},
	{"annotation", `ALTER TABLE broadcasts ADD COLUMN annotation TEXT`},
}

// migrateSQLiteSchema adds missing columns to existing databases.
func migrateSQLiteSchema(db *sql.DB) error {
	for _, m := range sqliteMigrations {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('broadcasts') WHERE name = ?`, m.column).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			// Ignore "duplicate column" errors for idempotency.
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("add column %s: %w", m.column, err)
			}
		}
	}
	return nil
}

// InsertParams contains the parameters for archiving a broadcast.
type InsertParams struct {
	MessageID  int64
	Source     string
	ChatID     string
	SentAt     string
	ParserType string // Empty when no parser produced a result.
	ShipDate   string
	Origin     string
	ItemCount  int
	TotalCBM   int
	TotalUnits int
	SafetyNote string
	RawText    string
	ParsedData interface{}
	ParseError string
}

// Insert stores a broadcast in the archive.
func (d *SQLiteDB) Insert(p InsertParams) (int64, error) {
	var parsedJSON sql.NullString
	if p.ParsedData != nil {
		b, err := json.Marshal(p.ParsedData)
		if err != nil {
			return 0, fmt.Errorf("marshal parsed data: %w", err)
		}
		parsedJSON = sql.NullString{String: string(b), Valid: true}
	}

	result, err := d.db.Exec(`
		INSERT INTO broadcasts (message_id, source, chat_id, sent_at, parser_type, ship_date, origin,
			item_count, total_cbm, total_units, safety_note, raw_text, parsed_json, parse_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.MessageID, p.Source, p.ChatID, p.SentAt, p.ParserType, p.ShipDate, p.Origin,
		p.ItemCount, p.TotalCBM, p.TotalUnits, p.SafetyNote, p.RawText, parsedJSON, p.ParseError)
	if err != nil {
		return 0, fmt.Errorf("insert broadcast: %w", err)
	}

	return result.LastInsertId()
}

// QueryParams contains filtering options for querying the archive.
type QueryParams struct {
	ID         int64  // Filter by archive row ID.
	ParserType string // Filter by parser type (exact match).
	ShipDate   string // Filter by shipment date (exact match, YYYY-MM-DD).
	Origin     string // Filter by origin (LIKE match).
	Failed     bool   // Only show broadcasts that did not parse.
	Golden     bool   // Only show broadcasts marked golden.
	FullText   string // FTS5 full-text search on raw_text.
	Limit      int    // Max results (default 100).
	Offset     int    // Pagination offset.
	OrderBy    string // Sort field (ship_date, origin, total_cbm, created_at).
	OrderDesc  bool   // Sort descending.
}

const broadcastColumns = `id, message_id, source, chat_id, sent_at, parser_type, ship_date, origin,
	item_count, total_cbm, total_units, safety_note, raw_text, parsed_json, parse_error,
	is_golden, annotation, created_at`

// Query retrieves broadcasts matching the given parameters.
func (d *SQLiteDB) Query(p QueryParams) ([]Broadcast, error) {
	var conditions []string
	var args []interface{}

	if p.ID != 0 {
		conditions = append(conditions, "b.id = ?")
		args = append(args, p.ID)
	}
	if p.ParserType != "" {
		conditions = append(conditions, "b.parser_type = ?")
		args = append(args, p.ParserType)
	}
	if p.ShipDate != "" {
		conditions = append(conditions, "b.ship_date = ?")
		args = append(args, p.ShipDate)
	}
	if p.Origin != "" {
		conditions = append(conditions, "b.origin LIKE ?")
		args = append(args, "%"+p.Origin+"%")
	}
	if p.Failed {
		conditions = append(conditions, "b.parse_error != '' AND b.parse_error IS NOT NULL")
	}
	if p.Golden {
		conditions = append(conditions, "b.is_golden = 1")
	}

	// Handle FTS5 search - requires a JOIN with the FTS table.
	query := `SELECT ` + prefixColumns("b.", broadcastColumns) + ` FROM broadcasts b`
	if p.FullText != "" {
		query += ` JOIN broadcasts_fts ON b.id = broadcasts_fts.rowid WHERE broadcasts_fts MATCH ?`
		args = append([]interface{}{p.FullText}, args...)
		if len(conditions) > 0 {
			query += " AND " + strings.Join(conditions, " AND ")
		}
	} else if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	// Order by.
	orderField := "id"
	switch p.OrderBy {
	case "ship_date", "origin", "total_cbm", "created_at":
		orderField = p.OrderBy
	}
	direction := "ASC"
	if p.OrderDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY b.%s %s", orderField, direction)

	// Limit and offset.
	limit := 100
	if p.Limit > 0 {
		limit = p.Limit
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, p.Offset)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query broadcasts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var broadcasts []Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		broadcasts = append(broadcasts, *b)
	}

	return broadcasts, rows.Err()
}

// Search runs an FTS5 query over archived raw text, newest first.
func (d *SQLiteDB) Search(match string, limit int) ([]Broadcast, error) {
	return d.Query(QueryParams{FullText: match, Limit: limit, OrderDesc: true})
}

// GetByID retrieves a single broadcast by archive ID.
func (d *SQLiteDB) GetByID(id int64) (*Broadcast, error) {
	row := d.db.QueryRow(`SELECT `+broadcastColumns+` FROM broadcasts WHERE id = ?`, id)
	b, err := scanBroadcast(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// SetGolden marks or unmarks a broadcast as a regression fixture.
func (d *SQLiteDB) SetGolden(id int64, golden bool) error {
	v := 0
	if golden {
		v = 1
	}
	_, err := d.db.Exec(`UPDATE broadcasts SET is_golden = ? WHERE id = ?`, v, id)
	return err
}

// SetAnnotation stores a reviewer note on a broadcast.
func (d *SQLiteDB) SetAnnotation(id int64, annotation string) error {
	_, err := d.db.Exec(`UPDATE broadcasts SET annotation = ? WHERE id = ?`, annotation, id)
	return err
}

// Distinct returns the distinct non-empty values of a filterable column.
func (d *SQLiteDB) Distinct(column string) ([]string, error) {
	switch column {
	case "parser_type", "origin", "ship_date", "parse_error", "source":
	default:
		return nil, fmt.Errorf("invalid column: %s", column)
	}

	rows, err := d.db.Query(fmt.Sprintf(`SELECT DISTINCT %s FROM broadcasts WHERE %s != '' ORDER BY %s`, column, column, column))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// Stats returns aggregate statistics about archived broadcasts.
type Stats struct {
	TotalBroadcasts int
	Parsed          int
	Failed          int
	ByOrigin        map[string]int
	ByError         map[string]int
}

// GetStats returns statistics about the archive.
func (d *SQLiteDB) GetStats() (*Stats, error) {
	stats := &Stats{
		ByOrigin: make(map[string]int),
		ByError:  make(map[string]int),
	}

	row := d.db.QueryRow(`SELECT COUNT(*),
		COALESCE(SUM(CASE WHEN parser_type != '' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN parse_error != '' AND parse_error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM broadcasts`)
	if err := row.Scan(&stats.TotalBroadcasts, &stats.Parsed, &stats.Failed); err != nil {
		return nil, err
	}

	if err := d.countInto(stats.ByOrigin,
		"SELECT origin, COUNT(*) FROM broadcasts WHERE origin != '' GROUP BY origin ORDER BY COUNT(*) DESC LIMIT 20"); err != nil {
		return nil, err
	}
	if err := d.countInto(stats.ByError,
		"SELECT parse_error, COUNT(*) FROM broadcasts WHERE parse_error != '' GROUP BY parse_error"); err != nil {
		return nil, err
	}

	return stats, nil
}

func (d *SQLiteDB) countInto(m map[string]int, query string) error {
	rows, err := d.db.Query(query)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		m[key] = count
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBroadcast(row rowScanner) (*Broadcast, error) {
	var b Broadcast
	var source, chatID, sentAt, shipDate, origin, safety, parsed, parseErr, annotation, created sql.NullString

	err := row.Scan(&b.ID, &b.MessageID, &source, &chatID, &sentAt, &b.ParserType, &shipDate, &origin,
		&b.ItemCount, &b.TotalCBM, &b.TotalUnits, &safety, &b.RawText, &parsed, &parseErr,
		&b.IsGolden, &annotation, &created)
	if err != nil {
		return nil, err
	}

	b.Source = source.String
	b.ChatID = chatID.String
	b.SentAt = sentAt.String
	b.ShipDate = shipDate.String
	b.Origin = origin.String
	b.SafetyNote = safety.String
	b.ParsedJSON = parsed.String
	b.ParseError = parseErr.String
	b.Annotation = annotation.String
	b.CreatedAt = created.String

	return &b, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
