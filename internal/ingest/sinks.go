package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"cargo_parser/internal/extractor"
	"cargo_parser/internal/storage"
)

// Archiver stores every broadcast. storage.SQLiteDB satisfies it.
type Archiver interface {
	Insert(p storage.InsertParams) (int64, error)
}

// ArchiveSink writes every record, parsed or not, to the local archive.
type ArchiveSink struct {
	DB Archiver

	mu sync.Mutex // SQLite allows one writer at a time.
}

func (s *ArchiveSink) Write(ctx context.Context, rec *Record) error {
	p := storage.InsertParams{}

	if msg := rec.Message; msg != nil {
		p.MessageID = int64(msg.ID)
		p.Source = msg.Source
		p.ChatID = msg.ChatID()
		p.SentAt = msg.Timestamp
		p.RawText = msg.Text
	}

	if rec.Matched() {
		first := rec.Results[0]
		p.ParserType = first.Type()
		p.ParsedData = first
		if sh := rec.Data.Shipment; sh != nil {
			p.ShipDate = sh.Date
			p.Origin = sh.Origin
			p.SafetyNote = sh.SafetyNote
		}
		if sum := rec.Data.Summary; sum != nil {
			p.ItemCount = sum.Items
			p.TotalCBM = sum.TotalCBM
			p.TotalUnits = sum.TotalUnits
		}
	} else if rec.Err != nil {
		p.ParseError = rec.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.DB.Insert(p); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}

// ShipmentWriter stores manifests. storage.PostgresDB satisfies it.
type ShipmentWriter interface {
	UpsertShipment(ctx context.Context, data extractor.ExtractedData) (uuid.UUID, error)
}

// DropWriter stores per-drop analytics. storage.ClickHouseDB satisfies it.
type DropWriter interface {
	InsertDrops(ctx context.Context, shipmentID uuid.UUID, drops []*extractor.DropUpdate) error
}

// ShipmentSink writes manifests to the shipment store and, when Drops is set,
// their drops to the analytics store under the same shipment ID. Records
// without a manifest are skipped.
type ShipmentSink struct {
	Shipments ShipmentWriter
	Drops     DropWriter // Optional.
}

func (s *ShipmentSink) Write(ctx context.Context, rec *Record) error {
	if rec.Data.Shipment == nil {
		return nil
	}

	var id uuid.UUID
	if s.Shipments != nil {
		var err error
		id, err = s.Shipments.UpsertShipment(ctx, rec.Data)
		if err != nil {
			return fmt.Errorf("shipment: %w", err)
		}
	} else {
		id = storage.ShipmentID(rec.Data.Shipment)
	}

	if s.Drops != nil {
		if err := s.Drops.InsertDrops(ctx, id, rec.Data.Drops); err != nil {
			return fmt.Errorf("drops: %w", err)
		}
	}
	return nil
}

// MultiSink fans a record out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec *Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec *Record) error

func (f SinkFunc) Write(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}
