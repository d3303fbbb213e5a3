// Package ingest runs chat messages through the parser registry and hands
// the outcome to storage sinks.
package ingest

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cargo_parser/internal/chat"
	"cargo_parser/internal/extractor"
	"cargo_parser/internal/parsers/manifest"
	"cargo_parser/internal/registry"
)

// ErrNoParser marks a message that passed no parser's quick check.
var ErrNoParser = errors.New("no parser matched")

// Record is the outcome of parsing one message.
type Record struct {
	Message *chat.Message
	Results []registry.Result
	Data    extractor.ExtractedData
	Err     error // Why no result was produced; nil when Results is non-empty.
}

// Matched reports whether any parser produced a result.
func (r *Record) Matched() bool {
	return len(r.Results) > 0
}

// Sink receives parsed records.
type Sink interface {
	Write(ctx context.Context, rec *Record) error
}

// Stats counts pipeline outcomes.
type Stats struct {
	Total      int            `json:"total"`
	Matched    int            `json:"matched"`
	Failed     int            `json:"failed"`
	SinkErrors int            `json:"sink_errors"`
	Items      int            `json:"items"`
	ByReason   map[string]int `json:"by_reason,omitempty"`
}

// Reasons returns the failure reasons sorted by count, most frequent first.
func (s Stats) Reasons() []string {
	out := make([]string, 0, len(s.ByReason))
	for r := range s.ByReason {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.ByReason[out[i]] != s.ByReason[out[j]] {
			return s.ByReason[out[i]] > s.ByReason[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Config holds pipeline settings.
type Config struct {
	Workers  int                // Defaults to GOMAXPROCS.
	Registry *registry.Registry // Defaults to registry.Default().
	Logger   *zap.Logger
}

// Pipeline parses messages concurrently and writes them to a sink.
type Pipeline struct {
	reg     *registry.Registry
	sink    Sink
	workers int
	log     *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// NewPipeline creates a pipeline. A nil sink discards records.
func NewPipeline(sink Sink, cfg Config) *Pipeline {
	p := &Pipeline{
		reg:     cfg.Registry,
		sink:    sink,
		workers: cfg.Workers,
		log:     cfg.Logger,
	}
	if p.reg == nil {
		p.reg = registry.Default()
	}
	if p.workers <= 0 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

// Handle parses one message without writing it anywhere.
func (p *Pipeline) Handle(msg *chat.Message) *Record {
	rec := &Record{Message: msg}
	if msg == nil {
		rec.Err = ErrNoParser
		return rec
	}

	rec.Results = p.reg.Dispatch(msg)
	if len(rec.Results) == 0 {
		rec.Err = failureReason(msg)
		return rec
	}

	rec.Data = extractor.Extract(msg, rec.Results)
	return rec
}

// failureReason explains a message no parser accepted.
func failureReason(msg *chat.Message) error {
	if msg.Text == "" {
		return ErrNoParser
	}
	if _, err := manifest.ParseText(msg.Text); err != nil {
		return err
	}
	return ErrNoParser
}

// Ingest parses one message, writes it to the sink and updates the stats.
// Only sink failures are returned.
func (p *Pipeline) Ingest(ctx context.Context, msg *chat.Message) (*Record, error) {
	rec := p.Handle(msg)

	var err error
	if p.sink != nil {
		err = p.sink.Write(ctx, rec)
	}

	p.record(rec, err)
	return rec, err
}

func (p *Pipeline) record(rec *Record, sinkErr error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Total++
	if rec.Matched() {
		p.stats.Matched++
		p.stats.Items += len(rec.Data.Items)
	} else {
		p.stats.Failed++
		if p.stats.ByReason == nil {
			p.stats.ByReason = make(map[string]int)
		}
		p.stats.ByReason[rec.Err.Error()]++
	}
	if sinkErr != nil {
		p.stats.SinkErrors++
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	if s.ByReason != nil {
		s.ByReason = make(map[string]int, len(p.stats.ByReason))
		for k, v := range p.stats.ByReason {
			s.ByReason[k] = v
		}
	}
	return s
}

// Process ingests msgs on a bounded worker pool. Per-message failures are
// logged and counted; only cancellation of ctx stops the run early.
func (p *Pipeline) Process(ctx context.Context, msgs []*chat.Message) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, msg := range msgs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := p.Ingest(gctx, msg)
			p.logRecord(rec, err)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Pipeline) logRecord(rec *Record, sinkErr error) {
	var id int64
	if rec.Message != nil {
		id = int64(rec.Message.ID)
	}

	if sinkErr != nil {
		p.log.Error("sink write failed", zap.Int64("message_id", id), zap.Error(sinkErr))
	}
	if !rec.Matched() {
		p.log.Debug("message not parsed", zap.Int64("message_id", id), zap.Error(rec.Err))
		return
	}
	if s := rec.Data.Shipment; s != nil {
		p.log.Debug("manifest parsed",
			zap.Int64("message_id", id),
			zap.String("date", s.Date),
			zap.String("origin", s.Origin),
			zap.Int("items", len(rec.Data.Items)))
	}
}
