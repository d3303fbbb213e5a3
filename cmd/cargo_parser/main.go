// Command-line entry point for the cargo broadcast parser.
//
// Note about input formats
// ------------------------
// Single-message commands (parse, trace) read the raw broadcast text.
// Batch commands (extract, ingest) read JSONL where each line is either:
//  1. Gateway wrapper: {"source":..., "chat":{...}, "sender":{...}, "message":{"id":..,"text":..}}
//  2. Flat message:    {"id":..., "source":..., "text":"...", ...}
//
// Use -all with extract to keep messages even if no parser matched.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"cargo_parser/internal/chat"
	"cargo_parser/internal/extractor"
	"cargo_parser/internal/ingest"
	_ "cargo_parser/internal/parsers" // register all parsers via init()
	"cargo_parser/internal/parsers/manifest"
	"cargo_parser/internal/registry"
	"cargo_parser/internal/review"
	"cargo_parser/internal/storage"
)

type ExtractOut struct {
	Message *chat.Message      `json:"message"`
	Results []any              `json:"results,omitempty"`
	Summary *extractor.Summary `json:"summary,omitempty"`
}

type Stats struct {
	Lines     int
	Decoded   int
	Undecoded int
	Emitted   int
	Matched   int
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "cargo_parser - commands:")
	fmt.Fprintln(w, "  parse     - parse one broadcast and print the manifest as JSON")
	fmt.Fprintln(w, "  trace     - show how each line of a broadcast was classified")
	fmt.Fprintln(w, "  extract   - parse a JSONL file of chat messages and output JSON")
	fmt.Fprintln(w, "  ingest    - parse a JSONL file and store the results")
	fmt.Fprintln(w, "  search    - full-text search over the SQLite archive")
	fmt.Fprintln(w, "  subscribe - consume chat messages from NATS and store the results")
	fmt.Fprintln(w, "  review    - serve the review API over the SQLite archive")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cargo_parser parse [-input broadcast.txt] [-pretty]")
	fmt.Fprintln(w, "  cargo_parser trace [-input broadcast.txt]")
	fmt.Fprintln(w, "  cargo_parser extract -input messages.jsonl [-output out.json] [-pretty] [-all] [-stats]")
	fmt.Fprintln(w, "  cargo_parser ingest -input messages.jsonl [-db cargo.db] [-pg] [-ch] [-workers N]")
	fmt.Fprintln(w, "  cargo_parser search -q 'Gudang' [-db cargo.db] [-date 2024-10-23] [-origin KCS] [-failed]")
	fmt.Fprintln(w, "  cargo_parser subscribe [-nats-url URL] [-subject S] [-queue Q] [-db ''] [-pg] [-ch]")
	fmt.Fprintln(w, "  cargo_parser review [-db cargo.db] [-port 8080] [-origin KCS]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Settings may also come from the environment or a .env file.")
	fmt.Fprintln(w, "")
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "parse":
		runParse(os.Args[2:])
	case "trace":
		runTrace(os.Args[2:])
	case "extract":
		runExtract(os.Args[2:])
	case "ingest":
		runIngest(os.Args[2:])
	case "search":
		runSearch(os.Args[2:])
	case "subscribe":
		runSubscribe(os.Args[2:])
	case "review":
		runReview(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runParse(args []string) {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	inPath := fs.String("input", "", "Input text file (default: stdin)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	_ = fs.Parse(args)

	text := readText(*inPath)

	result, err := manifest.ParseText(text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}

	writeJSON(os.Stdout, result, *pretty)
}

func runTrace(args []string) {
	fs := flag.NewFlagSet("trace", flag.ExitOnError)
	inPath := fs.String("input", "", "Input text file (default: stdin)")
	_ = fs.Parse(args)

	msg := &chat.Message{Source: "cli", Text: readText(*inPath)}

	traces := registry.Default().Trace(msg)
	if len(traces) == 0 {
		fmt.Println("No traceable parsers registered.")
		return
	}

	for _, tr := range traces {
		status := "NO MATCH"
		if tr.Matched {
			status = "MATCH"
		}
		fmt.Printf("== %s: %s\n", tr.ParserName, status)

		if tr.QuickCheck != nil && !tr.QuickCheck.Passed {
			fmt.Printf("   quick check failed: %s\n", tr.QuickCheck.Reason)
			continue
		}

		for _, ext := range tr.Extractors {
			mark := " "
			if ext.Matched {
				mark = "+"
			}
			fmt.Printf(" %s %-8s %-7s %s\n", mark, ext.Name, shortPattern(ext.Pattern), ext.Value)
		}
	}
}

// shortPattern keeps trace output on one line when the role is a regex.
func shortPattern(p string) string {
	if len(p) > 7 {
		return p[:6] + "…"
	}
	return p
}

func runExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	inPath := fs.String("input", "", "Input JSONL file (default: stdin)")
	outPath := fs.String("output", "", "Output JSON file (default: stdout)")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	includeAll := fs.Bool("all", false, "Include messages even if no parser matched")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	_ = fs.Parse(args)

	// Ensure parsers priority ordering is stable.
	registry.Default().Sort()

	out := make([]ExtractOut, 0, 1024)
	st := &Stats{}

	err := scanMessages(*inPath, st, func(msg *chat.Message) {
		results := registry.Default().Dispatch(msg)
		if len(results) > 0 {
			st.Matched++
		} else if !*includeAll {
			return
		}

		rany := make([]any, 0, len(results))
		for _, r := range results {
			rany = append(rany, r) // keep concrete types for JSON marshal
		}
		data := extractor.Extract(msg, results)
		out = append(out, ExtractOut{Message: msg, Results: rany, Summary: data.Summary})
		st.Emitted++
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
		os.Exit(1)
	}

	var wout io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create output: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		wout = f
	}

	writeJSON(wout, out, *pretty)

	if *showStats {
		fmt.Fprintf(os.Stderr,
			"stats: lines=%d decoded=%d skipped(undecodable)=%d emitted=%d matched=%d\n",
			st.Lines, st.Decoded, st.Undecoded, st.Emitted, st.Matched,
		)
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	inPath := fs.String("input", "", "Input JSONL file (default: stdin)")
	workers := fs.Int("workers", envOrDefaultInt("INGEST_WORKERS", 0), "Parser workers (default: GOMAXPROCS)")
	dev := fs.Bool("dev", false, "Human-readable development logging")
	stores := addStoreFlags(fs, "cargo.db")
	_ = fs.Parse(args)

	log := mustLogger(*dev)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var msgs []*chat.Message
	st := &Stats{}
	if err := scanMessages(*inPath, st, func(msg *chat.Message) { msgs = append(msgs, msg) }); err != nil {
		log.Fatal("read input", zap.Error(err))
	}

	sink, closeStores, err := stores.open(ctx, log)
	if err != nil {
		log.Fatal("open stores", zap.Error(err))
	}
	defer closeStores()

	p := ingest.NewPipeline(sink, ingest.Config{Workers: *workers, Logger: log})

	start := time.Now()
	if err := p.Process(ctx, msgs); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ingest stopped", zap.Error(err))
	}

	ps := p.Stats()
	log.Info("ingest finished",
		zap.Int("lines", st.Lines),
		zap.Int("undecodable", st.Undecoded),
		zap.Int("messages", ps.Total),
		zap.Int("matched", ps.Matched),
		zap.Int("failed", ps.Failed),
		zap.Int("items", ps.Items),
		zap.Int("sink_errors", ps.SinkErrors),
		zap.Duration("elapsed", time.Since(start)))

	for _, reason := range ps.Reasons() {
		log.Info("failure reason", zap.String("reason", reason), zap.Int("count", ps.ByReason[reason]))
	}
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("CARGO_DB", "cargo.db"), "SQLite archive path")
	q := fs.String("q", "", "Full-text query over raw broadcast text")
	date := fs.String("date", "", "Ship date (YYYY-MM-DD)")
	origin := fs.String("origin", "", "Origin (substring)")
	failed := fs.Bool("failed", false, "Only broadcasts that did not parse")
	limit := fs.Int("limit", 20, "Max results")
	asJSON := fs.Bool("json", false, "Output JSON")
	showStats := fs.Bool("stats", false, "Print archive counters instead of results")
	_ = fs.Parse(args)

	db, err := storage.OpenSQLite(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if *showStats {
		stats, err := db.GetStats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stats failed: %v\n", err)
			os.Exit(1)
		}
		writeJSON(os.Stdout, stats, true)
		return
	}

	rows, err := db.Query(storage.QueryParams{
		FullText:  *q,
		ShipDate:  *date,
		Origin:    *origin,
		Failed:    *failed,
		Limit:     *limit,
		OrderBy:   "created_at",
		OrderDesc: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		writeJSON(os.Stdout, rows, true)
		return
	}

	for _, b := range rows {
		if b.ParseError != "" {
			fmt.Printf("#%d msg=%d  FAILED (%s)\n", b.ID, b.MessageID, b.ParseError)
		} else {
			fmt.Printf("#%d msg=%d  %s  %s  items=%d cbm=%d units=%d\n",
				b.ID, b.MessageID, b.ShipDate, b.Origin, b.ItemCount, b.TotalCBM, b.TotalUnits)
		}
		fmt.Printf("    %s\n", firstLine(b.RawText))
	}
	fmt.Fprintf(os.Stderr, "%d result(s)\n", len(rows))
}

func runSubscribe(args []string) {
	fs := flag.NewFlagSet("subscribe", flag.ExitOnError)
	natsURL := fs.String("nats-url", envOrDefault("NATS_URL", "nats://127.0.0.1:4222"), "NATS server URL")
	subject := fs.String("subject", envOrDefault("NATS_SUBJECT", "chat.messages"), "Subject carrying chat envelopes")
	queue := fs.String("queue", envOrDefault("NATS_QUEUE", ""), "Queue group (optional)")
	dev := fs.Bool("dev", false, "Human-readable development logging")
	stores := addStoreFlags(fs, "")
	_ = fs.Parse(args)

	log := mustLogger(*dev)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink, closeStores, err := stores.open(ctx, log)
	if err != nil {
		log.Fatal("open stores", zap.Error(err))
	}
	defer closeStores()

	p := ingest.NewPipeline(sink, ingest.Config{Logger: log})
	sub := ingest.NewSubscriber(ingest.SubscriberConfig{
		URL:     *natsURL,
		Subject: *subject,
		Queue:   *queue,
	}, p, log)

	if err := sub.Run(ctx); err != nil {
		log.Error("subscriber stopped", zap.Error(err))
		return
	}

	ps := p.Stats()
	log.Info("subscriber finished",
		zap.Int("messages", ps.Total),
		zap.Int("matched", ps.Matched),
		zap.Int("failed", ps.Failed),
		zap.Int("sink_errors", ps.SinkErrors))
}

func runReview(args []string) {
	fs := flag.NewFlagSet("review", flag.ExitOnError)
	dbPath := fs.String("db", envOrDefault("CARGO_DB", "cargo.db"), "SQLite archive path")
	port := fs.Int("port", envOrDefaultInt("REVIEW_PORT", 8080), "HTTP port")
	origin := fs.String("origin", "", "Only show broadcasts from this origin (substring)")
	dev := fs.Bool("dev", false, "Human-readable development logging")
	_ = fs.Parse(args)

	log := mustLogger(*dev)
	defer func() { _ = log.Sync() }()

	db, err := storage.OpenSQLite(*dbPath)
	if err != nil {
		log.Fatal("open archive", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	if err := review.NewServer(db, *port, *origin, log).Run(); err != nil {
		log.Error("review server stopped", zap.Error(err))
	}
}

// scanMessages decodes a JSONL stream and calls fn for every chat message.
func scanMessages(path string, st *Stats, fn func(*chat.Message)) error {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	scanner := bufio.NewScanner(r)
	// Broadcast lines can be long; bump buffer.
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)

	for scanner.Scan() {
		st.Lines++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg := chat.Decode([]byte(line))
		if msg == nil {
			st.Undecoded++
			continue
		}
		st.Decoded++
		fn(msg)
	}

	return scanner.Err()
}

func readText(path string) string {
	var (
		b   []byte
		err error
	)
	if path == "" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
	return string(b)
}

func writeJSON(w io.Writer, v any, pretty bool) {
	var (
		enc []byte
		err error
	)
	if pretty {
		enc, err = json.MarshalIndent(v, "", "  ")
	} else {
		enc, err = json.Marshal(v)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		os.Exit(1)
	}
	_, _ = w.Write(enc)
	_, _ = w.Write([]byte("\n"))
}

func mustLogger(dev bool) *zap.Logger {
	var (
		log *zap.Logger
		err error
	)
	if dev {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	return log
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
