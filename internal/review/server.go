// Package review provides an HTTP API for reviewing and annotating archived broadcasts.
package review

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"cargo_parser/internal/parsers/manifest"
	"cargo_parser/internal/storage"
)

// Archive is the subset of storage.SQLiteDB the review server needs.
type Archive interface {
	Query(p storage.QueryParams) ([]storage.Broadcast, error)
	GetByID(id int64) (*storage.Broadcast, error)
	GetStats() (*storage.Stats, error)
	Distinct(column string) ([]string, error)
	SetGolden(id int64, golden bool) error
	SetAnnotation(id int64, annotation string) error
}

// Server provides the review API.
type Server struct {
	db     Archive
	port   int
	origin string // Optional origin filter.
	log    *zap.Logger
}

// NewServer creates a new review server.
func NewServer(db Archive, port int, origin string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		db:     db,
		port:   port,
		origin: origin,
		log:    log,
	}
}

// Handler returns the review routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/broadcasts", s.handleBroadcasts)
	mux.HandleFunc("GET /api/broadcasts/{id}", s.handleBroadcast)
	mux.HandleFunc("POST /api/broadcasts/{id}/golden", s.handleSetGolden)
	mux.HandleFunc("POST /api/broadcasts/{id}/annotation", s.handleSetAnnotation)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/origins", s.handleOrigins)
	mux.HandleFunc("GET /api/export/json", s.handleExportJSON)
	mux.HandleFunc("GET /api/export/go", s.handleExportGo)

	return mux
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("review API starting", zap.String("addr", "http://localhost"+addr))
	if s.origin != "" {
		s.log.Info("filtering to origin", zap.String("origin", s.origin))
	}

	return http.ListenAndServe(addr, s.Handler())
}

// APIBroadcast is the JSON representation of an archived broadcast.
type APIBroadcast struct {
	ID         int64          `json:"id"`
	MessageID  int64          `json:"message_id"`
	Source     string         `json:"source,omitempty"`
	ChatID     string         `json:"chat_id,omitempty"`
	SentAt     string         `json:"sent_at,omitempty"`
	ParserType string         `json:"parser_type,omitempty"`
	ShipDate   string         `json:"ship_date,omitempty"`
	Origin     string         `json:"origin,omitempty"`
	ItemCount  int            `json:"item_count"`
	TotalCBM   int            `json:"total_cbm"`
	TotalUnits int            `json:"total_units"`
	RawText    string         `json:"raw_text"`
	Parsed     map[string]any `json:"parsed,omitempty"`
	ParseError string         `json:"parse_error,omitempty"`
	IsGolden   bool           `json:"is_golden"`
	Annotation string         `json:"annotation,omitempty"`
	CreatedAt  string         `json:"created_at"`

	// Outcome of running the current parser over the raw text again.
	Reparsed     *manifest.Result `json:"reparsed,omitempty"`
	ReparseError string           `json:"reparse_error,omitempty"`
}

func broadcastToAPI(b *storage.Broadcast) APIBroadcast {
	api := APIBroadcast{
		ID:         b.ID,
		MessageID:  b.MessageID,
		Source:     b.Source,
		ChatID:     b.ChatID,
		SentAt:     b.SentAt,
		ParserType: b.ParserType,
		ShipDate:   b.ShipDate,
		Origin:     b.Origin,
		ItemCount:  b.ItemCount,
		TotalCBM:   b.TotalCBM,
		TotalUnits: b.TotalUnits,
		RawText:    b.RawText,
		ParseError: b.ParseError,
		IsGolden:   b.IsGolden,
		Annotation: b.Annotation,
		CreatedAt:  b.CreatedAt,
	}

	if b.ParsedJSON != "" {
		_ = json.Unmarshal([]byte(b.ParsedJSON), &api.Parsed)
	}

	return api
}

func (s *Server) handleBroadcasts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := storage.QueryParams{
		ShipDate:  q.Get("date"),
		Origin:    q.Get("origin"),
		Failed:    q.Get("failed") == "true",
		Golden:    q.Get("golden") == "true",
		FullText:  q.Get("search"),
		OrderBy:   q.Get("order"),
		OrderDesc: q.Get("desc") != "false",
	}

	// Apply server-level filter.
	if s.origin != "" && params.Origin == "" {
		params.Origin = s.origin
	}

	// Pagination.
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 {
		params.Limit = limit
	} else {
		params.Limit = 50
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		params.Offset = offset
	}

	broadcasts, err := s.db.Query(params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result := make([]APIBroadcast, 0, len(broadcasts))
	for i := range broadcasts {
		result = append(result, broadcastToAPI(&broadcasts[i]))
	}

	writeJSON(w, result)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*storage.Broadcast, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid broadcast ID", http.StatusBadRequest)
		return nil, false
	}

	b, err := s.db.GetByID(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if b == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return nil, false
	}
	return b, true
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r)
	if !ok {
		return
	}

	api := broadcastToAPI(b)
	if result, err := manifest.ParseText(b.RawText); err != nil {
		api.ReparseError = err.Error()
	} else {
		result.MsgID = b.MessageID
		api.Reparsed = result
	}

	writeJSON(w, api)
}

func (s *Server) handleSetGolden(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Golden bool `json:"golden"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.db.SetGolden(b.ID, req.Golden); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleSetAnnotation(w http.ResponseWriter, r *http.Request) {
	b, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req struct {
		Annotation string `json:"annotation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.db.SetAnnotation(b.ID, req.Annotation); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetStats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, stats)
}

func (s *Server) handleOrigins(w http.ResponseWriter, r *http.Request) {
	origins, err := s.db.Distinct("origin")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if origins == nil {
		origins = []string{}
	}

	writeJSON(w, origins)
}

// GoldenExport represents a golden broadcast for export.
type GoldenExport struct {
	ID         int64          `json:"id"`
	RawText    string         `json:"raw_text"`
	Expected   map[string]any `json:"expected,omitempty"`
	ParseError string         `json:"parse_error,omitempty"`
	Annotation string         `json:"annotation,omitempty"`
}

func (s *Server) golden() ([]storage.Broadcast, error) {
	return s.db.Query(storage.QueryParams{Golden: true, Limit: 100000})
}

func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	broadcasts, err := s.golden()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	exports := make([]GoldenExport, 0, len(broadcasts))
	for _, b := range broadcasts {
		export := GoldenExport{
			ID:         b.ID,
			RawText:    b.RawText,
			ParseError: b.ParseError,
			Annotation: b.Annotation,
		}
		if b.ParsedJSON != "" {
			_ = json.Unmarshal([]byte(b.ParsedJSON), &export.Expected)
		}
		exports = append(exports, export)
	}

	w.Header().Set("Content-Disposition", "attachment; filename=golden_broadcasts.json")
	writeJSON(w, exports)
}

func (s *Server) handleExportGo(w http.ResponseWriter, r *http.Request) {
	broadcasts, err := s.golden()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	sort.Slice(broadcasts, func(i, j int) bool { return broadcasts[i].ID < broadcasts[j].ID })

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=golden_test.go")
	_, _ = w.Write([]byte(GenerateGoldenTest(broadcasts)))
}

// GenerateGoldenTest renders golden broadcasts as a table-driven test of
// manifest.ParseText. Archived failures become expected-error cases.
func GenerateGoldenTest(broadcasts []storage.Broadcast) string {
	var code strings.Builder
	code.WriteString("// Code generated from golden broadcasts. DO NOT EDIT.\n\n")
	code.WriteString("package manifest_test\n\n")
	code.WriteString("import (\n")
	code.WriteString("\t\"testing\"\n\n")
	code.WriteString("\t\"cargo_parser/internal/parsers/manifest\"\n")
	code.WriteString(")\n\n")

	code.WriteString("func TestGolden(t *testing.T) {\n")
	code.WriteString("\tcases := []struct {\n")
	code.WriteString("\t\tname      string\n")
	code.WriteString("\t\traw       string\n")
	code.WriteString("\t\twantErr   string\n")
	code.WriteString("\t\twantDate  string\n")
	code.WriteString("\t\twantItems int\n")
	code.WriteString("\t}{\n")

	for _, b := range broadcasts {
		name := fmt.Sprintf("broadcast_%d", b.ID)
		fmt.Fprintf(&code, "\t\t{%q, %q, %q, %q, %d},\n", name, b.RawText, b.ParseError, b.ShipDate, b.ItemCount)
	}

	code.WriteString("\t}\n\n")
	code.WriteString("\tfor _, tc := range cases {\n")
	code.WriteString("\t\tt.Run(tc.name, func(t *testing.T) {\n")
	code.WriteString("\t\t\tgot, err := manifest.ParseText(tc.raw)\n")
	code.WriteString("\t\t\tif tc.wantErr != \"\" {\n")
	code.WriteString("\t\t\t\tif err == nil || err.Error() != tc.wantErr {\n")
	code.WriteString("\t\t\t\t\tt.Errorf(\"error = %v, want %s\", err, tc.wantErr)\n")
	code.WriteString("\t\t\t\t}\n")
	code.WriteString("\t\t\t\treturn\n")
	code.WriteString("\t\t\t}\n")
	code.WriteString("\t\t\tif err != nil {\n")
	code.WriteString("\t\t\t\tt.Fatalf(\"ParseText() error = %v\", err)\n")
	code.WriteString("\t\t\t}\n")
	code.WriteString("\t\t\tif got.Date != tc.wantDate || len(got.Items) != tc.wantItems {\n")
	code.WriteString("\t\t\t\tt.Errorf(\"got date %s with %d items, want %s with %d\", got.Date, len(got.Items), tc.wantDate, tc.wantItems)\n")
	code.WriteString("\t\t\t}\n")
	code.WriteString("\t\t})\n")
	code.WriteString("\t}\n")
	code.WriteString("}\n")

	return code.String()
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}
