// Package api provides REST API endpoints for parsing and querying cargo broadcasts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"cargo_parser/internal/chat"
	"cargo_parser/internal/extractor"
	"cargo_parser/internal/parsers/manifest"
	"cargo_parser/internal/registry"
	"cargo_parser/internal/storage"
)

// DefaultMaxBodyBytes caps request bodies when Config.MaxBodyBytes is unset.
const DefaultMaxBodyBytes = 1 << 20

// ShipmentStore persists and loads manifests. storage.PostgresDB satisfies it.
type ShipmentStore interface {
	UpsertShipment(ctx context.Context, data extractor.ExtractedData) (uuid.UUID, error)
	GetShipment(ctx context.Context, id uuid.UUID) (*storage.Shipment, error)
	ListShipmentsByDate(ctx context.Context, date string) ([]*storage.Shipment, error)
}

// VolumeStore holds per-drop analytics. storage.ClickHouseDB satisfies it.
type VolumeStore interface {
	InsertDrops(ctx context.Context, shipmentID uuid.UUID, drops []*extractor.DropUpdate) error
	DailyVolumeByDestination(ctx context.Context, from, to, origin string) ([]storage.DailyVolume, error)
}

// Config holds configuration for the API server.
type Config struct {
	Port         int
	AuthEnabled  bool
	APIKeys      []string // List of valid API keys.
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// Server provides REST API access to the manifest parser and stores.
type Server struct {
	shipments    ShipmentStore
	volumes      VolumeStore // Optional.
	port         int
	authEnabled  bool
	apiKeys      map[string]bool
	maxBodyBytes int64
	log          *zap.Logger
}

// NewServer creates a new API server. Either store may be nil; the endpoints
// that need a missing store answer 503.
func NewServer(shipments ShipmentStore, volumes VolumeStore, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}

	s := &Server{
		shipments:    shipments,
		volumes:      volumes,
		port:         cfg.Port,
		authEnabled:  cfg.AuthEnabled,
		apiKeys:      keys,
		maxBodyBytes: cfg.MaxBodyBytes,
		log:          cfg.Logger,
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = DefaultMaxBodyBytes
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required).
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.authEnabled {
				r.Use(s.authMiddleware)
			}

			r.Post("/parse", s.handleParse)

			r.Post("/shipments", s.handleCreateShipment)
			r.Get("/shipments", s.handleListShipments)
			r.Get("/shipments/{id}", s.handleGetShipment)

			r.Get("/volume", s.handleVolume)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("cargo API starting",
		zap.String("addr", "http://localhost"+srv.Addr),
		zap.Bool("auth", s.authEnabled),
		zap.Bool("analytics", s.volumes != nil))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// readMessage decodes a request body into a chat message. JSON bodies use the
// chat envelope fields; text/plain bodies are the broadcast text itself.
func (s *Server) readMessage(w http.ResponseWriter, r *http.Request) (*chat.Message, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Read body: "+err.Error())
		return nil, false
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/plain" {
		return &chat.Message{Source: "api", Text: string(body)}, true
	}

	var msg chat.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return nil, false
	}
	if strings.TrimSpace(msg.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return nil, false
	}
	if msg.Source == "" {
		msg.Source = "api"
	}
	return &msg, true
}

// parseMessage runs the manifest parser and answers 422 on a parse failure.
func parseMessage(w http.ResponseWriter, msg *chat.Message) (*manifest.Result, bool) {
	result, err := manifest.ParseText(msg.Text)
	if err != nil {
		if errors.Is(err, manifest.ErrMissingDate) || errors.Is(err, manifest.ErrMissingOrigin) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	result.MsgID = int64(msg.ID)
	result.Timestamp = msg.Timestamp
	return result, true
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	msg, ok := s.readMessage(w, r)
	if !ok {
		return
	}

	result, ok := parseMessage(w, msg)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CreateResponse is the response for a stored manifest.
type CreateResponse struct {
	ID      uuid.UUID          `json:"id"`
	Date    string             `json:"date"`
	Origin  string             `json:"origin"`
	Summary *extractor.Summary `json:"summary"`
}

func (s *Server) handleCreateShipment(w http.ResponseWriter, r *http.Request) {
	if s.shipments == nil {
		writeError(w, http.StatusServiceUnavailable, "Shipment store not configured")
		return
	}

	msg, ok := s.readMessage(w, r)
	if !ok {
		return
	}

	result, ok := parseMessage(w, msg)
	if !ok {
		return
	}

	data := extractor.Extract(msg, []registry.Result{result})
	if data.Shipment == nil {
		writeError(w, http.StatusUnprocessableEntity, "No manifest found")
		return
	}

	ctx := r.Context()
	id, err := s.shipments.UpsertShipment(ctx, data)
	if err != nil {
		s.log.Error("store shipment", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Analytics are best effort; the shipment is already stored.
	if s.volumes != nil {
		if err := s.volumes.InsertDrops(ctx, id, data.Drops); err != nil {
			s.log.Warn("store drops", zap.Stringer("shipment", id), zap.Error(err))
		}
	}

	writeJSON(w, http.StatusCreated, CreateResponse{
		ID:      id,
		Date:    data.Shipment.Date,
		Origin:  data.Shipment.Origin,
		Summary: data.Summary,
	})
}

func (s *Server) handleGetShipment(w http.ResponseWriter, r *http.Request) {
	if s.shipments == nil {
		writeError(w, http.StatusServiceUnavailable, "Shipment store not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid shipment id")
		return
	}

	shipment, err := s.shipments.GetShipment(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if shipment == nil {
		writeError(w, http.StatusNotFound, "Shipment not found")
		return
	}

	writeJSON(w, http.StatusOK, shipment)
}

func (s *Server) handleListShipments(w http.ResponseWriter, r *http.Request) {
	if s.shipments == nil {
		writeError(w, http.StatusServiceUnavailable, "Shipment store not configured")
		return
	}

	date := r.URL.Query().Get("date")
	if !storage.ValidDate(date) {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)")
		return
	}

	shipments, err := s.shipments.ListShipmentsByDate(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if shipments == nil {
		shipments = []*storage.Shipment{}
	}

	writeJSON(w, http.StatusOK, shipments)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	if s.volumes == nil {
		writeError(w, http.StatusServiceUnavailable, "Analytics store not configured")
		return
	}

	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if to == "" {
		to = from
	}
	if !storage.ValidDate(from) || !storage.ValidDate(to) {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)")
		return
	}

	vols, err := s.volumes.DailyVolumeByDestination(r.Context(), from, to, q.Get("origin"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if vols == nil {
		vols = []storage.DailyVolume{}
	}

	writeJSON(w, http.StatusOK, vols)
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
