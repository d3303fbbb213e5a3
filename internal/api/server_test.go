package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"cargo_parser/internal/extractor"
	"cargo_parser/internal/storage"
)

const broadcast = "Rabu, 23 Oktober 2024\n" +
	"Origin KCS Karawang\n" +
	"Csa Cikupa + Rajeg 45 Cbm 1 Unit (Gudang Bayur)\n" +
	"Tuj Pekalongan 46 Cbm 2 Unit\n" +
	"Pastikan Driver memakai Helm"

// fakeShipments is an in-memory ShipmentStore.
type fakeShipments struct {
	byID map[uuid.UUID]*storage.Shipment
	err  error
}

func newFakeShipments() *fakeShipments {
	return &fakeShipments{byID: make(map[uuid.UUID]*storage.Shipment)}
}

func (f *fakeShipments) UpsertShipment(ctx context.Context, data extractor.ExtractedData) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.Nil, f.err
	}
	if !storage.ValidDate(data.Shipment.Date) {
		return uuid.Nil, errors.New("invalid ship date")
	}
	id := storage.ShipmentID(data.Shipment)
	s := &storage.Shipment{
		ID:        id,
		MessageID: data.Shipment.MessageID,
		Date:      data.Shipment.Date,
		Origin:    data.Shipment.Origin,
		ItemCount: len(data.Items),
	}
	for _, it := range data.Items {
		s.Items = append(s.Items, storage.ShipmentItem{
			Sequence:     it.Sequence,
			Destinations: it.Destinations,
			VolumeCBM:    it.VolumeCBM,
			UnitCount:    it.UnitCount,
		})
	}
	f.byID[id] = s
	return id, nil
}

func (f *fakeShipments) GetShipment(ctx context.Context, id uuid.UUID) (*storage.Shipment, error) {
	return f.byID[id], f.err
}

func (f *fakeShipments) ListShipmentsByDate(ctx context.Context, date string) ([]*storage.Shipment, error) {
	var out []*storage.Shipment
	for _, s := range f.byID {
		if s.Date == date {
			out = append(out, s)
		}
	}
	return out, f.err
}

// fakeVolumes records inserted drops.
type fakeVolumes struct {
	drops []*extractor.DropUpdate
}

func (f *fakeVolumes) InsertDrops(ctx context.Context, id uuid.UUID, drops []*extractor.DropUpdate) error {
	f.drops = append(f.drops, drops...)
	return nil
}

func (f *fakeVolumes) DailyVolumeByDestination(ctx context.Context, from, to, origin string) ([]storage.DailyVolume, error) {
	var out []storage.DailyVolume
	for _, d := range f.drops {
		if d.ShipDate < from || d.ShipDate > to || (origin != "" && d.Origin != origin) {
			continue
		}
		out = append(out, storage.DailyVolume{
			Date: d.ShipDate, Origin: d.Origin, DestinationKey: d.DestinationKey,
			Drops: 1, VolumeCBM: uint64(d.VolumeCBM), Units: uint64(d.UnitCount),
		})
	}
	return out, nil
}

func do(t *testing.T, h http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(nil, nil, Config{Port: 8081, AuthEnabled: true, APIKeys: []string{"k"}})

	rec := do(t, server.Handler(), http.MethodGet, "/api/v1/health", "", "")
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	server := NewServer(nil, nil, Config{
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	})
	router := server.Handler()

	tests := []struct {
		name       string
		apiKey     string
		keyHeader  string
		wantStatus int
	}{
		{name: "no key", wantStatus: http.StatusUnauthorized},
		{name: "invalid key", apiKey: "wrong-key", keyHeader: "X-API-Key", wantStatus: http.StatusForbidden},
		{name: "valid key via X-API-Key", apiKey: "test-key-123", keyHeader: "X-API-Key", wantStatus: http.StatusOK},
		{name: "valid key via Bearer", apiKey: "another-key", keyHeader: "Authorization", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/parse", strings.NewReader(broadcast))
			req.Header.Set("Content-Type", "text/plain")
			if tt.apiKey != "" {
				if tt.keyHeader == "Authorization" {
					req.Header.Set("Authorization", "Bearer "+tt.apiKey)
				} else {
					req.Header.Set(tt.keyHeader, tt.apiKey)
				}
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	server := NewServer(nil, nil, Config{})
	rec := do(t, server.Handler(), http.MethodOptions, "/api/v1/parse", "", "")

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestParseEndpoint(t *testing.T) {
	server := NewServer(nil, nil, Config{MaxBodyBytes: 4096})
	router := server.Handler()

	jsonBody, _ := json.Marshal(map[string]any{"id": "77", "text": broadcast})

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
		wantError   string
	}{
		{"plain text", "text/plain; charset=utf-8", broadcast, http.StatusOK, ""},
		{"json envelope", "application/json", string(jsonBody), http.StatusOK, ""},
		{"missing date", "text/plain", "Origin KCS\nTuj 4 Cbm", http.StatusUnprocessableEntity, "date not found"},
		{"missing origin", "text/plain", "23 Oktober 2024\nTuj 4 Cbm", http.StatusUnprocessableEntity, "origin not found"},
		{"bad json", "application/json", "{", http.StatusBadRequest, ""},
		{"empty text", "application/json", `{"text":"  "}`, http.StatusBadRequest, "text is required"},
		{"oversize", "text/plain", strings.Repeat("x", 5000), http.StatusRequestEntityTooLarge, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/v1/parse", tt.contentType, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantError != "" {
				var resp map[string]string
				_ = json.NewDecoder(rec.Body).Decode(&resp)
				if resp["error"] != tt.wantError {
					t.Errorf("error = %q, want %q", resp["error"], tt.wantError)
				}
			}
		})
	}

	t.Run("manifest body", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/v1/parse", "application/json", string(jsonBody))

		var got struct {
			MessageID int64  `json:"message_id"`
			Date      string `json:"date"`
			Origin    string `json:"origin"`
			Items     []struct {
				Destinations []string `json:"destinations"`
				Notes        string   `json:"notes"`
			} `json:"items"`
			SafetyNote string `json:"safety_note"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
			t.Fatal(err)
		}
		if got.MessageID != 77 || got.Date != "2024-10-23" || got.Origin != "KCS Karawang" {
			t.Errorf("header = %+v", got)
		}
		if len(got.Items) != 2 || got.Items[0].Notes != "Gudang Bayur" {
			t.Errorf("items = %+v", got.Items)
		}
		if got.SafetyNote != "Pastikan Driver memakai Helm" {
			t.Errorf("safety note = %q", got.SafetyNote)
		}
	})
}

func TestShipmentEndpoints(t *testing.T) {
	shipments := newFakeShipments()
	volumes := &fakeVolumes{}
	router := NewServer(shipments, volumes, Config{}).Handler()

	body, _ := json.Marshal(map[string]any{
		"id":     12,
		"source": "whatsapp",
		"chat":   map[string]string{"id": "grp"},
		"text":   broadcast,
	})

	rec := do(t, router, http.MethodPost, "/api/v1/shipments", "application/json", string(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}

	var created CreateResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Summary == nil || created.Summary.TotalCBM != 91 || created.Summary.Drops != 3 {
		t.Errorf("summary = %+v", created.Summary)
	}
	if len(volumes.drops) != 3 {
		t.Errorf("expected 3 drops forwarded to analytics, got %d", len(volumes.drops))
	}

	t.Run("get", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/shipments/"+created.ID.String(), "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var s storage.Shipment
		if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
			t.Fatal(err)
		}
		if s.ID != created.ID || len(s.Items) != 2 {
			t.Errorf("shipment = %+v", s)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/shipments/"+uuid.NewString(), "", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("get bad id", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/shipments/nope", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("list by date", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/shipments?date=2024-10-23", "", "")
		var list []storage.Shipment
		if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 {
			t.Errorf("got %d shipments, want 1", len(list))
		}

		rec = do(t, router, http.MethodGet, "/api/v1/shipments?date=2024-10-24", "", "")
		if strings.TrimSpace(rec.Body.String()) != "[]" {
			t.Errorf("empty day body = %s, want []", rec.Body.String())
		}

		rec = do(t, router, http.MethodGet, "/api/v1/shipments?date=23-10-2024", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("bad date status = %d, want 400", rec.Code)
		}
	})

	t.Run("volume", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/api/v1/volume?from=2024-10-23&origin=KCS+Karawang", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var vols []storage.DailyVolume
		if err := json.NewDecoder(rec.Body).Decode(&vols); err != nil {
			t.Fatal(err)
		}
		if len(vols) != 3 || vols[0].DestinationKey != "CSA CIKUPA" || vols[0].VolumeCBM != 45 {
			t.Errorf("volumes = %+v", vols)
		}
	})

	t.Run("create unparseable", func(t *testing.T) {
		rec := do(t, router, http.MethodPost, "/api/v1/shipments", "text/plain", "Origin KCS")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want 422", rec.Code)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		shipments.err = errors.New("connection refused")
		defer func() { shipments.err = nil }()

		rec := do(t, router, http.MethodPost, "/api/v1/shipments", "text/plain", broadcast)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestStoresNotConfigured(t *testing.T) {
	router := NewServer(nil, nil, Config{}).Handler()

	for _, path := range []string{
		"/api/v1/shipments?date=2024-10-23",
		"/api/v1/shipments/" + uuid.NewString(),
		"/api/v1/volume?from=2024-10-23",
	} {
		rec := do(t, router, http.MethodGet, path, "", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, rec.Code)
		}
	}
}

func TestShipmentEndpoints_ImpossibleCalendarDate(t *testing.T) {
	shipments := newFakeShipments()
	router := NewServer(shipments, &fakeVolumes{}, Config{}).Handler()

	text := "31 Feb 2024\nOrigin KCS\nCsa Rajeg 10 Cbm 1 Unit PO 31 04 24"
	rec := do(t, router, http.MethodPost, "/api/v1/shipments", "text/plain", text)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %s)", rec.Code, rec.Body.String())
	}
	var created CreateResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Date != "2024-02-31" {
		t.Errorf("date = %q, want 2024-02-31", created.Date)
	}

	rec = do(t, router, http.MethodGet, "/api/v1/shipments?date=2024-02-31", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var list []storage.Shipment
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("got %d shipments, want 1", len(list))
	}

	rec = do(t, router, http.MethodGet, "/api/v1/shipments?date=2024-02-32", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("day 32 status = %d, want 400", rec.Code)
	}
}
