package extractor

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"cargo_parser/internal/chat"
	"cargo_parser/internal/parsers/manifest"
	"cargo_parser/internal/registry"
)

func TestNormaliseDestination(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"TSM Tasikmalaya", "TSM TASIKMALAYA"},
		{"Tsm  Tasikmalaya", "TSM TASIKMALAYA"},
		{"  Csa Rajeg ", "CSA RAJEG"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormaliseDestination(tt.input)
			if got != tt.want {
				t.Errorf("NormaliseDestination(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// mockResult implements registry.Result for testing.
type mockResult struct {
	typeStr string
	msgID   int64
	Date    string `json:"date,omitempty"`
	Origin  string `json:"origin,omitempty"`
}

func (r *mockResult) Type() string     { return r.typeStr }
func (r *mockResult) MessageID() int64 { return r.msgID }

func TestExtract(t *testing.T) {
	text := "Rabu, 23 Oktober 2024\nOrigin KCS Karawang\n" +
		"Csa Cikupa + Rajeg 45 Cbm 1 Unit (Gudang Bayur)\n" +
		"Tuj Pekalongan 46 Cbm 2 Unit\n" +
		"Lotte Meruya 1 Cbm PO 11 Okt 2024\n" +
		"Pastikan Driver memakai Helm"

	parsed, err := manifest.ParseText(text)
	if err != nil {
		t.Fatalf("ParseText() error = %v", err)
	}
	parsed.MsgID = 7

	msg := &chat.Message{
		ID:        7,
		Source:    "whatsapp",
		Timestamp: "2024-10-22T18:00:00Z",
		Text:      text,
		Chat:      &chat.Chat{ID: "1203630@g.us"},
		Sender:    &chat.Sender{Phone: "628123"},
	}

	data := Extract(msg, []registry.Result{&mockResult{typeStr: "other"}, parsed})

	t.Run("shipment", func(t *testing.T) {
		want := &ShipmentUpdate{
			MessageID:  7,
			Source:     "whatsapp",
			ChatID:     "1203630@g.us",
			Sender:     "628123",
			SentAt:     "2024-10-22T18:00:00Z",
			Date:       "2024-10-23",
			Origin:     "KCS Karawang",
			SafetyNote: "Pastikan Driver memakai Helm",
			RawText:    text,
		}
		if diff := cmp.Diff(want, data.Shipment); diff != "" {
			t.Errorf("shipment mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("items", func(t *testing.T) {
		if len(data.Items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(data.Items))
		}
		if data.Items[0].Sequence != 1 || data.Items[2].Sequence != 3 {
			t.Errorf("sequences = %d..%d, want 1..3", data.Items[0].Sequence, data.Items[2].Sequence)
		}
		if data.Items[0].Notes != "Gudang Bayur" {
			t.Errorf("Notes = %q, want Gudang Bayur", data.Items[0].Notes)
		}
		if data.Items[2].PODate != "2024-10-11" || data.Items[2].UnitCount != nil {
			t.Errorf("third item = %+v", data.Items[2])
		}
	})

	t.Run("drops", func(t *testing.T) {
		want := []*DropUpdate{
			{ShipDate: "2024-10-23", Origin: "KCS Karawang", Destination: "Csa Cikupa", DestinationKey: "CSA CIKUPA",
				ItemSequence: 1, DropSequence: 1, Primary: true, VolumeCBM: 45, UnitCount: 1},
			{ShipDate: "2024-10-23", Origin: "KCS Karawang", Destination: "Rajeg", DestinationKey: "RAJEG",
				ItemSequence: 1, DropSequence: 2},
			{ShipDate: "2024-10-23", Origin: "KCS Karawang", Destination: "Tuj Pekalongan", DestinationKey: "TUJ PEKALONGAN",
				ItemSequence: 2, DropSequence: 1, Primary: true, VolumeCBM: 46, UnitCount: 2},
			{ShipDate: "2024-10-23", Origin: "KCS Karawang", Destination: "Lotte Meruya", DestinationKey: "LOTTE MERUYA",
				ItemSequence: 3, DropSequence: 1, Primary: true, VolumeCBM: 1, PODate: "2024-10-11"},
		}
		if diff := cmp.Diff(want, data.Drops); diff != "" {
			t.Errorf("drops mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("summary", func(t *testing.T) {
		want := &Summary{Items: 3, Drops: 4, TotalCBM: 92, TotalUnits: 3, AvgCBMPerUnit: "30.67"}
		if diff := cmp.Diff(want, data.Summary); diff != "" {
			t.Errorf("summary mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestExtract_NoManifest(t *testing.T) {
	t.Run("no results", func(t *testing.T) {
		data := Extract(&chat.Message{ID: 1}, nil)
		if data.Shipment != nil || data.Summary != nil || len(data.Drops) != 0 {
			t.Errorf("expected empty data, got %+v", data)
		}
	})

	t.Run("manifest type without header fields", func(t *testing.T) {
		data := Extract(nil, []registry.Result{&mockResult{typeStr: "cargo_manifest", Date: "2024-10-23"}})
		if data.Shipment != nil {
			t.Errorf("expected no shipment without an origin, got %+v", data.Shipment)
		}
	})

	t.Run("manifest without units has no average", func(t *testing.T) {
		data := Extract(nil, []registry.Result{&mockResult{typeStr: "cargo_manifest", msgID: 3, Date: "2024-10-23", Origin: "KCS"}})
		if data.Shipment == nil || data.Shipment.MessageID != 3 {
			t.Fatalf("shipment = %+v", data.Shipment)
		}
		if data.Summary.AvgCBMPerUnit != "" || data.Summary.Items != 0 {
			t.Errorf("summary = %+v", data.Summary)
		}
	})
}
