package chat

import (
	"encoding/json"
	"testing"
)

func TestFlexInt64_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  FlexInt64
	}{
		{"integer", `123`, 123},
		{"string number", `"456"`, 456},
		{"empty string", `""`, 0},
		{"negative string", `"-200"`, -200},
		{"opaque gateway id", `"3EB0C431C26A1916"`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got FlexInt64
			if err := json.Unmarshal([]byte(tt.input), &got); err != nil {
				t.Fatalf("Unmarshal returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("FlexInt64 = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGatewayWrapper_ToMessage(t *testing.T) {
	t.Run("nil message", func(t *testing.T) {
		w := &GatewayWrapper{}
		if msg := w.ToMessage(); msg != nil {
			t.Errorf("expected nil, got %+v", msg)
		}
	})

	t.Run("basic conversion", func(t *testing.T) {
		w := &GatewayWrapper{
			Source: "whatsapp",
			Chat:   &Chat{ID: "1203630@g.us", Title: "Transporter KCS"},
			Sender: &Sender{Name: "Planner"},
			Message: &GatewayInner{
				ID:        77,
				Timestamp: "2024-10-23T07:00:00Z",
				Text:      "*Origin KCS Karawang*",
			},
		}

		msg := w.ToMessage()
		if msg == nil {
			t.Fatal("expected message, got nil")
		}
		if msg.ID != 77 {
			t.Errorf("ID = %d, want 77", msg.ID)
		}
		if msg.Source != "whatsapp" {
			t.Errorf("Source = %s, want whatsapp", msg.Source)
		}
		if msg.ChatID() != "1203630@g.us" {
			t.Errorf("ChatID = %s, want 1203630@g.us", msg.ChatID())
		}
	})

	t.Run("body fallback", func(t *testing.T) {
		w := &GatewayWrapper{Message: &GatewayInner{ID: 1, Body: "legacy body"}}
		if got := w.ToMessage().Text; got != "legacy body" {
			t.Errorf("Text = %q, want %q", got, "legacy body")
		}
	})
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantNil  bool
		wantText string
		wantSrc  string
	}{
		{
			name:     "wrapped",
			input:    `{"source":"whatsapp","chat":{"id":"g1"},"message":{"id":"5","text":"hello"}}`,
			wantText: "hello",
			wantSrc:  "whatsapp",
		},
		{
			name:     "flat",
			input:    `{"id":9,"source":"telegram","text":"flat text"}`,
			wantText: "flat text",
			wantSrc:  "telegram",
		},
		{name: "no text", input: `{"id":9}`, wantNil: true},
		{name: "not json", input: `Origin KCS`, wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Decode([]byte(tt.input))
			if tt.wantNil {
				if msg != nil {
					t.Fatalf("expected nil, got %+v", msg)
				}
				return
			}
			if msg == nil {
				t.Fatal("expected message, got nil")
			}
			if msg.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", msg.Text, tt.wantText)
			}
			if msg.Source != tt.wantSrc {
				t.Errorf("Source = %q, want %q", msg.Source, tt.wantSrc)
			}
		})
	}
}
