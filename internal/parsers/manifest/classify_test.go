package manifest

import "testing"

func TestClassify(t *testing.T) {
	fresh := HeaderState{}
	dated := HeaderState{HasDate: true}
	open := HeaderState{HasDate: true, HasOrigin: true}
	full := HeaderState{HasDate: true, HasOrigin: true, HasSafetyNote: true}

	tests := []struct {
		name      string
		line      string
		st        HeaderState
		wantKind  LineKind
		wantValue string
	}{
		{"empty", "   ", fresh, Noise, ""},
		{"markers only", "_", open, Noise, ""},
		{"greeting", "*Dear Team Transporter*", fresh, Noise, ""},
		{"date header", "*Rabu, 23 Oktober 2024*", fresh, DateHeader, "2024-10-23"},
		{"second date is not a header", "*Kamis, 24 Oktober 2024*", open, Noise, ""},
		{"date wins over origin", "Origin KCS 23 10 2024", fresh, DateHeader, "2024-10-23"},
		{"origin header", "*Origin KCS Karawang*", dated, OriginHeader, "KCS Karawang"},
		{"origin with colon", "ORIGIN: Gudang Cikarang", dated, OriginHeader, "Gudang Cikarang"},
		{"bare origin word", "Origin", dated, Noise, ""},
		{"bare origin with colon", "*Origin:*", dated, Noise, ""},
		{"origin inside a word", "Originally 10 cbm", dated, Noise, ""},
		{"second origin is ignored", "Origin Cikarang", open, Noise, ""},
		{"safety header", "*Pastikan Driver memakai Helm*", open, SafetyHeader, "Pastikan Driver memakai Helm"},
		{"safety before origin", "Supir harus memakai APD", dated, SafetyHeader, "Supir harus memakai APD"},
		{"second safety line", "Wajib memakai rompi", full, Noise, ""},
		{"cargo after origin", "Csa Rajeg 47 Cbm 1 Unit", open, CargoCandidate, ""},
		{"cargo before origin", "Csa Rajeg 47 Cbm 1 Unit", dated, Noise, ""},
		{"cargo needs a digit", "Csa Rajeg cbm", open, Noise, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.line, tt.st)
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", got.Kind, tt.wantKind)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Value = %q, want %q", got.Value, tt.wantValue)
			}
			if got.Line != tt.line {
				t.Errorf("Line = %q, want the raw line %q", got.Line, tt.line)
			}
		})
	}
}

func TestContinuesSafetyNote(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Safety Vest)*", true},
		{"_", false},
		{"", false},
		{"*Terima kasih*", false},
		{"Thank you", false},
		{"Csa Rajeg 47 Cbm 1 Unit", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := continuesSafetyNote(tt.line); got != tt.want {
				t.Errorf("continuesSafetyNote(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestLineKindString(t *testing.T) {
	kinds := map[LineKind]string{
		Noise:          "noise",
		DateHeader:     "date",
		OriginHeader:   "origin",
		SafetyHeader:   "safety",
		CargoCandidate: "cargo",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("LineKind(%d).String() = %q, want %q", int(k), got, want)
		}
	}
}
