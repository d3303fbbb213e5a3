package patterns

import (
	"fmt"
	"testing"
)

func TestResolveDate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"weekday and long month", "Rabu, 23 Oktober 2024", "2024-10-23", true},
		{"bold header", "*Senin, 28 Oktober 2024*", "2024-10-28", true},
		{"short month two digit year", "20 Feb 25", "2025-02-20", true},
		{"abbreviated month", "11 Okt 2024", "2024-10-11", true},
		{"numeric month", "08 10 2024", "2024-10-08", true},
		{"no leading zero", "8 Okt 24", "2024-10-08", true},
		{"numeric month no zeros", "18 9 24", "2024-09-18", true},
		{"weekday without comma", "Kamis 20 Feb 2025", "2025-02-20", true},
		{"jum'at variant", "Jum'at, 1 Maret 2024", "2024-03-01", true},
		{"upper case", "SABTU, 2 NOVEMBER 2024", "2024-11-02", true},
		{"embedded in phrase", "PO Tgl 28 Okt 24", "2024-10-28", true},
		{"february 31 accepted", "31 Feb 2024", "2024-02-31", true},
		{"day zero", "0 Okt 2024", "", false},
		{"day out of range", "32 Okt 2024", "", false},
		{"month out of range", "12 13 2024", "", false},
		{"unknown month name", "12 Foo 2024", "", false},
		{"three digit year", "12 Okt 202", "", false},
		{"no date", "Origin KCS Karawang", "", false},
		{"cargo line", "Csa Cikupa + Rajeg 45 Cbm 1 Unit", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveDate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ResolveDate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ResolveDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolveDate_EveryMonthAlias(t *testing.T) {
	for alias, month := range MonthAliases {
		for _, weekday := range Weekdays {
			input := fmt.Sprintf("%s, 5 %s 2024", weekday, alias)
			want := fmt.Sprintf("2024-%02d-05", month)
			if got, ok := ResolveDate(input); !ok || got != want {
				t.Errorf("ResolveDate(%q) = %q, %v; want %q", input, got, ok, want)
			}
		}

		// Two-digit years map to 2000 + year.
		input := fmt.Sprintf("9 %s 07", alias)
		want := fmt.Sprintf("2007-%02d-09", month)
		if got, ok := ResolveDate(input); !ok || got != want {
			t.Errorf("ResolveDate(%q) = %q, %v; want %q", input, got, ok, want)
		}
	}
}

func TestResolveMonth(t *testing.T) {
	tests := []struct {
		token  string
		want   int
		wantOK bool
	}{
		{"1", 1, true},
		{"09", 9, true},
		{"12", 12, true},
		{"0", 0, false},
		{"13", 0, false},
		{"Agustus", 8, true},
		{"SEPT", 9, true},
		{"nope", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := ResolveMonth(tt.token)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ResolveMonth(%q) = %d, %v; want %d, %v", tt.token, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
