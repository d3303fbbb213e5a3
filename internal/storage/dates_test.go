package storage

import "testing"

func TestValidDate(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2024-10-23", true},
		{"2024-02-31", true}, // kept as written; the day is only checked against 1-31
		{"2024-04-31", true},
		{"2024-02-32", false},
		{"2024-13-01", false},
		{"2024-00-10", false},
		{"2024-2-3", false},
		{"23-10-2024", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ValidDate(tt.in); got != tt.want {
				t.Errorf("ValidDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
