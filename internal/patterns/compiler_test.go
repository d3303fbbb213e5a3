package patterns

import "testing"

func TestCompiler_LocalPatternsOverrideBase(t *testing.T) {
	c := NewCompiler([]Format{
		{Name: "qty", Pattern: `(?P<n>{NUM})\s*{CBM}`},
	}, map[string]string{"CBM": `m3`})
	if err := c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if m := c.Parse("45 cbm"); m != nil {
		t.Errorf("expected local override to replace CBM, got match %q", m.Text)
	}
	m := c.Parse("Tuj Pati 45 M3")
	if m == nil {
		t.Fatal("expected match")
	}
	if got := m.GetCapture("n", ""); got != "45" {
		t.Errorf("capture n = %q, want 45", got)
	}
	if got := m.Cut("Tuj Pati 45 M3"); got != "Tuj Pati" {
		t.Errorf("Cut = %q, want %q", got, "Tuj Pati")
	}
}

func TestCompiler_UnresolvedPlaceholder(t *testing.T) {
	c := NewCompiler([]Format{{Name: "bad", Pattern: `{NOT_DEFINED}`}}, nil)
	if err := c.Compile(); err == nil {
		t.Error("expected error for unresolved placeholder")
	}
}

func TestCompiler_Find(t *testing.T) {
	c := NewCompiler([]Format{
		{Name: "first", Pattern: `(?P<n>{NUM})\s*unit`},
		{Name: "second", Pattern: `(?P<n>{NUM})\s*cbm`},
	}, nil)
	if err := c.Compile(); err != nil {
		t.Fatalf("Compile: %v", err)
	}

	text := "Rajeg 45 Cbm 1 Unit"
	m := c.Find(text, "second")
	if m == nil || m.Captures["n"] != "45" {
		t.Fatalf("Find(second) = %+v, want n=45", m)
	}
	if m.Start != 6 || m.End != 12 {
		t.Errorf("span = [%d,%d), want [6,12)", m.Start, m.End)
	}
	if got := m.GetCapture("date", "none"); got != "none" {
		t.Errorf("GetCapture(absent) = %q, want default", got)
	}
	if c.Find(text, "missing") != nil {
		t.Error("Find on unknown format should return nil")
	}
	var missing *Match
	if got := missing.GetCapture("n", "0"); got != "0" {
		t.Errorf("GetCapture on nil match = %q, want default", got)
	}
	if p := c.Pattern("second"); p != `(?P<n>\d+)\s*cbm` {
		t.Errorf("Pattern(second) = %q", p)
	}
}

func TestCutSpan(t *testing.T) {
	tests := []struct {
		text       string
		start, end int
		want       string
	}{
		{"A (x) B", 2, 5, "A B"},
		{"(x) B", 0, 3, "B"},
		{"A (x)", 2, 5, "A"},
		{"(x)", 0, 3, ""},
	}
	for _, tt := range tests {
		if got := CutSpan(tt.text, tt.start, tt.end); got != tt.want {
			t.Errorf("CutSpan(%q, %d, %d) = %q, want %q", tt.text, tt.start, tt.end, got, tt.want)
		}
	}
}
