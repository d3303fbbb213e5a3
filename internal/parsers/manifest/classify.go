package manifest

import (
	"strings"

	"cargo_parser/internal/patterns"
)

// LineKind is the role a line plays in a broadcast.
type LineKind int

const (
	Noise LineKind = iota
	DateHeader
	OriginHeader
	SafetyHeader
	CargoCandidate
)

func (k LineKind) String() string {
	switch k {
	case DateHeader:
		return "date"
	case OriginHeader:
		return "origin"
	case SafetyHeader:
		return "safety"
	case CargoCandidate:
		return "cargo"
	default:
		return "noise"
	}
}

// HeaderState records which header fields have been captured so far.
type HeaderState struct {
	HasDate       bool
	HasOrigin     bool
	HasSafetyNote bool
}

// Classification is the outcome of classifying one line.
type Classification struct {
	Kind  LineKind
	Value string // Header value: ISO date, origin name or safety text.
	Line  string // The raw line.
}

// lineRule is one classifier predicate. Rules are tried in slice order and
// the first that matches decides the line's role.
type lineRule struct {
	kind  LineKind
	match func(raw, clean string, st HeaderState) (string, bool)
}

var lineRules = []lineRule{
	{DateHeader, matchDate},
	{OriginHeader, matchOrigin},
	{SafetyHeader, matchSafety},
	{CargoCandidate, matchCargo},
}

// Classify decides the role of raw given the headers already captured.
// Empty lines and lines no rule claims are Noise.
func Classify(raw string, st HeaderState) Classification {
	clean := patterns.Normalize(raw)
	if clean == "" {
		return Classification{Kind: Noise, Line: raw}
	}

	for _, rule := range lineRules {
		if value, ok := rule.match(raw, clean, st); ok {
			return Classification{Kind: rule.kind, Value: value, Line: raw}
		}
	}

	return Classification{Kind: Noise, Line: raw}
}

func matchDate(_, clean string, st HeaderState) (string, bool) {
	if st.HasDate {
		return "", false
	}
	return patterns.ResolveDate(clean)
}

// matchOrigin takes everything after the word "origin". A bare "Origin" with
// nothing after it is not an origin header.
func matchOrigin(_, clean string, st HeaderState) (string, bool) {
	if st.HasOrigin {
		return "", false
	}
	m := findFormat("origin_header", clean)
	if m == nil {
		return "", false
	}
	origin := strings.TrimSpace(m.Captures["origin"])
	return strings.Clone(origin), origin != ""
}

func matchSafety(_, clean string, st HeaderState) (string, bool) {
	if st.HasSafetyNote || findFormat("safety_note", clean) == nil {
		return "", false
	}
	return strings.Clone(clean), true
}

// matchCargo only fires once the origin is known; items listed before the
// origin header are not part of the manifest.
func matchCargo(raw, _ string, st HeaderState) (string, bool) {
	if !st.HasOrigin || !patterns.IsCargoLine(raw) {
		return "", false
	}
	return "", true
}

// continuesSafetyNote reports whether the line after a safety header belongs
// to the same reminder.
func continuesSafetyNote(raw string) bool {
	clean := patterns.Normalize(raw)
	if clean == "" || findFormat("closing", clean) != nil {
		return false
	}
	return !patterns.IsCargoLine(raw)
}

func findFormat(name, text string) *patterns.Match {
	c, err := getCompiler()
	if err != nil {
		return nil
	}
	return c.Find(text, name)
}
