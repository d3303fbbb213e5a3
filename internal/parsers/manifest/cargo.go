package manifest

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"cargo_parser/internal/patterns"
)

// CargoItem is one shipment line of a broadcast.
type CargoItem struct {
	Destinations []string `json:"destinations"`      // First entry is the primary drop.
	VolumeCBM    *int     `json:"volume_cbm"`        // nil when no volume token was found.
	UnitCount    *int     `json:"unit_count"`        // nil when no unit token was found.
	PODate       string   `json:"po_date,omitempty"` // YYYY-MM-DD
	Notes        string   `json:"notes,omitempty"`   // Space-joined, in extraction order.
}

var destinationSplitRe = regexp.MustCompile(`\s*\+\s*`)

// ParseCargoLine parses a single cargo line. It reports false when nothing
// usable is left once the PO phrase, notes, volume and unit tokens are taken.
func ParseCargoLine(raw string) (*CargoItem, bool) {
	line := patterns.Normalize(raw)
	if line == "" {
		return nil, false
	}

	compiler, err := getCompiler()
	if err != nil {
		return nil, false
	}

	poDate, line := takePODate(compiler, line)
	notes, line := takeNotes(line)
	volume, line := takeCount(compiler, "volume", line)
	units, line := takeCount(compiler, "units", line)
	destinations := takeDestinations(line)

	if len(destinations) == 0 && volume == nil && units == nil {
		return nil, false
	}

	return &CargoItem{
		Destinations: destinations,
		VolumeCBM:    volume,
		UnitCount:    units,
		PODate:       poDate,
		Notes:        notes,
	}, true
}

// takePODate removes a purchase-order phrase and resolves its date. A phrase
// whose date does not resolve is still removed.
func takePODate(c *patterns.Compiler, line string) (string, string) {
	m := c.Find(line, "po_phrase")
	if m == nil {
		return "", line
	}
	date, _ := patterns.ResolveDate(m.GetCapture("date", ""))
	return date, m.Cut(line)
}

func takeNotes(line string) (string, string) {
	notes, rest := ExtractNotes(line)
	return strings.Clone(strings.Join(notes, " ")), rest
}

// MaxCount is the largest volume or unit count kept. It is the range of a
// 32-bit signed column, so every store can hold any parsed count.
const MaxCount = math.MaxInt32

// takeCount removes the first "<n> <unit>" token of the named format.
// A number above MaxCount is dropped along with its token.
func takeCount(c *patterns.Compiler, format, line string) (*int, string) {
	m := c.Find(line, format)
	if m == nil {
		return nil, line
	}
	rest := m.Cut(line)
	n, err := strconv.ParseInt(m.GetCapture("n", "0"), 10, 64)
	if err != nil || n > MaxCount {
		return nil, rest
	}
	count := int(n)
	return &count, rest
}

// takeDestinations splits what is left of a line on "+" joiners.
func takeDestinations(line string) []string {
	line = strings.TrimRight(line, "., \t")

	destinations := []string{}
	for _, seg := range destinationSplitRe.Split(line, -1) {
		if seg = strings.Join(strings.Fields(seg), " "); seg != "" {
			destinations = append(destinations, strings.Clone(seg))
		}
	}
	return destinations
}
