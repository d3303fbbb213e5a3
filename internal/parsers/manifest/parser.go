package manifest

import (
	"fmt"
	"strings"
	"sync"

	"cargo_parser/internal/chat"
	"cargo_parser/internal/patterns"
	"cargo_parser/internal/registry"
)

// MaxMessageBytes bounds the text handed to the line scanner. Longer
// messages are cut at the last line break before the limit.
const MaxMessageBytes = 64 << 10

// Grok compiler singleton.
var (
	grokCompiler *patterns.Compiler
	grokOnce     sync.Once
	grokErr      error
)

func getCompiler() (*patterns.Compiler, error) {
	grokOnce.Do(func() {
		grokCompiler = patterns.NewCompiler(Formats, localPatterns)
		grokErr = grokCompiler.Compile()
	})
	return grokCompiler, grokErr
}

// Result is a parsed cargo manifest.
type Result struct {
	MsgID      int64       `json:"message_id"`
	Timestamp  string      `json:"timestamp,omitempty"`
	Date       string      `json:"date"` // YYYY-MM-DD
	Origin     string      `json:"origin"`
	Items      []CargoItem `json:"items"`
	SafetyNote string      `json:"safety_note,omitempty"`
}

func (r *Result) Type() string     { return "cargo_manifest" }
func (r *Result) MessageID() int64 { return r.MsgID }

// ParseText parses one broadcast. It fails with ErrMissingDate when no line
// resolves to a date and with ErrMissingOrigin when no origin header is found,
// checked in that order.
func ParseText(raw string) (*Result, error) {
	lines := splitLines(raw)

	var st HeaderState
	result := &Result{Items: []CargoItem{}}

	for i := 0; i < len(lines); i++ {
		c := Classify(lines[i], st)

		switch c.Kind {
		case DateHeader:
			result.Date = c.Value
			st.HasDate = true

		case OriginHeader:
			result.Origin = c.Value
			st.HasOrigin = true

		case SafetyHeader:
			note := c.Value
			if i+1 < len(lines) && continuesSafetyNote(lines[i+1]) {
				note += " " + patterns.Normalize(lines[i+1])
				i++
			}
			result.SafetyNote = note
			st.HasSafetyNote = true

		case CargoCandidate:
			if item, ok := ParseCargoLine(c.Line); ok {
				result.Items = append(result.Items, *item)
			}
		}
	}

	if !st.HasDate {
		return nil, ErrMissingDate
	}
	if !st.HasOrigin {
		return nil, ErrMissingOrigin
	}

	return result, nil
}

// splitLines truncates oversize input and splits on \n or \r\n.
func splitLines(raw string) []string {
	if len(raw) > MaxMessageBytes {
		raw = raw[:MaxMessageBytes]
		if idx := strings.LastIndexByte(raw, '\n'); idx >= 0 {
			raw = raw[:idx]
		}
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// Parser adapts ParseText to the registry.
type Parser struct{}

func init() {
	registry.Register(&Parser{})
}

func (p *Parser) Name() string      { return "cargo_manifest" }
func (p *Parser) Sources() []string { return nil }
func (p *Parser) Priority() int     { return 10 }

// QuickCheck looks for the origin marker every manifest must carry.
func (p *Parser) QuickCheck(text string) bool {
	return strings.Contains(strings.ToLower(text), "origin")
}

func (p *Parser) Parse(msg *chat.Message) registry.Result {
	if msg.Text == "" {
		return nil
	}

	result, err := ParseText(msg.Text)
	if err != nil {
		return nil
	}

	result.MsgID = int64(msg.ID)
	result.Timestamp = msg.Timestamp
	return result
}

// ParseWithTrace implements registry.Traceable. Each non-empty line becomes
// one extractor entry showing the role it was given.
func (p *Parser) ParseWithTrace(msg *chat.Message) *registry.TraceResult {
	trace := &registry.TraceResult{
		ParserName: p.Name(),
	}

	quickCheckPassed := p.QuickCheck(msg.Text)
	trace.QuickCheck = &registry.QuickCheck{
		Passed: quickCheckPassed,
	}

	if !quickCheckPassed {
		trace.QuickCheck.Reason = "No origin marker found"
		return trace
	}

	compiler, err := getCompiler()
	if err != nil {
		trace.QuickCheck.Reason = err.Error()
		return trace
	}

	lines := splitLines(msg.Text)

	var st HeaderState
	for i := 0; i < len(lines); i++ {
		if patterns.Normalize(lines[i]) == "" {
			continue
		}

		c := Classify(lines[i], st)
		ext := registry.Extractor{
			Name:    fmt.Sprintf("line %d", i+1),
			Pattern: c.Kind.String(),
			Matched: c.Kind != Noise,
			Value:   c.Value,
		}

		switch c.Kind {
		case DateHeader:
			st.HasDate = true
		case OriginHeader:
			ext.Pattern = compiler.Pattern("origin_header")
			st.HasOrigin = true
		case SafetyHeader:
			ext.Pattern = compiler.Pattern("safety_note")
			st.HasSafetyNote = true
			if i+1 < len(lines) && continuesSafetyNote(lines[i+1]) {
				i++
				ext.Value += " " + patterns.Normalize(lines[i])
			}
		case CargoCandidate:
			if item, ok := ParseCargoLine(c.Line); ok {
				ext.Value = describeItem(item)
			} else {
				ext.Matched = false
				ext.Value = "no item"
			}
		}

		trace.Extractors = append(trace.Extractors, ext)
	}

	_, err = ParseText(msg.Text)
	trace.Matched = err == nil
	if err != nil {
		trace.Extractors = append(trace.Extractors, registry.Extractor{
			Name:  "result",
			Value: err.Error(),
		})
	}

	return trace
}

func describeItem(item *CargoItem) string {
	var b strings.Builder
	b.WriteString(strings.Join(item.Destinations, " + "))
	if item.VolumeCBM != nil {
		fmt.Fprintf(&b, " | %d cbm", *item.VolumeCBM)
	}
	if item.UnitCount != nil {
		fmt.Fprintf(&b, " | %d unit", *item.UnitCount)
	}
	if item.PODate != "" {
		fmt.Fprintf(&b, " | po %s", item.PODate)
	}
	if item.Notes != "" {
		fmt.Fprintf(&b, " | notes %q", item.Notes)
	}
	return b.String()
}
