// Package registry provides tracing interfaces for parser debugging.
package registry

import "cargo_parser/internal/chat"

// TraceResult contains trace information from a parser's attempt to parse a message.
type TraceResult struct {
	ParserName string      // Name of the parser.
	QuickCheck *QuickCheck // QuickCheck result (nil if not applicable).
	Extractors []Extractor // Per-line or per-field extractor results.
	Matched    bool        // Whether the parser matched the message.
}

// QuickCheck contains the result of a parser's quick check.
type QuickCheck struct {
	Passed bool   // Whether the quick check passed.
	Reason string // Optional reason for the result.
}

// Extractor contains debug information about a field extractor.
type Extractor struct {
	Name    string // Extractor name (e.g., "line 4", "po_date").
	Pattern string // The rule or regex pattern used.
	Matched bool   // Whether the extractor matched.
	Value   string // Extracted value (if matched).
}

// Traceable is implemented by parsers that support debug tracing.
// This allows the trace command to show detailed information about
// why a parser did or didn't match a message.
type Traceable interface {
	ParseWithTrace(msg *chat.Message) *TraceResult
}

// Trace runs every registered Traceable parser against a message.
func (r *Registry) Trace(msg *chat.Message) []*TraceResult {
	var traces []*TraceResult
	for _, p := range r.AllParsers() {
		if tp, ok := p.(Traceable); ok {
			traces = append(traces, tp.ParseWithTrace(msg))
		}
	}
	return traces
}
