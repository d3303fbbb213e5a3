// Package registry provides a message parser registry for dispatching
// chat messages to appropriate parsers.
package registry

import (
	"sort"
	"sync"

	"cargo_parser/internal/chat"
)

// Result is the common interface for all parse results.
type Result interface {
	Type() string     // e.g., "cargo_manifest"
	MessageID() int64 // The original message ID
}

// Parser is implemented by each message parser.
type Parser interface {
	// Name returns the parser's unique identifier.
	Name() string

	// Sources returns which gateways (e.g. "whatsapp") this parser handles.
	// Empty slice means "all sources".
	Sources() []string

	// QuickCheck performs a fast string check before expensive regex.
	// Returns true if the message MIGHT be parseable (false = definitely skip).
	// This should use strings.Contains/HasPrefix, NOT regex.
	QuickCheck(text string) bool

	// Priority determines order when multiple parsers match the same message.
	// Lower number = checked first.
	Priority() int

	// Parse attempts to parse the message, returns nil if not applicable.
	Parse(msg *chat.Message) Result
}

// Registry holds all registered parsers organised for efficient dispatch.
type Registry struct {
	mu sync.RWMutex

	// bySource maps gateway names to parser slices, sorted by Priority (ascending)
	bySource map[string][]Parser

	// global holds parsers that check all messages regardless of source
	global []Parser

	// sorted tracks whether parsers have been sorted
	sorted bool
}

// New creates a new Registry instance.
func New() *Registry {
	return &Registry{
		bySource: make(map[string][]Parser),
	}
}

// Global default registry.
var defaultRegistry = New()

// Default returns the global registry instance.
func Default() *Registry {
	return defaultRegistry
}

// Register adds a parser to the default registry.
// Called during init() in each parser package.
func Register(p Parser) {
	defaultRegistry.Register(p)
}

// Register adds a parser to the registry.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sources := p.Sources()
	if len(sources) == 0 {
		r.global = append(r.global, p)
	} else {
		for _, src := range sources {
			r.bySource[src] = append(r.bySource[src], p)
		}
	}
	r.sorted = false
}

// Sort sorts all parser slices by priority. Call before dispatching.
func (r *Registry) Sort() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sorted {
		return
	}

	for src := range r.bySource {
		parsers := r.bySource[src]
		sort.SliceStable(parsers, func(i, j int) bool {
			return parsers[i].Priority() < parsers[j].Priority()
		})
	}

	sort.SliceStable(r.global, func(i, j int) bool {
		return r.global[i].Priority() < r.global[j].Priority()
	})

	r.sorted = true
}

// Dispatch routes a message to appropriate parsers and returns all results.
// Note: Sort() should be called before Dispatch() for optimal performance.
// If Sort() has not been called, parsers will be in registration order.
func (r *Registry) Dispatch(msg *chat.Message) []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []Result

	// 1. Source-specific parsers first.
	if parsers, ok := r.bySource[msg.Source]; ok {
		for _, p := range parsers {
			if !p.QuickCheck(msg.Text) {
				continue
			}
			if result := p.Parse(msg); result != nil {
				results = append(results, result)
			}
		}
	}

	// 2. Parsers that accept every source.
	for _, p := range r.global {
		if !p.QuickCheck(msg.Text) {
			continue
		}
		if result := p.Parse(msg); result != nil {
			results = append(results, result)
		}
	}

	return results
}

// ParserCount returns the total number of unique registered parsers.
// Parsers registered for multiple sources are only counted once.
func (r *Registry) ParserCount() int {
	return len(r.AllParsers())
}

// AllParsers returns all registered parsers, global ones first.
// This is useful for debugging and listing available parsers.
func (r *Registry) AllParsers() []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var result []Parser

	for _, p := range r.global {
		if !seen[p.Name()] {
			seen[p.Name()] = true
			result = append(result, p)
		}
	}

	sources := make([]string, 0, len(r.bySource))
	for src := range r.bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for _, src := range sources {
		for _, p := range r.bySource[src] {
			if !seen[p.Name()] {
				seen[p.Name()] = true
				result = append(result, p)
			}
		}
	}

	return result
}
