// Package patterns provides shared regex patterns and helper functions for broadcast parsing.
// This file contains the grok-style pattern compiler.

package patterns

import (
	"fmt"
	"regexp"
	"strings"
)

// Format represents a line format with named capture groups.
type Format struct {
	Name     string         // Format name for identification
	Pattern  string         // Pattern with {PLACEHOLDER} syntax
	Compiled *regexp.Regexp // Compiled regex (populated by Compile)
	Fields   []string       // Field names in capture order (for documentation)
}

// Compiler manages pattern compilation and parsing for a set of formats.
// Chat text is mixed case, so every format is compiled case-insensitively.
type Compiler struct {
	basePatterns map[string]string
	formats      []Format
}

// NewCompiler creates a new pattern compiler with the given formats.
// It merges the provided base patterns with the global BasePatterns,
// allowing local patterns to override global ones.
func NewCompiler(formats []Format, localPatterns map[string]string) *Compiler {
	c := &Compiler{
		basePatterns: make(map[string]string),
		formats:      make([]Format, len(formats)),
	}

	// Copy global base patterns.
	for k, v := range BasePatterns {
		c.basePatterns[k] = v
	}

	// Overlay local patterns (can override global ones).
	for k, v := range localPatterns {
		c.basePatterns[k] = v
	}

	copy(c.formats, formats)

	return c
}

// Compile expands all {PLACEHOLDER} references and compiles regexes.
func (c *Compiler) Compile() error {
	for i := range c.formats {
		expanded := c.expand(c.formats[i].Pattern)
		if strings.Contains(expanded, "{") && placeholderRe.MatchString(expanded) {
			return fmt.Errorf("format %s: unresolved placeholder in %q", c.formats[i].Name, expanded)
		}
		re, err := regexp.Compile("(?i)" + expanded)
		if err != nil {
			return fmt.Errorf("format %s: %w", c.formats[i].Name, err)
		}
		c.formats[i].Compiled = re
	}
	return nil
}

var placeholderRe = regexp.MustCompile(`\{[A-Z_]+\}`)

// expand replaces {PLACEHOLDER} with actual regex patterns.
func (c *Compiler) expand(pattern string) string {
	return placeholderRe.ReplaceAllStringFunc(pattern, func(ph string) string {
		if regex, ok := c.basePatterns[ph[1:len(ph)-1]]; ok {
			return regex
		}
		return ph
	})
}

// Match represents a successful pattern match with extracted fields.
type Match struct {
	FormatName string            // Name of the matched format
	Captures   map[string]string // Named capture group values
	Text       string            // Full matched text
	Start, End int               // Byte offsets of the match in the input
}

func newMatch(format Format, text string, loc []int) *Match {
	m := &Match{
		FormatName: format.Name,
		Captures:   make(map[string]string),
		Text:       text[loc[0]:loc[1]],
		Start:      loc[0],
		End:        loc[1],
	}

	for i, name := range format.Compiled.SubexpNames() {
		if i == 0 || name == "" || loc[2*i] < 0 {
			continue
		}
		m.Captures[name] = text[loc[2*i]:loc[2*i+1]]
	}

	return m
}

// Parse attempts to parse text using all compiled formats.
// Returns the first successful match, or nil if no format matches.
func (c *Compiler) Parse(text string) *Match {
	for _, format := range c.formats {
		if format.Compiled == nil {
			continue
		}

		loc := format.Compiled.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}

		return newMatch(format, text, loc)
	}

	return nil
}

// Find returns the leftmost match of a single named format, or nil.
func (c *Compiler) Find(text string, formatName string) *Match {
	for _, format := range c.formats {
		if format.Name != formatName || format.Compiled == nil {
			continue
		}
		loc := format.Compiled.FindStringSubmatchIndex(text)
		if loc == nil {
			return nil
		}
		return newMatch(format, text, loc)
	}
	return nil
}

// Pattern returns the expanded regex of a named format, for tracing.
func (c *Compiler) Pattern(formatName string) string {
	for _, format := range c.formats {
		if format.Name == formatName {
			return c.expand(format.Pattern)
		}
	}
	return ""
}

// GetCapture is a helper to safely get a capture value with a default.
func (m *Match) GetCapture(name string, defaultVal string) string {
	if m == nil {
		return defaultVal
	}
	if val, ok := m.Captures[name]; ok && val != "" {
		return val
	}
	return defaultVal
}

// Cut removes the matched span from text and joins what is left with a
// single space.
func (m *Match) Cut(text string) string {
	return CutSpan(text, m.Start, m.End)
}

// CutSpan removes text[start:end] and joins the remainder with a single space.
func CutSpan(text string, start, end int) string {
	left := strings.TrimRight(text[:start], " \t")
	right := strings.TrimLeft(text[end:], " \t")
	switch {
	case left == "":
		return strings.TrimSpace(right)
	case right == "":
		return strings.TrimSpace(left)
	}
	return strings.TrimSpace(left + " " + right)
}
