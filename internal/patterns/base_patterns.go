// Package patterns provides shared regex patterns and helper functions for broadcast parsing.
// This file contains grok-style base patterns for use with the Compiler.

package patterns

// BasePatterns defines reusable regex components for grok-style pattern composition.
// These are referenced in format patterns using {PATTERN_NAME} syntax.
var BasePatterns = map[string]string{
	// Calendar parts.
	"DAY":        `\d{1,2}`,
	"MONTH_NUM":  `\d{1,2}`,
	"MONTH_NAME": monthNamePattern(), // januari|agustus|...|jan (longest first)
	"YEAR":       `(?:\d{4}|\d{2})`,
	"YEAR_LOOSE": `\d{2,4}`,
	"WEEKDAY":    LongestFirst(Weekdays),

	// Quantities.
	"NUM": `\d+`,
	"CBM": `cbm`,
}
