// Package patterns provides shared regex patterns and helper functions for
// parsing chat broadcasts: text normalisation, the cargo-line pre-filter,
// month vocabulary and date resolution.
package patterns

import "regexp"

// Core patterns used across the parser packages.
var (
	// CBMWordPattern matches "cbm" as a whole word, or glued to a preceding number.
	// Callers lower-case the text first.
	CBMWordPattern = regexp.MustCompile(`(?:\b|\d)cbm\b`)

	// WeekdayPrefixPattern matches a leading weekday name and optional comma,
	// e.g. "Rabu, " in "Rabu, 23 Oktober 2024".
	WeekdayPrefixPattern = regexp.MustCompile(`(?i)^(?:` + BasePatterns["WEEKDAY"] + `)\s*,?`)
)
