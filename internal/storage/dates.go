package storage

import "regexp"

// isoDate accepts the calendar shape the parser emits. The day is checked
// against 1-31 only, so dates such as 2024-02-31 are stored as written.
var isoDate = regexp.MustCompile(`^[0-9]{4}-(?:0[1-9]|1[0-2])-(?:0[1-9]|[12][0-9]|3[01])$`)

// ValidDate reports whether s is a YYYY-MM-DD date the stores accept.
func ValidDate(s string) bool {
	return isoDate.MatchString(s)
}
