package patterns

import (
	"sort"
	"strconv"
	"strings"
)

// MonthAliases maps every accepted month spelling (lower case) to its number.
// Indonesian names and abbreviations come first, followed by the English
// spellings that show up in forwarded messages.
var MonthAliases = map[string]int{
	"jan": 1, "januari": 1, "january": 1,
	"feb": 2, "februari": 2, "pebruari": 2, "peb": 2, "february": 2,
	"mar": 3, "maret": 3, "march": 3,
	"apr": 4, "april": 4,
	"mei": 5, "may": 5,
	"jun": 6, "juni": 6, "june": 6,
	"jul": 7, "juli": 7, "july": 7,
	"agu": 8, "agus": 8, "agustus": 8, "agst": 8, "ags": 8, "aug": 8, "august": 8,
	"sep": 9, "sept": 9, "september": 9,
	"okt": 10, "oktober": 10, "oct": 10, "october": 10,
	"nov": 11, "november": 11, "nop": 11, "nopember": 11,
	"des": 12, "desember": 12, "dec": 12, "december": 12,
}

// Weekdays lists the weekday names that may prefix a date header.
var Weekdays = []string{"senin", "selasa", "rabu", "kamis", "jumat", "jum'at", "sabtu", "minggu"}

// LongestFirst returns an alternation of the given words, longest first so a
// short alias never wins over a longer one sharing its prefix.
func LongestFirst(words []string) string {
	sorted := make([]string, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})
	return strings.Join(sorted, "|")
}

func monthNamePattern() string {
	names := make([]string, 0, len(MonthAliases))
	for name := range MonthAliases {
		names = append(names, name)
	}
	return LongestFirst(names)
}

// ResolveMonth converts a month token (digits or a name) to 1-12.
func ResolveMonth(token string) (int, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return 0, false
	}

	if token[0] >= '0' && token[0] <= '9' {
		n, err := strconv.Atoi(token)
		if err != nil || n < 1 || n > 12 {
			return 0, false
		}
		return n, true
	}

	n, ok := MonthAliases[token]
	return n, ok
}
