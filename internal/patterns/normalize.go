package patterns

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// EmphasisMarkers are the chat markup characters for bold, italic,
// strikethrough and monospace.
const EmphasisMarkers = "*_~`"

var emphasisSet = runes.Predicate(func(r rune) bool {
	return strings.ContainsRune(EmphasisMarkers, r)
})

// Pool of transformer chains. A chain is stateful, so each caller takes its own.
var chainPool = sync.Pool{
	New: func() any {
		return transform.Chain(
			norm.NFKC,                          // NBSP and fullwidth forms fold to ASCII
			runes.Remove(runes.In(unicode.Cf)), // zero-width joiners, BOM
			runes.Remove(emphasisSet),
			norm.NFC, // recompose marks that were split by a removed marker
		)
	},
}

// Normalize strips emphasis markers from a line while keeping the enclosed
// text, and trims surrounding whitespace. Normalize(Normalize(s)) == Normalize(s).
func Normalize(line string) string {
	if line == "" {
		return ""
	}

	line = strings.ToValidUTF8(line, "")

	tr := chainPool.Get().(transform.Transformer)
	out, _, err := transform.String(tr, line)
	tr.Reset()
	chainPool.Put(tr)

	if err != nil {
		out = strings.Map(func(r rune) rune {
			if strings.ContainsRune(EmphasisMarkers, r) {
				return -1
			}
			return r
		}, line)
	}

	return strings.TrimSpace(out)
}

// IsCargoLine reports whether a line looks like a cargo line: it has at least
// one digit and the word "cbm" (optionally glued to its number, as in "45cbm").
func IsCargoLine(line string) bool {
	clean := strings.ToLower(Normalize(line))
	if clean == "" {
		return false
	}
	return strings.ContainsAny(clean, "0123456789") && CBMWordPattern.MatchString(clean)
}
