package manifest

import (
	"regexp"
	"strings"

	"cargo_parser/internal/patterns"
)

// NoteKeywords are bare phrases that are lifted out of a cargo line as notes.
var NoteKeywords = []string{
	"urgent",
	"urgent bongkar",
	"urgent bongkar besok",
	"gudang",
	"gudang bayur",
}

// Note passes, applied in this order.
var (
	parenNoteRe    = regexp.MustCompile(`\(([^)]*)\)`)
	emphasisNoteRe = regexp.MustCompile("[*_~`]([^*_~`]+)[*_~`]")
	keywordNoteRe  = regexp.MustCompile(`(?i)\b(` +
		strings.ReplaceAll(patterns.LongestFirst(NoteKeywords), " ", `\s+`) + `)\b`)
)

// ExtractNotes pulls parenthetical asides, emphasised spans and keyword
// phrases out of line. It returns the notes in extraction order and what is
// left of the line.
func ExtractNotes(line string) ([]string, string) {
	line = strings.TrimSpace(line)
	notes := []string{}

	for _, re := range []*regexp.Regexp{parenNoteRe, emphasisNoteRe, keywordNoteRe} {
		var found []string
		found, line = takeAll(re, line)
		notes = append(notes, found...)
	}

	return notes, line
}

// takeAll collects capture group 1 of every match of re and removes the
// matches from line.
func takeAll(re *regexp.Regexp, line string) ([]string, string) {
	locs := re.FindAllStringSubmatchIndex(line, -1)
	if len(locs) == 0 {
		return nil, line
	}

	var found []string
	for _, loc := range locs {
		if note := strings.TrimSpace(line[loc[2]:loc[3]]); note != "" {
			found = append(found, note)
		}
	}

	// Cut from the end so earlier offsets stay valid.
	for i := len(locs) - 1; i >= 0; i-- {
		line = patterns.CutSpan(line, locs[i][0], locs[i][1])
	}

	return found, line
}
