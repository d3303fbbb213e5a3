package patterns

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// DateFormats defines the accepted calendar date shapes.
//
// Examples:
//
//	23 Oktober 2024
//	20 Feb 25
//	08 10 2024
//	18 9 24
var DateFormats = []Format{
	{
		Name:    "day_month_year",
		Pattern: `\b(?P<day>{DAY})\s+(?P<month>{MONTH_NUM}|{MONTH_NAME})\s+(?P<year>{YEAR})\b`,
		Fields:  []string{"day", "month", "year"},
	},
}

// Grok compiler singleton.
var (
	dateCompiler *Compiler
	dateOnce     sync.Once
	dateErr      error
)

func getDateCompiler() (*Compiler, error) {
	dateOnce.Do(func() {
		dateCompiler = NewCompiler(DateFormats, nil)
		dateErr = dateCompiler.Compile()
	})
	return dateCompiler, dateErr
}

// ResolveDate finds a "<day> <month> <year>" date in text and returns it as
// YYYY-MM-DD. A leading weekday name is ignored and two-digit years are taken
// as 20xx. The day is only checked against 1-31, not against the month.
func ResolveDate(text string) (string, bool) {
	clean := Normalize(text)
	clean = strings.TrimSpace(WeekdayPrefixPattern.ReplaceAllString(clean, ""))
	if clean == "" {
		return "", false
	}

	c, err := getDateCompiler()
	if err != nil {
		return "", false
	}

	m := c.Parse(clean)
	if m == nil {
		return "", false
	}

	day, err := strconv.Atoi(m.Captures["day"])
	if err != nil || day < 1 || day > 31 {
		return "", false
	}

	month, ok := ResolveMonth(m.Captures["month"])
	if !ok {
		return "", false
	}

	year, err := strconv.Atoi(m.Captures["year"])
	if err != nil {
		return "", false
	}
	if year < 100 {
		year += 2000
	}

	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}
