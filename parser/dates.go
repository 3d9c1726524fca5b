package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Years outside this range are rejected so unrelated four-digit numbers are not read as dates.
const (
	MinYear = 2000
	MaxYear = 2100
)

// ISODate is the canonical layout returned by ParseDate.
const ISODate = "2006-01-02"

var monthNames = map[string]time.Month{
	// English
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"jun": time.June, "jul": time.July, "aug": time.August, "sep": time.September,
	"sept": time.September, "oct": time.October, "nov": time.November, "dec": time.December,

	// German
	"januar": time.January, "jänner": time.January, "februar": time.February,
	"märz": time.March, "maerz": time.March, "mär": time.March, "mrz": time.March,
	"mai": time.May, "juni": time.June, "juli": time.July, "oktober": time.October,
	"okt": time.October, "dezember": time.December, "dez": time.December,

	// French
	"janvier": time.January, "janv": time.January, "février": time.February,
	"fevrier": time.February, "févr": time.February, "fevr": time.February,
	"mars": time.March, "avril": time.April, "avr": time.April, "juin": time.June,
	"juillet": time.July, "juil": time.July, "août": time.August, "aout": time.August,
	"septembre": time.September, "octobre": time.October, "novembre": time.November,
	"décembre": time.December, "decembre": time.December, "déc": time.December,
}

type datePattern struct {
	re               *regexp.Regexp
	day, month, year int
}

var datePatterns = []datePattern{
	// 15. januar 2024
	{re: regexp.MustCompile(`(\d{1,2})\.\s*(\p{L}+)\.?\s+(\d{4})`), day: 1, month: 2, year: 3},
	// january 20, 2024
	{re: regexp.MustCompile(`(\p{L}+)\.?\s+(\d{1,2}),?\s+(\d{4})`), day: 2, month: 1, year: 3},
	// 20 janvier 2024
	{re: regexp.MustCompile(`(\d{1,2})(?:er)?\s+(\p{L}+)\.?\s+(\d{4})`), day: 1, month: 2, year: 3},
}

// ParseDate reads a localized calendar date out of free text and returns it as YYYY-MM-DD.
// The boolean is false when no supported form with a plausible year is present.
func ParseDate(text string) (string, bool) {
	text = NormalizeSpace(strings.ToLower(text))
	if text == "" {
		return "", false
	}
	for _, p := range datePatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if date, ok := buildDate(m[p.day], m[p.month], m[p.year]); ok {
				return date, true
			}
		}
	}
	return "", false
}

func buildDate(dayText, monthText, yearText string) (string, bool) {
	month, ok := monthNames[monthText]
	if !ok {
		return "", false
	}
	day, err := strconv.Atoi(dayText)
	if err != nil {
		return "", false
	}
	year, err := strconv.Atoi(yearText)
	if err != nil || year < MinYear || year > MaxYear {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return "", false
	}
	return t.Format(ISODate), true
}

// ParseISODate parses a YYYY-MM-DD string. Empty input yields the zero time.
func ParseISODate(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return time.Parse(ISODate, strings.TrimSpace(value))
}
