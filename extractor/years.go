package extractor

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-orders/parser"
)

// FallbackYears is the size of the synthesized window when the page exposes no year filter.
const FallbackYears = 10

var (
	yearToken     = regexp.MustCompile(`\b(\d{4})\b`)
	yearLinkToken = regexp.MustCompile(`year-(\d{4})`)
)

type yearStrategy struct {
	name string
	find func(doc *goquery.Document) []string
}

var yearStrategies = []yearStrategy{
	{name: "filter-control", find: yearsFromFilterControl},
	{name: "hyperlink", find: yearsFromLinks},
	{name: "dropdown", find: yearsFromDropdown},
}

var filterControlSelectors = []string{
	"select#time-filter option",
	`select[name="timeFilter"] option`,
	"select#orderFilter option",
	`select[name="orderFilter"] option`,
}

var dropdownSelectors = []string{
	`[data-value*="year-"]`,
	".a-dropdown-item",
	`li[role="option"]`,
}

// DiscoverYears lists the order years offered by the listing page, newest first.
// The first strategy that yields a plausible year wins; when none does, the current year
// and the FallbackYears before it are returned.
func DiscoverYears(doc *goquery.Document, now time.Time) []string {
	for _, s := range yearStrategies {
		if years := plausibleYears(s.find(doc), now); len(years) > 0 {
			return years
		}
	}
	return fallbackYears(now)
}

func yearsFromFilterControl(doc *goquery.Document) []string {
	var out []string
	for _, selector := range filterControlSelectors {
		doc.Find(selector).Each(func(_ int, opt *goquery.Selection) {
			out = append(out, matchAll(yearToken, opt.AttrOr("value", ""))...)
			out = append(out, matchAll(yearToken, parser.Text(opt))...)
		})
	}
	return out
}

func yearsFromLinks(doc *goquery.Document) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		out = append(out, matchAll(yearLinkToken, a.AttrOr("href", ""))...)
	})
	return out
}

func yearsFromDropdown(doc *goquery.Document) []string {
	var out []string
	for _, selector := range dropdownSelectors {
		doc.Find(selector).Each(func(_ int, item *goquery.Selection) {
			out = append(out, matchAll(yearLinkToken, item.AttrOr("data-value", ""))...)
			out = append(out, matchAll(yearToken, parser.Text(item))...)
		})
	}
	return out
}

func matchAll(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func plausibleYears(tokens []string, now time.Time) []string {
	set := make(map[int]struct{})
	for _, token := range tokens {
		year, err := strconv.Atoi(token)
		if err != nil || year < parser.MinYear || year > now.Year() {
			continue
		}
		set[year] = struct{}{}
	}
	years := make([]int, 0, len(set))
	for year := range set {
		years = append(years, year)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	out := make([]string, len(years))
	for i, year := range years {
		out[i] = strconv.Itoa(year)
	}
	return out
}

func fallbackYears(now time.Time) []string {
	out := make([]string, 0, FallbackYears+1)
	for year := now.Year(); year >= now.Year()-FallbackYears; year-- {
		out = append(out, strconv.Itoa(year))
	}
	return out
}
