package coordinator

// Progress bands. Scraping fills 5 to 80; the terminal stages report the rest.
const (
	ScrapeStart = 5
	ScrapeEnd   = 80
	EnrichStart = 80

	// pages within a year are assumed to be about ten; the fraction never reaches the next year
	pagesPerYearEstimate = 10
	maxYearFraction      = 0.9
)

// ScrapeProgress maps a position in the listing onto the scraping band. It never decreases as
// the position advances.
func ScrapeProgress(yearIndex, startIndex, pageSize, totalYears int) int {
	if totalYears <= 0 || pageSize <= 0 {
		return ScrapeStart
	}
	fraction := float64(startIndex) / float64(pageSize*pagesPerYearEstimate)
	if fraction > maxYearFraction {
		fraction = maxYearFraction
	}
	done := (float64(yearIndex) + fraction) / float64(totalYears)
	return ScrapeStart + int(done*float64(ScrapeEnd-ScrapeStart))
}
