package scraper

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/aluiziolira/go-scrape-orders/config"
)

// Listing addresses one result page of the order history.
type Listing struct {
	Year       string
	StartIndex int
}

// ListingURL builds the URL of a listing page. The offset parameter is omitted on the first page.
func ListingURL(cat config.CatalogConfig, l Listing) (string, error) {
	u, err := url.Parse(cat.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set(cat.YearParam, fmt.Sprintf(cat.YearValueFormat, l.Year))
	if l.StartIndex > 0 {
		q.Set(cat.OffsetParam, strconv.Itoa(l.StartIndex))
	} else {
		q.Del(cat.OffsetParam)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseListing reads the year and offset a listing URL addresses. ok is false when the URL is
// not a year listing of the configured catalog.
func ParseListing(cat config.CatalogConfig, raw string) (Listing, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return Listing{}, false
	}
	base, err := url.Parse(cat.BaseURL)
	if err != nil || u.Host != base.Host || u.Path != base.Path {
		return Listing{}, false
	}

	var year string
	if _, err := fmt.Sscanf(u.Query().Get(cat.YearParam), cat.YearValueFormat, &year); err != nil || year == "" {
		return Listing{}, false
	}
	start := 0
	if offset := u.Query().Get(cat.OffsetParam); offset != "" {
		start, err = strconv.Atoi(offset)
		if err != nil || start < 0 {
			return Listing{}, false
		}
	}
	return Listing{Year: year, StartIndex: start}, true
}

// SameListing reports whether raw already addresses l.
func SameListing(cat config.CatalogConfig, raw string, l Listing) bool {
	got, ok := ParseListing(cat, raw)
	return ok && got == l
}

// OnCatalog reports whether raw points at the catalog's listing endpoint, whatever its query.
func OnCatalog(cat config.CatalogConfig, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	base, err := url.Parse(cat.BaseURL)
	if err != nil {
		return false
	}
	return u.Host == base.Host && u.Path == base.Path
}
