// Package extractor turns loaded order-history listing pages into order records.
// Every function takes the document explicitly and has no side effects.
package extractor

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/parser"
)

// adItemThreshold is the item count above which an undated, unpriced block counts as a placement.
const adItemThreshold = 3

var promoTitlePattern = regexp.MustCompile(`(?i)(sponsored|gesponsert|anzeige|werbung|sponsorisé|recommended for you|empfehlungen für sie|inspired by your|customers also|kunden kauften auch|deal of the day|angebot des tages)`)

var nextPageSelectors = []string{
	"ul.a-pagination li.a-last:not(.a-disabled) a[href]",
	`a[rel="next"][href]`,
	"li.next a[href]",
	".pagination-next a[href]",
}

// Options controls which of the parsed orders ExtractOrders keeps.
type Options struct {
	// StartDate and EndDate are inclusive YYYY-MM-DD bounds; empty means open.
	StartDate string
	EndDate   string
	AcceptAll bool
	// Seen holds order ids collected on earlier pages.
	Seen            map[string]struct{}
	BaseURL         *url.URL
	DefaultCurrency string
}

// Skip records a container that produced no order.
type Skip struct {
	Index  int
	Reason string
	Err    error
}

// PageResult is the outcome of extracting one listing page.
type PageResult struct {
	Orders []models.Order
	// Parsed counts containers that yielded an order before date and duplicate filtering.
	Parsed     int
	OutOfRange int
	Duplicates int
	Skipped    []Skip
}

// ExtractOrders parses every order container on the page and returns the new, in-range orders.
func ExtractOrders(doc *goquery.Document, opts Options) PageResult {
	var result PageResult
	local := make(map[string]struct{})

	for i, card := range FindOrderContainers(doc) {
		order, err := ParseOrder(card, opts.BaseURL, opts.DefaultCurrency)
		if err != nil {
			result.Skipped = append(result.Skipped, Skip{Index: i, Reason: "parse", Err: err})
			continue
		}
		if IsAdvertisement(&order) {
			result.Skipped = append(result.Skipped, Skip{Index: i, Reason: "advertisement"})
			continue
		}
		if err := parser.ValidateOrder(&order); err != nil {
			result.Skipped = append(result.Skipped, Skip{Index: i, Reason: "invalid", Err: err})
			continue
		}
		result.Parsed++

		if !opts.AcceptAll && !InRange(order.OrderDate, opts.StartDate, opts.EndDate) {
			result.OutOfRange++
			continue
		}
		if _, dup := opts.Seen[order.OrderID]; dup {
			result.Duplicates++
			continue
		}
		if _, dup := local[order.OrderID]; dup {
			result.Duplicates++
			continue
		}
		local[order.OrderID] = struct{}{}
		result.Orders = append(result.Orders, order)
	}
	return result
}

// InRange reports whether an ISO order date lies within [start, end]. Undated orders are kept
// because nothing proves them out of range.
func InRange(date, start, end string) bool {
	if date == "" {
		return true
	}
	if start != "" && date < start {
		return false
	}
	if end != "" && date > end {
		return false
	}
	return true
}

// IsAdvertisement reports whether a parsed block is a promotional placement rather than an order.
func IsAdvertisement(o *models.Order) bool {
	if o.OrderDate != "" {
		return false
	}
	for _, item := range o.Items {
		if promoTitlePattern.MatchString(item.Title) {
			return true
		}
	}
	if o.OrderStatus != "" || o.DetailsURL != "" || len(o.Items) <= adItemThreshold {
		return false
	}
	for _, item := range o.Items {
		if !item.Price.IsZero() {
			return false
		}
	}
	return true
}

// HasNextPage reports whether the listing offers a link to a further result page.
func HasNextPage(doc *goquery.Document) bool {
	for _, selector := range nextPageSelectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

func (s Skip) String() string {
	if s.Err != nil {
		return fmt.Sprintf("container %d: %s: %v", s.Index, s.Reason, s.Err)
	}
	return fmt.Sprintf("container %d: %s", s.Index, s.Reason)
}
