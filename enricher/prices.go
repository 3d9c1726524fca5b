package enricher

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/parser"
)

// rawWindow bounds how far after a product id the raw pass looks for a price.
const rawWindow = 600

// Most specific first; a broad row only fills prices the narrower ones missed.
var itemRowSelectors = []string{
	"[data-component='purchasedItems'] .a-fixed-left-grid",
	".yohtmlc-item",
	".od-shipments .a-fixed-left-grid-inner",
	".a-fixed-left-grid",
	"tr",
	"li",
	"div.a-row",
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// ParseItemPrices scans row-like elements for one that links exactly one of the order's products
// and carries an amount. The first amount found for a product wins.
func ParseItemPrices(doc *goquery.Document, order *models.Order) map[string]decimal.Decimal {
	wanted := make(map[string]struct{}, len(order.Items))
	for _, item := range order.Items {
		wanted[item.ASIN] = struct{}{}
	}

	prices := make(map[string]decimal.Decimal)
	for _, selector := range itemRowSelectors {
		if len(prices) == len(wanted) {
			break
		}
		doc.Find(selector).Each(func(_ int, row *goquery.Selection) {
			asin, ok := singleProduct(row, wanted)
			if !ok {
				return
			}
			if _, done := prices[asin]; done {
				return
			}
			if price, ok := firstPositive(parser.Text(row)); ok {
				prices[asin] = price
			}
		})
	}
	return prices
}

// singleProduct returns the product id when row links exactly one wanted product.
func singleProduct(row *goquery.Selection, wanted map[string]struct{}) (string, bool) {
	found := ""
	ambiguous := false
	row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		id, ok := parser.ProductID(a.AttrOr("href", ""))
		if !ok {
			return true
		}
		if _, ok := wanted[id]; !ok {
			return true
		}
		if found != "" && found != id {
			ambiguous = true
			return false
		}
		found = id
		return true
	})
	return found, found != "" && !ambiguous
}

// ParseRawPrices looks for an amount in the markup following each product id, tags stripped and
// entities such as &nbsp; decoded.
func ParseRawPrices(raw []byte, asins []string) map[string]decimal.Decimal {
	source := string(raw)
	prices := make(map[string]decimal.Decimal)
	for _, asin := range asins {
		offset := 0
		for {
			idx := strings.Index(source[offset:], asin)
			if idx < 0 {
				break
			}
			start := offset + idx + len(asin)
			end := min(start+rawWindow, len(source))
			window := html.UnescapeString(tagPattern.ReplaceAllString(source[start:end], " "))
			if price, ok := firstPositive(window); ok {
				prices[asin] = price
				break
			}
			offset = start
		}
	}
	return prices
}

func firstPositive(text string) (decimal.Decimal, bool) {
	for _, amount := range parser.FindAllAmounts(text) {
		if amount.Value.IsPositive() {
			return amount.Value, true
		}
	}
	return decimal.Zero, false
}
