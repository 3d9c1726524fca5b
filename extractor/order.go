package extractor

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/parser"
)

// MaxStatusLength bounds the free-text status kept per order.
const MaxStatusLength = 100

// ErrNoOrderID is returned when a container carries no recognisable order number.
var ErrNoOrderID = errors.New("extractor: no order id")

type localePattern struct {
	locale string
	re     *regexp.Regexp
}

var (
	orderIDLink  = regexp.MustCompile(`(?i)orderI[dD]=(\d{3}-\d{7}-\d{7})`)
	detailsLink  = regexp.MustCompile(`(?i)(order-details|orderID=)`)
	quantityText = regexp.MustCompile(`(?i)(?:qty|quantity|menge|anzahl|quantité)\s*:?\s*(\d+)`)
	digits       = regexp.MustCompile(`\d+`)
	hasLetter    = regexp.MustCompile(`\pL`)
	actionLabel  = regexp.MustCompile(`(?i)^(?:buy it again|erneut kaufen|acheter à nouveau|view your item|artikel ansehen|write a product review)$`)
)

// Labelled forms come first; a bare date elsewhere in the card is only a fallback.
var orderDatePatterns = []localePattern{
	{locale: "de", re: regexp.MustCompile(`(?i)(?:bestellt am|bestellung aufgegeben|bestelldatum)\s*:?\s*(\d{1,2}\.\s*\p{L}+\.?\s+\d{4})`)},
	{locale: "en", re: regexp.MustCompile(`(?i)(?:order placed|ordered on|order date)\s*:?\s*(\p{L}+\.?\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+\p{L}+\s+\d{4})`)},
	{locale: "fr", re: regexp.MustCompile(`(?i)(?:commande effectuée le|commandé le|date de commande)\s*:?\s*(\d{1,2}(?:er)?\s+\p{L}+\.?\s+\d{4})`)},
	{locale: "de", re: regexp.MustCompile(`(\d{1,2}\.\s*\p{L}+\.?\s+\d{4})`)},
	{locale: "en", re: regexp.MustCompile(`(\p{L}+\.?\s+\d{1,2},\s+\d{4})`)},
	{locale: "fr", re: regexp.MustCompile(`(\d{1,2}(?:er)?\s+\p{L}+\s+\d{4})`)},
}

var statusSelectors = []string{
	".delivery-box__primary-text",
	".yohtmlc-shipment-status-primaryText",
	".js-shipment-info-container .a-text-bold",
}

var orderStatusPatterns = []localePattern{
	{locale: "en", re: regexp.MustCompile(`(?i)\b(?:delivered|arriving|arrived)(?:\s+(?:on\s+)?\p{L}+\.?\s+\d{1,2}(?:,\s*\d{4})?)?`)},
	{locale: "en", re: regexp.MustCompile(`(?i)\b(?:out for delivery|not yet shipped|shipped|dispatched|cancelled|canceled|return complete|returned|refund issued|refunded)\b`)},
	{locale: "de", re: regexp.MustCompile(`(?i)(?:zugestellt|geliefert)(?:\s+am\s+\d{1,2}\.\s*\p{L}+\.?(?:\s+\d{4})?)?`)},
	{locale: "de", re: regexp.MustCompile(`(?i)(?:unterwegs|versandt|verschickt|storniert|rückerstattung|erstattet|zurückgegeben)`)},
	{locale: "fr", re: regexp.MustCompile(`(?i)(?:livrée?|arrivée prévue)(?:\s+le\s+\d{1,2}(?:er)?\s+\p{L}+(?:\s+\d{4})?)?`)},
	{locale: "fr", re: regexp.MustCompile(`(?i)(?:expédiée?|annulée?|remboursée?|retournée?)`)},
}

const (
	itemRowSelector   = ".yohtmlc-item, .item-box, .a-fixed-left-grid, .a-fixed-right-grid, li, tr"
	titleLikeSelector = ".yohtmlc-product-title, .a-text-bold, [class*='title'], b, strong"
	quantitySelector  = ".product-image__qty, .item-view-qty, .od-item-view-qty"
)

// ParseOrder extracts one order from its card. base resolves relative links; defaultCurrency
// is used when the card shows no currency symbol or code.
func ParseOrder(card *goquery.Selection, base *url.URL, defaultCurrency string) (models.Order, error) {
	text := parser.Text(card)
	order := models.Order{
		OrderID:    findOrderID(card, text),
		OrderDate:  findOrderDate(text),
		DetailsURL: findDetailsURL(card, base),
	}
	if order.OrderID == "" {
		return models.Order{}, ErrNoOrderID
	}

	if amount, ok := parser.FindAmount(text); ok {
		order.TotalAmount = amount.Value
		order.Currency = amount.Currency
	}
	if order.Currency == "" {
		order.Currency = defaultCurrency
	}

	order.OrderStatus = findStatus(card, text)
	order.Items = findItems(card, base)
	order.Normalize()
	return order, nil
}

func findOrderID(card *goquery.Selection, text string) string {
	if id := parser.OrderIDPattern.FindString(text); id != "" {
		return id
	}
	if id, ok := card.Attr("data-order-id"); ok && parser.OrderIDPattern.MatchString(id) {
		return id
	}
	var id string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if m := orderIDLink.FindStringSubmatch(a.AttrOr("href", "")); m != nil {
			id = m[1]
			return false
		}
		return true
	})
	return id
}

func findDetailsURL(card *goquery.Selection, base *url.URL) string {
	var out string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := a.AttrOr("href", "")
		if !detailsLink.MatchString(href) {
			return true
		}
		out = absoluteURL(base, href)
		return false
	})
	return out
}

func findOrderDate(text string) string {
	for _, p := range orderDatePatterns {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if date, ok := parser.ParseDate(m[1]); ok && strings.HasPrefix(date, "20") {
				return date
			}
		}
	}
	return ""
}

func findStatus(card *goquery.Selection, text string) string {
	for _, selector := range statusSelectors {
		if s := parser.Text(card.Find(selector).First()); s != "" {
			return parser.Truncate(s, MaxStatusLength)
		}
	}
	for _, p := range orderStatusPatterns {
		if s := p.re.FindString(text); s != "" {
			return parser.Truncate(strings.TrimSpace(s), MaxStatusLength)
		}
	}
	return ""
}

func findItems(card *goquery.Selection, base *url.URL) []models.OrderItem {
	var items []models.OrderItem
	index := make(map[string]int)
	card.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := a.AttrOr("href", "")
		asin, ok := parser.ProductID(href)
		if !ok {
			return
		}
		row := itemRow(a, card)
		qty, explicit := resolveQuantity(row)

		i, exists := index[asin]
		if !exists {
			items = append(items, models.OrderItem{
				Title:    resolveTitle(a, row),
				ASIN:     asin,
				Quantity: qty,
				Price:    decimal.Zero,
				Discount: decimal.Zero,
				ItemURL:  absoluteURL(base, href),
			})
			index[asin] = len(items) - 1
			return
		}
		if items[i].Title == "" {
			items[i].Title = resolveTitle(a, row)
		}
		if explicit && items[i].Quantity == 1 {
			items[i].Quantity = qty
		}
	})
	return items
}

func itemRow(a, card *goquery.Selection) *goquery.Selection {
	if rows := a.ParentsUntilSelection(card).Filter(itemRowSelector); rows.Length() > 0 {
		return rows.First()
	}
	if parent := a.Parent(); parent.Length() > 0 && !parent.IsSelection(card) {
		return parent
	}
	return a
}

func resolveTitle(a, row *goquery.Selection) string {
	if title := parser.Text(a); usableTitle(title) {
		return title
	}
	if title := parser.Text(row.Find(titleLikeSelector).First()); usableTitle(title) {
		return title
	}
	for _, attr := range []string{"title", "aria-label"} {
		if title := parser.NormalizeSpace(a.AttrOr(attr, "")); title != "" {
			return title
		}
	}
	if alt := parser.NormalizeSpace(a.Find("img[alt]").AttrOr("alt", "")); alt != "" {
		return alt
	}
	return parser.NormalizeSpace(row.Find("img[alt]").AttrOr("alt", ""))
}

// usableTitle rejects empty text, bare quantity badges and action buttons.
func usableTitle(text string) bool {
	return hasLetter.MatchString(text) && !actionLabel.MatchString(text)
}

// resolveQuantity reports the item quantity and whether the page stated it explicitly.
func resolveQuantity(row *goquery.Selection) (int, bool) {
	if badge := parser.Text(row.Find(quantitySelector).First()); badge != "" {
		if n, err := strconv.Atoi(digits.FindString(badge)); err == nil && n > 0 {
			return n, true
		}
	}
	if m := quantityText.FindStringSubmatch(parser.Text(row)); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	return 1, false
}

func absoluteURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
