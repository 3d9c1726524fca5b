package enricher

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/parser"
)

const (
	// MaxPromotionDescription bounds the description kept per promotion.
	MaxPromotionDescription = 100
	// summary rows longer than this are containers, not lines
	maxRowLength = 200
)

var promotionTolerance = decimal.NewFromFloat(0.01)

var promotionSelectors = []string{
	".a-color-success",
	".od-line-item-row",
	"#od-subtotals .a-row",
	"[data-component='orderSummary'] .a-row",
	"[class*='promotion']",
	"[class*='savings']",
	"[class*='discount']",
	"[class*='coupon']",
}

type localePattern struct {
	locale string
	re     *regexp.Regexp
}

var promotionPatterns = []localePattern{
	{locale: "en", re: regexp.MustCompile(`(?i)(promotion|coupon|savings|discount|subscribe\s*&\s*save|reward points)`)},
	{locale: "de", re: regexp.MustCompile(`(?i)(gutschein|rabatt|aktion|nachlass|ersparnis|spar-abo|coupon)`)},
	{locale: "fr", re: regexp.MustCompile(`(?i)(réduction|remise|bon d'achat|économies|promotion)`)},
}

// Subtotals and summary lines mention the same keywords but are not promotions themselves.
var notPromotion = regexp.MustCompile(`(?i)(before|vor\s+(?:rabatt|abzug)|avant|subtotal|zwischensumme|sous-total|total savings|gesamtersparnis|total des économies|gesamtsumme|grand total|order total|montant total)`)

// ParsePromotions extracts description and amount pairs from promotion-like elements and
// order summary rows. The same line matched by two selectors is kept once.
func ParsePromotions(doc *goquery.Document) []models.Promotion {
	var found []models.Promotion
	for _, selector := range promotionSelectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			if p, ok := parsePromotionRow(parser.Text(sel)); ok {
				found = AddPromotion(found, p)
			}
		})
	}
	return found
}

func parsePromotionRow(text string) (models.Promotion, bool) {
	text = parser.NormalizeSpace(text)
	if text == "" || utf8.RuneCountInString(text) > maxRowLength {
		return models.Promotion{}, false
	}
	if notPromotion.MatchString(text) || !matchesPromotion(text) {
		return models.Promotion{}, false
	}
	amount, ok := parser.FindAmount(text)
	if !ok || !amount.Value.IsPositive() {
		return models.Promotion{}, false
	}
	return models.Promotion{
		Description: promotionDescription(text),
		Amount:      amount.Value.Round(2),
	}, true
}

func matchesPromotion(text string) bool {
	for _, p := range promotionPatterns {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

var amountLiteral = regexp.MustCompile(`[-−]?\s*(?:€|EUR|US\$|\$|USD|£|GBP)?\s?\d[\d.,\x{00A0}]*[.,]\d{2}\s?(?:€|EUR|USD|£|GBP)?`)

func promotionDescription(text string) string {
	desc := amountLiteral.ReplaceAllString(text, " ")
	desc = strings.Trim(parser.NormalizeSpace(desc), " :-–")
	return parser.Truncate(desc, MaxPromotionDescription)
}

// AddPromotion appends p unless a promotion with the same description and an amount within
// one cent is already present.
func AddPromotion(list []models.Promotion, p models.Promotion) []models.Promotion {
	for _, existing := range list {
		if existing.Description == p.Description &&
			existing.Amount.Sub(p.Amount).Abs().LessThanOrEqual(promotionTolerance) {
			return list
		}
	}
	return append(list, p)
}
