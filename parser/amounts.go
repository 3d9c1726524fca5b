package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a money value together with the currency it was written in.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

// Thousands may be grouped with dots, commas or a no-break space. A plain space never groups,
// so a quantity in front of a price ("Anzahl: 2 129,99 €") stays a separate number.
const (
	numberToken   = `\d{1,3}(?:[.,\x{00A0}]\d{3})+[.,]\d{2}|\d+[.,]\d{2}`
	currencyToken = `€|EUR|US\$|\$|USD|£|GBP`
	totalLabels   = `(?i:order total|grand total|total|gesamtsumme|gesamtbetrag|summe|gesamt|montant total|total de la commande)`
)

type amountPattern struct {
	re             *regexp.Regexp
	symbol, number int
}

// Labelled forms are tried before bare ones so that "Total: 49,99 €" wins over an item price.
var amountPatterns = []amountPattern{
	{re: regexp.MustCompile(totalLabels + `\s*:?\s*(` + currencyToken + `)\s?(` + numberToken + `)`), symbol: 1, number: 2},
	{re: regexp.MustCompile(totalLabels + `\s*:?\s*(` + numberToken + `)\s?(` + currencyToken + `)`), symbol: 2, number: 1},
	{re: regexp.MustCompile(`(` + currencyToken + `)\s?(` + numberToken + `)`), symbol: 1, number: 2},
	{re: regexp.MustCompile(`(` + numberToken + `)\s?(` + currencyToken + `)`), symbol: 2, number: 1},
}

var currencyCodes = map[string]string{
	"€":   "EUR",
	"EUR": "EUR",
	"$":   "USD",
	"US$": "USD",
	"USD": "USD",
	"£":   "GBP",
	"GBP": "GBP",
}

var (
	eurPattern = regexp.MustCompile(`€|\bEUR\b`)
	gbpPattern = regexp.MustCompile(`£|\bGBP\b`)
	usdPattern = regexp.MustCompile(`\$|\bUSD\b`)
)

// FindAmount returns the first currency amount found in text.
func FindAmount(text string) (Amount, bool) {
	text = NormalizeSpace(text)
	for _, p := range amountPatterns {
		m := p.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value, ok := ParseAmount(m[p.number])
		if !ok {
			continue
		}
		currency := currencyCodes[m[p.symbol]]
		if currency == "" {
			currency = DetectCurrency(text)
		}
		return Amount{Value: value, Currency: currency}, true
	}
	return Amount{}, false
}

// FindAllAmounts returns every bare currency amount in text, in order of appearance.
func FindAllAmounts(text string) []Amount {
	text = NormalizeSpace(text)
	var out []Amount
	for _, p := range amountPatterns[2:] {
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			if value, ok := ParseAmount(m[p.number]); ok {
				out = append(out, Amount{Value: value, Currency: currencyCodes[m[p.symbol]]})
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return out
}

// ParseAmount converts a localized number such as "1.234,56" or "1,234.56" into a decimal.
// The last separator followed by exactly two digits is the decimal mark.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	raw = strings.Join(strings.Fields(raw), "")
	raw = strings.TrimLeft(raw, "-+")
	if raw == "" {
		return decimal.Zero, false
	}

	last := strings.LastIndexAny(raw, ".,")
	intPart, fracPart := raw, ""
	if last >= 0 && len(raw)-last-1 == 2 {
		intPart, fracPart = raw[:last], raw[last+1:]
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}

	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}
	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, false
	}
	return value, true
}

// DetectCurrency infers a currency code from symbols or codes present in text.
func DetectCurrency(text string) string {
	switch {
	case eurPattern.MatchString(text):
		return "EUR"
	case gbpPattern.MatchString(text):
		return "GBP"
	case usdPattern.MatchString(text):
		return "USD"
	default:
		return ""
	}
}
