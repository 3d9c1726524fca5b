package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/aluiziolira/go-scrape-orders/models"
)

// OrderIDPattern matches catalog order identifiers such as 123-4567890-1234567.
var OrderIDPattern = regexp.MustCompile(`\d{3}-\d{7}-\d{7}`)

var productPathPattern = regexp.MustCompile(`/(?:dp|gp/product|gp/aw/d|exec/obidos/ASIN)/([A-Z0-9]{10})(?:[/?#]|$)`)

// ValidateOrder ensures the extractor captured the fields every export needs.
func ValidateOrder(o *models.Order) error {
	if o == nil {
		return fmt.Errorf("order is nil")
	}
	if !OrderIDPattern.MatchString(o.OrderID) {
		return fmt.Errorf("order has malformed id %q", o.OrderID)
	}
	if o.TotalAmount.IsNegative() {
		return fmt.Errorf("order %s has negative total", o.OrderID)
	}
	seen := make(map[string]struct{}, len(o.Items))
	for _, item := range o.Items {
		if _, dup := seen[item.ASIN]; dup {
			return fmt.Errorf("order %s lists item %s twice", o.OrderID, item.ASIN)
		}
		seen[item.ASIN] = struct{}{}
	}
	return nil
}

// ProductID returns the product identifier embedded in a product URL path.
func ProductID(href string) (string, bool) {
	m := productPathPattern.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NormalizeSpace collapses runs of Unicode whitespace into one space and trims both ends. A
// no-break or narrow no-break space between two digits groups thousands ("1 234,56 €") and is
// kept as U+00A0; every other whitespace rune, those included, becomes a plain space.
func NormalizeSpace(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	pending := false
	for i, r := range runes {
		if (r == '\u00a0' || r == '\u202f') && groupsDigits(runes, i) {
			b.WriteRune('\u00a0')
			continue
		}
		if unicode.IsSpace(r) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func groupsDigits(runes []rune, i int) bool {
	return i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1])
}

// Truncate shortens text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:limit]))
}
