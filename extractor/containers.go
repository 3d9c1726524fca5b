package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/aluiziolira/go-scrape-orders/parser"
)

// maxAncestorDepth bounds the walk from an order number up to its card.
const maxAncestorDepth = 8

var containerSelectors = []string{
	".order-card",
	".js-order-card",
	".a-box-group.order",
	"div.order",
	"[data-order-id]",
}

var cardClassHints = []string{"order", "card", "a-box-group"}

// FindOrderContainers returns one selection per order card on the page. Known card
// selectors are tried in priority order; if none matches, cards are inferred from
// elements that carry an order number.
func FindOrderContainers(doc *goquery.Document) []*goquery.Selection {
	for _, selector := range containerSelectors {
		found := doc.Find(selector)
		if found.Length() == 0 {
			continue
		}
		out := make([]*goquery.Selection, 0, found.Length())
		found.Each(func(_ int, s *goquery.Selection) {
			out = append(out, s)
		})
		return out
	}
	return containersByOrderID(doc)
}

func containersByOrderID(doc *goquery.Document) []*goquery.Selection {
	seen := make(map[*html.Node]struct{})
	var out []*goquery.Selection
	doc.Find("body *").Each(func(_ int, el *goquery.Selection) {
		if !parser.OrderIDPattern.MatchString(parser.OwnText(el)) {
			return
		}
		card := cardAncestor(el)
		if card == nil {
			return
		}
		if _, dup := seen[card.Nodes[0]]; dup {
			return
		}
		seen[card.Nodes[0]] = struct{}{}
		out = append(out, card)
	})
	return out
}

// cardAncestor walks up from el while the ancestor still holds a single order number.
// The outermost card-like ancestor on that path wins, else the outermost single-order one.
func cardAncestor(el *goquery.Selection) *goquery.Selection {
	var single, card *goquery.Selection
	current := el
	for depth := 0; depth < maxAncestorDepth; depth++ {
		parent := current.Parent()
		if parent.Length() == 0 || goquery.NodeName(parent) == "body" {
			break
		}
		if distinctOrderIDs(parser.Text(parent)) > 1 {
			break
		}
		single = parent
		if looksLikeCard(parent) {
			card = parent
		}
		current = parent
	}
	if card != nil {
		return card
	}
	return single
}

func distinctOrderIDs(text string) int {
	set := make(map[string]struct{})
	for _, id := range parser.OrderIDPattern.FindAllString(text, -1) {
		set[id] = struct{}{}
	}
	return len(set)
}

func looksLikeCard(sel *goquery.Selection) bool {
	class := strings.ToLower(sel.AttrOr("class", ""))
	for _, hint := range cardClassHints {
		if strings.Contains(class, hint) {
			return true
		}
	}
	return false
}
