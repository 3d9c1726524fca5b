package enricher

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-orders/config"
	"github.com/aluiziolira/go-scrape-orders/metrics"
	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/scraper"
)

const detailsURL = "https://www.amazon.de/gp/your-account/order-details?orderID=123-4567890-1234567"

const twoItemDetail = `<html><body>
<div data-component="purchasedItems">
  <div class="a-fixed-left-grid">
    <a href="/dp/B000000001">USB-C Kabel</a>
    <span class="a-color-price">10,00 €</span>
  </div>
  <div class="a-fixed-left-grid">
    <a href="/gp/product/B000000002">Netzteil</a>
    <span class="a-color-price">8,00 €</span>
  </div>
</div>
<div id="od-subtotals">
  <div class="a-row"><span>Zwischensumme:</span> <span>18,00 €</span></div>
  <div class="a-row"><span>Gesamtsumme:</span> <span>16,00 €</span></div>
</div>
</body></html>`

const promotionDetail = `<html><body>
<div id="od-subtotals">
  <div class="a-row"><span>Zwischensumme:</span> <span>30,00 €</span></div>
  <div class="a-row a-color-success">
    <span>Gutschein eingelöst:</span>
    <span>-5,00 €</span>
  </div>
  <div class="a-row"><span>Gesamtersparnis:</span> <span>5,00 €</span></div>
  <div class="a-row"><span>Gesamtsumme:</span> <span>25,00 €</span></div>
</div>
<div class="promotion-message">Promotion applied: -$3.00</div>
</body></html>`

func twoItemOrder() models.Order {
	return models.Order{
		OrderID:     "123-4567890-1234567",
		OrderDate:   "2024-01-15",
		TotalAmount: decimal.RequireFromString("16.00"),
		Currency:    "EUR",
		DetailsURL:  detailsURL,
		Items: []models.OrderItem{
			{Title: "USB-C Kabel", ASIN: "B000000001", Quantity: 1},
			{Title: "Netzteil", ASIN: "B000000002", Quantity: 1},
		},
	}
}

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestParseItemPrices(t *testing.T) {
	order := twoItemOrder()
	prices := ParseItemPrices(mustDoc(t, twoItemDetail), &order)

	require.Len(t, prices, 2)
	assert.Equal(t, "10.00", prices["B000000001"].StringFixed(2))
	assert.Equal(t, "8.00", prices["B000000002"].StringFixed(2))
}

func TestParseItemPricesSkipsAmbiguousRows(t *testing.T) {
	html := `<html><body><ul><li>
	  <a href="/dp/B000000001">A</a> <a href="/dp/B000000002">B</a> 18,00 €
	</li></ul></body></html>`
	order := twoItemOrder()

	assert.Empty(t, ParseItemPrices(mustDoc(t, html), &order))
}

func TestParseItemPricesFirstFoundWins(t *testing.T) {
	html := `<html><body><table>
	  <tr><td><a href="/dp/B000000001">A</a></td><td>12,00 €</td></tr>
	  <tr><td><a href="/dp/B000000001">A again</a></td><td>99,00 €</td></tr>
	</table></body></html>`
	order := twoItemOrder()

	prices := ParseItemPrices(mustDoc(t, html), &order)
	assert.Equal(t, "12.00", prices["B000000001"].StringFixed(2))
}

func TestParseItemPricesSeparatesAdjacentElements(t *testing.T) {
	html := `<div class="a-fixed-left-grid"><a href="/dp/B0000000A1">Widget</a><span>Qty: 2</span><span>12,50 €</span></div>`
	order := models.Order{Items: []models.OrderItem{{ASIN: "B0000000A1", Quantity: 2}}}

	prices := ParseItemPrices(mustDoc(t, html), &order)
	assert.Equal(t, "12.50", prices["B0000000A1"].StringFixed(2))
}

func TestParseRawPrices(t *testing.T) {
	raw := []byte(`<div class="item-box"><span data-asin="B000000003"></span><p><b>Preis:</b> 12,50 €</p></div>`)

	prices := ParseRawPrices(raw, []string{"B000000003", "B000000009"})
	require.Len(t, prices, 1)
	assert.Equal(t, "12.50", prices["B000000003"].StringFixed(2))
}

func TestParseRawPricesDecodesGroupingSpace(t *testing.T) {
	raw := []byte(`<span data-asin="B000000003"></span><span>Anzahl: 1</span><span>1&nbsp;249,00&nbsp;€</span>`)

	prices := ParseRawPrices(raw, []string{"B000000003"})
	assert.Equal(t, "1249.00", prices["B000000003"].StringFixed(2))
}

func TestParsePromotions(t *testing.T) {
	got := ParsePromotions(mustDoc(t, promotionDetail))

	want := []models.Promotion{
		{Description: "Gutschein eingelöst", Amount: decimal.RequireFromString("5.00")},
		{Description: "Promotion applied", Amount: decimal.RequireFromString("3.00")},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Fatalf("promotions mismatch (-want +got):\n%s", diff)
	}
}

func TestParsePromotionsSeparatesAdjacentElements(t *testing.T) {
	html := `<div class="a-color-success"><span>Coupon x2</span><span>4,00 €</span></div>`

	got := ParsePromotions(mustDoc(t, html))
	require.Len(t, got, 1)
	assert.Equal(t, "Coupon x2", got[0].Description)
	assert.Equal(t, "4.00", got[0].Amount.StringFixed(2))
}

func TestAddPromotionDedupesWithinTolerance(t *testing.T) {
	list := AddPromotion(nil, models.Promotion{Description: "Coupon", Amount: decimal.RequireFromString("2.00")})
	list = AddPromotion(list, models.Promotion{Description: "Coupon", Amount: decimal.RequireFromString("2.01")})
	list = AddPromotion(list, models.Promotion{Description: "Coupon", Amount: decimal.RequireFromString("2.50")})
	list = AddPromotion(list, models.Promotion{Description: "Rabatt", Amount: decimal.RequireFromString("2.00")})

	assert.Len(t, list, 3)
}

func TestReconcileSynthesizesResidual(t *testing.T) {
	order := twoItemOrder()
	order.Items[0].Price = decimal.RequireFromString("10.00")
	order.Items[1].Price = decimal.RequireFromString("8.00")

	Reconcile(&order)

	require.Len(t, order.Promotions, 1)
	assert.Equal(t, AdditionalDiscount, order.Promotions[0].Description)
	assert.Equal(t, "2.00", order.Promotions[0].Amount.StringFixed(2))
	assert.Equal(t, "2.00", order.TotalSavings.StringFixed(2))
}

func TestReconcileKeepsExplainedGap(t *testing.T) {
	order := twoItemOrder()
	order.Items[0].Price = decimal.RequireFromString("10.00")
	order.Items[1].Price = decimal.RequireFromString("8.00")
	order.Promotions = []models.Promotion{{Description: "Coupon", Amount: decimal.RequireFromString("1.995")}}

	Reconcile(&order)

	assert.Len(t, order.Promotions, 1)
	assert.Equal(t, "2.00", order.TotalSavings.StringFixed(2))
}

func TestReconcileUnpricedItemsKeepFoundPromotions(t *testing.T) {
	order := twoItemOrder()
	order.Promotions = []models.Promotion{{Description: "Coupon", Amount: decimal.RequireFromString("2.00")}}

	Reconcile(&order)

	// items total 0 against 16.00: the gap is negative, the found promotion still counts
	assert.Len(t, order.Promotions, 1)
	assert.Equal(t, "2.00", order.TotalSavings.StringFixed(2))
}

func TestReconcileBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tolerance := decimal.NewFromFloat(0.01)

	for i := 0; i < 500; i++ {
		var order models.Order
		for n := rng.Intn(4); n >= 0; n-- {
			order.Items = append(order.Items, models.OrderItem{
				ASIN:     "B00000000" + string(rune('0'+n)),
				Quantity: 1 + rng.Intn(3),
				Price:    decimal.New(int64(rng.Intn(10000)), -2),
			})
		}
		itemsTotal := order.ItemsTotal()
		gap := decimal.New(int64(rng.Intn(int(itemsTotal.Mul(decimal.NewFromInt(100)).IntPart())+1)), -2)
		order.TotalAmount = itemsTotal.Sub(gap)
		if found := decimal.New(int64(rng.Intn(int(gap.Mul(decimal.NewFromInt(100)).IntPart())+1)), -2); found.IsPositive() {
			order.Promotions = []models.Promotion{{Description: "Coupon", Amount: found}}
		}

		Reconcile(&order)

		require.False(t, order.TotalSavings.IsNegative(), "case %d: negative savings", i)
		require.True(t, order.TotalSavings.LessThanOrEqual(gap.Add(tolerance)),
			"case %d: savings %s exceed gap %s", i, order.TotalSavings, gap)
	}
}

func newTestFetcher(t *testing.T) (*HTTPFetcher, *httpmock.MockTransport) {
	t.Helper()
	f, err := NewHTTPFetcher(config.DefaultConfig(), nil, metrics.New())
	require.NoError(t, err)
	transport := httpmock.NewMockTransport()
	f.WithTransport(transport)
	return f, transport
}

func htmlResponder(body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(http.StatusOK, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestEnrichAll(t *testing.T) {
	fetcher, transport := newTestFetcher(t)
	transport.RegisterResponder("GET", detailsURL, htmlResponder(twoItemDetail))
	missingURL := "https://www.amazon.de/gp/your-account/order-details?orderID=123-4567890-0000000"
	transport.RegisterResponder("GET", missingURL, httpmock.NewStringResponder(http.StatusNotFound, ""))

	e, err := New(fetcher, 0, metrics.New(), zerolog.Nop())
	require.NoError(t, err)

	failing := twoItemOrder()
	failing.OrderID = "123-4567890-0000000"
	failing.DetailsURL = missingURL
	orders := []models.Order{twoItemOrder(), failing, {OrderID: "123-4567890-1111111"}}

	var calls [][2]int
	stats, err := e.EnrichAll(context.Background(), orders, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	})
	require.NoError(t, err)

	assert.Equal(t, Stats{Attempted: 2, Enriched: 1, Skipped: 1}, stats)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, calls)

	enriched := orders[0]
	assert.Equal(t, "10.00", enriched.Items[0].Price.StringFixed(2))
	assert.Equal(t, "8.00", enriched.Items[1].Price.StringFixed(2))
	require.Len(t, enriched.Promotions, 1)
	assert.Equal(t, "2.00", enriched.Promotions[0].Amount.StringFixed(2))
	assert.Equal(t, "2.00", enriched.TotalSavings.StringFixed(2))

	assert.True(t, orders[1].Items[0].Price.IsZero())
	assert.Empty(t, orders[1].Promotions)
}

func TestFetchLabelsNonSuccessStatus(t *testing.T) {
	m := metrics.New()
	f, err := NewHTTPFetcher(config.DefaultConfig(), nil, m)
	require.NoError(t, err)
	transport := httpmock.NewMockTransport()
	f.WithTransport(transport)
	transport.RegisterResponder("GET", detailsURL, httpmock.NewStringResponder(http.StatusNotModified, ""))

	_, err = f.Fetch(context.Background(), detailsURL)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	var status scraper.ErrStatus
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusNotModified, status.Status)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("client_error")))
	assert.Zero(t, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("unknown")))
}

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	body  []byte
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, target string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[target]++
	return f.body, f.err
}

const sharedDetail = `<html><body>
<div data-component="purchasedItems">
  <div class="a-fixed-left-grid">
    <a href="/dp/B000000001">USB-C Kabel</a>
    <span class="a-color-price">10,00 €</span>
  </div>
  <div class="a-fixed-left-grid">
    <a href="/dp/B000000002">Netzteil</a>
    <span class="a-color-price">8,00 €</span>
  </div>
</div>
<div id="od-subtotals">
  <div class="a-row a-color-success"><span>Gutschein eingelöst:</span> <span>-1,00 €</span></div>
</div>
</body></html>`

func TestEnrichAllSharesDetailPage(t *testing.T) {
	fetcher := &countingFetcher{body: []byte(sharedDetail)}
	e, err := New(fetcher, 0, nil, zerolog.Nop())
	require.NoError(t, err)

	first := models.Order{
		OrderID:     "123-4567890-1234567",
		TotalAmount: decimal.RequireFromString("9.00"),
		DetailsURL:  detailsURL,
		Items:       []models.OrderItem{{ASIN: "B000000001", Quantity: 1}},
	}
	second := models.Order{
		OrderID:     "123-4567890-7654321",
		TotalAmount: decimal.RequireFromString("8.00"),
		DetailsURL:  detailsURL,
		Items:       []models.OrderItem{{ASIN: "B000000002", Quantity: 1}},
	}
	orders := []models.Order{first, second}

	stats, err := e.EnrichAll(context.Background(), orders, nil)
	require.NoError(t, err)

	assert.Equal(t, Stats{Attempted: 2, Enriched: 2}, stats)
	assert.Equal(t, 1, fetcher.calls[detailsURL])

	assert.Equal(t, "10.00", orders[0].Items[0].Price.StringFixed(2))
	require.Len(t, orders[0].Promotions, 1)
	assert.Equal(t, "Gutschein eingelöst", orders[0].Promotions[0].Description)
	assert.Equal(t, "1.00", orders[0].TotalSavings.StringFixed(2))

	assert.Equal(t, "8.00", orders[1].Items[0].Price.StringFixed(2))
	assert.Empty(t, orders[1].Promotions)
	assert.True(t, orders[1].TotalSavings.IsZero())
}

func TestEnrichAllDoesNotRefetchFailedPage(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("boom")}
	e, err := New(fetcher, 0, nil, zerolog.Nop())
	require.NoError(t, err)

	second := twoItemOrder()
	second.OrderID = "123-4567890-7654321"
	orders := []models.Order{twoItemOrder(), second}

	stats, err := e.EnrichAll(context.Background(), orders, nil)
	require.NoError(t, err)

	assert.Equal(t, Stats{Attempted: 2, Skipped: 2}, stats)
	assert.Equal(t, 1, fetcher.calls[detailsURL])
}

func TestEnrichAllStopsOnCancel(t *testing.T) {
	fetcher := &countingFetcher{err: errors.New("unreachable")}
	e, err := New(fetcher, 0, nil, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = e.EnrichAll(ctx, []models.Order{twoItemOrder()}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fetcher.calls[detailsURL])
}
