// Package enricher fetches order detail pages to resolve item prices and promotions.
package enricher

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-orders/metrics"
	"github.com/aluiziolira/go-scrape-orders/models"
)

const cacheSize = 128

// Stats summarises one enrichment pass.
type Stats struct {
	Attempted int
	Enriched  int
	Skipped   int
}

// detailPage is one visited detail document. Several listing cards of one purchase can link
// the same page; they share it, and a failed fetch is remembered so it is not repeated.
type detailPage struct {
	raw []byte
	doc *goquery.Document
	err error
	// the page's promotions belong to the purchase and go to the first order only
	promotionsClaimed bool
}

// Enricher visits detail documents one after another, pacing requests with a fixed delay.
type Enricher struct {
	fetcher Fetcher
	limiter *rate.Limiter
	pages   *lru.Cache[string, *detailPage]
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates an enricher. A zero delay disables pacing.
func New(f Fetcher, delay time.Duration, m *metrics.Metrics, log zerolog.Logger) (*Enricher, error) {
	pages, err := lru.New[string, *detailPage](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create detail cache: %w", err)
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Enricher{
		fetcher: f,
		limiter: rate.NewLimiter(limit, 1),
		pages:   pages,
		metrics: m,
		log:     log.With().Str("component", "enricher").Logger(),
	}, nil
}

// EnrichAll enriches every order that has a details URL, in order. A failed fetch skips that
// order only. onProgress, when set, is called after each attempt with the attempts so far and
// the number of orders to visit. The only error returned is cancellation of ctx.
func (e *Enricher) EnrichAll(ctx context.Context, orders []models.Order, onProgress func(done, total int)) (Stats, error) {
	var stats Stats
	total := 0
	for i := range orders {
		if orders[i].DetailsURL != "" {
			total++
		}
	}

	for i := range orders {
		o := &orders[i]
		if o.DetailsURL == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		stats.Attempted++
		if err := e.Enrich(ctx, o); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Skipped++
			e.metrics.IncDetailFetch("skipped")
			e.log.Warn().Err(err).Str("order_id", o.OrderID).Msg("detail enrichment skipped")
		} else {
			stats.Enriched++
			e.metrics.IncDetailFetch("enriched")
		}
		if onProgress != nil {
			onProgress(stats.Attempted, total)
		}
	}

	e.log.Info().
		Int("attempted", stats.Attempted).
		Int("enriched", stats.Enriched).
		Int("skipped", stats.Skipped).
		Msg("detail enrichment finished")
	return stats, nil
}

// Enrich resolves prices and promotions of one order from its detail document and reconciles
// its savings. On error the order is left untouched.
func (e *Enricher) Enrich(ctx context.Context, o *models.Order) error {
	page, err := e.page(ctx, o.DetailsURL)
	if err != nil {
		return err
	}

	for asin, price := range ParseItemPrices(page.doc, o) {
		setPrice(o, asin, price)
	}
	if missing := unpriced(o); len(missing) > 0 {
		for asin, price := range ParseRawPrices(page.raw, missing) {
			setPrice(o, asin, price)
		}
	}

	if !page.promotionsClaimed {
		page.promotionsClaimed = true
		for _, p := range ParsePromotions(page.doc) {
			o.Promotions = AddPromotion(o.Promotions, p)
		}
	}
	Reconcile(o)

	e.log.Debug().
		Str("order_id", o.OrderID).
		Int("promotions", len(o.Promotions)).
		Str("total_savings", o.TotalSavings.StringFixed(2)).
		Msg("order enriched")
	return nil
}

// page returns the detail document at target, fetching it at most once.
func (e *Enricher) page(ctx context.Context, target string) (*detailPage, error) {
	if page, ok := e.pages.Get(target); ok {
		e.log.Debug().Str("url", target).Bool("failed", page.err != nil).Msg("detail page shared")
		return page, page.err
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	raw, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		if ctx.Err() == nil {
			e.pages.Add(target, &detailPage{err: err})
		}
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		err = fmt.Errorf("parse detail page %s: %w", target, err)
		e.pages.Add(target, &detailPage{err: err})
		return nil, err
	}
	page := &detailPage{raw: raw, doc: doc}
	e.pages.Add(target, page)
	return page, nil
}

func setPrice(o *models.Order, asin string, price decimal.Decimal) {
	for i := range o.Items {
		if o.Items[i].ASIN == asin {
			o.Items[i].Price = price
			return
		}
	}
}

func unpriced(o *models.Order) []string {
	var out []string
	for _, item := range o.Items {
		if item.Price.IsZero() {
			out = append(out, item.ASIN)
		}
	}
	return out
}
