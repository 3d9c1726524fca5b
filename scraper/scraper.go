// Package scraper loads order listing pages with the operator's session.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"github.com/aluiziolira/go-scrape-orders/config"
	"github.com/aluiziolira/go-scrape-orders/metrics"
)

// Page is a fully loaded listing document.
type Page struct {
	URL *url.URL
	Doc *goquery.Document
}

// NewPage parses body as the document found at rawURL.
func NewPage(rawURL string, body []byte) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	doc.Url = u
	return &Page{URL: u, Doc: doc}, nil
}

// Navigator performs full page loads through a colly collector sharing the session cookie jar.
// Each Load is independent; nothing about earlier pages is kept.
type Navigator struct {
	catalog   config.CatalogConfig
	collector *colly.Collector
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewNavigator builds a navigator restricted to the catalog host.
func NewNavigator(cfg *config.Config, jar http.CookieJar, m *metrics.Metrics, log zerolog.Logger) (*Navigator, error) {
	parsed, err := url.Parse(cfg.Catalog.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.Session.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timing.Timeout)
	collector.IgnoreRobotsTxt = !cfg.Session.RespectRobotsTxt
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timing.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	if jar != nil {
		collector.SetCookieJar(jar)
	}

	return &Navigator{
		catalog:   cfg.Catalog,
		collector: collector,
		metrics:   m,
		log:       log.With().Str("component", "navigator").Logger(),
	}, nil
}

// WithTransport swaps the HTTP transport, used by tests to serve fixtures.
func (n *Navigator) WithTransport(rt http.RoundTripper) {
	n.collector.WithTransport(rt)
}

// Load fetches target and returns the parsed document together with the final URL.
func (n *Navigator) Load(ctx context.Context, target string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		body    []byte
		final   string
		status  int
		loadErr error
	)
	c := n.collector.Clone()
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		final = r.Request.URL.String()
		status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		loadErr = err
	})

	start := time.Now()
	n.metrics.IncRequest("listing")
	if err := c.Visit(target); err != nil && loadErr == nil {
		loadErr = err
	}
	n.metrics.ObserveDuration("listing", time.Since(start))

	if loadErr != nil || status >= http.StatusBadRequest {
		classified := Classify(target, loadErr, status)
		n.metrics.IncError(Label(classified))
		n.log.Error().Err(classified).Str("url", target).Int("status", status).Msg("page load failed")
		return nil, classified
	}

	if !OnCatalog(n.catalog, final) {
		n.metrics.IncError(Label(ErrSignedOut))
		return nil, fmt.Errorf("%w: landed on %s", ErrSignedOut, final)
	}

	page, err := NewPage(final, body)
	if err != nil {
		return nil, err
	}
	n.log.Debug().Str("url", final).Int("bytes", len(body)).Dur("took", time.Since(start)).Msg("page loaded")
	return page, nil
}
