package enricher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aluiziolira/go-scrape-orders/config"
	"github.com/aluiziolira/go-scrape-orders/metrics"
	"github.com/aluiziolira/go-scrape-orders/scraper"
)

// ErrUnexpectedStatus is returned for detail pages answered with a non-success status.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Fetcher retrieves the raw HTML of a detail document.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// HTTPFetcher fetches detail documents with the session cookies of the navigator.
type HTTPFetcher struct {
	client  *resty.Client
	metrics *metrics.Metrics
}

// NewHTTPFetcher builds a resty client bound to the catalog host.
func NewHTTPFetcher(cfg *config.Config, jar http.CookieJar, m *metrics.Metrics) (*HTTPFetcher, error) {
	base, err := url.Parse(cfg.Catalog.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := resty.New()
	if jar != nil {
		client.SetCookieJar(jar)
	}
	client.SetHeader("User-Agent", cfg.Session.UserAgent)
	client.SetHeader("Accept", "text/html,application/xhtml+xml")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(base.Hostname()))
	client.SetTimeout(cfg.Timing.Timeout)

	return &HTTPFetcher{client: client, metrics: m}, nil
}

// WithTransport swaps the HTTP transport, used by tests to serve fixtures.
func (f *HTTPFetcher) WithTransport(rt http.RoundTripper) {
	f.client.SetTransport(rt)
}

// Fetch performs one GET. Failures are returned as is; nothing is retried.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	start := time.Now()
	f.metrics.IncRequest("detail")
	res, err := f.client.R().
		SetContext(ctx).
		Get(target)
	f.metrics.ObserveDuration("detail", time.Since(start))
	if err != nil {
		classified := scraper.Classify(target, err, 0)
		f.metrics.IncError(scraper.Label(classified))
		return nil, classified
	}
	if !res.IsSuccess() {
		classified := scraper.Classify(target, nil, res.StatusCode())
		f.metrics.IncError(scraper.Label(classified))
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedStatus, classified)
	}
	return res.Body(), nil
}
