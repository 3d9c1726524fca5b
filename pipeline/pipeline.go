// Package pipeline runs the terminal stages of an export: detail enrichment, serialization
// and delivery.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aluiziolira/go-scrape-orders/enricher"
	"github.com/aluiziolira/go-scrape-orders/metrics"
	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/parser"
	"github.com/aluiziolira/go-scrape-orders/progress"
)

// Progress band boundaries of the terminal stages.
const (
	EnrichStart    = 80
	EnrichEnd      = 90
	SerializeStart = 95
	Complete       = 100
)

// ErrNoSink is returned when a Finisher has nowhere to deliver the export.
var ErrNoSink = errors.New("pipeline: no sink configured")

// DetailEnricher resolves prices and promotions from detail pages.
type DetailEnricher interface {
	EnrichAll(ctx context.Context, orders []models.Order, onProgress func(done, total int)) (enricher.Stats, error)
}

// Finisher turns the collected orders into a delivered export.
type Finisher struct {
	enricher DetailEnricher
	sink     Sink
	product  string
	progress *progress.Channel
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewFinisher builds a finisher. A nil enricher skips the detail pass.
func NewFinisher(e DetailEnricher, sink Sink, product string, ch *progress.Channel, m *metrics.Metrics, log zerolog.Logger) *Finisher {
	return &Finisher{
		enricher: e,
		sink:     sink,
		product:  product,
		progress: ch,
		metrics:  m,
		log:      log.With().Str("component", "finisher").Logger(),
		now:      time.Now,
	}
}

// WithClock overrides the clock used for file names.
func (f *Finisher) WithClock(now func() time.Time) *Finisher {
	f.now = now
	return f
}

// Finish runs Enrich and Deliver back to back.
func (f *Finisher) Finish(ctx context.Context, orders []models.Order, format string) (models.ExportResult, error) {
	prepared, stats, err := f.Enrich(ctx, orders)
	if err != nil {
		return models.ExportResult{}, err
	}
	result, err := f.Deliver(ctx, prepared, format)
	result.EnrichedCount = stats.Enriched
	result.SkippedFetches = stats.Skipped
	return result, err
}

// Enrich drops invalid and repeated orders, then resolves details for the rest. Failed fetches
// never fail the export; only cancellation does.
func (f *Finisher) Enrich(ctx context.Context, orders []models.Order) ([]models.Order, enricher.Stats, error) {
	prepared := f.prepare(orders)
	if f.enricher == nil {
		return prepared, enricher.Stats{}, nil
	}

	f.notify(EnrichStart, "Fetching order details")
	stats, err := f.enricher.EnrichAll(ctx, prepared, func(done, total int) {
		f.notify(EnrichStart+(EnrichEnd-EnrichStart)*done/total, fmt.Sprintf("Fetching order details (%d/%d)", done, total))
	})
	if err != nil {
		return prepared, stats, fmt.Errorf("enrich orders: %w", err)
	}
	return prepared, stats, nil
}

// Deliver serializes orders and hands the payload to the sink.
func (f *Finisher) Deliver(ctx context.Context, orders []models.Order, format string) (models.ExportResult, error) {
	result := models.ExportResult{OrderCount: len(orders)}
	for _, o := range orders {
		result.ItemCount += len(o.Items)
	}
	if f.sink == nil {
		return result, ErrNoSink
	}

	f.notify(SerializeStart, fmt.Sprintf("Generating %s file", strings.ToUpper(format)))
	payload, err := Serialize(format, orders, f.product, f.now())
	if err != nil {
		return result, err
	}
	result.FileName = payload.FileName

	location, err := f.sink.Deliver(ctx, payload)
	if err != nil {
		return result, fmt.Errorf("deliver %s: %w", payload.FileName, err)
	}
	result.Location = location
	result.EndTime = f.now()

	f.notify(Complete, fmt.Sprintf("Export complete: %d orders", result.OrderCount))
	f.log.Info().
		Str("file", payload.FileName).
		Str("location", location).
		Int("orders", result.OrderCount).
		Int("bytes", len(payload.Content)).
		Msg("export delivered")
	return result, nil
}

// prepare drops records that fail validation and repeated order ids, keeping source order.
func (f *Finisher) prepare(orders []models.Order) []models.Order {
	seen := make(map[string]struct{}, len(orders))
	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		if err := parser.ValidateOrder(&o); err != nil {
			f.metrics.IncSkipped("invalid_record")
			f.log.Warn().Err(err).Str("order_id", o.OrderID).Msg("dropping invalid order")
			continue
		}
		if _, ok := seen[o.OrderID]; ok {
			f.metrics.IncSkipped("duplicate_order")
			continue
		}
		seen[o.OrderID] = struct{}{}
		out = append(out, o)
	}
	return out
}

func (f *Finisher) notify(percent int, message string) {
	f.metrics.SetProgress(percent)
	if outcome := f.progress.Notify(progress.Update{Percent: percent, Message: message}); outcome == progress.NoListener {
		f.log.Debug().Int("percent", percent).Str("message", message).Msg("progress")
	}
}
