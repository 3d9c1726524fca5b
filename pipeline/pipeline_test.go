package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-orders/enricher"
	"github.com/aluiziolira/go-scrape-orders/metrics"
	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/progress"
)

type memorySink struct {
	delivered []Payload
	err       error
}

func (m *memorySink) Deliver(_ context.Context, p Payload) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.delivered = append(m.delivered, p)
	return "memory://" + p.FileName, nil
}

type stubEnricher struct {
	seen  int
	stats enricher.Stats
	err   error
}

func (s *stubEnricher) EnrichAll(_ context.Context, orders []models.Order, onProgress func(done, total int)) (enricher.Stats, error) {
	s.seen = len(orders)
	if s.err != nil {
		return enricher.Stats{}, s.err
	}
	for i := 1; i <= 2; i++ {
		onProgress(i, 2)
	}
	return s.stats, nil
}

func TestFinisherFinish(t *testing.T) {
	sink := &memorySink{}
	stub := &stubEnricher{stats: enricher.Stats{Attempted: 2, Enriched: 1, Skipped: 1}}
	var updates []progress.Update
	ch := progress.NewChannel(func(u progress.Update) { updates = append(updates, u) })

	orders := sampleOrders()
	orders = append(orders, orders[0], models.Order{OrderID: "not-an-order"})

	f := NewFinisher(stub, sink, "amazon", ch, metrics.New(), zerolog.Nop()).WithClock(func() time.Time { return exportDay })
	result, err := f.Finish(context.Background(), orders, models.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, 3, stub.seen, "invalid and repeated orders are dropped before enrichment")
	assert.Equal(t, 3, result.OrderCount)
	assert.Equal(t, 3, result.ItemCount)
	assert.Equal(t, 1, result.EnrichedCount)
	assert.Equal(t, 1, result.SkippedFetches)
	assert.Equal(t, "amazon-orders-2024-03-09.csv", result.FileName)
	assert.Equal(t, "memory://amazon-orders-2024-03-09.csv", result.Location)
	require.Len(t, sink.delivered, 1)
	assert.Equal(t, "text/csv", sink.delivered[0].MimeType)

	var percents []int
	for _, u := range updates {
		percents = append(percents, u.Percent)
	}
	assert.Equal(t, []int{80, 85, 90, 95, 100}, percents)
}

func TestFinisherWithoutEnricher(t *testing.T) {
	sink := &memorySink{}
	f := NewFinisher(nil, sink, "amazon", nil, nil, zerolog.Nop()).WithClock(func() time.Time { return exportDay })

	result, err := f.Finish(context.Background(), sampleOrders(), models.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "amazon-orders-2024-03-09.json", result.FileName)
}

func TestFinisherErrors(t *testing.T) {
	_, err := NewFinisher(nil, nil, "amazon", nil, nil, zerolog.Nop()).Finish(context.Background(), nil, models.FormatJSON)
	assert.ErrorIs(t, err, ErrNoSink)

	deliverErr := errors.New("disk full")
	_, err = NewFinisher(nil, &memorySink{err: deliverErr}, "amazon", nil, nil, zerolog.Nop()).
		Finish(context.Background(), sampleOrders(), models.FormatJSON)
	assert.ErrorIs(t, err, deliverErr)

	_, err = NewFinisher(&stubEnricher{err: context.Canceled}, &memorySink{}, "amazon", nil, nil, zerolog.Nop()).
		Finish(context.Background(), sampleOrders(), models.FormatJSON)
	assert.ErrorIs(t, err, context.Canceled)
}
