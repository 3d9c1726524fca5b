package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New()
	m.IncRequest("listing")
	m.IncRequest("listing")
	m.ObserveDuration("detail", 120*time.Millisecond)
	m.AddOrders(3)
	m.AddOrders(-1)
	m.IncSkipped("advertisement")
	m.IncDetailFetch("ok")
	m.SetProgress(42)

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("listing")); got != 2 {
		t.Fatalf("listing requests=%v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OrdersCollected); got != 3 {
		t.Fatalf("orders=%v, want 3", got)
	}
	if got := testutil.ToFloat64(m.Progress); got != 42 {
		t.Fatalf("progress=%v, want 42", got)
	}
	if got := testutil.CollectAndCount(m.RequestDuration); got != 1 {
		t.Fatalf("duration series=%d, want 1", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncRequest("listing")
	m.ObserveDuration("listing", time.Second)
	m.IncPages()
	m.AddOrders(1)
	m.IncSkipped("parse")
	m.IncDetailFetch("error")
	m.IncError("timeout")
	m.SetProgress(10)
}
