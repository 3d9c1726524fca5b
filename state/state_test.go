package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-orders/models"
)

func sampleContinuation() *Continuation {
	c := NewContinuation(models.ExportOptions{Format: models.FormatCSV, StartDate: "2023-01-01", EndDate: "2024-12-31"},
		[]string{"2024", "2023"}, "https://shop.example.com/your-orders/orders",
		time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	c.CurrentYearIndex = 1
	c.CurrentStartIndex = 20
	c.Merge([]models.Order{
		{OrderID: "123-4567890-1234567", OrderDate: "2023-06-01", TotalAmount: decimal.RequireFromString("49.99"), Currency: "EUR"},
		{OrderID: "123-4567890-7654321", OrderDate: "2023-05-01", TotalAmount: decimal.RequireFromString("19.99"), Currency: "USD"},
	})
	return c
}

func TestContinuationRoundTrip(t *testing.T) {
	original := sampleContinuation()

	data, err := Encode(original)
	require.NoError(t, err)
	restored, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, original.YearsToProcess, restored.YearsToProcess)
	assert.Equal(t, original.CurrentYearIndex, restored.CurrentYearIndex)
	assert.Equal(t, original.CurrentStartIndex, restored.CurrentStartIndex)
	assert.Equal(t, original.Options, restored.Options)
	assert.Equal(t, original.SeenOrderIDs, restored.SeenOrderIDs)
	require.Len(t, restored.CollectedOrders, 2)
	assert.True(t, restored.CollectedOrders[0].TotalAmount.Equal(decimal.RequireFromString("49.99")))
	assert.NoError(t, restored.Validate(10))
}

func TestContinuationMergeDeduplicates(t *testing.T) {
	c := sampleContinuation()
	added := c.Merge([]models.Order{
		{OrderID: "123-4567890-1234567"},
		{OrderID: "123-4567890-0000001"},
		{OrderID: "123-4567890-0000001"},
	})
	assert.Equal(t, 1, added)
	assert.Len(t, c.CollectedOrders, 3)
	assert.Len(t, c.SeenOrderIDs, 3)
}

func TestContinuationValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Continuation)
	}{
		{name: "no years", mutate: func(c *Continuation) { c.YearsToProcess = nil }},
		{name: "misaligned offset", mutate: func(c *Continuation) { c.CurrentStartIndex = 15 }},
		{name: "negative year index", mutate: func(c *Continuation) { c.CurrentYearIndex = -1 }},
		{name: "seen set drift", mutate: func(c *Continuation) { c.SeenOrderIDs.Add("999-9999999-9999999") }},
		{name: "wrong version", mutate: func(c *Continuation) { c.Version = 99 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleContinuation()
			tt.mutate(c)
			assert.Error(t, c.Validate(10))
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	for _, input := range []string{"", "{not json", `{"version": 7}`, `[]`} {
		_, err := Decode([]byte(input))
		assert.ErrorIs(t, err, ErrCorrupt, "input %q", input)
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"file": func(t *testing.T) Store {
			s, err := NewFileStore(filepath.Join(dir, "file"), "order-export", zerolog.Nop())
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(dir, "state.db"), "order-export", zerolog.Nop())
			require.NoError(t, err)
			return s
		},
	}

	for name, build := range stores {
		t.Run(name, func(t *testing.T) {
			store := build(t)
			defer store.Close()

			got, err := store.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got, "empty slot loads as nil")

			original := sampleContinuation()
			require.NoError(t, store.Save(ctx, original))
			original.CurrentStartIndex = 30
			require.NoError(t, store.Save(ctx, original))

			got, err = store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, 30, got.CurrentStartIndex)
			assert.Len(t, got.CollectedOrders, 2)

			require.NoError(t, store.Delete(ctx))
			require.NoError(t, store.Delete(ctx), "deleting an empty slot is not an error")
			got, err = store.Load(ctx)
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestFileStoreCorruptRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "slot", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{truncated"), 0o644))

	_, err = store.Load(context.Background())
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSQLiteStoreSlotsAreIndependent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	a, err := NewSQLiteStore(path, "tab-a", zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()
	b, err := NewSQLiteStore(path, "tab-b", zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Save(ctx, sampleContinuation()))
	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, a.Close())
	assert.ErrorIs(t, a.Save(ctx, sampleContinuation()), ErrClosed)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir(), "slot", zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenSQLiteInDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store, err := Open(BackendSQLite, dir, "slot", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Save(context.Background(), sampleContinuation()))
	assert.FileExists(t, filepath.Join(dir, "state.db"))
}
