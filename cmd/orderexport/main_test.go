package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/state"
)

func TestStatusWithoutExport(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"status", "--state-backend", "memory", "--log-level", "error"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "No export in progress.")
}

func TestStatusRows(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := state.NewContinuation(models.ExportOptions{Format: "csv", StartDate: "2024-01-01"}, []string{"2024", "2025"}, "https://example.test/orders", started)
	rec.CurrentYearIndex = 1
	rec.CurrentStartIndex = 20

	rows := statusRows(rec, "https://example.test/orders?startIndex=20")
	got := map[string]any{}
	for _, row := range rows {
		got[row[0].(string)] = row[1]
	}
	assert.Equal(t, "2024-01-01 .. -", got["Range"])
	assert.Equal(t, "2025 (2 of 2)", got["Current year"])
	assert.Equal(t, 20, got["Start index"])
	assert.Equal(t, 0, got["Orders collected"])

	rec.CurrentYearIndex = 2
	rows = statusRows(rec, "")
	for _, row := range rows {
		if row[0] == "Current year" {
			assert.Equal(t, "done, awaiting delivery (2 of 2)", row[1])
		}
		if row[0] == "Next page" {
			assert.Equal(t, "-", row[1])
		}
	}
}

func TestReadLine(t *testing.T) {
	line, err := readLine(strings.NewReader("  session-id=abc; x=1 \n"))
	require.NoError(t, err)
	assert.Equal(t, "session-id=abc; x=1", line)

	_, err = readLine(strings.NewReader("\n"))
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, &models.ExportResult{
		OrderCount:     3,
		ItemCount:      5,
		SkippedFetches: 1,
		FileName:       "amazon-orders-2026-03-01.json",
		Location:       "output/amazon-orders-2026-03-01.json",
	}, 1500*time.Millisecond)

	text := out.String()
	assert.Contains(t, text, "Export complete")
	assert.Contains(t, text, "Orders:        3")
	assert.Contains(t, text, "1 detail pages could not be fetched")
	assert.Contains(t, text, "output/amazon-orders-2026-03-01.json")
}
