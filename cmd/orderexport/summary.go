package main

import (
	"fmt"
	"io"
	"time"

	"github.com/aluiziolira/go-scrape-orders/models"
)

func printSummary(w io.Writer, result *models.ExportResult, duration time.Duration) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Export complete")
	fmt.Fprintf(w, "  Orders:        %d\n", result.OrderCount)
	fmt.Fprintf(w, "  Items:         %d\n", result.ItemCount)
	fmt.Fprintf(w, "  Pages:         %d\n", result.PageCount)
	fmt.Fprintf(w, "  Enriched:      %d\n", result.EnrichedCount)
	if result.SkippedFetches > 0 {
		fmt.Fprintf(w, "  Skipped:       %d detail pages could not be fetched\n", result.SkippedFetches)
	}
	if !result.StartTime.IsZero() {
		fmt.Fprintf(w, "  Started:       %s\n", result.StartTime.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "  This run:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  File:          %s\n", result.FileName)
	fmt.Fprintf(w, "  Location:      %s\n", result.Location)
	fmt.Fprintln(w, separator)
}
