package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-orders/coordinator"
	"github.com/aluiziolira/go-scrape-orders/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored export progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		c := coordinator.New(a.deps())
		rec, err := c.Status(cmd.Context())
		if err != nil {
			return err
		}
		if rec == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No export in progress.")
			return nil
		}
		target, err := c.PendingTarget(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Field", "Value"})
		t.AppendRows(statusRows(rec, target))
		t.Render()
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Discard the stored export progress",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.store.Delete(cmd.Context()); err != nil {
			return err
		}
		a.log.Info().Str("slot", a.cfg.State.Slot).Msg("stored export discarded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func statusRows(rec *state.Continuation, target string) []table.Row {
	rangeText := "all years"
	if !rec.Options.ExportAll {
		rangeText = fmt.Sprintf("%s .. %s", orDash(rec.Options.StartDate), orDash(rec.Options.EndDate))
	}
	year := rec.CurrentYear()
	if year == "" {
		year = "done, awaiting delivery"
	}
	return []table.Row{
		{"Format", rec.Options.Format},
		{"Range", rangeText},
		{"Years", strings.Join(rec.YearsToProcess, ", ")},
		{"Current year", fmt.Sprintf("%s (%d of %d)", year, min(rec.CurrentYearIndex+1, len(rec.YearsToProcess)), len(rec.YearsToProcess))},
		{"Start index", rec.CurrentStartIndex},
		{"Pages scraped", rec.PagesScraped},
		{"Orders collected", len(rec.CollectedOrders)},
		{"Next page", orDash(target)},
		{"Started", rec.StartedAt.Format(time.RFC3339)},
		{"Updated", rec.UpdatedAt.Format(time.RFC3339)},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
