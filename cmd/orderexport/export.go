package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-orders/coordinator"
	"github.com/aluiziolira/go-scrape-orders/models"
)

var (
	exportFormat  string
	exportStart   string
	exportEnd     string
	exportAll     bool
	exportRestart bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export orders for a date range or the whole history",
	Long: `Export orders to a JSON or CSV file.

Without --all only the years overlapping --start and --end are walked, and orders whose
date falls outside the range are dropped. If an export is already stored it is continued;
use --restart to discard it and begin again.`,
	Example: `  # Everything, as JSON
  orderexport export --all

  # One year as CSV, written to ./exports
  orderexport export --format csv --start 2024-01-01 --end 2024-12-31 --output ./exports

  # Drop the stored progress and start over
  orderexport export --all --restart`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := models.ExportOptions{
			Format:    strings.ToLower(strings.TrimSpace(exportFormat)),
			StartDate: strings.TrimSpace(exportStart),
			EndDate:   strings.TrimSpace(exportEnd),
			ExportAll: exportAll,
		}
		if !opts.ExportAll && opts.StartDate == "" && opts.EndDate == "" {
			return errors.New("pass --all or at least one of --start and --end")
		}
		return runExport(cmd, func(ctx context.Context, r *coordinator.Runner) (coordinator.Action, error) {
			return r.Run(ctx, opts, exportRestart)
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue the stored export",
	Long: `Continue the export recorded in the state slot from the listing page it stopped on.
If every year was already scraped only enrichment and delivery run again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cmd, func(ctx context.Context, r *coordinator.Runner) (coordinator.Action, error) {
			return r.Resume(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(resumeCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", models.FormatJSON, "output format (json or csv)")
	exportCmd.Flags().StringVar(&exportStart, "start", "", "first order date to include (YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportEnd, "end", "", "last order date to include (YYYY-MM-DD)")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "export every year regardless of dates")
	exportCmd.Flags().BoolVar(&exportRestart, "restart", false, "discard stored progress before starting")

	for _, cmd := range []*cobra.Command{exportCmd, resumeCmd} {
		addRunFlags(cmd)
	}
}

// addRunFlags registers the flags shared by every command that talks to the site.
func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("cookie", "", "Cookie header of a signed-in browser session")
	flags.StringP("output", "o", "", "directory the export file is written to")
	flags.String("product", "", "product name used in the file name")
	flags.String("user-agent", "", "User-Agent sent with every request")
	flags.Int("max-pages", 0, "maximum listing pages per year")
	flags.Duration("settle-delay", 0, "wait after each listing load")
	flags.Duration("detail-delay", 0, "minimum gap between detail page requests")
	flags.Duration("timeout", 0, "per-request timeout")
	flags.Bool("respect-robots", false, "honour robots.txt for listing pages")
	flags.String("s3-endpoint", "", "S3-compatible endpoint to upload the export to")
	flags.String("s3-bucket", "", "bucket for the uploaded export")
	flags.String("s3-prefix", "", "object key prefix for the uploaded export")
}

func runExport(cmd *cobra.Command, run func(context.Context, *coordinator.Runner) (coordinator.Action, error)) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.runner()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		a.log.Info().Msg("shutdown signal received, progress is kept for 'resume'")
	}()

	stopMetrics := a.serveMetrics()
	defer stopMetrics()

	started := time.Now()
	action, err := run(ctx, runner)
	if errors.Is(err, coordinator.ErrNotRunning) {
		return errors.New("no export stored; start one with 'export'")
	}
	if err != nil {
		a.log.Error().Err(err).Str("state", action.State.String()).Msg("export stopped")
		return err
	}
	if action.State != coordinator.Done || action.Result == nil {
		return fmt.Errorf("export ended in state %s", action.State)
	}

	printSummary(cmd.OutOrStdout(), action.Result, time.Since(started))
	return nil
}
