package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "0.3.0"
	gitCommit = "unknown"

	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "orderexport",
	Short: "Export your order history to JSON or CSV",
	Long: `orderexport walks the order history listing of a signed-in account year by year,
collects every order card, resolves item prices and promotions from the order detail
pages and writes the result as a single JSON or CSV file.

Progress is stored after every listing page, so an interrupted export continues where
it stopped on the next 'export' or 'resume'.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, gitCommit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default ./orderexport.yaml or the user config dir)")
	flags.String("base-url", "", "order history listing URL")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "auto", "log format (auto, console, json)")
	flags.String("metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.String("state-backend", "file", "where progress is stored (file, sqlite, memory)")
	flags.String("state-path", "", "state directory, or database file for sqlite")
	flags.String("state-slot", "", "name of the progress slot")

	rootCmd.SetVersionTemplate(`orderexport {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
