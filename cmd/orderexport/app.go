package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-orders/config"
	"github.com/aluiziolira/go-scrape-orders/coordinator"
	"github.com/aluiziolira/go-scrape-orders/enricher"
	"github.com/aluiziolira/go-scrape-orders/logger"
	"github.com/aluiziolira/go-scrape-orders/metrics"
	"github.com/aluiziolira/go-scrape-orders/pipeline"
	"github.com/aluiziolira/go-scrape-orders/progress"
	"github.com/aluiziolira/go-scrape-orders/scraper"
	"github.com/aluiziolira/go-scrape-orders/session"
	"github.com/aluiziolira/go-scrape-orders/state"
)

// app holds what every command needs once configuration is resolved.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	metrics *metrics.Metrics
	store   state.Store
	keyring session.Keyring
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("apply flags: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	store, err := state.Open(cfg.State.Backend, cfg.State.Path, cfg.State.Slot, log)
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	return &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		store:   store,
		keyring: session.NewKeyring(cfg.Session),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("close state")
	}
}

// deps returns the collaborators needed to inspect stored progress without touching the network.
func (a *app) deps() coordinator.Deps {
	return coordinator.Deps{
		Config:  a.cfg,
		Store:   a.store,
		Metrics: a.metrics,
		Log:     a.log,
	}
}

// runner wires the signed-in session, the listing navigator, the detail enricher and the
// output sinks into a coordinator runner.
func (a *app) runner() (*coordinator.Runner, error) {
	cookie, err := session.Resolve(a.cfg.Session, a.keyring)
	if err != nil {
		return nil, err
	}
	jar, err := session.NewJar(a.cfg.Catalog.BaseURL, cookie)
	if err != nil {
		return nil, err
	}

	nav, err := scraper.NewNavigator(a.cfg, jar, a.metrics, a.log)
	if err != nil {
		return nil, fmt.Errorf("create navigator: %w", err)
	}
	fetcher, err := enricher.NewHTTPFetcher(a.cfg, jar, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("create detail fetcher: %w", err)
	}
	details, err := enricher.New(fetcher, a.cfg.Timing.DetailDelay, a.metrics, a.log)
	if err != nil {
		return nil, fmt.Errorf("create enricher: %w", err)
	}
	sink, err := a.sink()
	if err != nil {
		return nil, err
	}

	ch := progress.NewChannel(func(u progress.Update) {
		a.log.Info().Int("percent", u.Percent).Msg(u.Message)
	})
	finisher := pipeline.NewFinisher(details, sink, a.cfg.Catalog.ProductName, ch, a.metrics, a.log)

	deps := a.deps()
	deps.Finisher = finisher
	deps.Progress = ch
	return coordinator.NewRunner(deps, nav), nil
}

func (a *app) sink() (pipeline.Sink, error) {
	var sinks []pipeline.Sink
	if a.cfg.Output.Dir != "" {
		sinks = append(sinks, pipeline.NewFileSink(a.cfg.Output.Dir))
	}
	if a.cfg.Output.S3.Bucket != "" {
		objects, err := pipeline.NewObjectSink(a.cfg.Output.S3)
		if err != nil {
			return nil, fmt.Errorf("create object sink: %w", err)
		}
		sinks = append(sinks, objects)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return pipeline.NewMultiSink(sinks...), nil
}

// serveMetrics starts the Prometheus endpoint when an address is configured and returns the
// function that stops it.
func (a *app) serveMetrics() func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	server := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           promhttp.HandlerFor(a.metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	a.log.Info().Str("addr", a.cfg.MetricsAddr).Msg("metrics server enabled")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.log.Error().Err(err).Msg("metrics server shutdown failed")
		}
	}
}
