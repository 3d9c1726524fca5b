// Package coordinator drives a multi-page, multi-year export across page loads. Every page
// load gets a fresh Coordinator that rebuilds its position from the persisted continuation
// record.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aluiziolira/go-scrape-orders/config"
	"github.com/aluiziolira/go-scrape-orders/enricher"
	"github.com/aluiziolira/go-scrape-orders/extractor"
	"github.com/aluiziolira/go-scrape-orders/metrics"
	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/parser"
	"github.com/aluiziolira/go-scrape-orders/progress"
	"github.com/aluiziolira/go-scrape-orders/scraper"
	"github.com/aluiziolira/go-scrape-orders/state"
)

var (
	// ErrInvalidOptions is returned for an unknown format or a malformed date.
	ErrInvalidOptions = errors.New("invalid export options")
	// ErrInvalidDateRange is returned when the start date lies after the end date.
	ErrInvalidDateRange = errors.New("start date is after end date")
	// ErrNoYears is returned when no listing year falls inside the requested range.
	ErrNoYears = errors.New("no years available to export")
	// ErrNotRunning is returned when no export is in progress.
	ErrNotRunning = errors.New("no export in progress")
)

// State is the coordinator's position within one page load.
type State int

const (
	Idle State = iota
	AwaitingNavigation
	ScrapingPage
	EnrichingDetails
	Serializing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingNavigation:
		return "awaiting_navigation"
	case ScrapingPage:
		return "scraping_page"
	case EnrichingDetails:
		return "enriching_details"
	case Serializing:
		return "serializing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Action tells the caller what to do after a page was handled.
type Action struct {
	State State
	// Target is the listing to load next when State is AwaitingNavigation.
	Target string
	// Result is set when State is Done.
	Result *models.ExportResult
}

// Finisher runs the terminal stages on the collected orders.
type Finisher interface {
	Enrich(ctx context.Context, orders []models.Order) ([]models.Order, enricher.Stats, error)
	Deliver(ctx context.Context, orders []models.Order, format string) (models.ExportResult, error)
}

// Deps are the collaborators shared by every page load.
type Deps struct {
	Config   *config.Config
	Store    state.Store
	Finisher Finisher
	Progress *progress.Channel
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	// Now and Sleep default to the real clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Coordinator handles exactly one page load.
type Coordinator struct {
	cfg      *config.Config
	store    state.Store
	finisher Finisher
	progress *progress.Channel
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	state  State
	record *state.Continuation
}

// New returns an Idle coordinator.
func New(d Deps) *Coordinator {
	c := &Coordinator{
		cfg:      d.Config,
		store:    d.Store,
		finisher: d.Finisher,
		progress: d.Progress,
		metrics:  d.Metrics,
		log:      d.Log.With().Str("component", "coordinator").Logger(),
		now:      d.Now,
		sleep:    d.Sleep,
		state:    Idle,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
	return c
}

// State reports where the coordinator is.
func (c *Coordinator) State() State {
	return c.state
}

// Resume is the entry point of every page load. Without an in-progress record it stays Idle.
// Otherwise it waits for the page to settle and scrapes it, or goes straight to the terminal
// stages when every year is done. page may be nil only in that last case.
func (c *Coordinator) Resume(ctx context.Context, page *scraper.Page) (Action, error) {
	rec, err := c.load(ctx)
	if err != nil {
		return c.idle(), err
	}
	if rec == nil || !rec.InProgress {
		return c.idle(), nil
	}
	c.record = rec

	if err := c.sleep(ctx, c.cfg.Timing.SettleDelay); err != nil {
		return Action{State: c.state}, err
	}
	if rec.Exhausted() {
		return c.finish(ctx)
	}
	return c.scrape(ctx, page)
}

// Start begins an export from the currently loaded page. An export already in progress is
// continued instead of restarted.
func (c *Coordinator) Start(ctx context.Context, page *scraper.Page, opts models.ExportOptions) (Action, error) {
	if err := validateOptions(opts); err != nil {
		return c.abort(), err
	}
	if page == nil || page.Doc == nil {
		return c.abort(), errors.New("start requires a loaded page")
	}

	existing, err := c.load(ctx)
	if err != nil {
		return c.abort(), err
	}
	if existing != nil && existing.InProgress {
		c.log.Info().
			Str("year", existing.CurrentYear()).
			Int("start_index", existing.CurrentStartIndex).
			Int("orders", len(existing.CollectedOrders)).
			Msg("resuming export in progress")
		c.record = existing
		if existing.Exhausted() {
			return c.finish(ctx)
		}
		return c.scrape(ctx, page)
	}

	years := extractor.DiscoverYears(page.Doc, c.now())
	if !opts.ExportAll {
		years = yearsInRange(years, opts.StartDate, opts.EndDate)
	}
	if len(years) == 0 {
		if err := c.store.Delete(ctx); err != nil {
			c.log.Warn().Err(err).Msg("failed to clear continuation slot")
		}
		c.notify(0, "No orders available for the selected period")
		return c.abort(), ErrNoYears
	}

	c.record = state.NewContinuation(opts, years, c.cfg.Catalog.BaseURL, c.now())
	c.log.Info().
		Strs("years", years).
		Str("format", opts.Format).
		Bool("export_all", opts.ExportAll).
		Msg("export started")
	if err := c.persist(ctx); err != nil {
		return c.abort(), err
	}
	c.notify(ScrapeStart, "Starting export")
	return c.scrape(ctx, page)
}

// Status returns the stored record, or nil when no export is running.
func (c *Coordinator) Status(ctx context.Context) (*state.Continuation, error) {
	rec, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.InProgress {
		return nil, nil
	}
	return rec, nil
}

// PendingTarget returns the listing the stored record resumes on. It is empty when only the
// terminal stages remain.
func (c *Coordinator) PendingTarget(ctx context.Context) (string, error) {
	rec, err := c.Status(ctx)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", ErrNotRunning
	}
	if rec.Exhausted() {
		return "", nil
	}
	return c.target(rec)
}

// scrape extracts the page when it is the listing the record points at; any other page only
// yields a navigation to that listing.
func (c *Coordinator) scrape(ctx context.Context, page *scraper.Page) (Action, error) {
	rec := c.record
	target, err := c.target(rec)
	if err != nil {
		return c.abort(), err
	}
	listing := scraper.Listing{Year: rec.CurrentYear(), StartIndex: rec.CurrentStartIndex}
	if page == nil || page.URL == nil || !scraper.SameListing(c.cfg.Catalog, page.URL.String(), listing) {
		return c.navigate(target), nil
	}

	c.state = ScrapingPage
	pageSize := c.cfg.Catalog.PageSize
	pageNumber := rec.CurrentStartIndex/pageSize + 1
	c.notify(ScrapeProgress(rec.CurrentYearIndex, rec.CurrentStartIndex, pageSize, len(rec.YearsToProcess)),
		fmt.Sprintf("Scraping %s, page %d", listing.Year, pageNumber))

	result := extractor.ExtractOrders(page.Doc, extractor.Options{
		StartDate:       rec.Options.StartDate,
		EndDate:         rec.Options.EndDate,
		AcceptAll:       rec.Options.ExportAll,
		Seen:            rec.SeenOrderIDs,
		BaseURL:         page.URL,
		DefaultCurrency: c.cfg.Catalog.DefaultCurrency,
	})
	for _, skip := range result.Skipped {
		c.metrics.IncSkipped(skip.Reason)
		c.log.Warn().Err(skip.Err).Int("container", skip.Index).Str("reason", skip.Reason).Msg("order container skipped")
	}
	added := rec.Merge(result.Orders)
	rec.PagesScraped++
	c.metrics.IncPages()
	c.metrics.AddOrders(added)
	c.log.Info().
		Str("year", listing.Year).
		Int("page", pageNumber).
		Int("parsed", result.Parsed).
		Int("added", added).
		Int("duplicates", result.Duplicates).
		Int("out_of_range", result.OutOfRange).
		Int("total", len(rec.CollectedOrders)).
		Msg("page scraped")

	hasNext := extractor.HasNextPage(page.Doc) && result.Parsed > 0
	if hasNext && pageNumber >= c.cfg.Catalog.MaxPagesPerYear {
		c.log.Warn().Str("year", listing.Year).Int("pages", pageNumber).Msg("page limit reached, moving to next year")
		hasNext = false
	}
	if hasNext {
		rec.CurrentStartIndex += pageSize
	} else {
		rec.CurrentYearIndex++
		rec.CurrentStartIndex = 0
	}

	if rec.Exhausted() {
		return c.finish(ctx)
	}
	if err := c.persist(ctx); err != nil {
		return c.abort(), err
	}
	next, err := c.target(rec)
	if err != nil {
		return c.abort(), err
	}
	return c.navigate(next), nil
}

// finish enriches, serializes and delivers, then clears the record. On failure the record is
// kept so a later resume retries the terminal stages without scraping again.
func (c *Coordinator) finish(ctx context.Context) (Action, error) {
	rec := c.record
	if err := c.persist(ctx); err != nil {
		return c.abort(), err
	}

	c.state = EnrichingDetails
	c.notify(EnrichStart, fmt.Sprintf("Processing %d orders", len(rec.CollectedOrders)))
	orders, stats, err := c.finisher.Enrich(ctx, rec.CollectedOrders)
	if err != nil {
		return c.abort(), err
	}

	c.state = Serializing
	result, err := c.finisher.Deliver(ctx, orders, rec.Options.Format)
	if err != nil {
		return c.abort(), err
	}
	result.StartTime = rec.StartedAt
	result.PageCount = rec.PagesScraped
	result.EnrichedCount = stats.Enriched
	result.SkippedFetches = stats.Skipped

	if err := c.store.Delete(ctx); err != nil {
		return c.abort(), fmt.Errorf("clear continuation: %w", err)
	}
	c.state = Done
	c.log.Info().
		Int("orders", result.OrderCount).
		Int("pages", result.PageCount).
		Str("file", result.FileName).
		Msg("export finished")
	return Action{State: Done, Result: &result}, nil
}

// load reads the record. A corrupt or inconsistent record is logged, cleared and treated as
// absent.
func (c *Coordinator) load(ctx context.Context) (*state.Continuation, error) {
	rec, err := c.store.Load(ctx)
	if errors.Is(err, state.ErrCorrupt) {
		c.discard(ctx, err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load continuation: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	if err := rec.Validate(c.cfg.Catalog.PageSize); err != nil {
		c.discard(ctx, err)
		return nil, nil
	}
	return rec, nil
}

func (c *Coordinator) discard(ctx context.Context, cause error) {
	c.log.Warn().Err(cause).Msg("discarding unusable continuation record")
	c.metrics.IncError("corrupt_state")
	if err := c.store.Delete(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear continuation slot")
	}
}

func (c *Coordinator) persist(ctx context.Context) error {
	c.record.UpdatedAt = c.now()
	if err := c.store.Save(ctx, c.record); err != nil {
		return fmt.Errorf("save continuation: %w", err)
	}
	return nil
}

func (c *Coordinator) target(rec *state.Continuation) (string, error) {
	return scraper.ListingURL(c.cfg.Catalog, scraper.Listing{Year: rec.CurrentYear(), StartIndex: rec.CurrentStartIndex})
}

func (c *Coordinator) navigate(target string) Action {
	c.state = AwaitingNavigation
	c.log.Debug().Str("target", target).Msg("navigating")
	return Action{State: AwaitingNavigation, Target: target}
}

func (c *Coordinator) idle() Action {
	c.state = Idle
	return Action{State: Idle}
}

func (c *Coordinator) abort() Action {
	c.state = Aborted
	return Action{State: Aborted}
}

func (c *Coordinator) notify(percent int, message string) {
	c.metrics.SetProgress(percent)
	c.progress.Notify(progress.Update{Percent: percent, Message: message})
}

func validateOptions(opts models.ExportOptions) error {
	if opts.Format != models.FormatJSON && opts.Format != models.FormatCSV {
		return fmt.Errorf("%w: unsupported format %q", ErrInvalidOptions, opts.Format)
	}
	start, err := parser.ParseISODate(opts.StartDate)
	if err != nil {
		return fmt.Errorf("%w: start date: %v", ErrInvalidOptions, err)
	}
	end, err := parser.ParseISODate(opts.EndDate)
	if err != nil {
		return fmt.Errorf("%w: end date: %v", ErrInvalidOptions, err)
	}
	if !opts.ExportAll && !start.IsZero() && !end.IsZero() && start.After(end) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidDateRange, opts.StartDate, opts.EndDate)
	}
	return nil
}

// yearsInRange keeps the years overlapping [start, end]; empty bounds are open.
func yearsInRange(years []string, start, end string) []string {
	first, last := 0, 9999
	if len(start) >= 4 {
		if y, err := strconv.Atoi(start[:4]); err == nil {
			first = y
		}
	}
	if len(end) >= 4 {
		if y, err := strconv.Atoi(end[:4]); err == nil {
			last = y
		}
	}
	var out []string
	for _, token := range years {
		y, err := strconv.Atoi(token)
		if err != nil || y < first || y > last {
			continue
		}
		out = append(out, token)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
