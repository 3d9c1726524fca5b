package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aluiziolira/go-scrape-orders/models"
	"github.com/aluiziolira/go-scrape-orders/scraper"
)

// ErrNavigationLoop is returned when a loaded listing is not the one that was requested,
// typically because the site redirected it elsewhere.
var ErrNavigationLoop = errors.New("listing did not load as requested")

// PageLoader performs one full page load.
type PageLoader interface {
	Load(ctx context.Context, target string) (*scraper.Page, error)
}

// Runner plays the part of the browser tab: it loads each navigation target and hands the
// page to a brand-new Coordinator.
type Runner struct {
	deps   Deps
	loader PageLoader
	log    zerolog.Logger
}

// NewRunner returns a runner sharing deps across page loads.
func NewRunner(deps Deps, loader PageLoader) *Runner {
	return &Runner{
		deps:   deps,
		loader: loader,
		log:    deps.Log.With().Str("component", "runner").Logger(),
	}
}

// Run starts an export, or continues the one in progress. With restart set any stored record
// is dropped first.
func (r *Runner) Run(ctx context.Context, opts models.ExportOptions, restart bool) (Action, error) {
	if restart {
		if err := r.deps.Store.Delete(ctx); err != nil {
			return Action{State: Aborted}, fmt.Errorf("clear continuation: %w", err)
		}
		r.log.Info().Msg("stored export discarded")
	}

	if action, err := r.Resume(ctx); !errors.Is(err, ErrNotRunning) {
		return action, err
	}

	page, err := r.loader.Load(ctx, r.deps.Config.Catalog.BaseURL)
	if err != nil {
		return Action{State: Idle}, fmt.Errorf("load start page: %w", err)
	}
	action, err := New(r.deps).Start(ctx, page, opts)
	if err != nil {
		return action, err
	}
	return r.drive(ctx, action)
}

// Resume continues a stored export. It returns ErrNotRunning when there is none.
func (r *Runner) Resume(ctx context.Context) (Action, error) {
	c := New(r.deps)
	target, err := c.PendingTarget(ctx)
	if err != nil {
		return Action{State: Idle}, err
	}
	if target == "" {
		action, err := c.Resume(ctx, nil)
		if err != nil {
			return action, err
		}
		return r.drive(ctx, action)
	}
	r.log.Info().Str("target", target).Msg("resuming stored export")
	return r.drive(ctx, Action{State: AwaitingNavigation, Target: target})
}

func (r *Runner) drive(ctx context.Context, action Action) (Action, error) {
	for action.State == AwaitingNavigation {
		page, err := r.loader.Load(ctx, action.Target)
		if err != nil {
			return action, fmt.Errorf("load %s: %w", action.Target, err)
		}
		next, err := New(r.deps).Resume(ctx, page)
		if err != nil {
			return next, err
		}
		if next.State == AwaitingNavigation && next.Target == action.Target {
			return next, fmt.Errorf("%w: %s", ErrNavigationLoop, action.Target)
		}
		action = next
	}
	return action, nil
}
