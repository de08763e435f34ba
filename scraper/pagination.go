package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
)

// Pagination modes.
const (
	ModeContainer = "container"
	ModeWheel     = "wheel"
	ModeEndKey    = "end_key"
)

// PaginationReport describes how lazy content was pulled in.
type PaginationReport struct {
	Mode       string
	Container  string
	Iterations int
	Converged  bool
}

// Paginator drives lazy-loaded content into the DOM.
type Paginator struct {
	Rules *rules.Rules
	Cfg   config.ScraperConfig
	Sleep SleepFunc
}

// Expand scrolls the page in place. Map-review pages scroll the first
// matching reviews container until its height stops growing or the
// iteration cap is hit, falling back to wheel scrolling when no container
// exists. Generic pages press End a fixed number of times. Errors end the
// loop early but are never returned: whatever rendered is extracted.
func (p *Paginator) Expand(ctx context.Context, page Page, variant models.Variant) PaginationReport {
	var rep PaginationReport
	if variant == models.VariantMapReview {
		idx, err := queryAction(ctx, p.Cfg.ActionTimeout, func(ctx context.Context) (int, error) {
			return page.FirstMatch(ctx, p.Rules.Containers)
		})
		if err != nil {
			slog.Debug("container lookup failed", "error", err)
			idx = -1
		}
		if idx >= 0 && idx < len(p.Rules.Containers) {
			rep = p.scrollContainer(ctx, page, p.Rules.Containers[idx])
		} else {
			rep = p.repeat(ctx, ModeWheel, p.Cfg.WheelIterations, p.Cfg.ScrollPause, func() error {
				return runAction(ctx, p.Cfg.ActionTimeout, func(ctx context.Context) error {
					return page.Wheel(ctx, float64(p.Cfg.WheelDelta))
				})
			})
		}
	} else {
		rep = p.repeat(ctx, ModeEndKey, p.Cfg.EndKeyIterations, p.Cfg.EndKeyPause, func() error {
			return runAction(ctx, p.Cfg.ActionTimeout, page.PressEnd)
		})
	}

	if p.Cfg.PostScrollPause > 0 {
		_ = p.Sleep(ctx, p.Cfg.PostScrollPause)
	}
	slog.Debug("pagination done", "mode", rep.Mode, "container", rep.Container,
		"iterations", rep.Iterations, "converged", rep.Converged)
	return rep
}

func (p *Paginator) scrollContainer(ctx context.Context, page Page, sel string) PaginationReport {
	rep := PaginationReport{Mode: ModeContainer, Container: sel}
	for rep.Iterations < p.Cfg.ContainerMaxIterations {
		before, err := p.height(ctx, page, sel)
		if err != nil || before < 0 {
			return rep
		}
		err = runAction(ctx, p.Cfg.ActionTimeout, func(ctx context.Context) error {
			return page.ScrollToBottom(ctx, sel)
		})
		if err != nil {
			return rep
		}
		rep.Iterations++
		if err := p.Sleep(ctx, p.Cfg.ScrollPause); err != nil {
			return rep
		}
		after, err := p.height(ctx, page, sel)
		if err != nil {
			return rep
		}
		if after == before {
			rep.Converged = true
			return rep
		}
	}
	return rep
}

func (p *Paginator) height(ctx context.Context, page Page, sel string) (int, error) {
	return queryAction(ctx, p.Cfg.ActionTimeout, func(ctx context.Context) (int, error) {
		return page.ScrollHeight(ctx, sel)
	})
}

// repeat runs fn n times with a pause after each, without a convergence check.
func (p *Paginator) repeat(ctx context.Context, mode string, n int, pause time.Duration, fn func() error) PaginationReport {
	rep := PaginationReport{Mode: mode}
	for i := 0; i < n; i++ {
		if err := fn(); err != nil {
			slog.Debug("scroll step failed", "mode", mode, "iteration", i, "error", err)
			return rep
		}
		rep.Iterations++
		if err := p.Sleep(ctx, pause); err != nil {
			return rep
		}
	}
	return rep
}
