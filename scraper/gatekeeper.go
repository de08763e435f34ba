package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/rules"
)

// Outcome is the result of a best-effort step.
type Outcome int

const (
	Performed Outcome = iota
	SkippedAbsent
	SkippedFailed
)

func (o Outcome) String() string {
	switch o {
	case Performed:
		return "performed"
	case SkippedAbsent:
		return "skipped_absent"
	default:
		return "skipped_failed"
	}
}

// OptionalStep is an operation whose failure or missing target is
// expected. It runs under its own timeout and pauses after success.
type OptionalStep struct {
	Name    string
	Timeout time.Duration
	Pause   time.Duration
	Run     func(ctx context.Context) error
}

// Do runs the step. Nothing escapes: errors and panics become
// SkippedFailed, ErrAbsent becomes SkippedAbsent.
func (s OptionalStep) Do(ctx context.Context, sleep SleepFunc) (out Outcome) {
	defer func() {
		if p := recover(); p != nil {
			slog.Debug("optional step panicked", "step", s.Name, "panic", fmt.Sprint(p))
			out = SkippedFailed
		}
	}()

	stepCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	err := s.Run(stepCtx)
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, ErrAbsent):
		return SkippedAbsent
	default:
		slog.Debug("optional step failed", "step", s.Name, "error", err)
		return SkippedFailed
	}

	if s.Pause > 0 {
		_ = sleep(ctx, s.Pause)
	}
	return Performed
}

// StepReport records what one gate did.
type StepReport struct {
	Step    string
	Outcome Outcome
}

// GateKeeper clears the UI between a loaded map-review page and its
// reviews: consent dialog, reviews tab, review expansion.
type GateKeeper struct {
	Rules *rules.Rules
	Cfg   config.ScraperConfig
	Sleep SleepFunc
}

// Steps returns the gates in order. Targets with no labels are skipped.
func (g *GateKeeper) Steps(page Page) []OptionalStep {
	click := func(t rules.Target) func(context.Context) error {
		return func(ctx context.Context) error {
			if t.Empty() {
				return ErrAbsent
			}
			return page.Click(ctx, t)
		}
	}
	return []OptionalStep{
		{Name: "consent", Timeout: g.Cfg.ConsentTimeout, Pause: g.Cfg.ConsentPause, Run: click(g.Rules.Consent)},
		{Name: "reviews_tab", Timeout: g.Cfg.ReviewsTabTimeout, Pause: g.Cfg.ReviewsTabPause, Run: click(g.Rules.ReviewsTab)},
		{Name: "more_reviews", Timeout: g.Cfg.ExpandTimeout, Pause: g.Cfg.ExpandPause, Run: click(g.Rules.MoreReviews)},
	}
}

// Run executes every gate independently.
func (g *GateKeeper) Run(ctx context.Context, page Page) []StepReport {
	steps := g.Steps(page)
	reports := make([]StepReport, 0, len(steps))
	for _, st := range steps {
		out := st.Do(ctx, g.Sleep)
		slog.Debug("ui gate", "step", st.Name, "outcome", out)
		reports = append(reports, StepReport{Step: st.Name, Outcome: out})
	}
	return reports
}
