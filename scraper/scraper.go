// Package scraper runs the extraction pipeline for one URL: acquire a
// session, navigate, clear UI gates, paginate, extract and sanitize.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/use-agent/insightx/cleaner"
	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
)

// URLResolver expands a shortlink to its target.
type URLResolver interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Scraper is the pipeline entry point. It holds no per-request state and
// is safe for concurrent use.
type Scraper struct {
	sessions  SessionProvider
	rules     *rules.Rules
	cfg       config.ScraperConfig
	nav       *Navigator
	gates     *GateKeeper
	pager     *Paginator
	engine    *cleaner.Engine
	sanitizer *cleaner.Sanitizer
	resolver  URLResolver
	sleep     SleepFunc
	writeFile func(name string, data []byte, perm os.FileMode) error
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithSleep replaces the pause function used by every timed wait.
func WithSleep(fn SleepFunc) Option {
	return func(s *Scraper) { s.sleep = fn }
}

// WithResolver sets the shortlink resolver. nil disables expansion.
func WithResolver(r URLResolver) Option {
	return func(s *Scraper) { s.resolver = r }
}

// WithEngine replaces the extraction engine.
func WithEngine(e *cleaner.Engine) Option {
	return func(s *Scraper) { s.engine = e }
}

// New builds a Scraper over sessions.
func New(sessions SessionProvider, r *rules.Rules, cfg config.ScraperConfig, opts ...Option) *Scraper {
	s := &Scraper{
		sessions:  sessions,
		rules:     r,
		cfg:       cfg,
		engine:    cleaner.NewEngine(r, cfg.DedupeThreshold),
		sanitizer: cleaner.NewSanitizer(r, cfg.MaxTextRunes),
		sleep:     sleepCtx,
		writeFile: os.WriteFile,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.nav = &Navigator{
		Rules:          r,
		MapTimeout:     cfg.MapNavigationTimeout,
		GenericTimeout: cfg.GenericNavigationTimeout,
		Settle:         cfg.SettleDelay,
		Sleep:          s.sleep,
	}
	s.gates = &GateKeeper{Rules: r, Cfg: cfg, Sleep: s.sleep}
	s.pager = &Paginator{Rules: r, Cfg: cfg, Sleep: s.sleep}
	return s
}

// Rules returns the rules table the pipeline runs on.
func (s *Scraper) Rules() *rules.Rules {
	return s.rules
}

// Extract runs the whole pipeline for rawURL. It never returns an error:
// every failure, including a panic, becomes a failed result. The session
// is released exactly once on every path.
func (s *Scraper) Extract(ctx context.Context, rawURL string) (res *models.ExtractionResult) {
	start := time.Now()
	variant := Classify(s.rules, rawURL)

	if s.cfg.RequestBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestBudget)
		defer cancel()
	}

	resolved := s.resolveAsync(ctx, rawURL)

	var (
		tr     = cleaner.TierResult{Index: -1}
		meta   models.Metadata
		timing models.TimingInfo
	)

	defer func() {
		if p := recover(); p != nil {
			slog.Error("extract: panic recovered", "url", rawURL, "panic", fmt.Sprint(p),
				"stack", string(debug.Stack()))
			res = assemble(rawURL, variant, cleaner.TierResult{Index: -1},
				models.NewScrapeError(models.ErrCodeInternal, fmt.Sprintf("internal error: %v", p), nil))
		}
		res.Metadata = meta
		res.Timing = timing
		res.Timing.TotalMs = time.Since(start).Milliseconds()
		res.ResolvedURL = <-resolved

		if res.Succeeded() {
			slog.Info("extract complete", "url", rawURL, "variant", variant, "tier", res.Tier,
				"runes", len([]rune(res.Text)), "totalMs", res.Timing.TotalMs)
		} else {
			slog.Warn("extract failed", "url", rawURL, "variant", variant, "code", res.ErrorCode,
				"error", res.Error, "totalMs", res.Timing.TotalMs)
		}
	}()

	err := s.run(ctx, rawURL, &tr, &meta, &timing)
	return assemble(rawURL, variant, tr, err)
}

// run executes the pipeline steps inside one session.
func (s *Scraper) run(ctx context.Context, rawURL string, tr *cleaner.TierResult, meta *models.Metadata, timing *models.TimingInfo) (err error) {
	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		return categorizeSessionError(err)
	}

	healthy := false
	defer func() { sess.Release(healthy) }()
	page := sess.Page()

	t := time.Now()
	variant, err := s.nav.Navigate(ctx, page, rawURL)
	timing.NavigationMs = time.Since(t).Milliseconds()
	if err != nil {
		// A page that will not load says nothing about the browser.
		healthy = true
		return err
	}

	t = time.Now()
	if variant == models.VariantMapReview {
		s.gates.Run(ctx, page)
	}
	s.pager.Expand(ctx, page, variant)
	if variant == models.VariantMapReview {
		s.screenshot(ctx, page, rawURL)
	}
	timing.InteractMs = time.Since(t).Milliseconds()

	t = time.Now()
	html, err := queryAction(ctx, s.cfg.ActionTimeout, page.HTML)
	if err != nil {
		if ctx.Err() != nil {
			return categorizeError(err, "request budget")
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return categorizeError(err, "page read")
		}
		return models.NewScrapeError(models.ErrCodeExtraction, "failed to read rendered page", err)
	}
	healthy = true

	*tr = s.engine.Extract(html, variant)
	if tr.Accepted {
		tr.Text = s.sanitizer.Clean(tr.Text)
		if tr.Text == "" {
			slog.Debug("sanitizer emptied accepted tier", "url", rawURL, "tier", tr.Tier)
			tr.Accepted = false
		}
	}
	*meta = cleaner.PageMetadata(html, rawURL)
	timing.ExtractMs = time.Since(t).Milliseconds()
	return nil
}

// screenshot writes the debug capture. Failures are logged and ignored.
func (s *Scraper) screenshot(ctx context.Context, page Page, rawURL string) {
	if s.cfg.ScreenshotPath == "" {
		return
	}
	img, err := queryAction(ctx, s.cfg.ActionTimeout, page.Screenshot)
	if err == nil {
		err = s.writeFile(s.cfg.ScreenshotPath, img, 0o644)
	}
	if err != nil {
		slog.Debug("debug screenshot skipped", "url", rawURL, "error", err)
	}
}

// resolveAsync expands a shortlink alongside the pipeline. The channel
// always yields exactly one value, "" when nothing was resolved.
func (s *Scraper) resolveAsync(ctx context.Context, rawURL string) <-chan string {
	out := make(chan string, 1)
	if s.resolver == nil || !s.cfg.ExpandShortlinks || !s.rules.IsShortlink(rawURL) {
		out <- ""
		return out
	}
	go func() {
		timeout := s.cfg.ShortlinkTimeout
		if timeout <= 0 {
			timeout = defaultShortlinkTimeout
		}
		rctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		target, err := s.resolver.Resolve(rctx, rawURL)
		if err != nil {
			slog.Debug("shortlink expansion failed", "url", rawURL, "error", err)
			target = ""
		}
		out <- target
	}()
	return out
}

func categorizeSessionError(err error) error {
	if models.CodeOf(err) == models.ErrCodeSession {
		return err
	}
	return models.NewScrapeError(models.ErrCodeSession, "failed to create browser session", err)
}
