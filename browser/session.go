// Package browser owns Chrome: a bounded pool of processes and the
// per-request sessions carved out of them. Every session gets a fresh
// incognito context, a random user agent from the rules table, a fixed
// viewport and the stealth evasions, and is released exactly once.
package browser

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"

	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
)

// Process is one running Chrome instance.
type Process struct {
	Browser  *rod.Browser
	PID      int
	launcher *launcher.Launcher
}

// Manager hands out isolated sessions backed by pooled Chrome processes.
// It is safe for concurrent use.
type Manager struct {
	cfg     config.BrowserConfig
	poolCfg config.PoolConfig
	rules   *rules.Rules
	pool    *Pool[*Process]

	pickMu sync.Mutex
	pick   func(n int) int
}

// NewManager starts the process pool and warms it to the configured minimum.
func NewManager(ctx context.Context, cfg config.BrowserConfig, poolCfg config.PoolConfig, r *rules.Rules) *Manager {
	m := &Manager{
		cfg:     cfg,
		poolCfg: poolCfg,
		rules:   r,
		pick:    rand.IntN,
	}
	m.pool = NewPool(ctx, PoolConfig{
		Min:           poolCfg.MinProcesses,
		Max:           poolCfg.MaxProcesses,
		MaxUses:       poolCfg.MaxUses,
		MaxAge:        poolCfg.MaxAge,
		MaxErrorScore: float64(poolCfg.MaxErrorScore),
	}, m.launch, destroyProcess)
	return m
}

// Session is one request's exclusive browser context and page.
type Session struct {
	Page      *rod.Page
	UserAgent string

	incognito *rod.Browser
	handle    *Handle[*Process]
	pool      *Pool[*Process]
	once      sync.Once
}

// Acquire creates an isolated session. Any failure is a SESSION_FAILED
// error and leaves nothing behind.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	getCtx := ctx
	if m.poolCfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		getCtx, cancel = context.WithTimeout(ctx, m.poolCfg.AcquireTimeout)
		defer cancel()
	}

	h, err := m.pool.Get(getCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewScrapeError(models.ErrCodeSession, "no browser available before deadline", err)
		}
		return nil, models.NewScrapeError(models.ErrCodeSession, "failed to launch browser", err)
	}

	incognito, err := h.Value.Browser.Incognito()
	if err != nil {
		// A process that cannot open a context is dead.
		m.pool.Discard(h)
		return nil, models.NewScrapeError(models.ErrCodeSession, "failed to create browser context", err)
	}

	s := &Session{incognito: incognito, handle: h, pool: m.pool}

	page, err := stealth.Page(incognito)
	if err != nil {
		s.Release(false)
		return nil, models.NewScrapeError(models.ErrCodeSession, "failed to open page", err)
	}
	s.Page = page
	s.UserAgent = m.userAgent()

	if err := m.fingerprint(page, s.UserAgent); err != nil {
		s.Release(false)
		return nil, models.NewScrapeError(models.ErrCodeSession, "failed to configure page", err)
	}

	slog.Debug("session acquired", "process", h.ID, "pid", h.Value.PID, "userAgent", s.UserAgent)
	return s, nil
}

// Release closes the page and the incognito context and returns the
// process to the pool. Only the first call has any effect. Cleanup never
// uses the request context, so it runs even after a deadline.
func (s *Session) Release(success bool) {
	s.once.Do(func() {
		if s.Page != nil {
			if err := s.Page.Close(); err != nil {
				slog.Debug("session release: page close failed", "error", err)
			}
		}
		if err := s.incognito.Close(); err != nil {
			slog.Warn("session release: context close failed, discarding process",
				"process", s.handle.ID, "error", err)
			s.pool.Discard(s.handle)
			return
		}
		s.pool.Put(s.handle, success)
	})
}

// Stats reports the process pool's state.
func (m *Manager) Stats() models.PoolStats {
	return m.pool.Stats()
}

// Close shuts the pool down and kills idle processes.
func (m *Manager) Close() {
	slog.Info("browser manager shutting down")
	m.pool.Close()
}

func (m *Manager) userAgent() string {
	uas := m.rules.UserAgents
	m.pickMu.Lock()
	i := m.pick(len(uas))
	m.pickMu.Unlock()
	return uas[i]
}

func (m *Manager) acceptLanguage() string {
	if m.cfg.AcceptLanguage != "" {
		return m.cfg.AcceptLanguage
	}
	return m.rules.AcceptLanguage
}

// fingerprint applies the session's user agent, viewport and language.
func (m *Manager) fingerprint(page *rod.Page, ua string) error {
	lang := m.acceptLanguage()
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      ua,
		AcceptLanguage: lang,
	}); err != nil {
		return err
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return err
	}
	if lang != "" {
		return proto.NetworkSetExtraHTTPHeaders{
			Headers: proto.NetworkHeaders{"Accept-Language": gson.New(lang)},
		}.Call(page)
	}
	return nil
}

// launch starts a Chrome process with the stealth launch flags.
func (m *Manager) launch(ctx context.Context) (*Process, error) {
	l := launcher.New().
		Context(ctx).
		Headless(m.cfg.Headless).
		NoSandbox(m.cfg.NoSandbox)

	if m.cfg.BrowserBin != "" {
		l = l.Bin(m.cfg.BrowserBin)
	}
	if m.cfg.DefaultProxy != "" {
		l = l.Proxy(m.cfg.DefaultProxy)
	}

	l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	l.Delete(flags.Flag("enable-automation"))
	l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
	l.Set(flags.Flag("disable-popup-blocking"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-component-update"))
	l.Set(flags.Flag("disable-default-apps"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("no-first-run"))
	l.Set(flags.Flag("window-size"), windowSize(m.cfg))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}

	// The launcher context only bounds startup; the process outlives the request.
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, err
	}

	slog.Info("browser process launched", "pid", l.PID(), "controlURL", controlURL)
	return &Process{Browser: b, PID: l.PID(), launcher: l}, nil
}

func destroyProcess(p *Process) {
	if err := p.Browser.Close(); err != nil {
		slog.Debug("browser close failed, killing process", "pid", p.PID, "error", err)
	}
	p.launcher.Kill()
	p.launcher.Cleanup()
	slog.Info("browser process stopped", "pid", p.PID)
}

func windowSize(cfg config.BrowserConfig) string {
	w, h := cfg.ViewportWidth, cfg.ViewportHeight
	if w <= 0 || h <= 0 {
		w, h = 1920, 1080
	}
	return strconv.Itoa(w) + "," + strconv.Itoa(h)
}
