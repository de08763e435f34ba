package scraper

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/use-agent/insightx/browser"
	"github.com/use-agent/insightx/rules"
)

// RodSessions adapts the browser manager to SessionProvider and mounts
// resource blocking on each session's page.
type RodSessions struct {
	Manager       *browser.Manager
	BlockedTypes  []string
	BlockTrackers bool
}

// Acquire implements SessionProvider.
func (r *RodSessions) Acquire(ctx context.Context) (Session, error) {
	s, err := r.Manager.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	router := blockResources(s.Page, r.BlockedTypes, r.BlockTrackers)
	return &rodSession{session: s, page: &rodPage{page: s.Page}, router: router}, nil
}

type rodSession struct {
	session *browser.Session
	page    *rodPage
	router  *rod.HijackRouter
	once    sync.Once
}

func (s *rodSession) Page() Page { return s.page }

func (s *rodSession) Release(healthy bool) {
	s.once.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		s.session.Release(healthy)
	})
}

// rodPage implements Page on a rod tab.
type rodPage struct {
	page *rod.Page
}

func lifecycleEvent(s LoadState) proto.PageLifecycleEventName {
	if s == LoadNetworkIdle {
		return proto.PageLifecycleEventNameNetworkIdle
	}
	return proto.PageLifecycleEventNameDOMContentLoaded
}

// Navigate registers the lifecycle waiter before navigating so the event
// cannot be missed.
func (r *rodPage) Navigate(ctx context.Context, url string, until LoadState) error {
	p := r.page.Context(ctx)
	wait := p.WaitNavigation(lifecycleEvent(until))
	if err := p.Navigate(url); err != nil {
		return err
	}
	wait()
	return ctx.Err()
}

// findTargetJS returns the first button-like element whose text equals or
// contains a label, or whose aria-label contains an aria label.
const findTargetJS = `(labels, aria) => {
	const norm = s => (s || '').replace(/\s+/g, ' ').trim();
	for (const el of document.querySelectorAll('button, [role="button"], [role="tab"]')) {
		const text = norm(el.innerText);
		if (text && labels.some(l => text === l || text.includes(l))) return el;
		const label = el.getAttribute('aria-label') || '';
		if (label && aria.some(a => label.includes(a))) return el;
	}
	return null;
}`

func (r *rodPage) Click(ctx context.Context, t rules.Target) error {
	p := r.page.Context(ctx)
	el, err := p.ElementByJS(rod.Eval(findTargetJS, orEmpty(t.Labels), orEmpty(t.AriaLabels)))
	if err != nil {
		// ElementByJS retries until found, so a spent deadline means absent.
		if ctx.Err() != nil {
			return ErrAbsent
		}
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (r *rodPage) FirstMatch(ctx context.Context, selectors []string) (int, error) {
	res, err := r.page.Context(ctx).Eval(`(sels) => sels.findIndex(s => {
		try { return document.querySelector(s) !== null; } catch (e) { return false; }
	})`, orEmpty(selectors))
	if err != nil {
		return -1, err
	}
	return res.Value.Int(), nil
}

func (r *rodPage) ScrollHeight(ctx context.Context, selector string) (int, error) {
	res, err := r.page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		return el ? el.scrollHeight : -1;
	}`, selector)
	if err != nil {
		return -1, err
	}
	return res.Value.Int(), nil
}

func (r *rodPage) ScrollToBottom(ctx context.Context, selector string) error {
	_, err := r.page.Context(ctx).Eval(`(sel) => {
		const el = document.querySelector(sel);
		if (el) el.scrollTo(0, el.scrollHeight);
	}`, selector)
	return err
}

// Wheel scrolls with the pointer over the left side panel, where map pages
// render their reviews.
func (r *rodPage) Wheel(ctx context.Context, deltaY float64) error {
	p := r.page.Context(ctx)
	if err := p.Mouse.MoveTo(proto.Point{X: 300, Y: 500}); err != nil {
		return err
	}
	return p.Mouse.Scroll(0, deltaY, 0)
}

func (r *rodPage) PressEnd(ctx context.Context) error {
	return r.page.Context(ctx).Keyboard.Press(input.End)
}

func (r *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return r.page.Context(ctx).Screenshot(false, nil)
}

func (r *rodPage) HTML(ctx context.Context) (string, error) {
	return r.page.Context(ctx).HTML()
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
