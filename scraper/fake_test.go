package scraper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/insightx/config"
	"github.com/use-agent/insightx/rules"
)

// fakePage scripts a browser tab.
type fakePage struct {
	mu sync.Mutex

	html      string
	htmlPanic bool
	htmlErr   error
	htmlBlock bool

	navErr   error
	navBlock bool
	navURL   string
	navUntil LoadState

	present  map[string]bool // visible button labels
	clickErr map[string]error
	clicked  []string

	container  int // FirstMatch result
	matchBlock bool
	heights   func(call int) int
	heightN   int
	scrolls   int
	wheels    int
	ends      int

	shots int
}

func newFakePage(html string) *fakePage {
	return &fakePage{html: html, container: -1, present: map[string]bool{}, clickErr: map[string]error{}}
}

func (f *fakePage) Navigate(ctx context.Context, url string, until LoadState) error {
	f.mu.Lock()
	f.navURL, f.navUntil = url, until
	block, err := f.navBlock, f.navErr
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *fakePage) Click(ctx context.Context, t rules.Target) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range append(append([]string{}, t.Labels...), t.AriaLabels...) {
		if f.present[l] {
			f.clicked = append(f.clicked, l)
			return f.clickErr[l]
		}
	}
	return ErrAbsent
}

func (f *fakePage) FirstMatch(ctx context.Context, _ []string) (int, error) {
	if f.matchBlock {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	return f.container, nil
}

func (f *fakePage) ScrollHeight(context.Context, string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.heights(f.heightN)
	f.heightN++
	return h, nil
}

func (f *fakePage) ScrollToBottom(context.Context, string) error {
	f.mu.Lock()
	f.scrolls++
	f.mu.Unlock()
	return nil
}

func (f *fakePage) Wheel(context.Context, float64) error {
	f.mu.Lock()
	f.wheels++
	f.mu.Unlock()
	return nil
}

func (f *fakePage) PressEnd(context.Context) error {
	f.mu.Lock()
	f.ends++
	f.mu.Unlock()
	return nil
}

func (f *fakePage) Screenshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	f.shots++
	f.mu.Unlock()
	return []byte("png"), nil
}

func (f *fakePage) HTML(ctx context.Context) (string, error) {
	if f.htmlPanic {
		panic("renderer went away")
	}
	if f.htmlBlock {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.html, f.htmlErr
}

type fakeSession struct {
	page     *fakePage
	releases atomic.Int32
	healthy  atomic.Bool
}

func (s *fakeSession) Page() Page { return s.page }

func (s *fakeSession) Release(healthy bool) {
	s.releases.Add(1)
	s.healthy.Store(healthy)
}

type fakeProvider struct {
	page    *fakePage
	err     error
	session *fakeSession
}

func (p *fakeProvider) Acquire(context.Context) (Session, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.session = &fakeSession{page: p.page}
	return p.session, nil
}

// sleepRecorder returns immediately and records requested pauses.
type sleepRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.pauses = append(r.pauses, d)
	r.mu.Unlock()
	return ctx.Err()
}

func testConfig() config.ScraperConfig {
	return config.ScraperConfig{
		MapNavigationTimeout:     time.Second,
		GenericNavigationTimeout: time.Second,
		SettleDelay:              3 * time.Second,
		ConsentTimeout:           time.Second,
		ConsentPause:             time.Second,
		ReviewsTabTimeout:        time.Second,
		ReviewsTabPause:          2 * time.Second,
		ExpandTimeout:            time.Second,
		ExpandPause:              2 * time.Second,
		ContainerMaxIterations:   12,
		ScrollPause:              1500 * time.Millisecond,
		WheelIterations:          8,
		WheelDelta:               3000,
		EndKeyIterations:         3,
		EndKeyPause:              2 * time.Second,
		PostScrollPause:          time.Second,
		ActionTimeout:            time.Second,
		MaxTextRunes:             200000,
		DedupeThreshold:          0,
	}
}

var errBoom = errors.New("boom")
