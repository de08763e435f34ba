package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/use-agent/insightx/rules"
)

// ErrAbsent is returned by Page.Click when no control matches the target
// before the step's deadline.
var ErrAbsent = errors.New("target not present")

// LoadState is the lifecycle event a navigation waits for.
type LoadState int

const (
	// LoadDOMReady waits for DOMContentLoaded.
	LoadDOMReady LoadState = iota
	// LoadNetworkIdle waits until the network has gone quiet.
	LoadNetworkIdle
)

func (s LoadState) String() string {
	if s == LoadNetworkIdle {
		return "network_idle"
	}
	return "dom_ready"
}

// Page is the slice of a browser tab the pipeline drives. Every call is
// bounded by ctx. Selectors are passed as data, never spliced into script.
type Page interface {
	// Navigate loads url and blocks until the state is reached or ctx ends.
	Navigate(ctx context.Context, url string, until LoadState) error

	// Click clicks the first button whose text or aria-label matches
	// target, waiting for it to appear until ctx ends. It returns
	// ErrAbsent if nothing matched in time.
	Click(ctx context.Context, target rules.Target) error

	// FirstMatch returns the index of the first selector matching an
	// element, or -1.
	FirstMatch(ctx context.Context, selectors []string) (int, error)

	// ScrollHeight returns the scrollHeight of the first element matching
	// selector, or -1 if it is gone.
	ScrollHeight(ctx context.Context, selector string) (int, error)

	// ScrollToBottom scrolls the element matching selector to its end.
	ScrollToBottom(ctx context.Context, selector string) error

	Wheel(ctx context.Context, deltaY float64) error
	PressEnd(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	HTML(ctx context.Context) (string, error)
}

// Session is one request's exclusive page. Release must be safe to call
// more than once; only the first call counts.
type Session interface {
	Page() Page
	Release(healthy bool)
}

// SessionProvider creates sessions.
type SessionProvider interface {
	Acquire(ctx context.Context) (Session, error)
}

// SleepFunc pauses for d or until ctx ends.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
