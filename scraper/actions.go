package scraper

import (
	"context"
	"time"
)

// defaultActionTimeout is the per-action deadline when none is configured.
const defaultActionTimeout = 10 * time.Second

// actionContext derives the deadline for a single browser call. The
// request budget still applies when it is shorter.
func actionContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultActionTimeout
	}
	return context.WithTimeout(ctx, d)
}

// runAction runs one browser call with its own timeout.
func runAction(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	actx, cancel := actionContext(ctx, d)
	defer cancel()
	return fn(actx)
}

// queryAction is runAction for calls that return a value.
func queryAction[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	actx, cancel := actionContext(ctx, d)
	defer cancel()
	return fn(actx)
}
