package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
)

func newTestPaginator(rec *sleepRecorder) *Paginator {
	return &Paginator{Rules: rules.Default(), Cfg: testConfig(), Sleep: rec.sleep}
}

func TestExpand_ContainerStopsAtCap(t *testing.T) {
	page := newFakePage("")
	page.container = 1
	page.heights = func(call int) int { return 1000 + call*500 } // always grows

	rep := newTestPaginator(&sleepRecorder{}).Expand(context.Background(), page, models.VariantMapReview)

	assert.Equal(t, ModeContainer, rep.Mode)
	assert.Equal(t, rules.Default().Containers[1], rep.Container)
	assert.Equal(t, 12, rep.Iterations)
	assert.False(t, rep.Converged)
	assert.Equal(t, 12, page.scrolls)
}

func TestExpand_ContainerConverges(t *testing.T) {
	page := newFakePage("")
	page.container = 0
	heights := []int{1000, 1600, 1600, 1600}
	page.heights = func(call int) int { return heights[call] }

	rec := &sleepRecorder{}
	rep := newTestPaginator(rec).Expand(context.Background(), page, models.VariantMapReview)

	assert.Equal(t, 2, rep.Iterations)
	assert.True(t, rep.Converged)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond, time.Second}, rec.pauses)
}

func TestExpand_ContainerVanishes(t *testing.T) {
	page := newFakePage("")
	page.container = 0
	page.heights = func(int) int { return -1 }

	rep := newTestPaginator(&sleepRecorder{}).Expand(context.Background(), page, models.VariantMapReview)
	assert.Zero(t, rep.Iterations)
	assert.Zero(t, page.scrolls)
}

func TestExpand_WheelFallback(t *testing.T) {
	page := newFakePage("")

	rep := newTestPaginator(&sleepRecorder{}).Expand(context.Background(), page, models.VariantMapReview)

	assert.Equal(t, ModeWheel, rep.Mode)
	assert.Equal(t, 8, rep.Iterations)
	assert.Equal(t, 8, page.wheels)
	assert.Zero(t, page.ends)
}

func TestExpand_GenericEndKey(t *testing.T) {
	page := newFakePage("")
	page.container = 0 // ignored on generic pages

	rec := &sleepRecorder{}
	rep := newTestPaginator(rec).Expand(context.Background(), page, models.VariantGeneric)

	assert.Equal(t, ModeEndKey, rep.Mode)
	assert.Equal(t, 3, page.ends)
	assert.Zero(t, page.scrolls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 2 * time.Second, time.Second}, rec.pauses)
}

func TestExpand_StopsWhenContextEnds(t *testing.T) {
	page := newFakePage("")
	page.container = 0
	page.heights = func(call int) int { return call * 100 }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := newTestPaginator(&sleepRecorder{}).Expand(ctx, page, models.VariantMapReview)
	assert.Equal(t, 1, rep.Iterations)
}

func TestExpand_HungContainerLookupFallsBackToWheel(t *testing.T) {
	page := newFakePage("")
	page.matchBlock = true

	p := newTestPaginator(&sleepRecorder{})
	p.Cfg.ActionTimeout = 20 * time.Millisecond

	start := time.Now()
	rep := p.Expand(context.Background(), page, models.VariantMapReview)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, ModeWheel, rep.Mode)
	assert.Equal(t, 8, page.wheels)
}
