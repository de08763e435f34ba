package scraper

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/insightx/cleaner"
	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
)

const (
	mapURL     = "https://www.google.com/maps/place/Din+Tai+Fung"
	genericURL = "https://blog.example.com/posts/review"
)

func newTestScraper(t *testing.T, p *fakeProvider, mutate func(*Scraper)) *Scraper {
	t.Helper()
	rec := &sleepRecorder{}
	s := New(p, rules.Default(), testConfig(), WithSleep(rec.sleep))
	s.writeFile = func(string, []byte, os.FileMode) error { return nil }
	if mutate != nil {
		mutate(s)
	}
	return s
}

func TestClassify(t *testing.T) {
	r := rules.Default()
	tests := []struct {
		url  string
		want models.Variant
	}{
		{"https://www.google.com/maps/place/x", models.VariantMapReview},
		{"https://goo.gl/maps/abc123", models.VariantMapReview},
		{"https://maps.app.goo.gl/xyz", models.VariantMapReview},
		{"https://example.com/reviews", models.VariantGeneric},
		{"https://www.google.com/search?q=maps", models.VariantGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(r, tt.url))
		})
	}
}

func TestExtract_StructuredReviews(t *testing.T) {
	reviews := []string{
		"The dumplings were juicy and the service was quick",
		"Parking nearby is terrible, we circled for twenty minutes",
		"價格有點高但是小籠包非常好吃，值得排隊再來一次",
	}
	var b strings.Builder
	b.WriteString(`<html><body><div role="feed">`)
	for _, r := range reviews {
		fmt.Fprintf(&b, `<div class="jftiEf"><span class="wiI7pd">%s</span></div>`, r)
	}
	b.WriteString(`</div></body></html>`)

	page := newFakePage(b.String())
	page.container = 0
	page.heights = func(int) int { return 800 }
	p := &fakeProvider{page: page}

	res := newTestScraper(t, p, nil).Extract(context.Background(), mapURL)

	require.Equal(t, models.StatusSuccess, res.Status, res.Error)
	assert.Equal(t, strings.Join(reviews, rules.Default().Separator), res.Text)
	assert.Equal(t, cleaner.TierStructured, res.Tier)
	assert.Equal(t, models.VariantMapReview, res.Platform)
	assert.Empty(t, res.Error)
	assert.Equal(t, LoadDOMReady, page.navUntil)
	assert.Equal(t, int32(1), p.session.releases.Load())
	assert.True(t, p.session.healthy.Load())
}

func TestExtract_FeedVerbatim(t *testing.T) {
	feed := strings.Repeat("好吃又便宜的牛肉麵店家推薦", 10) // 130 runes
	feed += strings.Repeat("服務親切", 5)                 // 150 runes
	require.Equal(t, 150, len([]rune(feed)))

	page := newFakePage(`<html><body><div role="feed"><div>` + feed + `</div></div></body></html>`)
	p := &fakeProvider{page: page}

	res := newTestScraper(t, p, nil).Extract(context.Background(), mapURL)

	require.Equal(t, models.StatusSuccess, res.Status, res.Error)
	assert.Equal(t, feed, res.Text)
	assert.Equal(t, cleaner.TierFeed, res.Tier)
	assert.Equal(t, int32(1), p.session.releases.Load())
}

func TestExtract_NavigationTimeout(t *testing.T) {
	page := newFakePage("")
	page.navBlock = true
	p := &fakeProvider{page: page}

	s := newTestScraper(t, p, func(s *Scraper) { s.nav.MapTimeout = 20 * time.Millisecond })
	res := s.Extract(context.Background(), mapURL)

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Empty(t, res.Text)
	assert.Contains(t, res.Error, "timed out")
	assert.Equal(t, models.ErrCodeTimeout, res.ErrorCode)
	assert.Equal(t, int32(1), p.session.releases.Load())
	assert.Empty(t, page.clicked, "no gates after a failed navigation")
}

func TestExtract_NavigationFailure(t *testing.T) {
	page := newFakePage("")
	page.navErr = errBoom
	p := &fakeProvider{page: page}

	res := newTestScraper(t, p, nil).Extract(context.Background(), genericURL)

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, models.ErrCodeNavigation, res.ErrorCode)
	assert.Equal(t, "navigation failed: boom", res.Error)
	assert.Equal(t, int32(1), p.session.releases.Load())
}

func TestExtract_GenericLines(t *testing.T) {
	var lines []string
	var b strings.Builder
	b.WriteString(`<html><body><script>var tracking = 1;</script><style>p{color:red}</style>`)
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Paragraph %d of the customer story", i)
		lines = append(lines, line)
		fmt.Fprintf(&b, "<p>%s</p>\n", line)
	}
	b.WriteString(`</body></html>`)

	page := newFakePage(b.String())
	p := &fakeProvider{page: page}

	res := newTestScraper(t, p, nil).Extract(context.Background(), genericURL)

	require.Equal(t, models.StatusSuccess, res.Status, res.Error)
	assert.Equal(t, strings.Join(lines, "\n"), res.Text)
	assert.Equal(t, cleaner.TierGeneric, res.Tier)
	assert.Equal(t, models.VariantGeneric, res.Platform)
	assert.Equal(t, LoadNetworkIdle, page.navUntil)
	assert.Equal(t, 3, page.ends)
	assert.Empty(t, page.clicked, "generic pages skip ui gates")
	assert.Zero(t, page.shots, "screenshots are map-review only")
}

func TestExtract_EmptyIsFailedWithoutMessage(t *testing.T) {
	page := newFakePage(`<html><body><script>x()</script></body></html>`)
	p := &fakeProvider{page: page}

	res := newTestScraper(t, p, nil).Extract(context.Background(), genericURL)

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Empty(t, res.Text)
	assert.Empty(t, res.Error)
	assert.Empty(t, res.ErrorCode)
	assert.Equal(t, int32(1), p.session.releases.Load())
}

func TestExtract_SessionFailure(t *testing.T) {
	p := &fakeProvider{err: errBoom}

	res := newTestScraper(t, p, nil).Extract(context.Background(), mapURL)

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, models.ErrCodeSession, res.ErrorCode)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, p.session)
}

func TestExtract_PanicIsRecovered(t *testing.T) {
	page := newFakePage("")
	page.htmlPanic = true
	p := &fakeProvider{page: page}

	var res *models.ExtractionResult
	require.NotPanics(t, func() {
		res = newTestScraper(t, p, nil).Extract(context.Background(), genericURL)
	})

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "renderer went away")
	assert.Equal(t, models.ErrCodeInternal, res.ErrorCode)
	assert.Equal(t, int32(1), p.session.releases.Load())
	assert.False(t, p.session.healthy.Load())
}

func TestExtract_HTMLErrorReleasesUnhealthy(t *testing.T) {
	page := newFakePage("")
	page.htmlErr = errBoom
	p := &fakeProvider{page: page}

	res := newTestScraper(t, p, nil).Extract(context.Background(), genericURL)

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, models.ErrCodeExtraction, res.ErrorCode)
	assert.Equal(t, "failed to read rendered page: boom", res.Error)
	assert.Equal(t, int32(1), p.session.releases.Load())
	assert.False(t, p.session.healthy.Load())
}

func TestExtract_HTMLHangIsBoundedPerAction(t *testing.T) {
	page := newFakePage("")
	page.htmlBlock = true
	p := &fakeProvider{page: page}

	s := newTestScraper(t, p, func(s *Scraper) { s.cfg.ActionTimeout = 20 * time.Millisecond })

	start := time.Now()
	res := s.Extract(context.Background(), genericURL)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Equal(t, models.ErrCodeTimeout, res.ErrorCode)
	assert.Equal(t, "page read timed out", res.Error)
	assert.Equal(t, int32(1), p.session.releases.Load())
}

type blockingResolver struct{}

func (blockingResolver) Resolve(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestExtract_ShortlinkResolutionIsBoundedWithoutBudget(t *testing.T) {
	page := newFakePage(`<html><body><span class="wiI7pd">A long enough review about the noodles</span></body></html>`)
	p := &fakeProvider{page: page}

	s := newTestScraper(t, p, func(s *Scraper) {
		s.cfg.ExpandShortlinks = true
		s.cfg.RequestBudget = 0
		s.cfg.ShortlinkTimeout = 20 * time.Millisecond
		s.resolver = blockingResolver{}
	})

	done := make(chan *models.ExtractionResult, 1)
	go func() { done <- s.Extract(context.Background(), "https://goo.gl/maps/abc") }()

	select {
	case res := <-done:
		assert.Equal(t, models.StatusSuccess, res.Status)
		assert.Empty(t, res.ResolvedURL)
	case <-time.After(2 * time.Second):
		t.Fatal("extract waited on a hung shortlink resolution")
	}
}

func TestExtract_ScreenshotFailureIgnored(t *testing.T) {
	page := newFakePage(`<html><body><span class="wiI7pd">A long enough review about the noodles</span></body></html>`)
	p := &fakeProvider{page: page}

	s := newTestScraper(t, p, func(s *Scraper) {
		s.cfg.ScreenshotPath = "debug.png"
		s.writeFile = func(string, []byte, os.FileMode) error { return errBoom }
	})
	res := s.Extract(context.Background(), mapURL)

	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, 1, page.shots)
}

type stubResolver struct{ target string }

func (r stubResolver) Resolve(context.Context, string) (string, error) { return r.target, nil }

func TestExtract_ResolvesShortlink(t *testing.T) {
	page := newFakePage(`<html><body><span class="wiI7pd">A long enough review about the noodles</span></body></html>`)
	p := &fakeProvider{page: page}

	s := newTestScraper(t, p, func(s *Scraper) {
		s.cfg.ExpandShortlinks = true
		s.resolver = stubResolver{target: "https://www.google.com/maps/place/y"}
	})

	res := s.Extract(context.Background(), "https://goo.gl/maps/abc")
	assert.Equal(t, "https://www.google.com/maps/place/y", res.ResolvedURL)

	res = s.Extract(context.Background(), mapURL)
	assert.Empty(t, res.ResolvedURL, "only shortlinks are expanded")
}

func TestAssemble(t *testing.T) {
	accepted := cleaner.TierResult{Text: "hello", Tier: cleaner.TierFeed, Index: 1, Accepted: true}

	res := assemble("u", models.VariantMapReview, accepted, nil)
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, cleaner.TierFeed, res.Tier)

	res = assemble("u", models.VariantGeneric, cleaner.TierResult{Index: -1}, nil)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Empty(t, res.Error)

	res = assemble("u", models.VariantGeneric, accepted,
		models.NewScrapeError(models.ErrCodeExtraction, "failed to read rendered page", errBoom))
	assert.Equal(t, "failed to read rendered page: boom", res.Error)

	res = assemble("u", models.VariantGeneric, accepted,
		models.NewScrapeError(models.ErrCodeInternal, "internal error: x", nil))
	assert.Equal(t, "internal error: x", res.Error)

	res = assemble("u", models.VariantGeneric, accepted,
		models.NewScrapeError(models.ErrCodeTimeout, "navigation timed out", context.DeadlineExceeded))
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Empty(t, res.Text)
	assert.Equal(t, "navigation timed out", res.Error)
	assert.Equal(t, models.ErrCodeTimeout, res.ErrorCode)
}
