package cleaner

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
)

type stubTier struct {
	name  string
	text  string
	ok    bool
	calls int
}

func (s *stubTier) Name() string { return s.name }

func (s *stubTier) Apply(*goquery.Document) (string, bool) {
	s.calls++
	return s.text, s.ok
}

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(rules.Default(), 0, opts...)
}

func TestExtract_FirstAcceptedTierWins(t *testing.T) {
	first := &stubTier{name: "first", ok: false}
	second := &stubTier{name: "second", text: "accepted text", ok: true}
	third := &stubTier{name: "third", text: "never", ok: true}

	e := newTestEngine(WithTiers(models.VariantMapReview, first, second, third))
	res := e.Extract("<html><body></body></html>", models.VariantMapReview)

	assert.True(t, res.Accepted)
	assert.Equal(t, "second", res.Tier)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, "accepted text", res.Text)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Zero(t, third.calls, "tiers after the accepted one must not run")
}

func TestExtract_BlankAcceptanceIsDeclined(t *testing.T) {
	blank := &stubTier{name: "blank", text: "  \n ", ok: true}
	e := newTestEngine(WithTiers(models.VariantGeneric, blank))

	res := e.Extract("<p>x</p>", models.VariantGeneric)
	assert.False(t, res.Accepted)
	assert.Equal(t, -1, res.Index)
	assert.Empty(t, res.Text)
}

func TestExtract_StructuredReviews(t *testing.T) {
	reviews := []string{
		"The beef noodle soup was rich and the broth was deep.",
		"Staff were friendly even though the place was packed.",
		"A bit pricey, but the view from the terrace is worth it.",
	}
	page := `<html><body>
		<div role="feed">
			<div><span class="wiI7pd">` + reviews[0] + `</span></div>
			<div><span class="wiI7pd">` + reviews[1] + `</span></div>
			<div><span class="wiI7pd">` + reviews[2] + `</span></div>
			<span class="wiI7pd">Maps</span>
			<span class="wiI7pd">https://example.com/a-very-long-link-to-nowhere</span>
		</div>
	</body></html>`

	res := newTestEngine().Extract(page, models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, TierStructured, res.Tier)
	assert.Equal(t, strings.Join(reviews, "\n\n---評論---\n\n"), res.Text)
}

func TestExtract_StructuredRulesInOrder(t *testing.T) {
	// Only the third rule (span with a review-ish class) matches.
	page := `<html><body>
		<span class="user-review-snippet">Lovely brunch spot with great coffee.</span>
		<span class="other">Not a review at all, just some text.</span>
	</body></html>`

	res := newTestEngine().Extract(page, models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, TierStructured, res.Tier)
	assert.Equal(t, "Lovely brunch spot with great coffee.", res.Text)
}

func TestExtract_StructuredDedupesNestedMatches(t *testing.T) {
	text := "Came here twice and both times the dumplings were perfect."
	page := `<html><body>
		<span class="review-body"><span class="review-text">` + text + `</span></span>
	</body></html>`

	res := newTestEngine().Extract(page, models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, text, res.Text)
}

func TestExtract_StructuredSkipsWrappingMatch(t *testing.T) {
	text := "The staff remembered our order from last week, lovely touch."
	page := `<html><body>
		<div class="review-text"><div class="review-text-inner">` + text + `</div></div>
	</body></html>`

	res := newTestEngine().Extract(page, models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, text, res.Text)
}

func TestExtract_StructuredKeepsIdenticalReviewsFromDifferentAuthors(t *testing.T) {
	same := "Great place, highly recommended to everyone!"
	page := `<html><body>
		<div class="jftiEf"><span class="wiI7pd">` + same + `</span></div>
		<div class="jftiEf"><span class="wiI7pd">` + same + `</span></div>
	</body></html>`

	res := newTestEngine().Extract(page, models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, same+"\n\n---評論---\n\n"+same, res.Text)
}

func TestExtract_StructuredDedupeIsOptIn(t *testing.T) {
	same := "Great place, highly recommended to everyone!"
	page := `<html><body>
		<div><span class="wiI7pd">` + same + `</span></div>
		<div><span class="wiI7pd">` + same + `</span></div>
	</body></html>`

	res := NewEngine(rules.Default(), 3).Extract(page, models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, same, res.Text)
}

func TestExtract_StructuredCapsMatches(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, `<span class="MyEned">Review number %02d: the %s was memorable.</span>`, i, strings.Repeat("x", i+1))
	}
	b.WriteString("</body></html>")

	res := NewEngine(rules.Default(), 0).Extract(b.String(), models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, 30, len(strings.Split(res.Text, "\n\n---評論---\n\n")))
	assert.Contains(t, res.Text, "Review number 29")
	assert.NotContains(t, res.Text, "Review number 30")
}

func TestExtract_FeedVerbatim(t *testing.T) {
	line1 := "Friendly staff and quick service, the tables were clean."
	line2 := "Portions are generous but the parking lot is always full at noon."
	page := `<html><body>
		<div role="feed">
			<div>` + line1 + `</div>
			<div>` + line2 + `</div>
		</div>
	</body></html>`

	res := newTestEngine().Extract(page, models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, TierFeed, res.Tier)
	assert.Equal(t, line1+"\n"+line2, res.Text)
}

func TestExtract_ShortFeedFallsThroughToFullPage(t *testing.T) {
	page := `<html><head><title>t</title><meta name="x" content="y"></head><body>
		<div role="feed"><div>Too short to count</div></div>
		<div>搜尋 Google 地圖上的地點</div>
		<div>short</div>
		<div>This line is long enough to be kept.</div>
	</body></html>`

	res := newTestEngine().Extract(page, models.VariantMapReview)

	require.True(t, res.Accepted)
	assert.Equal(t, TierFullPage, res.Tier)
	assert.Equal(t, "Too short to count\nThis line is long enough to be kept.", res.Text)
}

func TestExtract_NothingAccepted(t *testing.T) {
	res := newTestEngine().Extract(`<html><body><div>tiny</div><script>var a = "this is long script text";</script></body></html>`, models.VariantMapReview)

	assert.False(t, res.Accepted)
	assert.Empty(t, res.Text)
	assert.Empty(t, res.Tier)
}

func TestExtract_GenericLines(t *testing.T) {
	var lines []string
	var b strings.Builder
	b.WriteString("<html><head><style>body { color: red; }</style></head><body>\n")
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Paragraph %d of the article", i)
		lines = append(lines, line)
		fmt.Fprintf(&b, "  <p>  %s  </p>\n", line)
	}
	b.WriteString(`<script>console.log("hidden")</script></body></html>`)

	res := newTestEngine().Extract(b.String(), models.VariantGeneric)

	require.True(t, res.Accepted)
	assert.Equal(t, TierGeneric, res.Tier)
	assert.Equal(t, strings.Join(lines, "\n"), res.Text)
}

func TestExtract_GenericCapsLines(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 600; i++ {
		fmt.Fprintf(&b, "<p>line %d</p>", i)
	}
	b.WriteString("</body></html>")

	res := newTestEngine().Extract(b.String(), models.VariantGeneric)

	require.True(t, res.Accepted)
	got := strings.Split(res.Text, "\n")
	assert.Len(t, got, 500)
	assert.Equal(t, "line 499", got[499])
}

func TestClassMatches(t *testing.T) {
	re := rules.Default().TextRulesCompiled[1].Class // (?i).*review.*text

	tests := []struct {
		class string
		want  bool
	}{
		{"reviewText", true},
		{"card review-full-text", true},
		{"review", false},
		{"text", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div class="` + tt.class + `"></div>`))
			require.NoError(t, err)
			n := doc.Find("div").Get(0)
			assert.Equal(t, tt.want, classMatches(n, re.MatchString))
		})
	}
}
