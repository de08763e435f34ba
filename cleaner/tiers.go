package cleaner

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/use-agent/insightx/rules"
	"github.com/use-agent/insightx/simhash"
)

// Tier is one strategy in the extraction chain. Apply inspects the parsed
// document and either accepts it with non-empty text or declines.
// Implementations must not modify doc.
type Tier interface {
	Name() string
	Apply(doc *goquery.Document) (text string, ok bool)
}

// Tier names reported in results and logs.
const (
	TierStructured = "structured"
	TierFeed       = "feed"
	TierFullPage   = "full_page"
	TierGeneric    = "generic"
)

// selMatcher adapts a compiled cascadia.Sel to goquery.Matcher.
type selMatcher struct{ cascadia.Sel }

func (m selMatcher) MatchAll(n *html.Node) []*html.Node { return cascadia.QueryAll(n, m.Sel) }
func (m selMatcher) Filter(nodes []*html.Node) []*html.Node {
	return cascadia.Filter(nodes, m.Sel)
}

// StructuredTier matches review-text elements by element selector and
// class pattern. Rules are tried in order; the first rule with at least
// one acceptable text wins.
type StructuredTier struct {
	Rules *rules.Rules

	// DedupeThreshold drops near-duplicate texts by simhash distance.
	// Negative disables. Identical reviews from different authors are
	// real reviews, so this is opt-in.
	DedupeThreshold int
}

func (t *StructuredTier) Name() string { return TierStructured }

func (t *StructuredTier) Apply(doc *goquery.Document) (string, bool) {
	r := t.Rules
	for _, rule := range r.TextRulesCompiled {
		matches := doc.FindMatcher(selMatcher{rule.Element}).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return classMatches(s.Get(0), rule.Class.MatchString)
		})
		if matches.Length() == 0 {
			continue
		}
		if matches.Length() > r.MaxStructuredMatches {
			matches = matches.Slice(0, r.MaxStructuredMatches)
		}

		var (
			texts    []string
			accepted []*html.Node
		)
		matches.Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			// A match nested in (or wrapping) an accepted one repeats its text.
			if nestedInAny(n, accepted) {
				return
			}
			text := nodeText(n, textOptions{sep: " ", strip: true, skip: skipScripts})
			if t.acceptReview(text) {
				texts = append(texts, text)
				accepted = append(accepted, n)
			}
		})
		if len(texts) == 0 {
			continue
		}
		texts = simhash.Dedupe(texts, t.DedupeThreshold)
		return strings.Join(texts, r.Separator), true
	}
	return "", false
}

// nestedInAny reports whether n is an ancestor or descendant of any node in set.
func nestedInAny(n *html.Node, set []*html.Node) bool {
	for _, m := range set {
		if contains(m, n) || contains(n, m) {
			return true
		}
	}
	return false
}

// contains reports whether desc is a strict descendant of anc.
func contains(anc, desc *html.Node) bool {
	for p := desc.Parent; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}

func (t *StructuredTier) acceptReview(text string) bool {
	return utf8.RuneCountInString(text) > t.Rules.MinReviewRunes &&
		!t.Rules.IsChromeLabel(text) &&
		!strings.HasPrefix(text, "http")
}

// FeedTier takes the text of the first feed-role container verbatim.
type FeedTier struct {
	Rules *rules.Rules
}

func (t *FeedTier) Name() string { return TierFeed }

func (t *FeedTier) Apply(doc *goquery.Document) (string, bool) {
	if t.Rules.Feed == nil {
		return "", false
	}
	feed := doc.FindMatcher(goquery.SingleMatcher(selMatcher{t.Rules.Feed}))
	if feed.Length() == 0 {
		return "", false
	}
	text := nodeText(feed.Get(0), textOptions{sep: "\n", strip: true, skip: skipScripts})
	if utf8.RuneCountInString(text) <= t.Rules.MinFeedRunes {
		return "", false
	}
	return text, true
}

// FullPageTier keeps the substantial lines of all visible text, minus
// lines containing navigation phrases.
type FullPageTier struct {
	Rules *rules.Rules
}

func (t *FullPageTier) Name() string { return TierFullPage }

func (t *FullPageTier) Apply(doc *goquery.Document) (string, bool) {
	r := t.Rules
	text := nodeText(doc.Get(0), textOptions{sep: "\n", strip: true, skip: skipFullPage})

	var kept []string
	for _, line := range splitLines(text) {
		line = strings.TrimSpace(line)
		if utf8.RuneCountInString(line) <= r.MinLineRunes || r.HasNavigationPhrase(line) {
			continue
		}
		kept = append(kept, line)
		if len(kept) == r.MaxFullPageLines {
			break
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "\n"), true
}

// GenericTier keeps every non-empty visible line of a content page.
type GenericTier struct {
	Rules *rules.Rules
}

func (t *GenericTier) Name() string { return TierGeneric }

func (t *GenericTier) Apply(doc *goquery.Document) (string, bool) {
	text := nodeText(doc.Get(0), textOptions{sep: "\n", skip: skipScripts})

	var kept []string
	for _, line := range splitLines(text) {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == t.Rules.MaxGenericLines {
			break
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(kept, "\n"), true
}
