package cleaner

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/insightx/models"
	"github.com/use-agent/insightx/rules"
)

// TierResult is the outcome of one extraction. At most one tier is
// accepted; when none is, Text is empty and Tier is "".
type TierResult struct {
	Text     string
	Tier     string
	Index    int // position of the accepted tier in its chain, -1 if none
	Accepted bool
}

// Engine runs an ordered tier chain per variant over rendered HTML.
// It is stateless after construction and safe for concurrent use.
type Engine struct {
	chains map[models.Variant][]Tier
}

// Option configures an Engine.
type Option func(*Engine)

// WithTiers replaces the tier chain used for variant.
func WithTiers(variant models.Variant, tiers ...Tier) Option {
	return func(e *Engine) {
		e.chains[variant] = tiers
	}
}

// NewEngine builds the default chains from the rules table:
// structured, feed and full-page for map-review pages; the whole-page
// generic tier for everything else.
func NewEngine(r *rules.Rules, dedupeThreshold int, opts ...Option) *Engine {
	if dedupeThreshold == 0 {
		dedupeThreshold = -1
	}
	e := &Engine{
		chains: map[models.Variant][]Tier{
			models.VariantMapReview: {
				&StructuredTier{Rules: r, DedupeThreshold: dedupeThreshold},
				&FeedTier{Rules: r},
				&FullPageTier{Rules: r},
			},
			models.VariantGeneric: {
				&GenericTier{Rules: r},
			},
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tiers returns the chain for variant.
func (e *Engine) Tiers(variant models.Variant) []Tier {
	return e.chains[variant]
}

// Extract parses rawHTML once and applies the chain for variant, returning
// the first accepted tier. No acceptance is not an error: the result is
// simply empty.
func (e *Engine) Extract(rawHTML string, variant models.Variant) TierResult {
	none := TierResult{Index: -1}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		slog.Warn("extract: html parse failed", "error", err)
		return none
	}

	for i, tier := range e.chains[variant] {
		text, ok := tier.Apply(doc)
		if !ok || strings.TrimSpace(text) == "" {
			slog.Debug("extract: tier declined", "tier", tier.Name(), "variant", variant.String())
			continue
		}
		slog.Debug("extract: tier accepted", "tier", tier.Name(), "variant", variant.String(), "chars", len(text))
		return TierResult{Text: text, Tier: tier.Name(), Index: i, Accepted: true}
	}
	return none
}
