// Package rules holds the versioned extraction rules table: URL markers,
// UI labels, container selectors, review-text patterns, noise tables and
// the user-agent pool.
//
// Third-party page markup and UI strings change without notice, so none of
// this is hardcoded in the pipeline. A table is embedded as the default and
// can be replaced by a JSON file at startup (INSIGHTX_RULES_FILE). Every
// selector and class pattern is compiled on load; a table that does not
// compile is rejected.
package rules

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
)

//go:embed default.json
var defaultTable []byte

// Target describes a clickable UI control by visible text or aria-label.
// A button matches when its trimmed text equals or contains a label, or
// its aria-label contains one of AriaLabels.
type Target struct {
	Labels     []string `json:"labels"`
	AriaLabels []string `json:"aria_labels,omitempty"`
}

// Empty reports whether the target has nothing to match.
func (t Target) Empty() bool {
	return len(t.Labels) == 0 && len(t.AriaLabels) == 0
}

// TextRuleSpec is the serialized form of a structured review-text rule.
type TextRuleSpec struct {
	Element      string `json:"element"`
	ClassPattern string `json:"class_pattern"`
}

// Table is the serialized rules table.
type Table struct {
	Version          string         `json:"version"`
	MapMarkers       []string       `json:"map_markers"`
	ShortlinkMarkers []string       `json:"shortlink_markers"`
	UserAgents       []string       `json:"user_agents"`
	AcceptLanguage   string         `json:"accept_language"`
	Consent          Target         `json:"consent"`
	ReviewsTab       Target         `json:"reviews_tab"`
	MoreReviews      Target         `json:"more_reviews"`
	Containers       []string       `json:"containers"`
	TextRules        []TextRuleSpec `json:"text_rules"`

	MaxStructuredMatches int    `json:"max_structured_matches"`
	MinReviewRunes       int    `json:"min_review_runes"`
	FeedSelector         string `json:"feed_selector"`
	MinFeedRunes         int    `json:"min_feed_runes"`

	ChromeLabels      []string `json:"chrome_labels"`
	NavigationPhrases []string `json:"navigation_phrases"`

	MinLineRunes     int    `json:"min_line_runes"`
	MaxFullPageLines int    `json:"max_full_page_lines"`
	MaxGenericLines  int    `json:"max_generic_lines"`
	Separator        string `json:"separator"`
}

// TextRule is a compiled structured review-text rule: an element selector
// plus a class-name pattern.
type TextRule struct {
	Element cascadia.Sel
	Class   *regexp.Regexp
	Source  TextRuleSpec
}

// Rules is a validated, compiled rules table. It is read-only after Load
// and safe for concurrent use.
type Rules struct {
	Table

	TextRulesCompiled []TextRule
	Feed              cascadia.Sel

	chrome map[string]struct{}
}

// Default returns the embedded rules table. It panics if the embedded table
// is invalid, which is a build defect.
func Default() *Rules {
	r, err := Parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded table: %v", err))
	}
	return r
}

// Load returns the rules at path, or the embedded table when path is empty.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Parse(defaultTable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and compiles a JSON rules table.
func Parse(data []byte) (*Rules, error) {
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return Compile(t)
}

// Compile validates t and compiles its selectors and patterns.
func Compile(t Table) (*Rules, error) {
	var errs []error
	if t.Version == "" {
		errs = append(errs, errors.New("version is required"))
	}
	if len(t.MapMarkers) == 0 {
		errs = append(errs, errors.New("map_markers is empty"))
	}
	if len(t.UserAgents) == 0 {
		errs = append(errs, errors.New("user_agents is empty"))
	}
	if len(t.TextRules) == 0 {
		errs = append(errs, errors.New("text_rules is empty"))
	}
	if t.Separator == "" {
		errs = append(errs, errors.New("separator is required"))
	}
	for name, n := range map[string]int{
		"max_structured_matches": t.MaxStructuredMatches,
		"max_full_page_lines":    t.MaxFullPageLines,
		"max_generic_lines":      t.MaxGenericLines,
	} {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}

	r := &Rules{Table: t, chrome: make(map[string]struct{}, len(t.ChromeLabels))}

	for i, rs := range t.TextRules {
		sel, err := cascadia.Parse(rs.Element)
		if err != nil {
			errs = append(errs, fmt.Errorf("text_rules[%d].element %q: %w", i, rs.Element, err))
			continue
		}
		re, err := regexp.Compile(rs.ClassPattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("text_rules[%d].class_pattern %q: %w", i, rs.ClassPattern, err))
			continue
		}
		r.TextRulesCompiled = append(r.TextRulesCompiled, TextRule{Element: sel, Class: re, Source: rs})
	}

	// Containers are evaluated in the page, but must still be valid CSS.
	for i, c := range t.Containers {
		if _, err := cascadia.Parse(c); err != nil {
			errs = append(errs, fmt.Errorf("containers[%d] %q: %w", i, c, err))
		}
	}

	if t.FeedSelector != "" {
		sel, err := cascadia.Parse(t.FeedSelector)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed_selector %q: %w", t.FeedSelector, err))
		} else {
			r.Feed = sel
		}
	}

	for _, l := range t.ChromeLabels {
		r.chrome[l] = struct{}{}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// IsChromeLabel reports whether s is exactly one of the UI chrome labels.
func (r *Rules) IsChromeLabel(s string) bool {
	_, ok := r.chrome[s]
	return ok
}

// HasNavigationPhrase reports whether line contains a navigation phrase.
func (r *Rules) HasNavigationPhrase(line string) bool {
	for _, p := range r.NavigationPhrases {
		if strings.Contains(line, p) {
			return true
		}
	}
	return false
}

// IsMapURL reports whether rawURL carries a map-review marker.
func (r *Rules) IsMapURL(rawURL string) bool {
	return containsAny(rawURL, r.MapMarkers)
}

// IsShortlink reports whether rawURL carries a shortlink marker.
func (r *Rules) IsShortlink(rawURL string) bool {
	return containsAny(rawURL, r.ShortlinkMarkers)
}

func containsAny(s string, subs []string) bool {
	for _, m := range subs {
		if m != "" && strings.Contains(s, m) {
			return true
		}
	}
	return false
}
