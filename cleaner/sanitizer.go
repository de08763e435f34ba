package cleaner

import (
	"strings"
	"unicode/utf8"

	"github.com/use-agent/insightx/rules"
)

// Sanitizer normalizes extracted text. Clean is idempotent:
// Clean(Clean(x)) == Clean(x) for every x.
type Sanitizer struct {
	rules    *rules.Rules
	maxRunes int // 0 means unbounded
}

// NewSanitizer returns a Sanitizer sharing r's chrome-label table.
func NewSanitizer(r *rules.Rules, maxRunes int) *Sanitizer {
	if maxRunes < 0 {
		maxRunes = 0
	}
	return &Sanitizer{rules: r, maxRunes: maxRunes}
}

// Clean collapses whitespace runs inside lines, drops lines that are
// exactly a chrome label, collapses blank-line runs to one blank line,
// strips leading and trailing blank lines and bounds the output to
// maxRunes, cutting at a line boundary where possible.
func (s *Sanitizer) Clean(text string) string {
	out := s.normalize(text)
	if s.maxRunes > 0 && utf8.RuneCountInString(out) > s.maxRunes {
		// Truncation can expose a trailing blank line or a cut chrome
		// label; normalizing again keeps Clean a fixed point.
		out = s.normalize(truncateLines(out, s.maxRunes))
	}
	return out
}

func (s *Sanitizer) normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	wrote, blank := false, false
	for _, line := range splitLines(text) {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = true
			continue
		}
		if s.rules != nil && s.rules.IsChromeLabel(line) {
			continue
		}
		if wrote {
			b.WriteByte('\n')
			if blank {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
		wrote, blank = true, false
	}
	return b.String()
}

// truncateLines returns the longest prefix of whole lines of s that fits
// in max runes. When even the first line is too long it is cut at max runes.
func truncateLines(s string, max int) string {
	runes, lastBreak := 0, -1
	for i, r := range s {
		if runes == max {
			if lastBreak >= 0 {
				return s[:lastBreak]
			}
			return s[:i]
		}
		if r == '\n' {
			lastBreak = i
		}
		runes++
	}
	return s
}
