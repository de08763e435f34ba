package cleaner

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipSet lists elements whose subtrees contribute no visible text.
type skipSet map[atom.Atom]bool

var (
	skipScripts  = skipSet{atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true}
	skipFullPage = skipSet{atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true, atom.Meta: true, atom.Link: true}
)

// textOptions controls how text nodes under an element are joined.
type textOptions struct {
	sep   string
	strip bool // trim each text node and drop the empty ones
	skip  skipSet
}

// nodeText concatenates the text nodes under n in document order.
// Nothing in the tree is modified, so tiers can share one parsed document.
func nodeText(n *html.Node, opts textOptions) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			s := c.Data
			if opts.strip {
				s = strings.TrimSpace(s)
				if s == "" {
					return
				}
			}
			parts = append(parts, s)
			return
		case html.ElementNode:
			if opts.skip[c.DataAtom] {
				return
			}
		case html.CommentNode, html.DoctypeNode:
			return
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(n)
	return strings.Join(parts, opts.sep)
}

// classMatches reports whether any class token of n, or its whole class
// attribute, satisfies match.
func classMatches(n *html.Node, match func(string) bool) bool {
	for _, a := range n.Attr {
		if a.Namespace != "" || a.Key != "class" {
			continue
		}
		for _, tok := range strings.Fields(a.Val) {
			if match(tok) {
				return true
			}
		}
		return match(a.Val)
	}
	return false
}

// splitLines splits s on any line terminator.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}
