// Package simhash fingerprints short texts so near-duplicate reviews can be
// dropped. Tokens are whitespace-separated words for alphabetic scripts and
// overlapping rune bigrams for Han, Hiragana, Katakana and Hangul runs,
// which have no word separators.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// Fingerprint computes a 64-bit SimHash of the given text.
// Uses FNV-64a hash on tokens with bit vector accumulation.
func Fingerprint(text string) uint64 {
	tokens := Tokens(text)
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int

	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}

	return fingerprint
}

// Tokens splits text into lowercase words, with ideographic runs broken
// into overlapping bigrams. A lone ideograph is its own token.
func Tokens(text string) []string {
	var tokens []string
	for _, field := range strings.Fields(strings.ToLower(text)) {
		var word []rune
		var cjk []rune
		flushWord := func() {
			if len(word) > 0 {
				tokens = append(tokens, string(word))
				word = word[:0]
			}
		}
		flushCJK := func() {
			switch {
			case len(cjk) == 1:
				tokens = append(tokens, string(cjk))
			case len(cjk) > 1:
				for i := 0; i+1 < len(cjk); i++ {
					tokens = append(tokens, string(cjk[i:i+2]))
				}
			}
			cjk = cjk[:0]
		}
		for _, r := range field {
			switch {
			case isIdeographic(r):
				flushWord()
				cjk = append(cjk, r)
			case unicode.IsLetter(r) || unicode.IsDigit(r):
				flushCJK()
				word = append(word, r)
			default:
				flushWord()
				flushCJK()
			}
		}
		flushWord()
		flushCJK()
	}
	return tokens
}

func isIdeographic(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// Distance returns the Hamming distance between two SimHash fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar returns true if the Hamming distance between two fingerprints
// is less than or equal to the threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Set remembers fingerprints and answers whether a text is a near
// duplicate of one seen before. The zero value is not usable; use NewSet.
// A Set is not safe for concurrent use.
type Set struct {
	threshold int
	seen      []uint64
}

// NewSet returns an empty set with the given Hamming threshold.
func NewSet(threshold int) *Set {
	return &Set{threshold: threshold}
}

// Add records text and reports whether it was new. Texts without tokens
// are always new.
func (s *Set) Add(text string) bool {
	fp := Fingerprint(text)
	if fp == 0 {
		return true
	}
	for _, prev := range s.seen {
		if Similar(prev, fp, s.threshold) {
			return false
		}
	}
	s.seen = append(s.seen, fp)
	return true
}

// Dedupe returns texts with near duplicates of earlier entries removed,
// preserving order. A negative threshold disables dedupe.
func Dedupe(texts []string, threshold int) []string {
	if threshold < 0 || len(texts) < 2 {
		return texts
	}
	set := NewSet(threshold)
	out := texts[:0:0]
	for _, t := range texts {
		if set.Add(t) {
			out = append(out, t)
		}
	}
	return out
}
