// Package answers turns human-entered answer strings into the canonical
// letter sequence used for positional comparison.
package answers

import (
	"strings"
	"unicode"
)

// Sequence is an ordered list of single-letter responses, lower-cased.
type Sequence []rune

// Normalize drops whitespace and everything that is not a letter, lower-cases
// the rest and keeps the order. "1a 2B3c" and "abc" both yield [a b c].
func Normalize(raw string) Sequence {
	out := make(Sequence, 0, len(raw))
	for _, r := range raw {
		if unicode.IsSpace(r) || !unicode.IsLetter(r) {
			continue
		}
		out = append(out, unicode.ToLower(r))
	}
	return out
}

// Count is the number of questions a raw string answers.
func Count(raw string) int { return len(Normalize(raw)) }

func (s Sequence) Len() int { return len(s) }

func (s Sequence) String() string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(r)
	}
	return b.String()
}

// At returns the letter at i, or 0 when i is out of range.
func (s Sequence) At(i int) rune {
	if i < 0 || i >= len(s) {
		return 0
	}
	return s[i]
}

// Matches counts positions where s and key agree, up to the shorter length.
func (s Sequence) Matches(key Sequence) int {
	n := min(len(s), len(key))
	hits := 0
	for i := 0; i < n; i++ {
		if s[i] == key[i] {
			hits++
		}
	}
	return hits
}
