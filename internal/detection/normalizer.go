package detection

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer turns raw merchant strings into vendor grouping keys.
// It is safe for concurrent use.
type Normalizer struct {
	suffixes map[string]struct{}
}

// NewNormalizer creates a normalizer that strips the given trailing suffixes.
// Suffixes are matched case-insensitively against whole words.
func NewNormalizer(suffixes []string) *Normalizer {
	set := make(map[string]struct{}, len(suffixes))
	for _, s := range suffixes {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			set[s] = struct{}{}
		}
	}
	return &Normalizer{suffixes: set}
}

// Normalize returns the vendor key for raw, or ErrInvalidVendorName when
// nothing is left after normalization.
func (n *Normalizer) Normalize(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))

	words := strings.Fields(s)
	for len(words) > 1 && n.isSuffix(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	s = strings.Join(words, " ")

	s = stripPunctuation(foldDiacritics(s))
	s = strings.Join(strings.Fields(s), " ")

	if s == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidVendorName, raw)
	}
	return s, nil
}

func (n *Normalizer) isSuffix(word string) bool {
	if _, ok := n.suffixes[word]; ok {
		return true
	}
	// "Adobe, Inc.," and similar.
	_, ok := n.suffixes[strings.TrimRight(word, ",;")]
	return ok
}

// foldDiacritics maps "café" to "cafe".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func stripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return b.String()
}
