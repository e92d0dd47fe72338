package searcher

import (
	"strings"
	"unicode/utf8"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// keywordMatcher finds a query's keywords in paths in one pass.
// Matches are leftmost-longest without overlap.
type keywordMatcher struct {
	ac ahocorasick.AhoCorasick
	// keyword index per pattern
	index []int
}

// newKeywordMatcher builds a matcher for keywords. Empty keywords are
// ignored; duplicates (case-insensitive) keep the first index.
func newKeywordMatcher(keywords []string) *keywordMatcher {
	m := &keywordMatcher{}
	seen := make(map[string]bool, len(keywords))
	patterns := make([]string, 0, len(keywords))
	for i, kw := range keywords {
		lower := strings.ToLower(kw)
		if lower == "" || seen[lower] {
			continue
		}
		seen[lower] = true
		patterns = append(patterns, lower)
		m.index = append(m.index, i)
	}
	if len(patterns) == 0 {
		return m
	}
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
		DFA:                  true,
	})
	m.ac = builder.Build(patterns)
	return m
}

// matchedKeywords returns the indexes of the distinct keywords found in text,
// in keyword order
func (m *keywordMatcher) matchedKeywords(text string) []int {
	if len(m.index) == 0 {
		return nil
	}
	if !isASCII(text) {
		text = strings.ToLower(text)
	}
	matches := m.ac.FindAll(text)
	if len(matches) == 0 {
		return nil
	}
	hit := make([]bool, len(m.index))
	for _, match := range matches {
		hit[match.Pattern()] = true
	}
	out := make([]int, 0, len(matches))
	for p, ok := range hit {
		if ok {
			out = append(out, m.index[p])
		}
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
