package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMaxTokens is the chunk capacity used for content embeddings
	DefaultMaxTokens = 1024
	// DefaultOverlap is the number of tokens repeated between adjacent chunks
	DefaultOverlap = 20
)

// TokenCounter measures text in model tokens
type TokenCounter interface {
	Count(text string) int
}

var (
	blankLines = regexp.MustCompile(`\n[ \t\f\v]*(?:\n[ \t\f\v]*)+`)
	wordUnits  = regexp.MustCompile(`\S+\s*`)
)

// CollapseNewlines normalizes line endings and replaces every run of blank
// lines with a single newline
func CollapseNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// Splitter cuts text into chunks of at most MaxTokens tokens. It breaks on
// line boundaries first, then on words, and only splits inside a word when
// the word alone exceeds the limit. Consecutive chunks share up to Overlap
// tokens of trailing units.
type Splitter struct {
	counter   TokenCounter
	maxTokens int
	overlap   int
}

// NewSplitter creates a splitter. Non-positive limits fall back to the
// defaults; overlap is kept below maxTokens.
func NewSplitter(counter TokenCounter, maxTokens, overlap int) *Splitter {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxTokens {
		overlap = maxTokens / 2
	}
	return &Splitter{counter: counter, maxTokens: maxTokens, overlap: overlap}
}

// MaxTokens returns the chunk capacity
func (s *Splitter) MaxTokens() int {
	return s.maxTokens
}

type unit struct {
	text   string
	tokens int
}

// Split returns the chunks of text in order. Whitespace-only text yields no
// chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	var current []unit
	size := 0

	emit := func() {
		chunk := strings.TrimSpace(joinUnits(current))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, u := range s.units(text) {
		if size+u.tokens > s.maxTokens && len(current) > 0 {
			emit()
			current, size = s.tail(current)
			if size+u.tokens > s.maxTokens {
				current, size = nil, 0
			}
		}
		current = append(current, u)
		size += u.tokens
	}
	if len(current) > 0 {
		emit()
	}
	return chunks
}

// tail returns the trailing units of a finished chunk that fit in the overlap
func (s *Splitter) tail(units []unit) ([]unit, int) {
	size := 0
	i := len(units)
	for i > 0 && size+units[i-1].tokens <= s.overlap {
		i--
		size += units[i].tokens
	}
	out := make([]unit, len(units)-i)
	copy(out, units[i:])
	return out, size
}

// units breaks text into lines, lines into words and words into rune runs,
// stopping at the first level where every piece fits
func (s *Splitter) units(text string) []unit {
	var out []unit
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		if n := s.counter.Count(line); n <= s.maxTokens {
			out = append(out, unit{text: line, tokens: n})
			continue
		}
		for _, word := range wordUnits.FindAllString(line, -1) {
			if n := s.counter.Count(word); n <= s.maxTokens {
				out = append(out, unit{text: word, tokens: n})
				continue
			}
			out = append(out, s.splitRunes(word)...)
		}
	}
	return out
}

// splitRunes cuts an oversized word into the longest rune runs that fit
func (s *Splitter) splitRunes(word string) []unit {
	var out []unit
	for word != "" {
		// Binary search for the longest fitting prefix, at least one rune
		lo, hi := 1, utf8.RuneCountInString(word)
		for lo < hi {
			mid := (lo + hi + 1) / 2
			if s.counter.Count(runePrefix(word, mid)) <= s.maxTokens {
				lo = mid
			} else {
				hi = mid - 1
			}
		}
		piece := runePrefix(word, lo)
		out = append(out, unit{text: piece, tokens: s.counter.Count(piece)})
		word = word[len(piece):]
	}
	return out
}

func runePrefix(s string, n int) string {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}

func joinUnits(units []unit) string {
	var b strings.Builder
	for _, u := range units {
		b.WriteString(u.text)
	}
	return b.String()
}
