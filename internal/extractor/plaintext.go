package extractor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"

	"github.com/dshills/filesift/pkg/types"
)

// binarySniffLen is how much of a file is inspected for binary content
const binarySniffLen = 8000

// PlainTextLoader reads text files as-is
type PlainTextLoader struct {
	exts []string
}

// NewPlainTextLoader handles txt, md, log, mdx and ini, plus any extra
// extensions given
func NewPlainTextLoader(extra ...string) *PlainTextLoader {
	exts := []string{"txt", "md", "log", "mdx", "ini"}
	for _, e := range extra {
		exts = append(exts, types.NormalizeExt(e))
	}
	return &PlainTextLoader{exts: exts}
}

// Extensions implements DocumentLoader
func (p *PlainTextLoader) Extensions() []string {
	return p.exts
}

// Load implements DocumentLoader
func (p *PlainTextLoader) Load(path string) (string, error) {
	return p.LoadBounded(path, 0)
}

// LoadBounded implements DocumentLoader
func (p *PlainTextLoader) LoadBounded(path string, maxChars int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	return p.LoadReader(f, maxChars)
}

// LoadReader reads at most 4*maxChars bytes (everything when maxChars <= 0)
// and keeps the first maxChars characters. Binary content is rejected.
// Invalid UTF-8 sequences are dropped.
func (p *PlainTextLoader) LoadReader(r io.Reader, maxChars int) (string, error) {
	if maxChars > 0 {
		r = io.LimitReader(r, int64(maxChars)*utf8.UTFMax)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	if enry.IsBinary(sniff) {
		return "", fmt.Errorf("%w: binary content", types.ErrUnsupported)
	}

	text := strings.ToValidUTF8(string(data), "")
	if maxChars > 0 && utf8.RuneCountInString(text) > maxChars {
		text = truncateRunes(text, maxChars)
	}
	return text, nil
}

func truncateRunes(s string, n int) string {
	i := 0
	for ; n > 0 && i < len(s); n-- {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i]
}
