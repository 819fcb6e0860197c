// Package wikitext turns a plain-text wiki extract into sectioned HTML.
//
// Rendering is split into three pure passes: Parse groups lines into
// blocks under "== Heading ==" markers, Format renders the blocks against
// the article's section outline, and AutoLink hyperlinks known titles in
// the finished HTML string.
package wikitext

import (
	"regexp"
	"strings"
)

// headerRe matches "== Heading ==". Leading and trailing marker counts may
// differ; the leading count is the depth.
var headerRe = regexp.MustCompile(`^(=+)\s*(.+?)\s*=+$`)

// Block is a run of body lines under an optional header.
type Block struct {
	Header string // empty for the text before the first header
	Depth  int    // leading marker count, 0 when Header is empty
	Lines  []string
}

// HasHeader reports whether the block starts with a header line.
func (b Block) HasHeader() bool {
	return b.Header != ""
}

// ParseHeader reports whether line is a header and returns its text and
// marker depth.
func ParseHeader(line string) (text string, depth int, ok bool) {
	m := headerRe.FindStringSubmatch(line)
	if m == nil {
		return "", 0, false
	}
	return strings.TrimSpace(m[2]), len(m[1]), true
}

// Parse splits lines into blocks. Blank lines are dropped and blocks with
// no body lines are omitted. Body lines are kept untrimmed.
func Parse(lines []string) []Block {
	var blocks []Block
	var current Block

	flush := func() {
		if len(current.Lines) > 0 {
			blocks = append(blocks, current)
		}
	}

	for _, line := range lines {
		if text, depth, ok := ParseHeader(line); ok {
			flush()
			current = Block{Header: text, Depth: depth}
			continue
		}
		if strings.TrimSpace(line) != "" {
			current.Lines = append(current.Lines, line)
		}
	}
	flush()

	return blocks
}
