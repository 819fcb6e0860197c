package wikitext

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
)

// Class hooks used by the page templates. Keep these stable.
const (
	ClassContentSection = "container content-container"
	ClassListContainer  = "container"
	ClassSeparator      = "side-app-bar"
	ClassIntro          = "intro-text"
	ClassBold           = "fw-bold"
	ClassSubHeading     = "fw-bold mb-3"
	ClassListItem       = "main-text-content"

	// defaultLevel applies when a matched outline entry carries no level
	defaultLevel = 2

	// introPlainWords is how many trailing words of a disambiguation
	// intro stay unbolded
	introPlainWords = 3
)

var (
	separator = `<hr class="` + ClassSeparator + `">`

	// nonWordRe matches runs of characters that are not letters, digits or underscore
	nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

	htmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
	)
)

// Format renders an article as HTML. It never fails: missing sections,
// empty content and malformed headers all degrade to plain sections.
func Format(article *encyclopedia.Article) string {
	if article == nil {
		return ""
	}

	lines := strings.Split(article.Content, "\n")

	var out []string
	if article.IsDisambiguation {
		out = append(out, disambiguationIntro(lines[0])...)
		lines = lines[1:]
	} else {
		out = append(out, separator)
	}

	for _, block := range Parse(lines) {
		out = append(out, renderBlock(block, article.Sections)...)
	}

	html := strings.Join(out, "\n")
	if len(article.Links) > 0 {
		html = AutoLink(html, article.Links)
	}
	return html
}

// disambiguationIntro bolds every word of the first line except the last
// three. Lines with three words or fewer get an empty bold run.
func disambiguationIntro(line string) []string {
	words := strings.Fields(line)
	cut := len(words) - introPlainWords
	if cut < 0 {
		cut = 0
	}

	bold := make([]string, 0, cut)
	for _, w := range words[:cut] {
		bold = append(bold, escapeHTML(w))
	}

	return []string{
		`<div class="` + ClassContentSection + `">`,
		separator,
		fmt.Sprintf(`<p class="%s"><span class="%s">%s </span>%s</p>`,
			ClassIntro, ClassBold, strings.Join(bold, " "), escapeHTML(strings.Join(words[cut:], " "))),
		`</div>`,
	}
}

func renderBlock(block Block, sections []encyclopedia.Section) []string {
	out := []string{`<div class="` + ClassContentSection + `">`}

	if block.HasHeader() {
		level, anchor := resolveHeading(block, sections)
		rank := HeadingRank(level)
		if rank == 3 {
			out = append(out, fmt.Sprintf(`<h%d id="%s">%s</h%d>%s`,
				rank, escapeHTML(anchor), escapeHTML(block.Header), rank, separator))
		} else {
			out = append(out, fmt.Sprintf(`<h%d id="%s" class="%s">%s</h%d>`,
				rank, escapeHTML(anchor), ClassSubHeading, escapeHTML(block.Header), rank))
		}
	}

	out = append(out, `<div class="`+ClassListContainer+`"><ul>`)
	for _, line := range block.Lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, fmt.Sprintf(`<li class="%s">%s</li>`, ClassListItem, escapeHTML(text)))
		}
	}
	out = append(out, `</ul></div></div>`)

	return out
}

// resolveHeading picks the outline entry whose text matches the header,
// falling back to the marker depth and a slug of the header text.
func resolveHeading(block Block, sections []encyclopedia.Section) (int, string) {
	want := strings.ToLower(block.Header)
	for _, s := range sections {
		if strings.ToLower(strings.TrimSpace(s.Line)) != want {
			continue
		}
		level := int(s.Level)
		if level <= 0 {
			level = defaultLevel
		}
		anchor := s.Anchor
		if anchor == "" {
			anchor = Slugify(block.Header)
		}
		return level, anchor
	}
	return block.Depth, Slugify(block.Header)
}

// HeadingRank maps an outline level to an h1-h6 rank: level+1, capped at 6.
func HeadingRank(level int) int {
	return min(level+1, 6)
}

// Slugify lower-cases text and collapses non-word runs into single hyphens.
func Slugify(text string) string {
	return strings.Trim(nonWordRe.ReplaceAllString(strings.ToLower(text), "-"), "-")
}

func escapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
