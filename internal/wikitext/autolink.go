package wikitext

import (
	"net/url"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SearchPathPrefix is the route article links point at.
const SearchPathPrefix = "/search/"

// AutoLink wraps whole-word occurrences of each title in an anchor to its
// search route. Longer titles are linked first so "Cat" never splits
// "Category". The pass runs over finished HTML and can also match text
// inside attributes; callers accept that.
func AutoLink(html string, titles []string) string {
	for _, title := range orderTitles(titles) {
		html = linkTitle(html, title)
	}
	return html
}

// SearchPath returns the route for an article title.
func SearchPath(title string) string {
	return SearchPathPrefix + url.PathEscape(title)
}

// orderTitles drops empty and duplicate titles and sorts the rest longest
// first, keeping input order among equal lengths.
func orderTitles(titles []string) []string {
	seen := make(map[string]bool, len(titles))
	ordered := make([]string, 0, len(titles))
	for _, t := range titles {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		ordered = append(ordered, t)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return utf8.RuneCountInString(ordered[i]) > utf8.RuneCountInString(ordered[j])
	})
	return ordered
}

// linkTitle replaces every bounded, non-overlapping occurrence of title,
// scanning left to right.
func linkTitle(html, title string) string {
	replacement := `<a href="` + escapeHTML(SearchPath(title)) + `">` + escapeHTML(title) + `</a>`

	var sb strings.Builder
	pos := 0
	search := 0
	for search <= len(html) {
		i := strings.Index(html[search:], title)
		if i < 0 {
			break
		}
		start := search + i
		end := start + len(title)
		if !isWordBoundary(html, start, end) {
			_, size := utf8.DecodeRuneInString(html[start:])
			search = start + size
			continue
		}
		sb.WriteString(html[pos:start])
		sb.WriteString(replacement)
		pos = end
		search = end
	}

	if pos == 0 {
		return html
	}
	sb.WriteString(html[pos:])
	return sb.String()
}

// isWordBoundary reports whether html[start:end] is neither preceded nor
// followed by a word character.
func isWordBoundary(html string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(html[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(html) {
		r, _ := utf8.DecodeRuneInString(html[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
