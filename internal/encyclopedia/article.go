// Package encyclopedia fetches articles from a MediaWiki API, merges the
// outline and content responses into an Article and caches the result.
package encyclopedia

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Article is the canonical fetched result for a single page.
// It is never mutated after the Fetcher builds it.
type Article struct {
	Title            string    `json:"title" bson:"title"`
	Content          string    `json:"content" bson:"content"`
	Links            []string  `json:"links" bson:"links"`
	Sections         []Section `json:"sections" bson:"sections"`
	IsDisambiguation bool      `json:"is_disambiguation" bson:"is_disambiguation"`
	RedirectedFrom   string    `json:"redirected_from,omitempty" bson:"redirected_from,omitempty"`

	// ETag is the upstream freshness token. Advisory only.
	ETag string `json:"etag,omitempty" bson:"etag,omitempty"`
}

// Section is one heading from the upstream outline.
type Section struct {
	Line   string `json:"line" bson:"line"`
	Level  Level  `json:"level" bson:"level"`
	Anchor string `json:"anchor" bson:"anchor"`
}

// Level is a heading depth. The parse API reports it as a string ("2"),
// cached records store it as a number; both decode.
type Level int

// UnmarshalJSON accepts "2" and 2.
func (l *Level) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*l = Level(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("section level must be a number or numeric string: %w", err)
	}
	if s == "" {
		*l = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid section level %q: %w", s, err)
	}
	*l = Level(n)
	return nil
}
