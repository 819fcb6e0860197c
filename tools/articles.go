package tools

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
	"github.com/olgasafonova/wikiclone-server/internal/wikitext"
	"github.com/olgasafonova/wikiclone-server/metrics"
)

// ErrEmptyTitle is returned when a tool is called without a title.
var ErrEmptyTitle = errors.New("title is required")

// ArticleSource is what the tools read from. *encyclopedia.Fetcher satisfies it.
type ArticleSource interface {
	Fetch(ctx context.Context, title string) (*encyclopedia.Article, error)
	FetchRandom(ctx context.Context) (string, error)
}

// GetArticleArgs contains parameters for wiki_get_article
type GetArticleArgs struct {
	Title          string `json:"title" jsonschema:"Article title to fetch"`
	IncludeContent bool   `json:"include_content,omitempty" jsonschema:"Also return the plain-text extract (default: false)"`
}

// GetArticleResult is the result of wiki_get_article
type GetArticleResult struct {
	Title            string                 `json:"title"`
	Path             string                 `json:"path"`
	RedirectedFrom   string                 `json:"redirected_from,omitempty"`
	IsDisambiguation bool                   `json:"is_disambiguation"`
	Sections         []encyclopedia.Section `json:"sections"`
	Links            []string               `json:"links"`
	HTML             string                 `json:"html"`
	Content          string                 `json:"content,omitempty"`
}

// RandomArticleArgs takes no parameters
type RandomArticleArgs struct{}

// RandomArticleResult is the result of wiki_random_article
type RandomArticleResult struct {
	Title string `json:"title"`
	Path  string `json:"path"`
}

// ArticleTools implements the article tool methods.
type ArticleTools struct {
	source ArticleSource
}

// NewArticleTools creates the tool methods over source.
func NewArticleTools(source ArticleSource) *ArticleTools {
	return &ArticleTools{source: source}
}

// GetArticle fetches and renders one article.
func (a *ArticleTools) GetArticle(ctx context.Context, args GetArticleArgs) (GetArticleResult, error) {
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return GetArticleResult{}, ErrEmptyTitle
	}

	article, err := a.source.Fetch(ctx, title)
	if err != nil {
		return GetArticleResult{}, err
	}

	start := time.Now()
	html := wikitext.Format(article)
	metrics.RenderDuration.Observe(time.Since(start).Seconds())

	result := GetArticleResult{
		Title:            article.Title,
		Path:             wikitext.SearchPath(article.Title) + "/",
		RedirectedFrom:   article.RedirectedFrom,
		IsDisambiguation: article.IsDisambiguation,
		Sections:         article.Sections,
		Links:            article.Links,
		HTML:             html,
	}
	if result.Sections == nil {
		result.Sections = []encyclopedia.Section{}
	}
	if result.Links == nil {
		result.Links = []string{}
	}
	if args.IncludeContent {
		result.Content = article.Content
	}
	return result, nil
}

// RandomArticle picks a random article title.
func (a *ArticleTools) RandomArticle(ctx context.Context, _ RandomArticleArgs) (RandomArticleResult, error) {
	title, err := a.source.FetchRandom(ctx)
	if err != nil {
		return RandomArticleResult{}, err
	}
	return RandomArticleResult{
		Title: title,
		Path:  wikitext.SearchPath(title) + "/",
	}, nil
}
