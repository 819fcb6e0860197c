package encyclopedia

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/olgasafonova/wikiclone-server/metrics"
	"github.com/olgasafonova/wikiclone-server/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// ArticleTTL is how long a fetched article stays cached
	ArticleTTL = 24 * time.Hour

	// OutlineTimeout bounds the sections/redirect lookup
	OutlineTimeout = 10 * time.Second

	// ContentTimeout bounds the extract/links lookup, which transfers more data
	ContentTimeout = 15 * time.Second

	// RandomTimeout bounds the random title lookup
	RandomTimeout = 10 * time.Second

	cacheKeyPrefix = "wiki:article:"
)

// Cache stores articles by key with a TTL. Implementations own eviction.
type Cache interface {
	Get(ctx context.Context, key string) (*Article, bool)
	Set(ctx context.Context, key string, article *Article, ttl time.Duration)
}

// Fetcher resolves titles to Articles through a Cache and a Transport.
// It does not lock or deduplicate: two concurrent misses for the same title
// both go upstream and the last write wins.
type Fetcher struct {
	transport Transport
	cache     Cache
	logger    *slog.Logger
	ttl       time.Duration
}

// FetcherOption configures the Fetcher
type FetcherOption func(*Fetcher)

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// WithTTL overrides ArticleTTL
func WithTTL(ttl time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if ttl > 0 {
			f.ttl = ttl
		}
	}
}

// NewFetcher creates a Fetcher around the given transport and cache.
func NewFetcher(transport Transport, cache Cache, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		transport: transport,
		cache:     cache,
		logger:    slog.Default(),
		ttl:       ArticleTTL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NormalizeTitle trims, lower-cases and replaces spaces with underscores.
func NormalizeTitle(title string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(title)), " ", "_")
}

// CacheKey returns the cache key for a requested title.
func CacheKey(title string) string {
	return cacheKeyPrefix + url.PathEscape(NormalizeTitle(title))
}

// outline is the part of the parse response the fetcher keeps.
type outline struct {
	title          string
	sections       []Section
	redirectedFrom string
}

type parseResponse struct {
	Parse struct {
		Title     string    `json:"title"`
		PageID    int       `json:"pageid"`
		Sections  []Section `json:"sections"`
		Redirects []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"redirects"`
	} `json:"parse"`
}

type queryPage struct {
	PageID    int                        `json:"pageid"`
	Title     string                     `json:"title"`
	Extract   string                     `json:"extract"`
	Missing   json.RawMessage            `json:"missing"`
	PageProps map[string]json.RawMessage `json:"pageprops"`
	Links     []struct {
		NS    int    `json:"ns"`
		Title string `json:"title"`
	} `json:"links"`
}

type queryResponse struct {
	Query struct {
		Pages map[string]queryPage `json:"pages"`
	} `json:"query"`
}

// Fetch returns the article for title, from cache when present.
func (f *Fetcher) Fetch(ctx context.Context, title string) (*Article, error) {
	ctx, span := tracing.StartSpan(ctx, "encyclopedia.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("wiki.page.title", title))

	start := time.Now()
	key := CacheKey(title)

	if cached, ok := f.cache.Get(ctx, key); ok {
		metrics.RecordCacheAccess(true)
		metrics.RecordFetch("cache_hit", time.Since(start).Seconds())
		span.SetAttributes(attribute.Bool("wiki.cache.hit", true))
		f.logger.Debug("Article cache hit", "title", title, "key", key)
		return cached, nil
	}
	metrics.RecordCacheAccess(false)
	span.SetAttributes(attribute.Bool("wiki.cache.hit", false))

	article, err := f.fetchRemote(ctx, title)
	if err != nil {
		fe := AsError(err)
		metrics.RecordFetch(string(fe.Kind), time.Since(start).Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, fe.Message)
		return nil, fe
	}

	f.cache.Set(ctx, key, article, f.ttl)
	metrics.RecordFetch("fetched", time.Since(start).Seconds())
	metrics.ContentSize.WithLabelValues("article_extract").Observe(float64(len(article.Content)))
	span.SetStatus(codes.Ok, "")

	f.logger.Info("Article fetched",
		"title", title,
		"resolved_title", article.Title,
		"redirected_from", article.RedirectedFrom,
		"sections", len(article.Sections),
		"links", len(article.Links),
		"disambiguation", article.IsDisambiguation)

	return article, nil
}

func (f *Fetcher) fetchRemote(ctx context.Context, title string) (*Article, error) {
	ol, err := f.fetchOutline(ctx, title)
	if err != nil {
		return nil, err
	}
	return f.fetchContent(ctx, ol)
}

// fetchOutline asks the parse API for sections, following redirects.
func (f *Fetcher) fetchOutline(ctx context.Context, title string) (*outline, error) {
	params := url.Values{}
	params.Set("action", "parse")
	params.Set("page", title)
	params.Set("prop", "sections")
	params.Set("redirects", "1")

	resp, err := f.transport.Get(ctx, params, OutlineTimeout)
	if err != nil {
		return nil, err
	}

	var pr parseResponse
	if err := json.Unmarshal(resp.Body, &pr); err != nil {
		return nil, decodeError("parse", err)
	}

	if pr.Parse.PageID == 0 {
		return nil, NewNotFoundError(title)
	}

	ol := &outline{
		title:    pr.Parse.Title,
		sections: pr.Parse.Sections,
	}
	if ol.title == "" {
		ol.title = title
	}
	if len(pr.Parse.Redirects) > 0 {
		ol.redirectedFrom = pr.Parse.Redirects[0].From
	}
	return ol, nil
}

// fetchContent asks the query API for the extract, links and page props of
// the resolved title.
func (f *Fetcher) fetchContent(ctx context.Context, ol *outline) (*Article, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("titles", ol.title)
	params.Set("prop", "extracts|links|info|categories|pageprops")
	params.Set("explaintext", "1")
	params.Set("inprop", "url")
	params.Set("pllimit", "500")

	resp, err := f.transport.Get(ctx, params, ContentTimeout)
	if err != nil {
		return nil, err
	}

	var qr queryResponse
	if err := json.Unmarshal(resp.Body, &qr); err != nil {
		return nil, decodeError("query", err)
	}

	page, ok := firstPage(qr.Query.Pages)
	if !ok || page.Missing != nil {
		return nil, NewNotFoundError(ol.title)
	}

	links := make([]string, 0, len(page.Links))
	for _, l := range page.Links {
		links = append(links, l.Title)
	}

	_, disambiguation := page.PageProps["disambiguation"]

	title := page.Title
	if title == "" {
		title = ol.title
	}

	return &Article{
		Title:            title,
		Content:          page.Extract,
		Links:            links,
		Sections:         ol.sections,
		IsDisambiguation: disambiguation,
		RedirectedFrom:   ol.redirectedFrom,
		ETag:             resp.ETag,
	}, nil
}

// FetchRandom returns the title of a random main-namespace article with any
// "Namespace:" prefix removed.
func (f *Fetcher) FetchRandom(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "encyclopedia.fetch_random")
	defer span.End()

	params := url.Values{}
	params.Set("action", "query")
	params.Set("generator", "random")
	params.Set("grnnamespace", "0")
	params.Set("grnlimit", "1")

	resp, err := f.transport.Get(ctx, params, RandomTimeout)
	if err != nil {
		span.RecordError(err)
		return "", AsError(err)
	}

	var qr queryResponse
	if err := json.Unmarshal(resp.Body, &qr); err != nil {
		return "", decodeError("random", err)
	}

	page, ok := firstPage(qr.Query.Pages)
	if !ok || page.Title == "" {
		return "", NewError(KindFetchFailure, "Wiki returned no random article.", "")
	}

	title := page.Title
	if _, rest, found := strings.Cut(title, ":"); found {
		title = strings.TrimSpace(rest)
	}

	span.SetAttributes(attribute.String("wiki.page.title", title))
	return title, nil
}

// firstPage picks the single page of a query response. The "-1" key marks
// a missing page.
func firstPage(pages map[string]queryPage) (queryPage, bool) {
	if len(pages) == 0 {
		return queryPage{}, false
	}
	if _, missing := pages["-1"]; missing {
		return queryPage{}, false
	}
	keys := make([]string, 0, len(pages))
	for k := range pages {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return pages[keys[0]], true
}

func decodeError(action string, err error) *Error {
	e := NewError(KindFetchFailure, "", "")
	e.Err = fmt.Errorf("failed to parse %s response: %w", action, err)
	return e
}
