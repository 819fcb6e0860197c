// Command benchmark measures article fetch and render latency against the
// configured wiki and cache backend.
//
// Usage:
//
//	go run ./cmd/benchmark -titles "Python,Go (programming language),Mercury"
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/olgasafonova/wikiclone-server/internal/config"
	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
	"github.com/olgasafonova/wikiclone-server/internal/store"
	"github.com/olgasafonova/wikiclone-server/internal/wikitext"
)

// measureFetchPerformance compares the first (network) fetch of each title
// with a second fetch served from cache.
func measureFetchPerformance(ctx context.Context, fetcher *encyclopedia.Fetcher, titles []string) []*encyclopedia.Article {
	fmt.Println("=== Fetch Performance ===")
	fmt.Println()

	articles := make([]*encyclopedia.Article, 0, len(titles))
	for i, title := range titles {
		fmt.Printf("%d. %s\n", i+1, title)

		start := time.Now()
		article, err := fetcher.Fetch(ctx, title)
		if err != nil {
			fmt.Printf("   Error: %v\n\n", err)
			continue
		}
		firstCall := time.Since(start)

		start = time.Now()
		_, _ = fetcher.Fetch(ctx, title)
		secondCall := time.Since(start)

		fmt.Printf("   Resolved title:        %s\n", article.Title)
		if article.RedirectedFrom != "" {
			fmt.Printf("   Redirected from:       %s\n", article.RedirectedFrom)
		}
		fmt.Printf("   First call (network):  %v\n", firstCall)
		fmt.Printf("   Second call (cached):  %v\n", secondCall)
		if secondCall > 0 {
			fmt.Printf("   Speedup: %.0fx faster\n", float64(firstCall)/float64(secondCall))
		}
		fmt.Println()

		articles = append(articles, article)
	}
	return articles
}

// measureRenderPerformance times wiki-text formatting, which auto-links
// every known title and dominates page render cost for link-heavy articles.
func measureRenderPerformance(articles []*encyclopedia.Article, rounds int) {
	fmt.Println("=== Render Performance ===")
	fmt.Println()

	for _, article := range articles {
		var out string
		start := time.Now()
		for i := 0; i < rounds; i++ {
			out = wikitext.Format(article)
		}
		perRound := time.Since(start) / time.Duration(rounds)

		fmt.Printf("%s\n", article.Title)
		fmt.Printf("   Content: %d bytes, %d links, %d sections\n",
			len(article.Content), len(article.Links), len(article.Sections))
		fmt.Printf("   HTML:    %d bytes\n", len(out))
		fmt.Printf("   Format:  %v per round (%d rounds)\n", perRound, rounds)
		fmt.Println()
	}
}

func splitTitles(s string) []string {
	var titles []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			titles = append(titles, t)
		}
	}
	return titles
}

func main() {
	titleList := flag.String("titles", "Python,Go (programming language),Mercury", "Comma-separated article titles")
	rounds := flag.Int("rounds", 20, "Format iterations per article")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *rounds <= 0 {
		*rounds = 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	cache, err := store.Open(ctx, cfg.StoreOptions(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cache error: %v\n", err)
		os.Exit(1)
	}
	defer cache.Close()

	fetcher := encyclopedia.NewFetcher(
		encyclopedia.NewHTTPTransport(
			encyclopedia.WithBaseURL(cfg.APIURL),
			encyclopedia.WithUserAgent(cfg.UserAgent),
			encyclopedia.WithTransportLogger(logger),
		),
		cache,
		encyclopedia.WithLogger(logger),
		encyclopedia.WithTTL(cfg.Cache.TTL),
	)

	fmt.Println("WikiClone Server - Performance Measurements")
	fmt.Println("===========================================")
	fmt.Printf("API:   %s\n", cfg.APIURL)
	fmt.Printf("Cache: %s\n", cfg.Cache.Backend)
	fmt.Println()

	articles := measureFetchPerformance(ctx, fetcher, splitTitles(*titleList))
	measureRenderPerformance(articles, *rounds)
}
