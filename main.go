// WikiClone Server - an encyclopedia reader backed by a MediaWiki API.
// Serves HTML article pages and exposes the same articles as MCP tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/olgasafonova/wikiclone-server/internal/config"
	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
	"github.com/olgasafonova/wikiclone-server/internal/store"
	"github.com/olgasafonova/wikiclone-server/internal/web"
	"github.com/olgasafonova/wikiclone-server/tools"
	"github.com/olgasafonova/wikiclone-server/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ServerName    = "wikiclone-server"
	ServerVersion = "1.0.0"

	shutdownTimeout = 10 * time.Second
)

// recoverPanic logs a panic instead of crashing the process
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

func main() {
	mode := flag.String("mode", "http", "Run mode: http (web pages, /metrics and /mcp) or stdio (MCP over stdin/stdout)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Logs go to stderr; stdout carries MCP traffic in stdio mode
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *mode, logger); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level, _ := cfg.SlogLevel()
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func run(ctx context.Context, cfg *config.Config, mode string, logger *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("Tracing shutdown failed", "error", err)
		}
	}()

	cache, err := store.Open(ctx, cfg.StoreOptions(logger))
	if err != nil {
		return fmt.Errorf("failed to open %s cache: %w", cfg.Cache.Backend, err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("Cache close failed", "error", err)
		}
	}()

	transport := encyclopedia.NewHTTPTransport(
		encyclopedia.WithBaseURL(cfg.APIURL),
		encyclopedia.WithUserAgent(cfg.UserAgent),
		encyclopedia.WithTransportLogger(logger),
	)
	fetcher := encyclopedia.NewFetcher(transport, cache,
		encyclopedia.WithLogger(logger),
		encyclopedia.WithTTL(cfg.Cache.TTL),
	)

	mcpServer := newMCPServer(fetcher, logger)

	logger.Info("Starting WikiClone server",
		"name", ServerName,
		"version", ServerVersion,
		"mode", mode,
		"api_url", cfg.APIURL,
		"cache_backend", cfg.Cache.Backend,
	)

	switch mode {
	case "stdio":
		return mcpServer.Run(ctx, &mcp.StdioTransport{})
	case "http":
		return serveHTTP(ctx, cfg, fetcher, mcpServer, logger)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func newMCPServer(fetcher *encyclopedia.Fetcher, logger *slog.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: ServerVersion,
	}, &mcp.ServerOptions{
		Logger: logger,
		Instructions: `WikiClone provides read-only access to encyclopedia articles.

Available tools:
- wiki_get_article: Fetch an article by title as sectioned HTML with links to related articles
- wiki_random_article: Pick a random article title

Articles are cached for 24 hours. Titles are case-insensitive.`,
	})

	tools.NewHandlerRegistry(tools.NewArticleTools(fetcher), logger).RegisterAll(server)
	return server
}

func serveHTTP(ctx context.Context, cfg *config.Config, fetcher *encyclopedia.Fetcher, mcpServer *mcp.Server, logger *slog.Logger) error {
	pages, err := web.NewServer(fetcher, logger, web.WithRateLimit(cfg.RateLimit))
	if err != nil {
		return err
	}
	defer pages.Close()

	handler := web.NewSecurityMiddleware(newMux(pages.Handler(), mcpServer), logger, web.SecurityConfig{
		MaxBodySize: cfg.MaxBodySize,
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer recoverPanic(logger, "http server")
		logger.Info("Listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}

// newMux mounts the page routes with /metrics, /healthz and the streamable
// MCP endpoint.
func newMux(pages http.Handler, mcpServer *mcp.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", pages)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return mcpServer
	}, nil))
	return mux
}
