// Package web serves the encyclopedia as HTML pages.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
	"github.com/olgasafonova/wikiclone-server/internal/wikitext"
	"github.com/olgasafonova/wikiclone-server/metrics"
	"github.com/olgasafonova/wikiclone-server/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed templates/*.html
var templateFS embed.FS

// Route labels used for metrics.
const (
	RouteIndex   = "index"
	RouteSearch  = "search"
	RouteArticle = "article"
	RouteRandom  = "random"
)

// ArticleSource is what the pages read from. *encyclopedia.Fetcher satisfies it.
type ArticleSource interface {
	Fetch(ctx context.Context, title string) (*encyclopedia.Article, error)
	FetchRandom(ctx context.Context) (string, error)
}

// Server renders pages for an ArticleSource.
type Server struct {
	source    ArticleSource
	logger    *slog.Logger
	pages     map[string]*template.Template
	rateLimit int
	security  []*SecurityMiddleware
}

// Option configures the Server
type Option func(*Server)

// WithRateLimit sets the per-IP requests per minute on article pages.
// Zero disables limiting.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		s.rateLimit = perMinute
	}
}

// NewServer parses the page templates and builds a Server.
func NewServer(source ArticleSource, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		source: source,
		logger: logger,
		pages:  make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, page := range []string{"index", "article", "error"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		s.pages[page] = t
	}
	return s, nil
}

// Handler returns the page routes. Only GET (and HEAD) are accepted; the
// mux answers other methods with 405.
func (s *Server) Handler() http.Handler {
	article := NewSecurityMiddleware(s.instrument(RouteArticle, s.handleArticle), s.logger, SecurityConfig{
		RateLimit: s.rateLimit,
	})
	s.security = append(s.security, article)

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", s.instrument(RouteIndex, s.handleIndex))
	mux.Handle("GET /search/{$}", s.instrument(RouteSearch, s.handleSearch))
	mux.Handle("GET /search/{title}/{$}", article)
	mux.Handle("GET /search/{title}", s.instrument(RouteSearch, s.handleAppendSlash))
	mux.Handle("GET /random/{$}", s.instrument(RouteRandom, s.handleRandom))
	return mux
}

// Close releases the rate limiters created by Handler.
func (s *Server) Close() {
	for _, sm := range s.security {
		sm.Close()
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, "index", pageData{PageTitle: "Main Page", NoNav: true})
}

// handleSearch turns the search form's ?title= into an article URL.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.URL.Query().Get("title"))
	if title == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, articlePath(title), http.StatusFound)
}

// handleAppendSlash redirects auto-linked "/search/<title>" to the canonical
// article URL.
func (s *Server) handleAppendSlash(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, articlePath(r.PathValue("title")), http.StatusMovedPermanently)
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	title := strings.TrimSpace(r.PathValue("title"))
	if title == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	article, err := s.source.Fetch(r.Context(), title)
	if err != nil {
		s.renderError(w, err)
		return
	}

	body := s.format(r.Context(), article)
	s.render(w, http.StatusOK, "article", pageData{
		PageTitle: article.Title,
		Article: &articleView{
			Title:            article.Title,
			RedirectedFrom:   article.RedirectedFrom,
			IsDisambiguation: article.IsDisambiguation,
			// Format escapes all article text.
			Body: template.HTML(body),
		},
	})
}

func (s *Server) handleRandom(w http.ResponseWriter, r *http.Request) {
	title, err := s.source.FetchRandom(r.Context())
	if err != nil {
		s.renderError(w, err)
		return
	}
	if title == "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	http.Redirect(w, r, articlePath(title), http.StatusFound)
}

// format renders the article body and records render timing.
func (s *Server) format(ctx context.Context, article *encyclopedia.Article) string {
	_, span := tracing.StartSpan(ctx, "wikitext.format")
	defer span.End()

	start := time.Now()
	body := wikitext.Format(article)
	metrics.RenderDuration.Observe(time.Since(start).Seconds())

	span.SetAttributes(
		attribute.String("wiki.page.title", article.Title),
		attribute.Int("wiki.render.bytes", len(body)),
	)
	return body
}

func (s *Server) renderError(w http.ResponseWriter, err error) {
	fe := encyclopedia.AsError(err)
	title := fe.Title
	if title == "" {
		title = "Error"
	}
	s.logger.Info("Article request failed", "kind", fe.Kind, "status", fe.StatusCode, "title", title, "error", err)

	s.render(w, fe.StatusCode, "error", pageData{
		PageTitle: title,
		Error: &errorView{
			Title:   title,
			Message: fe.Message,
			Status:  fe.StatusCode,
		},
	})
}

// render executes a page into a buffer first so template failures still
// produce a clean 500.
func (s *Server) render(w http.ResponseWriter, status int, page string, data pageData) {
	var buf bytes.Buffer
	if err := s.pages[page].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("Template execution failed", "page", page, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// instrument adds panic recovery and request metrics to a route.
func (s *Server) instrument(route string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		ctx, span := tracing.StartHTTPSpan(r, route)
		defer span.End()

		defer func() {
			if p := recover(); p != nil {
				metrics.PanicsRecovered.WithLabelValues(route).Inc()
				s.logger.Error("Panic recovered",
					"route", route,
					"panic", p,
					"stack", string(debug.Stack()))
				if !rec.wrote {
					http.Error(rec, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}
			span.SetAttributes(attribute.Int("http.response.status_code", rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
			metrics.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}()

		fn(rec, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

type pageData struct {
	PageTitle string
	NoNav     bool
	Article   *articleView
	Error     *errorView
}

type articleView struct {
	Title            string
	RedirectedFrom   string
	IsDisambiguation bool
	Body             template.HTML
}

type errorView struct {
	Title   string
	Message string
	Status  int
}

// articlePath is the canonical article URL for title.
func articlePath(title string) string {
	return wikitext.SearchPath(title) + "/"
}
