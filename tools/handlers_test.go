package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/olgasafonova/wikiclone-server/internal/encyclopedia"
)

type fakeSource struct {
	article   *encyclopedia.Article
	err       error
	random    string
	randomErr error
	gotTitle  string
}

func (f *fakeSource) Fetch(_ context.Context, title string) (*encyclopedia.Article, error) {
	f.gotTitle = title
	if f.err != nil {
		return nil, f.err
	}
	return f.article, nil
}

func (f *fakeSource) FetchRandom(context.Context) (string, error) {
	return f.random, f.randomErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(src ArticleSource) *HandlerRegistry {
	return NewHandlerRegistry(NewArticleTools(src), testLogger())
}

func TestNewHandlerRegistry(t *testing.T) {
	logger := testLogger()
	articles := NewArticleTools(&fakeSource{})
	registry := NewHandlerRegistry(articles, logger)

	if registry.articles != articles {
		t.Error("Registry should hold the article tools reference")
	}
	if registry.logger != logger {
		t.Error("Registry should hold the logger reference")
	}
}

func TestBuildTool(t *testing.T) {
	registry := newTestRegistry(&fakeSource{})

	tests := []struct {
		name      string
		spec      ToolSpec
		wantRO    bool
		wantIdem  bool
		wantDestr bool
		wantOpen  bool
	}{
		{
			name:     "read-only idempotent tool",
			spec:     ToolSpec{Name: "wiki_get_article", Title: "Get", Description: "d", ReadOnly: true, Idempotent: true},
			wantRO:   true,
			wantIdem: true,
		},
		{
			name:      "destructive tool",
			spec:      ToolSpec{Name: "x", Description: "d", Destructive: true},
			wantDestr: true,
		},
		{
			name:     "open world tool",
			spec:     ToolSpec{Name: "wiki_random_article", Description: "d", OpenWorld: true},
			wantOpen: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := registry.buildTool(tt.spec)

			if tool.Name != tt.spec.Name {
				t.Errorf("Name = %q, want %q", tool.Name, tt.spec.Name)
			}
			if tool.Description != tt.spec.Description {
				t.Errorf("Description = %q", tool.Description)
			}
			if tool.Annotations == nil {
				t.Fatal("Expected annotations")
			}
			if tool.Annotations.ReadOnlyHint != tt.wantRO {
				t.Errorf("ReadOnlyHint = %v, want %v", tool.Annotations.ReadOnlyHint, tt.wantRO)
			}
			if tool.Annotations.IdempotentHint != tt.wantIdem {
				t.Errorf("IdempotentHint = %v, want %v", tool.Annotations.IdempotentHint, tt.wantIdem)
			}
			if tt.wantDestr != (tool.Annotations.DestructiveHint != nil && *tool.Annotations.DestructiveHint) {
				t.Errorf("DestructiveHint mismatch, want %v", tt.wantDestr)
			}
			if tt.wantOpen != (tool.Annotations.OpenWorldHint != nil && *tool.Annotations.OpenWorldHint) {
				t.Errorf("OpenWorldHint mismatch, want %v", tt.wantOpen)
			}
		})
	}
}

func TestGetArticleTool(t *testing.T) {
	src := &fakeSource{article: &encyclopedia.Article{
		Title:          "Python (programming language)",
		Content:        "Intro.\n== History ==\nCreated by Guido van Rossum.",
		Links:          []string{"Guido van Rossum"},
		Sections:       []encyclopedia.Section{{Line: "History", Level: 2, Anchor: "History"}},
		RedirectedFrom: "Python",
	}}
	registry := newTestRegistry(src)
	spec := AllTools[0]
	handler := wrap(registry, spec, registry.articles.GetArticle)

	_, result, err := handler(context.Background(), &mcp.CallToolRequest{}, GetArticleArgs{Title: "  Python "})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	if src.gotTitle != "Python" {
		t.Errorf("fetched %q, want trimmed title", src.gotTitle)
	}
	if result.Title != "Python (programming language)" || result.RedirectedFrom != "Python" {
		t.Errorf("result = %+v", result)
	}
	if result.Path != "/search/Python%20%28programming%20language%29/" {
		t.Errorf("Path = %q", result.Path)
	}
	if !strings.Contains(result.HTML, `<h3 id="History">History</h3>`) {
		t.Errorf("HTML missing heading:\n%s", result.HTML)
	}
	if !strings.Contains(result.HTML, `<a href="/search/Guido%20van%20Rossum">Guido van Rossum</a>`) {
		t.Errorf("HTML missing auto-link:\n%s", result.HTML)
	}
	if result.Content != "" {
		t.Error("content should be omitted unless requested")
	}

	_, result, err = handler(context.Background(), &mcp.CallToolRequest{}, GetArticleArgs{Title: "Python", IncludeContent: true})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.Content == "" {
		t.Error("content should be included when requested")
	}
}

func TestGetArticleTool_EmptyCollections(t *testing.T) {
	src := &fakeSource{article: &encyclopedia.Article{Title: "Stub", Content: "Short."}}
	registry := newTestRegistry(src)

	result, err := registry.articles.GetArticle(context.Background(), GetArticleArgs{Title: "Stub"})
	if err != nil {
		t.Fatalf("GetArticle failed: %v", err)
	}
	if result.Sections == nil || result.Links == nil {
		t.Error("sections and links should encode as empty arrays, not null")
	}
}

func TestGetArticleTool_Errors(t *testing.T) {
	t.Run("empty title", func(t *testing.T) {
		registry := newTestRegistry(&fakeSource{})
		handler := wrap(registry, AllTools[0], registry.articles.GetArticle)

		_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, GetArticleArgs{Title: "   "})
		if !errors.Is(err, ErrEmptyTitle) {
			t.Errorf("err = %v, want ErrEmptyTitle", err)
		}
	})

	t.Run("not found", func(t *testing.T) {
		registry := newTestRegistry(&fakeSource{err: encyclopedia.NewNotFoundError("NoSuchPage123")})
		handler := wrap(registry, AllTools[0], registry.articles.GetArticle)

		_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, GetArticleArgs{Title: "NoSuchPage123"})
		if !encyclopedia.IsNotFound(err) {
			t.Errorf("err = %v, want not found", err)
		}
		if !strings.HasPrefix(err.Error(), "wiki_get_article failed:") {
			t.Errorf("error should name the tool: %v", err)
		}
	})
}

func TestRandomArticleTool(t *testing.T) {
	registry := newTestRegistry(&fakeSource{random: "Lake Baikal"})
	handler := wrap(registry, AllTools[1], registry.articles.RandomArticle)

	_, result, err := handler(context.Background(), &mcp.CallToolRequest{}, RandomArticleArgs{})
	if err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if result.Title != "Lake Baikal" || result.Path != "/search/Lake%20Baikal/" {
		t.Errorf("result = %+v", result)
	}

	registry = newTestRegistry(&fakeSource{randomErr: encyclopedia.NewError(encyclopedia.KindTimeout, "", "")})
	handler = wrap(registry, AllTools[1], registry.articles.RandomArticle)
	if _, _, err := handler(context.Background(), &mcp.CallToolRequest{}, RandomArticleArgs{}); err == nil {
		t.Error("expected error")
	}
}

func TestRecoverPanic(t *testing.T) {
	registry := newTestRegistry(&fakeSource{})
	spec := ToolSpec{Name: "panicky"}

	handler := wrap(registry, spec, func(context.Context, RandomArticleArgs) (RandomArticleResult, error) {
		panic("test panic")
	})

	_, _, err := handler(context.Background(), &mcp.CallToolRequest{}, RandomArticleArgs{})
	if err == nil || !strings.Contains(err.Error(), "internal error") {
		t.Errorf("panic should surface as an error, got %v", err)
	}
}

func TestRegisterAll(t *testing.T) {
	registry := newTestRegistry(&fakeSource{})
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0.0.0"}, nil)

	registry.RegisterAll(server)

	if registry.registerByName(server, ToolSpec{Name: "bogus", Method: "Bogus"}) {
		t.Error("unknown methods should not register")
	}
}

func TestAllToolsNotEmpty(t *testing.T) {
	if len(AllTools) == 0 {
		t.Error("AllTools should not be empty")
	}

	known := map[string]bool{"GetArticle": true, "RandomArticle": true}
	seen := map[string]bool{}
	for i, spec := range AllTools {
		if spec.Name == "" {
			t.Errorf("Tool %d has empty Name", i)
		}
		if spec.Description == "" {
			t.Errorf("Tool %s has empty Description", spec.Name)
		}
		if !known[spec.Method] {
			t.Errorf("Tool %s has unknown method: %s", spec.Name, spec.Method)
		}
		if seen[spec.Name] {
			t.Errorf("Tool %s is declared twice", spec.Name)
		}
		seen[spec.Name] = true
	}
}

func TestToolsByCategory(t *testing.T) {
	read := ToolsByCategory("read")
	if len(read) != 1 || read[0].Name != "wiki_get_article" {
		t.Errorf("read tools = %+v", read)
	}
	if len(ToolsByCategory("write")) != 0 {
		t.Error("there are no write tools")
	}
}
