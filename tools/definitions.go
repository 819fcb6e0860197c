package tools

// AllTools contains all tool specifications for the wikiclone MCP server.
// Descriptions follow a structured format for LLM tool selection:
// - USE WHEN: Natural language triggers
// - NOT FOR: Disambiguation from similar tools
// - PARAMETERS: Key arguments with defaults
// - RETURNS: What the tool returns
var AllTools = []ToolSpec{
	{
		Name:     "wiki_get_article",
		Method:   "GetArticle",
		Title:    "Get Wiki Article",
		Category: "read",
		Description: `Fetch an encyclopedia article by title and return it as sectioned HTML.

USE WHEN: User asks "what is X", "tell me about X", "show the article on X", or follows a link to another article.

NOT FOR: Picking an article at random (use wiki_random_article instead).

PARAMETERS:
- title: Article title, case and surrounding spaces do not matter (required)
- include_content: Also return the plain-text extract (default false)

RETURNS: Resolved title, redirect source, disambiguation flag, section outline, linked titles and the rendered HTML body. Results are cached for 24 hours.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},
	{
		Name:     "wiki_random_article",
		Method:   "RandomArticle",
		Title:    "Random Wiki Article",
		Category: "discover",
		Description: `Pick a random main-namespace encyclopedia article.

USE WHEN: User says "surprise me", "show me a random article", "something to read".

NOT FOR: Fetching a known title (use wiki_get_article).

RETURNS: The title and the site path of a random article. Call wiki_get_article to read it.`,
		ReadOnly:  true,
		OpenWorld: true,
	},
}

// ToolsByCategory returns the specs in category.
func ToolsByCategory(category string) []ToolSpec {
	var out []ToolSpec
	for _, spec := range AllTools {
		if spec.Category == category {
			out = append(out, spec)
		}
	}
	return out
}
