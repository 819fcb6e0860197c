// Package tools provides a metadata-driven registry for MCP tool definitions.
// Tools are declared as ToolSpecs and bound to typed handlers at startup.
package tools

// ToolSpec defines a tool's metadata for declarative registration.
// Each spec maps to an ArticleTools method with matching Args/Result types.
type ToolSpec struct {
	// Name is the MCP tool name (e.g., "wiki_get_article")
	Name string

	// Method is the ArticleTools method name (e.g., "GetArticle")
	Method string

	// Description is the tool description shown to LLMs
	Description string

	// Title is the human-readable tool title for annotations
	Title string

	// Category groups tools logically (read, discover)
	Category string

	// ReadOnly indicates the tool doesn't modify any state
	ReadOnly bool

	// Destructive indicates the tool can delete or overwrite data
	Destructive bool

	// Idempotent indicates repeated calls have the same effect
	Idempotent bool

	// OpenWorld indicates the tool accesses external resources
	OpenWorld bool
}

// ptr is a helper to create a pointer to a value.
func ptr[T any](v T) *T {
	return &v
}
