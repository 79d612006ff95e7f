package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

// Tool names.
const (
	ToolNoteCreate = "note_create"
	ToolNoteList   = "note_list"
	ToolNoteView   = "note_view"
	ToolNoteUpdate = "note_update"
	ToolNoteSearch = "note_search"
)

// ToolDefinitions returns the notes MCP tool definitions.
func ToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        ToolNoteCreate,
			Description: "Create a note with a title and content. Both are trimmed and must be non-empty. Creation is limited to a fixed number of notes per rolling window shared with the REST API; when the limit is hit the call fails with code resource_exhausted. Returns the new note's id, title, line count and created_at.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title": map[string]any{
						"type":        "string",
						"description": "Note title (required)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "Note body, markdown allowed (required)",
					},
				},
				"required": []string{"title", "content"},
			},
		},
		{
			Name:        ToolNoteList,
			Description: "List all notes, most recently updated first. Each item carries a short preview instead of the full content; use note_view to read a note.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"preview_lines": map[string]any{
						"type":        "integer",
						"description": "Lines of content to include in each preview (default 2, 0 for the whole note)",
						"minimum":     0,
					},
				},
			},
		},
		{
			Name:        ToolNoteView,
			Description: "Read a note's full content with line numbers (tab-separated, 1-indexed). Optionally pass line_range as [start, end] (inclusive; end=-1 means the last line) to view part of it.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The note id",
					},
					"line_range": map[string]any{
						"type":        "array",
						"description": "Optional [start, end] line range (1-indexed, inclusive). end=-1 means end of note.",
						"items":       map[string]any{"type": "integer"},
						"minItems":    2,
						"maxItems":    2,
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteUpdate,
			Description: "Replace a note's title and/or content. Omitted fields are left alone; a provided field must be non-empty after trimming or the whole update is rejected. The result reports changed=false when the values already matched, in which case updated_at is not bumped.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The note id",
					},
					"title": map[string]any{
						"type":        "string",
						"description": "New title (optional)",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "New content (optional)",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolNoteSearch,
			Description: "Find notes whose title or content contains the query as a case-insensitive substring. Results are in creation order with previews.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "Text to look for (required, non-blank)",
					},
				},
				"required": []string{"query"},
			},
		},
	}
}
