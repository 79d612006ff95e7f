package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const notesWorkflowPromptName = "notes_workflow"

const notesWorkflowText = "Use note_search or note_list to find an existing note before creating a new one. " +
	"Read it with note_view, then change it with note_update instead of creating duplicates. " +
	"note_create is rate limited, so batch related thoughts into one note."

func registerPrompts(mcpServer *mcp.Server) {
	for _, prompt := range PromptDefinitions() {
		mcpServer.AddPrompt(prompt, notesWorkflowPrompt)
	}
}

// PromptDefinitions returns the MCP prompt definitions.
func PromptDefinitions() []*mcp.Prompt {
	return []*mcp.Prompt{
		{
			Name:        notesWorkflowPromptName,
			Title:       "Notes workflow",
			Description: "How to find, read and edit notes without creating duplicates.",
		},
	}
}

func notesWorkflowPrompt(_ context.Context, _ *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "How to find, read and edit notes without creating duplicates.",
		Messages: []*mcp.PromptMessage{
			{
				Role:    mcp.Role("user"),
				Content: &mcp.TextContent{Text: notesWorkflowText},
			},
		},
	}, nil
}
