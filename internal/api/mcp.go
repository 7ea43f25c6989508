package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/tasktalk/internal/operations"
)

// OperationExecutor runs a registered operation for an owner.
// *operations.Executor satisfies it.
type OperationExecutor interface {
	Execute(ctx context.Context, owner, name string, args json.RawMessage) operations.Outcome
}

// MCPDeps holds dependencies for the MCP server. Owner is fixed for the life
// of the process and comes from a verified token, never from tool arguments.
type MCPDeps struct {
	Executor      OperationExecutor
	Conversations ConversationStore
	Owner         string
	Version       string
}

// NewMCPServer exposes every registered operation as an MCP tool.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"tasktalk",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("tasktalk manages the user's task list. Use list_tasks to find task ids."),
		server.WithRecovery(),
	)

	for _, d := range operations.Descriptors() {
		s.AddTool(toolOf(d), mcpOperation(deps, d.Name))
	}

	s.AddResource(
		mcp.NewResource(
			"conversations://recent",
			"Recent Conversations",
			mcp.WithResourceDescription("The ten most recently active conversations"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

// toolOf builds the MCP tool definition from an operation's argument schema.
func toolOf(d operations.Descriptor) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(d.Description)}
	for _, name := range d.Schema.PropertyNames() {
		p := d.Schema.Properties[name]
		props := []mcp.PropertyOption{mcp.Description(p.Description)}
		if d.Schema.IsRequired(name) {
			props = append(props, mcp.Required())
		}
		switch p.Type {
		case "integer":
			if p.Minimum != nil {
				props = append(props, mcp.Min(float64(*p.Minimum)))
			}
			if p.Maximum != nil {
				props = append(props, mcp.Max(float64(*p.Maximum)))
			}
			opts = append(opts, mcp.WithNumber(name, props...))
		default:
			if len(p.Enum) > 0 {
				props = append(props, mcp.Enum(p.Enum...))
			}
			if p.MinLength != nil {
				props = append(props, mcp.MinLength(*p.MinLength))
			}
			if p.MaxLength != nil {
				props = append(props, mcp.MaxLength(*p.MaxLength))
			}
			opts = append(opts, mcp.WithString(name, props...))
		}
	}
	return mcp.NewTool(d.Name, opts...)
}

func mcpOperation(deps MCPDeps, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := json.RawMessage(`{}`)
		if a := req.GetArguments(); len(a) > 0 {
			b, err := json.Marshal(a)
			if err != nil {
				return mcpError("arguments must be a JSON object"), nil
			}
			raw = b
		}

		out := deps.Executor.Execute(ctx, deps.Owner, name, raw)
		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal outcome: %v", err)), nil
		}
		if !out.OK() {
			return mcpError(string(b)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		convs, err := deps.Conversations.ListConversations(ctx, deps.Owner, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("listing conversations: %w", err)
		}

		type conversationSummary struct {
			ID        string `json:"id"`
			Title     string `json:"title"`
			UpdatedAt string `json:"updated_at"`
		}
		summaries := make([]conversationSummary, len(convs))
		for i, c := range convs {
			summaries[i] = conversationSummary{ID: c.ID, Title: c.Title, UpdatedAt: c.UpdatedAt.Format(time.RFC3339)}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("marshalling conversations: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
