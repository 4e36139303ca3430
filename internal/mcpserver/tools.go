// Package mcpserver registers MCP tools that expose share operations.
// It adapts the share package to the MCP SDK's tool handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/alexjbarnes/vault-share/internal/api"
	sherr "github.com/alexjbarnes/vault-share/internal/errors"
	"github.com/alexjbarnes/vault-share/internal/share"
)

// RegisterTools adds all share tools to the given MCP server.
func RegisterTools(server *mcp.Server, coord *share.Coordinator, rec *share.Reconciler) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "share_note",
		Description: "Publish a vault note to the share backend, reusing its existing remote record when one exists. Unchanged notes cost no upload unless force_upload is set.",
	}, shareHandler(coord))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_share_link",
		Description: "Return the share link of an already-shared note without uploading anything. Errors for notes that were never shared.",
	}, linkHandler(coord))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_shares",
		Description: "List every remote shared note joined against the local vault. Entries without a path are orphaned shares with no matching local note.",
	}, listHandler(rec))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ShareInput holds parameters for share_note.
type ShareInput struct {
	Path        string `json:"path" jsonschema:"required,note path relative to vault root"`
	ForceUpload bool   `json:"force_upload,omitempty" jsonschema:"upload even when content is unchanged"`
}

// LinkInput holds parameters for get_share_link.
type LinkInput struct {
	Path string `json:"path" jsonschema:"required,note path relative to vault root"`
}

// ListInput has no parameters.
type ListInput struct{}

// --- Output types ---

// ShareOutput is the result of share_note and get_share_link.
type ShareOutput struct {
	Path     string `json:"path"`
	ID       string `json:"id"`
	Link     string `json:"link"`
	Uploaded bool   `json:"uploaded"`
}

// ListOutput is the result of list_shares.
type ListOutput struct {
	TotalShares int              `json:"total_shares"`
	Orphaned    int              `json:"orphaned"`
	Shares      []api.RemoteNote `json:"shares"`
}

// --- Handlers ---

func shareHandler(coord *share.Coordinator) mcp.ToolHandlerFor[ShareInput, *ShareOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input ShareInput) (*mcp.CallToolResult, *ShareOutput, error) {
		res, err := coord.Share(ctx, input.Path, share.Options{ForceUpload: input.ForceUpload})
		if err != nil {
			return nil, nil, err
		}

		out := &ShareOutput{Path: input.Path, ID: res.ID, Link: res.Link, Uploaded: res.Uploaded}

		return textResult(out), out, nil
	}
}

func linkHandler(coord *share.Coordinator) mcp.ToolHandlerFor[LinkInput, *ShareOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input LinkInput) (*mcp.CallToolResult, *ShareOutput, error) {
		rec, err := coord.Record(input.Path)
		if err != nil {
			return nil, nil, err
		}

		if rec == nil {
			return nil, nil, fmt.Errorf("%w: %s", sherr.ErrNotShared, input.Path)
		}

		out := &ShareOutput{Path: input.Path, ID: rec.ID, Link: rec.Link, Uploaded: false}

		return textResult(out), out, nil
	}
}

func listHandler(rec *share.Reconciler) mcp.ToolHandlerFor[ListInput, *ListOutput] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, *ListOutput, error) {
		shares := rec.Reconcile(ctx)

		orphaned := 0
		for _, s := range shares {
			if s.Path == "" {
				orphaned++
			}
		}

		out := &ListOutput{TotalShares: len(shares), Orphaned: orphaned, Shares: shares}

		return textResult(out), out, nil
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
