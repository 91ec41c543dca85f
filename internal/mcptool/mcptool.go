// Package mcptool exposes the executor as an MCP tool.
package mcptool

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/runbox/internal/executor"
	"github.com/michaelbrown/runbox/internal/storage"
)

const maxOutput = 4000

// Tool handles code_run calls. Store may be nil.
type Tool struct {
	Runner executor.Runner
	Store  storage.Store
	Log    zerolog.Logger
}

// NewServer returns an MCP server with the code_run tool registered.
func NewServer(t *Tool, version string) *server.MCPServer {
	s := server.NewMCPServer("runbox", version)

	s.AddTool(mcp.Tool{
		Name:        "code_run",
		Description: "Execute a Go code fragment in an embedded interpreter. Statements may be given without a package clause, optionally preceded by import declarations; a full program with package main also works.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Go source to execute",
				},
			},
			Required: []string{"code"},
		},
	}, t.HandleCodeRun)

	return s
}

// HandleCodeRun runs the code argument and reports the result as text.
func (t *Tool) HandleCodeRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	code, ok := args["code"].(string)
	if !ok {
		return errResult("error: 'code' is required"), nil
	}

	res := t.Runner.Run(ctx, code)

	if t.Store != nil {
		rec := storage.NewExecution(storage.SourceMCP, code, res)
		if err := t.Store.SaveExecution(context.WithoutCancel(ctx), rec); err != nil {
			t.Log.Error().Err(err).Msg("saving execution")
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: formatResult(res)}},
		IsError: res.Failed(),
	}, nil
}

func formatResult(res executor.Result) string {
	var output strings.Builder
	if res.Stdout != "" {
		output.WriteString(res.Stdout)
	}
	if res.Stderr != "" {
		if output.Len() > 0 && !strings.HasSuffix(res.Stdout, "\n") {
			output.WriteString("\n")
		}
		output.WriteString("STDERR:\n" + res.Stderr)
	}

	text := output.String()
	if len(text) > maxOutput {
		text = text[:maxOutput] + "\n... (output truncated)"
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + fmt.Sprintf("status: %s (%s)", res.Status, res.ExecutionTime)
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
