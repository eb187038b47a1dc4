package registry

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/last-minute-learner/reviewer-api/internal/errorlog"
	"github.com/last-minute-learner/reviewer-api/internal/reviewer"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates an MCP server exposing every registered tool.
// Failed calls are recorded to errLog, which may be nil.
func (r *Registry) NewMCPServer(name, version string, errLog *errorlog.Logger) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(name, version)

	for _, toolName := range r.GetToolNames() {
		tool := r.toolRegistry[toolName]
		srv.AddTool(tool.Definition(), r.toolHandler(toolName, errLog))
	}

	r.logger.WithField("tool_count", len(r.toolRegistry)).Debug("MCP server created")
	return srv
}

func (r *Registry) toolHandler(name string, errLog *errorlog.Logger) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		tool, ok := r.GetTool(name)
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", name)
		}

		args, ok := request.Params.Arguments.(map[string]any)
		if !ok {
			if request.Params.Arguments != nil {
				return nil, fmt.Errorf("invalid arguments type: expected map[string]interface{}, got %T", request.Params.Arguments)
			}
			args = map[string]any{}
		}

		result, err := tool.Execute(ctx, r.logger, args)
		if err != nil {
			r.logger.WithError(err).Errorf("Tool execution failed: %s", name)

			entry := errorlog.Entry{
				Transport: reviewer.TransportMCP,
				Stage:     reviewer.Outcome(err),
				Error:     err.Error(),
			}
			if path, ok := args["file_path"].(string); ok && path != "" {
				entry.Filename = filepath.Base(path)
			}
			if prompt, ok := args["prompt"].(string); ok {
				entry.PromptChars = len([]rune(prompt))
			}
			errLog.Record(entry)

			return nil, fmt.Errorf("tool execution failed: %w", err)
		}

		return result, nil
	}
}
