package dbmcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// RegisterMCPTools registers one MCP tool per configured ToolConfig on the
// given MCP server. Each tool accepts the invocation arguments described in
// its config (raw query, template, parameters, database, output format,
// async) and returns the formatted payload, or the failure envelope on error.
func RegisterMCPTools(mcpServer *server.MCPServer, srv *Server) {
	for _, tc := range srv.cfg.Tools {
		mcpServer.AddTool(buildTool(tc), srv.loggedToolHandler(tc.Name, srv.toolHandler(tc.Name)))
	}
}

func buildTool(tc ToolConfig) mcp.Tool {
	description := tc.Description
	if description == "" {
		description = "Execute a SQL template or query against database " + tc.Database + "."
	}

	opts := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("query",
			mcp.Description("Raw SQL to execute. Only available when the tool allows raw SQL."),
		),
		mcp.WithString("template",
			mcp.Description("Name of a configured query template. Exactly one of query/template must be supplied."),
		),
		mcp.WithObject("parameters",
			mcp.Description("Values for the statement's :name placeholders. Must match the placeholder set exactly."),
		),
		mcp.WithString("database",
			mcp.Description("Target database name. Defaults to the tool's configured database."),
		),
		mcp.WithString("output_format",
			mcp.Description("Response encoding."),
			mcp.Enum(tc.OutputFormats...),
		),
		mcp.WithBoolean("async",
			mcp.Description("Execute in the background and wait for completion."),
		),
	}
	if tc.Title != "" {
		opts = append(opts, mcp.WithTitleAnnotation(tc.Title))
	}
	return mcp.NewTool(tc.Name, opts...)
}

func (s *Server) toolHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		inv := Invocation{
			Query:        req.GetString("query", ""),
			Template:     req.GetString("template", ""),
			Database:     req.GetString("database", ""),
			OutputFormat: req.GetString("output_format", ""),
			Async:        req.GetBool("async", false),
		}
		if params, ok := req.GetArguments()["parameters"].(map[string]any); ok {
			inv.Parameters = params
		}

		payload, err := s.Invoke(ctx, toolName, inv)
		if err != nil {
			return mcp.NewToolResultError(AsFailure(err).Envelope()), nil
		}
		return mcp.NewToolResultText(payload.Body), nil
	}
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (s *Server) loggedToolHandler(toolName string, handler server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		reqLen := requestLength(req)
		result, err := handler(ctx, req)
		respLen := resultLength(result)
		s.logger.Info().
			Str("tool", toolName).
			Int("request_bytes", reqLen).
			Int("response_bytes", respLen).
			Msg("tool call")
		return result, err
	}
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	args := req.GetArguments()
	if len(args) == 0 {
		return 0
	}
	b, err := json.Marshal(args)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
