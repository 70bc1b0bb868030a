// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// sandbox broker as tools. It uses the mark3labs/mcp-go library to handle the
// protocol details.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/isdmx/sandboxbroker/config"
	"github.com/isdmx/sandboxbroker/sandbox"
)

// Tool names
const (
	ToolRunPython     = "run_python"
	ToolWriteToPage   = "write_to_page"
	ToolWriteToApp    = "write_to_app"
	ToolFindSandboxID = "get_sandbox_id"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	broker    sandbox.Service
	gatherer  prometheus.Gatherer
	mcpServer *server.MCPServer
}

// New creates a new MCPServer. registry may be nil, in which case no metrics endpoint is served.
func New(cfg *config.Config, logger *zap.Logger, broker sandbox.Service, registry *prometheus.Registry) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		broker: broker,
	}
	if registry != nil {
		s.gatherer = registry
	}

	// Log configuration parameters on startup, never the API key
	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.String("e2b.api_url", cfg.E2B.APIURL),
		zap.String("e2b.domain", cfg.E2B.Domain),
		zap.Bool("e2b.api_key_set", cfg.E2B.APIKey != ""),
		zap.String("e2b.sandbox_url", cfg.E2B.SandboxURL),
		zap.Int("e2b.request_timeout_sec", cfg.E2B.RequestTimeoutSec),
		zap.Bool("sandbox.dedupe_resolves", cfg.Sandbox.DedupeResolves),
	)

	s.mcpServer = server.NewMCPServer("sandboxbroker", "Per-user E2B sandboxes for code execution and app previews")
	s.registerTools()

	return s, nil
}

func codeToolSchema(codeDescription string, defaultTemplate sandbox.Template) mcp.ToolInputSchema {
	return mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]any{
			"user_id": map[string]any{
				"type":        "string",
				"description": "Identity of the requesting user; one sandbox is kept per user and template",
			},
			"code": map[string]any{
				"type":        "string",
				"description": codeDescription,
			},
			"template": map[string]any{
				"type":        "string",
				"description": fmt.Sprintf("Sandbox template (default %s)", defaultTemplate),
				"enum":        sandbox.TemplateNames(),
			},
			"api_key": map[string]any{
				"type":        "string",
				"description": "E2B API key; the server default is used when omitted",
			},
		},
		Required: []string{"user_id", "code"},
	}
}

// registerTools registers the broker tools
func (s *MCPServer) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolRunPython,
		Description: "Run Python code as a notebook cell in the user's code interpreter sandbox",
		InputSchema: codeToolSchema("Python code to execute", sandbox.TemplateCodeInterpreter),
	}, s.handleRunPython)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolWriteToPage,
		Description: "Write a Next.js page to the user's app sandbox and return the preview URL",
		InputSchema: codeToolSchema("Contents of app/page.tsx", sandbox.TemplateNextJS),
	}, s.handleWriteToPage)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolWriteToApp,
		Description: "Write a Streamlit app to the user's app sandbox and return the preview URL",
		InputSchema: codeToolSchema("Contents of app.py", sandbox.TemplateStreamlit),
	}, s.handleWriteToApp)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        ToolFindSandboxID,
		Description: "Return the ID of a sandbox owned by the user, empty when there is none",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"user_id": map[string]any{
					"type":        "string",
					"description": "Identity of the user",
				},
				"api_key": map[string]any{
					"type":        "string",
					"description": "E2B API key; the server default is used when omitted",
				},
			},
			Required: []string{"user_id"},
		},
	}, s.handleFindSandboxID)
}

// codeArgs are the arguments shared by the code tools
type codeArgs struct {
	userID   string
	code     string
	template sandbox.Template
	apiKey   string
}

func parseCodeArgs(request mcp.CallToolRequest, defaultTemplate sandbox.Template) (codeArgs, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return codeArgs{}, fmt.Errorf("user_id parameter is required: %w", err)
	}

	code, err := request.RequireString("code")
	if err != nil {
		return codeArgs{}, fmt.Errorf("code parameter is required: %w", err)
	}

	template, err := sandbox.ParseTemplate(request.GetString("template", string(defaultTemplate)))
	if err != nil {
		return codeArgs{}, err
	}

	return codeArgs{
		userID:   userID,
		code:     code,
		template: template,
		apiKey:   request.GetString("api_key", ""),
	}, nil
}

func (s *MCPServer) handleRunPython(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseCodeArgs(request, sandbox.TemplateCodeInterpreter)
	if err != nil {
		return nil, err
	}

	execution, err := s.broker.RunPython(ctx, args.userID, args.code, args.template, args.apiKey)
	if err != nil {
		return s.toolError(ToolRunPython, args.userID, err), nil
	}

	return jsonResult(execution)
}

func (s *MCPServer) handleWriteToPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseCodeArgs(request, sandbox.TemplateNextJS)
	if err != nil {
		return nil, err
	}

	preview, err := s.broker.WriteToPage(ctx, args.userID, args.code, args.template, args.apiKey)
	if err != nil {
		return s.toolError(ToolWriteToPage, args.userID, err), nil
	}

	return jsonResult(preview)
}

func (s *MCPServer) handleWriteToApp(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := parseCodeArgs(request, sandbox.TemplateStreamlit)
	if err != nil {
		return nil, err
	}

	preview, err := s.broker.WriteToApp(ctx, args.userID, args.code, args.template, args.apiKey)
	if err != nil {
		return s.toolError(ToolWriteToApp, args.userID, err), nil
	}

	return jsonResult(preview)
}

func (s *MCPServer) handleFindSandboxID(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return nil, fmt.Errorf("user_id parameter is required: %w", err)
	}

	id, err := s.broker.FindSandboxID(ctx, userID, request.GetString("api_key", ""))
	if err != nil {
		return s.toolError(ToolFindSandboxID, userID, err), nil
	}

	return jsonResult(map[string]string{"sandbox_id": id})
}

// toolError reports a failed operation to the client instead of dropping it
func (s *MCPServer) toolError(tool, userID string, err error) *mcp.CallToolResult {
	s.logger.Error("tool call failed",
		zap.String("tool", tool),
		zap.String("user_id", userID),
		zap.Bool("invalid_request", errors.Is(err, sandbox.ErrInvalidRequest)),
		zap.Error(err))

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: fmt.Sprintf("%s failed: %v", tool, err),
			},
		},
		IsError: true,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(data),
			},
		},
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP: MCP on /mcp and metrics on /metrics
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpServer.ListenAndServe()
}

// Handler returns the HTTP handler of the server
func (s *MCPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/mcp", server.NewStreamableHTTPServer(s.mcpServer))
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
