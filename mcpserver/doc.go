// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the sandbox broker to MCP clients. It uses the
// mark3labs/mcp-go library to handle the protocol details and registers four
// tools:
//
//   - run_python executes a notebook cell in the user's code interpreter sandbox
//   - write_to_page writes app/page.tsx and returns the port 3000 preview URL
//   - write_to_app writes app.py and returns the port 8501 preview URL
//   - get_sandbox_id reports the ID of a sandbox the user already owns
//
// Operation failures are returned as tool results with IsError set, so the
// client sees the hosting service's message. Missing or malformed arguments
// fail the call itself.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration. Over HTTP, MCP is served on /mcp and Prometheus
// metrics on /metrics.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, broker, registry)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
