// Package main is the entry point for the sandboxbroker MCP server.
//
// The server gives each user a long-lived E2B sandbox per template: it finds
// the sandbox tagged with the user's ID and template, or creates one, and then
// runs Python in it or writes a web app into it and returns the preview URL.
// The server supports both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
