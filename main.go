// Tooldock MCP Server - A Model Context Protocol server for tools written as Go source files
// Discovers tools in a directory, validates their signatures and serves them over stdio
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/olgasafonova/tooldock-mcp-server/internal/config"
	"github.com/olgasafonova/tooldock-mcp-server/internal/server"
)

// recoverPanic logs a panic instead of letting it crash the process.
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tooldock: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// stdout carries the MCP protocol
	logger := cfg.NewLogger(os.Stderr)
	defer recoverPanic(logger, "main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx, cfg, logger, &mcp.StdioTransport{})
}
