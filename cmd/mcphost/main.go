// Package main provides the CLI entry point for the MCP host.
//
// The host aggregates tools from MCP servers spawned as stdio
// subprocesses and exposes them behind a chat workflow: intent
// classification, tool dispatch with schema coercion, a ReAct loop for
// multi-part requests, and per-session SSE streaming.
//
// # Basic Usage
//
// Start the server:
//
//	mcphost serve --config mcphost.yaml
//
// Inspect the aggregated tool catalogue without serving:
//
//	mcphost tools
//
// # Environment Variables
//
//   - OPENAI_API_KEY: OpenAI API key
//   - ANTHROPIC_API_KEY: Anthropic API key (switches the provider)
//   - MCP_SERVERS_CONFIG: Path to the server inventory JSON
//   - SESSION_IDLE_TIMEOUT_MINUTES: Idle session eviction threshold
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "mcphost",
		Short:        "MCP host - chat workflow over aggregated MCP tools",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildToolsCmd(),
	)

	return rootCmd
}

// newLogger builds the process logger from the configured level and
// format.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
