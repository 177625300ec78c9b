package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/mcphost/internal/config"
	"github.com/haasonsaas/mcphost/internal/llm"
	"github.com/haasonsaas/mcphost/internal/mcp"
	"github.com/haasonsaas/mcphost/internal/server"
	"github.com/haasonsaas/mcphost/internal/sessions"
	"github.com/haasonsaas/mcphost/internal/stream"
	"github.com/haasonsaas/mcphost/internal/workflow"
)

// buildServeCmd creates the "serve" command that starts the host.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP host server",
		Long: `Start the MCP host server.

The server will:
1. Load configuration from the specified file (or mcphost.yaml)
2. Spawn the configured MCP servers and aggregate their tools
3. Start the session janitor and stream sweeper
4. Serve the chat and SSE endpoints over HTTP

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with default config
  mcphost serve

  # Start with custom config
  mcphost serve --config /etc/mcphost/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "mcphost.yaml",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")

	return cmd
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	inventory, err := mcp.LoadInventory(cfg.MCP.ServersConfig)
	if err != nil {
		return fmt.Errorf("load server inventory: %w", err)
	}

	registry := mcp.NewRegistry(logger, cfg.MCP.CallTimeout)
	if err := registry.Initialize(ctx, inventory); err != nil {
		return fmt.Errorf("initialize mcp servers: %w", err)
	}
	defer registry.Shutdown()

	if cfg.MCP.WatchInventory {
		go func() {
			if err := mcp.WatchInventory(ctx, cfg.MCP.ServersConfig, registry, logger); err != nil {
				logger.Warn("inventory watch stopped", "error", err)
			}
		}()
	}

	var provider llm.Provider
	switch cfg.LLM.Provider {
	case "anthropic":
		provider = llm.NewAnthropicProvider(cfg.LLM.APIKey, logger)
	default:
		provider = llm.NewOpenAIProvider(cfg.LLM.APIKey, logger)
	}

	store := sessions.NewStore(sessions.Config{
		MaxMessages:     cfg.Sessions.MaxMessages,
		IdleTimeout:     cfg.IdleTimeout(),
		CleanupInterval: cfg.CleanupInterval(),
	}, logger)
	go store.RunJanitor(ctx)

	hub := stream.NewHub(logger)
	go hub.RunSweeper(ctx)

	executor := workflow.NewExecutor(registry, provider, store, hub, workflow.Config{
		Model:                  cfg.LLM.Model,
		Temperature:            cfg.Temperature(),
		MaxTokens:              cfg.LLM.MaxTokens,
		MaxIterations:          cfg.React.MaxIterations,
		MaxConsecutiveFailures: cfg.React.MaxConsecutiveFailures,
	}, logger)

	srv := server.New(executor, hub, store, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := srv.Start(addr); err != nil {
		return err
	}

	logger.Info("mcphost started",
		"addr", addr,
		"servers", len(registry.ListServerIDs()),
		"tools", len(registry.ListTools()),
		"provider", cfg.LLM.Provider)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	return nil
}
