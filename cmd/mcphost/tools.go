package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/mcphost/internal/config"
	"github.com/haasonsaas/mcphost/internal/mcp"
)

// buildToolsCmd creates the "tools" command: spawn the configured
// servers, print the aggregated catalogue, and exit.
func buildToolsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the aggregated tool catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "mcphost.yaml",
		"Path to YAML configuration file")

	return cmd
}

func runTools(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger("warn", cfg.Logging.Format)

	inventory, err := mcp.LoadInventory(cfg.MCP.ServersConfig)
	if err != nil {
		return fmt.Errorf("load server inventory: %w", err)
	}

	registry := mcp.NewRegistry(logger, cfg.MCP.CallTimeout)
	if err := registry.Initialize(cmd.Context(), inventory); err != nil {
		return fmt.Errorf("initialize mcp servers: %w", err)
	}
	defer registry.Shutdown()

	tools := registry.ListTools()
	if len(tools) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tools registered")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tSERVER\tDESCRIPTION")
	for _, t := range tools {
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, t.ServerID, t.Description)
	}
	return w.Flush()
}
