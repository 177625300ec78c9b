package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Client manages one MCP server connection: handshake, cached tool
// catalogue, and tool invocation.
type Client struct {
	config    *ServerConfig
	logger    *slog.Logger
	transport *StdioTransport

	toolsMu sync.RWMutex
	tools   []*Tool

	serverInfo InitializeResult
	seq        atomic.Int64
}

// NewClient creates a client for the given server entry.
func NewClient(config *ServerConfig, logger *slog.Logger) *Client {
	return &Client{
		config:    config,
		logger:    logger.With("component", "mcp-client", "server", config.ID),
		transport: NewStdioTransport(config, logger),
	}
}

// ID returns the server id this client is bound to.
func (c *Client) ID() string { return c.config.ID }

// Connected reports whether the subprocess is alive.
func (c *Client) Connected() bool { return c.transport.Connected() }

// Connect spawns the subprocess, performs the MCP initialize handshake,
// and loads the tool catalogue.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connect %s: %w", c.config.ID, err)
	}

	resp, err := c.transport.Call(ctx, &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID("init"),
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{},
			"clientInfo": map[string]any{
				"name":    "mcphost",
				"version": "1.0.0",
			},
		},
	}, DefaultCallTimeout)
	if err != nil {
		_ = c.transport.Close()
		return fmt.Errorf("initialize %s: %w", c.config.ID, err)
	}
	if resp.Error != nil {
		_ = c.transport.Close()
		return fmt.Errorf("initialize %s: %w", c.config.ID, resp.Error)
	}
	if err := json.Unmarshal(resp.Result, &c.serverInfo); err != nil {
		c.logger.Warn("unparsable initialize result", "error", err)
	}

	if err := c.transport.Notify("notifications/initialized", map[string]any{}); err != nil {
		c.logger.Warn("initialized notification failed", "error", err)
	}

	if err := c.refreshTools(ctx); err != nil {
		_ = c.transport.Close()
		return err
	}

	c.logger.Info("server ready",
		"name", c.serverInfo.ServerInfo.Name,
		"tools", len(c.Tools()))
	return nil
}

// Close shuts the subprocess down.
func (c *Client) Close() error { return c.transport.Close() }

// Tools returns the cached catalogue snapshot.
func (c *Client) Tools() []*Tool {
	c.toolsMu.RLock()
	defer c.toolsMu.RUnlock()
	out := make([]*Tool, len(c.tools))
	copy(out, c.tools)
	return out
}

func (c *Client) refreshTools(ctx context.Context) error {
	resp, err := c.transport.Call(ctx, &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID("tools"),
		Method:  "tools/list",
	}, DefaultCallTimeout)
	if err != nil {
		return fmt.Errorf("tools/list %s: %w", c.config.ID, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("tools/list %s: %w", c.config.ID, resp.Error)
	}

	var result ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("tools/list %s: parse: %w", c.config.ID, err)
	}

	c.toolsMu.Lock()
	c.tools = result.Tools
	c.toolsMu.Unlock()
	return nil
}

// CallTool invokes a tool with an already-typed argument bag. The caller
// supplies the request id so frames stay traceable to their turn. Both the
// request and response frame texts are returned for audit.
func (c *Client) CallTool(ctx context.Context, requestID, toolName string, args map[string]any, timeout time.Duration) (result *CallToolResult, requestText, responseText string, err error) {
	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      requestID,
		Method:  "tools/call",
		Params: CallToolParams{
			Server:    c.config.ID,
			Name:      toolName,
			Arguments: args,
		},
	}
	reqBytes, merr := json.Marshal(req)
	if merr != nil {
		return nil, "", "", fmt.Errorf("marshal request: %w", merr)
	}
	requestText = string(reqBytes)

	resp, err := c.transport.Call(ctx, req, timeout)
	if err != nil {
		return nil, requestText, "", err
	}
	responseText = string(resp.Raw)
	if resp.Error != nil {
		return nil, requestText, responseText, resp.Error
	}

	var out CallToolResult
	if err := json.Unmarshal(resp.Result, &out); err != nil {
		return nil, requestText, responseText, fmt.Errorf("malformed tool result: %w", err)
	}
	return &out, requestText, responseText, nil
}

func (c *Client) nextID(kind string) string {
	return fmt.Sprintf("%s-%s-%d", c.config.ID, kind, c.seq.Add(1))
}
