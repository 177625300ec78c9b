// Package mcp implements the host side of the Model Context Protocol:
// stdio transports to tool-server subprocesses, the JSON-RPC framing, the
// aggregated tool registry, and schema-driven argument coercion.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for registry and transport failures.
var (
	ErrNotConnected  = errors.New("mcp: server not connected")
	ErrToolNotFound  = errors.New("mcp: tool not found")
	ErrServerDown    = errors.New("mcp: server subprocess down")
	ErrCallTimeout   = errors.New("mcp: tool call timed out")
	ErrAlreadyClosed = errors.New("mcp: registry already shut down")
)

// JSONRPCRequest is a JSON-RPC 2.0 request frame. IDs are strings of the
// form host-<session>-<monotonic-ms> so a frame can be traced back to the
// turn that produced it.
type JSONRPCRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCResponse is a JSON-RPC 2.0 response frame. Raw preserves the
// exact bytes read from the subprocess for audit.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// JSONRPCNotification is a request without an id; no response is expected.
type JSONRPCNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// JSONRPCError carries a protocol-level error from a server.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *JSONRPCError) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// JSON-RPC error codes used by MCP servers.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeToolNotFound   = -32002
)

// InitializeResult is the server's reply to the initialize handshake.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// Tool is a server-declared tool as it appears on the wire.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ListToolsResult is the reply to tools/list.
type ListToolsResult struct {
	Tools []*Tool `json:"tools"`
}

// CallToolParams are the params of a tools/call request. Server is carried
// for audit; routing is always by tool name.
type CallToolParams struct {
	Server    string         `json:"server,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResultContent is one content block of a tool result.
type ToolResultContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallToolResult is the reply to tools/call.
type CallToolResult struct {
	Content []ToolResultContent `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

// Text joins the textual content blocks of a tool result.
func (r *CallToolResult) Text() string {
	var out string
	for _, c := range r.Content {
		if c.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += c.Text
		}
	}
	return out
}

const protocolVersion = "2024-11-05"
