package workflow

import (
	"context"

	"github.com/haasonsaas/mcphost/internal/mcp"
	"github.com/haasonsaas/mcphost/pkg/models"
)

// ToolRegistry is the slice of the MCP registry the workflow needs. The
// concrete implementation is mcp.Registry; tests substitute fakes.
type ToolRegistry interface {
	ListTools() []*mcp.ToolDescriptor
	Find(toolName string) (*mcp.ToolDescriptor, bool)
	Call(ctx context.Context, toolName string, args map[string]any, sessionID string) (*models.ToolCallRecord, error)
	Status() []mcp.ServerStatus
	ListServerIDs() []string
}

// StreamSink is where turn progress is pushed. The concrete
// implementation is stream.Hub.
type StreamSink interface {
	SendToSession(sessionID string, msg *models.StreamMessage) int
}
