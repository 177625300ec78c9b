package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/mcphost/internal/metrics"
	"github.com/haasonsaas/mcphost/pkg/models"
)

// ServerStatus is a point-in-time view of one managed server.
type ServerStatus struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Connected   bool   `json:"connected"`
	ToolCount   int    `json:"tool_count"`
}

// Registry owns the MCP server subprocesses and the aggregated tool
// catalogue. Calls are routed by tool name; the server id a caller
// supplies is advisory only.
type Registry struct {
	logger      *slog.Logger
	callTimeout time.Duration

	mu      sync.RWMutex
	clients map[string]*Client
	// catalogue is name-indexed; collisions resolve first-registration-wins
	// in sorted server-id order.
	catalogue map[string]*ToolDescriptor
	order     []string
	closed    bool

	lastMS atomic.Int64
}

// NewRegistry creates an empty registry. Initialize populates it.
func NewRegistry(logger *slog.Logger, callTimeout time.Duration) *Registry {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Registry{
		logger:      logger.With("component", "mcp-registry"),
		callTimeout: callTimeout,
		clients:     make(map[string]*Client),
		catalogue:   make(map[string]*ToolDescriptor),
	}
}

// Initialize spawns every server in the inventory, performs handshakes,
// and rebuilds the catalogue. Idempotent: a second call tears down the
// previous fleet first, so an inventory reload is just re-initialization.
// A server that fails to spawn aborts the whole call.
func (r *Registry) Initialize(ctx context.Context, inv *Inventory) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrAlreadyClosed
	}
	old := r.clients
	r.clients = make(map[string]*Client)
	r.catalogue = make(map[string]*ToolDescriptor)
	r.order = nil
	r.mu.Unlock()

	for _, client := range old {
		_ = client.Close()
	}

	clients := make(map[string]*Client, len(inv.Servers))
	catalogue := make(map[string]*ToolDescriptor)
	var order []string

	for _, cfg := range inv.Servers {
		client := NewClient(cfg, r.logger)
		if err := client.Connect(ctx); err != nil {
			for _, c := range clients {
				_ = c.Close()
			}
			return fmt.Errorf("spawn server %s: %w", cfg.ID, err)
		}
		clients[cfg.ID] = client

		for _, tool := range client.Tools() {
			if existing, ok := catalogue[tool.Name]; ok {
				r.logger.Warn("duplicate tool name dropped",
					"tool", tool.Name,
					"kept_server", existing.ServerID,
					"dropped_server", cfg.ID)
				continue
			}
			catalogue[tool.Name] = NewToolDescriptor(cfg.ID, tool)
			order = append(order, tool.Name)
		}
	}
	sort.Strings(order)

	r.mu.Lock()
	r.clients = clients
	r.catalogue = catalogue
	r.order = order
	r.mu.Unlock()

	r.logger.Info("registry initialized",
		"servers", len(clients), "tools", len(order))
	return nil
}

// ListTools returns the catalogue sorted by tool name.
func (r *Registry) ListTools() []*ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.catalogue[name])
	}
	return out
}

// ListServerIDs returns the managed server ids sorted.
func (r *Registry) ListServerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Find resolves a tool by name.
func (r *Registry) Find(toolName string) (*ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.catalogue[toolName]
	return d, ok
}

// Status reports per-server connection state and tool counts.
func (r *Registry) Status() []ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	statuses := make([]ServerStatus, 0, len(r.clients))
	for _, client := range r.clients {
		count := 0
		for _, d := range r.catalogue {
			if d.ServerID == client.ID() {
				count++
			}
		}
		statuses = append(statuses, ServerStatus{
			ID:          client.ID(),
			Description: client.config.Description,
			Connected:   client.Connected(),
			ToolCount:   count,
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// Call invokes a tool and returns a fully-populated record. The record is
// always non-nil; infrastructure failures set its Error field and are also
// returned so callers can classify them. Routing ignores the advisory
// server id and resolves ownership by tool name.
func (r *Registry) Call(ctx context.Context, toolName string, args map[string]any, sessionID string) (*models.ToolCallRecord, error) {
	record := &models.ToolCallRecord{
		ToolName:  toolName,
		Arguments: args,
	}

	descriptor, ok := r.Find(toolName)
	if !ok {
		record.Error = fmt.Sprintf("tool %q not found", toolName)
		return record, fmt.Errorf("%w: %s", ErrToolNotFound, toolName)
	}
	record.ServerID = descriptor.ServerID

	r.mu.RLock()
	client, ok := r.clients[descriptor.ServerID]
	r.mu.RUnlock()
	if !ok || !client.Connected() {
		record.Error = fmt.Sprintf("server %q is down", descriptor.ServerID)
		return record, fmt.Errorf("%w: %s", ErrServerDown, descriptor.ServerID)
	}

	if err := descriptor.ValidateArgs(args); err != nil {
		r.logger.Warn("arguments fail tool schema, dispatching anyway",
			"tool", toolName, "error", err)
	}

	start := time.Now()
	result, reqText, respText, err := client.CallTool(ctx, r.nextRequestID(sessionID), toolName, args, r.callTimeout)
	record.DurationMS = time.Since(start).Milliseconds()
	record.RequestJSON = reqText
	record.ResponseJSON = respText

	metrics.ToolCallDuration.WithLabelValues(record.ServerID, toolName).
		Observe(time.Since(start).Seconds())

	if err != nil {
		record.Error = err.Error()
		metrics.ToolCallsTotal.WithLabelValues(record.ServerID, toolName, "error").Inc()
		return record, fmt.Errorf("tool %s: %w", toolName, err)
	}
	if result.IsError {
		record.Error = result.Text()
		if record.Error == "" {
			record.Error = "tool reported an error"
		}
		metrics.ToolCallsTotal.WithLabelValues(record.ServerID, toolName, "error").Inc()
		return record, nil
	}

	record.Result = result.Text()
	if record.Result == "" {
		record.Result = "(empty result)"
	}
	metrics.ToolCallsTotal.WithLabelValues(record.ServerID, toolName, "ok").Inc()
	return record, nil
}

// Shutdown stops all subprocesses. The registry cannot be reused after.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.catalogue = make(map[string]*ToolDescriptor)
	r.order = nil
	r.closed = true
	r.mu.Unlock()

	for _, client := range clients {
		_ = client.Close()
	}
	r.logger.Info("registry shut down")
}

// nextRequestID yields host-<session>-<ms> ids with a strictly increasing
// millisecond component, so two calls in the same tick stay distinct.
func (r *Registry) nextRequestID(sessionID string) string {
	ms := time.Now().UnixMilli()
	for {
		last := r.lastMS.Load()
		if ms <= last {
			ms = last + 1
		}
		if r.lastMS.CompareAndSwap(last, ms) {
			break
		}
	}
	return fmt.Sprintf("host-%s-%d", sessionID, ms)
}
