package workflow

import (
	"context"

	"github.com/haasonsaas/mcphost/internal/mcp"
	"github.com/haasonsaas/mcphost/pkg/models"
)

// executeToolCall is the tool-call node: coerce arguments, dispatch via
// the registry, and record the outcome. Failures are never retried here;
// the record flows to the responder as observation material.
func (e *Executor) executeToolCall(ctx context.Context, st *TurnState) {
	intent := st.Intent
	if intent == nil || !intent.IsMCPAction() {
		st.NextStep = StepRespond
		return
	}

	descriptor, ok := e.registry.Find(intent.TargetTool)
	if !ok {
		st.ToolCalls = append(st.ToolCalls, &models.ToolCallRecord{
			ToolName: intent.TargetTool,
			Error:    "tool not found: " + intent.TargetTool,
		})
		st.NextStep = StepRespond
		return
	}

	args := intent.Parameters
	if len(args) == 0 {
		args = mcp.Coerce(descriptor, intent.RawArgsText)
	}

	e.emit(st, models.StreamToolCall, "calling "+descriptor.Name)

	record, err := e.registry.Call(ctx, descriptor.Name, args, st.SessionID)
	if err != nil {
		e.logger.Warn("tool call failed",
			"tool", descriptor.Name, "error", err)
	}
	st.ToolCalls = append(st.ToolCalls, record)
	st.NextStep = StepRespond
}
