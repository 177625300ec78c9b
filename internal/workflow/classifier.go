package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/haasonsaas/mcphost/internal/llm"
	"github.com/haasonsaas/mcphost/internal/mcp"
	"github.com/haasonsaas/mcphost/pkg/models"
)

// complexityKeywords mark multi-subject requests. The Korean set mirrors
// the English one because user traffic is bilingual.
var complexityKeywords = []string{
	"compare", "analyze", "report", "each", "all", "several",
	"비교", "분석", "리포트", "여러", "모든", "각각",
}

// NeedsReact is the complexity gate: multi-subject requests skip
// single-shot classification and go straight to the ReAct loop, because
// one-shot intent parsing reliably drops items from enumerations.
func NeedsReact(text string) bool {
	normalized := strings.ReplaceAll(text, "，", ",")
	commas := strings.Count(normalized, ",")
	if commas >= 3 {
		return true
	}

	lower := strings.ToLower(normalized)
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) && commas >= 1 {
			return true
		}
	}

	// A run of three or more comma-separated word tokens, e.g.
	// "Seoul, Busan, Daegu".
	parts := strings.Split(normalized, ",")
	if len(parts) >= 3 {
		wordTokens := 0
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" && len(strings.Fields(trimmed)) <= 3 {
				wordTokens++
			}
		}
		if wordTokens >= 3 {
			return true
		}
	}
	return false
}

func classifierSystemPrompt(tools []*mcp.ToolDescriptor) string {
	var b strings.Builder
	b.WriteString(`You classify a user message for an MCP tool host.

Categories:
- TOOL_CALL: the message asks for something a listed tool can do
- GENERAL_CHAT: ordinary conversation, no tool needed
- HELP: the user asks what this assistant can do
- SERVER_STATUS: the user asks about connected server health
- TOOL_LIST: the user asks which tools are available

Available tools:
`)
	if len(tools) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	b.WriteString(`
Answer with exactly these lines:
INTENT: <category>
CONFIDENCE: <0.0-1.0>
TARGET_TOOL: <tool name or null>
PARAMETERS: <JSON object with the arguments, or {}>
REASONING: <one sentence>`)
	return b.String()
}

// ParseClassifierResponse extracts the line-prefixed fields. Malformed
// output degrades instead of failing: unknown intents become GENERAL_CHAT
// at 0.3 confidence, an unparsable confidence becomes 0.5, and a broken
// PARAMETERS object becomes empty.
func ParseClassifierResponse(text string) *models.Intent {
	intent := &models.Intent{
		Kind:       models.IntentGeneralChat,
		Confidence: 0.5,
		Parameters: map[string]any{},
	}

	unknownIntent := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "INTENT:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "INTENT:"))
			switch models.IntentKind(strings.ToUpper(value)) {
			case models.IntentToolCall, models.IntentGeneralChat, models.IntentHelp,
				models.IntentServerStatus, models.IntentToolList:
				intent.Kind = models.IntentKind(strings.ToUpper(value))
			default:
				unknownIntent = true
			}
		case strings.HasPrefix(line, "CONFIDENCE:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "CONFIDENCE:"))
			if f, err := strconv.ParseFloat(value, 64); err == nil && f >= 0 && f <= 1 {
				intent.Confidence = f
			}
		case strings.HasPrefix(line, "TARGET_TOOL:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "TARGET_TOOL:"))
			if value != "" && !strings.EqualFold(value, "null") && !strings.EqualFold(value, "none") {
				intent.TargetTool = value
			}
		case strings.HasPrefix(line, "PARAMETERS:"):
			value := strings.TrimSpace(strings.TrimPrefix(line, "PARAMETERS:"))
			var params map[string]any
			if err := json.Unmarshal([]byte(value), &params); err == nil {
				intent.Parameters = params
			}
			intent.RawArgsText = value
		case strings.HasPrefix(line, "REASONING:"):
			intent.Reasoning = strings.TrimSpace(strings.TrimPrefix(line, "REASONING:"))
		}
	}

	if unknownIntent {
		intent.Kind = models.IntentGeneralChat
		intent.Confidence = 0.3
	}
	return intent
}

// classify is the intent node. It populates st.Intent and routes to
// tool_call, respond, or react_think.
func (e *Executor) classify(ctx context.Context, st *TurnState) {
	if st.React.Mode || NeedsReact(st.CurrentMessage) {
		st.React.Mode = true
		st.NextStep = StepReactThink
		e.emit(st, models.StreamThinking, "breaking the request into steps")
		return
	}

	tools := e.registry.ListTools()
	resp, err := e.provider.Complete(ctx, &llm.Request{
		Model:       e.config.Model,
		System:      classifierSystemPrompt(tools),
		Messages:    []llm.Message{{Role: "user", Content: st.CurrentMessage}},
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if err != nil {
		e.logger.Warn("classifier call failed, defaulting to chat", "error", err)
		st.Intent = &models.Intent{
			Kind:       models.IntentGeneralChat,
			Confidence: 0.3,
			Parameters: map[string]any{},
		}
		st.NextStep = StepRespond
		return
	}

	intent := ParseClassifierResponse(resp)

	// The catalogue is authoritative: a hallucinated tool name downgrades
	// the intent rather than producing a doomed dispatch.
	if intent.TargetTool != "" {
		if _, ok := e.registry.Find(intent.TargetTool); !ok {
			e.logger.Warn("classifier proposed unknown tool",
				"tool", intent.TargetTool)
			intent.Kind = models.IntentGeneralChat
			intent.TargetTool = ""
		}
	}
	st.Intent = intent

	if intent.IsMCPAction() {
		st.NextStep = StepToolCall
	} else {
		st.NextStep = StepRespond
	}
}
