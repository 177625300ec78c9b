package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/mcphost/internal/llm"
	"github.com/haasonsaas/mcphost/internal/mcp"
	"github.com/haasonsaas/mcphost/internal/metrics"
	"github.com/haasonsaas/mcphost/pkg/models"
)

// Defaults for the ReAct loop.
const (
	DefaultMaxIterations          = 10
	DefaultMaxConsecutiveFailures = 3

	// stuckSimilarityThreshold is the Jaccard similarity above which two
	// consecutive failing observations count as a stuck loop.
	stuckSimilarityThreshold = 0.8
)

// Markers accepted in think-step output. User traffic and prompts are
// bilingual, so both forms are parsed.
var (
	thoughtPattern = regexp.MustCompile(`(?mi)^\s*(?:Thought|생각)\s*[:：]\s*(.+)`)
	actionPattern  = regexp.MustCompile(`(?mi)^\s*(?:Action|행동)\s*[:：]\s*(.+)`)
	finalPattern   = regexp.MustCompile(`(?si)(?:Final Answer|최종 답변)\s*[:：]\s*(.+)`)
)

const reactThinkSystem = `You are the planner of a tool-using assistant
working through a multi-part request step by step.

Review the conversation, the work done so far, and decide the next step.

Reply in exactly one of these two forms:

Thought: <what you conclude from the results so far>
Action: <the single next tool action, in plain words>

or, when every part of the request is handled:

Final Answer: <the complete answer>`

const reactActSystem = `You translate a planned action into a concrete tool
call. Reply with a JSON object only, no code fences:

{"tool_name": "<name from the list>", "arguments": <object or string>, "reasoning": "<one sentence>"}

If no listed tool fits the action, use "NO_TOOL" as the tool_name.`

// reactThink runs one Thought step and decides the transition. A
// non-empty remaining-task list forces another action even when the model
// proposed a final answer, because models end multi-subject requests
// early.
func (e *Executor) reactThink(ctx context.Context, st *TurnState) {
	st.React.Iteration++
	st.React.CurrentStep = "think"
	if st.React.Iteration > st.React.MaxIterations {
		st.NextStep = StepReactFinalize
		return
	}

	resp, err := e.provider.Complete(ctx, &llm.Request{
		Model:       e.config.Model,
		System:      reactThinkSystem,
		Messages:    e.reactContext(st),
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if err != nil {
		e.logger.Warn("think step failed", "error", err)
		st.NextStep = StepReactFinalize
		return
	}

	thought, action, finalAnswer := parseThink(resp)
	st.React.Thought = thought
	st.React.Action = action
	if thought != "" {
		e.emit(st, models.StreamThinking, thought)
	}

	remaining := e.remainingTasks(ctx, st)
	switch {
	case len(remaining) > 0:
		if action == "" {
			st.React.Action = remaining[0]
		}
		st.NextStep = StepReactAct
	case finalAnswer != "":
		st.React.FinalAnswer = finalAnswer
		st.NextStep = StepReactFinalize
	case action != "":
		st.NextStep = StepReactAct
	default:
		st.NextStep = StepReactFinalize
	}
}

// parseThink extracts the Thought/Action pair or the Final Answer block.
func parseThink(text string) (thought, action, finalAnswer string) {
	if m := finalPattern.FindStringSubmatch(text); m != nil {
		return "", "", strings.TrimSpace(m[1])
	}
	if m := thoughtPattern.FindStringSubmatch(text); m != nil {
		thought = strings.TrimSpace(m[1])
	}
	if m := actionPattern.FindStringSubmatch(text); m != nil {
		action = strings.TrimSpace(m[1])
	}
	return thought, action, ""
}

// remainingTasks asks the model to enumerate the atomic tasks of the
// original request not yet covered by a completed tool call.
func (e *Executor) remainingTasks(ctx context.Context, st *TurnState) []string {
	var done strings.Builder
	for _, r := range st.SuccessfulCalls() {
		fmt.Fprintf(&done, "- %s\n", mcp.RenderArgs(r.ToolName, r.Arguments))
	}
	if done.Len() == 0 {
		done.WriteString("(none yet)\n")
	}

	prompt := fmt.Sprintf(`Original request:
%s

Completed tool calls:
%s
List the atomic tasks from the request that are still NOT done, one per
line. Reply with exactly NONE if everything is covered.`, st.CurrentMessage, done.String())

	resp, err := e.provider.Complete(ctx, &llm.Request{
		Model:       e.config.Model,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if err != nil {
		e.logger.Warn("remaining-task check failed", "error", err)
		return nil
	}

	var tasks []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789. "))
		if line == "" || strings.EqualFold(line, "none") {
			continue
		}
		tasks = append(tasks, line)
	}
	return tasks
}

type plannedCall struct {
	ToolName  string          `json:"tool_name"`
	Arguments json.RawMessage `json:"arguments"`
	Reasoning string          `json:"reasoning"`
}

// reactAct resolves the planned action to a tool call and dispatches it.
func (e *Executor) reactAct(ctx context.Context, st *TurnState) {
	st.React.CurrentStep = "act"
	e.emit(st, models.StreamActing, st.React.Action)

	call, err := e.parseAction(ctx, st)
	if err != nil || call == nil || strings.EqualFold(call.ToolName, "NO_TOOL") {
		st.React.ConsecutiveFailures++
		st.React.Observation = "no suitable tool for: " + st.React.Action
		if err != nil {
			st.React.Observation = "action parsing failed: " + err.Error()
		}
		e.advanceAfterAct(st)
		return
	}

	descriptor, ok := e.registry.Find(call.ToolName)
	if !ok {
		st.React.ConsecutiveFailures++
		st.React.Observation = "tool not found: " + call.ToolName
		e.advanceAfterAct(st)
		return
	}

	args := e.plannedArguments(descriptor, call.Arguments)
	e.emit(st, models.StreamToolCall, "calling "+descriptor.Name)
	record, callErr := e.registry.Call(ctx, descriptor.Name, args, st.SessionID)
	st.ToolCalls = append(st.ToolCalls, record)

	if callErr != nil || !record.IsSuccessful() {
		st.React.ConsecutiveFailures++
		st.React.Observation = fmt.Sprintf("%s failed: %s", descriptor.Name, record.Error)
	} else {
		st.React.ConsecutiveFailures = 0
		st.React.Observation = fmt.Sprintf("%s → %s", mcp.RenderArgs(descriptor.Name, args), record.Result)
	}
	e.advanceAfterAct(st)
}

func (e *Executor) advanceAfterAct(st *TurnState) {
	if st.React.ConsecutiveFailures >= e.config.MaxConsecutiveFailures {
		e.logger.Warn("consecutive tool failures, finalizing",
			"failures", st.React.ConsecutiveFailures)
		st.NextStep = StepReactFinalize
		return
	}
	st.NextStep = StepReactObserve
}

// parseAction runs the second LLM call that maps free-form action text to
// a concrete {tool_name, arguments} pair from the live catalogue.
func (e *Executor) parseAction(ctx context.Context, st *TurnState) (*plannedCall, error) {
	var catalogue strings.Builder
	for _, t := range e.registry.ListTools() {
		fmt.Fprintf(&catalogue, "- %s: %s\n", t.Name, t.Description)
	}

	prompt := fmt.Sprintf("Tools:\n%s\nAction: %s", catalogue.String(), st.React.Action)
	resp, err := e.provider.Complete(ctx, &llm.Request{
		Model:       e.config.Model,
		System:      reactActSystem,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")

	var call plannedCall
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &call); err != nil {
		return nil, fmt.Errorf("unparsable action plan: %w", err)
	}
	return &call, nil
}

// plannedArguments accepts either a JSON object or a free-form string in
// the plan's arguments slot.
func (e *Executor) plannedArguments(descriptor *mcp.ToolDescriptor, raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return mcp.Coerce(descriptor, s)
	}
	return mcp.Coerce(descriptor, string(raw))
}

// reactObserve records the observation and applies the termination
// guards: iteration cap and the stuck-loop check on repeated failures.
func (e *Executor) reactObserve(ctx context.Context, st *TurnState) {
	st.React.CurrentStep = "observe"
	obs := st.React.Observation
	e.emit(st, models.StreamObserving, obs)

	st.Messages = append(st.Messages, models.Message{
		Role:      models.RoleTool,
		Content:   "관찰: " + obs,
		Timestamp: e.now(),
		Metadata:  map[string]any{"react_step": "observe"},
	})

	if st.React.Iteration >= st.React.MaxIterations {
		st.NextStep = StepReactFinalize
		return
	}
	if e.stuckOnFailure(st) {
		e.logger.Warn("repeated identical failures, finalizing")
		st.NextStep = StepReactFinalize
		return
	}
	st.NextStep = StepReactThink
}

var failureMarkers = []string{"failed", "error", "not found", "오류", "실패"}

func looksLikeFailure(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range failureMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// stuckOnFailure reports whether the last two observations are failures
// saying essentially the same thing.
func (e *Executor) stuckOnFailure(st *TurnState) bool {
	var observations []string
	for _, m := range st.Messages {
		if m.Metadata != nil && m.Metadata["react_step"] == "observe" {
			observations = append(observations, m.Content)
		}
	}
	if len(observations) < 2 {
		return false
	}
	last := observations[len(observations)-1]
	prev := observations[len(observations)-2]
	if !looksLikeFailure(last) || !looksLikeFailure(prev) {
		return false
	}
	return jaccard(last, prev) > stuckSimilarityThreshold
}

func jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}

// reactFinalize synthesizes the answer from the accumulated tool results,
// streaming it with the deliberate finalize cadence. If the LLM is
// unavailable the deterministic tool-result summary goes out instead.
func (e *Executor) reactFinalize(ctx context.Context, st *TurnState) {
	st.React.CurrentStep = "finalize"
	metrics.ReactIterations.Observe(float64(st.React.Iteration))

	var results strings.Builder
	for _, r := range st.ToolCalls {
		if r.IsSuccessful() {
			fmt.Fprintf(&results, "- %s → %s\n", mcp.RenderArgs(r.ToolName, r.Arguments), r.Result)
		} else {
			fmt.Fprintf(&results, "- %s → ERROR: %s\n", mcp.RenderArgs(r.ToolName, r.Arguments), r.Error)
		}
	}
	if results.Len() == 0 {
		results.WriteString("(no tool calls were made)\n")
	}

	prompt := fmt.Sprintf(`Original request:
%s

Tool results:
%s`, st.CurrentMessage, results.String())
	if st.React.FinalAnswer != "" {
		prompt += "\nDraft answer:\n" + st.React.FinalAnswer
	}
	prompt += "\nCompose the final answer for the user from these results, in the user's language. Mention failures honestly."

	req := &llm.Request{
		Model:       e.config.Model,
		System:      responderSystem,
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	}

	text, err := e.streamCompletion(ctx, st, req, finalizeCadence)
	if err != nil {
		e.logger.Warn("finalize streaming failed, falling back", "error", err)
		text, err = e.provider.Complete(ctx, req)
		if err != nil {
			text = e.deterministicSummary(st)
		}
		e.emit(st, models.StreamFinalResponse, text)
	}

	st.Response = text
	st.Success = true
	st.NextStep = StepDone
}

// reactContext renders the message log, including observations, for the
// think prompt.
func (e *Executor) reactContext(st *TurnState) []llm.Message {
	var messages []llm.Message
	for _, m := range st.Messages {
		role := string(m.Role)
		if role != "user" && role != "assistant" {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}
	return append(messages, llm.Message{Role: "user", Content: st.CurrentMessage})
}
