// Package workflow implements the per-turn orchestration state machine:
// intent classification, tool dispatch, response streaming, and the ReAct
// sub-loop. Nodes are functions over a shared TurnState; a dispatch loop
// in the Executor follows the next_step tag each node leaves behind.
package workflow

import (
	"github.com/haasonsaas/mcphost/pkg/models"
)

// Step tags drive the dispatch loop.
type Step string

const (
	StepParse         Step = "parse"
	StepToolCall      Step = "tool_call"
	StepRespond       Step = "respond"
	StepReactThink    Step = "react_think"
	StepReactAct      Step = "react_act"
	StepReactObserve  Step = "react_observe"
	StepReactFinalize Step = "react_finalize"
	StepDone          Step = "done"
)

// ReactState groups the ReAct sub-loop fields. It resets with each turn.
type ReactState struct {
	Mode                bool
	Iteration           int
	MaxIterations       int
	CurrentStep         string
	Thought             string
	Action              string
	Observation         string
	FinalAnswer         string
	ShouldContinue      bool
	ConsecutiveFailures int
}

// TurnState is the working set of one request. It is owned by a single
// Executor invocation; nodes mutate it sequentially and never share it
// across goroutines.
type TurnState struct {
	CurrentMessage string
	SessionID      string

	// Messages is the history snapshot taken at turn start, extended by
	// observation messages during ReAct.
	Messages []models.Message

	Intent    *models.Intent
	ToolCalls []*models.ToolCallRecord

	Response string
	Success  bool
	Error    string

	StepCount int
	NextStep  Step

	React ReactState
}

// NewTurnState seeds the state for one request.
func NewTurnState(sessionID, message string, history []models.Message, maxIterations int) *TurnState {
	return &TurnState{
		CurrentMessage: message,
		SessionID:      sessionID,
		Messages:       history,
		NextStep:       StepParse,
		React: ReactState{
			MaxIterations: maxIterations,
		},
	}
}

// SuccessfulCalls filters the tool calls that produced a result.
func (st *TurnState) SuccessfulCalls() []*models.ToolCallRecord {
	var out []*models.ToolCallRecord
	for _, r := range st.ToolCalls {
		if r.IsSuccessful() {
			out = append(out, r)
		}
	}
	return out
}
