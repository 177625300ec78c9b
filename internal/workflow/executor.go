package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/mcphost/internal/llm"
	"github.com/haasonsaas/mcphost/internal/metrics"
	"github.com/haasonsaas/mcphost/internal/sessions"
	"github.com/haasonsaas/mcphost/pkg/models"
)

// Config tunes the executor's LLM calls and ReAct bounds.
type Config struct {
	Model                  string
	Temperature            float32
	MaxTokens              int
	MaxIterations          int
	MaxConsecutiveFailures int
}

func (c Config) sanitized() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 1000
	}
	return c
}

// Executor owns the per-turn dispatch loop. Nodes read and mutate the
// TurnState; the loop follows the next_step tag until the turn completes.
type Executor struct {
	registry ToolRegistry
	provider llm.Provider
	store    *sessions.Store
	hub      StreamSink
	logger   *slog.Logger
	config   Config

	// sleep and now are swappable so streaming cadence and timestamps are
	// testable without waiting on wall time.
	sleep func(time.Duration)
	now   func() time.Time
}

// NewExecutor wires the workflow dependencies.
func NewExecutor(registry ToolRegistry, provider llm.Provider, store *sessions.Store, hub StreamSink, config Config, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		provider: provider,
		store:    store,
		hub:      hub,
		logger:   logger.With("component", "workflow"),
		config:   config.sanitized(),
		sleep:    time.Sleep,
		now:      time.Now,
	}
}

// SetSleepFunc overrides the streaming delay. Test hook.
func (e *Executor) SetSleepFunc(sleep func(time.Duration)) { e.sleep = sleep }

// SetNowFunc overrides the clock. Test hook.
func (e *Executor) SetNowFunc(now func() time.Time) { e.now = now }

// emit pushes a stream message for the turn's session.
func (e *Executor) emit(st *TurnState, typ models.StreamMessageType, content string) {
	e.hub.SendToSession(st.SessionID, &models.StreamMessage{
		Type:      typ,
		Content:   content,
		SessionID: st.SessionID,
		Timestamp: e.now(),
	})
}

// Execute runs one turn: append the user message, walk the state machine,
// stream progress, and append the assistant reply. A cancelled context
// stops work, emits session_end, and skips the assistant append; tool
// calls already made stay recorded on the returned state.
func (e *Executor) Execute(ctx context.Context, sessionID, message string, reactMode bool) (*TurnState, error) {
	history := e.store.Messages(sessionID)
	e.store.AppendUser(sessionID, message)

	st := NewTurnState(sessionID, message, history, e.config.MaxIterations)
	st.React.Mode = reactMode

	e.emit(st, models.StreamSessionStart, "")
	e.logger.Info("turn started", "session", sessionID, "react", reactMode)

	// The loop bound covers the worst case: parse, a full ReAct loop of
	// think/act/observe triples, and the finalizer.
	maxSteps := 3 + 4*e.config.MaxIterations

	for st.NextStep != StepDone {
		if err := ctx.Err(); err != nil {
			e.emit(st, models.StreamSessionEnd, "turn cancelled")
			metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
			e.logger.Info("turn cancelled", "session", sessionID)
			return st, err
		}

		st.StepCount++
		if st.StepCount > maxSteps {
			st.Error = fmt.Sprintf("workflow exceeded %d steps", maxSteps)
			e.logger.Error("dispatch loop runaway", "steps", st.StepCount)
			st.Response = e.deterministicSummary(st)
			e.emit(st, models.StreamError, st.Error)
			e.emit(st, models.StreamFinalResponse, st.Response)
			st.Success = true
			break
		}

		switch st.NextStep {
		case StepParse:
			e.classify(ctx, st)
		case StepToolCall:
			e.executeToolCall(ctx, st)
		case StepRespond:
			e.respond(ctx, st)
		case StepReactThink:
			e.reactThink(ctx, st)
		case StepReactAct:
			e.reactAct(ctx, st)
		case StepReactObserve:
			e.reactObserve(ctx, st)
		case StepReactFinalize:
			e.reactFinalize(ctx, st)
		default:
			st.Error = fmt.Sprintf("unknown step %q", st.NextStep)
			st.NextStep = StepDone
		}
	}

	if st.Success {
		e.store.AppendAssistant(sessionID, st.Response, map[string]any{
			"tool_calls": len(st.ToolCalls),
			"react":      st.React.Mode,
		})
		metrics.TurnsTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.TurnsTotal.WithLabelValues("error").Inc()
	}

	e.logger.Info("turn finished",
		"session", sessionID,
		"steps", st.StepCount,
		"tool_calls", len(st.ToolCalls),
		"react_iterations", st.React.Iteration)
	return st, nil
}
