package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/haasonsaas/mcphost/internal/llm"
	"github.com/haasonsaas/mcphost/internal/mcp"
	"github.com/haasonsaas/mcphost/pkg/models"
)

const responderSystem = `You are the response composer of an MCP tool host.
Write the final answer for the user.

Rules:
- Use markdown where it helps readability.
- Answer in the user's language (Korean in, Korean out; English in, English out).
- Use the conversation history for context.
- When tool results are provided, base the answer on them. If a tool
  failed, say so plainly and apologize briefly; do not invent data.`

// respond is the responder node: system-information intents are answered
// straight from the registry, everything else goes through a streaming
// LLM completion with word-buffered delivery.
func (e *Executor) respond(ctx context.Context, st *TurnState) {
	if st.Intent != nil {
		switch st.Intent.Kind {
		case models.IntentToolList:
			e.deliverDirect(st, e.renderToolList())
			return
		case models.IntentServerStatus:
			e.deliverDirect(st, e.renderServerStatus())
			return
		case models.IntentHelp:
			e.deliverDirect(st, e.renderHelp())
			return
		}
	}

	req := &llm.Request{
		Model:       e.config.Model,
		System:      responderSystem,
		Messages:    e.responderContext(st),
		Temperature: e.config.Temperature,
		MaxTokens:   e.config.MaxTokens,
	}

	text, err := e.streamCompletion(ctx, st, req, defaultCadence)
	if err != nil {
		e.logger.Warn("streaming failed, falling back to completion", "error", err)
		text, err = e.provider.Complete(ctx, req)
		if err != nil {
			e.logger.Error("completion fallback failed", "error", err)
			text = e.deterministicSummary(st)
		}
		e.emit(st, models.StreamFinalResponse, text)
	}

	st.Response = text
	st.Success = true
	st.NextStep = StepDone
}

// responderContext builds the prompt: prior history, then the current
// message with a textual rendering of this turn's tool calls attached.
func (e *Executor) responderContext(st *TurnState) []llm.Message {
	var messages []llm.Message
	for _, m := range st.Messages {
		role := string(m.Role)
		if role != "user" && role != "assistant" {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: m.Content})
	}

	current := st.CurrentMessage
	if current == "" {
		current = "(empty message)"
	}
	if len(st.ToolCalls) > 0 {
		var b strings.Builder
		b.WriteString(current)
		b.WriteString("\n\nTool results:\n")
		for _, r := range st.ToolCalls {
			if r.IsSuccessful() {
				fmt.Fprintf(&b, "- %s → %s\n", mcp.RenderArgs(r.ToolName, r.Arguments), r.Result)
			} else {
				fmt.Fprintf(&b, "- %s → ERROR: %s\n", mcp.RenderArgs(r.ToolName, r.Arguments), r.Error)
			}
		}
		current = b.String()
	}
	return append(messages, llm.Message{Role: "user", Content: current})
}

// deterministicSummary is the last-resort response when every LLM path
// failed: concatenate whatever the tools produced.
func (e *Executor) deterministicSummary(st *TurnState) string {
	if len(st.ToolCalls) == 0 {
		return "I could not generate a response. Please try again."
	}
	var b strings.Builder
	b.WriteString("Here is what the tools returned:\n")
	for _, r := range st.ToolCalls {
		if r.IsSuccessful() {
			fmt.Fprintf(&b, "- %s: %s\n", r.ToolName, r.Result)
		} else {
			fmt.Fprintf(&b, "- %s failed: %s\n", r.ToolName, r.Error)
		}
	}
	return b.String()
}

// deliverDirect pushes a registry-synthesized answer without an LLM call.
// The catalogue is authoritative; paraphrasing it risks hallucinated
// tool names.
func (e *Executor) deliverDirect(st *TurnState, text string) {
	e.emit(st, models.StreamPartialResponse, text)
	e.emit(st, models.StreamFinalResponse, text)
	st.Response = text
	st.Success = true
	st.NextStep = StepDone
}

func (e *Executor) renderToolList() string {
	tools := e.registry.ListTools()
	if len(tools) == 0 {
		return "No tools are currently available. No MCP servers exposed a catalogue."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Available tools (%d):\n", len(tools))
	for _, t := range tools {
		desc := t.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", t.Name, t.ServerID, desc)
	}
	return b.String()
}

func (e *Executor) renderServerStatus() string {
	statuses := e.registry.Status()
	if len(statuses) == 0 {
		return "No MCP servers are configured."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "MCP servers (%d):\n", len(statuses))
	for _, s := range statuses {
		state := "connected"
		if !s.Connected {
			state = "down"
		}
		fmt.Fprintf(&b, "- **%s**: %s, %d tools\n", s.ID, state, s.ToolCount)
	}
	return b.String()
}

func (e *Executor) renderHelp() string {
	var b strings.Builder
	b.WriteString("I route your requests to MCP tools and answer with the results.\n\n")
	b.WriteString("You can ask me to:\n")
	b.WriteString("- run any of the available tools (ask \"what tools do you have?\")\n")
	b.WriteString("- check server status\n")
	b.WriteString("- just chat\n")
	if tools := e.registry.ListTools(); len(tools) > 0 {
		fmt.Fprintf(&b, "\nRight now %d tools are available.\n", len(tools))
	}
	return b.String()
}

// cadence tunes the word-buffer streaming delays.
type cadence struct {
	base     time.Duration
	sentence time.Duration
	comma    time.Duration
	newline  time.Duration
}

var (
	defaultCadence = cadence{
		base:     30 * time.Millisecond,
		sentence: 150 * time.Millisecond,
		comma:    75 * time.Millisecond,
		newline:  90 * time.Millisecond,
	}
	// finalizeCadence is slower: after a ReAct loop the answer reads as a
	// deliberate summary.
	finalizeCadence = cadence{
		base:     50 * time.Millisecond,
		sentence: 150 * time.Millisecond,
		comma:    100 * time.Millisecond,
		newline:  100 * time.Millisecond,
	}
)

const maxStreamDelay = 150 * time.Millisecond

// streamCompletion consumes the provider's token stream through a word
// buffer, pushing partial_response records with natural cadence, then a
// final_response with the accumulated text.
func (e *Executor) streamCompletion(ctx context.Context, st *TurnState, req *llm.Request, pace cadence) (string, error) {
	chunks, err := e.provider.Stream(ctx, req)
	if err != nil {
		return "", err
	}

	w := &wordBuffer{}
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Text == "" {
			continue
		}
		if batch, flush := w.feed(chunk.Text); flush {
			e.emit(st, models.StreamPartialResponse, batch)
			e.sleep(delayFor(batch, pace))
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	if rest := w.flush(); rest != "" {
		e.emit(st, models.StreamPartialResponse, rest)
	}

	full := w.full.String()
	e.emit(st, models.StreamFinalResponse, full)
	return full, nil
}

// wordBuffer batches token deltas into word-granular emissions: flush on
// whitespace or punctuation boundaries, on an adaptive buffer length, or
// on a periodic batch counter.
type wordBuffer struct {
	buf        strings.Builder
	full       strings.Builder
	tokenCount int
	sinceEmit  int
}

const boundaryPunct = ".,!?;:()[]{}。！？，；：、"

func (w *wordBuffer) feed(token string) (string, bool) {
	w.full.WriteString(token)
	w.buf.WriteString(token)
	w.tokenCount++
	w.sinceEmit++

	boundary := strings.ContainsFunc(token, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(boundaryPunct, r)
	})
	adaptiveLen := 8 + len(token)/3
	batchEvery := 10 + w.tokenCount/20

	if boundary || w.buf.Len() >= adaptiveLen || w.sinceEmit >= batchEvery {
		return w.emit(), true
	}
	return "", false
}

func (w *wordBuffer) emit() string {
	out := w.buf.String()
	w.buf.Reset()
	w.sinceEmit = 0
	return out
}

func (w *wordBuffer) flush() string {
	if w.buf.Len() == 0 {
		return ""
	}
	return w.emit()
}

func delayFor(batch string, pace cadence) time.Duration {
	d := pace.base
	trimmed := strings.TrimRight(batch, " ")
	if trimmed != "" {
		switch last := trimmed[len(trimmed)-1]; {
		case strings.ContainsAny(string(last), ".!?"):
			d = pace.sentence
		case last == ',' || last == ';':
			d = pace.comma
		case last == '\n':
			d = pace.newline
		}
	}
	if strings.HasSuffix(trimmed, "。") || strings.HasSuffix(trimmed, "！") || strings.HasSuffix(trimmed, "？") {
		d = pace.sentence
	}
	if d > maxStreamDelay {
		d = maxStreamDelay
	}
	return d
}
