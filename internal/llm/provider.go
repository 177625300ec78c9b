// Package llm abstracts the chat-completion capability the workflow
// depends on. Providers expose a single-shot completion and a streaming
// completion that yields tokens on a channel.
package llm

import (
	"context"
	"errors"
)

// ErrNoAPIKey is returned when a provider is constructed without a
// credential and asked to complete.
var ErrNoAPIKey = errors.New("llm: no API key configured")

// Message is one turn of prompt context.
type Message struct {
	Role    string
	Content string
}

// Request is a chat-completion request.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float32
	MaxTokens   int
}

// Chunk is one streamed token batch. Err is set at most once, as the
// final chunk before the channel closes.
type Chunk struct {
	Text string
	Done bool
	Err  error
}

// Provider is an opaque chat-completion backend.
//
// Complete blocks until the full response is available. Stream returns a
// channel of token chunks; the channel is always closed when the stream
// ends, whether by completion, error, or context cancellation.
type Provider interface {
	Complete(ctx context.Context, req *Request) (string, error)
	Stream(ctx context.Context, req *Request) (<-chan Chunk, error)
}
