package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider binds the Provider interface to the Anthropic
// messages API.
type AnthropicProvider struct {
	client anthropic.Client
	logger *slog.Logger
	apiKey string
}

// NewAnthropicProvider creates the provider.
func NewAnthropicProvider(apiKey string, logger *slog.Logger) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		logger: logger.With("component", "llm-anthropic"),
		apiKey: apiKey,
	}
}

func (p *AnthropicProvider) buildParams(req *Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	return params
}

// Complete performs a blocking message completion.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (string, error) {
	if p.apiKey == "" {
		return "", ErrNoAPIKey
	}
	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return "", fmt.Errorf("anthropic completion: %w", err)
	}
	var out string
	for _, block := range msg.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	return out, nil
}

// Stream performs a streaming message completion.
func (p *AnthropicProvider) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))

	chunks := make(chan Chunk)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta().Delta
			if delta.Type != "text_delta" || delta.Text == "" {
				continue
			}
			select {
			case chunks <- Chunk{Text: delta.Text}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			p.logger.Warn("stream interrupted", "error", err)
			// The consumer may already have abandoned the channel on
			// cancellation, so the terminal send must not block.
			select {
			case chunks <- Chunk{Err: fmt.Errorf("anthropic stream: %w", err)}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case chunks <- Chunk{Done: true}:
		case <-ctx.Done():
		}
	}()
	return chunks, nil
}
