package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider binds the Provider interface to the OpenAI chat API.
// Safe for concurrent use; each Stream call owns its own SDK stream and
// goroutine.
type OpenAIProvider struct {
	client *openai.Client
	logger *slog.Logger
	apiKey string
}

// NewOpenAIProvider creates the provider. An empty key defers the failure
// to the first call so construction stays infallible.
func NewOpenAIProvider(apiKey string, logger *slog.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		logger: logger.With("component", "llm-openai"),
		apiKey: apiKey,
	}
}

func (p *OpenAIProvider) buildRequest(req *Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
}

// Complete performs a blocking chat completion.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (string, error) {
	if p.apiKey == "" {
		return "", ErrNoAPIKey
	}
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return "", fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai completion: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream performs a streaming chat completion. Token deltas arrive on the
// returned channel, which is closed when the stream ends.
func (p *OpenAIProvider) Stream(ctx context.Context, req *Request) (<-chan Chunk, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openai stream: %w", err)
	}

	chunks := make(chan Chunk)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case chunks <- Chunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				p.logger.Warn("stream interrupted", "error", err)
				// The consumer may already have abandoned the channel on
				// cancellation, so the terminal send must not block.
				select {
				case chunks <- Chunk{Err: fmt.Errorf("openai stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				select {
				case chunks <- Chunk{Text: delta}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return chunks, nil
}
