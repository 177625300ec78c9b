package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

func testAnthropicProvider(baseURL string) *AnthropicProvider {
	return &AnthropicProvider{
		client: anthropic.NewClient(
			option.WithAPIKey("sk-test"),
			option.WithBaseURL(baseURL),
			option.WithMaxRetries(0),
		),
		logger: testLogger(),
		apiKey: "sk-test",
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, lines ...string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	fmt.Fprintln(w)
	flusher.Flush()
}

func TestAnthropicStreamDeliversDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		writeSSE(w, flusher,
			`event: message_start`,
			`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant"}}`)
		writeSSE(w, flusher,
			`event: content_block_start`,
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeSSE(w, flusher,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`)
		writeSSE(w, flusher,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`)
		writeSSE(w, flusher,
			`event: content_block_stop`,
			`data: {"type":"content_block_stop","index":0}`)
		writeSSE(w, flusher,
			`event: message_stop`,
			`data: {"type":"message_stop"}`)
	}))
	defer srv.Close()

	p := testAnthropicProvider(srv.URL)
	ch, err := p.Stream(context.Background(), &Request{
		Model:    "claude-3-5-haiku-latest",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var text string
	var done bool
	for chunk := range ch {
		if chunk.Err != nil {
			t.Fatalf("chunk error: %v", chunk.Err)
		}
		if chunk.Done {
			done = true
			continue
		}
		text += chunk.Text
	}
	if text != "Hello world" {
		t.Errorf("streamed text = %q", text)
	}
	if !done {
		t.Error("never saw the Done chunk")
	}
}

func TestAnthropicStreamProducerExitsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		writeSSE(w, flusher,
			`event: message_start`,
			`data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant"}}`)
		writeSSE(w, flusher,
			`event: content_block_start`,
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		writeSSE(w, flusher,
			`event: content_block_delta`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`)
		// Hold the stream open until the client gives up.
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := testAnthropicProvider(srv.URL)
	ch, err := p.Stream(ctx, &Request{
		Model:    "claude-3-5-haiku-latest",
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	select {
	case chunk := <-ch:
		if chunk.Text != "Hello" {
			t.Fatalf("first chunk = %+v", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk arrived before cancellation")
	}

	// Cancel and stop reading, the way a consumer that bails out on
	// ctx.Err() abandons the channel. The producer must still exit and
	// close the channel instead of parking on a terminal send.
	cancel()
	time.Sleep(500 * time.Millisecond)

	select {
	case chunk, ok := <-ch:
		if ok {
			t.Fatalf("chunk delivered after cancellation: %+v", chunk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream channel never closed after cancellation")
	}
}
