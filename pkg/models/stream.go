package models

import (
	"encoding/json"
	"time"
)

// StreamMessageType enumerates the events pushed to a session subscriber
// over the lifetime of a turn.
type StreamMessageType string

const (
	StreamSessionStart    StreamMessageType = "session_start"
	StreamThinking        StreamMessageType = "thinking"
	StreamActing          StreamMessageType = "acting"
	StreamObserving       StreamMessageType = "observing"
	StreamToolCall        StreamMessageType = "tool_call"
	StreamPartialResponse StreamMessageType = "partial_response"
	StreamFinalResponse   StreamMessageType = "final_response"
	StreamError           StreamMessageType = "error"
	StreamSessionEnd      StreamMessageType = "session_end"
)

// StreamMessage is one typed event on a session's push channel.
type StreamMessage struct {
	Type      StreamMessageType `json:"type"`
	Content   string            `json:"content,omitempty"`
	Metadata  map[string]any    `json:"metadata,omitempty"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewStreamMessage builds a stream message stamped with the current time.
func NewStreamMessage(typ StreamMessageType, sessionID, content string) *StreamMessage {
	return &StreamMessage{
		Type:      typ,
		Content:   content,
		SessionID: sessionID,
		Timestamp: time.Now(),
	}
}

// SSERecord renders the message as a text/event-stream data record.
func (m *StreamMessage) SSERecord() string {
	data, err := json.Marshal(m)
	if err != nil {
		return "data: {}\n\n"
	}
	return "data: " + string(data) + "\n\n"
}

// SSEHeartbeat is the comment record emitted when a connection has been
// idle long enough that the transport needs a liveness signal.
const SSEHeartbeat = ": heartbeat\n\n"
