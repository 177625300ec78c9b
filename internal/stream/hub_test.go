package stream

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/mcphost/pkg/models"
)

func testHub() *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestOpenGeneratesIDs(t *testing.T) {
	h := testHub()
	conn, err := h.Open("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(conn.ID(), "conn_") || len(conn.ID()) != len("conn_")+8 {
		t.Errorf("connection id = %q", conn.ID())
	}
	if !strings.HasPrefix(conn.SessionID(), "session_") {
		t.Errorf("session id = %q", conn.SessionID())
	}
}

func TestSendToSession(t *testing.T) {
	h := testHub()
	conn, err := h.Open("s1")
	if err != nil {
		t.Fatal(err)
	}

	msg := models.NewStreamMessage(models.StreamThinking, "s1", "working on it")
	if got := h.SendToSession("s1", msg); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
	select {
	case received := <-conn.Receive():
		if received.Type != models.StreamThinking || received.Content != "working on it" {
			t.Errorf("received %+v", received)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	if got := h.SendToSession("other", msg); got != 0 {
		t.Errorf("delivered to unknown session = %d, want 0", got)
	}
}

func TestSingleSubscriberDisplacement(t *testing.T) {
	h := testHub()
	a, err := h.Open("s1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Open("s1")
	if err != nil {
		t.Fatal(err)
	}

	// A got a session_end and its channel closed.
	var sawEnd bool
	for msg := range a.Receive() {
		if msg.Type == models.StreamSessionEnd {
			sawEnd = true
		}
	}
	if !sawEnd {
		t.Error("displaced connection never received session_end")
	}

	if got := h.SessionConnectionCount("s1"); got != 1 {
		t.Fatalf("session connections = %d, want 1", got)
	}

	// Subsequent sends reach only B.
	if got := h.SendToSession("s1", models.NewStreamMessage(models.StreamThinking, "s1", "x")); got != 1 {
		t.Errorf("delivered = %d, want 1", got)
	}
	select {
	case msg := <-b.Receive():
		if msg.Type != models.StreamThinking {
			t.Errorf("B received %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("B did not receive the message")
	}
}

func TestOpenCloseRestoresState(t *testing.T) {
	h := testHub()
	conn, err := h.Open("s1")
	if err != nil {
		t.Fatal(err)
	}
	h.Close(conn.ID())
	if got := h.SessionConnectionCount("s1"); got != 0 {
		t.Errorf("session connections after close = %d, want 0", got)
	}
	if got := h.ConnectionCount(); got != 0 {
		t.Errorf("total connections after close = %d, want 0", got)
	}
	// Closing again is harmless.
	h.Close(conn.ID())
}

func TestQueueFullDeactivates(t *testing.T) {
	h := testHub()
	h.queueSize = 2
	conn, err := h.Open("s1")
	if err != nil {
		t.Fatal(err)
	}

	msg := models.NewStreamMessage(models.StreamPartialResponse, "s1", "tok")
	if h.SendToSession("s1", msg) != 1 || h.SendToSession("s1", msg) != 1 {
		t.Fatal("first two sends should succeed")
	}
	// Queue is full: this send drops and deactivates.
	if got := h.SendToSession("s1", msg); got != 0 {
		t.Fatalf("overflow send delivered = %d, want 0", got)
	}
	// Deactivated connections receive nothing further.
	if got := h.SendToSession("s1", msg); got != 0 {
		t.Errorf("send to deactivated connection delivered = %d", got)
	}
	_ = conn
}

func TestConnectionCap(t *testing.T) {
	h := testHub()
	h.maxConnections = 2
	if _, err := h.Open("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Open("b"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Open("c"); err != ErrHubFull {
		t.Errorf("third open error = %v, want ErrHubFull", err)
	}
	// Reconnecting an existing session displaces rather than exceeding.
	if _, err := h.Open("a"); err != nil {
		t.Errorf("reconnect should succeed, got %v", err)
	}
}

func TestBroadcast(t *testing.T) {
	h := testHub()
	a, _ := h.Open("s1")
	b, _ := h.Open("s2")
	msg := models.NewStreamMessage(models.StreamError, "", "shutting down")
	if got := h.Broadcast(msg); got != 2 {
		t.Fatalf("broadcast delivered = %d, want 2", got)
	}
	<-a.Receive()
	<-b.Receive()
}

func TestSweepInactive(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	h := testHub()
	h.SetNowFunc(func() time.Time { return now })
	h.queueSize = 1

	conn, err := h.Open("s1")
	if err != nil {
		t.Fatal(err)
	}
	msg := models.NewStreamMessage(models.StreamThinking, "s1", "x")
	h.SendToSession("s1", msg)
	h.SendToSession("s1", msg) // overflows, deactivates

	now = base.Add(30 * time.Minute)
	if n := h.SweepInactive(time.Hour); n != 0 {
		t.Errorf("swept too early: %d", n)
	}
	now = base.Add(2 * time.Hour)
	if n := h.SweepInactive(time.Hour); n != 1 {
		t.Errorf("swept = %d, want 1", n)
	}
	if h.ConnectionCount() != 0 {
		t.Errorf("connections = %d after sweep", h.ConnectionCount())
	}
	_ = conn
}

func TestSSERecordShape(t *testing.T) {
	msg := models.NewStreamMessage(models.StreamFinalResponse, "s1", "done")
	record := msg.SSERecord()
	if !strings.HasPrefix(record, "data: {") || !strings.HasSuffix(record, "\n\n") {
		t.Errorf("SSE record = %q", record)
	}
	if !strings.Contains(record, `"type":"final_response"`) {
		t.Errorf("record missing type: %q", record)
	}
}
