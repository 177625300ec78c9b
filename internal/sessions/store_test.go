package sessions

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haasonsaas/mcphost/pkg/models"
)

func testStore(cfg Config) *Store {
	return NewStore(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAppendAndHistory(t *testing.T) {
	s := testStore(Config{})
	s.AppendUser("s1", "hello")
	s.AppendAssistant("s1", "hi there", map[string]any{"source": "test"})

	history := s.History("s1", 0)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Role != "user" || history[0].Content != "hello" {
		t.Errorf("first entry = %+v", history[0])
	}
	if history[1].Role != "assistant" {
		t.Errorf("second entry role = %q", history[1].Role)
	}

	limited := s.History("s1", 1)
	if len(limited) != 1 || limited[0].Content != "hi there" {
		t.Errorf("limited history = %+v", limited)
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	s := testStore(Config{})
	if got := s.History("nope", 0); got != nil {
		t.Errorf("unknown session history = %+v, want nil", got)
	}
}

func TestRetention(t *testing.T) {
	max := 20
	s := testStore(Config{MaxMessages: max})
	s.AppendUser("s1", "original request")
	for i := 0; i < 40; i++ {
		s.AppendAssistant("s1", fmt.Sprintf("reply %d", i), nil)
	}

	msgs := s.Messages("s1")
	k := max / 2 // min(10, 20/2)
	if len(msgs) != 1+k {
		t.Fatalf("retained %d messages, want %d", len(msgs), 1+k)
	}
	if msgs[0].Content != "original request" {
		t.Errorf("first message = %q, want the originating request", msgs[0].Content)
	}
	if msgs[len(msgs)-1].Content != "reply 39" {
		t.Errorf("last message = %q", msgs[len(msgs)-1].Content)
	}
}

func TestRetentionIdempotent(t *testing.T) {
	msgs := make([]models.Message, 0, 60)
	for i := 0; i < 60; i++ {
		msgs = append(msgs, models.Message{Content: fmt.Sprintf("m%d", i)})
	}
	once := retain(msgs, 50)
	twice := retain(once, 50)
	if len(once) != len(twice) {
		t.Fatalf("retain not idempotent: %d then %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].Content != twice[i].Content {
			t.Fatalf("retain not idempotent at %d: %q vs %q", i, once[i].Content, twice[i].Content)
		}
	}
}

func TestRetentionBound(t *testing.T) {
	// The log never exceeds max + max/2, even transiently across appends.
	max := 50
	s := testStore(Config{MaxMessages: max})
	for i := 0; i < 200; i++ {
		s.AppendUser("s1", fmt.Sprintf("m%d", i))
		if n := len(s.Messages("s1")); n > max+max/2 {
			t.Fatalf("message count %d exceeds bound after append %d", n, i)
		}
	}
}

func TestContextBag(t *testing.T) {
	s := testStore(Config{})
	s.UpdateContext("s1", map[string]any{"lang": "ko"})
	s.UpdateContext("s1", map[string]any{"mode": "react"})

	ctx := s.Context("s1")
	if ctx["lang"] != "ko" || ctx["mode"] != "react" {
		t.Errorf("context = %#v", ctx)
	}

	// Snapshot: mutating the copy does not touch the store.
	ctx["lang"] = "en"
	if s.Context("s1")["lang"] != "ko" {
		t.Error("context snapshot leaked a reference")
	}
}

func TestDeleteAndActiveCount(t *testing.T) {
	s := testStore(Config{})
	s.GetOrCreate("a")
	s.GetOrCreate("b")
	if got := s.ActiveCount(); got != 2 {
		t.Fatalf("ActiveCount = %d, want 2", got)
	}
	if !s.Delete("a") {
		t.Error("Delete existing session should report true")
	}
	if s.Delete("a") {
		t.Error("Delete missing session should report false")
	}
	if got := s.ActiveCount(); got != 1 {
		t.Errorf("ActiveCount = %d, want 1", got)
	}
}

func TestCleanupExpired(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s := testStore(Config{IdleTimeout: 30 * time.Minute})
	s.SetNowFunc(func() time.Time { return now })

	s.AppendUser("old", "hello")
	now = base.Add(20 * time.Minute)
	s.AppendUser("fresh", "hello")

	// Past the idle timeout for "old" only.
	now = base.Add(40 * time.Minute)
	if removed := s.CleanupExpired(); removed != 1 {
		t.Fatalf("removed %d sessions, want 1", removed)
	}
	if s.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", s.ActiveCount())
	}
	if got := s.History("old", 0); got != nil {
		t.Errorf("evicted session history = %+v, want nil", got)
	}
	if got := s.History("fresh", 0); len(got) != 1 {
		t.Errorf("fresh session should survive, history = %+v", got)
	}
}

func TestAccessResetsIdleClock(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s := testStore(Config{IdleTimeout: 30 * time.Minute})
	s.SetNowFunc(func() time.Time { return now })

	s.AppendUser("s1", "hello")
	now = base.Add(25 * time.Minute)
	s.GetOrCreate("s1") // touch
	now = base.Add(45 * time.Minute)
	if removed := s.CleanupExpired(); removed != 0 {
		t.Errorf("touched session evicted after %d removals", removed)
	}
}
