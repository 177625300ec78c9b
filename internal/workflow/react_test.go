package workflow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/mcphost/pkg/models"
)

func TestParseThink(t *testing.T) {
	tests := []struct {
		name        string
		text        string
		wantThought string
		wantAction  string
		wantFinal   string
	}{
		{
			name:        "thought and action",
			text:        "Thought: I need the weather.\nAction: get weather for Seoul",
			wantThought: "I need the weather.",
			wantAction:  "get weather for Seoul",
		},
		{
			name:      "final answer",
			text:      "Final Answer: everything is sunny.",
			wantFinal: "everything is sunny.",
		},
		{
			name:        "korean markers",
			text:        "생각: 날씨를 확인해야 한다\n행동: 서울 날씨 조회",
			wantThought: "날씨를 확인해야 한다",
			wantAction:  "서울 날씨 조회",
		},
		{
			name:      "korean final answer",
			text:      "최종 답변: 서울은 맑음입니다.",
			wantFinal: "서울은 맑음입니다.",
		},
		{
			name: "no markers",
			text: "hmm, not sure what to do",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			thought, action, final := parseThink(tt.text)
			if thought != tt.wantThought || action != tt.wantAction || final != tt.wantFinal {
				t.Errorf("parseThink(%q) = (%q, %q, %q)", tt.text, thought, action, final)
			}
		})
	}
}

func TestJaccard(t *testing.T) {
	if got := jaccard("tool failed: timeout", "tool failed: timeout"); got != 1 {
		t.Errorf("identical strings = %v, want 1", got)
	}
	if got := jaccard("alpha beta gamma", "delta epsilon zeta"); got != 0 {
		t.Errorf("disjoint strings = %v, want 0", got)
	}
	if got := jaccard("a b c d", "a b c e"); got <= 0.5 || got >= 0.7 {
		t.Errorf("overlap = %v, want 3/5", got)
	}
}

func TestStuckOnFailure(t *testing.T) {
	e, _, _ := newTestExecutor(&fakeRegistry{}, &fakeProvider{})

	obs := func(content string) models.Message {
		return models.Message{
			Role:      models.RoleTool,
			Content:   content,
			Timestamp: time.Now(),
			Metadata:  map[string]any{"react_step": "observe"},
		}
	}

	st := NewTurnState("s", "q", nil, 10)
	st.Messages = append(st.Messages, obs("관찰: get_weather failed: upstream unavailable"))
	if e.stuckOnFailure(st) {
		t.Error("one observation is never stuck")
	}

	st.Messages = append(st.Messages, obs("관찰: get_weather failed: upstream unavailable"))
	if !e.stuckOnFailure(st) {
		t.Error("two identical failures should be stuck")
	}

	// Different failures are progress of a sort.
	st2 := NewTurnState("s", "q", nil, 10)
	st2.Messages = append(st2.Messages,
		obs("관찰: get_weather failed: upstream unavailable for Seoul region today"),
		obs("관찰: get_news failed: a completely different broken endpoint path"))
	if e.stuckOnFailure(st2) {
		t.Error("dissimilar failures should not be stuck")
	}

	// Similar but successful observations are not stuck either.
	st3 := NewTurnState("s", "q", nil, 10)
	st3.Messages = append(st3.Messages,
		obs("관찰: Seoul: sunny, 20C"),
		obs("관찰: Seoul: sunny, 20C"))
	if e.stuckOnFailure(st3) {
		t.Error("successful observations should not trigger the guard")
	}
}

func TestPlannedArguments(t *testing.T) {
	e, _, _ := newTestExecutor(&fakeRegistry{}, &fakeProvider{})
	tool := weatherDescriptor()

	t.Run("object passes through", func(t *testing.T) {
		got := e.plannedArguments(tool, json.RawMessage(`{"location":"Seoul"}`))
		if got["location"] != "Seoul" {
			t.Errorf("args = %#v", got)
		}
	})

	t.Run("string is coerced", func(t *testing.T) {
		got := e.plannedArguments(tool, json.RawMessage(`"Busan"`))
		if got["location"] != "Busan" {
			t.Errorf("args = %#v", got)
		}
	})

	t.Run("empty yields empty bag", func(t *testing.T) {
		if got := e.plannedArguments(tool, nil); len(got) != 0 {
			t.Errorf("args = %#v", got)
		}
	})
}

func TestLooksLikeFailure(t *testing.T) {
	cases := map[string]bool{
		"get_weather failed: boom": true,
		"tool not found: x":        true,
		"오류가 발생했습니다":               true,
		"Seoul: sunny, 20C":        false,
	}
	for text, want := range cases {
		if got := looksLikeFailure(text); got != want {
			t.Errorf("looksLikeFailure(%q) = %v, want %v", text, got, want)
		}
	}
}
