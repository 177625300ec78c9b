package workflow

import (
	"testing"

	"github.com/haasonsaas/mcphost/pkg/models"
)

func TestNeedsReact(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"plain chat", "hello there", false},
		{"single tool question", "What's the weather in Seoul?", false},
		{"three commas", "weather in Seoul, Busan, Daegu, and Jeju", true},
		{"keyword with comma", "compare the weather in Seoul, please", true},
		{"korean keyword with comma", "서울, 부산 날씨 비교해줘", true},
		{"city run", "Seoul, Busan, Daegu", true},
		{"keyword without comma", "analyze this message", false},
		{"two items only", "Seoul, Busan", false},
		{"fullwidth commas", "서울，부산，대구 날씨", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NeedsReact(tt.text); got != tt.want {
				t.Errorf("NeedsReact(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestParseClassifierResponse(t *testing.T) {
	t.Run("well formed", func(t *testing.T) {
		intent := ParseClassifierResponse(`INTENT: TOOL_CALL
CONFIDENCE: 0.9
TARGET_TOOL: get_weather
PARAMETERS: {"location": "Seoul"}
REASONING: user asks for weather`)
		if intent.Kind != models.IntentToolCall {
			t.Errorf("kind = %v", intent.Kind)
		}
		if intent.Confidence != 0.9 {
			t.Errorf("confidence = %v", intent.Confidence)
		}
		if intent.TargetTool != "get_weather" {
			t.Errorf("target tool = %q", intent.TargetTool)
		}
		if intent.Parameters["location"] != "Seoul" {
			t.Errorf("parameters = %#v", intent.Parameters)
		}
		if !intent.IsMCPAction() {
			t.Error("should be an MCP action")
		}
	})

	t.Run("null target tool", func(t *testing.T) {
		intent := ParseClassifierResponse("INTENT: GENERAL_CHAT\nCONFIDENCE: 0.8\nTARGET_TOOL: null")
		if intent.TargetTool != "" {
			t.Errorf("target tool = %q, want empty", intent.TargetTool)
		}
		if intent.IsMCPAction() {
			t.Error("general chat is not an MCP action")
		}
	})

	t.Run("unknown intent downgrades", func(t *testing.T) {
		intent := ParseClassifierResponse("INTENT: WORLD_DOMINATION\nCONFIDENCE: 0.99")
		if intent.Kind != models.IntentGeneralChat {
			t.Errorf("kind = %v, want GENERAL_CHAT", intent.Kind)
		}
		if intent.Confidence != 0.3 {
			t.Errorf("confidence = %v, want 0.3", intent.Confidence)
		}
	})

	t.Run("unparsable confidence defaults", func(t *testing.T) {
		intent := ParseClassifierResponse("INTENT: HELP\nCONFIDENCE: very sure")
		if intent.Confidence != 0.5 {
			t.Errorf("confidence = %v, want 0.5", intent.Confidence)
		}
		if intent.Kind != models.IntentHelp {
			t.Errorf("kind = %v", intent.Kind)
		}
	})

	t.Run("broken parameters become empty", func(t *testing.T) {
		intent := ParseClassifierResponse("INTENT: TOOL_CALL\nTARGET_TOOL: get_weather\nPARAMETERS: Seoul and friends")
		if len(intent.Parameters) != 0 {
			t.Errorf("parameters = %#v, want empty", intent.Parameters)
		}
		if intent.RawArgsText != "Seoul and friends" {
			t.Errorf("raw args = %q", intent.RawArgsText)
		}
	})

	t.Run("garbage input", func(t *testing.T) {
		intent := ParseClassifierResponse("I think maybe the user wants something?")
		if intent.Kind != models.IntentGeneralChat {
			t.Errorf("kind = %v", intent.Kind)
		}
	})
}
