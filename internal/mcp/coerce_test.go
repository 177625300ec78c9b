package mcp

import (
	"encoding/json"
	"reflect"
	"testing"
)

func weatherTool() *ToolDescriptor {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"location": {"type": "string"},
			"days": {"type": "integer", "default": 1},
			"detailed": {"type": "boolean"}
		},
		"required": ["location"]
	}`)
	return NewToolDescriptor("weather", &Tool{
		Name:        "get_weather",
		Description: "Weather lookup",
		InputSchema: schema,
	})
}

func TestParseSchemaFields_Order(t *testing.T) {
	tool := weatherTool()
	want := []string{"location", "days", "detailed"}
	if len(tool.Fields) != len(want) {
		t.Fatalf("got %d fields, want %d", len(tool.Fields), len(want))
	}
	for i, name := range want {
		if tool.Fields[i].Name != name {
			t.Errorf("field %d = %q, want %q", i, tool.Fields[i].Name, name)
		}
	}
	if !tool.Fields[0].Required {
		t.Error("location should be required")
	}
	if tool.Fields[1].Type != FieldInteger {
		t.Errorf("days type = %q, want integer", tool.Fields[1].Type)
	}
}

func TestCoerce_JSONFastPath(t *testing.T) {
	tool := weatherTool()
	got := Coerce(tool, `{"location":"서울","days":3}`)
	if got["location"] != "서울" {
		t.Errorf("location = %v", got["location"])
	}
	if got["days"] != float64(3) {
		t.Errorf("days = %v (%T)", got["days"], got["days"])
	}
}

func TestCoerce_Positional(t *testing.T) {
	tool := weatherTool()
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{
			name: "full positional",
			raw:  "서울, 3, yes",
			want: map[string]any{"location": "서울", "days": int64(3), "detailed": true},
		},
		{
			name: "partial uses default",
			raw:  "Busan",
			want: map[string]any{"location": "Busan", "days": int64(1)},
		},
		{
			name: "quoted wrapper stripped",
			raw:  `"Daegu, 2"`,
			want: map[string]any{"location": "Daegu", "days": int64(2)},
		},
		{
			name: "integer with unit suffix",
			raw:  "Seoul, 3days",
			want: map[string]any{"location": "Seoul", "days": int64(3)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Coerce(tool, tt.raw)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Coerce(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCoerce_RoundTrip(t *testing.T) {
	// Coercing a canonical rendering of coerced arguments is a no-op.
	tool := weatherTool()
	first := Coerce(tool, "Seoul, 3")
	data, err := json.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	second := Coerce(tool, string(data))
	if second["location"] != "Seoul" {
		t.Errorf("location lost in round trip: %#v", second)
	}
	// JSON numbers come back as float64; compare by value.
	if got := second["days"]; got != float64(3) {
		t.Errorf("days = %v (%T), want 3", got, got)
	}
}

func TestCoerce_FallbackInput(t *testing.T) {
	tool := NewToolDescriptor("x", &Tool{Name: "opaque", InputSchema: nil})
	got := Coerce(tool, "do the thing")
	want := map[string]any{"input": "do the thing"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Coerce = %#v, want %#v", got, want)
	}
}

func TestCoerce_NullLiteral(t *testing.T) {
	// "null" unmarshals into a nil map, which must not be mistaken for a
	// JSON object: a schemaless tool still gets the raw-input fallback.
	tool := NewToolDescriptor("x", &Tool{Name: "opaque", InputSchema: nil})
	got := Coerce(tool, "null")
	want := map[string]any{"input": "null"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Coerce = %#v, want %#v", got, want)
	}

	// With a schema, "null" is an ordinary positional value.
	got = Coerce(weatherTool(), "null")
	want = map[string]any{"location": "null", "days": int64(1)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Coerce = %#v, want %#v", got, want)
	}
}

func TestCoerce_Empty(t *testing.T) {
	tool := weatherTool()
	if got := Coerce(tool, "   "); len(got) != 0 {
		t.Errorf("empty input should coerce to empty bag, got %#v", got)
	}
}

func TestValidateArgs(t *testing.T) {
	tool := weatherTool()
	if err := tool.ValidateArgs(map[string]any{"location": "Seoul", "days": 2}); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}
	if err := tool.ValidateArgs(map[string]any{"days": "many"}); err == nil {
		t.Error("missing required field and wrong type should fail validation")
	}
}

func TestRenderArgs(t *testing.T) {
	got := RenderArgs("get_weather", map[string]any{"location": "Seoul"})
	want := `get_weather({"location":"Seoul"})`
	if got != want {
		t.Errorf("RenderArgs = %q, want %q", got, want)
	}
	if got := RenderArgs("ping", nil); got != "ping()" {
		t.Errorf("RenderArgs no args = %q", got)
	}
}
