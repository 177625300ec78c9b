package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldType is the coercion target type of a schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

// SchemaField is one argument slot of a tool, in schema declaration order.
type SchemaField struct {
	Name     string
	Type     FieldType
	Default  any
	Required bool
}

// ToolDescriptor is a discovered tool with its owning server and the
// ordered, typed view of its argument schema. Immutable after discovery.
type ToolDescriptor struct {
	Name        string
	ServerID    string
	Description string
	Schema      json.RawMessage
	Fields      []SchemaField

	compiled *jsonschema.Schema
}

// NewToolDescriptor builds a descriptor from a wire tool. Field order
// follows the schema's properties declaration order. A schema that fails
// to compile leaves validation disabled but the tool callable.
func NewToolDescriptor(serverID string, tool *Tool) *ToolDescriptor {
	d := &ToolDescriptor{
		Name:        tool.Name,
		ServerID:    serverID,
		Description: tool.Description,
		Schema:      tool.InputSchema,
	}
	if len(tool.InputSchema) > 0 {
		d.Fields = parseSchemaFields(tool.InputSchema)
		compiler := jsonschema.NewCompiler()
		url := "inline://" + serverID + "/" + tool.Name
		if err := compiler.AddResource(url, bytes.NewReader(tool.InputSchema)); err == nil {
			if schema, err := compiler.Compile(url); err == nil {
				d.compiled = schema
			}
		}
	}
	return d
}

// ValidateArgs checks an argument bag against the tool's compiled schema.
// Advisory: callers log failures and proceed, letting the tool reject.
func (d *ToolDescriptor) ValidateArgs(args map[string]any) error {
	if d.compiled == nil {
		return nil
	}
	// The validator wants plain JSON values.
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	return d.compiled.Validate(doc)
}

// parseSchemaFields walks the raw schema JSON with a token decoder so the
// properties map keeps its declaration order, which positional coercion
// depends on.
func parseSchemaFields(raw json.RawMessage) []SchemaField {
	var meta struct {
		Properties json.RawMessage `json:"properties"`
		Required   []string        `json:"required"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil || len(meta.Properties) == 0 {
		return nil
	}
	required := make(map[string]bool, len(meta.Required))
	for _, name := range meta.Required {
		required[name] = true
	}

	dec := json.NewDecoder(bytes.NewReader(meta.Properties))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	var fields []SchemaField
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fields
		}
		name, _ := keyTok.(string)

		var prop struct {
			Type    string `json:"type"`
			Default any    `json:"default"`
		}
		if err := dec.Decode(&prop); err != nil {
			return fields
		}

		ft := FieldString
		switch prop.Type {
		case "integer":
			ft = FieldInteger
		case "number":
			ft = FieldNumber
		case "boolean":
			ft = FieldBoolean
		}
		// JSON numbers decode as float64; integer defaults get their
		// declared type so coerced bags stay uniform.
		if ft == FieldInteger {
			if f, ok := prop.Default.(float64); ok {
				prop.Default = int64(f)
			}
		}
		fields = append(fields, SchemaField{
			Name:     name,
			Type:     ft,
			Default:  prop.Default,
			Required: required[name],
		})
	}
	return fields
}

// Coerce turns a free-form argument string from the LLM into a typed bag
// conforming to the tool's schema. A JSON object is trusted as-is;
// anything else is split positionally on commas and zipped against the
// schema's declared field order. A non-empty input that coerces to nothing
// degrades to {"input": raw}.
func Coerce(tool *ToolDescriptor, raw string) map[string]any {
	text := stripQuotes(strings.TrimSpace(raw))
	if text == "" {
		return map[string]any{}
	}

	// Fast path: the LLM already produced a JSON object. The literal
	// "null" also unmarshals cleanly, into a nil map; that is not an
	// object, so it falls through to positional coercion.
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err == nil && obj != nil {
		return obj
	}

	args := make(map[string]any)
	parts := strings.Split(text, ",")
	for i, field := range tool.Fields {
		if i >= len(parts) {
			// No position for this field: defaults apply, required
			// fields without one are left for the tool to reject.
			if field.Default != nil {
				args[field.Name] = field.Default
			}
			continue
		}
		value := strings.TrimSpace(parts[i])
		coerced, ok := coerceValue(value, field.Type)
		switch {
		case ok:
			args[field.Name] = coerced
		case field.Default != nil:
			args[field.Name] = field.Default
		case field.Required:
			args[field.Name] = value
		}
	}

	if len(args) == 0 {
		return map[string]any{"input": text}
	}
	return args
}

func coerceValue(value string, ft FieldType) (any, bool) {
	switch ft {
	case FieldInteger:
		digits := keepRunes(value, "0123456789-")
		if digits == "" || digits == "-" {
			return nil, false
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return nil, false
		}
		return n, true
	case FieldNumber:
		digits := keepRunes(value, "0123456789.-")
		f, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case FieldBoolean:
		switch strings.ToLower(value) {
		case "true", "yes", "1", "t":
			return true, true
		default:
			return false, true
		}
	default:
		if value == "" {
			return nil, false
		}
		return value, true
	}
}

func keepRunes(s, allowed string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(allowed, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripQuotes(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// RenderArgs produces the compact textual form used in prompts and
// observation messages, e.g. get_weather({"location":"Seoul","days":3}).
func RenderArgs(toolName string, args map[string]any) string {
	if len(args) == 0 {
		return toolName + "()"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%s(%v)", toolName, args)
	}
	return fmt.Sprintf("%s(%s)", toolName, data)
}
