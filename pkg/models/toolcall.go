package models

// ToolCallRecord captures one tool invocation end to end, including the raw
// JSON-RPC frames for audit. Exactly one of Result and Error is set once
// DurationMS is populated.
type ToolCallRecord struct {
	ServerID     string         `json:"server_id"`
	ToolName     string         `json:"tool_name"`
	Arguments    map[string]any `json:"arguments"`
	Result       string         `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	DurationMS   int64          `json:"duration_ms"`
	RequestJSON  string         `json:"jsonrpc_request_text,omitempty"`
	ResponseJSON string         `json:"jsonrpc_response_text,omitempty"`
}

// IsSuccessful reports whether the call completed without error.
func (r *ToolCallRecord) IsSuccessful() bool {
	return r != nil && r.Error == "" && r.Result != ""
}
