package models

// IntentKind categorizes a user message to select the next workflow branch.
type IntentKind string

const (
	IntentToolCall     IntentKind = "TOOL_CALL"
	IntentGeneralChat  IntentKind = "GENERAL_CHAT"
	IntentHelp         IntentKind = "HELP"
	IntentServerStatus IntentKind = "SERVER_STATUS"
	IntentToolList     IntentKind = "TOOL_LIST"
	IntentUnknown      IntentKind = "UNKNOWN"
)

// Intent is the classifier's verdict on a user message.
type Intent struct {
	Kind       IntentKind     `json:"kind"`
	Confidence float64        `json:"confidence"`
	TargetTool string         `json:"target_tool,omitempty"`
	// TargetServer is advisory only. Dispatch always routes by tool name.
	TargetServer string         `json:"target_server,omitempty"`
	RawArgsText  string         `json:"raw_args_text,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	Reasoning    string         `json:"reasoning,omitempty"`
}

// IsMCPAction reports whether the intent demands a tool invocation.
func (in *Intent) IsMCPAction() bool {
	return in != nil && in.Kind == IntentToolCall && in.TargetTool != ""
}
