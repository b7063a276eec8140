// Package parser defines the contracts shared by every pluggable parser —
// state detectors, output classifiers, and confirmation detectors — together
// with the registry that dispatches them.
//
// Parsers are stateless: they read the Context they are handed and never
// mutate driver state. A parser that panics during detection is treated as a
// non-match; a malformed parser must never take down the pipeline.
package parser

// SessionState is the finite set of states a session can be in.
type SessionState string

const (
	StateStarting    SessionState = "starting"
	StateIdle        SessionState = "idle"
	StateThinking    SessionState = "thinking"
	StateResponding  SessionState = "responding"
	StateToolRunning SessionState = "tool_running"
	StateConfirming  SessionState = "confirming"
	StateError       SessionState = "error"
	StateExited      SessionState = "exited"
)

// Valid reports whether s is one of the defined session states.
func (s SessionState) Valid() bool {
	switch s {
	case StateStarting, StateIdle, StateThinking, StateResponding,
		StateToolRunning, StateConfirming, StateError, StateExited:
		return true
	}
	return false
}

// Context is the sole input every parser sees. All fields are read-only.
type Context struct {
	// ScreenText is the full visible screen plus scrollback as plain text,
	// newline separated, with no terminal control sequences.
	ScreenText string
	// LastLines holds the last N lines of ScreenText, oldest first.
	LastLines []string
	// CurrentState and PreviousState are optional session-state hints;
	// empty when unknown.
	CurrentState  SessionState
	PreviousState SessionState
	// RawScreen optionally carries the formatted screen including control
	// codes, for parsers that need it.
	RawScreen string
	// TerminalTitle optionally carries the OSC window title.
	TerminalTitle string
}

// Metadata describes a parser. Name must be unique within a registry;
// higher Priority parsers are consulted first.
type Metadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	Version     string `json:"version,omitempty"`
}

// StateDetection is a state parser's verdict.
type StateDetection struct {
	State      SessionState   `json:"state"`
	Confidence float64        `json:"confidence"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// OutputType tags the payload shape of a semantic output record.
type OutputType string

const (
	OutputText          OutputType = "text"
	OutputTable         OutputType = "table"
	OutputJSON          OutputType = "json"
	OutputTree          OutputType = "tree"
	OutputDiff          OutputType = "diff"
	OutputList          OutputType = "list"
	OutputError         OutputType = "error"
	OutputClaudeStatus  OutputType = "claude-status"
	OutputClaudeContent OutputType = "claude-content"
	OutputClaudeTitle   OutputType = "claude-title"
	OutputClaudeTool    OutputType = "claude-tool"
)

// Output is a semantic output record produced by an output classifier.
// Data holds the parser-specific payload for Type.
type Output struct {
	Type       OutputType `json:"type"`
	Raw        string     `json:"raw"`
	Data       any        `json:"data"`
	Confidence float64    `json:"confidence"`
	ParserName string     `json:"parser_name"`
}

// ConfirmType distinguishes the shapes a confirmation prompt can take.
type ConfirmType string

const (
	ConfirmYesNo   ConfirmType = "yesno"
	ConfirmOptions ConfirmType = "options"
	ConfirmInput   ConfirmType = "input"
)

// ConfirmOption is one selectable entry of an options-style confirmation.
type ConfirmOption struct {
	Key       int    `json:"key"`
	Label     string `json:"label"`
	IsDefault bool   `json:"is_default"`
}

// ToolRequest identifies the tool a confirmation is gating, when one could
// be extracted from the prompt.
type ToolRequest struct {
	Name      string         `json:"name"`
	MCPServer string         `json:"mcp_server,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// ConfirmInfo describes a pending confirmation prompt.
type ConfirmInfo struct {
	Type      ConfirmType     `json:"type"`
	Prompt    string          `json:"prompt"`
	Options   []ConfirmOption `json:"options,omitempty"`
	Tool      *ToolRequest    `json:"tool,omitempty"`
	RawPrompt string          `json:"raw_prompt"`
}

// ConfirmAction is the caller's answer kind to a confirmation.
type ConfirmAction string

const (
	ActionConfirm ConfirmAction = "confirm"
	ActionDeny    ConfirmAction = "deny"
	ActionSelect  ConfirmAction = "select"
	ActionInput   ConfirmAction = "input"
)

// ConfirmResponse is the caller's answer to a confirmation.
type ConfirmResponse struct {
	Action ConfirmAction `json:"action"`
	Option int           `json:"option,omitempty"`
	Value  string        `json:"value,omitempty"`
}

// StateParser detects the session state from a context. A nil result means
// "no opinion".
type StateParser interface {
	Metadata() Metadata
	DetectState(ctx *Context) *StateDetection
}

// OutputParser classifies command output. CanParse is a cheap gate; Parse
// returns nil when the output is not confidently this parser's shape.
type OutputParser interface {
	Metadata() Metadata
	CanParse(ctx *Context) bool
	Parse(ctx *Context) *Output
}

// ConfirmParser detects confirmation prompts and formats the bytes that
// answer them. FormatResponse returns the exact bytes to write to the PTY.
type ConfirmParser interface {
	Metadata() Metadata
	DetectConfirm(ctx *Context) *ConfirmInfo
	FormatResponse(info *ConfirmInfo, resp ConfirmResponse) []byte
}
