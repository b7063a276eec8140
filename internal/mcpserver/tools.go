package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rickyjim626/semantic-terminal/internal/manager"
	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// --- Tool Definitions ---

func createSessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"create_session",
		"Create a new terminal session from a preset (shell, claude-code, docker). Returns the session id.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"preset": {
					"type": "string",
					"enum": ["shell", "claude-code", "docker"],
					"description": "Parser preset; default shell"
				},
				"command": {
					"type": "string",
					"description": "Command to run instead of the preset default"
				},
				"args": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Command arguments"
				},
				"cwd": {
					"type": "string",
					"description": "Working directory"
				},
				"cols": {"type": "integer"},
				"rows": {"type": "integer"}
			}
		}`),
	)
}

func destroySessionTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"destroy_session",
		"Destroy a session. Graceful close first unless force is set.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"},
				"force": {"type": "boolean"}
			},
			"required": ["session_id"]
		}`),
	)
}

func listSessionsTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"list_sessions",
		"List live sessions with id, preset, state, and activity timestamps.",
		json.RawMessage(`{"type": "object", "properties": {}}`),
	)
}

func execCommandTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"exec_command",
		"Run a command in an idle session and return the semantically classified output with severity and suggestions.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"},
				"command": {"type": "string"},
				"timeout_ms": {
					"type": "integer",
					"description": "How long to wait for the command to finish (default 30000)"
				},
				"parse_output": {
					"type": "boolean",
					"description": "Set false to get the raw text instead of a parsed record"
				}
			},
			"required": ["session_id", "command"]
		}`),
	)
}

func sendInputTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"send_input",
		"Send a line of text to a session (a carriage return is appended).",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"},
				"text": {"type": "string"}
			},
			"required": ["session_id", "text"]
		}`),
	)
}

func sendKeysTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"send_keys",
		"Send named keys (enter, escape, up, down, tab, ctrl+c, ...) to a session.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"},
				"keys": {
					"type": "array",
					"items": {"type": "string"}
				}
			},
			"required": ["session_id", "keys"]
		}`),
	)
}

func interruptTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"interrupt_session",
		"Send Ctrl-C to a session.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"}
			},
			"required": ["session_id"]
		}`),
	)
}

func getScreenTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_screen",
		"Read a session's screen as plain text, optionally only the trailing lines.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"},
				"lines": {
					"type": "integer",
					"description": "Restrict to the last N lines"
				}
			},
			"required": ["session_id"]
		}`),
	)
}

func getStateTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_session_state",
		"Get a session's current state (starting, idle, thinking, responding, tool_running, confirming, error, exited).",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"}
			},
			"required": ["session_id"]
		}`),
	)
}

func waitForStateTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"wait_for_state",
		"Block until a session reaches a state or the timeout fires.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"},
				"state": {"type": "string"},
				"timeout_ms": {"type": "integer"}
			},
			"required": ["session_id", "state"]
		}`),
	)
}

func getPendingConfirmationTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"get_pending_confirmation",
		"Get the confirmation prompt a session is currently blocked on, if any.",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"}
			},
			"required": ["session_id"]
		}`),
	)
}

func respondToConfirmationTool() mcp.Tool {
	return mcp.NewToolWithRawSchema(
		"respond_to_confirmation",
		"Answer a session's pending confirmation (confirm, deny, select an option, or supply input).",
		json.RawMessage(`{
			"type": "object",
			"properties": {
				"session_id": {"type": "string"},
				"action": {
					"type": "string",
					"enum": ["confirm", "deny", "select", "input"]
				},
				"option": {
					"type": "integer",
					"description": "1-based option number for select"
				},
				"value": {
					"type": "string",
					"description": "Free-form input for input-style prompts"
				}
			},
			"required": ["session_id", "action"]
		}`),
	)
}

// --- Tool Handlers ---

type createSessionArgs struct {
	Preset  string   `json:"preset"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
	Cwd     string   `json:"cwd"`
	Cols    int      `json:"cols"`
	Rows    int      `json:"rows"`
}

func (s *Server) handleCreateSession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createSessionArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}

	info, err := s.mgr.Create(manager.CreateOptions{
		Preset:  args.Preset,
		Command: args.Command,
		Args:    args.Args,
		Cwd:     args.Cwd,
		Cols:    args.Cols,
		Rows:    args.Rows,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create session: %v", err)), nil
	}
	return resultJSON(info)
}

type destroySessionArgs struct {
	SessionID string `json:"session_id"`
	Force     bool   `json:"force"`
}

func (s *Server) handleDestroySession(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args destroySessionArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.mgr.Destroy(args.SessionID, args.Force); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("destroy session: %v", err)), nil
	}
	return resultJSON(map[string]string{"status": "destroyed"})
}

func (s *Server) handleListSessions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(s.mgr.List())
}

type execCommandArgs struct {
	SessionID   string `json:"session_id"`
	Command     string `json:"command"`
	TimeoutMs   int64  `json:"timeout_ms"`
	ParseOutput *bool  `json:"parse_output"`
}

func (s *Server) handleExecCommand(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args execCommandArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.SessionID == "" || args.Command == "" {
		return mcp.NewToolResultError("session_id and command are required"), nil
	}

	timeout := 30 * time.Second
	if args.TimeoutMs > 0 {
		timeout = time.Duration(args.TimeoutMs) * time.Millisecond
	}
	parse := args.ParseOutput == nil || *args.ParseOutput

	result, err := s.mgr.Exec(args.SessionID, args.Command, timeout, parse)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("exec: %v", err)), nil
	}
	return resultJSON(result)
}

type sendInputArgs struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

func (s *Server) handleSendInput(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sendInputArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.mgr.Send(args.SessionID, args.Text); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("send: %v", err)), nil
	}
	return resultJSON(map[string]string{"status": "sent"})
}

type sendKeysArgs struct {
	SessionID string   `json:"session_id"`
	Keys      []string `json:"keys"`
}

func (s *Server) handleSendKeys(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sendKeysArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	for _, key := range args.Keys {
		if err := s.mgr.SendKey(args.SessionID, key); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("send key %q: %v", key, err)), nil
		}
	}
	return resultJSON(map[string]string{"status": "sent"})
}

type sessionIDArgs struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleInterrupt(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionIDArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if err := s.mgr.Interrupt(args.SessionID); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("interrupt: %v", err)), nil
	}
	return resultJSON(map[string]string{"status": "interrupted"})
}

type getScreenArgs struct {
	SessionID string `json:"session_id"`
	Lines     int    `json:"lines"`
}

func (s *Server) handleGetScreen(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args getScreenArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	snap, err := s.mgr.GetScreen(args.SessionID, args.Lines)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get screen: %v", err)), nil
	}
	return resultJSON(snap)
}

func (s *Server) handleGetState(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionIDArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	state, err := s.mgr.GetState(args.SessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get state: %v", err)), nil
	}
	return resultJSON(map[string]string{"state": string(state)})
}

type waitForStateArgs struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
	TimeoutMs int64  `json:"timeout_ms"`
}

func (s *Server) handleWaitForState(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args waitForStateArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	timeout := 30 * time.Second
	if args.TimeoutMs > 0 {
		timeout = time.Duration(args.TimeoutMs) * time.Millisecond
	}
	if err := s.mgr.WaitForState(args.SessionID, parser.SessionState(args.State), timeout); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("wait for state: %v", err)), nil
	}
	return resultJSON(map[string]string{"state": args.State})
}

func (s *Server) handleGetPendingConfirmation(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args sessionIDArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	info, err := s.mgr.GetPendingConfirm(args.SessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get pending confirmation: %v", err)), nil
	}
	return resultJSON(map[string]any{"pending": info})
}

type respondToConfirmationArgs struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
	Option    int    `json:"option"`
	Value     string `json:"value"`
}

func (s *Server) handleRespondToConfirmation(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args respondToConfirmationArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	resp := parser.ConfirmResponse{
		Action: parser.ConfirmAction(args.Action),
		Option: args.Option,
		Value:  args.Value,
	}
	if err := s.mgr.RespondToConfirm(args.SessionID, resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("respond to confirmation: %v", err)), nil
	}
	return resultJSON(map[string]string{"status": "answered"})
}

// resultJSON marshals v to JSON and returns it as a tool result.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
