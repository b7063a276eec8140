package outparse

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// ClaudeToolData is the payload of a claude-tool output record.
type ClaudeToolData struct {
	ToolName   string         `json:"tool_name"`
	Params     map[string]any `json:"params,omitempty"`
	Output     []string       `json:"output,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	Status     string         `json:"status"`
}

// knownClaudeTools are the built-in Claude Code tool names; a header naming
// one of them is classified with high confidence.
var knownClaudeTools = map[string]bool{
	"Bash": true, "Read": true, "Edit": true, "Write": true,
	"Glob": true, "Grep": true, "WebFetch": true, "WebSearch": true,
	"Task": true, "LSP": true, "NotebookEdit": true,
	"TodoRead": true, "TodoWrite": true, "MultiEdit": true,
}

var (
	// Box header: "⏺ Bash" or "⏺ Bash (completed in 0.5s)".
	claudeToolBoxHeader = regexp.MustCompile(`^⏺\s+([A-Za-z][\w-]*)\s*(?:\(completed in ([\d.]+)s\))?\s*$`)
	// Inline header: "⏺ Bash(command: "ls")".
	claudeToolInlineHeader = regexp.MustCompile(`^⏺\s+([A-Za-z][\w-]*)\((.*)\)\s*$`)
	claudeToolParamLine    = regexp.MustCompile(`^\s*│\s*([\w-]+):\s*(.*)$`)
	claudeToolBodyLine     = regexp.MustCompile(`^\s*│\s?(.*)$`)
	claudeToolResultLine   = regexp.MustCompile(`^\s*⎿\s?(.*)$`)
)

// ClaudeToolParser classifies Claude Code tool invocation boxes.
type ClaudeToolParser struct{}

// NewClaudeToolParser creates the claude-tool classifier.
func NewClaudeToolParser() *ClaudeToolParser { return &ClaudeToolParser{} }

// Metadata implements parser.OutputParser.
func (p *ClaudeToolParser) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "claude-tool-output",
		Description: "Parses Claude Code tool headers, parameters, and output",
		Priority:    92,
	}
}

// CanParse implements parser.OutputParser.
func (p *ClaudeToolParser) CanParse(ctx *parser.Context) bool {
	for _, line := range ctx.LastLines {
		if claudeToolBoxHeader.MatchString(line) || claudeToolInlineHeader.MatchString(line) {
			return true
		}
	}
	return false
}

// Parse implements parser.OutputParser.
func (p *ClaudeToolParser) Parse(ctx *parser.Context) *parser.Output {
	lines := ctx.LastLines

	// Walk backwards to the most recent tool header.
	for i := len(lines) - 1; i >= 0; i-- {
		if m := claudeToolBoxHeader.FindStringSubmatch(lines[i]); m != nil {
			return p.parseBox(lines, i, m)
		}
		if m := claudeToolInlineHeader.FindStringSubmatch(lines[i]); m != nil {
			return p.parseInline(lines, i, m)
		}
	}
	return nil
}

// parseBox handles the box form: parameter lines "  │ key: value" followed
// by "  │ body" output lines.
func (p *ClaudeToolParser) parseBox(lines []string, idx int, m []string) *parser.Output {
	data := ClaudeToolData{ToolName: m[1], Status: "running"}
	if m[2] != "" {
		if secs, err := strconv.ParseFloat(m[2], 64); err == nil {
			data.DurationMs = int64(secs * 1000)
			data.Status = "completed"
		}
	}

	raw := []string{lines[idx]}
	for _, line := range lines[idx+1:] {
		if pm := claudeToolParamLine.FindStringSubmatch(line); pm != nil {
			if data.Params == nil {
				data.Params = make(map[string]any)
			}
			data.Params[pm[1]] = parseParamValue(pm[2])
			raw = append(raw, line)
			continue
		}
		if bm := claudeToolBodyLine.FindStringSubmatch(line); bm != nil {
			data.Output = append(data.Output, bm[1])
			raw = append(raw, line)
			continue
		}
		break
	}

	return p.result(data, strings.Join(raw, "\n"))
}

// parseInline handles the inline form: arguments in the header, "⎿" result
// lines and their indented continuations below.
func (p *ClaudeToolParser) parseInline(lines []string, idx int, m []string) *parser.Output {
	data := ClaudeToolData{ToolName: m[1], Status: "running"}
	if args := strings.TrimSpace(m[2]); args != "" {
		data.Params = parseInlineParams(args)
	}

	raw := []string{lines[idx]}
	inResult := false
	for _, line := range lines[idx+1:] {
		if rm := claudeToolResultLine.FindStringSubmatch(line); rm != nil {
			data.Output = append(data.Output, rm[1])
			raw = append(raw, line)
			inResult = true
			continue
		}
		if inResult && strings.HasPrefix(line, "    ") && strings.TrimSpace(line) != "" {
			data.Output = append(data.Output, strings.TrimSpace(line))
			raw = append(raw, line)
			continue
		}
		break
	}
	if len(data.Output) > 0 {
		data.Status = "completed"
	}

	return p.result(data, strings.Join(raw, "\n"))
}

func (p *ClaudeToolParser) result(data ClaudeToolData, raw string) *parser.Output {
	conf := 0.8
	if knownClaudeTools[data.ToolName] {
		conf = 0.95
	}
	return &parser.Output{
		Type:       parser.OutputClaudeTool,
		Raw:        raw,
		Data:       data,
		Confidence: conf,
		ParserName: p.Metadata().Name,
	}
}

// parseParamValue JSON-decodes a parameter value where possible, otherwise
// strips surrounding quotes.
func parseParamValue(s string) any {
	s = strings.TrimSpace(s)
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil {
		return v
	}
	return strings.Trim(s, `"'`)
}

// parseInlineParams splits `key: "value", key2: 3` argument text. Commas
// inside quoted values are respected.
func parseInlineParams(args string) map[string]any {
	params := make(map[string]any)
	for _, part := range splitTopLevel(args, ',') {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			// Positional argument, e.g. Read(file.go).
			params["arg"] = strings.TrimSpace(part)
			continue
		}
		params[strings.TrimSpace(kv[0])] = parseParamValue(kv[1])
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// splitTopLevel splits on sep outside of double-quoted runs.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	inString := false
	escaped := false
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case c == sep && !inString:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}
