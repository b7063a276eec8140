package confirmparse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// ResponseStrategy selects how options-style confirmations are answered.
// Recent Claude Code versions navigate with arrow keys; older ones accept
// literal option numbers.
type ResponseStrategy string

const (
	StrategyArrows  ResponseStrategy = "arrows"
	StrategyNumbers ResponseStrategy = "numbers"
)

const (
	keyDown = "\x1b[B"
	keyCR   = "\r"
)

var (
	claudeOptionLine = regexp.MustCompile(`^\s*❯?\s*(\d+)\.\s*(.+?)\s*$`)
	claudeFirstYes   = regexp.MustCompile(`^\s*❯?\s*1\.\s+(?:Yes|Allow)`)
	claudeYesNoLine  = regexp.MustCompile(`\[Y/n\]|\[y/N\]|\(y/n\)`)
	// "server - tool_name(k: "v")" with an optional "(MCP)" suffix.
	claudeToolLine = regexp.MustCompile(`^\s*([\w.-]+)\s+-\s+([\w-]+)\(([^()]*)\)(?:\s*\(MCP\))?\s*$`)
	escCancelLine  = "Esc to cancel"
)

// ClaudeCodeDetector recognizes Claude Code permission dialogs, extracts the
// gated tool call, and formats the key sequences the dialog expects.
type ClaudeCodeDetector struct {
	strategy ResponseStrategy
}

// NewClaudeCodeDetector creates a Claude Code confirm detector using the
// given response strategy; empty selects arrow-key navigation.
func NewClaudeCodeDetector(strategy ResponseStrategy) *ClaudeCodeDetector {
	if strategy == "" {
		strategy = StrategyArrows
	}
	return &ClaudeCodeDetector{strategy: strategy}
}

// Metadata implements parser.ConfirmParser.
func (d *ClaudeCodeDetector) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "claude-code-confirm",
		Description: "Detects Claude Code permission dialogs and formats option navigation",
		Priority:    100,
	}
}

// DetectConfirm implements parser.ConfirmParser.
func (d *ClaudeCodeDetector) DetectConfirm(ctx *parser.Context) *parser.ConfirmInfo {
	lines := ctx.LastLines
	joined := strings.Join(lines, "\n")

	if info := d.detectOptions(lines, joined); info != nil {
		return info
	}
	return d.detectYesNo(lines)
}

// detectOptions handles the numbered-list dialog: the block must start its
// options with "1. Yes"/"1. Allow" and carry the escape hint somewhere.
func (d *ClaudeCodeDetector) detectOptions(lines []string, joined string) *parser.ConfirmInfo {
	if !strings.Contains(joined, escCancelLine) {
		return nil
	}

	firstYes := -1
	for i, line := range lines {
		if claudeFirstYes.MatchString(line) {
			firstYes = i
			break
		}
	}
	if firstYes < 0 {
		return nil
	}

	var options []parser.ConfirmOption
	for _, line := range lines[firstYes:] {
		m := claudeOptionLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		options = append(options, parser.ConfirmOption{
			Key:       key,
			Label:     m[2],
			IsDefault: key == 1,
		})
	}
	if len(options) == 0 {
		return nil
	}

	info := &parser.ConfirmInfo{
		Type:      parser.ConfirmOptions,
		Options:   options,
		RawPrompt: joined,
	}

	// The tool being gated appears above the option block.
	for i := firstYes - 1; i >= 0; i-- {
		if m := claudeToolLine.FindStringSubmatch(lines[i]); m != nil {
			info.Tool = &parser.ToolRequest{
				Name:      m[2],
				MCPServer: m[1],
				Params:    parseToolParams(m[3]),
			}
			info.Prompt = strings.TrimSpace(lines[i])
			break
		}
		if info.Prompt == "" && strings.TrimSpace(lines[i]) != "" {
			info.Prompt = strings.TrimSpace(lines[i])
		}
	}
	if info.Prompt == "" {
		info.Prompt = options[0].Label
	}
	return info
}

func (d *ClaudeCodeDetector) detectYesNo(lines []string) *parser.ConfirmInfo {
	for i := len(lines) - 1; i >= 0; i-- {
		if claudeYesNoLine.MatchString(lines[i]) {
			return &parser.ConfirmInfo{
				Type:      parser.ConfirmYesNo,
				Prompt:    strings.TrimSpace(lines[i]),
				RawPrompt: lines[i],
			}
		}
	}
	return nil
}

// FormatResponse implements parser.ConfirmParser. For options dialogs the
// first option is pre-selected: confirm is a bare CR, deny navigates to the
// last option, select(n) navigates n-1 rows down. The numbers strategy types
// the option digit instead.
func (d *ClaudeCodeDetector) FormatResponse(info *parser.ConfirmInfo, resp parser.ConfirmResponse) []byte {
	if info == nil || info.Type != parser.ConfirmOptions {
		switch resp.Action {
		case parser.ActionConfirm:
			return []byte("y" + keyCR)
		case parser.ActionDeny:
			return []byte("n" + keyCR)
		case parser.ActionInput:
			return []byte(resp.Value + keyCR)
		}
		return []byte(keyCR)
	}

	if d.strategy == StrategyNumbers {
		switch resp.Action {
		case parser.ActionConfirm:
			return []byte("1" + keyCR)
		case parser.ActionDeny:
			return []byte(strconv.Itoa(len(info.Options)) + keyCR)
		case parser.ActionSelect:
			return []byte(strconv.Itoa(resp.Option) + keyCR)
		case parser.ActionInput:
			return []byte(resp.Value + keyCR)
		}
		return []byte(keyCR)
	}

	switch resp.Action {
	case parser.ActionConfirm:
		return []byte(keyCR)
	case parser.ActionDeny:
		return []byte(strings.Repeat(keyDown, len(info.Options)-1) + keyCR)
	case parser.ActionSelect:
		n := resp.Option
		if n < 1 {
			n = 1
		}
		if n > len(info.Options) {
			n = len(info.Options)
		}
		return []byte(strings.Repeat(keyDown, n-1) + keyCR)
	case parser.ActionInput:
		return []byte(resp.Value + keyCR)
	}
	return []byte(keyCR)
}

// parseToolParams parses `key: "value", key2: 3` text from a tool line.
func parseToolParams(args string) map[string]any {
	args = strings.TrimSpace(args)
	if args == "" {
		return nil
	}
	params := make(map[string]any)
	for _, part := range splitOutsideQuotes(args, ',') {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		params[strings.TrimSpace(kv[0])] = unquote(strings.TrimSpace(kv[1]))
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

func unquote(s string) any {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}

func splitOutsideQuotes(s string, sep byte) []string {
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
