package outparse

import (
	"regexp"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// ClaudeContentData is the payload of a claude-content output record.
type ClaudeContentData struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	IsComplete bool   `json:"is_complete"`
}

var (
	claudeContentMarker   = regexp.MustCompile(`^⏺\s+(.*)$`)
	claudeSeparatorLine   = regexp.MustCompile(`^[\s]*[─━═]{3,}[\s]*$`)
	claudePromptLine      = regexp.MustCompile(`^\s*[❯>]`)
	claudeStatusOnlyLine  = regexp.MustCompile(`^[\s·✻✽✶✳✢⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏]+$`)
	claudeToolOutputStart = regexp.MustCompile(`^\s*[│⎿]`)
)

// ClaudeContentParser extracts the assistant's most recent response text
// from a Claude Code screen.
type ClaudeContentParser struct{}

// NewClaudeContentParser creates the claude-content classifier.
func NewClaudeContentParser() *ClaudeContentParser { return &ClaudeContentParser{} }

// Metadata implements parser.OutputParser.
func (p *ClaudeContentParser) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "claude-content-output",
		Description: "Extracts assistant response text from Claude Code screens",
		Priority:    90,
	}
}

// CanParse implements parser.OutputParser.
func (p *ClaudeContentParser) CanParse(ctx *parser.Context) bool {
	return p.findContentStart(ctx.LastLines) >= 0
}

// Parse implements parser.OutputParser.
func (p *ClaudeContentParser) Parse(ctx *parser.Context) *parser.Output {
	lines := ctx.LastLines
	start := p.findContentStart(lines)
	if start < 0 {
		return nil
	}

	first := claudeContentMarker.FindStringSubmatch(lines[start])
	parts := []string{strings.TrimSpace(first[1])}
	isComplete := false

	for _, line := range lines[start+1:] {
		switch {
		case claudeSeparatorLine.MatchString(line):
			isComplete = true
		case claudePromptLine.MatchString(line), strings.HasPrefix(line, "⏺"):
			// Next prompt or next assistant block ends this one.
		case claudeToolOutputStart.MatchString(line):
			continue // tool output inside the block
		case claudeStatusOnlyLine.MatchString(line) && strings.TrimSpace(line) != "":
			continue // spinner/status glyph noise
		default:
			parts = append(parts, strings.TrimRight(line, " "))
			continue
		}
		break
	}

	content := strings.TrimSpace(strings.Join(parts, "\n"))
	if content == "" {
		return nil
	}

	return &parser.Output{
		Type: parser.OutputClaudeContent,
		Raw:  strings.Join(lines[start:], "\n"),
		Data: ClaudeContentData{
			Role:       "assistant",
			Content:    content,
			IsComplete: isComplete,
		},
		Confidence: 0.85,
		ParserName: p.Metadata().Name,
	}
}

// findContentStart returns the index of the most recent ⏺ line that is not
// a tool header, or -1.
func (p *ClaudeContentParser) findContentStart(lines []string) int {
	for i := len(lines) - 1; i >= 0; i-- {
		if !strings.HasPrefix(lines[i], "⏺") {
			continue
		}
		if p.isToolHeader(lines, i) {
			continue
		}
		if claudeContentMarker.MatchString(lines[i]) {
			return i
		}
	}
	return -1
}

// isToolHeader decides whether a ⏺ line introduces a tool invocation rather
// than response text: a known tool name with optional completion suffix, the
// inline Name(...) form, or a line structurally followed by tool output
// within the next five lines.
func (p *ClaudeContentParser) isToolHeader(lines []string, idx int) bool {
	line := lines[idx]
	if m := claudeToolBoxHeader.FindStringSubmatch(line); m != nil && knownClaudeTools[m[1]] {
		return true
	}
	if claudeToolInlineHeader.MatchString(line) {
		return true
	}
	for j := idx + 1; j < len(lines) && j <= idx+5; j++ {
		if claudeToolOutputStart.MatchString(lines[j]) {
			return true
		}
		if strings.TrimSpace(lines[j]) != "" {
			break
		}
	}
	return false
}
