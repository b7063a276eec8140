package outparse

import (
	"regexp"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// ClaudeTitleData is the payload of a claude-title output record.
type ClaudeTitleData struct {
	Spinner      string `json:"spinner,omitempty"`
	TaskName     string `json:"task_name"`
	IsProcessing bool   `json:"is_processing"`
}

var (
	claudeTitlePattern   = regexp.MustCompile(`^([·✻✽✶✳✢⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏✳])?\s*(.+)$`)
	claudeActiveSpinners = "✻✽✶✢⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏"
)

// ClaudeTitleParser classifies the OSC terminal title Claude Code sets while
// working. It is only active when the context carries a title.
type ClaudeTitleParser struct{}

// NewClaudeTitleParser creates the claude-title classifier.
func NewClaudeTitleParser() *ClaudeTitleParser { return &ClaudeTitleParser{} }

// Metadata implements parser.OutputParser.
func (p *ClaudeTitleParser) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "claude-title-output",
		Description: "Parses the Claude Code terminal title into spinner and task name",
		Priority:    85,
	}
}

// CanParse implements parser.OutputParser.
func (p *ClaudeTitleParser) CanParse(ctx *parser.Context) bool {
	return strings.TrimSpace(ctx.TerminalTitle) != ""
}

// Parse implements parser.OutputParser.
func (p *ClaudeTitleParser) Parse(ctx *parser.Context) *parser.Output {
	title := strings.TrimSpace(ctx.TerminalTitle)
	if title == "" {
		return nil
	}

	m := claudeTitlePattern.FindStringSubmatch(title)
	if m == nil {
		return nil
	}

	data := ClaudeTitleData{
		Spinner:  m[1],
		TaskName: strings.TrimSpace(m[2]),
	}
	data.IsProcessing = data.Spinner != "" && strings.Contains(claudeActiveSpinners, data.Spinner)

	return &parser.Output{
		Type:       parser.OutputClaudeTitle,
		Raw:        title,
		Data:       data,
		Confidence: 0.85,
		ParserName: p.Metadata().Name,
	}
}
