package outparse

import (
	"regexp"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// ClaudeStatusData is the payload of a claude-status output record.
type ClaudeStatusData struct {
	Spinner       string `json:"spinner"`
	StatusText    string `json:"status_text"`
	Phase         string `json:"phase"`
	Interruptible bool   `json:"interruptible"`
}

var claudeStatusPattern = regexp.MustCompile(`^([·✻✽✶✳✢])\s+(\S+…?)\s*\((?:esc|ESC)\s+to\s+interrupt(?:\s*·\s*(\w+))?\)`)

// ClaudeStatusParser classifies the Claude Code spinner/status line.
type ClaudeStatusParser struct{}

// NewClaudeStatusParser creates the claude-status classifier.
func NewClaudeStatusParser() *ClaudeStatusParser { return &ClaudeStatusParser{} }

// Metadata implements parser.OutputParser.
func (p *ClaudeStatusParser) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "claude-status-output",
		Description: "Parses the Claude Code spinner status line",
		Priority:    95,
	}
}

// CanParse implements parser.OutputParser.
func (p *ClaudeStatusParser) CanParse(ctx *parser.Context) bool {
	return findStatusLine(ctx.LastLines) != nil
}

// Parse implements parser.OutputParser.
func (p *ClaudeStatusParser) Parse(ctx *parser.Context) *parser.Output {
	m := findStatusLine(ctx.LastLines)
	if m == nil {
		return nil
	}
	phase := m[3]
	if phase == "" {
		phase = "thinking"
	}
	return &parser.Output{
		Type: parser.OutputClaudeStatus,
		Raw:  m[0],
		Data: ClaudeStatusData{
			Spinner:       m[1],
			StatusText:    m[2],
			Phase:         phase,
			Interruptible: true,
		},
		Confidence: 0.95,
		ParserName: p.Metadata().Name,
	}
}

// findStatusLine returns the submatches of the most recent status line.
func findStatusLine(lines []string) []string {
	for i := len(lines) - 1; i >= 0; i-- {
		if m := claudeStatusPattern.FindStringSubmatch(lines[i]); m != nil {
			return m
		}
	}
	return nil
}
