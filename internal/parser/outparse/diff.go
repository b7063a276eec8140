package outparse

import (
	"regexp"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// DiffChangeKind labels one line of a diff hunk.
type DiffChangeKind string

const (
	DiffAdd     DiffChangeKind = "add"
	DiffRemove  DiffChangeKind = "remove"
	DiffContext DiffChangeKind = "context"
)

// DiffChange is a single changed or context line within a hunk.
type DiffChange struct {
	Kind    DiffChangeKind `json:"kind"`
	Content string         `json:"content"`
}

// DiffHunk is one @@-delimited block of a unified diff.
type DiffHunk struct {
	Header  string       `json:"header"`
	Changes []DiffChange `json:"changes"`
}

// DiffData is the payload of a diff output record.
type DiffData struct {
	File  string     `json:"file,omitempty"`
	Hunks []DiffHunk `json:"hunks"`
}

var diffGitFilePattern = regexp.MustCompile(`^diff --git a/(\S+) b/\S+`)

// DiffParser classifies unified diff output.
type DiffParser struct{}

// NewDiffParser creates the diff output classifier.
func NewDiffParser() *DiffParser { return &DiffParser{} }

// Metadata implements parser.OutputParser.
func (p *DiffParser) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "diff-output",
		Description: "Parses unified diffs into files, hunks, and changes",
		Priority:    55,
	}
}

// CanParse implements parser.OutputParser.
func (p *DiffParser) CanParse(ctx *parser.Context) bool {
	text := ctx.ScreenText
	return strings.Contains(text, "@@") ||
		strings.Contains(text, "diff --git") ||
		strings.Contains(text, "--- a/") ||
		strings.Contains(text, "+++ b/")
}

// Parse implements parser.OutputParser.
func (p *DiffParser) Parse(ctx *parser.Context) *parser.Output {
	var data DiffData
	var current *DiffHunk

	for _, line := range strings.Split(ctx.ScreenText, "\n") {
		if m := diffGitFilePattern.FindStringSubmatch(line); m != nil {
			data.File = m[1]
			continue
		}
		if strings.HasPrefix(line, "@@") {
			data.Hunks = append(data.Hunks, DiffHunk{Header: line})
			current = &data.Hunks[len(data.Hunks)-1]
			continue
		}
		if current == nil {
			continue
		}
		// File headers are not changes.
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			current.Changes = append(current.Changes, DiffChange{Kind: DiffAdd, Content: line[1:]})
		case strings.HasPrefix(line, "-"):
			current.Changes = append(current.Changes, DiffChange{Kind: DiffRemove, Content: line[1:]})
		case strings.HasPrefix(line, " "):
			current.Changes = append(current.Changes, DiffChange{Kind: DiffContext, Content: line[1:]})
		}
	}

	if len(data.Hunks) == 0 {
		return nil
	}

	return &parser.Output{
		Type:       parser.OutputDiff,
		Raw:        ctx.ScreenText,
		Data:       data,
		Confidence: 0.9,
		ParserName: p.Metadata().Name,
	}
}
