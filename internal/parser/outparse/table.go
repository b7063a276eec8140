package outparse

import (
	"regexp"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// TableData is the payload of a table output record.
type TableData struct {
	Headers []string            `json:"headers"`
	Rows    []map[string]string `json:"rows"`
}

var tableSeparatorLine = regexp.MustCompile(`^[-=+|\s]+$`)

// headerWord accepts ALL-CAPS tokens (CONTAINER ID, NAMES) and Title-Case
// tokens (Name, Image).
var headerWord = regexp.MustCompile(`^(?:[A-Z][A-Z0-9 _()-]*|[A-Z][a-z0-9_-]*)$`)

// TableParser classifies whitespace-aligned tabular output such as
// `docker ps` or `kubectl get` listings.
type TableParser struct{}

// NewTableParser creates the table output classifier.
func NewTableParser() *TableParser { return &TableParser{} }

// Metadata implements parser.OutputParser.
func (p *TableParser) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "table-output",
		Description: "Parses column-aligned tables with a header row",
		Priority:    50,
	}
}

// CanParse implements parser.OutputParser: the first non-empty line must
// look like a header row with at least two columns.
func (p *TableParser) CanParse(ctx *parser.Context) bool {
	header, rest := firstNonEmptyLine(ctx.ScreenText)
	if header == "" || len(rest) == 0 {
		return false
	}
	cols := splitColumns(header)
	if len(cols) < 2 {
		return false
	}
	for _, c := range cols {
		if !headerWord.MatchString(strings.TrimSpace(c)) {
			return false
		}
	}
	return true
}

// Parse implements parser.OutputParser.
func (p *TableParser) Parse(ctx *parser.Context) *parser.Output {
	header, rest := firstNonEmptyLine(ctx.ScreenText)
	if header == "" {
		return nil
	}

	starts := columnStarts(header)
	if len(starts) < 2 {
		return nil
	}
	headers := sliceColumns(header, starts)

	var rows []map[string]string
	for _, line := range rest {
		if strings.TrimSpace(line) == "" || tableSeparatorLine.MatchString(line) {
			continue
		}
		cells := sliceColumns(line, starts)
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	return &parser.Output{
		Type:       parser.OutputTable,
		Raw:        ctx.ScreenText,
		Data:       TableData{Headers: headers, Rows: rows},
		Confidence: 0.85,
		ParserName: p.Metadata().Name,
	}
}

func firstNonEmptyLine(text string) (string, []string) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			return line, lines[i+1:]
		}
	}
	return "", nil
}

// columnStarts computes column start offsets from the runs of two or more
// spaces in the header row.
func columnStarts(header string) []int {
	starts := []int{0}
	spaces := 0
	for i, r := range header {
		if r == ' ' {
			spaces++
			continue
		}
		if spaces >= 2 {
			starts = append(starts, i)
		}
		spaces = 0
	}
	return starts
}

// splitColumns splits a line on runs of two or more spaces.
func splitColumns(line string) []string {
	var cols []string
	for _, part := range regexp.MustCompile(`\s{2,}`).Split(strings.TrimSpace(line), -1) {
		if part != "" {
			cols = append(cols, part)
		}
	}
	return cols
}

// sliceColumns cuts a line at the header's column start offsets. Offsets
// are byte positions; header rows are expected to be ASCII-aligned.
func sliceColumns(line string, starts []int) []string {
	out := make([]string, 0, len(starts))
	for i, start := range starts {
		if start >= len(line) {
			out = append(out, "")
			continue
		}
		end := len(line)
		if i+1 < len(starts) && starts[i+1] < end {
			end = starts[i+1]
		}
		out = append(out, strings.TrimSpace(line[start:end]))
	}
	return out
}
