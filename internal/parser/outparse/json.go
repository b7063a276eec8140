// Package outparse provides the built-in output classifiers. Each parser
// follows the same rule: return nil unless the output is confidently its
// shape. Payload structs live next to the parser that produces them.
package outparse

import (
	"encoding/json"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// JSONParser classifies command output that is a JSON document, a stream of
// newline-delimited JSON documents, or text with an embedded JSON value.
type JSONParser struct{}

// NewJSONParser creates the JSON output classifier.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// Metadata implements parser.OutputParser.
func (p *JSONParser) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "json-output",
		Description: "Parses JSON, NDJSON, and embedded JSON values",
		Priority:    60,
	}
}

// CanParse implements parser.OutputParser with a cheap shape gate.
func (p *JSONParser) CanParse(ctx *parser.Context) bool {
	text := strings.TrimSpace(ctx.ScreenText)
	if text == "" {
		return false
	}
	if (strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}")) ||
		(strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]")) {
		return true
	}
	if strings.Contains(text, "{") && strings.Contains(text, "}") {
		return true
	}
	return allLinesLookJSON(text)
}

// Parse implements parser.OutputParser.
func (p *JSONParser) Parse(ctx *parser.Context) *parser.Output {
	raw := ctx.ScreenText
	text := strings.TrimSpace(raw)
	name := p.Metadata().Name

	var v any
	if err := json.Unmarshal([]byte(text), &v); err == nil {
		return &parser.Output{
			Type: parser.OutputJSON, Raw: raw, Data: v,
			Confidence: 0.95, ParserName: name,
		}
	}

	if docs := parseNDJSON(text); docs != nil {
		return &parser.Output{
			Type: parser.OutputJSON, Raw: raw, Data: docs,
			Confidence: 0.9, ParserName: name,
		}
	}

	if sub := longestBalanced(text); sub != "" {
		if err := json.Unmarshal([]byte(sub), &v); err == nil {
			return &parser.Output{
				Type: parser.OutputJSON, Raw: raw, Data: v,
				Confidence: 0.7, ParserName: name,
			}
		}
	}

	return nil
}

func allLinesLookJSON(text string) bool {
	lines := strings.Split(text, "\n")
	seen := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seen++
		if !strings.HasPrefix(line, "{") && !strings.HasPrefix(line, "[") {
			return false
		}
	}
	return seen > 0
}

// parseNDJSON returns the parsed documents when every non-empty line is a
// standalone JSON value and there is more than one of them.
func parseNDJSON(text string) []any {
	var docs []any
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			return nil
		}
		docs = append(docs, v)
	}
	if len(docs) < 2 {
		return nil
	}
	return docs
}

// longestBalanced extracts the longest balanced {...} or [...] substring,
// respecting JSON string literals.
func longestBalanced(text string) string {
	best := ""
	for i := 0; i < len(text); i++ {
		open := text[i]
		if open != '{' && open != '[' {
			continue
		}
		closeCh := byte('}')
		if open == '[' {
			closeCh = ']'
		}
		depth := 0
		inString := false
		escaped := false
		for j := i; j < len(text); j++ {
			c := text[j]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case open:
				depth++
			case closeCh:
				depth--
				if depth == 0 {
					if j-i+1 > len(best) {
						best = text[i : j+1]
					}
					j = len(text) // done with this start
				}
			}
		}
	}
	return best
}
