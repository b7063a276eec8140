package enrich

import (
	"time"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// Metadata records the execution context of an enhanced output.
type Metadata struct {
	Timestamp  int64  `json:"timestamp"`
	SessionID  string `json:"session_id,omitempty"`
	Command    string `json:"command,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	ExitCode   *int   `json:"exit_code,omitempty"`
}

// EnhancedOutput extends a semantic output with severity, suggestions, and
// execution metadata.
type EnhancedOutput struct {
	parser.Output
	Severity    Severity     `json:"severity"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Metadata    Metadata     `json:"metadata"`
}

// Options carries the optional execution context for CreateEnhancedOutput.
type Options struct {
	SessionID  string
	Command    string
	DurationMs int64
	ExitCode   *int
}

// CreateEnhancedOutput wraps a semantic output with severity, suggestions
// (omitted when none apply), and metadata stamped with the current time.
func CreateEnhancedOutput(out parser.Output, opts Options) EnhancedOutput {
	return EnhancedOutput{
		Output:      out,
		Severity:    DetermineSeverity(out.Raw),
		Suggestions: ExtractSuggestions(out.Raw),
		Metadata: Metadata{
			Timestamp:  time.Now().UnixMilli(),
			SessionID:  opts.SessionID,
			Command:    opts.Command,
			DurationMs: opts.DurationMs,
			ExitCode:   opts.ExitCode,
		},
	}
}
