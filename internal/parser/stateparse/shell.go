// Package stateparse provides the built-in state detectors: a generic shell
// detector, a Docker CLI detector, and a Claude Code detector.
package stateparse

import (
	"regexp"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// Prompt tails common across interactive shells.
var shellPromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`❯\s*$`),
	regexp.MustCompile(`\$\s*$`),
	regexp.MustCompile(`#\s*$`),
	regexp.MustCompile(`>\s*$`),
	regexp.MustCompile(`%\s*$`),
	regexp.MustCompile(`\w+@[\w.-]+:[^\n$#]*[$#]\s*$`), // user@host:~$
	regexp.MustCompile(`^\([\w.-]+\)\s.*[$#%>]\s*$`),   // virtualenv prefix
}

var shellSpinnerPattern = regexp.MustCompile(`(?:^|\s)(?:\.\.\.|[⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏])\s*$`)

var shellErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`command not found`),
	regexp.MustCompile(`No such file or directory`),
	regexp.MustCompile(`Permission denied`),
	// Anchored to line start with a ": " and a non-prompt tail so prompts
	// like "root@host: ~#" don't classify as errors.
	regexp.MustCompile(`^(?:bash|zsh|sh): \S.*[^$#%>\s]\s*$`),
}

// ShellDetector recognizes generic shell prompts, spinners, and error lines.
type ShellDetector struct{}

// NewShellDetector creates the generic shell state detector.
func NewShellDetector() *ShellDetector { return &ShellDetector{} }

// Metadata implements parser.StateParser.
func (d *ShellDetector) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "generic-shell-state",
		Description: "Detects idle/tool_running/error from common shell prompt and error patterns",
		Priority:    10,
	}
}

// DetectState implements parser.StateParser.
func (d *ShellDetector) DetectState(ctx *parser.Context) *parser.StateDetection {
	lines := ctx.LastLines
	if len(lines) == 0 {
		return nil
	}

	for _, line := range lines {
		for _, re := range shellErrorPatterns {
			if re.MatchString(line) {
				return &parser.StateDetection{State: parser.StateError, Confidence: 0.8}
			}
		}
	}

	last := lastNonEmpty(lines)
	if last == "" {
		return nil
	}

	if shellSpinnerPattern.MatchString(last) {
		return &parser.StateDetection{State: parser.StateToolRunning, Confidence: 0.6}
	}

	for _, re := range shellPromptPatterns {
		if re.MatchString(last) {
			return &parser.StateDetection{State: parser.StateIdle, Confidence: 0.7}
		}
	}

	return nil
}

func lastNonEmpty(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}
