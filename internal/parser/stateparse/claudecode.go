package stateparse

import (
	"regexp"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/fingerprint"
	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

var (
	claudeTrustPattern  = regexp.MustCompile(`Do you trust the files in this (?:folder|workspace)\?`)
	claudePromptPattern = regexp.MustCompile(`^\s*[❯>]\s*$|^\s*[❯>]\s+\S*$`)
	claudeErrorPattern  = regexp.MustCompile(`^\s*(?:Error:|✖)`)
)

const claudeEscCancel = "Esc to cancel"

// ClaudeCodeDetector recognizes the Claude Code CLI: trust dialogs on
// startup, the busy status bar, permission dialogs, the input prompt, and
// error lines. Screen markers are resolved through the shared fingerprint
// registry rather than ad-hoc pattern tables.
type ClaudeCodeDetector struct {
	prints *fingerprint.Registry
}

// NewClaudeCodeDetector creates the Claude Code state detector backed by
// the built-in fingerprints.
func NewClaudeCodeDetector() *ClaudeCodeDetector {
	return &ClaudeCodeDetector{prints: fingerprint.NewDefaultRegistry()}
}

// Metadata implements parser.StateParser.
func (d *ClaudeCodeDetector) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "claude-code-state",
		Description: "Detects Claude Code trust dialogs, busy/thinking status, confirmations, prompt, and errors",
		Priority:    100,
	}
}

// DetectState implements parser.StateParser.
func (d *ClaudeCodeDetector) DetectState(ctx *parser.Context) *parser.StateDetection {
	lines := ctx.LastLines
	if len(lines) == 0 {
		return nil
	}
	joined := strings.Join(lines, "\n")
	ex := d.prints.Extract(lines, ctx.ScreenText)

	// Trust dialog shows up during startup, before the first prompt.
	if (ctx.CurrentState == parser.StateStarting || ctx.CurrentState == "") &&
		claudeTrustPattern.MatchString(joined) {
		return &parser.StateDetection{
			State:      parser.StateConfirming,
			Confidence: 0.95,
			Meta:       map[string]any{"needs_trust_confirm": true},
		}
	}

	// The "esc to interrupt" status bar means the agent is busy. Tool-box
	// glyphs alongside it mean a tool is executing; otherwise it is
	// thinking.
	if _, busy := ex.ByID["claude-statusbar"]; busy {
		_, hasAssistant := ex.ByID["claude-assistant-marker"]
		if hasAssistant && ex.HasToolOutput {
			return &parser.StateDetection{State: parser.StateToolRunning, Confidence: 0.9}
		}
		return &parser.StateDetection{State: parser.StateThinking, Confidence: 0.9}
	}

	// Permission dialog: a numbered options block with an escape hint, or a
	// bare yes/no line.
	if _, ok := ex.ByID["claude-options-confirm"]; ok && strings.Contains(joined, claudeEscCancel) {
		return &parser.StateDetection{State: parser.StateConfirming, Confidence: 0.9}
	}
	if _, ok := ex.ByID["yesno-confirm"]; ok {
		return &parser.StateDetection{State: parser.StateConfirming, Confidence: 0.9}
	}

	for _, line := range lines {
		if claudeErrorPattern.MatchString(line) {
			return &parser.StateDetection{State: parser.StateError, Confidence: 0.85}
		}
	}

	if last := lastNonEmpty(lines); last != "" && claudePromptPattern.MatchString(last) {
		return &parser.StateDetection{State: parser.StateIdle, Confidence: 0.85}
	}

	return nil
}
