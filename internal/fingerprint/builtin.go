package fingerprint

// builtins returns the fingerprints every default registry starts with.
// Sources: "shell" for plain shells, "claude-code" for the Claude Code CLI,
// "docker" for the Docker CLI.
func builtins() []Fingerprint {
	return []Fingerprint{
		{
			ID:         "braille-spinner",
			Kind:       MatchMarker,
			Category:   CategorySpinner,
			Pattern:    "⠋|⠙|⠹|⠸|⠼|⠴|⠦|⠧|⠇|⠏",
			Confidence: 0.8,
			Priority:   50,
			Source:     "shell",
		},
		{
			ID:         "claude-spinner",
			Kind:       MatchMarker,
			Category:   CategorySpinner,
			Pattern:    "·|✻|✽|✶|✳|✢",
			Confidence: 0.7,
			Priority:   40,
			Source:     "claude-code",
		},
		{
			ID:         "claude-statusbar",
			Kind:       MatchLiteral,
			Category:   CategoryStatusbar,
			Pattern:    "esc to interrupt",
			Confidence: 0.95,
			Priority:   90,
			Source:     "claude-code",
		},
		{
			ID:         "shell-prompt",
			Kind:       MatchRegex,
			Category:   CategoryPrompt,
			Pattern:    `(?:^|\s)[❯$#>%]\s*$`,
			Confidence: 0.7,
			Priority:   30,
			Source:     "shell",
		},
		{
			ID:         "user-host-prompt",
			Kind:       MatchRegex,
			Category:   CategoryPrompt,
			Pattern:    `\w+@[\w.-]+:[^$#]*[$#]\s*$`,
			Confidence: 0.8,
			Priority:   40,
			Source:     "shell",
		},
		{
			ID:         "box-separator",
			Kind:       MatchRegex,
			Category:   CategorySeparator,
			Pattern:    `^[\s]*[─━═]{3,}`,
			Confidence: 0.9,
			Priority:   50,
			Source:     "claude-code",
		},
		{
			ID:         "claude-assistant-marker",
			Kind:       MatchMarker,
			Category:   CategoryAssistant,
			Pattern:    "⏺",
			Confidence: 0.9,
			Priority:   80,
			Source:     "claude-code",
		},
		{
			ID:         "claude-tool-output",
			Kind:       MatchMarker,
			Category:   CategoryTool,
			Pattern:    "⎿|│",
			Confidence: 0.8,
			Priority:   70,
			Source:     "claude-code",
		},
		{
			ID:         "generic-error",
			Kind:       MatchRegex,
			Category:   CategoryError,
			Pattern:    `(?i)\berror\b|✖|command not found|no such file or directory|permission denied`,
			Confidence: 0.8,
			Priority:   60,
			Source:     "shell",
		},
		{
			ID:         "yesno-confirm",
			Kind:       MatchRegex,
			Category:   CategoryConfirm,
			Pattern:    `\[Y/n\]|\[y/N\]|\(yes/no\)|\(y/n\)`,
			Confidence: 0.85,
			Priority:   60,
			Source:     "shell",
		},
		{
			ID:         "claude-options-confirm",
			Kind:       MatchRegex,
			Category:   CategoryConfirm,
			Pattern:    `^\s*❯?\s*1\.\s+(?:Yes|Allow)`,
			Confidence: 0.9,
			Priority:   80,
			Source:     "claude-code",
		},
		{
			ID:         "docker-progress",
			Kind:       MatchRegex,
			Category:   CategoryTool,
			Pattern:    `\d+(?:\.\d+)?[kMG]?B/\d+(?:\.\d+)?[kMG]?B`,
			Confidence: 0.85,
			Priority:   50,
			Source:     "docker",
		},
	}
}
