package manager

import (
	"fmt"

	"github.com/containerd/errdefs"
	"github.com/rickyjim626/semantic-terminal/internal/parser"
	"github.com/rickyjim626/semantic-terminal/internal/parser/confirmparse"
	"github.com/rickyjim626/semantic-terminal/internal/parser/outparse"
	"github.com/rickyjim626/semantic-terminal/internal/parser/stateparse"
)

// Preset is a named parser bundle plus default session options for a
// particular CLI.
type Preset struct {
	Name            string
	Command         string
	Args            []string
	LoginShell      bool
	ConfirmStrategy confirmparse.ResponseStrategy
}

// ResolvePreset maps a preset name to its definition. Empty selects shell.
func ResolvePreset(name string) (Preset, error) {
	switch name {
	case "", "shell":
		return Preset{Name: "shell", LoginShell: true}, nil
	case "claude-code":
		return Preset{
			Name:            "claude-code",
			Command:         "claude",
			ConfirmStrategy: confirmparse.StrategyArrows,
		}, nil
	case "docker":
		return Preset{Name: "docker", LoginShell: true}, nil
	}
	return Preset{}, fmt.Errorf("unknown preset %q: %w", name, errdefs.ErrNotFound)
}

// BuildParsers returns the preset's parser bundle: state detectors, output
// classifiers, and confirm detectors in registration order.
func (p Preset) BuildParsers() ([]parser.StateParser, []parser.OutputParser, []parser.ConfirmParser) {
	strategy := p.ConfirmStrategy
	if strategy == "" {
		strategy = confirmparse.StrategyArrows
	}

	base := []parser.StateParser{stateparse.NewShellDetector()}
	outputs := []parser.OutputParser{
		outparse.NewJSONParser(),
		outparse.NewTableParser(),
		outparse.NewDiffParser(),
	}
	confirms := []parser.ConfirmParser{confirmparse.NewYesNoDetector()}

	switch p.Name {
	case "claude-code":
		base = append(base, stateparse.NewClaudeCodeDetector())
		outputs = append(outputs,
			outparse.NewClaudeStatusParser(),
			outparse.NewClaudeToolParser(),
			outparse.NewClaudeContentParser(),
			outparse.NewClaudeTitleParser(),
		)
		confirms = append(confirms, confirmparse.NewClaudeCodeDetector(strategy))
	case "docker":
		base = append(base, stateparse.NewDockerDetector())
	}

	return base, outputs, confirms
}
