// Package confirmparse provides the built-in confirmation detectors and the
// response-byte formatting the originating CLIs expect.
package confirmparse

import (
	"regexp"
	"strings"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

// yesNoPattern pairs a prompt pattern with the answer the CLI defaults to.
type yesNoPattern struct {
	re         *regexp.Regexp
	defaultYes bool
}

var yesNoPatterns = []yesNoPattern{
	{regexp.MustCompile(`\[Y/n\]`), true},
	{regexp.MustCompile(`\[y/N\]`), false},
	{regexp.MustCompile(`\(yes/no\)`), false},
	{regexp.MustCompile(`Continue\?`), true},
	{regexp.MustCompile(`Are you sure\?`), false},
	{regexp.MustCompile(`Proceed\?`), true},
	{regexp.MustCompile(`Overwrite\?`), false},
	{regexp.MustCompile(`Delete\?`), false},
}

// YesNoDetector recognizes generic yes/no confirmation prompts.
type YesNoDetector struct{}

// NewYesNoDetector creates the generic yes/no confirm detector.
func NewYesNoDetector() *YesNoDetector { return &YesNoDetector{} }

// Metadata implements parser.ConfirmParser.
func (d *YesNoDetector) Metadata() parser.Metadata {
	return parser.Metadata{
		Name:        "generic-yesno-confirm",
		Description: "Detects [Y/n]-style prompts and answers with y/n",
		Priority:    10,
	}
}

// DetectConfirm implements parser.ConfirmParser.
func (d *YesNoDetector) DetectConfirm(ctx *parser.Context) *parser.ConfirmInfo {
	for i := len(ctx.LastLines) - 1; i >= 0; i-- {
		line := ctx.LastLines[i]
		for _, p := range yesNoPatterns {
			if !p.re.MatchString(line) {
				continue
			}
			return &parser.ConfirmInfo{
				Type:      parser.ConfirmYesNo,
				Prompt:    strings.TrimSpace(line),
				RawPrompt: line,
				Options: []parser.ConfirmOption{
					{Key: 1, Label: "yes", IsDefault: p.defaultYes},
					{Key: 2, Label: "no", IsDefault: !p.defaultYes},
				},
			}
		}
	}
	return nil
}

// FormatResponse implements parser.ConfirmParser.
func (d *YesNoDetector) FormatResponse(_ *parser.ConfirmInfo, resp parser.ConfirmResponse) []byte {
	switch resp.Action {
	case parser.ActionConfirm:
		return []byte("y\r")
	case parser.ActionDeny:
		return []byte("n\r")
	case parser.ActionInput:
		return []byte(resp.Value + "\r")
	case parser.ActionSelect:
		if resp.Option == 1 {
			return []byte("y\r")
		}
		return []byte("n\r")
	}
	return []byte("\r")
}
