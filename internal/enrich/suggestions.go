package enrich

import "regexp"

// SuggestionKind classifies what a suggestion proposes.
type SuggestionKind string

const (
	SuggestRetry       SuggestionKind = "retry"
	SuggestFix         SuggestionKind = "fix"
	SuggestInvestigate SuggestionKind = "investigate"
	SuggestSkip        SuggestionKind = "skip"
)

// Suggestion is an actionable hint derived from error output.
type Suggestion struct {
	Kind        SuggestionKind `json:"kind"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Confidence  float64        `json:"confidence"`
	Automated   bool           `json:"automated,omitempty"`
	Requires    []string       `json:"requires,omitempty"`
}

// suggestionRule maps an output pattern to the suggestion it earns.
type suggestionRule struct {
	re         *regexp.Regexp
	suggestion Suggestion
}

var suggestionRules = []suggestionRule{
	{
		re: regexp.MustCompile(`npm ERR! code ERESOLVE`),
		suggestion: Suggestion{
			Kind:        SuggestFix,
			Action:      "npm install --legacy-peer-deps",
			Description: "Peer dependency conflict; retry with legacy resolution",
			Confidence:  0.8,
			Automated:   true,
		},
	},
	{
		re: regexp.MustCompile(`not a git repository`),
		suggestion: Suggestion{
			Kind:        SuggestFix,
			Action:      "git init",
			Description: "Initialize a repository in this directory",
			Confidence:  0.7,
		},
	},
	{
		re: regexp.MustCompile(`CONFLICT.*Merge conflict`),
		suggestion: Suggestion{
			Kind:        SuggestInvestigate,
			Action:      "git status",
			Description: "Inspect conflicting files before resolving",
			Confidence:  0.85,
		},
	},
	{
		re: regexp.MustCompile(`ECONNREFUSED`),
		suggestion: Suggestion{
			Kind:        SuggestRetry,
			Action:      "retry the command",
			Description: "Connection refused; the target service may not be up yet",
			Confidence:  0.6,
		},
	},
	{
		re: regexp.MustCompile(`TS\d+:`),
		suggestion: Suggestion{
			Kind:        SuggestInvestigate,
			Action:      "tsc --noEmit",
			Description: "Type-check the project to see all TypeScript errors",
			Confidence:  0.75,
		},
	},
	{
		re: regexp.MustCompile(`docker.*not found|Cannot connect to the Docker daemon`),
		suggestion: Suggestion{
			Kind:        SuggestInvestigate,
			Action:      "docker info",
			Description: "Verify the Docker daemon is installed and running",
			Confidence:  0.7,
			Requires:    []string{"docker"},
		},
	},
	{
		re: regexp.MustCompile(`EADDRINUSE`),
		suggestion: Suggestion{
			Kind:        SuggestInvestigate,
			Action:      "lsof -i :<port>",
			Description: "Another process holds the port; find and stop it",
			Confidence:  0.7,
		},
	},
	{
		re: regexp.MustCompile(`(?i)command not found`),
		suggestion: Suggestion{
			Kind:        SuggestInvestigate,
			Action:      "which <command>",
			Description: "The command is not on PATH; check the spelling or install it",
			Confidence:  0.6,
		},
	},
}

// ExtractSuggestions returns every suggestion whose pattern matches the
// output, in catalogue order. The result may be empty.
func ExtractSuggestions(text string) []Suggestion {
	var out []Suggestion
	for _, rule := range suggestionRules {
		if rule.re.MatchString(text) {
			out = append(out, rule.suggestion)
		}
	}
	return out
}
