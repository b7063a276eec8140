package enrich

import (
	"testing"
	"time"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Severity
	}{
		{"fatal", "FATAL: worker crashed", SeverityCritical},
		{"segfault", "Segmentation fault (core dumped)", SeverityCritical},
		{"oom", "container killed: out of memory", SeverityCritical},
		{"eacces", "EACCES: permission denied, open '/etc/passwd'", SeverityCritical},
		{"npm err", "npm ERR! code ERESOLVE", SeverityError},
		{"enoent", "ENOENT: no such file", SeverityError},
		{"timeout", "request failed: ETIMEDOUT", SeverityError},
		{"warning", "warning: unused variable x", SeverityWarning},
		{"deprecated", "this API is deprecated", SeverityWarning},
		{"success", "Build completed", SeveritySuccess},
		{"checkmark", "✓ 42 tests passed", SeveritySuccess},
		{"ok word", "status OK", SeveritySuccess},
		{"plain", "listing directory contents", SeverityInfo},
		{"empty", "", SeverityInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineSeverity(tt.text); got != tt.want {
				t.Errorf("DetermineSeverity(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

// Severity ordering: when patterns of several levels all match, the highest
// priority level wins.
func TestDetermineSeverityOrdering(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Severity
	}{
		{"critical beats error", "FATAL error: process failed", SeverityCritical},
		{"error beats warning", "error: build failed with warning: unused", SeverityError},
		{"warning beats success", "warning: done with caveats", SeverityWarning},
		{"success beats info", "completed without issue", SeveritySuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetermineSeverity(tt.text); got != tt.want {
				t.Errorf("DetermineSeverity(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

// DetermineSeverity is a pure function: repeated calls agree.
func TestDetermineSeverityPure(t *testing.T) {
	text := "npm ERR! code ERESOLVE"
	first := DetermineSeverity(text)
	for i := 0; i < 10; i++ {
		if got := DetermineSeverity(text); got != first {
			t.Fatalf("call %d: %s != %s", i, got, first)
		}
	}
}

func TestExtractSuggestions(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantKind   SuggestionKind
		wantAction string
	}{
		{"eresolve", "npm ERR! code ERESOLVE could not resolve", SuggestFix, "npm install --legacy-peer-deps"},
		{"git init", "fatal: not a git repository", SuggestFix, "git init"},
		{"merge conflict", "CONFLICT (content): Merge conflict in main.go", SuggestInvestigate, "git status"},
		{"connrefused", "connect ECONNREFUSED 127.0.0.1:5432", SuggestRetry, "retry the command"},
		{"typescript", "src/app.ts(3,1): error TS2304: Cannot find name", SuggestInvestigate, "tsc --noEmit"},
		{"docker down", "Cannot connect to the Docker daemon", SuggestInvestigate, "docker info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sugs := ExtractSuggestions(tt.text)
			if len(sugs) == 0 {
				t.Fatal("expected at least one suggestion")
			}
			found := false
			for _, s := range sugs {
				if s.Kind == tt.wantKind && s.Action == tt.wantAction {
					found = true
				}
			}
			if !found {
				t.Errorf("suggestions %+v missing {%s %s}", sugs, tt.wantKind, tt.wantAction)
			}
		})
	}
}

func TestExtractSuggestionsEmpty(t *testing.T) {
	if sugs := ExtractSuggestions("everything fine"); len(sugs) != 0 {
		t.Errorf("suggestions = %+v, want none", sugs)
	}
}

func TestCreateEnhancedOutput(t *testing.T) {
	out := parser.Output{
		Type:       parser.OutputText,
		Raw:        "npm ERR! code ERESOLVE unable to resolve dependency tree",
		Data:       "npm ERR! code ERESOLVE unable to resolve dependency tree",
		Confidence: 1,
		ParserName: "raw-text",
	}
	exitCode := 1
	before := time.Now().UnixMilli()
	enhanced := CreateEnhancedOutput(out, Options{
		SessionID:  "session-abc",
		Command:    "npm install",
		DurationMs: 1234,
		ExitCode:   &exitCode,
	})
	after := time.Now().UnixMilli()

	if enhanced.Severity != SeverityError {
		t.Errorf("severity = %s, want error", enhanced.Severity)
	}
	foundFix := false
	for _, s := range enhanced.Suggestions {
		if s.Kind == SuggestFix && s.Action == "npm install --legacy-peer-deps" && s.Automated && s.Confidence == 0.8 {
			foundFix = true
		}
	}
	if !foundFix {
		t.Errorf("suggestions = %+v, want automated legacy-peer-deps fix at 0.8", enhanced.Suggestions)
	}
	if enhanced.Metadata.SessionID != "session-abc" || enhanced.Metadata.Command != "npm install" {
		t.Errorf("metadata = %+v", enhanced.Metadata)
	}
	if enhanced.Metadata.DurationMs != 1234 {
		t.Errorf("duration = %d", enhanced.Metadata.DurationMs)
	}
	if enhanced.Metadata.Timestamp < before || enhanced.Metadata.Timestamp > after {
		t.Errorf("timestamp %d outside [%d, %d]", enhanced.Metadata.Timestamp, before, after)
	}
	if enhanced.Metadata.ExitCode == nil || *enhanced.Metadata.ExitCode != 1 {
		t.Error("exit code not carried")
	}
}

func TestCreateEnhancedOutputOmitsEmptySuggestions(t *testing.T) {
	enhanced := CreateEnhancedOutput(parser.Output{Raw: "fine"}, Options{})
	if enhanced.Suggestions != nil {
		t.Errorf("suggestions = %+v, want nil", enhanced.Suggestions)
	}
}
