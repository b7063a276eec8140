// Package enrich maps raw command output to a severity level and actionable
// suggestions, and wraps semantic outputs with execution metadata.
package enrich

import "regexp"

// Severity classifies how concerning a piece of output is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeveritySuccess  Severity = "success"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityRule pairs a pattern with the severity it indicates. Rules are
// evaluated in order; the first hit wins, so critical patterns come first.
type severityRule struct {
	re       *regexp.Regexp
	severity Severity
}

var severityRules = []severityRule{
	{regexp.MustCompile(`FATAL|PANIC|SEGFAULT|SIGSEGV|core dumped`), SeverityCritical},
	{regexp.MustCompile(`(?i)out of memory|OOM|stack overflow`), SeverityCritical},
	{regexp.MustCompile(`(?i)permission denied|EACCES`), SeverityCritical},
	{regexp.MustCompile(`(?i)error:|ERR!|failed|exception|throw|cannot find|ENOENT|syntax error|timeout|ETIMEDOUT|ECONNREFUSED`), SeverityError},
	{regexp.MustCompile(`(?i)warning:|WARN|deprecated|caution|notice`), SeverityWarning},
	{regexp.MustCompile(`(?i)success|completed|done|passed|✓|✔|\bOK\b`), SeveritySuccess},
}

// DetermineSeverity scans the rule list in priority order and returns the
// first matching severity, defaulting to info. Pure function of its input.
func DetermineSeverity(text string) Severity {
	for _, rule := range severityRules {
		if rule.re.MatchString(text) {
			return rule.severity
		}
	}
	return SeverityInfo
}
