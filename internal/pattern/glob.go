// Package pattern provides glob-style matching and shared regex helpers
// used by the session permission checker.
package pattern

import (
	"regexp"
	"strings"
	"sync"
)

// MatchGlob reports whether s matches a glob pattern. Supported forms:
// exact text, "*" (anything), "foo*" (prefix), "*foo" (suffix),
// "foo*bar" (prefix+suffix), and arbitrary patterns with multiple '*'
// wildcards, which are converted to an anchored regular expression.
func MatchGlob(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}

	switch strings.Count(pattern, "*") {
	case 1:
		switch {
		case strings.HasSuffix(pattern, "*"):
			return strings.HasPrefix(s, pattern[:len(pattern)-1])
		case strings.HasPrefix(pattern, "*"):
			return strings.HasSuffix(s, pattern[1:])
		default:
			i := strings.IndexByte(pattern, '*')
			return strings.HasPrefix(s, pattern[:i]) &&
				strings.HasSuffix(s, pattern[i+1:]) &&
				len(s) >= len(pattern)-1
		}
	}

	re, err := globRegexp(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

var (
	globMu    sync.RWMutex
	globCache = make(map[string]*regexp.Regexp)
)

// globRegexp converts a glob pattern to an anchored regexp, caching the
// compiled result per pattern.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	globMu.RLock()
	re, ok := globCache[pattern]
	globMu.RUnlock()
	if ok {
		return re, nil
	}

	var b strings.Builder
	b.WriteByte('^')
	for _, part := range strings.Split(pattern, "*") {
		if part == "" {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(part))
		b.WriteString(".*")
	}
	expr := strings.TrimSuffix(b.String(), ".*")
	if strings.HasSuffix(pattern, "*") {
		expr += ".*"
	}
	expr += "$"

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}

	globMu.Lock()
	globCache[pattern] = re
	globMu.Unlock()
	return re, nil
}

// FirstMatch returns the first pattern in patterns that matches any line,
// along with the index of the matching line. Returns (nil, -1) when nothing
// matches.
func FirstMatch(patterns []*regexp.Regexp, lines []string) (*regexp.Regexp, int) {
	for _, re := range patterns {
		for i, line := range lines {
			if re.MatchString(line) {
				return re, i
			}
		}
	}
	return nil, -1
}

// AnyLine reports whether re matches at least one of lines.
func AnyLine(re *regexp.Regexp, lines []string) bool {
	for _, line := range lines {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
