package fingerprint

import "strings"

// Match is the result of evaluating a single fingerprint against a context.
type Match struct {
	Fingerprint Fingerprint
	Matched     string
	Captures    []string
	LineIndex   int
}

// Extraction summarizes every fingerprint match for one screen observation.
type Extraction struct {
	ByID       map[string]Match
	ByCategory map[Category][]Match

	HasSpinner       bool
	HasPrompt        bool
	HasToolOutput    bool
	HasConfirmDialog bool
	HasError         bool
}

// MatchOne evaluates one fingerprint against the last lines (and, for
// literals, the full screen text). The second return value reports whether
// the fingerprint matched.
func (r *Registry) MatchOne(id string, lines []string, screenText string) (Match, bool) {
	fp, ok := r.Get(id)
	if !ok {
		return Match{}, false
	}
	return matchFingerprint(fp, lines, screenText)
}

// Extract evaluates every registered fingerprint once against the given
// lines and screen text. The walk is deterministic for a fixed context.
func (r *Registry) Extract(lines []string, screenText string) Extraction {
	ex := Extraction{
		ByID:       make(map[string]Match),
		ByCategory: make(map[Category][]Match),
	}

	r.mu.RLock()
	categories := make([]Category, 0, len(r.byCategory))
	for c := range r.byCategory {
		categories = append(categories, c)
	}
	r.mu.RUnlock()

	for _, c := range categories {
		for _, fp := range r.Category(c) {
			m, ok := matchFingerprint(fp, lines, screenText)
			if !ok {
				continue
			}
			ex.ByID[fp.ID] = m
			ex.ByCategory[c] = append(ex.ByCategory[c], m)
		}
	}

	ex.HasSpinner = len(ex.ByCategory[CategorySpinner]) > 0
	ex.HasPrompt = len(ex.ByCategory[CategoryPrompt]) > 0
	ex.HasToolOutput = len(ex.ByCategory[CategoryTool]) > 0
	ex.HasConfirmDialog = len(ex.ByCategory[CategoryConfirm]) > 0
	ex.HasError = len(ex.ByCategory[CategoryError]) > 0
	return ex
}

func matchFingerprint(fp Fingerprint, lines []string, screenText string) (Match, bool) {
	switch fp.Kind {
	case MatchRegex:
		for i, line := range lines {
			if sub := fp.re.FindStringSubmatch(line); sub != nil {
				m := Match{Fingerprint: fp, Matched: sub[0], LineIndex: i}
				if len(sub) > 1 {
					m.Captures = sub[1:]
				}
				return m, true
			}
		}

	case MatchLiteral:
		for i, line := range lines {
			if strings.Contains(line, fp.Pattern) {
				return Match{Fingerprint: fp, Matched: fp.Pattern, LineIndex: i}, true
			}
		}
		if strings.Contains(screenText, fp.Pattern) {
			return Match{Fingerprint: fp, Matched: fp.Pattern, LineIndex: -1}, true
		}

	case MatchEnum:
		for _, alt := range fp.alternates {
			for i, line := range lines {
				if strings.TrimSpace(line) == alt {
					return Match{Fingerprint: fp, Matched: alt, LineIndex: i}, true
				}
			}
		}

	case MatchMarker:
		for _, alt := range fp.alternates {
			for i, line := range lines {
				if strings.Contains(line, alt) {
					return Match{Fingerprint: fp, Matched: alt, LineIndex: i}, true
				}
			}
		}
	}
	return Match{}, false
}
