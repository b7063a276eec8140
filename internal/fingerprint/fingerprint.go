// Package fingerprint provides a registry of named textual patterns shared
// by the higher-level parsers. A fingerprint pairs a pattern with a category
// and a confidence so parsers can ask cheap "what's on the screen?" questions
// without duplicating regex tables.
package fingerprint

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// MatchKind describes how a fingerprint's pattern is evaluated.
type MatchKind string

const (
	// MatchRegex evaluates the pattern as a regular expression per line.
	MatchRegex MatchKind = "regex"
	// MatchLiteral tests each line for an exact substring, falling back to
	// the full screen text.
	MatchLiteral MatchKind = "literal"
	// MatchEnum tests each alternate (|-separated) for line equality.
	MatchEnum MatchKind = "enum"
	// MatchMarker tests each alternate for substring presence.
	MatchMarker MatchKind = "marker"
)

// Category groups fingerprints by what they indicate on screen.
type Category string

const (
	CategorySpinner   Category = "spinner"
	CategoryStatusbar Category = "statusbar"
	CategoryPrompt    Category = "prompt"
	CategorySeparator Category = "separator"
	CategoryAssistant Category = "assistant"
	CategoryTool      Category = "tool"
	CategoryError     Category = "error"
	CategoryConfirm   Category = "confirm"
)

// Fingerprint is a named textual pattern with category and confidence.
type Fingerprint struct {
	ID         string
	Kind       MatchKind
	Category   Category
	Pattern    string
	Confidence float64
	Priority   int
	Source     string

	re         *regexp.Regexp
	alternates []string
}

// Registry stores fingerprints keyed by id and grouped by category.
// Category lists are kept sorted by descending priority.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]*Fingerprint
	byCategory map[Category][]*Fingerprint
}

// NewRegistry creates an empty fingerprint registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:       make(map[string]*Fingerprint),
		byCategory: make(map[Category][]*Fingerprint),
	}
}

// NewDefaultRegistry creates a registry pre-populated with the built-in
// fingerprints.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, fp := range builtins() {
		// Built-ins are validated by tests; ignore the impossible error.
		_ = r.Register(fp)
	}
	return r
}

// Register adds a fingerprint. Regex patterns are compiled eagerly so a
// malformed pattern is rejected up front rather than failing every match.
func (r *Registry) Register(fp Fingerprint) error {
	if fp.ID == "" {
		return fmt.Errorf("fingerprint id cannot be empty")
	}

	switch fp.Kind {
	case MatchRegex:
		re, err := regexp.Compile(fp.Pattern)
		if err != nil {
			return fmt.Errorf("compile fingerprint %s: %w", fp.ID, err)
		}
		fp.re = re
	case MatchEnum, MatchMarker:
		fp.alternates = splitAlternates(fp.Pattern)
	case MatchLiteral:
		// Plain substring; nothing to precompute.
	default:
		return fmt.Errorf("fingerprint %s: unknown match kind %q", fp.ID, fp.Kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, exists := r.byID[fp.ID]; exists {
		r.removeFromCategory(old)
	}
	stored := fp
	r.byID[fp.ID] = &stored
	list := append(r.byCategory[fp.Category], &stored)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority > list[j].Priority
	})
	r.byCategory[fp.Category] = list
	return nil
}

// Unregister removes a fingerprint by id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fp, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	r.removeFromCategory(fp)
}

func (r *Registry) removeFromCategory(fp *Fingerprint) {
	list := r.byCategory[fp.Category]
	for i, f := range list {
		if f.ID == fp.ID {
			r.byCategory[fp.Category] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Get returns a fingerprint by id.
func (r *Registry) Get(id string) (Fingerprint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fp, ok := r.byID[id]
	if !ok {
		return Fingerprint{}, false
	}
	return *fp, true
}

// Category returns the fingerprints of a category in descending priority order.
func (r *Registry) Category(c Category) []Fingerprint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Fingerprint, len(r.byCategory[c]))
	for i, fp := range r.byCategory[c] {
		out[i] = *fp
	}
	return out
}

// Len returns the number of registered fingerprints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func splitAlternates(pattern string) []string {
	var out []string
	start := 0
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '|' {
			if i > start {
				out = append(out, pattern[start:i])
			}
			start = i + 1
		}
	}
	if start < len(pattern) {
		out = append(out, pattern[start:])
	}
	return out
}
