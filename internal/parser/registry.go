package parser

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the three parser families for one session. Register calls
// keep each family sorted by descending priority so dispatch can walk the
// slice front to back.
//
// The registry is append-only while a session runs; ReplaceAll and Clear are
// reserved for preset loading between commands.
type Registry struct {
	mu      sync.RWMutex
	state   []StateParser
	output  []OutputParser
	confirm []ConfirmParser
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// RegisterState adds a state parser.
func (r *Registry) RegisterState(p StateParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = append(r.state, p)
	sort.SliceStable(r.state, func(i, j int) bool {
		return r.state[i].Metadata().Priority > r.state[j].Metadata().Priority
	})
}

// RegisterOutput adds an output parser.
func (r *Registry) RegisterOutput(p OutputParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.output = append(r.output, p)
	sort.SliceStable(r.output, func(i, j int) bool {
		return r.output[i].Metadata().Priority > r.output[j].Metadata().Priority
	})
}

// RegisterConfirm adds a confirm parser.
func (r *Registry) RegisterConfirm(p ConfirmParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirm = append(r.confirm, p)
	sort.SliceStable(r.confirm, func(i, j int) bool {
		return r.confirm[i].Metadata().Priority > r.confirm[j].Metadata().Priority
	})
}

// Unregister removes the parser with the given name from every family.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.state {
		if p.Metadata().Name == name {
			r.state = append(r.state[:i], r.state[i+1:]...)
			break
		}
	}
	for i, p := range r.output {
		if p.Metadata().Name == name {
			r.output = append(r.output[:i], r.output[i+1:]...)
			break
		}
	}
	for i, p := range r.confirm {
		if p.Metadata().Name == name {
			r.confirm = append(r.confirm[:i], r.confirm[i+1:]...)
			break
		}
	}
}

// Clear removes every parser.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = nil
	r.output = nil
	r.confirm = nil
}

// ReplaceAll atomically swaps the registry contents for a preset's parser
// bundle. Callers must not have a tick in flight.
func (r *Registry) ReplaceAll(state []StateParser, output []OutputParser, confirm []ConfirmParser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = append([]StateParser(nil), state...)
	r.output = append([]OutputParser(nil), output...)
	r.confirm = append([]ConfirmParser(nil), confirm...)
	sort.SliceStable(r.state, func(i, j int) bool {
		return r.state[i].Metadata().Priority > r.state[j].Metadata().Priority
	})
	sort.SliceStable(r.output, func(i, j int) bool {
		return r.output[i].Metadata().Priority > r.output[j].Metadata().Priority
	})
	sort.SliceStable(r.confirm, func(i, j int) bool {
		return r.confirm[i].Metadata().Priority > r.confirm[j].Metadata().Priority
	})
}

// StateParsers returns the state parsers in dispatch order.
func (r *Registry) StateParsers() []StateParser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]StateParser(nil), r.state...)
}

// OutputParsers returns the output parsers in dispatch order.
func (r *Registry) OutputParsers() []OutputParser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]OutputParser(nil), r.output...)
}

// ConfirmParsers returns the confirm parsers in dispatch order.
func (r *Registry) ConfirmParsers() []ConfirmParser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ConfirmParser(nil), r.confirm...)
}

// DetectState asks every state parser and keeps the highest-confidence
// verdict. Ties resolve to the earlier (higher-priority) parser. Returns nil
// when no parser has an opinion.
func (r *Registry) DetectState(ctx *Context) *StateDetection {
	var best *StateDetection
	for _, p := range r.StateParsers() {
		det := r.safeDetectState(p, ctx)
		if det == nil || !det.State.Valid() {
			continue
		}
		if best == nil || det.Confidence > best.Confidence {
			best = det
		}
	}
	return best
}

// ClassifyOutput asks every output parser whose gate passes and keeps the
// highest-confidence record. Returns nil when no parser claims the output.
func (r *Registry) ClassifyOutput(ctx *Context) *Output {
	var best *Output
	for _, p := range r.OutputParsers() {
		if !r.safeCanParse(p, ctx) {
			continue
		}
		out := r.safeParse(p, ctx)
		if out == nil {
			continue
		}
		if best == nil || out.Confidence > best.Confidence {
			best = out
		}
	}
	return best
}

// DetectConfirm walks the confirm parsers in priority order; the first
// positive detection wins, and the detecting parser is returned so the
// caller can format the eventual response with it.
func (r *Registry) DetectConfirm(ctx *Context) (*ConfirmInfo, ConfirmParser) {
	for _, p := range r.ConfirmParsers() {
		info := r.safeDetectConfirm(p, ctx)
		if info != nil {
			return info, p
		}
	}
	return nil, nil
}

// safeDetectState isolates parser panics: a parser that blows up is a
// non-match, never a pipeline failure.
func (r *Registry) safeDetectState(p StateParser, ctx *Context) (det *StateDetection) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("state parser panicked", "parser", p.Metadata().Name, "panic", rec)
			det = nil
		}
	}()
	return p.DetectState(ctx)
}

func (r *Registry) safeCanParse(p OutputParser, ctx *Context) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("output parser gate panicked", "parser", p.Metadata().Name, "panic", rec)
			ok = false
		}
	}()
	return p.CanParse(ctx)
}

func (r *Registry) safeParse(p OutputParser, ctx *Context) (out *Output) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("output parser panicked", "parser", p.Metadata().Name, "panic", rec)
			out = nil
		}
	}()
	return p.Parse(ctx)
}

func (r *Registry) safeDetectConfirm(p ConfirmParser, ctx *Context) (info *ConfirmInfo) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("confirm parser panicked", "parser", p.Metadata().Name, "panic", rec)
			info = nil
		}
	}()
	return p.DetectConfirm(ctx)
}
