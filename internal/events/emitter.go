// Package events provides the typed publish-subscribe primitive used by
// session drivers and the session manager.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Type names an event emitted by a driver or the manager.
type Type string

const (
	// Data carries raw PTY output bytes.
	Data Type = "data"
	// StateChange carries StateChangePayload.
	StateChange Type = "state_change"
	// ConfirmRequired carries the detected confirmation info.
	ConfirmRequired Type = "confirm_required"
	// Output carries a semantic output record.
	Output Type = "output"
	// Exit carries the child exit code as an int.
	Exit Type = "exit"
	// Error carries an error value.
	Error Type = "error"
	// Ready is emitted once by the manager when it is serving.
	Ready Type = "ready"
)

// StateChangePayload accompanies StateChange events.
type StateChangePayload struct {
	New  string `json:"new"`
	Prev string `json:"prev"`
}

// Handler receives an event payload. Handlers run synchronously on the
// emitting goroutine, in registration order, so they must not block:
// subscribers bridging to slow consumers (network clients, files) queue the
// payload and return, as the websocket attach handler and the session log
// writer do.
type Handler func(payload any)

// Subscription identifies a registered handler for later removal.
type Subscription struct {
	id    string
	event Type
}

type entry struct {
	id string
	fn Handler
}

// Emitter is a typed event bus. The zero value is not usable; call New.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[Type][]entry
	closed   bool
}

// New creates an Emitter.
func New() *Emitter {
	return &Emitter{handlers: make(map[Type][]entry)}
}

// On registers a handler for an event type and returns its subscription.
func (e *Emitter) On(t Type, fn Handler) Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := uuid.NewString()
	e.handlers[t] = append(e.handlers[t], entry{id: id, fn: fn})
	return Subscription{id: id, event: t}
}

// Off removes a previously registered handler.
func (e *Emitter) Off(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[sub.event]
	for i, en := range list {
		if en.id == sub.id {
			e.handlers[sub.event] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Emit calls every handler registered for t, in registration order.
// Emitting on a closed emitter is a no-op.
func (e *Emitter) Emit(t Type, payload any) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return
	}
	list := make([]entry, len(e.handlers[t]))
	copy(list, e.handlers[t])
	e.mu.RUnlock()

	for _, en := range list {
		en.fn(payload)
	}
}

// Close removes all subscribers and stops further emission.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.handlers = make(map[Type][]entry)
}
