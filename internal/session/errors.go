// Package session implements the driver that owns one child process and its
// virtual screen, runs the change-gated evaluation loop over a parser
// registry, and exposes the exec/send/confirm/wait operation set.
package session

import (
	"context"
	"fmt"

	"github.com/containerd/errdefs"
)

// Stable error kinds. Every failed operation wraps one of these sentinels so
// callers can classify with errdefs.IsNotFound, errdefs.IsDeadlineExceeded,
// and friends without parsing messages.
var (
	// ErrNotStarted: operation requires a started session.
	ErrNotStarted = fmt.Errorf("session not started: %w", errdefs.ErrFailedPrecondition)
	// ErrAlreadyStarted: Start called twice.
	ErrAlreadyStarted = fmt.Errorf("session already started: %w", errdefs.ErrFailedPrecondition)
	// ErrExited: the child has exited.
	ErrExited = fmt.Errorf("session exited: %w", errdefs.ErrFailedPrecondition)
	// ErrWrongState: operation not valid in the current state.
	ErrWrongState = fmt.Errorf("wrong state for operation: %w", errdefs.ErrFailedPrecondition)
	// ErrWaitTimeout: a wait primitive expired.
	ErrWaitTimeout = fmt.Errorf("wait timed out: %w", context.DeadlineExceeded)
	// ErrSessionEnded: the session entered error/exited while a waiter was
	// pending.
	ErrSessionEnded = fmt.Errorf("session ended while waiting: %w", errdefs.ErrUnavailable)
	// ErrNoPendingConfirm: Confirm called with nothing to answer.
	ErrNoPendingConfirm = fmt.Errorf("no pending confirmation: %w", errdefs.ErrConflict)
	// ErrSpawn: the child process could not be started.
	ErrSpawn = fmt.Errorf("spawn failed: %w", errdefs.ErrUnavailable)
)
