// Package spawn abstracts the byte-stream transport a session runs over:
// a local PTY or an exec session inside a running Docker container.
package spawn

import (
	"context"
	"io"
)

// Options configures a spawned process.
type Options struct {
	Cols int
	Rows int
	Cwd  string
	Env  map[string]string
	// LoginShell wraps the command in "shell -l -c" (or starts "shell -l"
	// when no command is given).
	LoginShell bool
	Shell      string
}

// Proc is a running child with terminal semantics. Reads return raw PTY
// output; writes go to the child's stdin.
type Proc interface {
	io.Reader
	io.Writer

	// Resize changes the terminal dimensions.
	Resize(cols, rows int) error
	// Kill terminates the child immediately.
	Kill() error
	// Pid returns the child process id, or 0 when unknown.
	Pid() int
	// Wait blocks until the child exits and returns its exit code.
	Wait() (int, error)
	// Close releases the transport without necessarily killing the child.
	Close() error
}

// Spawner starts child processes.
type Spawner interface {
	Spawn(ctx context.Context, cmd string, args []string, opts Options) (Proc, error)
}
