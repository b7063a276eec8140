package spawn

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
)

// PTYSpawner starts local child processes under a pseudo-terminal.
type PTYSpawner struct {
	logger *slog.Logger
}

// NewPTYSpawner creates a local PTY spawner.
func NewPTYSpawner(logger *slog.Logger) *PTYSpawner {
	if logger == nil {
		logger = slog.Default()
	}
	return &PTYSpawner{logger: logger}
}

// Spawn implements Spawner.
func (s *PTYSpawner) Spawn(ctx context.Context, cmd string, args []string, opts Options) (Proc, error) {
	shell := opts.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}

	var c *exec.Cmd
	switch {
	case opts.LoginShell && cmd != "":
		full := cmd
		if len(args) > 0 {
			full = cmd + " " + strings.Join(args, " ")
		}
		c = exec.CommandContext(ctx, shell, "-l", "-c", full)
	case opts.LoginShell:
		c = exec.CommandContext(ctx, shell, "-l")
	case cmd != "":
		c = exec.CommandContext(ctx, cmd, args...)
	default:
		c = exec.CommandContext(ctx, shell)
	}

	if opts.Cwd != "" {
		c.Dir = opts.Cwd
	}
	c.Env = os.Environ()
	for k, v := range opts.Env {
		c.Env = append(c.Env, fmt.Sprintf("%s=%s", k, v))
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	ptmx, err := pty.StartWithSize(c, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
	if err != nil {
		return nil, fmt.Errorf("start pty for %q: %w", cmd, err)
	}

	s.logger.Debug("pty spawned", "cmd", cmd, "pid", c.Process.Pid, "cols", cols, "rows", rows)
	return &ptyProc{cmd: c, ptmx: ptmx}, nil
}

type ptyProc struct {
	cmd  *exec.Cmd
	ptmx *os.File

	waitOnce sync.Once
	waitErr  error
	waitCode int
}

func (p *ptyProc) Read(b []byte) (int, error)  { return p.ptmx.Read(b) }
func (p *ptyProc) Write(b []byte) (int, error) { return p.ptmx.Write(b) }

func (p *ptyProc) Resize(cols, rows int) error {
	return pty.Setsize(p.ptmx, &pty.Winsize{Rows: uint16(rows), Cols: uint16(cols)})
}

func (p *ptyProc) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *ptyProc) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Wait is safe to call from multiple goroutines; the underlying cmd.Wait
// runs once and the result is memoized.
func (p *ptyProc) Wait() (int, error) {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		if err == nil {
			p.waitCode = 0
			return
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			p.waitCode = exitErr.ExitCode()
			return
		}
		p.waitCode = -1
		p.waitErr = err
	})
	return p.waitCode, p.waitErr
}

func (p *ptyProc) Close() error {
	return p.ptmx.Close()
}
