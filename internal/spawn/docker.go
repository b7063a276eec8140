package spawn

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

const execPollInterval = 250 * time.Millisecond

// DockerSpawner runs sessions as TTY exec sessions inside an existing
// container. The container must already be running; this layer does not
// create or manage containers.
type DockerSpawner struct {
	cli         *client.Client
	containerID string
	user        string
	logger      *slog.Logger
}

// NewDockerSpawner creates a spawner bound to a container.
func NewDockerSpawner(containerID, user string, logger *slog.Logger) (*DockerSpawner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &DockerSpawner{cli: cli, containerID: containerID, user: user, logger: logger}, nil
}

// Spawn implements Spawner by exec-creating and attaching with a TTY.
func (s *DockerSpawner) Spawn(ctx context.Context, cmd string, args []string, opts Options) (Proc, error) {
	inspect, err := s.cli.ContainerInspect(ctx, s.containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("container %s not found: %w", s.containerID, err)
		}
		return nil, fmt.Errorf("inspect container %s: %w", s.containerID, err)
	}
	if !inspect.State.Running {
		return nil, fmt.Errorf("container %s is not running", s.containerID)
	}

	shell := opts.Shell
	if shell == "" {
		shell = "/bin/bash"
	}
	var execCmd []string
	switch {
	case opts.LoginShell && cmd != "":
		full := cmd
		if len(args) > 0 {
			full = cmd + " " + strings.Join(args, " ")
		}
		execCmd = []string{shell, "-l", "-c", full}
	case opts.LoginShell:
		execCmd = []string{shell, "-l"}
	case cmd != "":
		execCmd = append([]string{cmd}, args...)
	default:
		execCmd = []string{shell}
	}

	cols, rows := opts.Cols, opts.Rows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	envVars := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		envVars = append(envVars, fmt.Sprintf("%s=%s", k, v))
	}

	execConfig := container.ExecOptions{
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
		Cmd:          execCmd,
		User:         s.user,
		WorkingDir:   opts.Cwd,
		Env:          envVars,
		ConsoleSize:  &[2]uint{uint(rows), uint(cols)},
	}

	resp, err := s.cli.ContainerExecCreate(ctx, s.containerID, execConfig)
	if err != nil {
		return nil, fmt.Errorf("create exec session in container %s: %w", s.containerID, err)
	}

	attachResp, err := s.cli.ContainerExecAttach(ctx, resp.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		return nil, fmt.Errorf("attach to exec session %s: %w", resp.ID, err)
	}

	s.logger.Info("exec session created", "exec_id", resp.ID, "container_id", s.containerID)
	return &dockerProc{cli: s.cli, execID: resp.ID, conn: attachResp.Conn, reader: attachResp.Reader}, nil
}

type dockerProc struct {
	cli    *client.Client
	execID string
	conn   io.ReadWriteCloser
	reader io.Reader
}

func (p *dockerProc) Read(b []byte) (int, error)  { return p.reader.Read(b) }
func (p *dockerProc) Write(b []byte) (int, error) { return p.conn.Write(b) }

func (p *dockerProc) Resize(cols, rows int) error {
	err := p.cli.ContainerExecResize(context.Background(), p.execID, container.ResizeOptions{
		Height: uint(rows),
		Width:  uint(cols),
	})
	if err != nil {
		return fmt.Errorf("resize exec session %s to %dx%d: %w", p.execID, cols, rows, err)
	}
	return nil
}

// Kill closes the attach stream. With a TTY the exec'd process receives
// SIGHUP when its controlling terminal goes away.
func (p *dockerProc) Kill() error {
	return p.conn.Close()
}

func (p *dockerProc) Pid() int {
	inspect, err := p.cli.ContainerExecInspect(context.Background(), p.execID)
	if err != nil {
		return 0
	}
	return inspect.Pid
}

// Wait polls the exec session until it stops running.
func (p *dockerProc) Wait() (int, error) {
	for {
		inspect, err := p.cli.ContainerExecInspect(context.Background(), p.execID)
		if err != nil {
			if errdefs.IsNotFound(err) {
				return 0, nil
			}
			return -1, fmt.Errorf("inspect exec session %s: %w", p.execID, err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		time.Sleep(execPollInterval)
	}
}

func (p *dockerProc) Close() error {
	return p.conn.Close()
}
