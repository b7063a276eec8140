package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rickyjim626/semantic-terminal/internal/events"
	"github.com/rickyjim626/semantic-terminal/internal/parser"
	"github.com/rickyjim626/semantic-terminal/internal/screen"
	"github.com/rickyjim626/semantic-terminal/internal/spawn"
)

const (
	defaultTickInterval = 100 * time.Millisecond
	defaultLastLines    = 10
	execLeaveIdleGrace  = 5 * time.Second
	closeGracePeriod    = 3 * time.Second
	readBufferSize      = 32 * 1024
)

// Message is one conversation record attached to a session.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Snapshot is a point-in-time view of the session screen and state.
type Snapshot struct {
	Text    string              `json:"text"`
	CursorX int                 `json:"cursor_x"`
	CursorY int                 `json:"cursor_y"`
	State   parser.SessionState `json:"state"`
}

// PermissionDecision is a PermissionChecker's verdict on a tool request.
type PermissionDecision string

const (
	PermissionAllow PermissionDecision = "allow"
	PermissionDeny  PermissionDecision = "deny"
	PermissionAsk   PermissionDecision = "ask"
)

// PermissionChecker is consulted when a detected confirmation names a tool.
// Allow and Deny auto-answer the dialog; Ask surfaces it to the caller.
type PermissionChecker interface {
	Check(tool parser.ToolRequest) PermissionDecision
}

// Options configures a driver.
type Options struct {
	Command      string
	Args         []string
	Cols         int
	Rows         int
	Cwd          string
	Env          map[string]string
	LoginShell   bool
	Shell        string
	TickInterval time.Duration
	LastLines    int
	LogPath      string
	// LeaveIdleGrace bounds how long Exec waits for a submitted command to
	// move the state machine off idle (or to settle as instantly complete).
	LeaveIdleGrace time.Duration
}

type pendingConfirm struct {
	info   *parser.ConfirmInfo
	parser parser.ConfirmParser
}

type stateWaiter struct {
	target parser.SessionState
	ch     chan error
}

// Driver owns one child process and virtual screen, runs the change-gated
// evaluation tick over its parser registry, and tracks the session state
// machine. All byte writes reach the PTY in call order.
type Driver struct {
	id       string
	opts     Options
	spawner  spawn.Spawner
	screen   screen.Screen
	registry *parser.Registry
	emitter  *events.Emitter
	logger   *slog.Logger

	permission PermissionChecker
	onActivity func()

	mu        sync.Mutex
	started   bool
	proc      spawn.Proc
	state     parser.SessionState
	prevState parser.SessionState
	pending   *pendingConfirm
	messages  []Message
	waiters   []*stateWaiter
	lastEpoch uint64
	exitCode  int

	logSink *LogWriter

	execMu   sync.Mutex
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a driver. The driver takes exclusive ownership of scr.
func New(id string, spawner spawn.Spawner, scr screen.Screen, registry *parser.Registry, opts Options, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.LastLines <= 0 {
		opts.LastLines = defaultLastLines
	}
	if opts.LeaveIdleGrace <= 0 {
		opts.LeaveIdleGrace = execLeaveIdleGrace
	}
	return &Driver{
		id:       id,
		opts:     opts,
		spawner:  spawner,
		screen:   scr,
		registry: registry,
		emitter:  events.New(),
		logger:   logger.With("session_id", id),
		state:    parser.StateStarting,
		stop:     make(chan struct{}),
	}
}

// ID returns the session id.
func (d *Driver) ID() string { return d.id }

// Events returns the driver's event emitter.
func (d *Driver) Events() *events.Emitter { return d.emitter }

// Registry returns the driver's parser registry.
func (d *Driver) Registry() *parser.Registry { return d.registry }

// SetPermissionChecker installs the hook consulted for tool confirmations.
func (d *Driver) SetPermissionChecker(pc PermissionChecker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.permission = pc
}

// SetActivityHook installs a callback invoked on every externally initiated
// mutation and every state transition. The manager uses it to track
// last-activity for idle eviction.
func (d *Driver) SetActivityHook(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onActivity = fn
}

// Start spawns the child and launches the read, wait, and tick loops.
func (d *Driver) Start() error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return ErrAlreadyStarted
	}
	d.mu.Unlock()

	if d.opts.LogPath != "" {
		sink, err := NewLogWriter(d.opts.LogPath, d.id, d.logger)
		if err != nil {
			d.logger.Warn("session log disabled", "error", err)
		} else {
			d.logSink = sink
		}
	}

	proc, err := d.spawner.Spawn(context.Background(), d.opts.Command, d.opts.Args, spawn.Options{
		Cols:       d.opts.Cols,
		Rows:       d.opts.Rows,
		Cwd:        d.opts.Cwd,
		Env:        d.opts.Env,
		LoginShell: d.opts.LoginShell,
		Shell:      d.opts.Shell,
	})
	if err != nil {
		if d.logSink != nil {
			_ = d.logSink.Close()
		}
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	d.mu.Lock()
	d.started = true
	d.proc = proc
	d.mu.Unlock()

	d.wg.Add(3)
	go d.readLoop(proc)
	go d.waitLoop(proc)
	go d.tickLoop()

	d.logger.Info("session started", "command", d.opts.Command, "pid", proc.Pid())
	return nil
}

// readLoop pumps raw PTY output into the screen, the log sink, and the
// data event stream.
func (d *Driver) readLoop(proc spawn.Proc) {
	defer d.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, err := proc.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if _, werr := d.screen.Write(data); werr != nil {
				d.logger.Warn("screen write failed", "error", werr)
			}
			if d.logSink != nil {
				d.logSink.Output(data)
			}
			d.emitter.Emit(events.Data, data)
		}
		if err != nil {
			return
		}
	}
}

// waitLoop drives the exited transition when the child terminates.
func (d *Driver) waitLoop(proc spawn.Proc) {
	defer d.wg.Done()
	code, err := proc.Wait()
	if err != nil {
		d.logger.Debug("child wait error", "error", err)
	}
	d.handleExit(code)
}

func (d *Driver) handleExit(code int) {
	d.mu.Lock()
	if d.state == parser.StateExited {
		d.mu.Unlock()
		return
	}
	d.exitCode = code
	d.pending = nil
	emit := d.transitionLocked(parser.StateExited)
	d.mu.Unlock()

	d.stopOnce.Do(func() { close(d.stop) })
	if d.logSink != nil {
		_ = d.logSink.Close()
	}
	d.fireTransition(emit)
	d.emitter.Emit(events.Exit, code)
	d.logger.Info("session exited", "exit_code", code)
}

// tickLoop runs the periodic evaluation tick.
func (d *Driver) tickLoop() {
	defer d.wg.Done()
	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.tick()
		case <-d.stop:
			return
		}
	}
}

// tick is one iteration of the evaluation loop: skip if the screen has not
// changed, otherwise detect confirmations first and session state second.
func (d *Driver) tick() {
	epoch := d.screen.Epoch()

	d.mu.Lock()
	if d.state == parser.StateExited || epoch == d.lastEpoch {
		d.mu.Unlock()
		return
	}
	d.lastEpoch = epoch
	cur, prev := d.state, d.prevState
	d.mu.Unlock()

	ctx := d.buildContext(cur, prev)

	if info, cp := d.registry.DetectConfirm(ctx); info != nil {
		d.handleConfirmDetected(info, cp)
		return
	}

	d.mu.Lock()
	// A cleared dialog means any stale pending confirmation is gone.
	if d.pending != nil {
		d.pending = nil
	}
	d.mu.Unlock()

	if det := d.registry.DetectState(ctx); det != nil {
		d.mu.Lock()
		emit := d.transitionLocked(det.State)
		d.mu.Unlock()
		d.fireTransition(emit)
	}
}

func (d *Driver) handleConfirmDetected(info *parser.ConfirmInfo, cp parser.ConfirmParser) {
	d.mu.Lock()
	if d.pending != nil {
		// Already acquired this confirmation; emit at most once.
		d.mu.Unlock()
		return
	}
	d.pending = &pendingConfirm{info: info, parser: cp}
	checker := d.permission
	d.mu.Unlock()

	// Auto-answer tool confirmations when a permission checker decides.
	if checker != nil && info.Tool != nil {
		switch checker.Check(*info.Tool) {
		case PermissionAllow:
			if err := d.Confirm(parser.ConfirmResponse{Action: parser.ActionConfirm}); err != nil {
				d.logger.Warn("auto-confirm failed", "error", err)
			}
			return
		case PermissionDeny:
			if err := d.Confirm(parser.ConfirmResponse{Action: parser.ActionDeny}); err != nil {
				d.logger.Warn("auto-deny failed", "error", err)
			}
			return
		}
	}

	d.mu.Lock()
	emit := d.transitionLocked(parser.StateConfirming)
	d.mu.Unlock()
	d.fireTransition(emit)
	d.emitter.Emit(events.ConfirmRequired, info)
}

// buildContext assembles the read-only parser context from the screen.
func (d *Driver) buildContext(cur, prev parser.SessionState) *parser.Context {
	return &parser.Context{
		ScreenText:    d.screen.ScreenText(),
		LastLines:     d.screen.LastLines(d.opts.LastLines),
		CurrentState:  cur,
		PreviousState: prev,
		TerminalTitle: d.screen.Title(),
	}
}

// transitionLocked moves the state machine. It must be called with d.mu
// held; waiters are woken under the same lock so cancellation cannot race
// a successful transition. The returned payload is non-nil when a
// state_change event must be emitted (after releasing the lock).
func (d *Driver) transitionLocked(next parser.SessionState) *events.StateChangePayload {
	if next == d.state || d.state == parser.StateExited {
		return nil
	}
	prev := d.state
	d.prevState = prev
	d.state = next

	remaining := d.waiters[:0]
	for _, w := range d.waiters {
		switch {
		case w.target == next:
			w.ch <- nil
		case next == parser.StateError || next == parser.StateExited:
			w.ch <- ErrSessionEnded
		default:
			remaining = append(remaining, w)
		}
	}
	d.waiters = remaining

	if d.onActivity != nil {
		go d.onActivity()
	}
	return &events.StateChangePayload{New: string(next), Prev: string(prev)}
}

func (d *Driver) fireTransition(payload *events.StateChangePayload) {
	if payload == nil {
		return
	}
	d.logger.Debug("state transition", "from", payload.Prev, "to", payload.New)
	d.emitter.Emit(events.StateChange, *payload)
}

// State returns the current session state.
func (d *Driver) State() parser.SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// ExitCode returns the child's exit code; only meaningful after exited.
func (d *Driver) ExitCode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exitCode
}

// ScreenSnapshot returns the current screen text, cursor, and state.
func (d *Driver) ScreenSnapshot() Snapshot {
	cur := d.screen.Cursor()
	return Snapshot{
		Text:    d.screen.ScreenText(),
		CursorX: cur.X,
		CursorY: cur.Y,
		State:   d.State(),
	}
}

// ScreenText returns the full screen text.
func (d *Driver) ScreenText() string { return d.screen.ScreenText() }

// LastLines returns the trailing n lines of the screen.
func (d *Driver) LastLines(n int) []string { return d.screen.LastLines(n) }

// Messages returns a copy of the conversation records.
func (d *Driver) Messages() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.messages))
	copy(out, d.messages)
	return out
}

// Write sends raw bytes to the PTY.
func (d *Driver) Write(p []byte) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return ErrNotStarted
	}
	if d.state == parser.StateExited {
		d.mu.Unlock()
		return ErrExited
	}
	proc := d.proc
	hook := d.onActivity
	d.mu.Unlock()

	if d.logSink != nil {
		d.logSink.Input(p)
	}
	if _, err := proc.Write(p); err != nil {
		werr := fmt.Errorf("write to pty: %w", err)
		d.emitter.Emit(events.Error, werr)
		return werr
	}
	if hook != nil {
		hook()
	}
	return nil
}

// Send writes a text message followed by a carriage return and records it
// as a user message.
func (d *Driver) Send(msg string) error {
	if err := d.Write([]byte(msg + "\r")); err != nil {
		return err
	}
	d.mu.Lock()
	d.messages = append(d.messages, Message{Role: "user", Content: msg, Timestamp: time.Now().UnixMilli()})
	d.mu.Unlock()
	return nil
}

// RecordResponse appends an assistant message to the conversation.
func (d *Driver) RecordResponse(content string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, Message{Role: "assistant", Content: content, Timestamp: time.Now().UnixMilli()})
}

// Interrupt writes Ctrl-C.
func (d *Driver) Interrupt() error {
	return d.Write([]byte{0x03})
}

// SendKey writes the escape sequence for a named key. Unknown keys are a
// no-op.
func (d *Driver) SendKey(name string) error {
	seq, ok := KeySequence(name)
	if !ok {
		d.logger.Debug("unknown key ignored", "key", name)
		return nil
	}
	return d.Write(seq)
}

// Resize changes the PTY and screen dimensions.
func (d *Driver) Resize(cols, rows int) error {
	d.mu.Lock()
	proc := d.proc
	started := d.started
	hook := d.onActivity
	d.mu.Unlock()

	d.screen.Resize(cols, rows)
	if started && proc != nil {
		if err := proc.Resize(cols, rows); err != nil {
			return fmt.Errorf("resize pty: %w", err)
		}
	}
	if hook != nil {
		hook()
	}
	return nil
}

// WaitForState blocks until the session enters target, the timeout fires,
// or the session enters error/exited first.
func (d *Driver) WaitForState(target parser.SessionState, timeout time.Duration) error {
	d.mu.Lock()
	if d.state == target {
		d.mu.Unlock()
		return nil
	}
	if d.state == parser.StateExited || (d.state == parser.StateError && target != parser.StateExited) {
		d.mu.Unlock()
		return ErrSessionEnded
	}
	w := &stateWaiter{target: target, ch: make(chan error, 1)}
	d.waiters = append(d.waiters, w)
	d.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-w.ch:
		return err
	case <-timer.C:
		d.removeWaiter(w)
		// A wake racing the timer wins.
		select {
		case err := <-w.ch:
			return err
		default:
		}
		return fmt.Errorf("%w: state %s not reached within %s", ErrWaitTimeout, target, timeout)
	}
}

func (d *Driver) removeWaiter(w *stateWaiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, x := range d.waiters {
		if x == w {
			d.waiters = append(d.waiters[:i], d.waiters[i+1:]...)
			return
		}
	}
}

// Exec submits a command from idle and returns the semantic classification
// of the new screen content once the session is idle again. When no output
// parser claims the content, out is nil and the raw suffix carries it.
func (d *Driver) Exec(cmd string, timeout time.Duration) (out *parser.Output, raw string, err error) {
	d.execMu.Lock()
	defer d.execMu.Unlock()

	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil, "", ErrNotStarted
	}
	if d.state != parser.StateIdle {
		st := d.state
		d.mu.Unlock()
		return nil, "", fmt.Errorf("%w: exec requires idle, session is %s", ErrWrongState, st)
	}
	d.mu.Unlock()

	offset := len(d.screen.ScreenText())
	startEpoch := d.screen.Epoch()

	if err := d.Write([]byte(cmd + "\r")); err != nil {
		return nil, "", err
	}

	// Phase one: give the command a grace period to move the state machine
	// off idle. Commands that finish inside one tick never leave idle; for
	// those, output that has arrived and settled counts as completion.
	// Anything else — no output at all, or output still churning when the
	// grace expires — is a leave-idle timeout.
	leftIdle := false
	settled := false
	deadline := time.Now().Add(d.opts.LeaveIdleGrace)
	lastSeen := startEpoch
	var stableSince time.Time
	for time.Now().Before(deadline) {
		st := d.State()
		if st == parser.StateExited || st == parser.StateError {
			return nil, "", ErrSessionEnded
		}
		if st != parser.StateIdle {
			leftIdle = true
			break
		}
		if e := d.screen.Epoch(); e != lastSeen {
			lastSeen = e
			stableSince = time.Now()
		} else if !stableSince.IsZero() && time.Since(stableSince) >= 4*d.opts.TickInterval {
			settled = true
			break
		}
		time.Sleep(d.opts.TickInterval / 2)
	}
	if !leftIdle && !settled {
		return nil, "", fmt.Errorf("%w: command did not leave idle within %s", ErrWaitTimeout, d.opts.LeaveIdleGrace)
	}

	// Phase two: wait for the session to settle back to idle.
	if leftIdle {
		if werr := d.WaitForState(parser.StateIdle, timeout); werr != nil {
			return nil, "", werr
		}
	}

	text := d.screen.ScreenText()
	if offset < len(text) {
		raw = text[offset:]
	}
	raw = strings.TrimRight(raw, " \t\r\n")

	ctx := &parser.Context{
		ScreenText:    raw,
		LastLines:     tailLines(raw, d.opts.LastLines),
		CurrentState:  parser.StateIdle,
		PreviousState: d.prevStateSnapshot(),
		TerminalTitle: d.screen.Title(),
	}
	out = d.registry.ClassifyOutput(ctx)
	if out != nil {
		d.emitter.Emit(events.Output, *out)
	}
	return out, raw, nil
}

func (d *Driver) prevStateSnapshot() parser.SessionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prevState
}

// PendingConfirm returns the pending confirmation, or nil.
func (d *Driver) PendingConfirm() *parser.ConfirmInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return nil
	}
	return d.pending.info
}

// Confirm answers the pending confirmation using the parser that detected
// it, so the bytes match what the originating CLI expects.
func (d *Driver) Confirm(resp parser.ConfirmResponse) error {
	d.mu.Lock()
	p := d.pending
	if p == nil {
		d.mu.Unlock()
		return ErrNoPendingConfirm
	}
	d.pending = nil
	d.mu.Unlock()

	payload := p.parser.FormatResponse(p.info, resp)
	if err := d.Write(payload); err != nil {
		return err
	}
	d.logger.Info("confirmation answered", "action", resp.Action)
	return nil
}

// ReplaceParsers atomically swaps the registry contents, typically while
// loading a preset between commands.
func (d *Driver) ReplaceParsers(state []parser.StateParser, output []parser.OutputParser, confirm []parser.ConfirmParser) {
	d.registry.ReplaceAll(state, output, confirm)
}

// Close ends the session gracefully: when exitCmd is given it is written
// with a carriage return and the child gets a grace period to exit before
// being killed. Close never fails.
func (d *Driver) Close(exitCmd string) {
	d.mu.Lock()
	if !d.started || d.state == parser.StateExited {
		d.mu.Unlock()
		d.cleanup()
		return
	}
	d.mu.Unlock()

	if exitCmd != "" {
		if err := d.Write([]byte(exitCmd + "\r")); err == nil {
			if werr := d.WaitForState(parser.StateExited, closeGracePeriod); werr == nil {
				d.cleanup()
				return
			}
		}
	}
	d.Kill()
}

// Kill terminates the session immediately and drives it to exited, which
// rejects every outstanding waiter.
func (d *Driver) Kill() {
	d.mu.Lock()
	proc := d.proc
	d.mu.Unlock()

	if proc != nil {
		if err := proc.Kill(); err != nil {
			d.logger.Debug("kill failed", "error", err)
		}
		_ = proc.Close()
	}
	// The wait loop normally observes the death; force the transition in
	// case the transport has no process to reap.
	d.handleExit(d.exitCodeOrDefault(-1))
	d.cleanup()
}

func (d *Driver) exitCodeOrDefault(def int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == parser.StateExited {
		return d.exitCode
	}
	return def
}

func (d *Driver) cleanup() {
	d.stopOnce.Do(func() { close(d.stop) })
	if d.logSink != nil {
		_ = d.logSink.Close()
	}
	d.screen.Dispose()
}

// tailLines returns up to n trailing non-blank-padded lines of text.
func tailLines(text string, n int) []string {
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
