package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/containerd/errdefs"

	"github.com/rickyjim626/semantic-terminal/internal/events"
	"github.com/rickyjim626/semantic-terminal/internal/parser"
	"github.com/rickyjim626/semantic-terminal/internal/screen"
	"github.com/rickyjim626/semantic-terminal/internal/spawn"
)

// fakeProc is an in-memory Proc: writes are recorded, reads block until
// feed() provides output, wait blocks until exit().
type fakeProc struct {
	mu       sync.Mutex
	writes   []byte
	readCh   chan []byte
	exitCh   chan int
	exitOnce sync.Once
	closed   bool
}

func newFakeProc() *fakeProc {
	return &fakeProc{
		readCh: make(chan []byte, 64),
		exitCh: make(chan int, 1),
	}
}

func (p *fakeProc) feed(data string) { p.readCh <- []byte(data) }

func (p *fakeProc) exit(code int) {
	p.exitOnce.Do(func() {
		p.exitCh <- code
		close(p.readCh)
	})
}

func (p *fakeProc) Read(b []byte) (int, error) {
	data, ok := <-p.readCh
	if !ok {
		return 0, io.EOF
	}
	return copy(b, data), nil
}

func (p *fakeProc) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.ErrClosedPipe
	}
	p.writes = append(p.writes, b...)
	return len(b), nil
}

func (p *fakeProc) written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.writes)
}

func (p *fakeProc) Resize(cols, rows int) error { return nil }
func (p *fakeProc) Kill() error                 { p.exit(137); return nil }
func (p *fakeProc) Pid() int                    { return 4242 }
func (p *fakeProc) Wait() (int, error)          { return <-p.exitCh, nil }
func (p *fakeProc) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// fakeSpawner hands out one prepared proc.
type fakeSpawner struct {
	proc *fakeProc
	err  error
}

func (s *fakeSpawner) Spawn(context.Context, string, []string, spawn.Options) (spawn.Proc, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.proc, nil
}

// fakeScreen implements screen.Screen with plain line buffering; every write
// appends text verbatim and bumps the epoch.
type fakeScreen struct {
	mu    sync.Mutex
	text  strings.Builder
	epoch uint64
	title string
}

func (s *fakeScreen) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text.Write(p)
	s.epoch++
	return len(p), nil
}

func (s *fakeScreen) ScreenText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

func (s *fakeScreen) LastLine() string {
	lines := s.LastLines(1)
	if len(lines) == 0 {
		return ""
	}
	return lines[0]
}

func (s *fakeScreen) LastLines(n int) []string {
	lines := strings.Split(s.ScreenText(), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func (s *fakeScreen) Cursor() screen.Cursor { return screen.Cursor{} }
func (s *fakeScreen) Title() string         { return s.title }
func (s *fakeScreen) Resize(int, int)       {}
func (s *fakeScreen) Clear()                {}
func (s *fakeScreen) Reset()                {}
func (s *fakeScreen) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}
func (s *fakeScreen) Dispose() {}

// promptStateParser flags idle on a trailing "$ " prompt and tool_running on
// "busy".
type promptStateParser struct{}

func (promptStateParser) Metadata() parser.Metadata {
	return parser.Metadata{Name: "test-state", Priority: 10}
}
func (promptStateParser) DetectState(ctx *parser.Context) *parser.StateDetection {
	if len(ctx.LastLines) == 0 {
		return nil
	}
	last := ctx.LastLines[len(ctx.LastLines)-1]
	if strings.Contains(last, "busy") {
		return &parser.StateDetection{State: parser.StateToolRunning, Confidence: 0.9}
	}
	if strings.HasSuffix(last, "$") || strings.HasSuffix(last, "$ ") {
		return &parser.StateDetection{State: parser.StateIdle, Confidence: 0.8}
	}
	return nil
}

// markerConfirmParser detects "confirm?" and answers with "ok\r".
type markerConfirmParser struct{}

func (markerConfirmParser) Metadata() parser.Metadata {
	return parser.Metadata{Name: "test-confirm", Priority: 10}
}
func (markerConfirmParser) DetectConfirm(ctx *parser.Context) *parser.ConfirmInfo {
	for _, line := range ctx.LastLines {
		if strings.Contains(line, "confirm?") {
			return &parser.ConfirmInfo{Type: parser.ConfirmYesNo, Prompt: "confirm?", RawPrompt: line}
		}
	}
	return nil
}
func (markerConfirmParser) FormatResponse(_ *parser.ConfirmInfo, resp parser.ConfirmResponse) []byte {
	if resp.Action == parser.ActionDeny {
		return []byte("no\r")
	}
	return []byte("ok\r")
}

func newTestDriver(t *testing.T, confirm bool) (*Driver, *fakeProc) {
	t.Helper()
	proc := newFakeProc()
	registry := parser.NewRegistry(nil)
	registry.RegisterState(promptStateParser{})
	if confirm {
		registry.RegisterConfirm(markerConfirmParser{})
	}
	d := New("session-test", &fakeSpawner{proc: proc}, &fakeScreen{}, registry, Options{
		TickInterval: 5 * time.Millisecond,
	}, nil)
	if err := d.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(d.Kill)
	return d, proc
}

func waitState(t *testing.T, d *Driver, want parser.SessionState) {
	t.Helper()
	if err := d.WaitForState(want, 2*time.Second); err != nil {
		t.Fatalf("waiting for %s (currently %s): %v", want, d.State(), err)
	}
}

func TestDriverStartAndIdleDetection(t *testing.T) {
	d, proc := newTestDriver(t, false)

	if d.State() != parser.StateStarting {
		t.Errorf("initial state = %s, want starting", d.State())
	}
	proc.feed("welcome\n$ ")
	waitState(t, d, parser.StateIdle)
}

func TestDriverDoubleStart(t *testing.T) {
	d, _ := newTestDriver(t, false)
	if err := d.Start(); !errors.Is(err, errdefs.ErrFailedPrecondition) {
		t.Errorf("second start = %v, want failed-precondition kind", err)
	}
}

func TestDriverWriteBeforeStart(t *testing.T) {
	d := New("s", &fakeSpawner{proc: newFakeProc()}, &fakeScreen{}, parser.NewRegistry(nil), Options{}, nil)
	if err := d.Write([]byte("x")); !errors.Is(err, errdefs.ErrFailedPrecondition) {
		t.Errorf("write before start = %v, want failed-precondition kind", err)
	}
}

func TestDriverSendAppendsMessageAndCR(t *testing.T) {
	d, proc := newTestDriver(t, false)
	proc.feed("$ ")
	waitState(t, d, parser.StateIdle)

	if err := d.Send("hello"); err != nil {
		t.Fatal(err)
	}
	if got := proc.written(); got != "hello\r" {
		t.Errorf("pty bytes = %q, want hello\\r", got)
	}

	msgs := d.Messages()
	if len(msgs) != 1 || msgs[0].Role != "user" || msgs[0].Content != "hello" {
		t.Errorf("messages = %+v", msgs)
	}
	if msgs[0].Timestamp == 0 {
		t.Error("message timestamp not set")
	}

	d.RecordResponse("hi there")
	msgs = d.Messages()
	if len(msgs) != 2 || msgs[1].Role != "assistant" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestDriverInterruptAndKeys(t *testing.T) {
	d, proc := newTestDriver(t, false)
	proc.feed("$ ")
	waitState(t, d, parser.StateIdle)

	if err := d.Interrupt(); err != nil {
		t.Fatal(err)
	}
	if err := d.SendKey("up"); err != nil {
		t.Fatal(err)
	}
	if err := d.SendKey("no-such-key"); err != nil {
		t.Errorf("unknown key should be a no-op, got %v", err)
	}

	got := proc.written()
	if !strings.Contains(got, "\x03") {
		t.Errorf("bytes %q missing interrupt", got)
	}
	if !strings.Contains(got, "\x1b[A") {
		t.Errorf("bytes %q missing up-arrow sequence", got)
	}
}

func TestDriverStateChangeEmittedOncePerTransition(t *testing.T) {
	d, proc := newTestDriver(t, false)

	var mu sync.Mutex
	var changes []events.StateChangePayload
	d.Events().On(events.StateChange, func(p any) {
		mu.Lock()
		changes = append(changes, p.(events.StateChangePayload))
		mu.Unlock()
	})

	proc.feed("$ ")
	waitState(t, d, parser.StateIdle)
	// More prompt output keeps the state idle; no further transitions.
	proc.feed("\n$ ")
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	idleCount := 0
	for _, c := range changes {
		if c.New == "idle" {
			idleCount++
		}
	}
	if idleCount != 1 {
		t.Errorf("idle transitions = %d, want exactly 1 (changes: %+v)", idleCount, changes)
	}
}

func TestDriverConfirmFlow(t *testing.T) {
	d, proc := newTestDriver(t, true)

	confirmed := make(chan *parser.ConfirmInfo, 1)
	d.Events().On(events.ConfirmRequired, func(p any) {
		confirmed <- p.(*parser.ConfirmInfo)
	})

	proc.feed("do the thing confirm?\n")
	waitState(t, d, parser.StateConfirming)

	select {
	case info := <-confirmed:
		if info.Prompt != "confirm?" {
			t.Errorf("prompt = %q", info.Prompt)
		}
	case <-time.After(time.Second):
		t.Fatal("confirm_required not emitted")
	}

	pending := d.PendingConfirm()
	if pending == nil {
		t.Fatal("no pending confirmation")
	}

	if err := d.Confirm(parser.ConfirmResponse{Action: parser.ActionConfirm}); err != nil {
		t.Fatal(err)
	}
	if got := proc.written(); !strings.Contains(got, "ok\r") {
		t.Errorf("bytes = %q, want formatted response from the detecting parser", got)
	}
	if d.PendingConfirm() != nil {
		t.Error("pending not cleared after Confirm")
	}

	if err := d.Confirm(parser.ConfirmResponse{Action: parser.ActionConfirm}); !errors.Is(err, errdefs.ErrConflict) {
		t.Errorf("second confirm = %v, want no-pending kind", err)
	}
}

func TestDriverExec(t *testing.T) {
	d, proc := newTestDriver(t, false)
	proc.feed("$ ")
	waitState(t, d, parser.StateIdle)

	done := make(chan struct{})
	var out *parser.Output
	var raw string
	var execErr error
	go func() {
		defer close(done)
		out, raw, execErr = d.Exec("do-work", 2*time.Second)
	}()

	// Simulate the command running and then returning to a prompt.
	time.Sleep(20 * time.Millisecond)
	proc.feed("busy\n")
	time.Sleep(30 * time.Millisecond)
	proc.feed("result line\n$ ")

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("exec did not finish")
	}
	if execErr != nil {
		t.Fatalf("exec: %v", execErr)
	}
	if out != nil {
		t.Errorf("out = %+v, want nil with no output parsers registered", out)
	}
	if !strings.Contains(raw, "result line") {
		t.Errorf("raw = %q, want the post-command suffix", raw)
	}
	if strings.Contains(raw, "welcome") {
		t.Errorf("raw = %q includes pre-command screen content", raw)
	}
	if got := proc.written(); !strings.Contains(got, "do-work\r") {
		t.Errorf("bytes = %q, want the submitted command", got)
	}
}

func TestDriverExecWrongState(t *testing.T) {
	d, proc := newTestDriver(t, false)
	proc.feed("busy\n")
	waitState(t, d, parser.StateToolRunning)

	if _, _, err := d.Exec("nope", time.Second); !errors.Is(err, errdefs.ErrFailedPrecondition) {
		t.Errorf("exec outside idle = %v, want wrong-state kind", err)
	}
}

func TestDriverExecTimeout(t *testing.T) {
	d, proc := newTestDriver(t, false)
	proc.feed("$ ")
	waitState(t, d, parser.StateIdle)

	go func() {
		time.Sleep(20 * time.Millisecond)
		proc.feed("busy\n") // leaves idle, never returns
	}()

	_, _, err := d.Exec("hang", 150*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("exec = %v, want timeout kind", err)
	}
}

func TestDriverExecChurningOutputTimesOut(t *testing.T) {
	proc := newFakeProc()
	registry := parser.NewRegistry(nil)
	registry.RegisterState(promptStateParser{})
	d := New("session-churn", &fakeSpawner{proc: proc}, &fakeScreen{}, registry, Options{
		TickInterval:   5 * time.Millisecond,
		LeaveIdleGrace: 100 * time.Millisecond,
	}, nil)
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Kill)

	proc.feed("$ ")
	waitState(t, d, parser.StateIdle)

	// Keep the screen churning with prompt-shaped output so the state never
	// leaves idle and the output never goes four ticks stable.
	stopFeed := make(chan struct{})
	defer close(stopFeed)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				proc.feed("x\n$ ")
			case <-stopFeed:
				return
			}
		}
	}()

	_, _, err := d.Exec("churn", 2*time.Second)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("exec with churning idle output = %v, want leave-idle timeout kind", err)
	}
}

func TestDriverWaitForStateTimeout(t *testing.T) {
	d, _ := newTestDriver(t, false)
	err := d.WaitForState(parser.StateIdle, 30*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("wait = %v, want timeout kind", err)
	}
}

func TestDriverKillRejectsWaiters(t *testing.T) {
	d, _ := newTestDriver(t, false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.WaitForState(parser.StateIdle, 5*time.Second)
	}()
	time.Sleep(20 * time.Millisecond)

	d.Kill()

	select {
	case err := <-errCh:
		if !errors.Is(err, errdefs.ErrUnavailable) {
			t.Errorf("waiter error = %v, want session-ended kind", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released after kill")
	}

	if d.State() != parser.StateExited {
		t.Errorf("state = %s, want exited", d.State())
	}
}

func TestDriverChildExitEmitsExit(t *testing.T) {
	d, proc := newTestDriver(t, false)

	exitCh := make(chan int, 1)
	d.Events().On(events.Exit, func(p any) { exitCh <- p.(int) })

	proc.exit(0)

	select {
	case code := <-exitCh:
		if code != 0 {
			t.Errorf("exit code = %d, want 0", code)
		}
	case <-time.After(time.Second):
		t.Fatal("exit event not emitted")
	}
	waitState(t, d, parser.StateExited)

	if err := d.Write([]byte("x")); !errors.Is(err, errdefs.ErrFailedPrecondition) {
		t.Errorf("write after exit = %v, want exited kind", err)
	}
}

func TestDriverSpawnFailure(t *testing.T) {
	d := New("s", &fakeSpawner{err: errors.New("no such binary")}, &fakeScreen{}, parser.NewRegistry(nil), Options{}, nil)
	if err := d.Start(); !errors.Is(err, errdefs.ErrUnavailable) {
		t.Errorf("start = %v, want spawn-failure kind", err)
	}
}

func TestDriverNoTickEventsWhenScreenUnchanged(t *testing.T) {
	d, proc := newTestDriver(t, false)
	proc.feed("$ ")
	waitState(t, d, parser.StateIdle)

	var count int
	var mu sync.Mutex
	d.Events().On(events.StateChange, func(any) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	// No new output: several tick periods pass without any event.
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("state_change events with unchanged screen = %d, want 0", count)
	}
}
