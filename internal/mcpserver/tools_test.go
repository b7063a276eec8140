package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rickyjim626/semantic-terminal/internal/manager"
	"github.com/rickyjim626/semantic-terminal/internal/spawn"
)

type fakeProc struct {
	readCh chan []byte
	exitCh chan int
	once   sync.Once
}

func newFakeProc() *fakeProc {
	p := &fakeProc{readCh: make(chan []byte, 16), exitCh: make(chan int, 1)}
	p.readCh <- []byte("$ ")
	return p
}

func (p *fakeProc) Read(b []byte) (int, error) {
	data, ok := <-p.readCh
	if !ok {
		return 0, io.EOF
	}
	return copy(b, data), nil
}
func (p *fakeProc) Write(b []byte) (int, error) { return len(b), nil }
func (p *fakeProc) Resize(int, int) error       { return nil }
func (p *fakeProc) Kill() error {
	p.once.Do(func() { p.exitCh <- 137; close(p.readCh) })
	return nil
}
func (p *fakeProc) Pid() int           { return 1 }
func (p *fakeProc) Wait() (int, error) { return <-p.exitCh, nil }
func (p *fakeProc) Close() error       { return nil }

type fakeSpawner struct{}

func (fakeSpawner) Spawn(context.Context, string, []string, spawn.Options) (spawn.Proc, error) {
	return newFakeProc(), nil
}

func newTestMCP(t *testing.T) *Server {
	t.Helper()
	mgr := manager.New(fakeSpawner{}, nil, manager.Options{
		TickInterval: 5 * time.Millisecond,
	}, nil)
	t.Cleanup(mgr.Shutdown)
	return NewServer(mgr)
}

func callReq(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("result content is %T, not TextContent", res.Content[0])
	}
	return tc.Text
}

func TestCreateListDestroyViaTools(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()

	res, err := s.handleCreateSession(ctx, callReq("create_session", map[string]any{"preset": "shell"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("create errored: %s", resultText(t, res))
	}
	var created struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &created); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(created.ID, "session-") {
		t.Errorf("id = %q", created.ID)
	}

	res, err = s.handleListSessions(ctx, callReq("list_sessions", nil))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, res), created.ID) {
		t.Errorf("list result %q missing session", resultText(t, res))
	}

	res, err = s.handleDestroySession(ctx, callReq("destroy_session", map[string]any{
		"session_id": created.ID,
		"force":      true,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("destroy errored: %s", resultText(t, res))
	}
}

func TestToolErrorsAreToolResults(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()

	res, err := s.handleGetState(ctx, callReq("get_session_state", map[string]any{"session_id": "session-none"}))
	if err != nil {
		t.Fatalf("handler returned transport error: %v", err)
	}
	if !res.IsError {
		t.Error("unknown session should produce a tool error result")
	}

	res, err = s.handleExecCommand(ctx, callReq("exec_command", map[string]any{"session_id": ""}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("missing arguments should produce a tool error result")
	}
}

func TestGetStateAndScreenViaTools(t *testing.T) {
	s := newTestMCP(t)
	ctx := context.Background()

	res, err := s.handleCreateSession(ctx, callReq("create_session", map[string]any{}))
	if err != nil {
		t.Fatal(err)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &created); err != nil {
		t.Fatal(err)
	}

	res, err = s.handleWaitForState(ctx, callReq("wait_for_state", map[string]any{
		"session_id": created.ID,
		"state":      "idle",
		"timeout_ms": 2000,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("wait errored: %s", resultText(t, res))
	}

	res, err = s.handleGetScreen(ctx, callReq("get_screen", map[string]any{
		"session_id": created.ID,
		"lines":      1,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, res), "$") {
		t.Errorf("screen = %q, want prompt", resultText(t, res))
	}
}
