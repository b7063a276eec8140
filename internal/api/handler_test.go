package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rickyjim626/semantic-terminal/internal/manager"
	"github.com/rickyjim626/semantic-terminal/internal/spawn"
)

type fakeProc struct {
	mu     sync.Mutex
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

func newTestServer(t *testing.T) (*httptest.Server, *manager.Manager) {
	t.Helper()
	mgr := manager.New(fakeSpawner{}, nil, manager.Options{
		TickInterval: 5 * time.Millisecond,
		MaxSessions:  3,
	}, nil)
	t.Cleanup(mgr.Shutdown)

	r := chi.NewRouter()
	NewHandler(mgr, nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &decoded)
	return resp, decoded
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{"preset": "shell"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, body %v", resp.StatusCode, body)
	}
	id, _ := body["id"].(string)
	if id == "" {
		t.Fatalf("create body missing id: %v", body)
	}
	return id
}

func TestCreateAndListSessions(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	resp, err := http.Get(srv.URL + "/api/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sessions []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0]["id"] != id {
		t.Errorf("sessions = %v", sessions)
	}
}

func TestGetStateAndScreen(t *testing.T) {
	srv, mgr := newTestServer(t)
	id := createSession(t, srv)
	if err := mgr.WaitForState(id, "idle", 2*time.Second); err != nil {
		t.Fatal(err)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+id+"/state", nil)
	if resp.StatusCode != http.StatusOK || body["state"] != "idle" {
		t.Errorf("state response = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+id+"/screen?lines=1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("screen status = %d", resp.StatusCode)
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, "$") {
		t.Errorf("screen text = %q, want prompt", text)
	}
}

func TestUnknownSessionIs404WithKind(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/sessions/session-missing/state", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if body["kind"] != "not_found" {
		t.Errorf("kind = %v, want not_found", body["kind"])
	}
}

func TestUnknownPresetIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{"preset": "cobol"})
	if resp.StatusCode != http.StatusNotFound || body["kind"] != "not_found" {
		t.Errorf("response = %d %v", resp.StatusCode, body)
	}
}

func TestQuotaIs429(t *testing.T) {
	srv, _ := newTestServer(t)
	for i := 0; i < 3; i++ {
		createSession(t, srv)
	}
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sessions", map[string]any{})
	if resp.StatusCode != http.StatusTooManyRequests || body["kind"] != "quota" {
		t.Errorf("response = %d %v", resp.StatusCode, body)
	}
}

func TestSendAndMessages(t *testing.T) {
	srv, mgr := newTestServer(t)
	id := createSession(t, srv)
	if err := mgr.WaitForState(id, "idle", 2*time.Second); err != nil {
		t.Fatal(err)
	}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/send", map[string]any{"text": "echo hello"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", resp.StatusCode)
	}

	respMsgs, err := http.Get(srv.URL + "/api/sessions/" + id + "/messages")
	if err != nil {
		t.Fatal(err)
	}
	defer respMsgs.Body.Close()
	var msgs []map[string]any
	if err := json.NewDecoder(respMsgs.Body).Decode(&msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0]["content"] != "echo hello" || msgs[0]["role"] != "user" {
		t.Errorf("messages = %v", msgs)
	}
}

func TestDestroySession(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/api/sessions/"+id+"?force=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("destroy status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/sessions/"+id+"/state", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("state after destroy = %d, want 404", resp.StatusCode)
	}
}

func TestConfirmWithoutPendingIsConflict(t *testing.T) {
	srv, mgr := newTestServer(t)
	id := createSession(t, srv)
	if err := mgr.WaitForState(id, "idle", 2*time.Second); err != nil {
		t.Fatal(err)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sessions/"+id+"/confirm", map[string]any{"action": "confirm"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if body["kind"] != "no_pending_confirmation" {
		t.Errorf("kind = %v", body["kind"])
	}
}

func TestBadRequestBody(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/sessions", strings.NewReader("{not json"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
