package session

import (
	"strings"
	"testing"
	"time"

	"github.com/rickyjim626/semantic-terminal/internal/parser"
)

func TestGlobPermissionChecker(t *testing.T) {
	c := &GlobPermissionChecker{
		Allow: []string{"Read", "Glob", "github/*"},
		Deny:  []string{"*_secret_*", "Bash"},
	}

	tests := []struct {
		name string
		tool parser.ToolRequest
		want PermissionDecision
	}{
		{"allowed exact", parser.ToolRequest{Name: "Read"}, PermissionAllow},
		{"denied exact", parser.ToolRequest{Name: "Bash"}, PermissionDeny},
		{"denied glob", parser.ToolRequest{Name: "xjp_secret_get", MCPServer: "xjp-mcp"}, PermissionDeny},
		{"allowed by server glob", parser.ToolRequest{Name: "create_issue", MCPServer: "github"}, PermissionAllow},
		{"unmatched asks", parser.ToolRequest{Name: "Write"}, PermissionAsk},
		{"deny wins over allow", parser.ToolRequest{Name: "Bash", MCPServer: "github"}, PermissionDeny},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Check(tt.tool); got != tt.want {
				t.Errorf("Check(%+v) = %s, want %s", tt.tool, got, tt.want)
			}
		})
	}
}

// toolConfirmParser reports a tool-gated confirmation on "tool-confirm?".
type toolConfirmParser struct{}

func (toolConfirmParser) Metadata() parser.Metadata {
	return parser.Metadata{Name: "tool-confirm", Priority: 10}
}
func (toolConfirmParser) DetectConfirm(ctx *parser.Context) *parser.ConfirmInfo {
	for _, line := range ctx.LastLines {
		if strings.Contains(line, "tool-confirm?") {
			return &parser.ConfirmInfo{
				Type:   parser.ConfirmOptions,
				Prompt: "allow Bash?",
				Tool:   &parser.ToolRequest{Name: "Bash"},
				Options: []parser.ConfirmOption{
					{Key: 1, Label: "Yes", IsDefault: true},
					{Key: 2, Label: "No"},
				},
			}
		}
	}
	return nil
}
func (toolConfirmParser) FormatResponse(_ *parser.ConfirmInfo, resp parser.ConfirmResponse) []byte {
	if resp.Action == parser.ActionDeny {
		return []byte("DENY\r")
	}
	return []byte("ALLOW\r")
}

func TestDriverAutoAnswersPermittedTool(t *testing.T) {
	proc := newFakeProc()
	registry := parser.NewRegistry(nil)
	registry.RegisterConfirm(toolConfirmParser{})
	d := New("session-perm", &fakeSpawner{proc: proc}, &fakeScreen{}, registry, Options{
		TickInterval: 5 * time.Millisecond,
	}, nil)
	d.SetPermissionChecker(&GlobPermissionChecker{Allow: []string{"Bash"}})
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Kill)

	proc.feed("run it? tool-confirm?\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(proc.written(), "ALLOW\r") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !strings.Contains(proc.written(), "ALLOW\r") {
		t.Fatalf("auto-confirm bytes not written, got %q", proc.written())
	}
	if d.PendingConfirm() != nil {
		t.Error("pending confirmation not cleared by auto-answer")
	}
	if d.State() == parser.StateConfirming {
		t.Error("auto-answered confirmation still drove the confirming state")
	}
}

func TestDriverAutoDeniesBlockedTool(t *testing.T) {
	proc := newFakeProc()
	registry := parser.NewRegistry(nil)
	registry.RegisterConfirm(toolConfirmParser{})
	d := New("session-perm", &fakeSpawner{proc: proc}, &fakeScreen{}, registry, Options{
		TickInterval: 5 * time.Millisecond,
	}, nil)
	d.SetPermissionChecker(&GlobPermissionChecker{Deny: []string{"*"}})
	if err := d.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(d.Kill)

	proc.feed("run it? tool-confirm?\n")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(proc.written(), "DENY\r") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("auto-deny bytes not written, got %q", proc.written())
}
