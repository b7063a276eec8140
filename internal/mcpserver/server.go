// Package mcpserver exposes the session manager as typed MCP tools over
// stdio JSON-RPC, so external agents can drive terminals through the
// standard tool-calling protocol.
package mcpserver

import (
	"context"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rickyjim626/semantic-terminal/internal/manager"
)

const serverVersion = "1.0.0"

// Server holds the MCP server state.
type Server struct {
	mgr *manager.Manager
}

// NewServer creates an MCP server over the given manager.
func NewServer(mgr *manager.Manager) *Server {
	return &Server{mgr: mgr}
}

// Run starts the MCP stdio server. It blocks until the context is cancelled
// or stdin is closed.
func (s *Server) Run(ctx context.Context) error {
	mcpServer := server.NewMCPServer(
		"semantic-terminal",
		serverVersion,
		server.WithToolCapabilities(true),
	)

	tools := []server.ServerTool{
		{Tool: createSessionTool(), Handler: s.handleCreateSession},
		{Tool: destroySessionTool(), Handler: s.handleDestroySession},
		{Tool: listSessionsTool(), Handler: s.handleListSessions},
		{Tool: execCommandTool(), Handler: s.handleExecCommand},
		{Tool: sendInputTool(), Handler: s.handleSendInput},
		{Tool: sendKeysTool(), Handler: s.handleSendKeys},
		{Tool: interruptTool(), Handler: s.handleInterrupt},
		{Tool: getScreenTool(), Handler: s.handleGetScreen},
		{Tool: getStateTool(), Handler: s.handleGetState},
		{Tool: waitForStateTool(), Handler: s.handleWaitForState},
		{Tool: getPendingConfirmationTool(), Handler: s.handleGetPendingConfirmation},
		{Tool: respondToConfirmationTool(), Handler: s.handleRespondToConfirmation},
	}
	mcpServer.AddTools(tools...)

	stdio := server.NewStdioServer(mcpServer)
	stdio.SetErrorLogger(log.New(os.Stderr, "[mcp] ", log.LstdFlags))

	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
