package session

import (
	"github.com/rickyjim626/semantic-terminal/internal/parser"
	"github.com/rickyjim626/semantic-terminal/internal/pattern"
)

// GlobPermissionChecker decides tool confirmations from glob rule lists.
// Rules match the bare tool name and, for MCP tools, "server/tool". Deny
// rules win over allow rules; tools matching neither are surfaced to the
// caller.
type GlobPermissionChecker struct {
	Allow []string
	Deny  []string
}

// Check implements PermissionChecker.
func (c *GlobPermissionChecker) Check(tool parser.ToolRequest) PermissionDecision {
	names := []string{tool.Name}
	if tool.MCPServer != "" {
		names = append(names, tool.MCPServer+"/"+tool.Name)
	}

	for _, rule := range c.Deny {
		for _, name := range names {
			if pattern.MatchGlob(rule, name) {
				return PermissionDeny
			}
		}
	}
	for _, rule := range c.Allow {
		for _, name := range names {
			if pattern.MatchGlob(rule, name) {
				return PermissionAllow
			}
		}
	}
	return PermissionAsk
}
